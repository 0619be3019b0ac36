/*
 * PENS - Copyright (C) 2025 Velivolant.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package token

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// AuthorizeURL builds the authorization-code URL an operator visits to
// obtain the initial refresh token. The interactive dance itself is out
// of scope; this only prints where to go.
func AuthorizeURL(clientID, tenantID, redirectURI, scope string) string {
	cfg := oauth2.Config{
		ClientID:    clientID,
		Endpoint:    microsoft.AzureADEndpoint(tenantID),
		RedirectURL: redirectURI,
	}
	if scope != "" {
		cfg.Scopes = []string{scope}
	}

	return cfg.AuthCodeURL("", oauth2.SetAuthURLParam("response_mode", "query"))
}
