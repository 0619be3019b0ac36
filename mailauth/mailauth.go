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

// Package mailauth converts credentials into the exact bytes the mail
// protocols expect: IMAP quoted strings for LOGIN and the SASL XOAUTH2
// initial response for bearer tokens.
package mailauth

import (
	"encoding/base64"
	"strings"

	"github.com/emersion/go-sasl"
)

// Credential is a per-session-attempt authentication input. It is one
// of Password or OAuthBearer.
type Credential interface {
	credential()
}

// Password is a static username/secret pair.
type Password struct {
	Username string
	Secret   string
}

func (Password) credential() {}

// OAuthBearer carries an OAuth2 access token for SASL XOAUTH2.
type OAuthBearer struct {
	Username    string
	AccessToken string
}

func (OAuthBearer) credential() {}

// XOAuth2Raw returns the unencoded XOAUTH2 initial response:
// "user=" + username + "\x01auth=Bearer " + token + "\x01\x01".
// Empty usernames and tokens are passed through untouched; validity is
// the server's concern.
func XOAuth2Raw(username, accessToken string) []byte {
	var b strings.Builder
	b.WriteString("user=")
	b.WriteString(username)
	b.WriteByte(0x01)
	b.WriteString("auth=Bearer ")
	b.WriteString(accessToken)
	b.WriteByte(0x01)
	b.WriteByte(0x01)
	return []byte(b.String())
}

// XOAuth2String returns the base64 form used directly in
// "AUTHENTICATE XOAUTH2 <...>" and "AUTH XOAUTH2 <...>".
func XOAuth2String(username, accessToken string) string {
	return base64.StdEncoding.EncodeToString(XOAuth2Raw(username, accessToken))
}

// xoauth2Client implements the XOAUTH2 SASL mechanism. go-sasl ships
// OAUTHBEARER but not XOAUTH2, which is what Gmail and Office 365 speak
// on IMAP and SMTP.
type xoauth2Client struct {
	username string
	token    string
}

// NewXOAuth2Client returns a sasl.Client for the XOAUTH2 mechanism.
func NewXOAuth2Client(username, accessToken string) sasl.Client {
	return &xoauth2Client{username: username, token: accessToken}
}

func (a *xoauth2Client) Start() (string, []byte, error) {
	return "XOAUTH2", XOAuth2Raw(a.username, a.token), nil
}

func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// The server sends a base64 JSON error as a challenge on failure;
	// the client must reply with an empty line to receive the final
	// tagged/status response.
	return []byte{}, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// QuoteString renders s as an IMAP quoted string, escaping backslashes
// and embedded double quotes so passwords containing either remain
// valid command arguments.
func QuoteString(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}
