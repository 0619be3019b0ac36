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

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/velivolant/pens/cmd/fetch"
	"github.com/velivolant/pens/cmd/oauth"
	"github.com/velivolant/pens/cmd/send"
)

func Main() {
	app := cli.App{
		Name:  "pens",
		Usage: os.Args[0],
		Description: `PENS talks to a mail server over IMAP and SMTP, authenticating
with a password or an OAuth2 bearer token refreshed via a client secret
or a certificate-backed JWT assertion.
`,
	}

	fetch.RegisterCommand(&app)
	send.RegisterCommand(&app)
	oauth.RegisterCommand(&app)

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
