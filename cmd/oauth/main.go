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

package oauth

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/velivolant/pens/cmd/config"
	"github.com/velivolant/pens/token"
)

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &config.OAuth2Config{}

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "oauth",
		Usage: "OAuth2 token utilities",
		Subcommands: []*cli.Command{
			{
				Name:   "refresh",
				Usage:  "Validate the stored token, refreshing it if stale",
				Flags:  cfg.Parameters(),
				Action: func(context *cli.Context) error { return refresh(context, cfg) },
			},
			{
				Name:   "authorize-url",
				Usage:  "Print the interactive authorization url",
				Flags:  cfg.Parameters(),
				Action: func(context *cli.Context) error { return authorizeURL(context, cfg) },
			},
		},
	})
	return app
}

func refresh(_ *cli.Context, cfg *config.OAuth2Config) error {
	mgrConfig, store, err := cfg.Resolve()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"client_id": mgrConfig.ClientID,
		"token_url": mgrConfig.TokenURL,
	}).Info("using_provider")

	mgr := token.NewManager(mgrConfig, store)
	if err := mgr.EnsureValidToken(); err != nil {
		return err
	}

	log.Info("token_valid")
	return nil
}

func authorizeURL(_ *cli.Context, cfg *config.OAuth2Config) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("\"oauth2-client-id\" is required")
	}

	fmt.Println(token.AuthorizeURL(cfg.ClientID, cfg.TenantID, cfg.RedirectURI, cfg.Scope))
	return nil
}
