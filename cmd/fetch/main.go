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

package fetch

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/velivolant/pens/cmd/config"
	"github.com/velivolant/pens/imap"
	"github.com/velivolant/pens/retrier"
)

type fetchConfig struct {
	config.CliConfig
	Count    int
	MarkRead bool
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &fetchConfig{}

	flags := cfg.Parameters()
	flags = append(flags,
		&cli.IntFlag{
			Name:        "count",
			Usage:       "number of recent messages to fetch",
			EnvVars:     []string{"PENS_FETCH_COUNT"},
			Destination: &cfg.Count,
			Value:       10,
		},
		&cli.BoolFlag{
			Name:        "mark-read",
			Usage:       "mark fetched messages as read",
			EnvVars:     []string{"PENS_FETCH_MARK_READ"},
			Destination: &cfg.MarkRead,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "fetch",
		Usage:  "Fetch recent messages from the mailbox",
		Flags:  flags,
		Action: func(context *cli.Context) error { return fetch(context, cfg) },
	})
	return app
}

func fetch(_ *cli.Context, cfg *fetchConfig) error {
	cfg.InitLogging()

	imapConfig, mailbox, err := cfg.ResolveIMAP()
	if err != nil {
		return err
	}

	cred, err := cfg.ResolveCredential()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"host":    imapConfig.Host,
		"port":    imapConfig.Port,
		"mailbox": mailbox,
		"count":   cfg.Count,
	}).Info("fetching")

	c := imap.NewClient(imapConfig)

	policy := retrier.Policy{Attempts: cfg.ConnectRetries, Delay: time.Second}
	if err := policy.Run(c.Connect); err != nil {
		return err
	}
	defer func() { _ = c.Logout() }()

	if err := c.Authenticate(cred); err != nil {
		return err
	}

	if mailbox != "" {
		if err := c.SelectMailbox(mailbox); err != nil {
			return err
		}
	}

	messages, err := c.FetchRecent(cfg.Count)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		marker := " "
		if !msg.IsRead {
			marker = "*"
		}
		fmt.Printf("%s %-6s %-30s %s\n", marker, msg.ID, msg.From, msg.Subject)

		if cfg.MarkRead && !msg.IsRead {
			if err := c.MarkRead(msg.ID); err != nil {
				return err
			}
		}
	}

	return c.Logout()
}
