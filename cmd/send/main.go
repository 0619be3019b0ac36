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

package send

import (
	"errors"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/velivolant/pens/cmd/config"
	"github.com/velivolant/pens/retrier"
	"github.com/velivolant/pens/smtp"
)

type sendConfig struct {
	config.CliConfig
	To               string
	Subject          string
	Body             string
	BodyFile         string
	VerificationCode string
}

func RegisterCommand(app *cli.App) *cli.App {
	cfg := &sendConfig{}

	flags := cfg.Parameters()
	flags = append(flags,
		&cli.StringFlag{
			Name:        "to",
			Usage:       "recipient address",
			EnvVars:     []string{"PENS_SEND_TO"},
			Destination: &cfg.To,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "subject",
			Usage:       "message subject",
			EnvVars:     []string{"PENS_SEND_SUBJECT"},
			Destination: &cfg.Subject,
		},
		&cli.StringFlag{
			Name:        "body",
			Usage:       "message body",
			EnvVars:     []string{"PENS_SEND_BODY"},
			Destination: &cfg.Body,
		},
		&cli.StringFlag{
			Name:        "body-file",
			Usage:       "message body file",
			EnvVars:     []string{"PENS_SEND_BODY_FILE"},
			Destination: &cfg.BodyFile,
		},
		&cli.StringFlag{
			Name:        "verification-code",
			Usage:       "send a verification code instead of a body",
			EnvVars:     []string{"PENS_SEND_VERIFICATION_CODE"},
			Destination: &cfg.VerificationCode,
		},
	)

	app.Commands = append(app.Commands, &cli.Command{
		Name:   "send",
		Usage:  "Send a message",
		Flags:  flags,
		Action: func(context *cli.Context) error { return send(context, cfg) },
	})
	return app
}

func (cfg *sendConfig) resolveBody() (string, error) {
	if cfg.Body != "" {
		return cfg.Body, nil
	}

	if cfg.BodyFile != "" {
		body, err := os.ReadFile(cfg.BodyFile)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(body), "\n"), nil
	}

	return "", errors.New("at least one of the \"body\" or \"body-file\" flags is required")
}

func send(_ *cli.Context, cfg *sendConfig) error {
	cfg.InitLogging()

	smtpConfig, err := cfg.ResolveSMTP()
	if err != nil {
		return err
	}

	cred, err := cfg.ResolveCredential()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"host": smtpConfig.Host,
		"port": smtpConfig.Port,
		"to":   cfg.To,
	}).Info("sending")

	c := smtp.NewClient(smtpConfig)

	policy := retrier.Policy{Attempts: cfg.ConnectRetries, Delay: time.Second}
	if err := policy.Run(c.Connect); err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	if err := c.Authenticate(cred); err != nil {
		return err
	}

	if cfg.VerificationCode != "" {
		if err := c.SendVerificationCode(cfg.To, cfg.VerificationCode); err != nil {
			return err
		}
	} else {
		body, err := cfg.resolveBody()
		if err != nil {
			return err
		}

		err = c.Send(smtp.OutgoingMessage{
			From:    cfg.Mail.Username,
			To:      cfg.To,
			Subject: cfg.Subject,
			Body:    body,
		})
		if err != nil {
			return err
		}
	}

	return c.Quit()
}
