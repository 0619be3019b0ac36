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

package config

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func DefaultConfig() CliConfig {
	return CliConfig{
		Mail:           DefaultMailConfig(),
		OAuth:          DefaultOAuth2Config(),
		LogLevel:       "info",
		LogFormat:      "text",
		DialTimeout:    30 * time.Second,
		CommandTimeout: time.Minute,
		ConnectRetries: 1,
	}
}

func (cfg *CliConfig) Parameters() []cli.Flag {
	def := DefaultConfig()

	var flags []cli.Flag
	flags = append(flags, cfg.Mail.makeMailParameters("mail")...)
	flags = append(flags, cfg.OAuth.Parameters()...)
	flags = append(flags, []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level",
			EnvVars:     []string{"PENS_LOG_LEVEL"},
			Destination: &cfg.LogLevel,
			Value:       def.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "logging format (text/json)",
			EnvVars:     []string{"PENS_LOG_FORMAT"},
			Destination: &cfg.LogFormat,
			Value:       def.LogFormat,
		},
		&cli.DurationFlag{
			Name:        "dial-timeout",
			Usage:       "connection establishment timeout",
			EnvVars:     []string{"PENS_DIAL_TIMEOUT"},
			Destination: &cfg.DialTimeout,
			Value:       def.DialTimeout,
		},
		&cli.DurationFlag{
			Name:        "command-timeout",
			Usage:       "per-command i/o timeout",
			EnvVars:     []string{"PENS_COMMAND_TIMEOUT"},
			Destination: &cfg.CommandTimeout,
			Value:       def.CommandTimeout,
		},
		&cli.IntFlag{
			Name:        "connect-retries",
			Usage:       "connection attempts before giving up",
			EnvVars:     []string{"PENS_CONNECT_RETRIES"},
			Destination: &cfg.ConnectRetries,
			Value:       def.ConnectRetries,
		},
	}...)

	return flags
}

// InitLogging applies the log-level and log-format flags.
func (cfg *CliConfig) InitLogging() {
	if logLevel, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(logLevel)
	}

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}
