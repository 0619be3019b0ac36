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
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/velivolant/pens/imap"
	"github.com/velivolant/pens/mailauth"
	"github.com/velivolant/pens/session"
	"github.com/velivolant/pens/smtp"
	"github.com/velivolant/pens/token"
)

func DefaultMailConfig() MailConfig {
	return MailConfig{
		AuthMethod:    "password",
		TLSSkipVerify: false,
	}
}

func (cfg *MailConfig) makeMailParameters(lowerPrefix string) []cli.Flag {
	def := DefaultMailConfig()
	upperPrefix := strings.ToUpper(lowerPrefix)

	return []cli.Flag{
		&cli.StringFlag{
			Name:        fmt.Sprintf("%v-url", lowerPrefix),
			Usage:       fmt.Sprintf("%v server url (imap/imaps/smtp/smtps)", lowerPrefix),
			EnvVars:     []string{fmt.Sprintf("PENS_%v_URL", upperPrefix)},
			Destination: &cfg.URL,
			Required:    true,
			Value:       def.URL,
		},
		&cli.StringFlag{
			Name:        fmt.Sprintf("%v-username", lowerPrefix),
			Usage:       fmt.Sprintf("%v username", lowerPrefix),
			EnvVars:     []string{fmt.Sprintf("PENS_%v_USERNAME", upperPrefix)},
			Destination: &cfg.Username,
			Required:    true,
			Value:       def.Username,
		},
		&cli.StringFlag{
			Name:        fmt.Sprintf("%v-password", lowerPrefix),
			Usage:       fmt.Sprintf("%v password", lowerPrefix),
			EnvVars:     []string{fmt.Sprintf("PENS_%v_PASSWORD", upperPrefix)},
			Destination: &cfg.Password,
			Required:    false,
			Value:       def.Password,
		},
		&cli.StringFlag{
			Name:        fmt.Sprintf("%v-password-file", lowerPrefix),
			Usage:       fmt.Sprintf("%v password file", lowerPrefix),
			EnvVars:     []string{fmt.Sprintf("PENS_%v_PASSWORD_FILE", upperPrefix)},
			Destination: &cfg.PasswordFile,
			Required:    false,
			Value:       def.PasswordFile,
		},
		&cli.StringFlag{
			Name:        fmt.Sprintf("%v-auth-method", lowerPrefix),
			Usage:       fmt.Sprintf("%v auth method (password, xoauth2)", lowerPrefix),
			EnvVars:     []string{fmt.Sprintf("PENS_%v_AUTH_METHOD", upperPrefix)},
			Destination: &cfg.AuthMethod,
			Required:    false,
			Value:       def.AuthMethod,
		},
		&cli.BoolFlag{
			Name:        fmt.Sprintf("%v-tls-skip-verify", lowerPrefix),
			Usage:       fmt.Sprintf("skip %v tls verification", lowerPrefix),
			EnvVars:     []string{fmt.Sprintf("PENS_%v_TLS_SKIP_VERIFY", upperPrefix)},
			Destination: &cfg.TLSSkipVerify,
			Value:       def.TLSSkipVerify,
		},
	}
}

// extractURL maps a mail URL to the transport coordinates. The path
// component of a retrieval URL names the mailbox.
func extractURL(u *url.URL) (string, int, session.TLSMode, string, error) {
	var defaultPort int
	var mode session.TLSMode

	switch strings.ToLower(u.Scheme) {
	case "imap":
		defaultPort = 143
		mode = session.TLSNone
	case "imaps":
		defaultPort = 993
		mode = session.TLSImplicit
	case "smtp":
		defaultPort = 587
		mode = session.TLSExplicit
	case "smtps":
		defaultPort = 465
		mode = session.TLSImplicit
	default:
		return "", 0, session.TLSNone, "", errInvalidScheme
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		var err error
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, session.TLSNone, "", err
		}
	}

	return u.Hostname(), port, mode, strings.TrimPrefix(u.Path, "/"), nil
}

func (cfg *MailConfig) resolveSecret(prefix string) (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}

	if cfg.PasswordFile != "" {
		pass, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(pass)), nil
	}

	return "", fmt.Errorf("at least one of the \"%v-password\" or \"%v-password-file\" flags is required", prefix, prefix)
}

func (cfg *MailConfig) tlsConfig() *tls.Config {
	if cfg.TLSSkipVerify {
		// #nosec G402
		return &tls.Config{InsecureSkipVerify: true}
	}
	return nil
}

// ResolveIMAP builds the retrieval client configuration and the mailbox
// named by the URL path, if any.
func (cfg *CliConfig) ResolveIMAP() (imap.Config, string, error) {
	u, err := url.Parse(cfg.Mail.URL)
	if err != nil {
		return imap.Config{}, "", err
	}

	host, port, mode, mailbox, err := extractURL(u)
	if err != nil {
		return imap.Config{}, "", err
	}

	if mode == session.TLSExplicit {
		return imap.Config{}, "", fmt.Errorf("scheme %q is not a retrieval scheme", u.Scheme)
	}

	return imap.Config{
		Host:           host,
		Port:           port,
		TLSMode:        mode,
		TLSConfig:      cfg.Mail.tlsConfig(),
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
	}, mailbox, nil
}

// ResolveSMTP builds the submission client configuration.
func (cfg *CliConfig) ResolveSMTP() (smtp.Config, error) {
	u, err := url.Parse(cfg.Mail.URL)
	if err != nil {
		return smtp.Config{}, err
	}

	host, port, mode, _, err := extractURL(u)
	if err != nil {
		return smtp.Config{}, err
	}

	if strings.ToLower(u.Scheme) == "imap" || strings.ToLower(u.Scheme) == "imaps" {
		return smtp.Config{}, fmt.Errorf("scheme %q is not a submission scheme", u.Scheme)
	}

	return smtp.Config{
		Host:           host,
		Port:           port,
		TLSMode:        mode,
		TLSConfig:      cfg.Mail.tlsConfig(),
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: cfg.CommandTimeout,
	}, nil
}

// ResolveCredential builds the credential for the configured auth
// method. XOAUTH2 runs the token manager, refreshing if necessary.
func (cfg *CliConfig) ResolveCredential() (mailauth.Credential, error) {
	switch strings.ToLower(cfg.Mail.AuthMethod) {
	case "", "password":
		secret, err := cfg.Mail.resolveSecret("mail")
		if err != nil {
			return nil, err
		}
		return mailauth.Password{Username: cfg.Mail.Username, Secret: secret}, nil

	case "xoauth2":
		mgrConfig, store, err := cfg.OAuth.Resolve()
		if err != nil {
			return nil, err
		}

		mgr := token.NewManager(mgrConfig, store)
		if err := mgr.EnsureValidToken(); err != nil {
			return nil, err
		}

		return mailauth.OAuthBearer{
			Username:    cfg.Mail.Username,
			AccessToken: mgr.AccessToken(),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported auth method: %v", cfg.Mail.AuthMethod)
	}
}
