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
	"errors"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2/microsoft"

	"github.com/velivolant/pens/token"
)

func DefaultOAuth2Config() OAuth2Config {
	return OAuth2Config{
		TenantID:    "common",
		Scope:       "https://outlook.office365.com/.default offline_access",
		TokenFile:   "tokens.json",
		RedirectURI: "http://localhost:8080",
	}
}

func (cfg *OAuth2Config) Parameters() []cli.Flag {
	def := DefaultOAuth2Config()

	return []cli.Flag{
		&cli.StringFlag{
			Name:        "oauth2-client-id",
			Usage:       "oauth2 application (client) id",
			EnvVars:     []string{"PENS_OAUTH2_CLIENT_ID"},
			Destination: &cfg.ClientID,
			Value:       def.ClientID,
		},
		&cli.StringFlag{
			Name:        "oauth2-tenant-id",
			Usage:       "oauth2 directory (tenant) id",
			EnvVars:     []string{"PENS_OAUTH2_TENANT_ID"},
			Destination: &cfg.TenantID,
			Value:       def.TenantID,
		},
		&cli.StringFlag{
			Name:        "oauth2-scope",
			Usage:       "oauth2 scope",
			EnvVars:     []string{"PENS_OAUTH2_SCOPE"},
			Destination: &cfg.Scope,
			Value:       def.Scope,
		},
		&cli.StringFlag{
			Name:        "oauth2-client-secret",
			Usage:       "oauth2 client secret",
			EnvVars:     []string{"PENS_OAUTH2_CLIENT_SECRET"},
			Destination: &cfg.ClientSecret,
			Value:       def.ClientSecret,
		},
		&cli.StringFlag{
			Name:        "oauth2-certificate-file",
			Usage:       "oauth2 client certificate (pem)",
			EnvVars:     []string{"PENS_OAUTH2_CERTIFICATE_FILE"},
			Destination: &cfg.CertificateFile,
			Value:       def.CertificateFile,
		},
		&cli.StringFlag{
			Name:        "oauth2-private-key-file",
			Usage:       "oauth2 client private key (pem)",
			EnvVars:     []string{"PENS_OAUTH2_PRIVATE_KEY_FILE"},
			Destination: &cfg.PrivateKeyFile,
			Value:       def.PrivateKeyFile,
		},
		&cli.StringFlag{
			Name:        "oauth2-token-file",
			Usage:       "oauth2 token store path",
			EnvVars:     []string{"PENS_OAUTH2_TOKEN_FILE"},
			Destination: &cfg.TokenFile,
			Value:       def.TokenFile,
		},
		&cli.StringFlag{
			Name:        "oauth2-redirect-uri",
			Usage:       "oauth2 redirect uri for the authorize url",
			EnvVars:     []string{"PENS_OAUTH2_REDIRECT_URI"},
			Destination: &cfg.RedirectURI,
			Value:       def.RedirectURI,
		},
	}
}

// Resolve validates the configuration and builds the token manager's
// config and store.
func (cfg *OAuth2Config) Resolve() (token.Config, *token.Store, error) {
	if cfg.ClientID == "" {
		return token.Config{}, nil, errors.New("\"oauth2-client-id\" is required when using xoauth2 auth")
	}

	tenant := cfg.TenantID
	if tenant == "" {
		tenant = DefaultOAuth2Config().TenantID
	}

	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		tokenFile = DefaultOAuth2Config().TokenFile
	}

	return token.Config{
		ClientID:        cfg.ClientID,
		TokenURL:        microsoft.AzureADEndpoint(tenant).TokenURL,
		Scope:           cfg.Scope,
		CertificateFile: cfg.CertificateFile,
		PrivateKeyFile:  cfg.PrivateKeyFile,
		ClientSecret:    cfg.ClientSecret,
	}, token.NewStore(tokenFile), nil
}
