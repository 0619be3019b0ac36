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
	"time"
)

var (
	errInvalidScheme = errors.New("invalid uri scheme")
)

// MailConfig configures one mail server connection, retrieval or
// submission depending on the URL scheme.
type MailConfig struct {
	URL           string `json:"url"`
	Username      string `json:"username"`
	Password      string `json:"-"`
	PasswordFile  string `json:"password_file"`
	AuthMethod    string `json:"auth_method"`
	TLSSkipVerify bool   `json:"tls_skip_verify"`
}

// OAuth2Config configures the token manager backing XOAUTH2 auth.
type OAuth2Config struct {
	ClientID        string `json:"client_id"`
	TenantID        string `json:"tenant_id"`
	Scope           string `json:"scope"`
	ClientSecret    string `json:"-"`
	CertificateFile string `json:"certificate_file"`
	PrivateKeyFile  string `json:"private_key_file"`
	TokenFile       string `json:"token_file"`
	RedirectURI     string `json:"redirect_uri"`
}

type CliConfig struct {
	Mail           MailConfig    `json:"mail"`
	OAuth          OAuth2Config  `json:"oauth"`
	LogLevel       string        `json:"log_level"`
	LogFormat      string        `json:"log_format"`
	DialTimeout    time.Duration `json:"dial_timeout"`
	CommandTimeout time.Duration `json:"command_timeout"`
	ConnectRetries int           `json:"connect_retries"`
}
