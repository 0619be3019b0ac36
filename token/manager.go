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

// Package token persists, validates and refreshes OAuth2 tokens. A
// refresh authenticates the application either with a certificate-backed
// client assertion or with a client secret, in that order of preference.
package token

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/velivolant/pens/assertion"
)

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// DefaultHTTPTimeout bounds the refresh request so a stalled endpoint
// fails deterministically instead of blocking the session forever.
const DefaultHTTPTimeout = 30 * time.Second

type Config struct {
	ClientID string
	TokenURL string
	Scope    string

	// Certificate-assertion grant material. Both must be set for the
	// certificate strategy to be attempted.
	CertificateFile string
	PrivateKeyFile  string

	// ClientSecret is the fallback grant credential.
	ClientSecret string

	HTTPTimeout time.Duration
}

// Manager owns the current token record and is the sole writer of the
// persisted store. It is not safe for concurrent use.
type Manager struct {
	cfg    Config
	store  *Store
	rec    Record
	loaded bool

	builder *assertion.Builder
	client  *http.Client
	now     func() time.Time
}

func NewManager(cfg Config, store *Store) *Manager {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}

	return &Manager{
		cfg:     cfg,
		store:   store,
		builder: &assertion.Builder{},
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// AccessToken returns the current access token. Only meaningful after a
// successful EnsureValidToken.
func (m *Manager) AccessToken() string {
	return m.rec.AccessToken
}

// EnsureValidToken loads the persisted record on first use and
// refreshes it when it is expired or expiring within ExpirySlack.
// Records without a refresh token are usable as long as they are
// unexpired or carry no known expiry.
func (m *Manager) EnsureValidToken() error {
	if !m.loaded {
		rec, err := m.store.Load()
		if err != nil {
			return err
		}
		m.rec = rec
		m.loaded = true
	}

	now := m.now().Unix()
	expiresAt := m.rec.expiry()

	if m.rec.RefreshToken == "" {
		if expiresAt == 0 || now < expiresAt {
			return nil
		}
		return &RefreshError{Err: errNoRefreshToken}
	}

	if expiresAt != 0 && now < expiresAt-ExpirySlack {
		return nil
	}

	log.WithFields(log.Fields{
		"expires_at": expiresAt,
		"now":        now,
	}).Info("token_refresh_required")

	return m.refresh()
}

var errNoRefreshToken = noRefreshTokenError{}

type noRefreshTokenError struct{}

func (noRefreshTokenError) Error() string {
	return "access token expired and no refresh token is available"
}

func (m *Manager) refresh() error {
	if m.cfg.ClientID == "" {
		return &ConfigError{Missing: "client_id"}
	}
	if m.cfg.TokenURL == "" {
		return &ConfigError{Missing: "token endpoint"}
	}

	form := url.Values{}
	form.Set("client_id", m.cfg.ClientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", m.rec.RefreshToken)
	if m.cfg.Scope != "" {
		form.Set("scope", m.cfg.Scope)
	}

	switch {
	case m.cfg.CertificateFile != "" && m.cfg.PrivateKeyFile != "":
		signed, err := m.builder.Build(m.cfg.ClientID, m.cfg.TokenURL, m.cfg.CertificateFile, m.cfg.PrivateKeyFile)
		if err == nil {
			log.WithField("certificate", m.cfg.CertificateFile).Debug("token_refresh_assertion_grant")
			form.Set("client_assertion_type", clientAssertionType)
			form.Set("client_assertion", signed)
			break
		}

		// Unusable certificate material falls back to the secret when
		// one is configured instead of failing the refresh.
		if m.cfg.ClientSecret == "" {
			return err
		}
		log.WithError(err).Warn("token_assertion_build_failed_falling_back")
		fallthrough
	case m.cfg.ClientSecret != "":
		log.Debug("token_refresh_secret_grant")
		form.Set("client_secret", m.cfg.ClientSecret)
	default:
		return &ConfigError{Missing: "either certificate and private key, or client secret"}
	}

	return m.requestToken(form)
}

func (m *Manager) requestToken(form url.Values) error {
	resp, err := m.client.Post(m.cfg.TokenURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return &RefreshError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RefreshError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		// The body may not be JSON at all; keep whatever parsed.
		_ = json.Unmarshal(body, &pe)

		logProviderHints(pe.Error)

		return &RefreshError{
			StatusCode:  resp.StatusCode,
			Code:        pe.Error,
			Description: pe.Description,
		}
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return &RefreshError{StatusCode: resp.StatusCode, Err: err}
	}

	if tr.AccessToken == "" {
		return &RefreshError{StatusCode: resp.StatusCode, Err: errResponseMissingToken}
	}

	expiresIn := tr.ExpiresIn
	if expiresIn == 0 {
		expiresIn = DefaultExpiresIn
	}

	now := m.now().Unix()
	rec := Record{
		AccessToken:  tr.AccessToken,
		RefreshToken: m.rec.RefreshToken,
		ExpiresIn:    expiresIn,
		AcquiredAt:   now,
	}
	if tr.RefreshToken != "" {
		rec.RefreshToken = tr.RefreshToken
	}

	if err := m.store.Save(rec); err != nil {
		return err
	}

	m.rec = rec

	log.WithFields(log.Fields{
		"expires_in": expiresIn,
		"expires_at": now + expiresIn,
	}).Info("token_refreshed")

	return nil
}

var errResponseMissingToken = responseMissingTokenError{}

type responseMissingTokenError struct{}

func (responseMissingTokenError) Error() string {
	return "token response contains no access_token"
}

// logProviderHints translates the Azure AD error codes operators hit
// most often into actionable log lines.
func logProviderHints(code string) {
	switch code {
	case "":
	case "AADSTS700016":
		log.Error("application not found in tenant; verify client id and tenant id")
	case "AADSTS7000215":
		log.Error("invalid client secret")
	case "AADSTS7000218":
		log.Error("client assertion rejected; verify the certificate is uploaded and its thumbprint matches")
	case "AADSTS70011":
		log.Error("invalid scope; verify the configured scopes")
	case "invalid_grant", "AADSTS40016", "AADSTS50173":
		log.Error("refresh token expired or revoked; re-run the authorization flow")
	default:
		log.WithField("code", code).Error("token_endpoint_error")
	}
}
