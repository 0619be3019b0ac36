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

package token

import (
	"fmt"
	"time"
)

// Record is the persisted token state. It is only ever replaced as a
// whole: a refresh writes a complete new record, never a partial edit.
type Record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`

	// AcquiredAt is the epoch second the access token was obtained.
	// Files written by other tooling may instead carry expires_at;
	// either field may be in milliseconds (values above 1e12).
	AcquiredAt int64 `json:"acquired_at,omitempty"`
	ExpiresAt  int64 `json:"expires_at,omitempty"`
}

const (
	// DefaultExpiresIn is assumed when a record or refresh response
	// carries no expires_in.
	DefaultExpiresIn = 3600

	// ExpirySlack refreshes tokens this many seconds before their
	// actual expiry.
	ExpirySlack = 300

	// millisecondThreshold: epoch values above this are taken to be
	// milliseconds and divided down.
	millisecondThreshold = 1_000_000_000_000
)

// normalizeEpoch converts an epoch that may be in milliseconds to seconds.
func normalizeEpoch(v int64) int64 {
	if v > millisecondThreshold {
		return v / 1000
	}
	return v
}

// expiry returns the absolute expiry second for the record, or 0 when
// no expiry is known.
func (r *Record) expiry() int64 {
	if r.AcquiredAt != 0 {
		expiresIn := r.ExpiresIn
		if expiresIn == 0 {
			expiresIn = DefaultExpiresIn
		}
		return normalizeEpoch(r.AcquiredAt) + expiresIn
	}
	if r.ExpiresAt != 0 {
		return normalizeEpoch(r.ExpiresAt)
	}
	return 0
}

// IsExpired reports whether a token acquired at acquiredAt with the
// given lifetime needs refreshing at time now, applying ExpirySlack.
func IsExpired(now time.Time, acquiredAt, expiresIn int64) bool {
	return now.Unix() >= acquiredAt+expiresIn-ExpirySlack
}

// LoadError indicates the persisted token record is absent or unusable.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading token record %v: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigError indicates required refresh configuration is missing.
// There is nothing to retry; an operator has to fix the configuration.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oauth2 configuration incomplete: %v", e.Missing)
}

// RefreshError indicates the token endpoint rejected the refresh or the
// exchange failed. Code and Description carry the provider's error when
// the response body was parseable.
type RefreshError struct {
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *RefreshError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token refresh failed (HTTP %d): %v: %v", e.StatusCode, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token refresh failed (HTTP %d): %v", e.StatusCode, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	default:
		return fmt.Sprintf("token refresh failed (HTTP %d)", e.StatusCode)
	}
}

func (e *RefreshError) Unwrap() error { return e.Err }
