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

// Package assertion builds the signed JWT an application presents to
// the identity provider's token endpoint in place of a client secret.
package assertion

import (
	"crypto/sha1" // #nosec G505 -- x5t is defined as SHA-1 over the DER certificate
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/xid"
)

// BuildError reports that the assertion could not be constructed:
// unreadable or unparsable certificate/key material, or a signing
// failure. The token manager treats it as "certificate path unusable"
// and falls back to the client secret when one is configured.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("building client assertion (%v): %v", e.Path, e.Err)
	}
	return fmt.Sprintf("building client assertion: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Thumbprint computes the base64url (unpadded) SHA-1 digest of the DER
// certificate, the value the provider expects in the x5t header. A
// thumbprint that doesn't match the uploaded certificate fails
// authentication at the provider with no local symptom, so this must
// digest the DER bytes exactly as uploaded.
func Thumbprint(certPEM []byte) (string, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", errors.New("no PEM block found in certificate")
	}

	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return "", fmt.Errorf("parsing certificate: %w", err)
	}

	sum := sha1.Sum(block.Bytes) // #nosec G401
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Builder signs RS256 client assertions. The zero value is usable;
// Now exists so tests can pin the clock.
type Builder struct {
	Now func() time.Time
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Build reads the certificate and private key, computes the x5t
// thumbprint, and returns a signed assertion valid for one hour with a
// fresh jti. Each assertion is intended for exactly one token request.
func (b *Builder) Build(clientID, tokenURL, certPath, keyPath string) (string, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return "", &BuildError{Path: certPath, Err: err}
	}

	thumbprint, err := Thumbprint(certPEM)
	if err != nil {
		return "", &BuildError{Path: certPath, Err: err}
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return "", &BuildError{Path: keyPath, Err: err}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return "", &BuildError{Path: keyPath, Err: err}
	}

	now := b.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{tokenURL},
		Issuer:    clientID,
		Subject:   clientID,
		ID:        xid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	tok.Header["x5t"] = thumbprint

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", &BuildError{Path: keyPath, Err: err}
	}

	return signed, nil
}
