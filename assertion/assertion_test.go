package assertion

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"

	"github.com/velivolant/pens/internal"
)

func writeMaterial(t *testing.T, certPEM, keyPEM []byte) (string, string) {
	dir := t.TempDir()
	certPath := path.Join(dir, "cert.pem")
	keyPath := path.Join(dir, "key.pem")

	assert.NoError(t, os.WriteFile(certPath, certPEM, 0600))
	assert.NoError(t, os.WriteFile(keyPath, keyPEM, 0600))
	return certPath, keyPath
}

func TestThumbprint(t *testing.T) {
	certPEM, _ := internal.GenerateRSACertificate(t, "thumbprint-a")

	tp1, err := Thumbprint(certPEM)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	tp2, err := Thumbprint(certPEM)
	assert.NoError(t, err)
	assert.Equal(t, tp1, tp2)

	// base64url, no padding
	assert.NotContains(t, tp1, "=")
	assert.NotContains(t, tp1, "+")
	assert.NotContains(t, tp1, "/")

	raw, err := base64.RawURLEncoding.DecodeString(tp1)
	assert.NoError(t, err)
	assert.Len(t, raw, 20)

	otherPEM, _ := internal.GenerateRSACertificate(t, "thumbprint-b")
	tp3, err := Thumbprint(otherPEM)
	assert.NoError(t, err)
	assert.NotEqual(t, tp1, tp3)
}

func TestThumbprintInvalid(t *testing.T) {
	_, err := Thumbprint([]byte("not a pem"))
	assert.Error(t, err)

	_, err = Thumbprint([]byte("-----BEGIN CERTIFICATE-----\nZm9v\n-----END CERTIFICATE-----\n"))
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "assertion")
	certPath, keyPath := writeMaterial(t, certPEM, keyPEM)

	now := time.Now()
	b := &Builder{Now: func() time.Time { return now }}

	const tokenURL = "https://login.microsoftonline.com/tenant/oauth2/v2.0/token"
	signed, err := b.Build("client-id", tokenURL, certPath, keyPath)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	parts := strings.Split(signed, ".")
	if !assert.Len(t, parts, 3) {
		t.FailNow()
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	var header map[string]interface{}
	assert.NoError(t, json.Unmarshal(headerJSON, &header))
	assert.Equal(t, "RS256", header["alg"])
	assert.Equal(t, "JWT", header["typ"])

	wantTp, err := Thumbprint(certPEM)
	assert.NoError(t, err)
	assert.Equal(t, wantTp, header["x5t"])

	// The signature must verify against the certificate's own key, and
	// the claims must match what the token endpoint checks.
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}))
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	assert.True(t, tok.Valid)
	assert.Equal(t, "client-id", claims.Issuer)
	assert.Equal(t, "client-id", claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{tokenURL}, claims.Audience)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Unix(), claims.NotBefore.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestBuildFreshJTI(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "assertion")
	certPath, keyPath := writeMaterial(t, certPEM, keyPEM)

	b := &Builder{}
	s1, err := b.Build("client-id", "https://example.com/token", certPath, keyPath)
	assert.NoError(t, err)
	s2, err := b.Build("client-id", "https://example.com/token", certPath, keyPath)
	assert.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func TestBuildFailures(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "assertion")
	certPath, keyPath := writeMaterial(t, certPEM, keyPEM)

	b := &Builder{}

	t.Run("missing_certificate", func(t *testing.T) {
		_, err := b.Build("client-id", "https://example.com/token", path.Join(t.TempDir(), "nope.pem"), keyPath)
		var buildErr *BuildError
		assert.ErrorAs(t, err, &buildErr)
	})

	t.Run("missing_key", func(t *testing.T) {
		_, err := b.Build("client-id", "https://example.com/token", certPath, path.Join(t.TempDir(), "nope.pem"))
		var buildErr *BuildError
		assert.ErrorAs(t, err, &buildErr)
	})

	t.Run("garbage_key", func(t *testing.T) {
		badKey := path.Join(t.TempDir(), "key.pem")
		assert.NoError(t, os.WriteFile(badKey, []byte("garbage"), 0600))

		_, err := b.Build("client-id", "https://example.com/token", certPath, badKey)
		var buildErr *BuildError
		assert.ErrorAs(t, err, &buildErr)
	})

	t.Run("garbage_certificate", func(t *testing.T) {
		badCert := path.Join(t.TempDir(), "cert.pem")
		assert.NoError(t, os.WriteFile(badCert, certPEM[:40], 0600))

		_, err := b.Build("client-id", "https://example.com/token", badCert, keyPath)
		var buildErr *BuildError
		assert.ErrorAs(t, err, &buildErr)
	})
}
