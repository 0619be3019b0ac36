package token

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/velivolant/pens/internal"
)

func TestIsExpired(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name       string
		acquiredAt int64
		expiresIn  int64
		expired    bool
	}{
		{"halfway", now.Unix() - 1800, 3600, false},
		{"past", now.Unix() - 3601, 3600, true},
		{"boundary", now.Unix() - 3600, 3600, true},
		{"fresh", now.Unix(), 3600, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expired, IsExpired(now, c.acquiredAt, c.expiresIn))
		})
	}
}

func TestRecordExpiry(t *testing.T) {
	t.Run("acquired_at_seconds", func(t *testing.T) {
		r := Record{AcquiredAt: 1700000000, ExpiresIn: 3600}
		assert.Equal(t, int64(1700003600), r.expiry())
	})

	t.Run("acquired_at_milliseconds", func(t *testing.T) {
		r := Record{AcquiredAt: 1700000000000, ExpiresIn: 3600}
		assert.Equal(t, int64(1700003600), r.expiry())
	})

	t.Run("acquired_at_default_lifetime", func(t *testing.T) {
		r := Record{AcquiredAt: 1700000000}
		assert.Equal(t, int64(1700003600), r.expiry())
	})

	t.Run("expires_at_seconds", func(t *testing.T) {
		r := Record{ExpiresAt: 1700003600}
		assert.Equal(t, int64(1700003600), r.expiry())
	})

	t.Run("expires_at_milliseconds", func(t *testing.T) {
		r := Record{ExpiresAt: 1700003600000}
		assert.Equal(t, int64(1700003600), r.expiry())
	})

	t.Run("no_expiry", func(t *testing.T) {
		r := Record{}
		assert.Equal(t, int64(0), r.expiry())
	})
}

func writeTokenFile(t *testing.T, contents string) *Store {
	p := path.Join(t.TempDir(), "token.json")
	assert.NoError(t, os.WriteFile(p, []byte(contents), 0600))
	return NewStore(p)
}

// tokenEndpoint is a mock provider; it records the last form it saw.
type tokenEndpoint struct {
	t        *testing.T
	status   int
	body     string
	requests int
	lastForm url.Values
}

func (e *tokenEndpoint) start() *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.requests++
		assert.Equal(e.t, http.MethodPost, r.Method)
		assert.Equal(e.t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(e.t, r.ParseForm())
		e.lastForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.status)
		_, _ = w.Write([]byte(e.body))
	}))
	e.t.Cleanup(srv.Close)
	return srv
}

func TestEnsureValidTokenFresh(t *testing.T) {
	// Scenario A: unexpired, no refresh token, no network traffic.
	now := time.Now().Unix()
	store := writeTokenFile(t, `{"access_token":"AT1","expires_in":3600,"acquired_at":`+itoa(now)+`}`)

	endpoint := &tokenEndpoint{t: t, status: 200, body: `{}`}
	srv := endpoint.start()

	m := NewManager(Config{ClientID: "cid", TokenURL: srv.URL, ClientSecret: "sec"}, store)

	if !assert.NoError(t, m.EnsureValidToken()) {
		t.FailNow()
	}
	assert.Equal(t, "AT1", m.AccessToken())
	assert.Equal(t, 0, endpoint.requests)
}

func TestEnsureValidTokenRefreshViaSecret(t *testing.T) {
	// Scenario B: expired record, refresh through the secret grant.
	store := writeTokenFile(t, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600,"acquired_at":1000000}`)

	endpoint := &tokenEndpoint{t: t, status: 200, body: `{"access_token":"AT2","expires_in":3600}`}
	srv := endpoint.start()

	m := NewManager(Config{
		ClientID:     "cid",
		TokenURL:     srv.URL,
		ClientSecret: "sec",
		Scope:        "https://outlook.office365.com/.default",
	}, store)

	if !assert.NoError(t, m.EnsureValidToken()) {
		t.FailNow()
	}

	assert.Equal(t, "AT2", m.AccessToken())
	assert.Equal(t, 1, endpoint.requests)
	assert.Equal(t, "refresh_token", endpoint.lastForm.Get("grant_type"))
	assert.Equal(t, "RT1", endpoint.lastForm.Get("refresh_token"))
	assert.Equal(t, "sec", endpoint.lastForm.Get("client_secret"))
	assert.Equal(t, "https://outlook.office365.com/.default", endpoint.lastForm.Get("scope"))
	assert.Empty(t, endpoint.lastForm.Get("client_assertion"))

	// Persisted record reflects the new token, keeps the old refresh
	// token, and stays owner-only.
	rec, err := store.Load()
	assert.NoError(t, err)
	assert.Equal(t, "AT2", rec.AccessToken)
	assert.Equal(t, "RT1", rec.RefreshToken)
	assert.NotZero(t, rec.AcquiredAt)

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(store.Path)
		assert.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())
	}
}

func TestEnsureValidTokenRefreshViaAssertion(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "refresh")
	dir := t.TempDir()
	certPath := path.Join(dir, "cert.pem")
	keyPath := path.Join(dir, "key.pem")
	assert.NoError(t, os.WriteFile(certPath, certPEM, 0600))
	assert.NoError(t, os.WriteFile(keyPath, keyPEM, 0600))

	store := writeTokenFile(t, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600,"acquired_at":1000000}`)

	endpoint := &tokenEndpoint{t: t, status: 200, body: `{"access_token":"AT2","refresh_token":"RT2","expires_in":7200}`}
	srv := endpoint.start()

	m := NewManager(Config{
		ClientID:        "cid",
		TokenURL:        srv.URL,
		CertificateFile: certPath,
		PrivateKeyFile:  keyPath,
		ClientSecret:    "sec",
	}, store)

	if !assert.NoError(t, m.EnsureValidToken()) {
		t.FailNow()
	}

	assert.Equal(t, "AT2", m.AccessToken())
	assert.Equal(t, "urn:ietf:params:oauth:client-assertion-type:jwt-bearer", endpoint.lastForm.Get("client_assertion_type"))
	assert.NotEmpty(t, endpoint.lastForm.Get("client_assertion"))
	assert.Empty(t, endpoint.lastForm.Get("client_secret"))

	// A rotated refresh token replaces the stored one.
	rec, err := store.Load()
	assert.NoError(t, err)
	assert.Equal(t, "RT2", rec.RefreshToken)
	assert.Equal(t, int64(7200), rec.ExpiresIn)
}

func TestEnsureValidTokenCertificateFallback(t *testing.T) {
	// Scenario C: certificate path doesn't exist, secret grant succeeds.
	store := writeTokenFile(t, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600,"acquired_at":1000000}`)

	endpoint := &tokenEndpoint{t: t, status: 200, body: `{"access_token":"AT2","expires_in":3600}`}
	srv := endpoint.start()

	m := NewManager(Config{
		ClientID:        "cid",
		TokenURL:        srv.URL,
		CertificateFile: path.Join(t.TempDir(), "missing-cert.pem"),
		PrivateKeyFile:  path.Join(t.TempDir(), "missing-key.pem"),
		ClientSecret:    "sec",
	}, store)

	if !assert.NoError(t, m.EnsureValidToken()) {
		t.FailNow()
	}
	assert.Equal(t, "AT2", m.AccessToken())
	assert.Equal(t, "sec", endpoint.lastForm.Get("client_secret"))
	assert.Empty(t, endpoint.lastForm.Get("client_assertion"))
}

func TestEnsureValidTokenNoGrantConfigured(t *testing.T) {
	store := writeTokenFile(t, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600,"acquired_at":1000000}`)

	m := NewManager(Config{ClientID: "cid", TokenURL: "http://localhost:1/token"}, store)

	err := m.EnsureValidToken()
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEnsureValidTokenRefreshRejected(t *testing.T) {
	store := writeTokenFile(t, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600,"acquired_at":1000000}`)

	endpoint := &tokenEndpoint{
		t:      t,
		status: 400,
		body:   `{"error":"invalid_grant","error_description":"AADSTS50173: expired"}`,
	}
	srv := endpoint.start()

	m := NewManager(Config{ClientID: "cid", TokenURL: srv.URL, ClientSecret: "sec"}, store)

	err := m.EnsureValidToken()
	var refreshErr *RefreshError
	if !assert.ErrorAs(t, err, &refreshErr) {
		t.FailNow()
	}
	assert.Equal(t, 400, refreshErr.StatusCode)
	assert.Equal(t, "invalid_grant", refreshErr.Code)
	assert.Equal(t, "AADSTS50173: expired", refreshErr.Description)

	// The failed refresh must not clobber the stored record.
	rec, err2 := store.Load()
	assert.NoError(t, err2)
	assert.Equal(t, "AT1", rec.AccessToken)
}

func TestEnsureValidTokenMalformedResponse(t *testing.T) {
	store := writeTokenFile(t, `{"access_token":"AT1","refresh_token":"RT1","expires_in":3600,"acquired_at":1000000}`)

	endpoint := &tokenEndpoint{t: t, status: 200, body: `{"expires_in":3600}`}
	srv := endpoint.start()

	m := NewManager(Config{ClientID: "cid", TokenURL: srv.URL, ClientSecret: "sec"}, store)

	err := m.EnsureValidToken()
	var refreshErr *RefreshError
	assert.ErrorAs(t, err, &refreshErr)
}

func TestEnsureValidTokenExpiredNoRefreshToken(t *testing.T) {
	store := writeTokenFile(t, `{"access_token":"AT1","expires_in":3600,"acquired_at":1000000}`)

	m := NewManager(Config{ClientID: "cid", TokenURL: "http://localhost:1/token", ClientSecret: "sec"}, store)

	err := m.EnsureValidToken()
	var refreshErr *RefreshError
	assert.ErrorAs(t, err, &refreshErr)
}

func TestEnsureValidTokenNoKnownExpiry(t *testing.T) {
	// No refresh token and no expiry information: usable as-is.
	store := writeTokenFile(t, `{"access_token":"AT1"}`)

	m := NewManager(Config{}, store)
	assert.NoError(t, m.EnsureValidToken())
	assert.Equal(t, "AT1", m.AccessToken())
}

func TestAuthorizeURL(t *testing.T) {
	u, err := url.Parse(AuthorizeURL("cid", "tenant", "http://localhost/cb", "Mail.Read"))
	if !assert.NoError(t, err) {
		t.FailNow()
	}

	assert.Contains(t, u.Path, "tenant")
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Equal(t, "Mail.Read", q.Get("scope"))
	assert.Equal(t, "query", q.Get("response_mode"))
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
