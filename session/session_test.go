package session

import (
	"bytes"
	"crypto/tls"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/velivolant/pens/internal"
)

func splitAddr(t *testing.T, addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	port, err := strconv.Atoi(portStr)
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	return host, port
}

func TestConnectResolveFailure(t *testing.T) {
	s := New(Config{DialTimeout: 5 * time.Second})

	err := s.Connect("does-not-exist.invalid", 143, TLSNone)
	var resolveErr *ResolveError
	assert.ErrorAs(t, err, &resolveErr)
	assert.False(t, s.Connected())
}

func TestConnectRefused(t *testing.T) {
	// Grab a port that is guaranteed closed.
	l, err := net.Listen("tcp", "localhost:0")
	if !assert.NoError(t, err) {
		t.FailNow()
	}
	host, port := splitAddr(t, l.Addr().String())
	_ = l.Close()

	s := New(Config{DialTimeout: 5 * time.Second})

	err = s.Connect(host, port, TLSNone)
	var dialErr *DialError
	assert.ErrorAs(t, err, &dialErr)
	assert.False(t, s.Connected())
}

func TestSendReceive(t *testing.T) {
	addr := internal.ServeScript(t, func(c *internal.ScriptConn) {
		assert.Equal(t, "PING", c.ReadLine())
		c.WriteLine("PONG")
	})
	host, port := splitAddr(t, addr)

	s := New(Config{IOTimeout: 5 * time.Second})
	if !assert.NoError(t, s.Connect(host, port, TLSNone)) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })

	assert.NoError(t, s.Send([]byte("PING\r\n")))

	buf, err := s.ReceiveUntil(func(b []byte) bool { return bytes.Contains(b, []byte("\r\n")) })
	assert.NoError(t, err)
	assert.Equal(t, "PONG\r\n", string(buf))
}

func TestReceiveUntilAccumulates(t *testing.T) {
	// One protocol message delivered across several TCP segments: the
	// predicate must see the buffer grow until the terminator arrives.
	addr := internal.ServeScript(t, func(c *internal.ScriptConn) {
		c.WriteChunks("abc", "def", "ghi\r", "\n")
	})
	host, port := splitAddr(t, addr)

	s := New(Config{IOTimeout: 5 * time.Second})
	if !assert.NoError(t, s.Connect(host, port, TLSNone)) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })

	var calls int
	buf, err := s.ReceiveUntil(func(b []byte) bool {
		calls++
		return bytes.HasSuffix(b, []byte("\r\n"))
	})
	assert.NoError(t, err)
	assert.Equal(t, "abcdefghi\r\n", string(buf))
	assert.Greater(t, calls, 1)
}

func TestImplicitTLS(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "localhost")
	serverCfg := internal.ServerTLSConfig(t, certPEM, keyPEM)

	addr := internal.ServeScript(t, func(c *internal.ScriptConn) {
		c.StartTLS(serverCfg)
		c.WriteLine("* OK secure")
	})
	host, port := splitAddr(t, addr)

	s := New(Config{
		IOTimeout: 5 * time.Second,
		TLSConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
	})

	if !assert.NoError(t, s.Connect(host, port, TLSImplicit)) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })

	buf, err := s.ReceiveUntil(func(b []byte) bool { return bytes.Contains(b, []byte("\r\n")) })
	assert.NoError(t, err)
	assert.Equal(t, "* OK secure\r\n", string(buf))
}

func TestExplicitUpgrade(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "localhost")
	serverCfg := internal.ServerTLSConfig(t, certPEM, keyPEM)

	addr := internal.ServeScript(t, func(c *internal.ScriptConn) {
		c.WriteLine("220 ready")
		assert.Equal(t, "STARTTLS", c.ReadLine())
		c.WriteLine("220 go ahead")
		c.StartTLS(serverCfg)
		assert.Equal(t, "HELLO", c.ReadLine())
		c.WriteLine("250 hello again")
	})
	host, port := splitAddr(t, addr)

	s := New(Config{
		IOTimeout: 5 * time.Second,
		TLSConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
	})

	if !assert.NoError(t, s.Connect(host, port, TLSExplicit)) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })

	crlf := func(b []byte) bool { return bytes.HasSuffix(b, []byte("\r\n")) }

	_, err := s.ReceiveUntil(crlf)
	assert.NoError(t, err)

	assert.NoError(t, s.Send([]byte("STARTTLS\r\n")))
	_, err = s.ReceiveUntil(crlf)
	assert.NoError(t, err)

	if !assert.NoError(t, s.UpgradeTLS()) {
		t.FailNow()
	}

	assert.NoError(t, s.Send([]byte("HELLO\r\n")))
	buf, err := s.ReceiveUntil(crlf)
	assert.NoError(t, err)
	assert.Equal(t, "250 hello again\r\n", string(buf))
}

func TestUpgradeTwiceFails(t *testing.T) {
	certPEM, keyPEM := internal.GenerateRSACertificate(t, "localhost")
	serverCfg := internal.ServerTLSConfig(t, certPEM, keyPEM)

	addr := internal.ServeScript(t, func(c *internal.ScriptConn) {
		c.StartTLS(serverCfg)
		// Keep the connection open while the client tries again.
		c.ReadLine()
	})
	host, port := splitAddr(t, addr)

	s := New(Config{
		IOTimeout: 5 * time.Second,
		TLSConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402
	})

	if !assert.NoError(t, s.Connect(host, port, TLSImplicit)) {
		t.FailNow()
	}
	t.Cleanup(func() { _ = s.Close() })

	err := s.UpgradeTLS()
	var tlsErr *TLSError
	assert.ErrorAs(t, err, &tlsErr)
}

func TestNotConnected(t *testing.T) {
	s := New(Config{})

	assert.Error(t, s.Send([]byte("x")))
	_, err := s.ReceiveUntil(func([]byte) bool { return true })
	assert.Error(t, err)
	assert.Error(t, s.UpgradeTLS())
	assert.NoError(t, s.Close())
}
