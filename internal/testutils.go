package internal

import (
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
)

// BuildTestIMAPServer starts an in-process IMAP server backed by the
// memory backend, pre-authenticated with username/password and an empty
// INBOX. Protocol-correct clients can exercise LOGIN, SELECT, LIST and
// friends against it without canned responses.
func BuildTestIMAPServer(t *testing.T) (*server.Server, string, *memory.Mailbox) {
	be := memory.New()
	user, err := be.Login(nil, "username", "password")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mb, err := user.GetMailbox("INBOX")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = nil

	s := server.New(be)
	t.Cleanup(func() { _ = s.Close() })

	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	go func() { err = s.Serve(l) }()

	return s, l.Addr().String(), mailbox
}

// ScriptConn is one accepted connection of a scripted server. Handlers
// read client commands and write back exact server lines, which keeps
// framing tests byte-deterministic.
type ScriptConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// ReadLine returns the next CRLF-terminated line without its terminator.
func (c *ScriptConn) ReadLine() string {
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Logf("script server read: %v", err)
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

// WriteLine sends s followed by CRLF.
func (c *ScriptConn) WriteLine(s string) {
	if _, err := c.conn.Write([]byte(s + "\r\n")); err != nil {
		c.t.Logf("script server write: %v", err)
	}
}

// WriteChunks sends raw byte chunks with a small pause between them, to
// force the client through multiple reads for a single message.
func (c *ScriptConn) WriteChunks(chunks ...string) {
	for _, chunk := range chunks {
		if _, err := c.conn.Write([]byte(chunk)); err != nil {
			c.t.Logf("script server write: %v", err)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// StartTLS flips the server side of the connection to TLS, mirroring a
// client-side explicit upgrade.
func (c *ScriptConn) StartTLS(cfg *tls.Config) {
	tc := tls.Server(c.conn, cfg)
	if err := tc.Handshake(); err != nil {
		c.t.Logf("script server handshake: %v", err)
		return
	}
	c.conn = tc
	c.r = bufio.NewReader(tc)
}

// ServeScript listens on an ephemeral port and serves exactly one
// connection with fn. It returns the listen address.
func ServeScript(t *testing.T, fn func(c *ScriptConn)) string {
	l, err := net.Listen("tcp", "localhost:0")
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	t.Cleanup(func() { _ = l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		fn(&ScriptConn{t: t, conn: conn, r: bufio.NewReader(conn)})
	}()

	return l.Addr().String()
}

// GenerateRSACertificate returns a fresh self-signed certificate and
// its RSA private key, both PEM-encoded.
func GenerateRSACertificate(t *testing.T, commonName string) ([]byte, []byte) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{commonName},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM
}

// ServerTLSConfig builds a *tls.Config usable by a scripted server's
// StartTLS from PEM material.
func ServerTLSConfig(t *testing.T, certPEM, keyPEM []byte) *tls.Config {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	assert.NoError(t, err)
	if err != nil {
		t.FailNow()
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}
