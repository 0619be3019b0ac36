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

// Package session provides the blocking transport underneath the mail
// protocol clients: one TCP connection, optionally encrypted either at
// connect time or via a later in-protocol upgrade, with a receive
// primitive that accumulates bytes until the caller recognises a
// complete protocol message.
package session

import (
	"errors"
	"net"
	"strconv"
	"time"

	"crypto/tls"

	log "github.com/sirupsen/logrus"
)

var errNotConnected = errors.New("session: not connected")

// Session owns a single connection for its lifetime. It is not safe for
// concurrent use; a protocol client serialises all access to it.
type Session struct {
	cfg  Config
	conn net.Conn
	host string
	addr string
	mode TLSMode
}

func New(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Connect resolves host, opens a TCP stream to host:port and, for
// TLSImplicit, performs the TLS handshake before returning.
func (s *Session) Connect(host string, port int, mode TLSMode) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	log.WithFields(log.Fields{
		"addr":     addr,
		"tls_mode": mode,
	}).Trace("session_connect")

	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return &ResolveError{Host: host, Err: err}
		}
		return &DialError{Addr: addr, Err: err}
	}

	s.conn = conn
	s.host = host
	s.addr = addr
	s.mode = mode

	if mode == TLSImplicit {
		if err := s.handshake(); err != nil {
			_ = conn.Close()
			s.conn = nil
			return err
		}
	}

	return nil
}

// UpgradeTLS wraps the established plaintext connection in TLS. The
// caller must have already issued the protocol's upgrade command and
// consumed its positive reply.
func (s *Session) UpgradeTLS() error {
	if s.conn == nil {
		return errNotConnected
	}

	if _, ok := s.conn.(*tls.Conn); ok {
		return &TLSError{Addr: s.addr, Err: errors.New("already encrypted")}
	}

	return s.handshake()
}

func (s *Session) handshake() error {
	cfg := s.cfg.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = s.host
	}

	tc := tls.Client(s.conn, cfg)
	if s.cfg.IOTimeout != 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
		defer func() { _ = s.conn.SetDeadline(time.Time{}) }()
	}

	if err := tc.Handshake(); err != nil {
		return &TLSError{Addr: s.addr, Err: err}
	}

	log.WithField("addr", s.addr).Trace("session_tls_established")

	s.conn = tc
	return nil
}

// Send writes p in full or fails.
func (s *Session) Send(p []byte) error {
	if s.conn == nil {
		return errNotConnected
	}

	if s.cfg.IOTimeout != 0 {
		_ = s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
		defer func() { _ = s.conn.SetDeadline(time.Time{}) }()
	}

	// net.Conn.Write already loops until everything is written or an
	// error occurs, so a short write always carries an error.
	_, err := s.conn.Write(p)
	return err
}

// ReceiveUntil reads into an accumulating buffer, invoking complete
// after every read, and returns the buffer once complete reports true.
// A single read yielding a partial message is the normal case; the
// buffer grows across as many reads as the server needs.
func (s *Session) ReceiveUntil(complete func([]byte) bool) ([]byte, error) {
	if s.conn == nil {
		return nil, errNotConnected
	}

	var buf []byte
	chunk := make([]byte, 4096)

	for {
		if s.cfg.IOTimeout != 0 {
			_ = s.conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))
		}

		n, err := s.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if complete(buf) {
				if s.cfg.IOTimeout != 0 {
					_ = s.conn.SetDeadline(time.Time{})
				}
				return buf, nil
			}
		}
		if err != nil {
			if s.cfg.IOTimeout != 0 {
				_ = s.conn.SetDeadline(time.Time{})
			}
			return buf, err
		}
	}
}

func (s *Session) Connected() bool {
	return s.conn != nil
}

func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	return err
}
