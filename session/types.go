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

package session

import (
	"crypto/tls"
	"fmt"
	"time"
)

// TLSMode controls how a session negotiates encryption.
type TLSMode int

const (
	// TLSNone leaves the connection in plaintext.
	TLSNone TLSMode = iota
	// TLSImplicit performs the TLS handshake immediately after the TCP
	// connection is established, before any protocol bytes are exchanged.
	TLSImplicit
	// TLSExplicit connects in plaintext; the protocol client issues its
	// upgrade command and then calls UpgradeTLS.
	TLSExplicit
)

func (m TLSMode) String() string {
	switch m {
	case TLSNone:
		return "none"
	case TLSImplicit:
		return "implicit"
	case TLSExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

type Config struct {
	// DialTimeout bounds the TCP connect. Zero means no timeout.
	DialTimeout time.Duration

	// IOTimeout is applied as a deadline before every read and write.
	// Zero means reads and writes may block indefinitely.
	IOTimeout time.Duration

	// TLSConfig is used for both implicit and explicit handshakes.
	// ServerName is defaulted to the connected host when unset.
	TLSConfig *tls.Config
}

// ResolveError indicates the hostname could not be resolved.
type ResolveError struct {
	Host string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Host, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// DialError indicates the TCP connection could not be established.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("connecting to %v: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// TLSError indicates the TLS handshake failed.
type TLSError struct {
	Addr string
	Err  error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("tls handshake with %v: %v", e.Addr, e.Err)
}

func (e *TLSError) Unwrap() error { return e.Err }
