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

package imap

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/velivolant/pens/session"
)

// State is the retrieval session's position in the
// connect → authenticate lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Config struct {
	Host string
	Port int

	// TLSMode is TLSImplicit for imaps, TLSNone for plaintext servers
	// (test servers, localhost relays).
	TLSMode   session.TLSMode
	TLSConfig *tls.Config

	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

// MailMessage is the minimal record the fetch operations produce. The
// parser only understands a handful of header prefixes; it is not a
// MIME parser. Priority is filled in by an external classifier, never
// here.
type MailMessage struct {
	ID       string
	From     string
	Subject  string
	Body     string
	Date     string
	IsRead   bool
	Priority int
}

// AuthError indicates the server rejected the presented credentials.
// The session stays connected; the caller may retry with different
// credentials.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected: %v", e.Detail)
}

// ProtocolError indicates the server's response did not match the
// expected framing. It points at a server incompatibility or a
// client-side parsing bug, not at bad credentials.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Detail)
}

// ResponseError is a tagged NO or BAD completion for a non-auth command.
type ResponseError struct {
	Status string
	Text   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("command failed: %v %v", e.Status, e.Text)
}
