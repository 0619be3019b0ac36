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

package smtp

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/velivolant/pens/session"
)

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
		return "unknown"
	}
}

type Config struct {
	Host    string
	Port    int
	TLSMode session.TLSMode

	// TLSConfig is cloned per handshake. Nil means library defaults.
	TLSConfig *tls.Config

	// HeloName is the client identity sent with EHLO. Defaults to
	// "localhost".
	HeloName string

	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

// OutgoingMessage is a single-recipient plain-text message.
type OutgoingMessage struct {
	From    string
	To      string
	Subject string
	Body    string
}

// reply is one parsed server reply, possibly spanning several
// continuation lines. Text carries the final line's text.
type reply struct {
	Code  int
	Text  string
	Lines []string
}

func (r *reply) String() string {
	return fmt.Sprintf("%03d %s", r.Code, r.Text)
}

// AuthError reports a rejected credential, naming the exchange step the
// server rejected.
type AuthError struct {
	Step   string
	Detail string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("smtp: authentication failed at %s step: %s", e.Step, e.Detail)
}

// ProtocolError reports a server reply that violates the status-line
// grammar.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("smtp: protocol error: %s", e.Detail)
}

// StatusError reports a well-formed reply whose code differs from the
// one the current step requires.
type StatusError struct {
	Command string
	Want    int
	Code    int
	Text    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("smtp: %s: want status %d, got %03d %s", e.Command, e.Want, e.Code, e.Text)
}
