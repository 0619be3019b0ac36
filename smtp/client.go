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

// Package smtp implements the submission side of the mail core. Every
// server reply starts with a three-digit status code; each step of the
// dialogue checks the reply against the one code it requires rather
// than a generic notion of success.
package smtp

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	log "github.com/sirupsen/logrus"

	"github.com/velivolant/pens/mailauth"
	"github.com/velivolant/pens/session"
)

var (
	errAlreadyConnected = errors.New("smtp: already connected")
	errNotConnected     = errors.New("smtp: not connected")
	errNotAuthenticated = errors.New("smtp: not authenticated")
)

// Client drives one submission session. Not safe for concurrent use.
type Client struct {
	cfg      Config
	session  *session.Session
	state    State
	username string
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		session: session.New(session.Config{
			DialTimeout: cfg.DialTimeout,
			IOTimeout:   cfg.CommandTimeout,
			TLSConfig:   cfg.TLSConfig,
		}),
	}
}

func (c *Client) State() State { return c.state }

// ConnectionStatus returns a human-readable session summary.
func (c *Client) ConnectionStatus() string {
	switch c.state {
	case StateAuthenticated:
		return fmt.Sprintf("connected and authenticated to %v", c.cfg.Host)
	case StateConnected:
		return "connected but not authenticated"
	default:
		return "not connected"
	}
}

// Connect opens the transport, consumes the 220 greeting and performs
// the EHLO exchange. With an explicit TLS mode it then negotiates
// STARTTLS and repeats EHLO over the encrypted channel.
func (c *Client) Connect() error {
	if c.state != StateDisconnected {
		return errAlreadyConnected
	}

	log.WithFields(log.Fields{
		"host": c.cfg.Host,
		"port": c.cfg.Port,
	}).Debug("smtp_connect")

	if err := c.session.Connect(c.cfg.Host, c.cfg.Port, c.cfg.TLSMode); err != nil {
		return err
	}

	if err := c.connectDialogue(); err != nil {
		_ = c.session.Close()
		return err
	}

	c.state = StateConnected
	return nil
}

func (c *Client) connectDialogue() error {
	rep, err := c.readReply()
	if err != nil {
		return err
	}
	if rep.Code != 220 {
		return &StatusError{Command: "greeting", Want: 220, Code: rep.Code, Text: rep.Text}
	}

	if err := c.ehlo(); err != nil {
		return err
	}

	if c.cfg.TLSMode == session.TLSExplicit {
		if _, err := c.command("STARTTLS", 220); err != nil {
			return err
		}
		if err := c.session.UpgradeTLS(); err != nil {
			return err
		}
		// The pre-TLS EHLO response is no longer trustworthy.
		if err := c.ehlo(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Client) ehlo() error {
	name := c.cfg.HeloName
	if name == "" {
		name = "localhost"
	}

	_, err := c.command("EHLO "+name, 250)
	return err
}

// Authenticate presents the credential. On rejection the session stays
// in the Connected state and a different credential may be tried.
func (c *Client) Authenticate(cred mailauth.Credential) error {
	if c.state == StateDisconnected {
		return errNotConnected
	}

	var username string
	var err error
	switch v := cred.(type) {
	case mailauth.Password:
		username = v.Username
		err = c.authenticateLogin(v)
	case mailauth.OAuthBearer:
		username = v.Username
		err = c.authenticateXOAuth2(v)
	default:
		return fmt.Errorf("smtp: unsupported credential type %T", cred)
	}

	if err != nil {
		return err
	}

	log.WithField("username", username).Debug("smtp_authenticated")

	c.username = username
	c.state = StateAuthenticated
	return nil
}

// authenticateLogin runs the three-step LOGIN exchange. Each
// intermediate reply is checked before the next secret is sent, so a
// failure names the exact step the server rejected.
func (c *Client) authenticateLogin(cred mailauth.Password) error {
	client := sasl.NewLoginClient(cred.Username, cred.Secret)

	mech, ir, err := client.Start()
	if err != nil {
		return err
	}

	rep, err := c.exchange("AUTH " + mech)
	if err != nil {
		return err
	}
	if rep.Code != 334 {
		return &AuthError{Step: "initiation", Detail: rep.String()}
	}

	rep, err = c.exchange(base64.StdEncoding.EncodeToString(ir))
	if err != nil {
		return err
	}
	if rep.Code != 334 {
		return &AuthError{Step: "username", Detail: rep.String()}
	}

	challenge, err := base64.StdEncoding.DecodeString(rep.Text)
	if err != nil {
		return &ProtocolError{Detail: fmt.Sprintf("challenge is not valid base64: %q", rep.Text)}
	}

	secret, err := client.Next(challenge)
	if err != nil {
		return &AuthError{Step: "password", Detail: err.Error()}
	}

	rep, err = c.exchange(base64.StdEncoding.EncodeToString(secret))
	if err != nil {
		return err
	}
	if rep.Code != 235 {
		return &AuthError{Step: "password", Detail: rep.String()}
	}

	return nil
}

func (c *Client) authenticateXOAuth2(cred mailauth.OAuthBearer) error {
	rep, err := c.exchange("AUTH XOAUTH2 " + mailauth.XOAuth2String(cred.Username, cred.AccessToken))
	if err != nil {
		return err
	}

	// A 334 carries the server's base64 error blob; answer with an
	// empty line so it issues the final status.
	if rep.Code == 334 {
		if rep, err = c.exchange(""); err != nil {
			return err
		}
	}

	if rep.Code != 235 {
		return &AuthError{Step: "xoauth2", Detail: rep.String()}
	}

	return nil
}

// Send submits one message: envelope, DATA, dot-framed body.
func (c *Client) Send(msg OutgoingMessage) error {
	if c.state != StateAuthenticated {
		return errNotAuthenticated
	}

	if _, err := c.command("MAIL FROM:<"+msg.From+">", 250); err != nil {
		return err
	}
	if _, err := c.command("RCPT TO:<"+msg.To+">", 250); err != nil {
		return err
	}
	if _, err := c.command("DATA", 354); err != nil {
		return err
	}

	body, err := formatMessage(msg, time.Now())
	if err != nil {
		return err
	}

	if err := c.session.Send(frameData(body)); err != nil {
		return err
	}

	rep, err := c.readReply()
	if err != nil {
		return err
	}
	if rep.Code != 250 {
		return &StatusError{Command: "message data", Want: 250, Code: rep.Code, Text: rep.Text}
	}

	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("smtp_message_sent")

	return nil
}

// SendVerificationCode mails a short-lived verification code to the
// recipient, from the authenticated account.
func (c *Client) SendVerificationCode(to, code string) error {
	body := "Your verification code is: " + code + "\n\n" +
		"This code will expire in 10 minutes.\n\n" +
		"If you did not request this code, please ignore this email.\n\n" +
		"Best regards,\nVelivolant Team"

	return c.Send(OutgoingMessage{
		From:    c.username,
		To:      to,
		Subject: "Your Verification Code - Velivolant",
		Body:    body,
	})
}

// Quit ends the dialogue and closes the transport.
func (c *Client) Quit() error {
	if c.state == StateDisconnected {
		return nil
	}

	// Best effort; the connection is going away either way.
	if _, err := c.command("QUIT", 221); err != nil {
		log.WithError(err).Debug("smtp_quit_failed")
	}

	err := c.session.Close()
	c.state = StateDisconnected
	c.username = ""
	return err
}

// exchange sends one line and reads the reply without judging its code.
func (c *Client) exchange(line string) (*reply, error) {
	if !c.session.Connected() {
		return nil, errNotConnected
	}

	if err := c.session.Send([]byte(line + "\r\n")); err != nil {
		return nil, err
	}

	return c.readReply()
}

// command sends one line and requires the reply code want.
func (c *Client) command(line string, want int) (*reply, error) {
	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithField("command", line).Trace("smtp_send")
	}

	rep, err := c.exchange(line)
	if err != nil {
		return nil, err
	}

	if rep.Code != want {
		verb, _, _ := strings.Cut(line, " ")
		return rep, &StatusError{Command: verb, Want: want, Code: rep.Code, Text: rep.Text}
	}

	return rep, nil
}

func (c *Client) readReply() (*reply, error) {
	buf, err := c.session.ReceiveUntil(replyComplete)
	if err != nil {
		return nil, err
	}
	return parseReply(buf)
}

// parseReply walks the reply's lines until the final one. Continuation
// lines use "ddd-", the final line "ddd " or a bare "ddd".
func parseReply(buf []byte) (*reply, error) {
	var rep reply

	for _, line := range completeLines(buf) {
		code, text, final, ok := splitReplyLine(line)
		if !ok {
			return nil, &ProtocolError{Detail: fmt.Sprintf("malformed reply line %q", line)}
		}

		rep.Code = code
		rep.Text = text
		rep.Lines = append(rep.Lines, text)

		if final {
			return &rep, nil
		}
	}

	return nil, &ProtocolError{Detail: "reply has no final status line"}
}

func splitReplyLine(line string) (code int, text string, final, ok bool) {
	if len(line) < 3 || !isDigits(line[:3]) {
		return 0, "", false, false
	}

	code, _ = strconv.Atoi(line[:3])

	if len(line) == 3 {
		return code, "", true, true
	}

	switch line[3] {
	case ' ':
		return code, line[4:], true, true
	case '-':
		return code, line[4:], false, true
	default:
		return 0, "", false, false
	}
}

func replyComplete(buf []byte) bool {
	for _, line := range completeLines(buf) {
		if _, _, final, ok := splitReplyLine(line); ok && final {
			return true
		}
	}
	return false
}

// completeLines returns every CRLF-terminated line in buf, terminator
// stripped. A trailing partial line is ignored.
func completeLines(buf []byte) []string {
	var lines []string
	s := string(buf)
	for {
		line, rest, found := strings.Cut(s, "\n")
		if !found {
			return lines
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
		s = rest
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
