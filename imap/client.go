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

// Package imap implements the retrieval side of the mail core: a
// tagged command/response client speaking directly over a transport
// session. Commands are strictly serialised; a new command is never
// sent before the previous completion is parsed.
package imap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/velivolant/pens/mailauth"
	"github.com/velivolant/pens/session"
)

var (
	errAlreadyConnected = errors.New("imap: already connected")
	errNotConnected     = errors.New("imap: not connected")
	errNotAuthenticated = errors.New("imap: not authenticated")
)

// Client drives one retrieval session. Not safe for concurrent use;
// each client is owned by exactly one logical flow.
type Client struct {
	cfg     Config
	session *session.Session
	state   State
	tagSeq  int
	mailbox string
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

// Connect opens the transport and consumes the server greeting.
func (c *Client) Connect() error {
	if c.state != StateDisconnected {
		return errAlreadyConnected
	}

	log.WithFields(log.Fields{
		"host": c.cfg.Host,
		"port": c.cfg.Port,
	}).Debug("imap_connect")

	if err := c.session.Connect(c.cfg.Host, c.cfg.Port, c.cfg.TLSMode); err != nil {
		return err
	}

	greeting, err := c.session.ReceiveUntil(hasCompleteLine)
	if err != nil {
		_ = c.session.Close()
		return err
	}

	if !bytes.HasPrefix(greeting, []byte("* ")) {
		_ = c.session.Close()
		return &ProtocolError{Detail: fmt.Sprintf("unexpected greeting: %q", firstLine(greeting))}
	}

	c.state = StateConnected
	return nil
}

// Authenticate presents the credential. On rejection the session stays
// in the Connected state and a different credential may be tried.
func (c *Client) Authenticate(cred mailauth.Credential) error {
	if c.state == StateDisconnected {
		return errNotConnected
	}

	var err error
	switch v := cred.(type) {
	case mailauth.Password:
		_, err = c.exec("LOGIN " + mailauth.QuoteString(v.Username) + " " + mailauth.QuoteString(v.Secret))
	case mailauth.OAuthBearer:
		err = c.authenticateXOAuth2(v)
	default:
		return fmt.Errorf("imap: unsupported credential type %T", cred)
	}

	if err != nil {
		// Completion statuses other than OK all mean the credential was
		// not accepted; transport errors pass through untouched.
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			return &AuthError{Detail: strings.TrimSpace(respErr.Status + " " + respErr.Text)}
		}
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return &AuthError{Detail: protoErr.Detail}
		}
		return err
	}

	c.state = StateAuthenticated
	return nil
}

func (c *Client) authenticateXOAuth2(cred mailauth.OAuthBearer) error {
	tag := c.nextTag()
	cmd := tag + " AUTHENTICATE XOAUTH2 " + mailauth.XOAuth2String(cred.Username, cred.AccessToken) + "\r\n"

	log.WithField("username", cred.Username).Debug("imap_authenticate_xoauth2")

	if err := c.session.Send([]byte(cmd)); err != nil {
		return err
	}

	buf, err := c.session.ReceiveUntil(anyCompleteLine(tag+" ", "+"))
	if err != nil {
		return err
	}

	// A continuation carries the server's base64 error blob; answer
	// with an empty line so it issues the tagged completion.
	if hasLinePrefix(buf, "+") && !hasLinePrefix(buf, tag+" ") {
		if err := c.session.Send([]byte("\r\n")); err != nil {
			return err
		}

		more, err := c.session.ReceiveUntil(anyCompleteLine(tag + " "))
		if err != nil {
			return err
		}
		buf = append(buf, more...)
	}

	_, err = completion(buf, tag)
	return err
}

// Logout sends LOGOUT when authenticated and closes the transport.
func (c *Client) Logout() error {
	if c.state == StateDisconnected {
		return nil
	}

	if c.state == StateAuthenticated {
		// Best effort; the connection is going away either way.
		if _, err := c.exec("LOGOUT"); err != nil {
			log.WithError(err).Debug("imap_logout_failed")
		}
	}

	err := c.session.Close()
	c.state = StateDisconnected
	c.mailbox = ""
	return err
}

// SelectMailbox makes name the target of subsequent message operations.
func (c *Client) SelectMailbox(name string) error {
	if c.state != StateAuthenticated {
		return errNotAuthenticated
	}

	if _, err := c.exec("SELECT " + mailauth.QuoteString(name)); err != nil {
		return err
	}

	c.mailbox = name
	return nil
}

// ListMailboxes returns the names of all mailboxes.
func (c *Client) ListMailboxes() ([]string, error) {
	if c.state != StateAuthenticated {
		return nil, errNotAuthenticated
	}

	resp, err := c.exec(`LIST "" "*"`)
	if err != nil {
		return nil, err
	}

	return parseMailboxList(resp), nil
}

// MessageCount returns the number of messages in the selected mailbox,
// selecting INBOX first if nothing is selected.
func (c *Client) MessageCount() (int, error) {
	if c.state != StateAuthenticated {
		return 0, errNotAuthenticated
	}

	if c.mailbox == "" {
		if err := c.SelectMailbox("INBOX"); err != nil {
			return 0, err
		}
	}

	resp, err := c.exec("STATUS " + mailauth.QuoteString(c.mailbox) + " (MESSAGES)")
	if err != nil {
		return 0, err
	}

	return parseMessageCount(resp)
}

// FetchRecent fetches up to count of the most recent messages. A
// non-positive count fetches nothing.
func (c *Client) FetchRecent(count int) ([]MailMessage, error) {
	if c.state != StateAuthenticated {
		return nil, errNotAuthenticated
	}

	if count <= 0 {
		return nil, nil
	}

	if c.mailbox == "" {
		if err := c.SelectMailbox("INBOX"); err != nil {
			return nil, err
		}
	}

	resp, err := c.exec("UID SEARCH ALL")
	if err != nil {
		return nil, err
	}

	uids := parseSearchIDs(resp)
	if count < len(uids) {
		uids = uids[len(uids)-count:]
	}

	messages := make([]MailMessage, 0, len(uids))
	for _, uid := range uids {
		msg, err := c.FetchMessage(uid)
		if err != nil {
			return messages, err
		}
		messages = append(messages, msg)
	}

	log.WithFields(log.Fields{
		"mailbox": c.mailbox,
		"count":   len(messages),
	}).Debug("imap_fetched_recent")

	return messages, nil
}

// FetchMessage fetches one message by UID.
func (c *Client) FetchMessage(uid string) (MailMessage, error) {
	if c.state != StateAuthenticated {
		return MailMessage{}, errNotAuthenticated
	}

	resp, err := c.exec("UID FETCH " + uid + " (FLAGS BODY[HEADER] BODY[TEXT])")
	if err != nil {
		return MailMessage{}, err
	}

	return parseMessage(resp, uid), nil
}

// MarkRead sets \Seen on the message.
func (c *Client) MarkRead(uid string) error {
	if c.state != StateAuthenticated {
		return errNotAuthenticated
	}

	_, err := c.exec("UID STORE " + uid + ` +FLAGS (\Seen)`)
	return err
}

// Delete flags the message \Deleted and expunges the mailbox.
func (c *Client) Delete(uid string) error {
	if c.state != StateAuthenticated {
		return errNotAuthenticated
	}

	if _, err := c.exec("UID STORE " + uid + ` +FLAGS (\Deleted)`); err != nil {
		return err
	}

	_, err := c.exec("EXPUNGE")
	return err
}

func (c *Client) nextTag() string {
	c.tagSeq++
	return fmt.Sprintf("A%04d", c.tagSeq)
}

// exec sends one tagged command and reads until its completion line.
func (c *Client) exec(command string) (string, error) {
	if !c.session.Connected() {
		return "", errNotConnected
	}

	tag := c.nextTag()

	if log.IsLevelEnabled(log.TraceLevel) {
		log.WithField("command", sanitizeCommand(command)).Trace("imap_send")
	}

	if err := c.session.Send([]byte(tag + " " + command + "\r\n")); err != nil {
		return "", err
	}

	buf, err := c.session.ReceiveUntil(anyCompleteLine(tag + " "))
	if err != nil {
		return "", err
	}

	return completion(buf, tag)
}

// completion locates the tagged line and maps its status token.
func completion(buf []byte, tag string) (string, error) {
	resp := string(buf)

	for _, line := range completeLines(buf) {
		if !strings.HasPrefix(line, tag+" ") {
			continue
		}

		rest := strings.TrimPrefix(line, tag+" ")
		status, text, _ := strings.Cut(rest, " ")

		switch status {
		case "OK":
			return resp, nil
		case "NO", "BAD":
			return resp, &ResponseError{Status: status, Text: text}
		default:
			return resp, &ProtocolError{Detail: fmt.Sprintf("unrecognised completion %q", line)}
		}
	}

	return resp, &ProtocolError{Detail: "no tagged completion line in response"}
}

// sanitizeCommand masks LOGIN arguments so credentials never hit logs.
func sanitizeCommand(command string) string {
	if strings.HasPrefix(command, "LOGIN ") {
		return "LOGIN ****"
	}
	if strings.HasPrefix(command, "AUTHENTICATE ") {
		fields := strings.Fields(command)
		if len(fields) > 2 {
			return fields[0] + " " + fields[1] + " ****"
		}
	}
	return command
}

// completeLines returns every CRLF-terminated line in buf, terminator
// stripped. A trailing partial line is ignored.
func completeLines(buf []byte) []string {
	var lines []string
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return lines
		}
		lines = append(lines, strings.TrimRight(string(buf[:i]), "\r"))
		buf = buf[i+1:]
	}
}

func hasCompleteLine(buf []byte) bool {
	return bytes.IndexByte(buf, '\n') >= 0
}

func hasLinePrefix(buf []byte, prefix string) bool {
	for _, line := range completeLines(buf) {
		if line == strings.TrimSpace(prefix) || strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// anyCompleteLine builds a receive predicate that fires once any
// complete line starts with one of the prefixes. A bare "+" line also
// matches the "+" prefix.
func anyCompleteLine(prefixes ...string) func([]byte) bool {
	return func(buf []byte) bool {
		for _, p := range prefixes {
			if hasLinePrefix(buf, p) {
				return true
			}
		}
		return false
	}
}

func firstLine(buf []byte) string {
	lines := completeLines(buf)
	if len(lines) == 0 {
		return string(buf)
	}
	return lines[0]
}
