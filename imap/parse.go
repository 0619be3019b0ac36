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
	"strconv"
	"strings"
)

// parseSearchIDs extracts the identifiers from "* SEARCH 1 2 3" lines.
func parseSearchIDs(resp string) []string {
	var ids []string
	for _, line := range strings.Split(resp, "\r\n") {
		rest, ok := trimSearchPrefix(line)
		if !ok {
			continue
		}
		for _, field := range strings.Fields(rest) {
			if isDigits(field) {
				ids = append(ids, field)
			}
		}
	}
	return ids
}

func trimSearchPrefix(line string) (string, bool) {
	if strings.HasPrefix(line, "* SEARCH") {
		return line[len("* SEARCH"):], true
	}
	return "", false
}

// parseMessageCount pulls the count from a STATUS (MESSAGES n) reply.
func parseMessageCount(resp string) (int, error) {
	i := strings.Index(resp, "MESSAGES")
	if i < 0 {
		return 0, &ProtocolError{Detail: "STATUS reply carries no MESSAGES item"}
	}

	rest := strings.TrimLeft(resp[i+len("MESSAGES"):], " ")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, &ProtocolError{Detail: "MESSAGES item carries no count"}
	}

	return strconv.Atoi(rest[:end])
}

// parseMailboxList extracts mailbox names from "* LIST" lines. The name
// is the final argument, quoted or bare.
func parseMailboxList(resp string) []string {
	var names []string
	for _, line := range strings.Split(resp, "\r\n") {
		if !strings.HasPrefix(line, "* LIST ") {
			continue
		}

		rest := line[len("* LIST "):]

		// Skip the flags list.
		if strings.HasPrefix(rest, "(") {
			end := strings.Index(rest, ")")
			if end < 0 {
				continue
			}
			rest = strings.TrimLeft(rest[end+1:], " ")
		}

		// Skip the hierarchy delimiter (quoted string or NIL).
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				continue
			}
			rest = strings.TrimLeft(rest[end+2:], " ")
		} else {
			_, remainder, ok := strings.Cut(rest, " ")
			if !ok {
				continue
			}
			rest = strings.TrimLeft(remainder, " ")
		}

		if name := unquote(strings.TrimSpace(rest)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		return inner
	}
	return s
}

// parseMessage assembles a MailMessage from a FETCH response. It scans
// for a fixed set of header prefixes and takes everything after the
// first blank line as the body. Deliberately not a MIME parser.
func parseMessage(resp, uid string) MailMessage {
	msg := MailMessage{ID: uid}

	// The first blank line ends the headers; lines beyond it belong to
	// the body even when they look like headers.
	for _, line := range strings.Split(resp, "\r\n") {
		if line == "" {
			break
		}
		switch {
		case strings.HasPrefix(line, "From:"):
			msg.From = strings.TrimSpace(line[len("From:"):])
		case strings.HasPrefix(line, "Subject:"):
			msg.Subject = strings.TrimSpace(line[len("Subject:"):])
		case strings.HasPrefix(line, "Date:"):
			msg.Date = strings.TrimSpace(line[len("Date:"):])
		}
	}

	if i := strings.Index(resp, "\r\n\r\n"); i >= 0 {
		body := resp[i+4:]
		// Drop the FETCH framing that trails the literal: the closing
		// paren line and the tagged completion.
		msg.Body = strings.TrimSpace(trimResponseFraming(body))
	}

	msg.IsRead = strings.Contains(resp, `\Seen`)

	return msg
}

func trimResponseFraming(body string) string {
	lines := strings.Split(body, "\r\n")
	end := len(lines)
	for end > 0 {
		l := strings.TrimSpace(lines[end-1])
		if l == "" || l == ")" || isTaggedCompletion(l) {
			end--
			continue
		}
		break
	}
	return strings.Join(lines[:end], "\r\n")
}

func isTaggedCompletion(line string) bool {
	if !strings.HasPrefix(line, "A") {
		return false
	}
	rest, _, _ := strings.Cut(line, " ")
	return len(rest) == 5 && isDigits(rest[1:])
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
