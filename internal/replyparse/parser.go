// Package replyparse extracts the session token and the command payload from
// inbound reply messages. Mobile mail clients bury the operator's words under
// quoted history and signatures; the parser keeps only the fresh text above
// the first quote or signature boundary. Parse errors are reported, never
// guessed around.
package replyparse

import (
	"errors"
	"regexp"
	"strings"

	"github.com/clawplaza/clawlink/internal/token"
)

// Common errors.
var (
	// ErrNoToken means no session token could be located in the message.
	ErrNoToken = errors.New("no session token in message")

	// ErrEmptyCommand means a token was found but the remaining text is
	// whitespace-only after quote stripping.
	ErrEmptyCommand = errors.New("empty command after quote stripping")
)

// Message is a parsed inbound message, transport-agnostic.
type Message struct {
	Subject string
	Body    string
}

// ParsedCommand is a successfully extracted (token, command) pair.
type ParsedCommand struct {
	Token   string
	Command string
}

// subjectTagRe matches the bracketed outbound tag, e.g. "[ClawLink #AB12CD34]".
// The product name is letters/digits/underscore/hyphen, 4-32 chars; the token
// is 8 alphanumerics. Case-insensitive: phone keyboards fight back.
var subjectTagRe = regexp.MustCompile(`(?i)\[[\w-]{4,32}\s+#([A-Z0-9]{8})\]`)

// bodyTokenRe matches the fallback body form "Token AB12CD34".
var bodyTokenRe = regexp.MustCompile(`(?i)\bToken\s+([A-Z0-9]{8})\b`)

// chatCommandRe matches the leading chat-bot forms "/cmd TOKEN rest" and
// "Token TOKEN rest".
var chatCommandRe = regexp.MustCompile(`(?is)^\s*(?:/cmd|Token)\s+([A-Z0-9]{8})\b[ \t]*(.*)$`)

// wroteLineRe matches English attribution lines such as
// "On Mon, 2 Jan 2006, Alice <a@example.com> wrote:".
var wroteLineRe = regexp.MustCompile(`wrote:\s*$`)

// cjkWroteLineRe matches the Chinese attribution form "在 … 写道:".
var cjkWroteLineRe = regexp.MustCompile(`^在.*写道[:：]\s*$`)

// quoteBoundary reports whether a (trimmed) line starts quoted history.
func quoteBoundary(line string) bool {
	switch {
	case strings.HasPrefix(line, ">"):
		return true
	case line == "-----Original Message-----", line == "--- Original Message ---":
		return true
	case wroteLineRe.MatchString(line):
		return true
	case cjkWroteLineRe.MatchString(line):
		return true
	case strings.HasPrefix(line, "Session ID:"):
		// Our own outbound template; everything after is the quoted
		// notification body.
		return true
	}
	return false
}

// signatureBoundary reports whether a (trimmed) line starts a signature.
func signatureBoundary(line string) bool {
	switch {
	case line == "--":
		return true
	case strings.HasPrefix(line, "Sent from"):
		return true
	case strings.HasPrefix(line, "发自我的"):
		return true
	}
	return false
}

// StripQuoted returns the fresh text of a reply body: the lines before the
// first quote or signature boundary, trimmed.
func StripQuoted(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if quoteBoundary(trimmed) || signatureBoundary(trimmed) {
			break
		}
		kept = append(kept, strings.TrimSuffix(line, "\r"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ParseEmail extracts the token and command from an email reply. The token is
// looked for in the subject tag first, then in the body.
func ParseEmail(m Message) (*ParsedCommand, error) {
	var tok string
	if match := subjectTagRe.FindStringSubmatch(m.Subject); match != nil {
		tok = match[1]
	} else if match := bodyTokenRe.FindStringSubmatch(m.Body); match != nil {
		tok = match[1]
	}
	if tok == "" {
		return nil, ErrNoToken
	}

	command := StripQuoted(m.Body)
	// The fallback body form leads with "Token XXXXXXXX"; remove it so only
	// the intent remains.
	if match := chatCommandRe.FindStringSubmatch(command); match != nil && token.Normalize(match[1]) == token.Normalize(tok) {
		command = strings.TrimSpace(match[2])
	}
	if command == "" {
		return nil, ErrEmptyCommand
	}
	return &ParsedCommand{Token: token.Normalize(tok), Command: command}, nil
}

// ParseChat extracts the token and command from a chat-bot message of the
// form "/cmd TOKEN command" or "Token TOKEN command".
func ParseChat(text string) (*ParsedCommand, error) {
	match := chatCommandRe.FindStringSubmatch(text)
	if match == nil {
		return nil, ErrNoToken
	}
	command := strings.TrimSpace(StripQuoted(match[2]))
	if command == "" {
		return nil, ErrEmptyCommand
	}
	return &ParsedCommand{Token: token.Normalize(match[1]), Command: command}, nil
}
