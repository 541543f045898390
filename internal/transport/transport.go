// Package transport defines the narrow contract between the relay core and
// the message channels (mail, LINE, Telegram). A transport implements the
// inbound capability, the outbound capability, or both; the controller only
// ever sees these interfaces.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is one authenticated-pending inbound message.
type Message struct {
	// ID is a transport-scoped identifier (IMAP UID, Telegram update ID,
	// LINE message ID) used for logging and dedup.
	ID string

	// Sender is the transport-specific origin address: mail From, LINE
	// userId/groupId, Telegram chat ID.
	Sender string

	Subject string
	Body    string

	// ReplyRef carries whatever the transport needs to answer this exact
	// message (LINE reply token, Telegram message ID). May be empty.
	ReplyRef string

	Received time.Time
}

// Payload is an outbound notification or reply before transport rendering.
type Payload struct {
	Subject string
	Body    string

	// Token is the machine-readable session token; mail embeds it in the
	// subject tag, chat transports append it as trailing lines.
	Token string

	// SessionID resolves replies unambiguously; mail writes it as a
	// "Session ID:" body line.
	SessionID string
}

// AuthResult is the outcome of transport-level message verification.
type AuthResult struct {
	// OK means the message may proceed to parsing.
	OK bool

	// Reason is logged when OK is false. Never shown verbatim to the
	// sender; unauthorized callers get a generic failure.
	Reason string
}

// Inbound is the receive capability.
type Inbound interface {
	// Name tags the transport ("mail", "line", "telegram").
	Name() string

	// Poll fetches messages strictly newer than cursor and returns the
	// advanced cursor. Calling again with the same cursor is idempotent.
	// The returned cursor must only be persisted after the batch has been
	// handed off.
	Poll(ctx context.Context, cursor string) (msgs []Message, next string, err error)

	// Authenticate verifies message provenance (sender whitelist,
	// signature) before the core trusts any of its content.
	Authenticate(m Message) AuthResult
}

// Outbound is the send capability.
type Outbound interface {
	Name() string

	// Send renders and delivers a payload. The returned ref identifies the
	// sent message where the transport has one.
	Send(ctx context.Context, recipient string, p Payload) (ref string, err error)
}

// Error is a transport failure tagged with its retry class. The class is part
// of the type so retry policy lives in the controller, not in string
// matching.
type Error struct {
	// Transient failures (disconnects, rate limits) are backed off and
	// retried without advancing the cursor. Permanent failures (bad
	// credentials, HTTP 4xx) stop the transport until operator action.
	Transient bool
	Op        string
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transientf wraps err as a retryable transport error.
func Transientf(op string, err error) error {
	return &Error{Transient: true, Op: op, Err: err}
}

// Permanentf wraps err as a fatal transport error.
func Permanentf(op string, err error) error {
	return &Error{Transient: false, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable transport error.
func IsTransient(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Transient
}
