// Package constants defines shared constant values used throughout ClawLink.
// Centralizing these magic strings and timings keeps the injector, queue and
// daemon in agreement about the contract they share.
package constants

import "time"

// Timing constants for keystroke injection and the confirmation loop.
const (
	// ClearTypeDelay is the pause between clearing the assistant's input
	// buffer (Ctrl-U) and typing the command.
	ClearTypeDelay = 200 * time.Millisecond

	// TypeCommitDelay is the pause between typing the command and pressing
	// Enter, so the paste settles before the commit.
	TypeCommitDelay = 200 * time.Millisecond

	// CommitSettleDelay is the pause after Enter before the confirmation
	// loop starts sampling the pane.
	CommitSettleDelay = 1 * time.Second

	// ConfirmAttempts is the maximum number of confirmation-loop iterations
	// before the injection is declared timed out.
	ConfirmAttempts = 8

	// ConfirmInterval is the pause between confirmation-loop iterations.
	ConfirmInterval = 1500 * time.Millisecond

	// AnswerCommitDelay is the pause between typing a prompt answer ("2",
	// "1", "y") and pressing Enter.
	AnswerCommitDelay = 300 * time.Millisecond

	// AnswerSettleDelay is the pause after answering a multi-option consent
	// prompt, giving the assistant time to resume.
	AnswerSettleDelay = 2 * time.Second

	// UnknownRecaptureDelay is the pause before re-capturing when the pane
	// tail matches nothing the classifier knows.
	UnknownRecaptureDelay = 2 * time.Second

	// CaptureLines is how many trailing pane lines each capture reads.
	CaptureLines = 200
)

// Timing constants for the relay controller and daemon.
const (
	// DispatchInterval is how often the controller pulls ready commands.
	DispatchInterval = 5 * time.Second

	// MailPollInterval is the default inbound mail poll cadence.
	MailPollInterval = 30 * time.Second

	// PollConnectTimeout bounds inbound transport connection setup.
	PollConnectTimeout = 30 * time.Second

	// PollIdleTimeout bounds an idle inbound connection before reconnect.
	PollIdleTimeout = 60 * time.Second

	// ReconnectMaxInterval caps transport reconnect backoff.
	ReconnectMaxInterval = 5 * time.Minute

	// DrainTimeout is how long shutdown waits for the executing command.
	DrainTimeout = 60 * time.Second

	// InjectHardTimeout caps one injection end to end: the confirmation
	// loop's attempt budget plus capture and answer overheads.
	InjectHardTimeout = 45 * time.Second

	// MonitorInterval is how often the pane monitor samples the pane for
	// busy-to-idle transitions.
	MonitorInterval = 10 * time.Second
)

// Session and queue lifecycle defaults.
const (
	// SessionLifetime is the default token validity window.
	SessionLifetime = 24 * time.Hour

	// CommandMaxRetries is the failure count at which a command goes
	// terminal-failed; after each earlier failure it is re-queued.
	CommandMaxRetries = 3

	// RetryBackoffUnit is the linear backoff unit: a command failing its
	// Nth time waits N x RetryBackoffUnit before it is eligible again.
	RetryBackoffUnit = 60 * time.Second

	// QueueMaxAge is how long terminal commands are kept before Cleanup
	// drops them.
	QueueMaxAge = 24 * time.Hour
)

// File and directory names within the ClawLink state directory.
const (
	// FileConfigTOML is the operator configuration file.
	FileConfigTOML = "config.toml"

	// DirSessions holds one JSON file per session record.
	DirSessions = "sessions"

	// DirCursors holds one JSON file per inbound transport cursor.
	DirCursors = "cursors"

	// DirDrop is the degraded-mode command drop folder.
	DirDrop = "drop"

	// FileQueueJSON is the durable command queue.
	FileQueueJSON = "queue.json"

	// FilePID is the daemon PID-file lock.
	FilePID = "clawlink.pid"

	// FileDaemonLog is the daemon log file.
	FileDaemonLog = "daemon.log"
)

// Outbound message template markers. Replies are resolved by finding these
// again, so the parser and the senders must agree on them exactly.
const (
	// Product is the name embedded in the subject tag.
	Product = "ClawLink"

	// SessionIDPrefix is the body line carrying the session UUID.
	SessionIDPrefix = "Session ID:"

	// TokenLinePrefix is the fallback body form of the token.
	TokenLinePrefix = "Token"
)

// WorkingIndicators are pane substrings that mean the assistant is still
// computing; the confirmation loop waits without typing an answer.
var WorkingIndicators = []string{
	"Clauding…",
	"Waiting…",
	"Processing…",
	"Working…",
}

// ErrorIndicators are pane substrings that mean the command failed inside
// the assistant.
var ErrorIndicators = []string{
	"Error:",
	"error:",
	"failed",
}
