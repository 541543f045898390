// Package queue provides the durable command queue between reply ingestion
// and the injector. The whole queue lives in one JSON file rewritten
// atomically after every mutation; restarts reload it and requeue anything
// that was mid-flight, giving at-least-once delivery.
package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/constants"
	"github.com/clawplaza/clawlink/internal/fsutil"
)

// Status is the lifecycle state of a queued command.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Command is one queued injection.
type Command struct {
	// ID is time-prefixed (millisecond resolution) so lexical order is
	// enqueue order; IDs minted in the same millisecond order by their
	// random suffix.
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`

	// Command is injected verbatim; the relay never rewrites it.
	Command string `json:"command"`

	Status Status `json:"status"`

	QueuedAt    time.Time  `json:"queuedAt"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`

	// RetryAt defers a re-queued command; zero means immediately eligible.
	RetryAt time.Time `json:"retryAt,omitempty"`

	Retries    int    `json:"retries"`
	MaxRetries int    `json:"maxRetries"`
	Error      string `json:"error,omitempty"`
}

// ErrNotFound is returned for unknown queue IDs.
var ErrNotFound = errors.New("command not found")

// queueFile is the on-disk shape.
type queueFile struct {
	CommandQueue []*Command `json:"commandQueue"`
}

// idAlphabet keeps the random suffix lower-case alphanumeric.
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Queue is the durable FIFO. A single mutex serializes all mutations; every
// mutation rewrites the backing file before it is visible to readers.
type Queue struct {
	path string
	clk  clock.Clock
	mu   sync.Mutex
	cmds []*Command
}

// Load reads (or initializes) the queue at path. Any command found in status
// executing is rewritten to queued: the daemon died mid-injection, and the
// injector's clear-before-type discipline makes re-delivery safe.
func Load(path string, clk clock.Clock) (*Queue, error) {
	q := &Queue{path: path, clk: clk}
	var f queueFile
	if err := fsutil.LoadJSON(path, &f); err != nil {
		if !fsutil.IsNotExist(err) {
			return nil, fmt.Errorf("loading queue: %w", err)
		}
	}
	requeued := false
	for _, c := range f.CommandQueue {
		if c.Status == StatusExecuting {
			c.Status = StatusQueued
			c.ExecutedAt = nil
			requeued = true
		}
	}
	q.cmds = f.CommandQueue
	q.sortLocked()
	if requeued {
		if err := q.flushLocked(); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.cmds, func(i, j int) bool { return q.cmds[i].ID < q.cmds[j].ID })
}

func (q *Queue) flushLocked() error {
	return fsutil.WriteJSON(q.path, &queueFile{CommandQueue: q.cmds})
}

// newID builds a sortable command ID: UTC timestamp prefix plus a short
// random suffix for same-instant uniqueness.
func (q *Queue) newID() (string, error) {
	suffix, err := gonanoid.Generate(idAlphabet, 6)
	if err != nil {
		return "", err
	}
	return q.clk.Now().UTC().Format("20060102T150405.000") + "-" + suffix, nil
}

// Enqueue appends a command and flushes to disk before returning its ID.
func (q *Queue) Enqueue(sessionID, command string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, err := q.newID()
	if err != nil {
		return "", fmt.Errorf("generating queue id: %w", err)
	}
	c := &Command{
		ID:         id,
		SessionID:  sessionID,
		Command:    command,
		Status:     StatusQueued,
		QueuedAt:   q.clk.Now(),
		MaxRetries: constants.CommandMaxRetries,
	}
	q.cmds = append(q.cmds, c)
	if err := q.flushLocked(); err != nil {
		q.cmds = q.cmds[:len(q.cmds)-1]
		return "", fmt.Errorf("persisting queue: %w", err)
	}
	return id, nil
}

// Dequeue returns the oldest queued command whose retry delay has elapsed and
// whose session has nothing currently executing, or nil when nothing is
// ready. It does not change status; callers follow up with MarkExecuting.
func (q *Queue) Dequeue() *Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clk.Now()
	executing := make(map[string]bool)
	for _, c := range q.cmds {
		if c.Status == StatusExecuting {
			executing[c.SessionID] = true
		}
	}
	for _, c := range q.cmds {
		if c.Status != StatusQueued {
			continue
		}
		if !c.RetryAt.IsZero() && c.RetryAt.After(now) {
			continue
		}
		if executing[c.SessionID] {
			continue
		}
		cp := *c
		return &cp
	}
	return nil
}

// DequeueAll returns every ready command, at most one per session, oldest
// first. The dispatch loop runs them sequentially.
func (q *Queue) DequeueAll() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clk.Now()
	busy := make(map[string]bool)
	for _, c := range q.cmds {
		if c.Status == StatusExecuting {
			busy[c.SessionID] = true
		}
	}
	var out []*Command
	for _, c := range q.cmds {
		if c.Status != StatusQueued || busy[c.SessionID] {
			continue
		}
		if !c.RetryAt.IsZero() && c.RetryAt.After(now) {
			continue
		}
		busy[c.SessionID] = true
		cp := *c
		out = append(out, &cp)
	}
	return out
}

func (q *Queue) findLocked(id string) (*Command, error) {
	for _, c := range q.cmds {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// MarkExecuting transitions queued → executing. Refuses the transition when
// another command of the same session is already executing.
func (q *Queue) MarkExecuting(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, err := q.findLocked(id)
	if err != nil {
		return err
	}
	if c.Status != StatusQueued {
		return fmt.Errorf("command %s is %s, not queued", id, c.Status)
	}
	for _, other := range q.cmds {
		if other.ID != id && other.SessionID == c.SessionID && other.Status == StatusExecuting {
			return fmt.Errorf("session %s already has command %s executing", c.SessionID, other.ID)
		}
	}
	now := q.clk.Now()
	c.Status = StatusExecuting
	c.ExecutedAt = &now
	return q.flushLocked()
}

// MarkCompleted transitions executing → completed.
func (q *Queue) MarkCompleted(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, err := q.findLocked(id)
	if err != nil {
		return err
	}
	if c.Status != StatusExecuting {
		return fmt.Errorf("command %s is %s, not executing", id, c.Status)
	}
	now := q.clk.Now()
	c.Status = StatusCompleted
	c.CompletedAt = &now
	return q.flushLocked()
}

// MarkFailed records a failure. While retries remain the command returns to
// queued with a linear backoff (retries × backoff unit); otherwise it goes
// terminal-failed.
func (q *Queue) MarkFailed(id string, failure error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, err := q.findLocked(id)
	if err != nil {
		return err
	}
	if c.Status != StatusExecuting && c.Status != StatusQueued {
		return fmt.Errorf("command %s is %s, cannot fail", id, c.Status)
	}
	now := q.clk.Now()
	c.Retries++
	if failure != nil {
		c.Error = failure.Error()
	}
	if c.Retries < c.MaxRetries {
		c.Status = StatusQueued
		c.ExecutedAt = nil
		c.RetryAt = now.Add(time.Duration(c.Retries) * constants.RetryBackoffUnit)
	} else {
		c.Status = StatusFailed
		c.FailedAt = &now
	}
	return q.flushLocked()
}

// Cancel transitions a non-terminal command to cancelled.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, err := q.findLocked(id)
	if err != nil {
		return err
	}
	if c.Status.Terminal() {
		return fmt.Errorf("command %s already %s", id, c.Status)
	}
	c.Status = StatusCancelled
	return q.flushLocked()
}

// Get returns a copy of one command.
func (q *Queue) Get(id string) (*Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, err := q.findLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

// List returns a snapshot of all commands in ID (enqueue) order.
func (q *Queue) List() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Command, 0, len(q.cmds))
	for _, c := range q.cmds {
		cp := *c
		out = append(out, &cp)
	}
	return out
}

// Cleanup drops terminal commands older than maxAge (by queue time) and
// returns how many were removed.
func (q *Queue) Cleanup(maxAge time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.clk.Now().Add(-maxAge)
	var kept []*Command
	removed := 0
	for _, c := range q.cmds {
		if c.Status.Terminal() && c.QueuedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	if removed == 0 {
		return 0, nil
	}
	q.cmds = kept
	return removed, q.flushLocked()
}

// Clear removes every command regardless of status.
func (q *Queue) Clear() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.cmds)
	q.cmds = nil
	return n, q.flushLocked()
}
