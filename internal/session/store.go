package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clawplaza/clawlink/internal/clock"
	"github.com/clawplaza/clawlink/internal/fsutil"
	"github.com/clawplaza/clawlink/internal/token"
)

// Store is the file-backed session registry: one JSON file per record under
// the sessions directory, each write flushed atomically. A single writer
// serializes mutations; readers work from an in-memory snapshot loaded at
// construction and kept current by the same lock.
type Store struct {
	dir   string
	clk   clock.Clock
	rand  token.Source
	mu    sync.Mutex
	cache map[string]*Record // id → record
}

// NewStore loads existing records from dir. Unreadable files are skipped
// rather than failing the whole registry; they are not loaded, so GC never
// sees or removes them.
func NewStore(dir string, clk clock.Clock, src token.Source) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating sessions dir: %w", err)
	}
	s := &Store{dir: dir, clk: clk, rand: src, cache: make(map[string]*Record)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var r Record
		if err := fsutil.LoadJSON(filepath.Join(dir, e.Name()), &r); err != nil {
			continue
		}
		if r.ID == "" {
			continue
		}
		s.cache[r.ID] = &r
	}
	return s, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create persists a new record. A zero ID is assigned a fresh UUID; a zero
// CreatedAt/ExpiresAt gets now/now+lifetime filled in by the caller before
// Create. Fails with ErrDuplicateToken when the token is held by another
// live session.
func (s *Store) Create(r *Record) (string, error) {
	if r.Token == "" {
		return "", fmt.Errorf("record has no token")
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return "", fmt.Errorf("expiresAt %v not after createdAt %v", r.ExpiresAt, r.CreatedAt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	tok := token.Normalize(r.Token)
	for _, existing := range s.cache {
		if existing.Token == tok && !existing.Expired(now) {
			return "", ErrDuplicateToken
		}
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Token = tok

	cp := *r
	if err := fsutil.WriteJSON(s.path(r.ID), &cp); err != nil {
		return "", fmt.Errorf("persisting session %s: %w", r.ID, err)
	}
	s.cache[r.ID] = &cp
	return r.ID, nil
}

// Mint creates a record with a freshly minted token, retrying on collision.
// It fills ID, Token, CreatedAt and ExpiresAt (using lifetime) on the given
// template.
func (s *Store) Mint(r *Record, lifetime time.Duration) (*Record, error) {
	now := s.clk.Now()
	r.CreatedAt = now
	r.ExpiresAt = now.Add(lifetime)

	tok, err := token.Mint(s.rand, func(candidate string) bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, existing := range s.cache {
			if existing.Token == candidate && !existing.Expired(now) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	r.Token = tok
	if _, err := s.Create(r); err != nil {
		return nil, err
	}
	return r, nil
}

// FindByToken returns the live record bound to tok, or ErrNotFound. Expired
// records are garbage-collected lazily here so a stale token can never
// authorize a command.
func (s *Store) FindByToken(tok string) (*Record, error) {
	tok = token.Normalize(tok)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	for id, r := range s.cache {
		if r.Token != tok {
			continue
		}
		if r.Expired(now) {
			s.removeLocked(id)
			continue
		}
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

// Get returns a record by ID, expired or not. Used by admin surfaces.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns a snapshot of all records, live and expired.
func (s *Store) List() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.cache))
	for _, r := range s.cache {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// IncrementCommandCount bumps the accepted-command counter atomically.
func (s *Store) IncrementCommandCount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[id]
	if !ok {
		return ErrNotFound
	}
	r.CommandCount++
	if err := fsutil.WriteJSON(s.path(id), r); err != nil {
		r.CommandCount--
		return fmt.Errorf("persisting session %s: %w", id, err)
	}
	return nil
}

// SetNotification records the audit copy of the last outbound payload.
func (s *Store) SetNotification(id string, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[id]
	if !ok {
		return ErrNotFound
	}
	r.Notification = n
	if err := fsutil.WriteJSON(s.path(id), r); err != nil {
		return fmt.Errorf("persisting session %s: %w", id, err)
	}
	return nil
}

// Delete removes a record. Idempotent: deleting an unknown ID is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id string) error {
	delete(s.cache, id)
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GC removes all records expired at the given instant and returns how many
// were dropped.
func (s *Store) GC(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, r := range s.cache {
		if r.Expired(now) {
			_ = s.removeLocked(id)
			count++
		}
	}
	return count
}
