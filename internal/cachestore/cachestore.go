// Package cachestore holds the observable in-memory table of per-user cache
// entries sitting between the orchestrator and the repositories.
//
// Mutation is always copy-then-replace: an Entry is never modified in place
// once published, so concurrent readers can hold returned pointers without
// observing partial updates. Bulk replacement of the table is reserved for
// registered event handlers, which authenticate with the capability token
// issued at registration.
package cachestore

import (
	"sync"
	"time"

	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

// Entry is the set of logs cached for one user plus bookkeeping metadata.
// At most one entry exists per user id.
type Entry struct {
	UserID       string
	Logs         []*structs.ConditioningLog
	LastAccessed time.Time
}

// Clone returns a copy of the entry with its own logs slice. Log pointers
// are shared; cached logs are treated as immutable values.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := &Entry{
		UserID:       e.UserID,
		LastAccessed: e.LastAccessed,
	}
	out.Logs = append([]*structs.ConditioningLog(nil), e.Logs...)
	return out
}

// HandlerToken is the capability handed out by RegisterHandler. Only holders
// of a registered token may call Snapshot and Replace.
type HandlerToken struct {
	name string
}

// Name returns the handler name the token was registered under.
func (t *HandlerToken) Name() string { return t.name }

// subscriberBufferSize bounds each subscriber's snapshot queue; a slow
// subscriber misses intermediate snapshots, never partial ones.
const subscriberBufferSize = 8

// Store is the single shared mutable resource of the core.
type Store struct {
	mu        sync.RWMutex
	entries   []*Entry
	populated bool
	tokens    map[*HandlerToken]struct{}
	subs      []chan []*Entry
}

// New creates an empty cache store.
func New() *Store {
	return &Store{
		tokens: make(map[*HandlerToken]struct{}),
	}
}

// Ready reports whether the cache has gone through initial population.
// Handler writes before that point do not count: only Populate flips the
// flag, so a lazily initialized cache still gets its full repository scan
// even when events arrived first.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.populated
}

// Populate installs the initial entry set built by the initialization guard
// and broadcasts the first snapshot. A second population is rejected;
// re-initialization must go through Replace. Entries written by handlers
// before initialization are superseded wholesale: the scan reads the same
// repositories those events came from, so it already reflects them.
func (s *Store) Populate(entries []*Entry) error {
	s.mu.Lock()
	if s.populated {
		s.mu.Unlock()
		return apperrors.Persistencef("cache already populated")
	}
	s.entries = entries
	s.populated = true
	snapshot := s.copyEntriesLocked()
	s.mu.Unlock()

	s.broadcast(snapshot)
	return nil
}

// Entries returns a read snapshot of the whole table.
func (s *Store) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyEntriesLocked()
}

// EntryByUser returns the entry owned by the given user id.
func (s *Store) EntryByUser(userID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.UserID == userID {
			return e, true
		}
	}
	return nil, false
}

// FindOwner scans every entry for the log id and returns the entry holding
// it. The scan is by log id, not user id, so detail promotion works no
// matter which entry holds the log.
func (s *Store) FindOwner(logID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		for _, l := range e.Logs {
			if l.ID == logID {
				return e, true
			}
		}
	}
	return nil, false
}

// SwapLog replaces the log with the same id inside the user's entry, bumps
// the entry's last-accessed time and broadcasts the new snapshot. This is
// the orchestrator's demand-driven promotion path.
func (s *Store) SwapLog(userID string, log *structs.ConditioningLog) bool {
	s.mu.Lock()
	swapped := false
	for i, e := range s.entries {
		if e.UserID != userID {
			continue
		}
		next := e.Clone()
		for j, l := range next.Logs {
			if l.ID == log.ID {
				next.Logs[j] = log
				swapped = true
				break
			}
		}
		if swapped {
			next.LastAccessed = time.Now().UTC()
			s.entries[i] = next
		}
		break
	}
	var snapshot []*Entry
	if swapped {
		snapshot = s.copyEntriesLocked()
	}
	s.mu.Unlock()

	if swapped {
		s.broadcast(snapshot)
	}
	return swapped
}

// RegisterHandler issues a capability token for the named handler.
func (s *Store) RegisterHandler(name string) *HandlerToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := &HandlerToken{name: name}
	s.tokens[tok] = struct{}{}
	return tok
}

// Snapshot returns a shallow copy of the table. Reserved for registered
// handlers.
func (s *Store) Snapshot(tok *HandlerToken) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.registeredLocked(tok) {
		return nil, apperrors.Unauthorizedf("snapshot requires a registered handler token")
	}
	return s.copyEntriesLocked(), nil
}

// Replace swaps in the whole new table and broadcasts it. Reserved for
// registered handlers; this is the only bulk write path into the cache.
func (s *Store) Replace(tok *HandlerToken, entries []*Entry) error {
	s.mu.Lock()
	if !s.registeredLocked(tok) {
		s.mu.Unlock()
		return apperrors.Unauthorizedf("replace requires a registered handler token")
	}
	s.entries = entries
	snapshot := s.copyEntriesLocked()
	s.mu.Unlock()

	s.broadcast(snapshot)
	return nil
}

// Subscribe returns a channel receiving the full snapshot after every
// mutation.
func (s *Store) Subscribe() <-chan []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan []*Entry, subscriberBufferSize)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *Store) registeredLocked(tok *HandlerToken) bool {
	if tok == nil {
		return false
	}
	_, ok := s.tokens[tok]
	return ok
}

func (s *Store) copyEntriesLocked() []*Entry {
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) broadcast(snapshot []*Entry) {
	s.mu.RLock()
	subs := append([]chan []*Entry(nil), s.subs...)
	s.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber, skip this snapshot.
		}
	}
}
