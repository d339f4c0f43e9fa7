// Package session holds per-channel, per-chat conversational state: the
// ordered buffer of received-but-unsubmitted file references, the phone
// number once the conversation reveals one, and a last-activity timestamp
// used for garbage collection. State is in-process only and lost on
// restart; that volatility is an accepted limitation, not a bug.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hirepath/intake/internal/channel"
)

// DefaultTTL is the inactivity window after which a session is collected.
const DefaultTTL = 24 * time.Hour

type session struct {
	files        []channel.FileRef
	phone        string
	lastActivity time.Time
}

// Store is the process-wide session map. All operations run under a single
// mutex: webhook handlers process events on real goroutines, so the
// read-modify-write steps must not interleave.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates a session store with the given inactivity TTL.
func NewStore(log *slog.Logger, ttl time.Duration) *Store {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
		logger:   log.With(slog.String("service", "session")),
	}
}

func (s *Store) touch(key string) *session {
	entry, ok := s.sessions[key]
	if !ok {
		entry = &session{}
		s.sessions[key] = entry
	}
	entry.lastActivity = s.now()
	return entry
}

// Append inserts a file reference at the end of the session's buffer.
// No dedup; ordering is arrival order.
func (s *Store) Append(key string, ref channel.FileRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.touch(key)
	entry.files = append(entry.files, ref)
}

// Snapshot returns a copy of the buffered file references in arrival
// order. It does not clear the buffer: the buffer persists across turns
// and may be re-read; only the correlation store entry is one-shot.
func (s *Store) Snapshot(key string) []channel.FileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[key]
	if !ok || len(entry.files) == 0 {
		return nil
	}
	out := make([]channel.FileRef, len(entry.files))
	copy(out, entry.files)
	return out
}

// Clear resets the session's buffer. Called only once an application is
// confirmed fully submitted, never automatically by Append or Snapshot.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[key]
	if !ok {
		return
	}
	entry.files = nil
	entry.lastActivity = s.now()
}

// SetPhone records the phone number revealed by the conversation.
func (s *Store) SetPhone(key, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.touch(key)
	entry.phone = phone
}

// Phone returns the session's known phone number, or "" when unknown.
func (s *Store) Phone(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[key]
	if !ok {
		return ""
	}
	return entry.phone
}

// Sweep removes sessions idle past the TTL and returns how many were
// collected. Wired to a cron schedule at boot.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for key, entry := range s.sessions {
		if entry.lastActivity.Before(cutoff) {
			delete(s.sessions, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("collected idle sessions", slog.Int("count", removed))
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
