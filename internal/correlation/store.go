// Package correlation is the handoff surface between "we know some files"
// (the session buffer) and "we know the phone and are about to submit"
// (the finalizer). Entries are keyed by normalized phone, hold at most one
// resume and one video, and are consumed exactly once.
package correlation

import (
	"log/slog"
	"sync"

	"github.com/hirepath/intake/internal/channel"
	"github.com/hirepath/intake/internal/phone"
)

type entry struct {
	resume *channel.FileRef
	video  *channel.FileRef
}

// Store maps normalized phone numbers to pending file handoffs. Publish
// and Consume are atomic with respect to each other: a single mutex spans
// the read-existing/write-merged steps so no update is lost between
// concurrent webhook goroutines.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

// NewStore creates an empty correlation store.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		entries: make(map[string]*entry),
		logger:  log.With(slog.String("service", "correlation")),
	}
}

// Publish derives at most one resume and one video from the ordered refs
// (first occurrence of each kind wins) and upserts them under the
// normalized phone. Per kind it fills only when absent: a candidate's
// first file is preserved even if a duplicate arrives before submission.
func (s *Store) Publish(rawPhone string, refs []channel.FileRef) {
	key := phone.Normalize(rawPhone)
	if key == "" || len(refs) == 0 {
		return
	}

	var firstResume, firstVideo *channel.FileRef
	for i := range refs {
		switch refs[i].Kind {
		case channel.FileResume:
			if firstResume == nil {
				firstResume = &refs[i]
			}
		case channel.FileVideo:
			if firstVideo == nil {
				firstVideo = &refs[i]
			}
		}
	}
	if firstResume == nil && firstVideo == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok {
		current = &entry{}
		s.entries[key] = current
	}
	if current.resume == nil && firstResume != nil {
		ref := *firstResume
		current.resume = &ref
	}
	if current.video == nil && firstVideo != nil {
		ref := *firstVideo
		current.video = &ref
	}
	s.logger.Debug("published correlation entry",
		slog.String("phone", key),
		slog.Bool("has_resume", current.resume != nil),
		slog.Bool("has_video", current.video != nil),
	)
}

// Consume returns the entry for the normalized phone and atomically
// removes it. A second call before any new Publish returns nothing; this
// read-then-delete is what guarantees each buffered file reaches the CRM
// at most once per phone.
func (s *Store) Consume(rawPhone string) (resume, video *channel.FileRef) {
	key := phone.Normalize(rawPhone)
	if key == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	delete(s.entries, key)
	return current.resume, current.video
}

// Len reports the number of unconsumed entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
