// Package moodstore keeps each signed-in user's ordered entry list in memory
// and merges initial loads, local saves and realtime inserts into it.
package moodstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RaiderRus/moodTrack/internal/metrics"
	"github.com/RaiderRus/moodTrack/internal/model"
)

// Source says where an appended entry came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceRealtime Source = "realtime"
	SourceLoad     Source = "load"
)

// Store is one user's entries, newest first (ties by id descending).
type Store struct {
	userID string
	ttl    time.Duration
	now    func() time.Time

	loadMu sync.Mutex
	loaded bool

	mu          sync.Mutex
	entries     []*model.MoodEntry
	byID        map[string]*model.MoodEntry
	highlightID string
	highlightAt time.Time
	subs        map[chan model.MoodEntry]struct{}
}

func newStore(userID string, ttl time.Duration, now func() time.Time) *Store {
	return &Store{
		userID: userID,
		ttl:    ttl,
		now:    now,
		byID:   make(map[string]*model.MoodEntry),
		subs:   make(map[chan model.MoodEntry]struct{}),
	}
}

// UserID is the owner of the store.
func (s *Store) UserID() string { return s.userID }

// Append merges e into the list. A second arrival of the same id is ignored,
// except that it may supply an audio reference the first one lacked.
// It reports whether the entry was new.
func (s *Store) Append(e model.MoodEntry, src Source) bool {
	added := s.insert(e, src != SourceLoad)
	if src != SourceLoad {
		result := "duplicate"
		if added {
			result = "appended"
		}
		metrics.MoodStoreAppends.WithLabelValues(string(src), result).Inc()
	}
	return added
}

func (s *Store) insert(e model.MoodEntry, announce bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byID[e.ID]; ok {
		if cur.Audio == nil && e.Audio != nil {
			a := *e.Audio
			cur.Audio = &a
		}
		return false
	}

	stored := cloneEntry(e)
	i := sort.Search(len(s.entries), func(i int) bool { return stored.NewerThan(s.entries[i]) })
	s.entries = append(s.entries, nil)
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = stored
	s.byID[stored.ID] = stored

	if announce {
		s.highlightID = stored.ID
		s.highlightAt = s.now()
		for ch := range s.subs {
			select {
			case ch <- *cloneEntry(*stored):
			default:
			}
		}
	}
	return true
}

// Snapshot returns a copy of the entries in display order.
func (s *Store) Snapshot() []model.MoodEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.MoodEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *cloneEntry(*e)
	}
	return out
}

// Len is the number of entries held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Highlighted returns the most recently appended entry id while its highlight lasts.
func (s *Store) Highlighted() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.highlightID == "" {
		return "", false
	}
	if s.now().Sub(s.highlightAt) >= s.ttl {
		s.highlightID = ""
		return "", false
	}
	return s.highlightID, true
}

// Subscribe delivers every newly appended entry until ctx is done.
func (s *Store) Subscribe(ctx context.Context) <-chan model.MoodEntry {
	ch := make(chan model.MoodEntry, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()
	return ch
}

func cloneEntry(e model.MoodEntry) *model.MoodEntry {
	out := e
	out.Tags = append([]string(nil), e.Tags...)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if e.Audio != nil {
		a := *e.Audio
		out.Audio = &a
	}
	return &out
}
