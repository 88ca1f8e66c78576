package moodstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/realtime"
	"github.com/RaiderRus/moodTrack/internal/store"
)

// DefaultHighlightTTL is how long a freshly appended entry stays highlighted.
const DefaultHighlightTTL = time.Second

// Provider owns one Store per user.
type Provider struct {
	rows store.Store
	ttl  time.Duration
	now  func() time.Time
	log  zerolog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// Option customises a Provider.
type Option func(*Provider)

// WithClock replaces the time source used for highlights.
func WithClock(now func() time.Time) Option { return func(p *Provider) { p.now = now } }

// WithHighlightTTL sets how long Highlighted reports an entry.
func WithHighlightTTL(ttl time.Duration) Option { return func(p *Provider) { p.ttl = ttl } }

func NewProvider(rows store.Store, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		rows:   rows,
		ttl:    DefaultHighlightTTL,
		now:    time.Now,
		log:    log,
		stores: make(map[string]*Store),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// For returns the user's store, loading it on first use.
func (p *Provider) For(ctx context.Context, userID string) (*Store, error) {
	p.mu.Lock()
	s, ok := p.stores[userID]
	if !ok {
		s = newStore(userID, p.ttl, p.now)
		p.stores[userID] = s
	}
	p.mu.Unlock()

	if err := p.load(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Loaded returns the user's store only if it has already been loaded.
func (p *Provider) Loaded(userID string) (*Store, bool) {
	p.mu.Lock()
	s, ok := p.stores[userID]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s, s.loaded
}

func (p *Provider) load(ctx context.Context, s *Store) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded {
		return nil
	}
	rows, err := p.rows.Entries().ListByUser(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("load entries: %w", err)
	}
	for _, e := range rows {
		s.Append(*e, SourceLoad)
	}
	s.loaded = true
	p.log.Debug().Str("user_id", s.userID).Int("entries", len(rows)).Msg("mood store loaded")
	return nil
}

// Run feeds realtime inserts into the loaded stores of their owners until ctx is done.
func (p *Provider) Run(ctx context.Context, feed realtime.Feed) error {
	events, err := feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe realtime feed: %w", err)
	}
	p.log.Info().Msg("mood store realtime consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			p.HandleEvent(ctx, evt)
		}
	}
}

// HandleEvent applies one realtime event.
func (p *Provider) HandleEvent(ctx context.Context, evt realtime.Event) {
	if evt.Table != realtime.TableMoodEntries || evt.Type != realtime.TypeInsert {
		return
	}
	entry := evt.Record
	s, ok := p.Loaded(entry.UserID)
	if !ok {
		return
	}
	if entry.Audio == nil {
		rec, err := p.rows.Recordings().GetByEntry(ctx, entry.UserID, entry.ID)
		switch {
		case err == nil:
			entry.Audio = rec.Ref()
		case !errors.Is(err, store.ErrNotFound):
			p.log.Warn().Err(err).Str("entry_id", entry.ID).Msg("resolve audio for realtime entry")
		}
	}
	s.Append(entry, SourceRealtime)
}

// Append adds a locally saved entry to its owner's store if loaded.
func (p *Provider) Append(entry model.MoodEntry) {
	if s, ok := p.Loaded(entry.UserID); ok {
		s.Append(entry, SourceLocal)
	}
}
