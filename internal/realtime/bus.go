package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by a feed after Close.
var ErrClosed = errors.New("realtime feed closed")

// Bus is an in-process fan-out feed backed by buffered channels.
type Bus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
	closed bool
	log    zerolog.Logger
}

// NewBus creates a bus whose subscribers each buffer up to buffer events.
func NewBus(buffer int, log zerolog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[chan Event]struct{}), buffer: buffer, log: log}
}

// Publish enqueues evt for every subscriber without blocking; a full subscriber drops it.
func (b *Bus) Publish(_ context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Warn().Str("entry_id", evt.Record.ID).Msg("realtime subscriber full; event dropped")
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	ch := make(chan Event, b.buffer)
	b.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()
	return ch, nil
}

func (b *Bus) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
