// Package realtime carries row-insert notifications to interested subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RaiderRus/moodTrack/internal/model"
)

const (
	TableMoodEntries = "mood_entries"
	TypeInsert       = "INSERT"

	// SubjectEntryInsert is the NATS subject for mood entry inserts.
	SubjectEntryInsert = "moodtrack.mood_entries.insert"
)

// Event is an insert notification in the shape {table, type, record}.
type Event struct {
	Table  string          `json:"table"`
	Type   string          `json:"type"`
	Record model.MoodEntry `json:"record"`
}

// EntryInserted builds the event for a freshly stored entry.
func EntryInserted(e model.MoodEntry) Event {
	return Event{Table: TableMoodEntries, Type: TypeInsert, Record: e}
}

// Feed publishes events and hands them to subscribers.
type Feed interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe delivers events until ctx is done; the channel is then closed.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}

func decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode realtime event: %w", err)
	}
	return evt, nil
}
