package store

import (
	"context"
	"errors"
	"time"

	"github.com/RaiderRus/moodTrack/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist for the requesting owner.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("conflict")
	// ErrEmptyEntry is returned when an entry has neither tags nor text.
	ErrEmptyEntry = errors.New("entry needs at least one tag or non-empty text")
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
// Every read and write of journal data is scoped by owner id.
type Store interface {
	Users() Users
	Sessions() Sessions
	Entries() Entries
	Recordings() Recordings
	Outbox() Outbox
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type Sessions interface {
	Create(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, token string) (*model.Session, error)
	Delete(ctx context.Context, token string) error
}

// Entries persists mood entries. Create assigns id and creation time when
// absent and records an outbox row in the same transaction.
type Entries interface {
	Create(ctx context.Context, e *model.MoodEntry) (*model.MoodEntry, error)
	Get(ctx context.Context, userID, entryID string) (*model.MoodEntry, error)
	ListByUser(ctx context.Context, userID string) ([]*model.MoodEntry, error)
}

type Recordings interface {
	Put(ctx context.Context, r *model.AudioRecording) (*model.AudioRecording, error)
	GetByEntry(ctx context.Context, userID, entryID string) (*model.AudioRecording, error)
}

// Outbox hands pending change notifications to the relay.
type Outbox interface {
	// Lease returns up to limit ready rows and hides them from other
	// callers for the lease duration.
	Lease(ctx context.Context, limit int, lease time.Duration) ([]model.OutboxRecord, error)
	MarkDone(ctx context.Context, id int64) error
	// MarkFailed schedules the row again with exponential backoff.
	MarkFailed(ctx context.Context, id int64) error
}

// Now returns the creation timestamp used for new rows. Postgres keeps
// microseconds, so both drivers truncate to keep reads equal to writes.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
