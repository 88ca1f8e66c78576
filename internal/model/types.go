package model

import (
	"strings"
	"time"
)

// User is a journal account.
type User struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreationTime time.Time `json:"creationTime"`
}

// Session is an authenticated sign-in.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AudioRef points at the recording attached to an entry.
type AudioRef struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds"`
}

// MoodEntry is an immutable journal record.
type MoodEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	Audio     *AudioRef `json:"audio,omitempty"`
}

// HasContent reports whether the entry satisfies the creation invariant:
// at least one tag or non-blank text.
func (e *MoodEntry) HasContent() bool {
	return len(e.Tags) > 0 || strings.TrimSpace(e.Text) != ""
}

// NewerThan orders entries newest first; ties fall back to id.
func (e *MoodEntry) NewerThan(o *MoodEntry) bool {
	if e.CreatedAt.Equal(o.CreatedAt) {
		return e.ID > o.ID
	}
	return e.CreatedAt.After(o.CreatedAt)
}

// AudioRecording is the stored row linking an entry to its audio object.
type AudioRecording struct {
	EntryID         string    `json:"entryId"`
	UserID          string    `json:"userId"`
	URL             string    `json:"url"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Ref converts the row to the reference carried by an entry.
func (r *AudioRecording) Ref() *AudioRef {
	return &AudioRef{URL: r.URL, DurationSeconds: r.DurationSeconds}
}

// OutboxRecord is a pending change notification written with an entry insert.
type OutboxRecord struct {
	ID          int64
	Op          string
	AggregateID string
	Payload     []byte
	Attempts    int
}

// Outbox operation names.
const (
	OpEntryInserted = "mood_entry_inserted"
)

// NoticeLevel grades a user notification.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient user-facing notification.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// DedupeTags removes duplicate and empty ids, keeping first-seen order.
func DedupeTags(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
