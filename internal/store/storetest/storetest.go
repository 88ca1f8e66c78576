// Package storetest holds the behaviour every store driver must share.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/store"
)

// Run exercises a fresh, empty store. newStore is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("EntriesOrderingAndScope", func(t *testing.T) { testEntries(t, newStore(t)) })
	t.Run("EntryValidation", func(t *testing.T) { testEntryValidation(t, newStore(t)) })
	t.Run("Recordings", func(t *testing.T) { testRecordings(t, newStore(t)) })
	t.Run("Outbox", func(t *testing.T) { testOutbox(t, newStore(t)) })
}

func mustUser(t *testing.T, s store.Store, email string) *model.User {
	t.Helper()
	u, err := s.Users().Create(context.Background(), &model.User{Email: email, PasswordHash: []byte("hash")})
	require.NoError(t, err)
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "ann@example.com")
	require.NotEmpty(t, u.UserID)

	got, err := s.Users().GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	got, err = s.Users().Get(ctx, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", got.Email)

	_, err = s.Users().Create(ctx, &model.User{Email: "ann@example.com", PasswordHash: []byte("x")})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Users().Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testSessions(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "sam@example.com")
	now := store.Now()
	sess := &model.Session{Token: "tok-1", UserID: u.UserID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.Sessions().Create(ctx, sess))

	got, err := s.Sessions().Get(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

	require.NoError(t, s.Sessions().Delete(ctx, "tok-1"))
	_, err = s.Sessions().Get(ctx, "tok-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testEntries(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustUser(t, s, "a@example.com")
	b := mustUser(t, s, "b@example.com")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		_, err := s.Entries().Create(ctx, &model.MoodEntry{
			UserID:    a.UserID,
			Text:      text,
			Tags:      []string{"happy"},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: b.UserID, Tags: []string{"sad"}})
	require.NoError(t, err)

	list, err := s.Entries().ListByUser(ctx, a.UserID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Text)
	assert.Equal(t, "first", list[2].Text)
	for _, e := range list {
		assert.Equal(t, a.UserID, e.UserID)
		assert.Nil(t, e.Audio)
	}

	_, err = s.Entries().Get(ctx, b.UserID, list[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Entries().Get(ctx, a.UserID, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"happy"}, got.Tags)
	assert.True(t, got.CreatedAt.Equal(base.Add(2*time.Hour)))
}

func testEntryValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "v@example.com")

	_, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Text: "   "})
	assert.ErrorIs(t, err, store.ErrEmptyEntry)

	e, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Tags: []string{"calm", "calm", "work"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"calm", "work"}, e.Tags)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	textOnly, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Text: "just words"})
	require.NoError(t, err)
	got, err := s.Entries().Get(ctx, u.UserID, textOnly.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
	assert.NotNil(t, got.Tags)
}

func testRecordings(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustUser(t, s, "rec-a@example.com")
	b := mustUser(t, s, "rec-b@example.com")
	e, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: a.UserID, Text: "voice"})
	require.NoError(t, err)

	_, err = s.Recordings().Put(ctx, &model.AudioRecording{EntryID: e.ID, UserID: b.UserID, URL: "u", DurationSeconds: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Recordings().Put(ctx, &model.AudioRecording{EntryID: e.ID, UserID: a.UserID, URL: "http://x/one.webm", DurationSeconds: 4})
	require.NoError(t, err)
	// a second put replaces the first
	_, err = s.Recordings().Put(ctx, &model.AudioRecording{EntryID: e.ID, UserID: a.UserID, URL: "http://x/two.webm", DurationSeconds: 7})
	require.NoError(t, err)

	rec, err := s.Recordings().GetByEntry(ctx, a.UserID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://x/two.webm", rec.URL)

	_, err = s.Recordings().GetByEntry(ctx, b.UserID, e.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Entries().Get(ctx, a.UserID, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Audio)
	assert.Equal(t, 7, got.Audio.DurationSeconds)
}

func testOutbox(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := mustUser(t, s, "o@example.com")
	e1, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Text: "one"})
	require.NoError(t, err)
	e2, err := s.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Text: "two"})
	require.NoError(t, err)

	recs, err := s.Outbox().Lease(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, e1.ID, recs[0].AggregateID)
	assert.Equal(t, e2.ID, recs[1].AggregateID)
	assert.Equal(t, model.OpEntryInserted, recs[0].Op)

	var payload model.MoodEntry
	require.NoError(t, json.Unmarshal(recs[0].Payload, &payload))
	assert.Equal(t, "one", payload.Text)

	leased, err := s.Outbox().Lease(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, leased, "leased rows stay hidden")

	require.NoError(t, s.Outbox().MarkDone(ctx, recs[0].ID))
	require.NoError(t, s.Outbox().MarkFailed(ctx, recs[1].ID))

	again, err := s.Outbox().Lease(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, again, "done rows are never leased and failed rows wait for backoff")
}
