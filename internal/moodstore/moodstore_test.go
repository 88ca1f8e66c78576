package moodstore

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/realtime"
	"github.com/RaiderRus/moodTrack/internal/store"
	"github.com/RaiderRus/moodTrack/internal/store/sqlite"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(id string, minutes int) model.MoodEntry {
	return model.MoodEntry{ID: id, UserID: "u1", Tags: []string{"happy"}, CreatedAt: base.Add(time.Duration(minutes) * time.Minute)}
}

func ids(entries []model.MoodEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestAppendKeepsNewestFirst(t *testing.T) {
	s := newStore("u1", time.Second, time.Now)
	s.Append(entry("b", 10), SourceLocal)
	s.Append(entry("a", 30), SourceRealtime)
	s.Append(entry("c", 20), SourceLocal)
	s.Append(entry("d", 20), SourceLocal)

	assert.Equal(t, []string{"a", "d", "c", "b"}, ids(s.Snapshot()))
}

func TestAppendOrderUnderAnyInterleaving(t *testing.T) {
	type arrival struct {
		e   model.MoodEntry
		src Source
	}
	arrivals := []arrival{
		{entry("a", 10), SourceLoad},
		{entry("b", 20), SourceLoad},
		{entry("c", 20), SourceLocal},
		{entry("c", 20), SourceRealtime},
		{entry("d", 30), SourceRealtime},
		{entry("e", 5), SourceLocal},
		{entry("b", 20), SourceRealtime},
		{entry("f", 20), SourceRealtime},
		{entry("a", 10), SourceLocal},
	}
	want := []string{"d", "f", "c", "b", "a", "e"}

	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 500; round++ {
		rng.Shuffle(len(arrivals), func(i, j int) { arrivals[i], arrivals[j] = arrivals[j], arrivals[i] })

		s := newStore("u1", time.Second, time.Now)
		for _, a := range arrivals {
			s.Append(a.e, a.src)
		}

		snap := s.Snapshot()
		require.Equal(t, want, ids(snap), "round %d", round)
		for i := 1; i < len(snap); i++ {
			require.True(t, snap[i-1].NewerThan(&snap[i]), "round %d: %s before %s", round, snap[i-1].ID, snap[i].ID)
		}
	}
}

func TestAppendDeduplicatesByID(t *testing.T) {
	s := newStore("u1", time.Second, time.Now)
	assert.True(t, s.Append(entry("x", 0), SourceLocal))

	dup := entry("x", 5)
	dup.Text = "changed"
	assert.False(t, s.Append(dup, SourceRealtime))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Empty(t, snap[0].Text, "second arrival must not overwrite")
	assert.Nil(t, snap[0].Audio)

	withAudio := entry("x", 0)
	withAudio.Audio = &model.AudioRef{URL: "http://a/x.webm", DurationSeconds: 3}
	assert.False(t, s.Append(withAudio, SourceLocal))
	snap = s.Snapshot()
	require.Len(t, snap, 1)
	require.NotNil(t, snap[0].Audio)
	assert.Equal(t, 3, snap[0].Audio.DurationSeconds)
}

func TestHighlightExpires(t *testing.T) {
	c := &clock{t: base}
	s := newStore("u1", time.Second, c.now)

	_, ok := s.Highlighted()
	assert.False(t, ok)

	s.Append(entry("old", 0), SourceLoad)
	_, ok = s.Highlighted()
	assert.False(t, ok, "loaded entries are not highlighted")

	s.Append(entry("new", 1), SourceLocal)
	id, ok := s.Highlighted()
	require.True(t, ok)
	assert.Equal(t, "new", id)

	c.t = c.t.Add(999 * time.Millisecond)
	_, ok = s.Highlighted()
	assert.True(t, ok)

	c.t = c.t.Add(time.Millisecond)
	_, ok = s.Highlighted()
	assert.False(t, ok)
	assert.Equal(t, []string{"new", "old"}, ids(s.Snapshot()), "highlight never affects order")
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newStore("u1", time.Second, time.Now)
	s.Append(entry("a", 0), SourceLocal)
	snap := s.Snapshot()
	snap[0].Tags[0] = "mutated"
	assert.Equal(t, "happy", s.Snapshot()[0].Tags[0])
}

func TestSubscribeReceivesAppends(t *testing.T) {
	s := newStore("u1", time.Second, time.Now)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)

	s.Append(entry("a", 0), SourceRealtime)
	s.Append(entry("a", 0), SourceLocal)

	select {
	case e := <-ch:
		assert.Equal(t, "a", e.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no append delivered")
	}
	assert.Len(t, ch, 0, "duplicates are not announced")
	cancel()
}

func newRows(t *testing.T) store.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "moods.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.EnsureSchema(db))
	return sqlite.NewWithDB(db)
}

func TestProviderLoadsAndMergesRealtime(t *testing.T) {
	ctx := context.Background()
	rows := newRows(t)
	u, err := rows.Users().Create(ctx, &model.User{Email: "p@example.com", PasswordHash: []byte("h")})
	require.NoError(t, err)

	first, err := rows.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Text: "morning", CreatedAt: base})
	require.NoError(t, err)
	_, err = rows.Recordings().Put(ctx, &model.AudioRecording{EntryID: first.ID, UserID: u.UserID, URL: "http://a/1.webm", DurationSeconds: 2})
	require.NoError(t, err)

	p := NewProvider(rows, zerolog.Nop())

	// events for users without a loaded store are ignored
	p.HandleEvent(ctx, realtime.EntryInserted(model.MoodEntry{ID: "ghost", UserID: u.UserID, CreatedAt: base}))
	_, loaded := p.Loaded(u.UserID)
	assert.False(t, loaded)

	s, err := p.For(ctx, u.UserID)
	require.NoError(t, err)
	snap := s.Snapshot()
	require.Len(t, snap, 1)
	require.NotNil(t, snap[0].Audio)
	assert.Equal(t, "http://a/1.webm", snap[0].Audio.URL)

	second, err := rows.Entries().Create(ctx, &model.MoodEntry{UserID: u.UserID, Text: "evening", CreatedAt: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = rows.Recordings().Put(ctx, &model.AudioRecording{EntryID: second.ID, UserID: u.UserID, URL: "http://a/2.webm", DurationSeconds: 5})
	require.NoError(t, err)

	p.HandleEvent(ctx, realtime.EntryInserted(*second))
	// optimistic append of the same entry after the realtime one is a no-op
	p.Append(*second)

	snap = s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, second.ID, snap[0].ID)
	require.NotNil(t, snap[0].Audio, "realtime append resolves the audio reference")
	assert.Equal(t, 5, snap[0].Audio.DurationSeconds)

	p.HandleEvent(ctx, realtime.Event{Table: "audio_recordings", Type: realtime.TypeInsert, Record: model.MoodEntry{ID: "z", UserID: u.UserID}})
	assert.Equal(t, 2, s.Len())
}

func TestProviderRunConsumesFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rows := newRows(t)
	p := NewProvider(rows, zerolog.Nop())
	s, err := p.For(ctx, "u1")
	require.NoError(t, err)

	bus := realtime.NewBus(4, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, bus) }()

	appended := s.Subscribe(ctx)
	require.Eventually(t, func() bool {
		_ = bus.Publish(ctx, realtime.EntryInserted(entry("rt", 0)))
		select {
		case e := <-appended:
			return e.ID == "rt"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
