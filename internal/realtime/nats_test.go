package realtime

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaiderRus/moodTrack/internal/model"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSFeedRoundTrip(t *testing.T) {
	server := startTestNATSServer(t)
	feed, err := ConnectNATS(server.ClientURL(), zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = feed.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, feed.HealthPing(ctx))

	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	entry := model.MoodEntry{ID: "e1", UserID: "u1", Text: "sunny", Tags: []string{"happy"}, CreatedAt: created}
	require.NoError(t, feed.Publish(ctx, EntryInserted(entry)))

	got := recv(t, ch)
	assert.Equal(t, TableMoodEntries, got.Table)
	assert.Equal(t, "e1", got.Record.ID)
	assert.Equal(t, []string{"happy"}, got.Record.Tags)
	assert.True(t, got.Record.CreatedAt.Equal(created))
}

func TestNATSFeedSkipsMalformed(t *testing.T) {
	server := startTestNATSServer(t)
	feed, err := ConnectNATS(server.ClientURL(), zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = feed.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := feed.Subscribe(ctx)
	require.NoError(t, err)
	require.NoError(t, feed.HealthPing(ctx))

	require.NoError(t, feed.nc.Publish(SubjectEntryInsert, []byte("not json")))
	require.NoError(t, feed.Publish(ctx, EntryInserted(model.MoodEntry{ID: "ok"})))
	assert.Equal(t, "ok", recv(t, ch).Record.ID)
}
