//go:build integration
// +build integration

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/RaiderRus/moodTrack/internal/store"
	"github.com/RaiderRus/moodTrack/internal/store/storetest"
)

var testDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "moodtrack",
			"POSTGRES_PASSWORD": "moodtrack",
			"POSTGRES_DB":       "moodtrack",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	host, err := container.Host(ctx)
	if err != nil {
		fmt.Printf("failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Printf("failed to get container port: %v\n", err)
		os.Exit(1)
	}
	testDSN = fmt.Sprintf("postgres://moodtrack:moodtrack@%s:%s/moodtrack?sslmode=disable", host, port.Port())

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Printf("failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

// resetSchema drops every table so each subtest starts from an empty store.
func resetSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`DROP TABLE IF EXISTS outbox, audio_recordings, mood_entries, sessions, users CASCADE`)
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestPostgresStore(t *testing.T) {
	db, err := Open(testDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	storetest.Run(t, func(t *testing.T) store.Store {
		resetSchema(t, db)
		return NewWithDB(db)
	})
}
