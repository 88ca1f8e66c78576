package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store {
	return &pgStore{db: db, types: pgtype.NewMap()}
}

type pgStore struct {
	db    *sql.DB
	types *pgtype.Map
}

func (s *pgStore) Users() store.Users           { return &users{db: s.db} }
func (s *pgStore) Sessions() store.Sessions     { return &sessions{db: s.db} }
func (s *pgStore) Entries() store.Entries       { return &entries{db: s.db, types: s.types} }
func (s *pgStore) Recordings() store.Recordings { return &recordings{db: s.db} }
func (s *pgStore) Outbox() store.Outbox         { return &outbox{db: s.db} }

// HealthPing implements health.HealthPinger for the Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// --- Users ---
type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	if out.UserID == "" {
		out.UserID = uuid.New().String()
	}
	out.CreationTime = store.Now()
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO users (user_id, email, password_hash, creation_time)
        VALUES ($1,$2,$3,$4)
    `, out.UserID, out.Email, out.PasswordHash, out.CreationTime)
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	return u.scanOne(u.db.QueryRowContext(ctx, `
        SELECT user_id, email, password_hash, creation_time FROM users WHERE user_id=$1
    `, userID))
}

func (u *users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.scanOne(u.db.QueryRowContext(ctx, `
        SELECT user_id, email, password_hash, creation_time FROM users WHERE email=$1
    `, email))
}

func (u *users) scanOne(row *sql.Row) (*model.User, error) {
	var out model.User
	if err := row.Scan(&out.UserID, &out.Email, &out.PasswordHash, &out.CreationTime); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

// --- Sessions ---
type sessions struct{ db *sql.DB }

func (s *sessions) Create(ctx context.Context, m *model.Session) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES ($1,$2,$3,$4)
    `, m.Token, m.UserID, m.CreatedAt, m.ExpiresAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *sessions) Get(ctx context.Context, token string) (*model.Session, error) {
	var out model.Session
	row := s.db.QueryRowContext(ctx, `
        SELECT token, user_id, created_at, expires_at FROM sessions WHERE token=$1
    `, token)
	if err := row.Scan(&out.Token, &out.UserID, &out.CreatedAt, &out.ExpiresAt); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

func (s *sessions) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	return err
}

// --- Entries ---
type entries struct {
	db    *sql.DB
	types *pgtype.Map
}

const selectEntrySQL = `
SELECT e.id, e.user_id, e.text, e.tags, e.created_at, a.url, a.duration_seconds
FROM mood_entries e
LEFT JOIN audio_recordings a ON a.entry_id = e.id AND a.user_id = e.user_id`

func (e *entries) Create(ctx context.Context, m *model.MoodEntry) (*model.MoodEntry, error) {
	out := *m
	out.Tags = model.DedupeTags(m.Tags)
	if !out.HasContent() {
		return nil, store.ErrEmptyEntry
	}
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = store.Now()
	}
	out.Audio = nil

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO mood_entries (id, user_id, text, tags, created_at)
        VALUES ($1,$2,$3,$4,$5)
    `, out.ID, out.UserID, out.Text, out.Tags, out.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := writeOutbox(ctx, tx, model.OpEntryInserted, out.ID, &out); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *entries) Get(ctx context.Context, userID, entryID string) (*model.MoodEntry, error) {
	row := e.db.QueryRowContext(ctx, selectEntrySQL+` WHERE e.user_id=$1 AND e.id=$2`, userID, entryID)
	out, err := e.scan(row)
	if err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

func (e *entries) ListByUser(ctx context.Context, userID string) ([]*model.MoodEntry, error) {
	rows, err := e.db.QueryContext(ctx, selectEntrySQL+` WHERE e.user_id=$1 ORDER BY e.created_at DESC, e.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []*model.MoodEntry
	for rows.Next() {
		out, err := e.scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, out)
	}
	return res, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func (e *entries) scan(row scanner) (*model.MoodEntry, error) {
	var out model.MoodEntry
	var url sql.NullString
	var dur sql.NullInt64
	if err := row.Scan(&out.ID, &out.UserID, &out.Text, e.types.SQLScanner(&out.Tags), &out.CreatedAt, &url, &dur); err != nil {
		return nil, err
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	out.CreatedAt = out.CreatedAt.UTC()
	if url.Valid {
		out.Audio = &model.AudioRef{URL: url.String, DurationSeconds: int(dur.Int64)}
	}
	return &out, nil
}

// --- Recordings ---
type recordings struct{ db *sql.DB }

func (r *recordings) Put(ctx context.Context, m *model.AudioRecording) (*model.AudioRecording, error) {
	out := *m
	if out.CreatedAt.IsZero() {
		out.CreatedAt = store.Now()
	}
	// The entry must exist and belong to the same owner.
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO audio_recordings (entry_id, user_id, url, duration_seconds, created_at)
        SELECT id, user_id, $3, $4, $5 FROM mood_entries WHERE id=$1 AND user_id=$2
        ON CONFLICT (entry_id) DO UPDATE
        SET url = EXCLUDED.url, duration_seconds = EXCLUDED.duration_seconds, created_at = EXCLUDED.created_at
    `, out.EntryID, out.UserID, out.URL, out.DurationSeconds, out.CreatedAt)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return &out, nil
}

func (r *recordings) GetByEntry(ctx context.Context, userID, entryID string) (*model.AudioRecording, error) {
	var out model.AudioRecording
	row := r.db.QueryRowContext(ctx, `
        SELECT entry_id, user_id, url, duration_seconds, created_at
        FROM audio_recordings WHERE user_id=$1 AND entry_id=$2
    `, userID, entryID)
	if err := row.Scan(&out.EntryID, &out.UserID, &out.URL, &out.DurationSeconds, &out.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &out, nil
}

// --- Outbox ---
type outbox struct{ db *sql.DB }

const (
	leaseReadyRowsSQL = `
UPDATE outbox
SET next_attempt_at = now() + make_interval(secs => $2), update_time = now()
WHERE id IN (
    SELECT id FROM outbox
    WHERE status = 'pending' AND next_attempt_at <= now()
    ORDER BY id ASC
    FOR UPDATE SKIP LOCKED
    LIMIT $1)
RETURNING id, op, aggregate_id, payload, attempt_count`

	markDoneSQL = `UPDATE outbox SET status='done', update_time=now() WHERE id=$1`

	markFailedSQL = `
UPDATE outbox
SET attempt_count = attempt_count + 1,
    next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, attempt_count+1), 300)),
    update_time = now()
WHERE id=$1`
)

func (o *outbox) Lease(ctx context.Context, limit int, lease time.Duration) ([]model.OutboxRecord, error) {
	rows, err := o.db.QueryContext(ctx, leaseReadyRowsSQL, limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var recs []model.OutboxRecord
	for rows.Next() {
		var rec model.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.Op, &rec.AggregateID, &rec.Payload, &rec.Attempts); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs, nil
}

func (o *outbox) MarkDone(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, markDoneSQL, id)
	return err
}

func (o *outbox) MarkFailed(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, markFailedSQL, id)
	return err
}

func writeOutbox(ctx context.Context, tx *sql.Tx, op string, aggregateID string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO outbox (aggregate_id, op, payload) VALUES ($1,$2,$3)`, aggregateID, op, b)
	return err
}
