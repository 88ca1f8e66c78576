package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/store"
)

// NewWithDB wires a store over an existing connection whose schema is in place.
func NewWithDB(db *sql.DB) store.Store {
	return &sqliteStore{db: db, now: store.Now}
}

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *sqliteStore) Users() store.Users           { return &users{s} }
func (s *sqliteStore) Sessions() store.Sessions     { return &sessions{s} }
func (s *sqliteStore) Entries() store.Entries       { return &entries{s} }
func (s *sqliteStore) Recordings() store.Recordings { return &recordings{s} }
func (s *sqliteStore) Outbox() store.Outbox         { return &outbox{s} }

func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// --- Users ---
type users struct{ s *sqliteStore }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	if out.UserID == "" {
		out.UserID = uuid.New().String()
	}
	out.CreationTime = u.s.now()
	_, err := u.s.db.ExecContext(ctx, `INSERT INTO users (user_id, email, password_hash, creation_time) VALUES (?,?,?,?)`,
		out.UserID, out.Email, out.PasswordHash, nanos(out.CreationTime))
	if isUniqueViolation(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	return scanUser(u.s.db.QueryRowContext(ctx, `SELECT user_id, email, password_hash, creation_time FROM users WHERE user_id = ?`, userID))
}

func (u *users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(u.s.db.QueryRowContext(ctx, `SELECT user_id, email, password_hash, creation_time FROM users WHERE email = ?`, email))
}

func scanUser(row *sql.Row) (*model.User, error) {
	var out model.User
	var created int64
	if err := row.Scan(&out.UserID, &out.Email, &out.PasswordHash, &created); err != nil {
		return nil, notFound(err)
	}
	out.CreationTime = fromNanos(created)
	return &out, nil
}

// --- Sessions ---
type sessions struct{ s *sqliteStore }

func (ss *sessions) Create(ctx context.Context, m *model.Session) error {
	_, err := ss.s.db.ExecContext(ctx, `INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?,?,?,?)`,
		m.Token, m.UserID, nanos(m.CreatedAt), nanos(m.ExpiresAt))
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (ss *sessions) Get(ctx context.Context, token string) (*model.Session, error) {
	var out model.Session
	var created, expires int64
	row := ss.s.db.QueryRowContext(ctx, `SELECT token, user_id, created_at, expires_at FROM sessions WHERE token = ?`, token)
	if err := row.Scan(&out.Token, &out.UserID, &created, &expires); err != nil {
		return nil, notFound(err)
	}
	out.CreatedAt = fromNanos(created)
	out.ExpiresAt = fromNanos(expires)
	return &out, nil
}

func (ss *sessions) Delete(ctx context.Context, token string) error {
	_, err := ss.s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

// --- Entries ---
type entries struct{ s *sqliteStore }

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
		out.CreatedAt = e.s.now()
	}
	out.Audio = nil

	tagsJSON, err := json.Marshal(out.Tags)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(&out)
	if err != nil {
		return nil, err
	}

	tx, err := e.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO mood_entries (id, user_id, text, tags, created_at) VALUES (?,?,?,?,?)`,
		out.ID, out.UserID, out.Text, string(tagsJSON), nanos(out.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	now := nanos(e.s.now())
	if _, err := tx.ExecContext(ctx, `INSERT INTO outbox (aggregate_id, op, payload, next_attempt_at, update_time) VALUES (?,?,?,?,?)`,
		out.ID, model.OpEntryInserted, string(payload), now, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *entries) Get(ctx context.Context, userID, entryID string) (*model.MoodEntry, error) {
	out, err := scanEntry(e.s.db.QueryRowContext(ctx, selectEntrySQL+` WHERE e.user_id = ? AND e.id = ?`, userID, entryID))
	if err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

func (e *entries) ListByUser(ctx context.Context, userID string) ([]*model.MoodEntry, error) {
	rows, err := e.s.db.QueryContext(ctx, selectEntrySQL+` WHERE e.user_id = ? ORDER BY e.created_at DESC, e.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []*model.MoodEntry
	for rows.Next() {
		out, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, out)
	}
	return res, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanEntry(row scanner) (*model.MoodEntry, error) {
	var out model.MoodEntry
	var tagsJSON string
	var created int64
	var url sql.NullString
	var dur sql.NullInt64
	if err := row.Scan(&out.ID, &out.UserID, &out.Text, &tagsJSON, &created, &url, &dur); err != nil {
		return nil, err
	}
	out.Tags = []string{}
	if strings.TrimSpace(tagsJSON) != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &out.Tags); err != nil {
			return nil, err
		}
	}
	out.CreatedAt = fromNanos(created)
	if url.Valid {
		out.Audio = &model.AudioRef{URL: url.String, DurationSeconds: int(dur.Int64)}
	}
	return &out, nil
}

// --- Recordings ---
type recordings struct{ s *sqliteStore }

func (r *recordings) Put(ctx context.Context, m *model.AudioRecording) (*model.AudioRecording, error) {
	out := *m
	if out.CreatedAt.IsZero() {
		out.CreatedAt = r.s.now()
	}
	res, err := r.s.db.ExecContext(ctx, `
        INSERT INTO audio_recordings (entry_id, user_id, url, duration_seconds, created_at)
        SELECT id, user_id, ?, ?, ? FROM mood_entries WHERE id = ? AND user_id = ?
        ON CONFLICT (entry_id) DO UPDATE
        SET url = excluded.url, duration_seconds = excluded.duration_seconds, created_at = excluded.created_at`,
		out.URL, out.DurationSeconds, nanos(out.CreatedAt), out.EntryID, out.UserID)
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
	var created int64
	row := r.s.db.QueryRowContext(ctx, `SELECT entry_id, user_id, url, duration_seconds, created_at FROM audio_recordings WHERE user_id = ? AND entry_id = ?`, userID, entryID)
	if err := row.Scan(&out.EntryID, &out.UserID, &out.URL, &out.DurationSeconds, &created); err != nil {
		return nil, notFound(err)
	}
	out.CreatedAt = fromNanos(created)
	return &out, nil
}

// --- Outbox ---
type outbox struct{ s *sqliteStore }

// SQLite serialises writers, so a transaction is enough to make the lease exclusive.
func (o *outbox) Lease(ctx context.Context, limit int, lease time.Duration) ([]model.OutboxRecord, error) {
	tx, err := o.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := nanos(o.s.now())
	rows, err := tx.QueryContext(ctx, `
        SELECT id, op, aggregate_id, payload, attempt_count FROM outbox
        WHERE status = 'pending' AND next_attempt_at <= ?
        ORDER BY id ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	var recs []model.OutboxRecord
	for rows.Next() {
		var rec model.OutboxRecord
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Op, &rec.AggregateID, &payload, &rec.Attempts); err != nil {
			_ = rows.Close()
			return nil, err
		}
		rec.Payload = []byte(payload)
		recs = append(recs, rec)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET next_attempt_at = ?, update_time = ? WHERE id = ?`,
			now+int64(lease), now, rec.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return recs, nil
}

func (o *outbox) MarkDone(ctx context.Context, id int64) error {
	_, err := o.s.db.ExecContext(ctx, `UPDATE outbox SET status = 'done', update_time = ? WHERE id = ?`, nanos(o.s.now()), id)
	return err
}

func (o *outbox) MarkFailed(ctx context.Context, id int64) error {
	now := nanos(o.s.now())
	_, err := o.s.db.ExecContext(ctx, `
        UPDATE outbox
        SET attempt_count = attempt_count + 1,
            next_attempt_at = ? + MIN(1 << (attempt_count + 1), 300) * 1000000000,
            update_time = ?
        WHERE id = ?`, now, now, id)
	return err
}
