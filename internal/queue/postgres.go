package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"gsd.app/relay/common/id"
	"gsd.app/relay/common/logger"
	"gsd.app/relay/core/db"
	"gsd.app/relay/internal/model"
)

const backendPostgres = "postgres"

// PostgresQueue stores one row per pending or claimed entry. Row order (seq)
// is queue order; claimed rows have claimed_at set.
type PostgresQueue struct {
	db     *db.DB
	table  string
	logger *slog.Logger
}

// NewPostgresQueue creates the table when missing.
func NewPostgresQueue(ctx context.Context, database *db.DB, table string, logger *slog.Logger) (*PostgresQueue, error) {
	if database == nil {
		return nil, errors.New("database is required")
	}
	if table == "" {
		return nil, errors.New("queue table is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &PostgresQueue{
		db:     database,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger,
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	seq         BIGSERIAL PRIMARY KEY,
	id          BIGINT      NOT NULL,
	attempt     INTEGER     NOT NULL DEFAULT 0,
	payload     JSONB       NOT NULL,
	last_error  TEXT        NOT NULL DEFAULT '',
	enqueued_at TIMESTAMPTZ NOT NULL,
	claimed_at  TIMESTAMPTZ
)`, q.table)
	if _, err := database.Pool().Exec(ctx, ddl); err != nil {
		return nil, &StorageError{Backend: backendPostgres, Op: "migrate", Err: err}
	}

	return q, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, job model.Job) (Entry, error) {
	if job == nil {
		return Entry{}, errors.New("enqueue: nil job")
	}
	entry := Entry{ID: id.New(), Job: job, EnqueuedAt: time.Now().UTC()}
	if err := q.insert(ctx, "enqueue", entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (q *PostgresQueue) Requeue(ctx context.Context, entry Entry) error {
	return q.insert(ctx, "requeue", entry)
}

func (q *PostgresQueue) insert(ctx context.Context, op string, entry Entry) error {
	payload, err := model.EncodeJob(entry.Job)
	if err != nil {
		return fmt.Errorf("%s: encoding job: %w", op, err)
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, attempt, payload, last_error, enqueued_at) VALUES ($1, $2, $3, $4, $5)`, q.table)
	if _, err := q.db.Pool().Exec(ctx, sql, entry.ID, entry.Attempt, payload, entry.LastError, entry.EnqueuedAt); err != nil {
		return &StorageError{Backend: backendPostgres, Op: op, Err: err}
	}
	return nil
}

// DequeueOne claims the oldest unclaimed row. SKIP LOCKED keeps two relay
// processes sharing a table from claiming the same row.
func (q *PostgresQueue) DequeueOne(ctx context.Context) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)

	err := q.db.WithTx(ctx, func(tx pgx.Tx) error {
		sel := fmt.Sprintf(`
SELECT seq, id, attempt, payload, last_error, enqueued_at
FROM %s
WHERE claimed_at IS NULL
ORDER BY seq
LIMIT 1
FOR UPDATE SKIP LOCKED`, q.table)

		var seq int64
		e, err := scanEntry(tx.QueryRow(ctx, sel), &seq)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		upd := fmt.Sprintf(`UPDATE %s SET claimed_at = now() WHERE seq = $1`, q.table)
		if _, err := tx.Exec(ctx, upd, seq); err != nil {
			return err
		}
		entry, found = e, true
		return nil
	})
	if err != nil {
		return Entry{}, false, &StorageError{Backend: backendPostgres, Op: "dequeue", Err: err}
	}
	return entry, found, nil
}

func (q *PostgresQueue) Ack(ctx context.Context, entryID int64) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND claimed_at IS NOT NULL`, q.table)
	if _, err := q.db.Pool().Exec(ctx, sql, entryID); err != nil {
		return &StorageError{Backend: backendPostgres, Op: "ack", Err: err}
	}
	return nil
}

func (q *PostgresQueue) Peek(ctx context.Context) (Entry, bool, error) {
	entries, err := q.List(ctx, 1)
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[0], true, nil
}

func (q *PostgresQueue) Len(ctx context.Context) (int, error) {
	var n int
	sql := fmt.Sprintf(`SELECT count(*) FROM %s WHERE claimed_at IS NULL`, q.table)
	if err := q.db.Pool().QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, &StorageError{Backend: backendPostgres, Op: "len", Err: err}
	}
	return n, nil
}

func (q *PostgresQueue) List(ctx context.Context, limit int) ([]Entry, error) {
	sql := fmt.Sprintf(`
SELECT seq, id, attempt, payload, last_error, enqueued_at
FROM %s
WHERE claimed_at IS NULL
ORDER BY seq`, q.table)
	args := []any{}
	if limit > 0 {
		sql += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := q.db.Pool().Query(ctx, sql, args...)
	if err != nil {
		return nil, &StorageError{Backend: backendPostgres, Op: "list", Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var seq int64
		e, err := scanEntry(rows, &seq)
		if err != nil {
			return nil, &StorageError{Backend: backendPostgres, Op: "list", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: backendPostgres, Op: "list", Err: err}
	}
	return entries, nil
}

// Recover releases claimed rows. A claimed row whose ID was already requeued
// is deleted instead, so a crash between Requeue and Ack does not duplicate it.
func (q *PostgresQueue) Recover(ctx context.Context) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.queue.postgres",
		Backend:   logger.Ptr(backendPostgres),
	})

	var released int64
	err := q.db.WithTx(ctx, func(tx pgx.Tx) error {
		del := fmt.Sprintf(`
DELETE FROM %[1]s c
WHERE c.claimed_at IS NOT NULL
  AND EXISTS (SELECT 1 FROM %[1]s p WHERE p.id = c.id AND p.claimed_at IS NULL)`, q.table)
		if _, err := tx.Exec(ctx, del); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET claimed_at = NULL WHERE claimed_at IS NOT NULL`, q.table))
		if err != nil {
			return err
		}
		released = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, &StorageError{Backend: backendPostgres, Op: "recover", Err: err}
	}

	if released > 0 {
		q.logger.InfoContext(ctx, "recovered claimed entries", "count", released)
	}
	return int(released), nil
}

// Close leaves the shared pool open.
func (q *PostgresQueue) Close() error {
	return nil
}

func scanEntry(row pgx.Row, seq *int64) (Entry, error) {
	var (
		e       Entry
		payload []byte
	)
	if err := row.Scan(seq, &e.ID, &e.Attempt, &payload, &e.LastError, &e.EnqueuedAt); err != nil {
		return Entry{}, err
	}

	var w model.WireJob
	if err := json.Unmarshal(payload, &w); err != nil {
		return Entry{}, fmt.Errorf("decoding payload of entry %d: %w", e.ID, err)
	}
	job, err := w.ToJob()
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Job = job
	return e, nil
}
