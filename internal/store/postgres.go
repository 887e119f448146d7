package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"classroom-relay/internal/app"
)

var ErrNotFound = errors.New("record not found")

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres connects to postgres and returns a pool wrapper
func NewPostgres(ctx context.Context, cfg app.Config, log *slog.Logger) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		return nil, fmt.Errorf("parse pg url: %w", err)
	}
	if cfg.PGMaxConn > 0 {
		pcfg.MaxConns = int32(cfg.PGMaxConn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// RecordCreated opens a record. A room recreated under the same id
// starts over.
func (p *Postgres) RecordCreated(ctx context.Context, id string, at time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_records (id, status, created_at, updated_at)
		VALUES ($1, 'created', $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = 'created', created_at = $2, started_at = NULL, ended_at = NULL,
		    removed_at = NULL, removed_reason = '', feedback = NULL,
		    teacher_id = '', student_id = '', updated_at = NOW()
	`, id, at)
	return err
}

// RecordParticipant stores who holds a role. An empty id leaves the
// stored one alone.
func (p *Postgres) RecordParticipant(ctx context.Context, id, teacherID, studentID string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_records (id, teacher_id, student_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET teacher_id = COALESCE(NULLIF(EXCLUDED.teacher_id, ''), session_records.teacher_id),
		    student_id = COALESCE(NULLIF(EXCLUDED.student_id, ''), session_records.student_id),
		    updated_at = NOW()
	`, id, teacherID, studentID)
	return err
}

// RecordStarted marks the class active; the first start time sticks
func (p *Postgres) RecordStarted(ctx context.Context, id string, startedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_records (id, status, started_at, updated_at)
		VALUES ($1, 'active', $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = 'active',
		    started_at = COALESCE(session_records.started_at, EXCLUDED.started_at),
		    updated_at = NOW()
	`, id, startedAt)
	return err
}

func (p *Postgres) RecordEnded(ctx context.Context, id string, startedAt *time.Time, endedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_records (id, status, started_at, ended_at, updated_at)
		VALUES ($1, 'ended', $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = 'ended',
		    started_at = COALESCE(session_records.started_at, EXCLUDED.started_at),
		    ended_at = EXCLUDED.ended_at,
		    updated_at = NOW()
	`, id, startedAt, endedAt)
	return err
}

// RecordFeedback stores the latest feedback document for a session
func (p *Postgres) RecordFeedback(ctx context.Context, id string, feedback []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO session_records (id, feedback, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE
		SET feedback = EXCLUDED.feedback, updated_at = NOW()
	`, id, string(feedback))
	return err
}

func (p *Postgres) RecordRemoved(ctx context.Context, id, reason string, at time.Time) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE session_records
		SET removed_at = $2, removed_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, id, at, reason)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const recordColumns = `id, status, teacher_id, student_id, created_at, started_at, ended_at, removed_at, removed_reason, feedback, updated_at`

func scanRecord(row pgx.Row) (SessionRecord, error) {
	var (
		r  SessionRecord
		fb []byte
	)
	if err := row.Scan(&r.ID, &r.Status, &r.TeacherID, &r.StudentID, &r.CreatedAt, &r.StartedAt, &r.EndedAt, &r.RemovedAt, &r.RemovedReason, &fb, &r.UpdatedAt); err != nil {
		return SessionRecord{}, err
	}
	if len(fb) > 0 {
		r.Feedback = fb
	}
	return r, nil
}

// GetSessionRecord fetches one record by session id
func (p *Postgres) GetSessionRecord(ctx context.Context, id string) (SessionRecord, error) {
	r, err := scanRecord(p.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM session_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	return r, err
}

// ListSessionRecords returns records sorted by last update
func (p *Postgres) ListSessionRecords(ctx context.Context, limit, offset int) ([]SessionRecord, error) {
	return p.listRecords(ctx, `
		SELECT `+recordColumns+`
		FROM session_records
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// ListSessionRecordsByUser returns the records userID took part in as
// either teacher or student, most recently updated first
func (p *Postgres) ListSessionRecordsByUser(ctx context.Context, userID string, limit, offset int) ([]SessionRecord, error) {
	return p.listRecords(ctx, `
		SELECT `+recordColumns+`
		FROM session_records
		WHERE teacher_id = $1 OR student_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

func (p *Postgres) listRecords(ctx context.Context, query string, args ...any) ([]SessionRecord, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SessionRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
