// Package storage provides the core.Store implementations: a Postgres store
// for the service and an in-memory store for tests and one-shot CLI use.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sevigo/release-warden/internal/core"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed core.Store.
func NewStore(db *sqlx.DB) core.Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) CreateRun(ctx context.Context, run *core.Run) error {
	pkg, err := json.Marshal(run.PackageConfig)
	if err != nil {
		return fmt.Errorf("encoding package config snapshot: %w", err)
	}
	event, err := json.Marshal(run.TriggerEvent)
	if err != nil {
		return fmt.Errorf("encoding trigger event snapshot: %w", err)
	}

	query := `INSERT INTO runs (id, job_type, status, package_config, trigger_event, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.db.ExecContext(ctx, query, run.ID, run.JobType, run.Status, pkg, event, run.CreatedAt)
	return err
}

func (s *postgresStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	query := `SELECT id, job_type, status, package_config, trigger_event, created_at, finished_at
		FROM runs WHERE id = $1`

	var (
		run        core.Run
		pkg, event []byte
	)
	row := s.db.QueryRowContext(ctx, query, id)
	err := row.Scan(&run.ID, &run.JobType, &run.Status, &pkg, &event, &run.CreatedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(pkg, &run.PackageConfig); err != nil {
		return nil, fmt.Errorf("decoding package config snapshot: %w", err)
	}
	if err := json.Unmarshal(event, &run.TriggerEvent); err != nil {
		return nil, fmt.Errorf("decoding trigger event snapshot: %w", err)
	}
	return &run, nil
}

func (s *postgresStore) SetRunStatus(ctx context.Context, id string, status core.RunStatus) error {
	return s.execOne(ctx, `UPDATE runs SET status = $2 WHERE id = $1`, id, status)
}

func (s *postgresStore) SetRunFinishedAt(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE runs SET finished_at = $2 WHERE id = $1`, id, at)
}

func (s *postgresStore) CreateTarget(ctx context.Context, target *core.Target) error {
	query := `INSERT INTO targets
		(id, run_id, kind, key, status, correlation_id, submitted_at, started_at, finished_at, result_url, logs, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query,
		target.ID, target.RunID, target.Kind, target.Key, target.Status, target.CorrelationID,
		target.SubmittedAt, target.StartedAt, target.FinishedAt, target.ResultURL, target.Logs, target.ErrorText)
	return err
}

const targetColumns = `id, run_id, kind, key, status, correlation_id,
	submitted_at, started_at, finished_at, result_url, logs, error_text`

func (s *postgresStore) GetTarget(ctx context.Context, id string) (*core.Target, error) {
	var t core.Target
	err := s.db.GetContext(ctx, &t, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *postgresStore) TargetsForRun(ctx context.Context, runID string) ([]*core.Target, error) {
	var out []*core.Target
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+targetColumns+` FROM targets WHERE run_id = $1 ORDER BY created_seq`, runID)
	return out, err
}

func (s *postgresStore) TargetsByStatus(ctx context.Context, kind core.TargetKind, statuses ...core.TargetStatus) ([]*core.Target, error) {
	states := make([]string, len(statuses))
	for i, st := range statuses {
		states[i] = string(st)
	}
	var out []*core.Target
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+targetColumns+` FROM targets WHERE kind = $1 AND status = ANY($2) ORDER BY created_seq`,
		kind, pq.Array(states))
	return out, err
}

func (s *postgresStore) TargetsByCorrelationID(ctx context.Context, correlationID string) ([]*core.Target, error) {
	var out []*core.Target
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+targetColumns+` FROM targets WHERE correlation_id = $1 ORDER BY created_seq`, correlationID)
	return out, err
}

// SetTargetStatusIf is the compare-and-set at the heart of the concurrency
// model: the WHERE clause conditions the update on the current status, and
// the affected-row count reports whether this writer won.
func (s *postgresStore) SetTargetStatusIf(ctx context.Context, id string, to core.TargetStatus, from ...core.TargetStatus) (bool, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE targets SET status = $2 WHERE id = $1 AND status = ANY($3)`,
		id, to, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *postgresStore) SetTargetCorrelationID(ctx context.Context, id, correlationID string) error {
	return s.execOne(ctx, `UPDATE targets SET correlation_id = $2 WHERE id = $1`, id, correlationID)
}

func (s *postgresStore) SetTargetSubmittedAt(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE targets SET submitted_at = $2 WHERE id = $1`, id, at)
}

func (s *postgresStore) SetTargetStartedAt(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE targets SET started_at = $2 WHERE id = $1`, id, at)
}

func (s *postgresStore) SetTargetFinishedAt(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE targets SET finished_at = $2 WHERE id = $1`, id, at)
}

func (s *postgresStore) SetTargetResultURL(ctx context.Context, id, url string) error {
	return s.execOne(ctx, `UPDATE targets SET result_url = $2 WHERE id = $1`, id, url)
}

func (s *postgresStore) SetTargetLogs(ctx context.Context, id, logs string) error {
	return s.execOne(ctx, `UPDATE targets SET logs = $2 WHERE id = $1`, id, logs)
}

func (s *postgresStore) SetTargetError(ctx context.Context, id, errText string) error {
	return s.execOne(ctx, `UPDATE targets SET error_text = $2 WHERE id = $1`, id, errText)
}

func (s *postgresStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
