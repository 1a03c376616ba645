package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ptrus/mobile-pipeline/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// CreateRun records the start of a pipeline run and returns it.
func (db *DB) CreateRun(ctx context.Context, platform models.Platform, profile string) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.NewString(),
		Platform:  platform,
		Profile:   profile,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO runs (id, platform, profile, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, query, run.ID, run.Platform, run.Profile, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// RunOutcome holds the final values of a run.
type RunOutcome struct {
	Mode            models.BuildMode
	FingerprintHash string
	BuildNumber     string
	Status          models.RunStatus
	Message         string
}

// FinishRun records the outcome of a run.
func (db *DB) FinishRun(ctx context.Context, id string, outcome RunOutcome) error {
	query := `
		UPDATE runs
		SET mode = ?, fingerprint_hash = ?, build_number = ?, status = ?, message = ?, finished_at = ?
		WHERE id = ?
	`

	res, err := db.ExecContext(ctx, query,
		nullString(string(outcome.Mode)),
		nullString(outcome.FingerprintHash),
		nullString(outcome.BuildNumber),
		outcome.Status,
		nullString(outcome.Message),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, platform, profile, mode, fingerprint_hash, build_number, status, message, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, platform, profile, mode, fingerprint_hash, build_number, status, message, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return runs, nil
}

// LastNativeBuild returns the most recent successful native run for a fingerprint, if any.
func (db *DB) LastNativeBuild(ctx context.Context, platform models.Platform, hash string) (*models.Run, error) {
	query := `
		SELECT id, platform, profile, mode, fingerprint_hash, build_number, status, message, started_at, finished_at
		FROM runs
		WHERE platform = ? AND fingerprint_hash = ? AND status = ? AND mode IN (?, ?)
		ORDER BY started_at DESC
		LIMIT 1
	`

	run, err := scanRun(db.QueryRowContext(ctx, query, platform, hash, models.RunStatusSucceeded,
		models.BuildModeNative, models.BuildModeFull))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last native build: %w", err)
	}

	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	run := &models.Run{}
	err := s.Scan(
		&run.ID,
		&run.Platform,
		&run.Profile,
		&run.Mode,
		&run.FingerprintHash,
		&run.BuildNumber,
		&run.Status,
		&run.Message,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
