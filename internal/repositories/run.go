package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/jmoiron/sqlx"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

const defaultRecentLimit = 20

// RunRepository stores the history of handled bus commands.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts a running [models.Run].
func (r *RunRepository) Start(ctx context.Context, run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO runs (id, topic, payload, status, result, error, started_at, finished_at)
		VALUES (:id, :topic, :payload, :status, :result, :error, :started_at, :finished_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish stores the outcome of a run started with [RunRepository.Start].
func (r *RunRepository) Finish(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE runs
		SET status = :status, result = :result, error = :error, finished_at = :finished_at
		WHERE id = :id
	`

	result, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}

	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, topic, payload, status, result, error, started_at, finished_at
		FROM runs
		WHERE id = ?
	`

	var run models.Run
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// Recent returns the latest runs, newest first. A non-positive limit uses the default of 20.
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `
		SELECT id, topic, payload, status, result, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`

	runs := []models.Run{}
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

// SaveStats stores the counters of a reconciliation run, replacing earlier counters for it.
func (r *RunRepository) SaveStats(ctx context.Context, stats *models.ReconcileStats) error {
	query := `
		INSERT INTO reconcile_stats (run_id, candidates, added, aliased, stamped, unplayable, processed, downloaded)
		VALUES (:run_id, :candidates, :added, :aliased, :stamped, :unplayable, :processed, :downloaded)
		ON CONFLICT (run_id) DO UPDATE SET
			candidates = excluded.candidates, added = excluded.added, aliased = excluded.aliased,
			stamped = excluded.stamped, unplayable = excluded.unplayable,
			processed = excluded.processed, downloaded = excluded.downloaded
	`

	if _, err := r.db.NamedExecContext(ctx, query, stats); err != nil {
		return fmt.Errorf("failed to save reconcile stats: %w", err)
	}
	return nil
}

// Stats retrieves the reconciliation counters of a run.
func (r *RunRepository) Stats(ctx context.Context, runID string) (*models.ReconcileStats, error) {
	query := `
		SELECT run_id, candidates, added, aliased, stamped, unplayable, processed, downloaded
		FROM reconcile_stats
		WHERE run_id = ?
	`

	var stats models.ReconcileStats
	if err := r.db.GetContext(ctx, &stats, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get reconcile stats: %w", err)
	}
	return &stats, nil
}
