package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, media_id, kind, status, attempt, input)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING enqueued_at
	`
	return db.QueryRowContext(ctx, query,
		job.ID, job.MediaID, job.Kind, job.Status, job.Attempt, job.Input,
	).Scan(&job.EnqueuedAt)
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT id, media_id, kind, status, attempt, input, result, error, tokens_used,
			enqueued_at, started_at, finished_at
		FROM jobs WHERE id = $1
	`
	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.MediaID, &job.Kind, &job.Status, &job.Attempt, &job.Input, &job.Result,
		errCol(&job.Error), &job.TokensUsed, &job.EnqueuedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (db *DB) ListJobsByMedia(ctx context.Context, mediaID uuid.UUID, kind models.JobKind) ([]models.Job, error) {
	var rows *sql.Rows
	var err error
	if kind != "" {
		rows, err = db.QueryContext(ctx, `
			SELECT id, media_id, kind, status, attempt, input, result, error, tokens_used,
				enqueued_at, started_at, finished_at
			FROM jobs WHERE media_id = $1 AND kind = $2 ORDER BY enqueued_at
		`, mediaID, kind)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT id, media_id, kind, status, attempt, input, result, error, tokens_used,
				enqueued_at, started_at, finished_at
			FROM jobs WHERE media_id = $1 ORDER BY enqueued_at
		`, mediaID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.ID, &job.MediaID, &job.Kind, &job.Status, &job.Attempt, &job.Input, &job.Result,
			errCol(&job.Error), &job.TokensUsed, &job.EnqueuedAt, &job.StartedAt, &job.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// LatestCompletedJobByKind implements the idempotency check: a
// handler first checks whether its output already exists in the Registry
// for the same (media_id, kind) before re-running.
func (db *DB) LatestCompletedJobByKind(ctx context.Context, mediaID uuid.UUID, kind models.JobKind) (*models.Job, error) {
	query := `
		SELECT id, media_id, kind, status, attempt, input, result, error, tokens_used,
			enqueued_at, started_at, finished_at
		FROM jobs WHERE media_id = $1 AND kind = $2 AND status = $3
		ORDER BY enqueued_at DESC LIMIT 1
	`
	job := &models.Job{}
	err := db.QueryRowContext(ctx, query, mediaID, kind, models.JobStatusCompleted).Scan(
		&job.ID, &job.MediaID, &job.Kind, &job.Status, &job.Attempt, &job.Input, &job.Result,
		errCol(&job.Error), &job.TokensUsed, &job.EnqueuedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest completed job: %w", err)
	}
	return job, nil
}

// ClaimJob is the conditional Queued -> Running transition: exactly one
// worker wins per job.
func (db *DB) ClaimJob(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	res, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		models.JobStatusRunning, now, id, models.JobStatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result models.JSONB, tokensUsed *int) error {
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, result = $2, tokens_used = $3, finished_at = $4 WHERE id = $5`,
		models.JobStatusCompleted, result, tokensUsed, time.Now(), id,
	)
	return err
}

func (db *DB) FailJob(ctx context.Context, id uuid.UUID, detail *models.ErrorDetail) error {
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		models.JobStatusFailed, detail, time.Now(), id,
	)
	return err
}

// CancelQueuedJob is the only non-Running terminal transition from Queued.
func (db *DB) CancelQueuedJob(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, finished_at = $2 WHERE id = $3 AND status = $4`,
		models.JobStatusCancelled, time.Now(), id, models.JobStatusQueued,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (db *DB) CancelRunningJob(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, finished_at = $2 WHERE id = $3 AND status = $4`,
		models.JobStatusCancelled, time.Now(), id, models.JobStatusRunning,
	)
	return err
}

// ListActiveJobsByMedia returns every Queued or Running job for a media —
// used to cancel in-flight work when the media is deleted out from under it.
func (db *DB) ListActiveJobsByMedia(ctx context.Context, mediaID uuid.UUID) ([]models.Job, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, media_id, kind, status, attempt, input, result, error, tokens_used,
			enqueued_at, started_at, finished_at
		FROM jobs WHERE media_id = $1 AND status IN ($2, $3)
	`, mediaID, models.JobStatusQueued, models.JobStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.ID, &job.MediaID, &job.Kind, &job.Status, &job.Attempt, &job.Input, &job.Result,
			errCol(&job.Error), &job.TokensUsed, &job.EnqueuedAt, &job.StartedAt, &job.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan active job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RequeueSuccessor creates a fresh Queued job with incremented attempt,
// superseding a Failed job — the original record is never mutated after
// terminal.
func (db *DB) RequeueSuccessor(ctx context.Context, failed *models.Job) (*models.Job, error) {
	successor := &models.Job{
		ID:      uuid.New(),
		MediaID: failed.MediaID,
		Kind:    failed.Kind,
		Status:  models.JobStatusQueued,
		Attempt: failed.Attempt + 1,
		Input:   failed.Input,
	}
	if err := db.CreateJob(ctx, successor); err != nil {
		return nil, fmt.Errorf("failed to create successor job: %w", err)
	}
	return successor, nil
}

// ReclaimStaleRunningJobs finds jobs left Running by a worker that died
// mid-handler. Called once at worker startup, which marks each one Failed
// and enqueues a fresh Queued successor in its place — at-least-once
// delivery. No separate clean-up of the crashed attempt's partial output
// is performed.
func (db *DB) ReclaimStaleRunningJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, media_id, kind, status, attempt, input, result, error, tokens_used,
			enqueued_at, started_at, finished_at
		FROM jobs WHERE status = $1
	`, models.JobStatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale running jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.ID, &job.MediaID, &job.Kind, &job.Status, &job.Attempt, &job.Input, &job.Result,
			errCol(&job.Error), &job.TokensUsed, &job.EnqueuedAt, &job.StartedAt, &job.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stale job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// MarshalInput is a small convenience used by job producers that build
// kind-specific JSON-shaped input payloads.
func MarshalInput(v interface{}) (models.JSONB, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m models.JSONB
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
