package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// CreateRender inserts a fresh Render for (plan_id, aspect_ratio)
// unconditionally; the table has no unique constraint on that pair, so
// re-issuing a render request for a ratio whose prior Render failed
// creates a new record rather than colliding with the old one. Callers
// that want to reuse a prior outcome check GetLatestRenderByPlanAndRatio
// first.
func (db *DB) CreateRender(ctx context.Context, r *models.Render) error {
	query := `
		INSERT INTO renders (id, media_id, plan_id, aspect_ratio, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.ExecContext(ctx, query, r.ID, r.MediaID, r.PlanID, r.AspectRatio, r.Status)
	return err
}

func (db *DB) GetRender(ctx context.Context, id uuid.UUID) (*models.Render, error) {
	r := &models.Render{ID: id}
	err := db.QueryRowContext(ctx, `
		SELECT media_id, plan_id, aspect_ratio, status, output_uri, error,
			duration_seconds, started_at, finished_at
		FROM renders WHERE id = $1
	`, id).Scan(
		&r.MediaID, &r.PlanID, &r.AspectRatio, &r.Status, &r.OutputURI, errCol(&r.Error),
		&r.DurationSeconds, &r.StartedAt, &r.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render: %w", err)
	}
	return r, nil
}

// GetLatestRenderByPlanAndRatio finds the most recently started Render for
// a (plan_id, aspect_ratio) pair regardless of status (rows never started
// sort last), so a caller deciding
// whether to create a fresh one can see the prior outcome first.
func (db *DB) GetLatestRenderByPlanAndRatio(ctx context.Context, planID uuid.UUID, aspectRatio string) (*models.Render, error) {
	r := &models.Render{PlanID: planID, AspectRatio: aspectRatio}
	err := db.QueryRowContext(ctx, `
		SELECT id, media_id, status, output_uri, error, duration_seconds, started_at, finished_at
		FROM renders WHERE plan_id = $1 AND aspect_ratio = $2
		ORDER BY started_at DESC NULLS LAST LIMIT 1
	`, planID, aspectRatio).Scan(
		&r.ID, &r.MediaID, &r.Status, &r.OutputURI, errCol(&r.Error), &r.DurationSeconds, &r.StartedAt, &r.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest render: %w", err)
	}
	return r, nil
}

func (db *DB) ListRendersByPlan(ctx context.Context, planID uuid.UUID) ([]models.Render, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, media_id, aspect_ratio, status, output_uri, error, duration_seconds, started_at, finished_at
		FROM renders WHERE plan_id = $1
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query renders: %w", err)
	}
	defer rows.Close()

	var renders []models.Render
	for rows.Next() {
		r := models.Render{PlanID: planID}
		if err := rows.Scan(
			&r.ID, &r.MediaID, &r.AspectRatio, &r.Status, &r.OutputURI, errCol(&r.Error),
			&r.DurationSeconds, &r.StartedAt, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan render: %w", err)
		}
		renders = append(renders, r)
	}
	return renders, nil
}

// ClaimRender is the conditional Queued -> Running transition for a Render.
func (db *DB) ClaimRender(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	res, err := db.ExecContext(ctx,
		`UPDATE renders SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		models.RenderStatusRunning, now, id, models.RenderStatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim render: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) CompleteRender(ctx context.Context, id uuid.UUID, outputURI string, durationSeconds float64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE renders SET status = $1, output_uri = $2, duration_seconds = $3, finished_at = $4 WHERE id = $5`,
		models.RenderStatusCompleted, outputURI, durationSeconds, time.Now(), id,
	)
	return err
}

func (db *DB) FailRender(ctx context.Context, id uuid.UUID, detail *models.ErrorDetail) error {
	_, err := db.ExecContext(ctx,
		`UPDATE renders SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		models.RenderStatusFailed, detail, time.Now(), id,
	)
	return err
}

// CancelRunningRender marks a Render Cancelled from Running — used when an
// ApplyPlan job is cancelled mid-way: every started Render must end in
// {Cancelled, Completed}, never left Running.
func (db *DB) CancelRunningRender(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE renders SET status = $1, finished_at = $2 WHERE id = $3 AND status = $4`,
		models.RenderStatusCancelled, time.Now(), id, models.RenderStatusRunning,
	)
	return err
}
