package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// CreatePlan persists a validated Plan — the only plans the
// Registry ever stores are ones that have already passed the Validator.
func (db *DB) CreatePlan(ctx context.Context, p *models.Plan) error {
	storyArc, err := json.Marshal(p.StoryArc)
	if err != nil {
		return fmt.Errorf("failed to marshal story arc: %w", err)
	}
	edl, err := json.Marshal(p.EDL)
	if err != nil {
		return fmt.Errorf("failed to marshal edl: %w", err)
	}
	keyMoments, err := json.Marshal(p.KeyMoments)
	if err != nil {
		return fmt.Errorf("failed to marshal key moments: %w", err)
	}
	transitions, err := json.Marshal(p.Transitions)
	if err != nil {
		return fmt.Errorf("failed to marshal transitions: %w", err)
	}
	recommendations, err := json.Marshal(p.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	warnings, err := json.Marshal(p.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		INSERT INTO plans (
			id, media_id, status, story_arc, edl, key_moments, transitions,
			recommendations, desired_length_pct, coverage_tolerance_pct, warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	return db.QueryRowContext(ctx, query,
		p.ID, p.MediaID, p.Status, storyArc, edl, keyMoments, transitions,
		recommendations, p.DesiredLengthPct, p.CoverageToleranceP, warnings,
	).Scan(&p.CreatedAt)
}

func (db *DB) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p := &models.Plan{ID: id}
	var storyArc, edl, keyMoments, transitions, recommendations, warnings []byte
	err := db.QueryRowContext(ctx, `
		SELECT media_id, status, story_arc, edl, key_moments, transitions,
			recommendations, desired_length_pct, coverage_tolerance_pct, warnings, created_at
		FROM plans WHERE id = $1
	`, id).Scan(
		&p.MediaID, &p.Status, &storyArc, &edl, &keyMoments, &transitions,
		&recommendations, &p.DesiredLengthPct, &p.CoverageToleranceP, &warnings, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if err := json.Unmarshal(storyArc, &p.StoryArc); err != nil {
		return nil, fmt.Errorf("failed to decode story arc: %w", err)
	}
	if err := json.Unmarshal(edl, &p.EDL); err != nil {
		return nil, fmt.Errorf("failed to decode edl: %w", err)
	}
	if len(keyMoments) > 0 {
		if err := json.Unmarshal(keyMoments, &p.KeyMoments); err != nil {
			return nil, fmt.Errorf("failed to decode key moments: %w", err)
		}
	}
	if len(transitions) > 0 {
		if err := json.Unmarshal(transitions, &p.Transitions); err != nil {
			return nil, fmt.Errorf("failed to decode transitions: %w", err)
		}
	}
	if len(recommendations) > 0 {
		if err := json.Unmarshal(recommendations, &p.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to decode recommendations: %w", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &p.Warnings); err != nil {
			return nil, fmt.Errorf("failed to decode warnings: %w", err)
		}
	}
	return p, nil
}

// UpdatePlanStatusIfStatus implements the Plan state machine's conditional
// transitions: Draft -> Validated -> {Rendering -> Rendered, Rejected}.
func (db *DB) UpdatePlanStatusIfStatus(ctx context.Context, id uuid.UUID, expected, newStatus models.PlanStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE plans SET status = $1 WHERE id = $2 AND status = $3`,
		newStatus, id, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (db *DB) ListPlansByMedia(ctx context.Context, mediaID uuid.UUID) ([]models.Plan, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM plans WHERE media_id = $1 ORDER BY created_at DESC
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan plan id: %w", err)
		}
		ids = append(ids, id)
	}

	plans := make([]models.Plan, 0, len(ids))
	for _, id := range ids {
		p, err := db.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, nil
}
