package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// ReplaceClipCandidates atomically clears and rewrites the candidate set
// for a media — SelectClips is keyed uniquely per media, so a
// re-run replaces rather than appends.
func (db *DB) ReplaceClipCandidates(ctx context.Context, mediaID uuid.UUID, candidates []models.ClipCandidate) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clip_candidates WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}

	for i := range candidates {
		c := &candidates[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.MediaID = mediaID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO clip_candidates (id, media_id, start_s, end_s, score, features, hook_text)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.MediaID, c.Start, c.End, c.Score, c.Features, c.HookText); err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
	}

	return tx.Commit()
}

func (db *DB) ListClipCandidates(ctx context.Context, mediaID uuid.UUID) ([]models.ClipCandidate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, media_id, start_s, end_s, score, features, hook_text
		FROM clip_candidates WHERE media_id = $1 ORDER BY score DESC
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []models.ClipCandidate
	for rows.Next() {
		var c models.ClipCandidate
		if err := rows.Scan(&c.ID, &c.MediaID, &c.Start, &c.End, &c.Score, &c.Features, &c.HookText); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (db *DB) GetClipCandidate(ctx context.Context, id uuid.UUID) (*models.ClipCandidate, error) {
	c := &models.ClipCandidate{}
	err := db.QueryRowContext(ctx, `
		SELECT id, media_id, start_s, end_s, score, features, hook_text
		FROM clip_candidates WHERE id = $1
	`, id).Scan(&c.ID, &c.MediaID, &c.Start, &c.End, &c.Score, &c.Features, &c.HookText)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}
