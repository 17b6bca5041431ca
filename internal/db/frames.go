package db

import (
	"context"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// ReplaceFrames atomically clears and rewrites the sampled-frame set for a
// media — DescribeFrames is keyed uniquely per media.
func (db *DB) ReplaceFrames(ctx context.Context, mediaID uuid.UUID, frames []models.Frame) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("failed to clear frames: %w", err)
	}

	for i := range frames {
		f := &frames[i]
		f.MediaID = mediaID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO frames (media_id, t, description, confidence)
			VALUES ($1, $2, $3, $4)
		`, f.MediaID, f.T, f.Description, f.Confidence); err != nil {
			return fmt.Errorf("failed to insert frame: %w", err)
		}
	}

	return tx.Commit()
}

func (db *DB) ListFrames(ctx context.Context, mediaID uuid.UUID) ([]models.Frame, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT media_id, t, description, confidence
		FROM frames WHERE media_id = $1 ORDER BY t
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []models.Frame
	for rows.Next() {
		var f models.Frame
		if err := rows.Scan(&f.MediaID, &f.T, &f.Description, &f.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}
