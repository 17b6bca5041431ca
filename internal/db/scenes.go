package db

import (
	"context"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// ReplaceScenes atomically clears and rewrites the scene set for a media —
// IndexScenes is keyed uniquely per media.
func (db *DB) ReplaceScenes(ctx context.Context, mediaID uuid.UUID, scenes []models.Scene) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("failed to clear scenes: %w", err)
	}

	for i := range scenes {
		s := &scenes[i]
		s.MediaID = mediaID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scenes (media_id, index, start_s, end_s, description)
			VALUES ($1, $2, $3, $4, $5)
		`, s.MediaID, s.Index, s.Start, s.End, s.Description); err != nil {
			return fmt.Errorf("failed to insert scene: %w", err)
		}
	}

	return tx.Commit()
}

func (db *DB) ListScenes(ctx context.Context, mediaID uuid.UUID) ([]models.Scene, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT media_id, index, start_s, end_s, description
		FROM scenes WHERE media_id = $1 ORDER BY index
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var s models.Scene
		if err := rows.Scan(&s.MediaID, &s.Index, &s.Start, &s.End, &s.Description); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}
