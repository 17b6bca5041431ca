package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

// UpsertTranscript writes or replaces the single transcript row for a
// media — Transcribe is keyed uniquely per media.
func (db *DB) UpsertTranscript(ctx context.Context, t *models.Transcript) error {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO transcripts (media_id, segments, language)
		VALUES ($1, $2, $3)
		ON CONFLICT (media_id) DO UPDATE SET
			segments = EXCLUDED.segments,
			language = EXCLUDED.language
	`, t.MediaID, segments, t.Language)
	return err
}

func (db *DB) GetTranscript(ctx context.Context, mediaID uuid.UUID) (*models.Transcript, error) {
	t := &models.Transcript{MediaID: mediaID}
	var raw []byte
	err := db.QueryRowContext(ctx, `
		SELECT segments, language FROM transcripts WHERE media_id = $1
	`, mediaID).Scan(&raw, &t.Language)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	if err := json.Unmarshal(raw, &t.Segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return t, nil
}

// UpsertSilenceMap writes or replaces the single silence map row for a
// media — DetectSilence is keyed uniquely per media.
func (db *DB) UpsertSilenceMap(ctx context.Context, sm *models.SilenceMap) error {
	intervals, err := json.Marshal(sm.Intervals)
	if err != nil {
		return fmt.Errorf("failed to marshal intervals: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO silence_maps (media_id, intervals)
		VALUES ($1, $2)
		ON CONFLICT (media_id) DO UPDATE SET intervals = EXCLUDED.intervals
	`, sm.MediaID, intervals)
	return err
}

func (db *DB) GetSilenceMap(ctx context.Context, mediaID uuid.UUID) (*models.SilenceMap, error) {
	sm := &models.SilenceMap{MediaID: mediaID}
	var raw []byte
	err := db.QueryRowContext(ctx, `
		SELECT intervals FROM silence_maps WHERE media_id = $1
	`, mediaID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get silence map: %w", err)
	}
	if err := json.Unmarshal(raw, &sm.Intervals); err != nil {
		return nil, fmt.Errorf("failed to decode intervals: %w", err)
	}
	return sm, nil
}

// UpsertSceneCuts writes or replaces the single scene-cut list for a media
// — DetectScenes is keyed uniquely per media.
func (db *DB) UpsertSceneCuts(ctx context.Context, sc *models.SceneCuts) error {
	cuts, err := json.Marshal(sc.Cuts)
	if err != nil {
		return fmt.Errorf("failed to marshal cuts: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO scene_cuts (media_id, cuts)
		VALUES ($1, $2)
		ON CONFLICT (media_id) DO UPDATE SET cuts = EXCLUDED.cuts
	`, sc.MediaID, cuts)
	return err
}

func (db *DB) GetSceneCuts(ctx context.Context, mediaID uuid.UUID) (*models.SceneCuts, error) {
	sc := &models.SceneCuts{MediaID: mediaID}
	var raw []byte
	err := db.QueryRowContext(ctx, `
		SELECT cuts FROM scene_cuts WHERE media_id = $1
	`, mediaID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene cuts: %w", err)
	}
	if err := json.Unmarshal(raw, &sc.Cuts); err != nil {
		return nil, fmt.Errorf("failed to decode cuts: %w", err)
	}
	return sc, nil
}
