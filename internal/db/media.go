package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateMedia(ctx context.Context, m *models.Media) error {
	query := `
		INSERT INTO media (id, source_uri, title, description, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return db.QueryRowContext(ctx, query, m.ID, m.SourceURI, m.Title, m.Description, m.Status).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (db *DB) GetMedia(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	query := `
		SELECT id, source_uri, title, description, status,
			duration, fps, width, height, has_audio, video_codec, audio_codec, bitrate,
			error_code, error_message, created_at, updated_at
		FROM media WHERE id = $1
	`
	m := &models.Media{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.SourceURI, &m.Title, &m.Description, &m.Status,
		&m.Duration, &m.FPS, &m.Width, &m.Height, &m.HasAudio, &m.VideoCodec, &m.AudioCodec, &m.Bitrate,
		&m.ErrorCode, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return m, nil
}

// UpdateMediaStatusIfStatus is the Registry's conditional write for Media:
// the only way to mutate status fields. It returns ErrConflict (not an
// error) when the row's current status does not match expected.
func (db *DB) UpdateMediaStatusIfStatus(ctx context.Context, id uuid.UUID, expected, newStatus models.MediaStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE media SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		newStatus, id, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update media status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// SetMediaProbed writes technical metadata and transitions Registered ->
// Ready in one statement, conditional on the media still being Registered
// (or Probing, if a probe job had already claimed the status).
func (db *DB) SetMediaProbed(ctx context.Context, id uuid.UUID, duration, fps float64, width, height int, hasAudio bool, videoCodec, audioCodec string, bitrate int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE media SET
			status = $1, duration = $2, fps = $3, width = $4, height = $5,
			has_audio = $6, video_codec = $7, audio_codec = $8, bitrate = $9,
			updated_at = NOW()
		WHERE id = $10 AND status IN ($11, $12)
	`, models.MediaStatusReady, duration, fps, width, height, hasAudio, videoCodec, audioCodec, bitrate,
		id, models.MediaStatusRegistered, models.MediaStatusProbing)
	if err != nil {
		return fmt.Errorf("failed to set media probed: %w", err)
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

func (db *DB) SetMediaFailed(ctx context.Context, id uuid.UUID, code, message string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE media SET status = $1, error_code = $2, error_message = $3, updated_at = NOW() WHERE id = $4`,
		models.MediaStatusFailed, code, message, id,
	)
	return err
}

// SoftDeleteMedia logically deletes a Media — its derived entities become
// unreachable, but no row is ever hard-deleted while referencing jobs
// exist.
func (db *DB) SoftDeleteMedia(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE media SET status = $1, updated_at = NOW() WHERE id = $2`,
		models.MediaStatusDeleted, id,
	)
	return err
}
