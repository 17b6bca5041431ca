// Package db is the Media Registry: the single source of truth for Media,
// Job, Transcript, SilenceMap, SceneCuts, Frame, Scene, ClipCandidate, Plan
// and Render. It is the only component that persists; every other
// component is a pure function plus I/O on the blob store or an external
// model.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bobarin/reelforge/internal/models"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned by get-by-id lookups that find no row.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by update_if_status when the row's current
// status does not match the caller's expectation. Callers treat this as
// a benign race, never as an error to surface to the job/Render record.
var ErrConflict = errors.New("conflict")

// errDetailScanner adapts a nullable jsonb error column to a
// *models.ErrorDetail field during row scans — NULL stays nil rather
// than becoming a zero-valued detail.
type errDetailScanner struct {
	dest **models.ErrorDetail
}

func errCol(dest **models.ErrorDetail) errDetailScanner {
	return errDetailScanner{dest: dest}
}

func (s errDetailScanner) Scan(value interface{}) error {
	if value == nil {
		*s.dest = nil
		return nil
	}
	raw, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected error column type %T", value)
	}
	detail := &models.ErrorDetail{}
	if err := json.Unmarshal(raw, detail); err != nil {
		return fmt.Errorf("failed to decode error column: %w", err)
	}
	*s.dest = detail
	return nil
}

type DB struct {
	*sql.DB
}

func New(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// migrate creates the schema if it does not already exist. There is no
// external migration tool in play — these are additive, idempotent
// statements run once at startup, matching the scale of this service.
func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS media (
	id UUID PRIMARY KEY,
	source_uri TEXT NOT NULL,
	title TEXT,
	description TEXT,
	status TEXT NOT NULL,
	duration DOUBLE PRECISION,
	fps DOUBLE PRECISION,
	width INTEGER,
	height INTEGER,
	has_audio BOOLEAN,
	video_codec TEXT,
	audio_codec TEXT,
	bitrate BIGINT,
	error_code TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	media_id UUID NOT NULL REFERENCES media(id),
	kind TEXT NOT NULL,
	status TEXT NOT NULL,
	attempt INTEGER NOT NULL DEFAULT 1,
	input JSONB,
	result JSONB,
	error JSONB,
	tokens_used INTEGER,
	enqueued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_media_kind ON jobs(media_id, kind);

CREATE TABLE IF NOT EXISTS transcripts (
	media_id UUID PRIMARY KEY REFERENCES media(id),
	segments JSONB NOT NULL,
	language TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS silence_maps (
	media_id UUID PRIMARY KEY REFERENCES media(id),
	intervals JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS scene_cuts (
	media_id UUID PRIMARY KEY REFERENCES media(id),
	cuts JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
	media_id UUID NOT NULL REFERENCES media(id),
	t DOUBLE PRECISION NOT NULL,
	description TEXT NOT NULL,
	confidence DOUBLE PRECISION,
	PRIMARY KEY (media_id, t)
);

CREATE TABLE IF NOT EXISTS scenes (
	media_id UUID NOT NULL REFERENCES media(id),
	index INTEGER NOT NULL,
	start_s DOUBLE PRECISION NOT NULL,
	end_s DOUBLE PRECISION NOT NULL,
	description TEXT,
	PRIMARY KEY (media_id, index)
);

CREATE TABLE IF NOT EXISTS clip_candidates (
	id UUID PRIMARY KEY,
	media_id UUID NOT NULL REFERENCES media(id),
	start_s DOUBLE PRECISION NOT NULL,
	end_s DOUBLE PRECISION NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	features JSONB,
	hook_text TEXT
);
CREATE INDEX IF NOT EXISTS idx_candidates_media ON clip_candidates(media_id);

CREATE TABLE IF NOT EXISTS plans (
	id UUID PRIMARY KEY,
	media_id UUID NOT NULL REFERENCES media(id),
	status TEXT NOT NULL,
	story_arc JSONB NOT NULL,
	edl JSONB NOT NULL,
	key_moments JSONB,
	transitions JSONB,
	recommendations JSONB,
	desired_length_pct DOUBLE PRECISION NOT NULL,
	coverage_tolerance_pct DOUBLE PRECISION NOT NULL,
	warnings JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_plans_media ON plans(media_id);

CREATE TABLE IF NOT EXISTS renders (
	id UUID PRIMARY KEY,
	media_id UUID NOT NULL REFERENCES media(id),
	plan_id UUID NOT NULL REFERENCES plans(id),
	aspect_ratio TEXT NOT NULL,
	status TEXT NOT NULL,
	output_uri TEXT,
	error JSONB,
	duration_seconds DOUBLE PRECISION,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_renders_plan_ratio ON renders(plan_id, aspect_ratio);
`
