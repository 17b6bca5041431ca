// Package models holds the persisted domain entities for the ingest-enrich-
// plan-render pipeline: Media, Job, Transcript, SilenceMap, SceneCuts,
// Frames, Scenes, ClipCandidate, Plan and Render.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums

type MediaStatus string

const (
	MediaStatusRegistered MediaStatus = "registered"
	MediaStatusProbing    MediaStatus = "probing"
	MediaStatusReady      MediaStatus = "ready"
	MediaStatusFailed     MediaStatus = "failed"
	MediaStatusDeleted    MediaStatus = "deleted"
)

type JobKind string

const (
	JobKindProbe          JobKind = "probe"
	JobKindTranscribe     JobKind = "transcribe"
	JobKindDetectSilence  JobKind = "detect_silence"
	JobKindDetectScenes   JobKind = "detect_scenes"
	JobKindDescribeFrames JobKind = "describe_frames"
	JobKindIndexScenes    JobKind = "index_scenes"
	JobKindSelectClips    JobKind = "select_clips"
	JobKindPlanHeuristic  JobKind = "plan_heuristic"
	JobKindPlanStory      JobKind = "plan_story"
	JobKindApplyPlan      JobKind = "apply_plan"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

type SegmentKind string

const (
	SegmentKindKeep       SegmentKind = "keep"
	SegmentKindSkip       SegmentKind = "skip"
	SegmentKindTransition SegmentKind = "transition"
)

type TransitionKind string

const (
	TransitionFade TransitionKind = "fade"
	TransitionCut  TransitionKind = "cut"
	TransitionXfade TransitionKind = "xfade"
)

type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

type MomentRole string

const (
	RoleHook       MomentRole = "hook"
	RoleBuild      MomentRole = "build"
	RoleClimax     MomentRole = "climax"
	RoleResolution MomentRole = "resolution"
)

type PlanStatus string

const (
	PlanStatusDraft     PlanStatus = "draft"
	PlanStatusValidated PlanStatus = "validated"
	PlanStatusRendering PlanStatus = "rendering"
	PlanStatusRendered  PlanStatus = "rendered"
	PlanStatusRejected  PlanStatus = "rejected"
)

type RenderStatus string

const (
	RenderStatusQueued    RenderStatus = "queued"
	RenderStatusRunning   RenderStatus = "running"
	RenderStatusCompleted RenderStatus = "completed"
	RenderStatusFailed    RenderStatus = "failed"
	RenderStatusCancelled RenderStatus = "cancelled"
)

// JSONB is a custom type for PostgreSQL JSONB columns — used for
// Job.Input / Job.Result, which are kind-specific shapes, and for
// ClipCandidate.Features.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ErrorDetail is the {code, message, details?} shape stored on failed
// Job and Render rows — the only error surface exposed beyond the core.
// Code is one of the taxonomy constants (SourceUnreachable, InvalidPlan,
// EncodeError, ...); Message is human-readable; Details is optional
// structured context.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details JSONB  `json:"details,omitempty"`
}

func (e *ErrorDetail) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// Entities

type Media struct {
	ID          uuid.UUID   `json:"id"`
	SourceURI   string      `json:"source_uri"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      MediaStatus `json:"status"`

	// Technical metadata — populated only once status = Ready.
	Duration   *float64 `json:"duration,omitempty"`
	FPS        *float64 `json:"fps,omitempty"`
	Width      *int     `json:"width,omitempty"`
	Height     *int     `json:"height,omitempty"`
	HasAudio   *bool    `json:"has_audio,omitempty"`
	VideoCodec *string  `json:"video_codec,omitempty"`
	AudioCodec *string  `json:"audio_codec,omitempty"`
	Bitrate    *int64   `json:"bitrate,omitempty"`

	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Job struct {
	ID         uuid.UUID  `json:"id"`
	MediaID    uuid.UUID  `json:"media_id"`
	Kind       JobKind    `json:"kind"`
	Status     JobStatus  `json:"status"`
	Attempt    int        `json:"attempt"`
	Input      JSONB        `json:"input,omitempty"`
	Result     JSONB        `json:"result,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	TokensUsed *int       `json:"tokens_used,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

type TranscriptSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

type Transcript struct {
	MediaID  uuid.UUID           `json:"media_id"`
	Segments []TranscriptSegment `json:"segments"`
	Language string              `json:"language"`
}

type SilenceInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type SilenceMap struct {
	MediaID   uuid.UUID         `json:"media_id"`
	Intervals []SilenceInterval `json:"intervals"`
}

type SceneCuts struct {
	MediaID uuid.UUID `json:"media_id"`
	Cuts    []float64 `json:"cuts"`
}

type Frame struct {
	MediaID     uuid.UUID `json:"media_id"`
	T           float64   `json:"t"`
	Description string    `json:"description"`
	Confidence  *float64  `json:"confidence,omitempty"`
}

type Scene struct {
	MediaID     uuid.UUID `json:"media_id"`
	Index       int       `json:"index"`
	Start       float64   `json:"start"`
	End         float64   `json:"end"`
	Description string    `json:"description,omitempty"`
}

type ClipCandidate struct {
	ID       uuid.UUID `json:"id"`
	MediaID  uuid.UUID `json:"media_id"`
	Start    float64   `json:"start"`
	End      float64   `json:"end"`
	Score    float64   `json:"score"`
	Features JSONB     `json:"features,omitempty"`
	HookText *string   `json:"hook_text,omitempty"`
}

type StoryArc struct {
	HookT       float64 `json:"hook_t"`
	ClimaxT     float64 `json:"climax_t"`
	ResolutionT float64 `json:"resolution_t"`
}

type Segment struct {
	Start               float64         `json:"start"`
	End                 float64         `json:"end"`
	Kind                SegmentKind     `json:"kind"`
	TransitionKind      *TransitionKind `json:"transition_kind,omitempty"`
	TransitionDurationS *float64        `json:"transition_duration,omitempty"`
	Reason              string          `json:"reason,omitempty"`
}

type KeyMoment struct {
	Start      float64    `json:"start"`
	End        float64    `json:"end"`
	Importance Importance `json:"importance"`
	Role       MomentRole `json:"role"`
	Reason     string     `json:"reason,omitempty"`
}

type Transition struct {
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Kind   string  `json:"kind"`
	Reason string  `json:"reason,omitempty"`
}

type Recommendation struct {
	Message   string     `json:"message"`
	Timestamp *float64   `json:"timestamp,omitempty"`
	Priority  Importance `json:"priority"`
}

// Plan is the planner's output after it has passed the EDL Validator.
type Plan struct {
	ID                uuid.UUID        `json:"id"`
	MediaID           uuid.UUID        `json:"media_id"`
	Status            PlanStatus       `json:"status"`
	StoryArc          StoryArc         `json:"story_arc"`
	EDL               []Segment        `json:"edl"`
	KeyMoments        []KeyMoment      `json:"key_moments,omitempty"`
	Transitions       []Transition     `json:"transitions,omitempty"`
	Recommendations   []Recommendation `json:"recommendations,omitempty"`
	DesiredLengthPct  float64          `json:"desired_length_pct"`
	CoverageToleranceP float64         `json:"coverage_tolerance_pct"`
	Warnings          []string         `json:"warnings,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

type Render struct {
	ID              uuid.UUID    `json:"id"`
	MediaID         uuid.UUID    `json:"media_id"`
	PlanID          uuid.UUID    `json:"plan_id"`
	AspectRatio     string       `json:"aspect_ratio"`
	Status          RenderStatus `json:"status"`
	OutputURI       *string      `json:"output_uri,omitempty"`
	Error           *ErrorDetail `json:"error,omitempty"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
}

// DTOs for API responses

type MediaResponse struct {
	Media
	TranscriptURL *string `json:"transcript_url,omitempty"`
}

type RegisterMediaRequest struct {
	SourceURI   string  `json:"source_uri"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type RegisterMediaResponse struct {
	MediaID uuid.UUID   `json:"media_id"`
	Status  MediaStatus `json:"status"`
}

type EnrichRequest struct {
	Kinds []JobKind `json:"kinds"`
}

type EnrichResponse struct {
	JobIDs []uuid.UUID `json:"job_ids"`
}

type PlanStoryRequest struct {
	Summary          *string `json:"summary,omitempty"`
	StoryPrompt      string  `json:"story_prompt"`
	DesiredLengthPct float64 `json:"desired_length_pct"`
	TargetAudience   *string `json:"target_audience,omitempty"`
	Tone             *string `json:"tone,omitempty"`
	KeyMessage       *string `json:"key_message,omitempty"`
	StylePreferences *string `json:"style_preferences,omitempty"`
	PlanCoverageStrict bool  `json:"plan_coverage_strict,omitempty"`
}

type PlanStoryResponse struct {
	PlanJobID uuid.UUID `json:"plan_job_id"`
}

type PlanHeuristicRequest struct {
	CandidateID *uuid.UUID `json:"candidate_id,omitempty"`
	Start       *float64   `json:"start,omitempty"`
	End         *float64   `json:"end,omitempty"`
}

type RenderRequest struct {
	AspectRatios     []string `json:"aspect_ratios"`
	Captions         bool     `json:"captions,omitempty"`
	NormaliseAudio   bool     `json:"normalise_audio,omitempty"`
	RenderTransitions bool    `json:"render_transitions,omitempty"`
}

type RenderRequestResponse struct {
	RenderIDs []uuid.UUID `json:"render_ids"`
}
