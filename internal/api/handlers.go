// Package api is the HTTP control plane: a thin chi-routed surface
// over the Registry and the Job Orchestrator's queue. Handlers never run
// enrichment, planning, or rendering themselves — they validate input,
// write/read Registry rows, and enqueue work for the worker pool to pick
// up asynchronously.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/bobarin/reelforge/internal/db"
	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/queue"
	"github.com/bobarin/reelforge/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	db      *db.DB
	queue   *queue.Queue
	storage *storage.Storage
}

func NewHandler(database *db.DB, q *queue.Queue, stor *storage.Storage) *Handler {
	return &Handler{
		db:      database,
		queue:   q,
		storage: stor,
	}
}

// enrichableKinds is the set of JobKind values a caller is allowed to
// request via POST /media/{id}/enrich — Probe runs automatically at
// registration and Plan*/ApplyPlan have their own dedicated endpoints.
var enrichableKinds = map[models.JobKind]bool{
	models.JobKindTranscribe:     true,
	models.JobKindDetectSilence:  true,
	models.JobKindDetectScenes:   true,
	models.JobKindDescribeFrames: true,
	models.JobKindIndexScenes:    true,
	models.JobKindSelectClips:    true,
}

// CreateMedia handles POST /media.
func (h *Handler) CreateMedia(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.SourceURI == "" {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "source_uri is required")
		return
	}

	media := &models.Media{
		ID:          uuid.New(),
		SourceURI:   req.SourceURI,
		Title:       req.Title,
		Description: req.Description,
		Status:      models.MediaStatusRegistered,
	}
	if err := h.db.CreateMedia(r.Context(), media); err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to register media")
		return
	}

	if err := h.enqueueJob(r.Context(), media.ID, models.JobKindProbe, nil); err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue probe")
		return
	}

	respondJSON(w, http.StatusCreated, models.RegisterMediaResponse{
		MediaID: media.ID,
		Status:  media.Status,
	})
}

// GetMedia handles GET /media/{id}.
func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}

	media, err := h.db.GetMedia(r.Context(), mediaID)
	if err != nil {
		respondNotFoundOrError(w, err, "media not found")
		return
	}

	resp := models.MediaResponse{Media: *media}
	if _, err := h.db.GetTranscript(r.Context(), mediaID); err == nil {
		url := "/media/" + mediaID.String() + "/transcript"
		resp.TranscriptURL = &url
	}
	respondJSON(w, http.StatusOK, resp)
}

// DeleteMedia handles DELETE /media/{id} — a soft delete; enrichment,
// plans and renders already persisted for this media are left intact, but
// any job still Queued or Running against it is cancelled so the worker
// pool stops producing output for a media nobody can read anymore.
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	if err := h.db.SoftDeleteMedia(r.Context(), mediaID); err != nil {
		respondNotFoundOrError(w, err, "media not found")
		return
	}
	h.cancelActiveJobs(r.Context(), mediaID)
	w.WriteHeader(http.StatusNoContent)
}

// cancelActiveJobs drives the Queued/Running -> Cancelled transition for
// every job still outstanding against a media. Best-effort: a job that
// reaches a terminal state concurrently (the worker beats us to it) is left
// alone rather than treated as an error.
func (h *Handler) cancelActiveJobs(ctx context.Context, mediaID uuid.UUID) {
	jobs, err := h.db.ListActiveJobsByMedia(ctx, mediaID)
	if err != nil {
		log.Printf("[api] failed to list active jobs for media %s: %v", mediaID, err)
		return
	}
	for _, job := range jobs {
		switch job.Status {
		case models.JobStatusQueued:
			if _, err := h.db.CancelQueuedJob(ctx, job.ID); err != nil {
				log.Printf("[api] failed to cancel queued job %s: %v", job.ID, err)
			}
		case models.JobStatusRunning:
			if err := h.db.CancelRunningJob(ctx, job.ID); err != nil {
				log.Printf("[api] failed to cancel running job %s: %v", job.ID, err)
			}
		}
	}
}

// EnrichMedia handles POST /media/{id}/enrich. Only kinds without a prior
// Completed job are enqueued — a kind already satisfied is a no-op, not a
// redundant recompute.
func (h *Handler) EnrichMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	if _, err := h.db.GetMedia(r.Context(), mediaID); err != nil {
		respondNotFoundOrError(w, err, "media not found")
		return
	}

	var req models.EnrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if len(req.Kinds) == 0 {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "kinds must be non-empty")
		return
	}
	for _, k := range req.Kinds {
		if !enrichableKinds[k] {
			respondError(w, http.StatusBadRequest, "InvalidRequest", "unrecognised enrichment kind: "+string(k))
			return
		}
	}

	var jobIDs []uuid.UUID
	for _, kind := range req.Kinds {
		if _, err := h.db.LatestCompletedJobByKind(r.Context(), mediaID, kind); err == nil {
			continue // already satisfied
		}
		jobID, err := h.createAndEnqueue(r.Context(), mediaID, kind, nil)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue "+string(kind))
			return
		}
		jobIDs = append(jobIDs, jobID)
	}

	respondJSON(w, http.StatusAccepted, models.EnrichResponse{JobIDs: jobIDs})
}

// GetTranscript handles GET /media/{id}/transcript.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	transcript, err := h.db.GetTranscript(r.Context(), mediaID)
	if err != nil {
		respondNotFoundOrError(w, err, "transcript not found")
		return
	}
	respondJSON(w, http.StatusOK, transcript)
}

// GetScenes handles GET /media/{id}/scenes.
func (h *Handler) GetScenes(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	scenes, err := h.db.ListScenes(r.Context(), mediaID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to list scenes")
		return
	}
	if len(scenes) == 0 {
		respondError(w, http.StatusNotFound, "NotFound", "no scenes for media")
		return
	}
	respondJSON(w, http.StatusOK, scenes)
}

// GetCandidates handles GET /media/{id}/candidates — possibly empty; a
// media with no detected highlight-worthy moments is not an error.
func (h *Handler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	candidates, err := h.db.ListClipCandidates(r.Context(), mediaID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to list candidates")
		return
	}
	respondJSON(w, http.StatusOK, candidates)
}

// PlanHeuristic handles POST /media/{id}/plans/heuristic.
func (h *Handler) PlanHeuristic(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	media, err := h.db.GetMedia(r.Context(), mediaID)
	if err != nil {
		respondNotFoundOrError(w, err, "media not found")
		return
	}
	if media.Duration != nil && *media.Duration <= 0 {
		respondError(w, http.StatusBadRequest, "EmptySource", "media has zero duration and cannot be planned")
		return
	}

	var req models.PlanHeuristicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	hasWindow := req.Start != nil && req.End != nil
	if req.CandidateID == nil && !hasWindow {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "plans/heuristic requires a candidate_id or an explicit start/end window")
		return
	}

	input := map[string]interface{}{}
	if req.CandidateID != nil {
		input["candidate_id"] = req.CandidateID.String()
	} else {
		input["start"] = *req.Start
		input["end"] = *req.End
	}
	jobInput, err := db.MarshalInput(input)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to build job input")
		return
	}

	jobID, err := h.createAndEnqueue(r.Context(), mediaID, models.JobKindPlanHeuristic, jobInput)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue plan")
		return
	}
	respondJSON(w, http.StatusAccepted, models.PlanStoryResponse{PlanJobID: jobID})
}

// PlanStory handles POST /media/{id}/plans/story.
func (h *Handler) PlanStory(w http.ResponseWriter, r *http.Request) {
	mediaID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid media id")
		return
	}
	media, err := h.db.GetMedia(r.Context(), mediaID)
	if err != nil {
		respondNotFoundOrError(w, err, "media not found")
		return
	}
	if media.Duration != nil && *media.Duration <= 0 {
		respondError(w, http.StatusBadRequest, "EmptySource", "media has zero duration and cannot be planned")
		return
	}

	var req models.PlanStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if req.StoryPrompt == "" {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "story_prompt is required")
		return
	}
	if req.DesiredLengthPct <= 0 || req.DesiredLengthPct > 100 {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "desired_length_pct must be in (0, 100]")
		return
	}

	input := map[string]interface{}{
		"story_prompt":         req.StoryPrompt,
		"desired_length_pct":   req.DesiredLengthPct,
		"plan_coverage_strict": req.PlanCoverageStrict,
	}
	if req.Summary != nil {
		input["summary"] = *req.Summary
	}
	if req.TargetAudience != nil {
		input["target_audience"] = *req.TargetAudience
	}
	if req.Tone != nil {
		input["tone"] = *req.Tone
	}
	if req.KeyMessage != nil {
		input["key_message"] = *req.KeyMessage
	}
	if req.StylePreferences != nil {
		input["style_preferences"] = *req.StylePreferences
	}
	jobInput, err := db.MarshalInput(input)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to build job input")
		return
	}

	jobID, err := h.createAndEnqueue(r.Context(), mediaID, models.JobKindPlanStory, jobInput)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue plan")
		return
	}
	respondJSON(w, http.StatusAccepted, models.PlanStoryResponse{PlanJobID: jobID})
}

// GetPlan handles GET /plans/{plan_id}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(chi.URLParam(r, "plan_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid plan id")
		return
	}
	plan, err := h.db.GetPlan(r.Context(), planID)
	if err != nil {
		respondNotFoundOrError(w, err, "plan not found")
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// RenderPlan handles POST /plans/{plan_id}/render. One Render row per
// requested aspect ratio is created up front (Queued) so the response can
// hand the caller pollable IDs immediately; the actual encode work runs
// asynchronously under a single ApplyPlan job.
func (h *Handler) RenderPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(chi.URLParam(r, "plan_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid plan id")
		return
	}
	plan, err := h.db.GetPlan(r.Context(), planID)
	if err != nil {
		respondNotFoundOrError(w, err, "plan not found")
		return
	}

	var req models.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "malformed request body")
		return
	}
	if len(req.AspectRatios) == 0 {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "aspect_ratios must be non-empty")
		return
	}
	if req.RenderTransitions {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "render_transitions is reserved for a future release and is not yet implemented")
		return
	}

	renderIDs := make([]uuid.UUID, len(req.AspectRatios))
	renderIDsByRatio := map[string]interface{}{}
	for i, ratio := range req.AspectRatios {
		render := &models.Render{
			ID:          uuid.New(),
			MediaID:     plan.MediaID,
			PlanID:      plan.ID,
			AspectRatio: ratio,
			Status:      models.RenderStatusQueued,
		}
		if err := h.db.CreateRender(r.Context(), render); err != nil {
			respondError(w, http.StatusInternalServerError, "InternalError", "failed to create render")
			return
		}
		renderIDs[i] = render.ID
		renderIDsByRatio[ratio] = render.ID.String()
	}

	input := map[string]interface{}{
		"plan_id":         plan.ID.String(),
		"aspect_ratios":   req.AspectRatios,
		"captions":        req.Captions,
		"normalise_audio": req.NormaliseAudio,
		"render_ids":      renderIDsByRatio,
	}
	jobInput, err := db.MarshalInput(input)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to build job input")
		return
	}
	if _, err := h.createAndEnqueue(r.Context(), plan.MediaID, models.JobKindApplyPlan, jobInput); err != nil {
		respondError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue render")
		return
	}

	respondJSON(w, http.StatusAccepted, models.RenderRequestResponse{RenderIDs: renderIDs})
}

// GetRender handles GET /renders/{render_id}.
func (h *Handler) GetRender(w http.ResponseWriter, r *http.Request) {
	renderID, err := uuid.Parse(chi.URLParam(r, "render_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRequest", "invalid render id")
		return
	}
	render, err := h.db.GetRender(r.Context(), renderID)
	if err != nil {
		respondNotFoundOrError(w, err, "render not found")
		return
	}
	respondJSON(w, http.StatusOK, render)
}

// Health is the liveness probe — unauthenticated, mounted outside the
// API-key route group.
// Queue depths per job kind are included so an operator can see backlog
// without a metrics pipeline; a Redis hiccup degrades to depths being
// omitted rather than failing the probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	depths := map[string]int64{}
	for _, name := range queue.AllQueueNames() {
		n, err := h.queue.QueueLength(r.Context(), name)
		if err != nil {
			continue
		}
		depths[name] = n
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"queue_depths": depths,
	})
}

func (h *Handler) createAndEnqueue(ctx context.Context, mediaID uuid.UUID, kind models.JobKind, input models.JSONB) (uuid.UUID, error) {
	job := &models.Job{
		ID:      uuid.New(),
		MediaID: mediaID,
		Kind:    kind,
		Status:  models.JobStatusQueued,
		Input:   input,
	}
	if err := h.db.CreateJob(ctx, job); err != nil {
		return uuid.Nil, err
	}
	if err := h.queue.Enqueue(ctx, job.ID, mediaID, kind); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

func (h *Handler) enqueueJob(ctx context.Context, mediaID uuid.UUID, kind models.JobKind, input models.JSONB) error {
	_, err := h.createAndEnqueue(ctx, mediaID, kind, input)
	return err
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes the {code, message} shape used for every
// caller-visible error.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"code": code, "message": message})
}

func respondNotFoundOrError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NotFound", notFoundMsg)
		return
	}
	respondError(w, http.StatusInternalServerError, "InternalError", err.Error())
}
