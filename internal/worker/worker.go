// Package worker is the job orchestrator's handler side: it drains
// the durable queue, claims jobs, dispatches them to the kind-specific
// handler, and reconciles the result back into the Registry — including
// retry backoff, precondition deferral, and crash recovery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/reelforge/internal/config"
	"github.com/bobarin/reelforge/internal/db"
	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/planner"
	"github.com/bobarin/reelforge/internal/queue"
	"github.com/bobarin/reelforge/internal/services"
	"github.com/bobarin/reelforge/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// errPreconditionNotMet signals a job whose dependencies have not
// completed yet — the queue loop re-enqueues it after a short delay
// instead of treating it as a failed attempt.
var errPreconditionNotMet = errors.New("precondition not met")

const preconditionRetryDelay = 5 * time.Second

type Worker struct {
	db      *db.DB
	queue   *queue.Queue
	storage *storage.Storage
	openai  *services.OpenAIService
	gemini  *services.GeminiService
	ffmpeg  *services.FFmpegService
	cfg     *config.Config

	// Per-provider semaphores bound concurrent external calls across all
	// queue goroutines, independent of how many worker slots are draining
	// each queue.
	visionSem chan struct{} // Gemini frame captioning
	renderSem chan struct{} // ffmpeg render processes (CPU intensive)
}

func New(
	database *db.DB,
	q *queue.Queue,
	stor *storage.Storage,
	openaiSvc *services.OpenAIService,
	geminiSvc *services.GeminiService,
	ffmpegSvc *services.FFmpegService,
	cfg *config.Config,
) *Worker {
	return &Worker{
		db:        database,
		queue:     q,
		storage:   stor,
		openai:    openaiSvc,
		gemini:    geminiSvc,
		ffmpeg:    ffmpegSvc,
		cfg:       cfg,
		visionSem: make(chan struct{}, cfg.ModelConcurrencyLimit),
		renderSem: make(chan struct{}, cfg.RenderSegmentParallelism),
	}
}

// Start reclaims any job left Running by a worker that died mid-handler,
// then spawns WorkerPoolSize goroutines per job kind, each draining its
// own Redis list.
func (w *Worker) Start(ctx context.Context) {
	stale, err := w.db.ReclaimStaleRunningJobs(ctx)
	if err != nil {
		log.Printf("[worker] failed to query stale running jobs: %v", err)
	}
	for _, job := range stale {
		log.Printf("[worker] reclaiming stale running job %s (kind=%s)", job.ID, job.Kind)
		successor, err := w.db.RequeueSuccessor(ctx, &job)
		if err != nil {
			log.Printf("[worker] failed to requeue stale job %s: %v", job.ID, err)
			continue
		}
		if err := w.db.FailJob(ctx, job.ID, &models.ErrorDetail{Code: "WorkerCrash", Message: "reclaimed after worker crash"}); err != nil {
			log.Printf("[worker] failed to mark stale job %s failed: %v", job.ID, err)
		}
		if err := w.queue.Enqueue(ctx, successor.ID, successor.MediaID, successor.Kind); err != nil {
			log.Printf("[worker] failed to enqueue reclaimed successor %s: %v", successor.ID, err)
		}
	}

	kinds := []models.JobKind{
		models.JobKindProbe, models.JobKindTranscribe, models.JobKindDetectSilence,
		models.JobKindDetectScenes, models.JobKindDescribeFrames, models.JobKindIndexScenes,
		models.JobKindSelectClips, models.JobKindPlanHeuristic, models.JobKindPlanStory,
		models.JobKindApplyPlan,
	}
	for _, kind := range kinds {
		for i := 0; i < w.cfg.WorkerPoolSize; i++ {
			go w.processQueue(ctx, kind)
		}
	}

	log.Printf("[worker] started, %d slots per kind across %d kinds", w.cfg.WorkerPoolSize, len(kinds))
	<-ctx.Done()
	log.Println("[worker] shutting down")
}

func (w *Worker) processQueue(ctx context.Context, kind models.JobKind) {
	queueName := queue.QueueName(kind)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.queue.PromoteDueDelayed(ctx, kind); err != nil {
			log.Printf("[worker:%s] failed to promote delayed jobs: %v", kind, err)
		}

		msg, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
		if err != nil {
			log.Printf("[worker:%s] dequeue error: %v", kind, err)
			continue
		}
		if msg == nil {
			continue
		}

		job, err := w.db.GetJob(ctx, msg.JobID)
		if err != nil {
			log.Printf("[worker:%s] failed to load job %s: %v", kind, msg.JobID, err)
			continue
		}
		if job.Status != models.JobStatusQueued {
			continue // already claimed, cancelled, or superseded
		}

		if err := w.checkPreconditions(ctx, job); err != nil {
			if errors.Is(err, errPreconditionNotMet) {
				if reqErr := w.queue.EnqueueAfter(ctx, job.ID, job.MediaID, job.Kind, preconditionRetryDelay); reqErr != nil {
					log.Printf("[worker:%s] failed to defer job %s: %v", kind, job.ID, reqErr)
				}
			} else {
				log.Printf("[worker:%s] precondition check failed for job %s: %v", kind, job.ID, err)
			}
			continue
		}

		ok, err := w.db.ClaimJob(ctx, job.ID)
		if err != nil {
			log.Printf("[worker:%s] claim error for job %s: %v", kind, job.ID, err)
			continue
		}
		if !ok {
			continue // another worker won the race
		}

		log.Printf("[worker:%s] running job %s (media=%s, attempt=%d)", kind, job.ID, job.MediaID, job.Attempt)
		result, tokensUsed, err := w.dispatch(ctx, job)

		if cancelled, cErr := w.isCancelled(ctx, job.ID); cErr == nil && cancelled {
			log.Printf("[worker:%s] job %s was cancelled mid-run", kind, job.ID)
			continue
		}

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// Exceeding a job kind's soft deadline trips
				// cancellation — the handler is marked Cancelled, not
				// Failed, and is not retried.
				log.Printf("[worker:%s] job %s exceeded its soft deadline, cancelling", kind, job.ID)
				if cErr := w.db.CancelRunningJob(ctx, job.ID); cErr != nil {
					log.Printf("[worker:%s] failed to mark job %s cancelled: %v", kind, job.ID, cErr)
				}
				continue
			}
			log.Printf("[worker:%s] job %s failed: %v", kind, job.ID, err)
			if failErr := w.db.FailJob(ctx, job.ID, errorDetail(err)); failErr != nil {
				log.Printf("[worker:%s] failed to mark job %s failed: %v", kind, job.ID, failErr)
			}
			w.maybeRetry(ctx, job, err)
			continue
		}

		if err := w.db.CompleteJob(ctx, job.ID, result, tokensUsed); err != nil {
			log.Printf("[worker:%s] failed to mark job %s completed: %v", kind, job.ID, err)
		}
	}
}

func (w *Worker) isCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	job, err := w.db.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Status == models.JobStatusCancelled, nil
}

func (w *Worker) maybeRetry(ctx context.Context, job *models.Job, cause error) {
	max := w.cfg.MaxAttemptsDefault
	if job.Kind == models.JobKindPlanStory {
		max = w.cfg.MaxAttemptsPlanStory
	}
	if job.Attempt >= max {
		if job.Kind == models.JobKindProbe {
			if err := w.db.SetMediaFailed(ctx, job.MediaID, "ProbeFailed", cause.Error()); err != nil {
				log.Printf("[worker] failed to mark media %s failed: %v", job.MediaID, err)
			}
		}
		return
	}

	successor, err := w.db.RequeueSuccessor(ctx, job)
	if err != nil {
		log.Printf("[worker] failed to create retry successor for job %s: %v", job.ID, err)
		return
	}
	delay := backoffDelay(job.Attempt, w.cfg.RetryBackoffBaseS, w.cfg.RetryJitterS)
	if err := w.queue.EnqueueAfter(ctx, successor.ID, successor.MediaID, successor.Kind, delay); err != nil {
		log.Printf("[worker] failed to enqueue retry successor %s: %v", successor.ID, err)
	}
}

// errorDetail maps a handler error onto the {code, message} shape stored
// on Job.Error / Render.Error. Handlers and services prefix classified
// failures with their taxonomy code ("EncodeError: ...",
// "InvalidPlan: ..."); anything unprefixed is an internal error.
func errorDetail(err error) *models.ErrorDetail {
	msg := err.Error()
	if code, rest, ok := strings.Cut(msg, ": "); ok && isErrorCode(code) {
		return &models.ErrorDetail{Code: code, Message: rest}
	}
	return &models.ErrorDetail{Code: "InternalError", Message: msg}
}

// isErrorCode reports whether a string looks like a taxonomy code: a
// single CamelCase token, letters only.
func isErrorCode(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// withSoftDeadline derives the per-kind soft-deadline child context;
// exceeding it trips cancellation rather than a handler failure. A
// non-positive duration means the
// caller couldn't establish a basis for one yet (e.g. unknown media
// duration) and the parent context is returned unwrapped rather than
// firing immediately.
func withSoftDeadline(ctx context.Context, seconds float64) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(seconds*float64(time.Second)))
}

func backoffDelay(attempt, baseS, jitterS int) time.Duration {
	backoff := float64(baseS) * math.Pow(2, float64(attempt-1))
	jitter := rand.Float64() * float64(jitterS)
	return time.Duration(backoff+jitter) * time.Second
}

// checkPreconditions implements the dependency graph between job
// kinds: a job whose required upstream enrichment has not yet completed
// is deferred, not failed.
func (w *Worker) checkPreconditions(ctx context.Context, job *models.Job) error {
	switch job.Kind {
	case models.JobKindProbe:
		return nil

	case models.JobKindTranscribe, models.JobKindDetectSilence, models.JobKindDetectScenes, models.JobKindDescribeFrames:
		return w.requireMediaReady(ctx, job.MediaID)

	case models.JobKindIndexScenes:
		if err := w.requireMediaReady(ctx, job.MediaID); err != nil {
			return err
		}
		if err := w.requireCompleted(ctx, job.MediaID, models.JobKindDetectScenes); err != nil {
			return err
		}
		return w.requireCompleted(ctx, job.MediaID, models.JobKindDescribeFrames)

	case models.JobKindSelectClips:
		if err := w.requireCompleted(ctx, job.MediaID, models.JobKindTranscribe); err != nil {
			return err
		}
		if err := w.requireCompleted(ctx, job.MediaID, models.JobKindDetectSilence); err != nil {
			return err
		}
		return w.requireCompleted(ctx, job.MediaID, models.JobKindIndexScenes)

	case models.JobKindPlanHeuristic:
		return w.requireCompleted(ctx, job.MediaID, models.JobKindSelectClips)

	case models.JobKindPlanStory:
		if err := w.requireCompleted(ctx, job.MediaID, models.JobKindTranscribe); err != nil {
			return err
		}
		return w.requireCompleted(ctx, job.MediaID, models.JobKindIndexScenes)

	case models.JobKindApplyPlan:
		planID, ok := jsonbUUID(job.Input, "plan_id")
		if !ok {
			return fmt.Errorf("InvalidRequest: apply_plan job missing plan_id")
		}
		plan, err := w.db.GetPlan(ctx, planID)
		if err != nil {
			return fmt.Errorf("failed to load plan %s: %w", planID, err)
		}
		if plan.Status != models.PlanStatusValidated && plan.Status != models.PlanStatusRendering {
			return fmt.Errorf("InvalidRequest: plan %s is not in a renderable state (%s)", planID, plan.Status)
		}
		return nil
	}
	return nil
}

func (w *Worker) requireMediaReady(ctx context.Context, mediaID uuid.UUID) error {
	media, err := w.db.GetMedia(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("failed to load media %s: %w", mediaID, err)
	}
	if media.Status != models.MediaStatusReady {
		return errPreconditionNotMet
	}
	return nil
}

func (w *Worker) requireCompleted(ctx context.Context, mediaID uuid.UUID, kind models.JobKind) error {
	_, err := w.db.LatestCompletedJobByKind(ctx, mediaID, kind)
	if errors.Is(err, db.ErrNotFound) {
		return errPreconditionNotMet
	}
	return err
}

func jsonbUUID(input models.JSONB, key string) (uuid.UUID, bool) {
	raw, ok := input[key]
	if !ok {
		return uuid.Nil, false
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// dispatch routes a claimed job to its handler. Enrichment kinds that are
// keyed uniquely per media short-circuit to a prior completed job's
// result if one exists, rather than repeating expensive work.
func (w *Worker) dispatch(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	switch job.Kind {
	case models.JobKindProbe:
		return w.handleProbe(ctx, job)
	case models.JobKindTranscribe:
		if r, ok := w.priorResult(ctx, job); ok {
			return r, nil, nil
		}
		return w.handleTranscribe(ctx, job)
	case models.JobKindDetectSilence:
		if r, ok := w.priorResult(ctx, job); ok {
			return r, nil, nil
		}
		return w.handleDetectSilence(ctx, job)
	case models.JobKindDetectScenes:
		if r, ok := w.priorResult(ctx, job); ok {
			return r, nil, nil
		}
		return w.handleDetectScenes(ctx, job)
	case models.JobKindDescribeFrames:
		if r, ok := w.priorResult(ctx, job); ok {
			return r, nil, nil
		}
		return w.handleDescribeFrames(ctx, job)
	case models.JobKindIndexScenes:
		if r, ok := w.priorResult(ctx, job); ok {
			return r, nil, nil
		}
		return w.handleIndexScenes(ctx, job)
	case models.JobKindSelectClips:
		if r, ok := w.priorResult(ctx, job); ok {
			return r, nil, nil
		}
		return w.handleSelectClips(ctx, job)
	case models.JobKindPlanHeuristic:
		return w.handlePlanHeuristic(ctx, job)
	case models.JobKindPlanStory:
		return w.handlePlanStory(ctx, job)
	case models.JobKindApplyPlan:
		return w.handleApplyPlan(ctx, job)
	}
	return nil, nil, fmt.Errorf("unknown job kind %q", job.Kind)
}

func (w *Worker) priorResult(ctx context.Context, job *models.Job) (models.JSONB, bool) {
	prior, err := w.db.LatestCompletedJobByKind(ctx, job.MediaID, job.Kind)
	if err != nil || prior.ID == job.ID {
		return nil, false
	}
	return prior.Result, true
}

// ---------------------------------------------------------------------------
// Media Probe
// ---------------------------------------------------------------------------

func (w *Worker) handleProbe(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.ProbeTimeoutS)*time.Second)
	defer cancel()

	result, err := w.ffmpeg.Probe(probeCtx, media.SourceURI)
	if err != nil {
		w.db.SetMediaFailed(ctx, media.ID, "ProbeFailed", err.Error())
		return nil, nil, err
	}

	if err := w.db.SetMediaProbed(ctx, media.ID, result.Duration, result.FPS, result.Width, result.Height,
		result.HasAudio, result.VideoCodec, result.AudioCodec, result.Bitrate); err != nil {
		return nil, nil, fmt.Errorf("failed to persist probe result: %w", err)
	}

	out, _ := db.MarshalInput(result)
	return out, nil, nil
}

// ---------------------------------------------------------------------------
// Shared audio extraction — invoked by Transcribe and DetectSilence
// ---------------------------------------------------------------------------

// ensureExtractedAudio returns a local path to the media's normalized
// mono 16kHz PCM audio, extracting and caching it in the blob store on
// first use. A false second return means the source has no audio track
// — callers treat that as an empty, Completed result, not a failure.
// The local scratch file is scoped to jobID rather than media.ID so that
// Transcribe and DetectSilence, which both call this for the same media
// and can run concurrently on independent queues, never share a path.
func (w *Worker) ensureExtractedAudio(ctx context.Context, jobID uuid.UUID, media *models.Media) (string, bool, error) {
	remotePath := w.storage.ExtractedAudioPath(media.ID)
	localPath := w.ffmpeg.CreateTempFile(filepath.Join(jobID.String(), "audio.wav"))

	if cached, err := w.storage.Download(ctx, remotePath); err == nil {
		os.MkdirAll(filepath.Dir(localPath), 0755)
		if err := os.WriteFile(localPath, cached, 0644); err == nil {
			return localPath, true, nil
		}
	}

	if err := w.ffmpeg.ExtractAudio(ctx, media.SourceURI, localPath); err != nil {
		if errors.Is(err, services.ErrNoAudioTrack) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("audio extraction failed: %w", err)
	}

	if err := w.storage.UploadFile(ctx, remotePath, localPath, "audio/wav"); err != nil {
		log.Printf("[worker] failed to cache extracted audio for media %s: %v", media.ID, err)
	}
	return localPath, true, nil
}

// ---------------------------------------------------------------------------
// Transcriber
// ---------------------------------------------------------------------------

func (w *Worker) handleTranscribe(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}

	var deadlineSeconds float64
	if media.Duration != nil {
		deadlineSeconds = *media.Duration * w.cfg.TranscribeTimeoutMultiple
	}
	deadlineCtx, cancel := withSoftDeadline(ctx, deadlineSeconds)
	defer cancel()
	ctx = deadlineCtx

	audioPath, hasAudio, err := w.ensureExtractedAudio(ctx, job.ID, media)
	if err != nil {
		return nil, nil, err
	}
	defer w.ffmpeg.Cleanup(job.ID.String())

	transcript := &models.Transcript{MediaID: media.ID, Language: "en"}
	if hasAudio {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read extracted audio: %w", err)
		}
		t, err := w.openai.Transcribe(ctx, data, "")
		if err != nil {
			return nil, nil, err
		}
		t.MediaID = media.ID
		transcript = t
	}

	if err := w.db.UpsertTranscript(ctx, transcript); err != nil {
		return nil, nil, fmt.Errorf("failed to persist transcript: %w", err)
	}

	out, _ := db.MarshalInput(map[string]int{"segments": len(transcript.Segments)})
	return out, nil, nil
}

// ---------------------------------------------------------------------------
// Silence Detector
// ---------------------------------------------------------------------------

const defaultNoiseFloorDB = -30.0

func (w *Worker) handleDetectSilence(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}

	audioPath, hasAudio, err := w.ensureExtractedAudio(ctx, job.ID, media)
	if err != nil {
		return nil, nil, err
	}
	defer w.ffmpeg.Cleanup(job.ID.String())

	sm := &models.SilenceMap{MediaID: media.ID}
	if hasAudio {
		intervals, err := w.ffmpeg.DetectSilence(ctx, audioPath, w.cfg.MinSilenceS, defaultNoiseFloorDB)
		if err != nil {
			return nil, nil, err
		}
		for _, iv := range intervals {
			sm.Intervals = append(sm.Intervals, models.SilenceInterval{Start: iv.Start, End: iv.End})
		}
	} else if media.Duration != nil && *media.Duration > 0 {
		// No audio track means the whole timeline is silent, not that no
		// silence exists.
		sm.Intervals = []models.SilenceInterval{{Start: 0, End: *media.Duration}}
	}

	if err := w.db.UpsertSilenceMap(ctx, sm); err != nil {
		return nil, nil, fmt.Errorf("failed to persist silence map: %w", err)
	}

	out, _ := db.MarshalInput(map[string]int{"intervals": len(sm.Intervals)})
	return out, nil, nil
}

// ---------------------------------------------------------------------------
// Scene-Cut Detector
// ---------------------------------------------------------------------------

const defaultSceneThreshold = 0.4

func (w *Worker) handleDetectScenes(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}

	var deadlineSeconds float64
	if media.Duration != nil {
		deadlineSeconds = *media.Duration * w.cfg.DetectScenesTimeoutMultiple
	}
	deadlineCtx, cancel := withSoftDeadline(ctx, deadlineSeconds)
	defer cancel()
	ctx = deadlineCtx

	cuts, err := w.ffmpeg.DetectSceneCuts(ctx, media.SourceURI, defaultSceneThreshold)
	if err != nil {
		return nil, nil, err
	}

	if err := w.db.UpsertSceneCuts(ctx, &models.SceneCuts{MediaID: media.ID, Cuts: cuts}); err != nil {
		return nil, nil, fmt.Errorf("failed to persist scene cuts: %w", err)
	}

	out, _ := db.MarshalInput(map[string]int{"cuts": len(cuts)})
	return out, nil, nil
}

// ---------------------------------------------------------------------------
// Frame Describer
// ---------------------------------------------------------------------------

func (w *Worker) handleDescribeFrames(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}
	if media.Duration == nil {
		return nil, nil, fmt.Errorf("media %s has no known duration", media.ID)
	}

	var sampleTimes []float64
	for t := 0.0; t < *media.Duration; t += w.cfg.FrameSampleS {
		sampleTimes = append(sampleTimes, t)
	}

	frames := make([]models.Frame, len(sampleTimes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.ModelConcurrencyLimit)

	for i, t := range sampleTimes {
		i, t := i, t
		g.Go(func() error {
			if cancelled, _ := w.isCancelled(ctx, job.ID); cancelled {
				return nil
			}
			localPath := w.ffmpeg.CreateTempFile(filepath.Join(job.ID.String(), fmt.Sprintf("frame_%03d.jpg", i)))
			if err := w.ffmpeg.SampleFrame(gctx, media.SourceURI, t, localPath); err != nil {
				return err
			}
			data, err := os.ReadFile(localPath)
			if err != nil {
				return err
			}

			var caption string
			if sErr := w.withSemaphore(gctx, w.visionSem, func() error {
				var dErr error
				caption, dErr = w.gemini.DescribeFrame(gctx, data, services.MimeTypeForExt(localPath))
				return dErr
			}); sErr != nil {
				caption = ""
			}

			frames[i] = models.Frame{MediaID: media.ID, T: t, Description: caption}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		w.ffmpeg.Cleanup(job.ID.String())
		return nil, nil, err
	}
	w.ffmpeg.Cleanup(job.ID.String())

	if err := w.db.ReplaceFrames(ctx, media.ID, frames); err != nil {
		return nil, nil, fmt.Errorf("failed to persist frames: %w", err)
	}

	out, _ := db.MarshalInput(map[string]int{"frames": len(frames)})
	return out, nil, nil
}

func (w *Worker) withSemaphore(ctx context.Context, sem chan struct{}, fn func() error) error {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sem }()
	return fn()
}

// ---------------------------------------------------------------------------
// Scene Indexer
// ---------------------------------------------------------------------------

func (w *Worker) handleIndexScenes(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}
	if media.Duration == nil {
		return nil, nil, fmt.Errorf("media %s has no known duration", media.ID)
	}

	sceneCuts, err := w.db.GetSceneCuts(ctx, media.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load scene cuts: %w", err)
	}
	var cuts []float64
	if sceneCuts != nil {
		cuts = sceneCuts.Cuts
	}

	frames, err := w.db.ListFrames(ctx, media.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load frames: %w", err)
	}

	scenes := planner.IndexScenes(cuts, frames, *media.Duration)
	if err := w.db.ReplaceScenes(ctx, media.ID, scenes); err != nil {
		return nil, nil, fmt.Errorf("failed to persist scenes: %w", err)
	}

	out, _ := db.MarshalInput(map[string]int{"scenes": len(scenes)})
	return out, nil, nil
}

// ---------------------------------------------------------------------------
// Heuristic Clip Selector
// ---------------------------------------------------------------------------

func (w *Worker) handleSelectClips(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}
	if media.Duration == nil {
		return nil, nil, fmt.Errorf("media %s has no known duration", media.ID)
	}

	transcript, err := w.db.GetTranscript(ctx, media.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	silenceMap, err := w.db.GetSilenceMap(ctx, media.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load silence map: %w", err)
	}
	scenes, err := w.db.ListScenes(ctx, media.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load scenes: %w", err)
	}

	candidates := planner.SelectClips(transcript, silenceMap, scenes, *media.Duration, planner.SelectorConfig{
		MinDurationS: w.cfg.ClipMinS,
		MaxDurationS: w.cfg.ClipMaxS,
		ClipCount:    w.cfg.ClipN,
	})

	if err := w.db.ReplaceClipCandidates(ctx, media.ID, candidates); err != nil {
		return nil, nil, fmt.Errorf("failed to persist candidates: %w", err)
	}

	out, _ := db.MarshalInput(map[string]int{"candidates": len(candidates)})
	return out, nil, nil
}

// ---------------------------------------------------------------------------
// Plan generation — the heuristic path and the story path converge on
// the same EDL validator before anything is persisted as a Plan.
// ---------------------------------------------------------------------------

func (w *Worker) handlePlanHeuristic(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}
	if media.Duration == nil {
		return nil, nil, fmt.Errorf("media %s has no known duration", media.ID)
	}

	var start, end float64
	if candidateIDStr, ok := job.Input["candidate_id"].(string); ok {
		candidateID, err := uuid.Parse(candidateIDStr)
		if err != nil {
			return nil, nil, fmt.Errorf("InvalidRequest: malformed candidate_id")
		}
		candidate, err := w.db.GetClipCandidate(ctx, candidateID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load candidate %s: %w", candidateID, err)
		}
		start, end = candidate.Start, candidate.End
	} else if s, ok := job.Input["start"].(float64); ok {
		if e, ok := job.Input["end"].(float64); ok {
			start, end = s, e
		}
	}
	if end <= start {
		return nil, nil, fmt.Errorf("InvalidRequest: plan_heuristic requires a candidate_id or an explicit start/end window")
	}

	edl := []models.Segment{
		{Start: start, End: end, Kind: models.SegmentKindKeep, Reason: "heuristic selection"},
	}
	storyArc := models.StoryArc{HookT: start, ClimaxT: (start + end) / 2, ResolutionT: end}

	result, err := planner.Validate(edl, storyArc, planner.ValidatorConfig{
		SourceDuration:       *media.Duration,
		DesiredLengthPct:     (end - start) / *media.Duration * 100,
		CoverageTolerancePct: w.cfg.PlanCoverageTolerancePct,
	})
	if err != nil {
		return nil, nil, err
	}

	plan := &models.Plan{
		ID:                 uuid.New(),
		MediaID:            media.ID,
		Status:             models.PlanStatusValidated,
		StoryArc:           result.StoryArc,
		EDL:                result.EDL,
		DesiredLengthPct:   (end - start) / *media.Duration * 100,
		CoverageToleranceP: w.cfg.PlanCoverageTolerancePct,
		Warnings:           result.Warnings,
	}
	if err := w.db.CreatePlan(ctx, plan); err != nil {
		return nil, nil, fmt.Errorf("failed to persist plan: %w", err)
	}

	out, _ := db.MarshalInput(map[string]string{"plan_id": plan.ID.String()})
	return out, nil, nil
}

func (w *Worker) handlePlanStory(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	media, err := w.db.GetMedia(ctx, job.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}
	if media.Duration == nil {
		return nil, nil, fmt.Errorf("media %s has no known duration", media.ID)
	}

	transcript, err := w.db.GetTranscript(ctx, media.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	scenes, err := w.db.ListScenes(ctx, media.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load scenes: %w", err)
	}
	candidates, err := w.db.ListClipCandidates(ctx, media.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	frames, err := w.db.ListFrames(ctx, media.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load frames: %w", err)
	}

	// A plan needs something to reason over: speech, or described visuals.
	// An all-silent source with no frame/scene descriptions has neither, and
	// sending the model an empty context would only produce a fabricated EDL.
	hasSpeech := transcript != nil && len(transcript.Segments) > 0
	describedVisuals := 0
	for _, sc := range scenes {
		if sc.Description != "" {
			describedVisuals++
		}
	}
	for _, f := range frames {
		if f.Description != "" {
			describedVisuals++
		}
	}
	if !hasSpeech && describedVisuals == 0 {
		return nil, nil, fmt.Errorf("InvalidPlan: InsufficientSignal: media has no transcript and no described scenes or frames to plan from")
	}

	compressed := planner.Compress(transcript, scenes, frames, candidates, planner.CompressorConfig{
		FrameCap:   w.cfg.CompressFrameCap,
		SceneCap:   w.cfg.CompressSceneCap,
		SegmentCap: w.cfg.CompressSegmentCap,
	})

	desiredLengthPct, _ := job.Input["desired_length_pct"].(float64)
	if desiredLengthPct == 0 {
		desiredLengthPct = 50
	}
	// Callers express the target either as a fraction (0.5) or a percentage
	// (50); both mean half the source duration.
	if desiredLengthPct <= 1 {
		desiredLengthPct *= 100
	}
	strict, _ := job.Input["plan_coverage_strict"].(bool)
	storyPrompt, _ := job.Input["story_prompt"].(string)
	summary, _ := job.Input["summary"].(string)
	targetAudience, _ := job.Input["target_audience"].(string)
	tone, _ := job.Input["tone"].(string)
	keyMessage, _ := job.Input["key_message"].(string)
	stylePreferences, _ := job.Input["style_preferences"].(string)

	userPrompt := planner.BuildStoryPrompt(compressed, planner.PromptInputs{
		Summary:          summary,
		StoryPrompt:      storyPrompt,
		DesiredLengthPct: desiredLengthPct,
		TargetAudience:   targetAudience,
		Tone:             tone,
		KeyMessage:       keyMessage,
		StylePreferences: stylePreferences,
		SourceDuration:   *media.Duration,
	})

	planResult, err := w.openai.PlanStory(ctx, planner.SystemPrompt(), userPrompt, w.cfg.PlanTemperature, "")
	if err != nil {
		return nil, nil, err
	}

	validated, err := planner.Validate(planResult.EDL, planResult.StoryArc, planner.ValidatorConfig{
		SourceDuration:       *media.Duration,
		DesiredLengthPct:     desiredLengthPct,
		CoverageTolerancePct: w.cfg.PlanCoverageTolerancePct,
		Strict:               strict,
	})
	if err != nil {
		return nil, nil, err
	}

	plan := &models.Plan{
		ID:                 uuid.New(),
		MediaID:            media.ID,
		Status:             models.PlanStatusValidated,
		StoryArc:           validated.StoryArc,
		EDL:                validated.EDL,
		KeyMoments:         planResult.KeyMoments,
		Transitions:        planResult.Transitions,
		Recommendations:    planResult.Recommendations,
		DesiredLengthPct:   desiredLengthPct,
		CoverageToleranceP: w.cfg.PlanCoverageTolerancePct,
		Warnings:           validated.Warnings,
	}
	if err := w.db.CreatePlan(ctx, plan); err != nil {
		return nil, nil, fmt.Errorf("failed to persist plan: %w", err)
	}

	tokens := planResult.TokensUsed
	out, _ := db.MarshalInput(map[string]string{"plan_id": plan.ID.String()})
	return out, &tokens, nil
}

// ---------------------------------------------------------------------------
// Renderer
// ---------------------------------------------------------------------------

// errCancelledRender signals a render loop that stopped because its job
// was cancelled mid-way — the queue loop's post-dispatch cancellation
// check handles the terminal Job transition, so this is not surfaced as a
// handler failure.
var errCancelledRender = errors.New("render cancelled")

// failOrCancelRender reconciles a render-pipeline error: if ctx itself
// already expired (job-level soft deadline) the render is marked
// Cancelled rather than Failed, matching "a handler that observes
// cancellation must ... mark itself Cancelled rather than Failed". The
// bookkeeping write uses a fresh background context since ctx is the one
// that just expired. Anything else is a genuine encode failure.
func (w *Worker) failOrCancelRender(ctx context.Context, renderID uuid.UUID, err error) error {
	if ctx.Err() != nil {
		w.db.CancelRunningRender(context.Background(), renderID)
		return errCancelledRender
	}
	w.db.FailRender(context.Background(), renderID, errorDetail(err))
	return err
}

func (w *Worker) handleApplyPlan(ctx context.Context, job *models.Job) (models.JSONB, *int, error) {
	planID, ok := jsonbUUID(job.Input, "plan_id")
	if !ok {
		return nil, nil, fmt.Errorf("InvalidRequest: apply_plan job missing plan_id")
	}
	plan, err := w.db.GetPlan(ctx, planID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load plan: %w", err)
	}
	media, err := w.db.GetMedia(ctx, plan.MediaID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load media: %w", err)
	}

	var keepDuration float64
	for _, seg := range plan.EDL {
		if seg.Kind == models.SegmentKindKeep {
			keepDuration += seg.End - seg.Start
		}
	}
	deadlineCtx, cancel := withSoftDeadline(ctx, keepDuration*w.cfg.ApplyPlanTimeoutMultiple)
	defer cancel()
	ctx = deadlineCtx

	var aspectRatios []string
	if raw, ok := job.Input["aspect_ratios"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				aspectRatios = append(aspectRatios, s)
			}
		}
	}
	if len(aspectRatios) == 0 {
		aspectRatios = []string{"16:9"}
	}
	captions, _ := job.Input["captions"].(bool)
	normaliseAudio, _ := job.Input["normalise_audio"].(bool)

	// render_ids lets the API pre-create one Render row per aspect ratio at
	// enqueue time, so POST /plans/{plan_id}/render can hand the caller
	// pollable IDs before this job ever runs. Absent here, the handler
	// falls back to creating its own (e.g. a job enqueued directly).
	renderIDs := map[string]uuid.UUID{}
	if raw, ok := job.Input["render_ids"].(map[string]interface{}); ok {
		for ratio, v := range raw {
			if s, ok := v.(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					renderIDs[ratio] = id
				}
			}
		}
	}

	if err := w.db.UpdatePlanStatusIfStatus(ctx, plan.ID, models.PlanStatusValidated, models.PlanStatusRendering); err != nil && !errors.Is(err, db.ErrConflict) {
		return nil, nil, fmt.Errorf("failed to transition plan to rendering: %w", err)
	}

	// Each ratio renders independently so one ratio's failure never
	// cancels the others (spec: "If one ratio fails, others are not
	// cancelled"). A plain WaitGroup, not errgroup.WithContext — the
	// latter cancels every sibling goroutine's context on the first
	// error, which is exactly the coupling we need to avoid here.
	type renderOutcome struct {
		ratio string
		id    uuid.UUID
		err   error
	}
	outcomes := make([]renderOutcome, len(aspectRatios))
	var wg sync.WaitGroup
	for i, ratio := range aspectRatios {
		i, ratio := i, ratio
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := w.renderOneAspectRatio(ctx, job, plan, media, ratio, renderIDs[ratio], captions, normaliseAudio)
			outcomes[i] = renderOutcome{ratio: ratio, id: id, err: err}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		// The job-level soft deadline (or a worker shutdown) tripped
		// while ratios were in flight; each one already reconciled its
		// own Render row to Cancelled or Completed above. Propagate the
		// context error so the queue loop cancels the job rather than
		// completing it on a partial result.
		return nil, nil, ctx.Err()
	}

	var completedIDs []uuid.UUID
	var failures []string
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			completedIDs = append(completedIDs, o.id)
		case errors.Is(o.err, errCancelledRender):
			// cancellation is reconciled by the queue loop's post-dispatch
			// check, not surfaced as an aggregate failure.
		default:
			failures = append(failures, fmt.Sprintf("%s: %v", o.ratio, o.err))
		}
	}

	if len(failures) > 0 {
		sort.Strings(failures)
		return nil, nil, fmt.Errorf("RenderFailed: %d of %d ratios failed: %s", len(failures), len(aspectRatios), strings.Join(failures, "; "))
	}

	if err := w.db.UpdatePlanStatusIfStatus(ctx, plan.ID, models.PlanStatusRendering, models.PlanStatusRendered); err != nil && !errors.Is(err, db.ErrConflict) {
		log.Printf("[worker] failed to transition plan %s to rendered: %v", plan.ID, err)
	}

	idStrings := make([]string, len(completedIDs))
	for i, id := range completedIDs {
		idStrings[i] = id.String()
	}
	out, _ := db.MarshalInput(map[string]interface{}{"render_ids": idStrings})
	return out, nil, nil
}

// renderOneAspectRatio runs the full render pipeline for one aspect ratio:
// extract each Keep segment, fit-and-pad it to the target canvas,
// concatenate, optionally burn captions and normalise loudness, then
// remux with faststart and upload. If renderID is non-nil it reuses a
// Render row the API pre-created (so the POST response could hand the
// caller a pollable ID); otherwise it creates one, short-circuiting on a
// prior Completed render for the same (plan_id, aspect_ratio).
func (w *Worker) renderOneAspectRatio(ctx context.Context, job *models.Job, plan *models.Plan, media *models.Media, ratio string, renderID uuid.UUID, captions, normaliseAudio bool) (uuid.UUID, error) {
	var render *models.Render
	if renderID != uuid.Nil {
		existing, err := w.db.GetRender(ctx, renderID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to load render %s: %w", renderID, err)
		}
		if existing.Status == models.RenderStatusCompleted {
			return existing.ID, nil
		}
		if existing.Status == models.RenderStatusQueued {
			if ok, err := w.db.ClaimRender(ctx, renderID); err != nil {
				return uuid.Nil, fmt.Errorf("failed to claim render: %w", err)
			} else if ok {
				existing.Status = models.RenderStatusRunning
			}
		}
		// Running/Failed/Cancelled here means a prior attempt at this same
		// job was interrupted; re-render over it rather than fail.
		render = existing
	} else {
		if prior, err := w.db.GetLatestRenderByPlanAndRatio(ctx, plan.ID, ratio); err == nil && prior.Status == models.RenderStatusCompleted {
			return prior.ID, nil
		}
		render = &models.Render{ID: uuid.New(), MediaID: media.ID, PlanID: plan.ID, AspectRatio: ratio, Status: models.RenderStatusQueued}
		if err := w.db.CreateRender(ctx, render); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create render: %w", err)
		}
		if ok, err := w.db.ClaimRender(ctx, render.ID); err != nil {
			return uuid.Nil, fmt.Errorf("failed to claim render: %w", err)
		} else if !ok {
			return uuid.Nil, fmt.Errorf("render %s could not be claimed", render.ID)
		}
	}

	workDir := filepath.Join(job.ID.String(), strings.ReplaceAll(ratio, ":", "x"))
	defer w.ffmpeg.Cleanup(workDir)

	width, height := renderDimensions(ratio, w.cfg.RenderReferenceWidth)

	var keepSegments []models.Segment
	for _, seg := range plan.EDL {
		if seg.Kind == models.SegmentKindKeep {
			keepSegments = append(keepSegments, seg)
		}
	}
	if len(keepSegments) == 0 {
		w.db.FailRender(ctx, render.ID, &models.ErrorDetail{Code: "RenderFailed", Message: "plan has no keep segments"})
		return uuid.Nil, fmt.Errorf("plan %s has no keep segments", plan.ID)
	}

	segmentPaths := make([]string, len(keepSegments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.RenderSegmentParallelism)
	for i, seg := range keepSegments {
		i, seg := i, seg
		g.Go(func() error {
			return w.withSemaphore(gctx, w.renderSem, func() error {
				raw := w.ffmpeg.CreateTempFile(filepath.Join(workDir, fmt.Sprintf("raw_%03d.mkv", i)))
				if err := w.ffmpeg.ExtractSegment(gctx, media.SourceURI, seg.Start, seg.End, raw); err != nil {
					return err
				}
				fitted := w.ffmpeg.CreateTempFile(filepath.Join(workDir, fmt.Sprintf("fit_%03d.mkv", i)))
				if err := w.ffmpeg.FitAndPad(gctx, raw, fitted, width, height); err != nil {
					return err
				}
				segmentPaths[i] = fitted
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return uuid.Nil, w.failOrCancelRender(ctx, render.ID, err)
	}

	if cancelled, _ := w.isCancelled(ctx, job.ID); cancelled {
		w.db.CancelRunningRender(ctx, render.ID)
		return uuid.Nil, errCancelledRender
	}

	concatPath := w.ffmpeg.CreateTempFile(filepath.Join(workDir, "concat.mkv"))
	if err := w.ffmpeg.ConcatSegments(ctx, segmentPaths, concatPath); err != nil {
		return uuid.Nil, w.failOrCancelRender(ctx, render.ID, err)
	}
	current := concatPath

	if captions {
		transcript, tErr := w.db.GetTranscript(ctx, media.ID)
		if tErr == nil && len(transcript.Segments) > 0 {
			cues := buildCaptionCues(transcript.Segments, keepSegments)
			if len(cues) > 0 {
				assPath := w.ffmpeg.CreateTempFile(filepath.Join(workDir, "captions.ass"))
				if err := services.GenerateASSCaptions(cues, assPath, ratio); err != nil {
					log.Printf("[worker] caption generation failed for render %s: %v", render.ID, err)
				} else {
					burned := w.ffmpeg.CreateTempFile(filepath.Join(workDir, "burned.mkv"))
					if err := w.ffmpeg.BurnSubtitles(ctx, current, assPath, burned); err != nil {
						return uuid.Nil, w.failOrCancelRender(ctx, render.ID, err)
					}
					current = burned
				}
			}
		}
	}

	// loudnorm has no stream to act on when the source carries no audio
	// track; captions above still burn.
	if normaliseAudio && media.HasAudio != nil && *media.HasAudio {
		normalised := w.ffmpeg.CreateTempFile(filepath.Join(workDir, "normalised.mkv"))
		if err := w.ffmpeg.NormaliseLoudness(ctx, current, normalised, w.cfg.RenderLoudnessTargetLUFS); err != nil {
			return uuid.Nil, w.failOrCancelRender(ctx, render.ID, err)
		}
		current = normalised
	}

	finalPath := w.ffmpeg.CreateTempFile(filepath.Join(workDir, "final.mp4"))
	if err := w.ffmpeg.Finalise(ctx, current, finalPath); err != nil {
		return uuid.Nil, w.failOrCancelRender(ctx, render.ID, err)
	}

	duration, err := w.ffmpeg.GetDuration(ctx, finalPath)
	if err != nil {
		log.Printf("[worker] failed to measure final render duration for %s: %v", render.ID, err)
	}

	remotePath := w.storage.RenderOutputPath(plan.ID, ratio)
	if err := w.storage.UploadFile(ctx, remotePath, finalPath, "video/mp4"); err != nil {
		return uuid.Nil, w.failOrCancelRender(ctx, render.ID, fmt.Errorf("failed to upload render: %w", err))
	}

	if err := w.db.CompleteRender(ctx, render.ID, w.storage.GetPublicURL(remotePath), duration); err != nil {
		return uuid.Nil, fmt.Errorf("failed to mark render completed: %w", err)
	}
	return render.ID, nil
}

// buildCaptionCues remaps transcript segments from source time onto the
// rendered output timeline: each Keep segment's kept window shifts
// earlier by however much runtime was skipped ahead of it.
func buildCaptionCues(segments []models.TranscriptSegment, keepSegments []models.Segment) []services.CaptionCue {
	var cues []services.CaptionCue
	offset := 0.0
	for _, keep := range keepSegments {
		for _, seg := range segments {
			start := math.Max(seg.Start, keep.Start)
			end := math.Min(seg.End, keep.End)
			if end > start {
				cues = append(cues, services.CaptionCue{
					OutputStart: offset + (start - keep.Start),
					OutputEnd:   offset + (end - keep.Start),
					Text:        seg.Text,
				})
			}
		}
		offset += keep.End - keep.Start
	}
	return cues
}

// renderDimensions scales the target canvas from RenderReferenceWidth: the
// shorter side of the frame is pinned to the reference width regardless of
// orientation, and the longer side follows the aspect ratio — reproducing
// the same 1080-reference table a fixed aspect-ratio switch would give for
// 9:16, 16:9, 1:1 and 4:5, but generalised to any "W:H" ratio string.
func renderDimensions(aspectRatio string, referenceWidth int) (int, int) {
	parts := strings.Split(aspectRatio, ":")
	if len(parts) != 2 {
		return referenceWidth, referenceWidth
	}
	rw, err1 := strconv.ParseFloat(parts[0], 64)
	rh, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || rw <= 0 || rh <= 0 {
		return referenceWidth, referenceWidth
	}

	var width, height int
	if rw <= rh {
		width = referenceWidth
		height = int(float64(referenceWidth) * rh / rw)
	} else {
		height = referenceWidth
		width = int(float64(referenceWidth) * rw / rh)
	}
	if width%2 != 0 {
		width++
	}
	if height%2 != 0 {
		height++
	}
	return width, height
}
