// Package config loads the single explicit configuration struct the rest
// of the pipeline is built around — constructed once at startup, passed
// through handlers as a read-only value (never a package-level global).
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Registry (Postgres)
	DatabaseURL string

	// Durable queue (Redis)
	RedisURL string

	// Blob store
	BlobStoreURL        string
	BlobStoreServiceKey string
	BlobStoreBucket     string

	// External models
	OpenAIKey    string
	VisionAPIKey string // frame-description vision model
	VisionAPIURL string

	// Worker pool sizing
	WorkerPoolSize      int
	ModelConcurrencyLimit int
	RenderSegmentParallelism int

	// Retry / backoff
	MaxAttemptsDefault   int
	MaxAttemptsPlanStory int
	RetryBackoffBaseS    int
	RetryJitterS         int

	// Per-kind soft deadlines, seconds unless noted as multipliers
	ProbeTimeoutS              int
	TranscribeTimeoutMultiple  float64 // × source duration
	DetectScenesTimeoutMultiple float64 // × source duration
	ApplyPlanTimeoutMultiple   float64 // × plan Keep duration

	// Enrichment
	MinSilenceS     float64
	FrameSampleS    float64
	ClipMinS        float64
	ClipMaxS        float64
	ClipN           int

	// Prompt-context compression ceilings
	CompressFrameCap   int
	CompressSceneCap   int
	CompressSegmentCap int

	// Planner
	PlanTemperature           float32
	PlanCoverageTolerancePct  float64

	// Renderer
	RenderReferenceWidth     int
	RenderLoudnessTargetLUFS float64

	// Scratch space for ffmpeg/ffprobe intermediates, scoped per job (tmp/<job_id>/)
	TempDir string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		BlobStoreURL:          getEnv("BLOB_STORE_URL", ""),
		BlobStoreServiceKey:   getEnv("BLOB_STORE_SERVICE_KEY", ""),
		BlobStoreBucket:       getEnv("BLOB_STORE_BUCKET", "reelforge-media"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		VisionAPIKey:          getEnv("VISION_API_KEY", ""),
		VisionAPIURL:          getEnv("VISION_API_URL", "https://generativelanguage.googleapis.com/v1beta"),

		WorkerPoolSize:           getEnvInt("WORKER_POOL_SIZE", 5),
		ModelConcurrencyLimit:    getEnvInt("MODEL_CONCURRENCY_LIMIT", 2),
		RenderSegmentParallelism: getEnvInt("RENDER_SEGMENT_PARALLELISM", 4),

		MaxAttemptsDefault:   getEnvInt("MAX_ATTEMPTS_DEFAULT", 3),
		MaxAttemptsPlanStory: getEnvInt("MAX_ATTEMPTS_PLAN_STORY", 1),
		RetryBackoffBaseS:    getEnvInt("RETRY_BACKOFF_BASE_S", 60),
		RetryJitterS:         getEnvInt("RETRY_JITTER_S", 15),

		ProbeTimeoutS:               getEnvInt("PROBE_TIMEOUT_S", 30),
		TranscribeTimeoutMultiple:   getEnvFloat("TRANSCRIBE_TIMEOUT_MULTIPLE", 3.0),
		DetectScenesTimeoutMultiple: getEnvFloat("DETECT_SCENES_TIMEOUT_MULTIPLE", 3.0),
		ApplyPlanTimeoutMultiple:    getEnvFloat("APPLY_PLAN_TIMEOUT_MULTIPLE", 5.0),

		MinSilenceS:  getEnvFloat("MIN_SILENCE_S", 0.6),
		FrameSampleS: getEnvFloat("FRAME_SAMPLE_S", 1.0),
		ClipMinS:     getEnvFloat("CLIP_MIN_S", 15.0),
		ClipMaxS:     getEnvFloat("CLIP_MAX_S", 60.0),
		ClipN:        getEnvInt("CLIP_N", 5),

		CompressFrameCap:   getEnvInt("COMPRESS_FRAME_CAP", 50),
		CompressSceneCap:   getEnvInt("COMPRESS_SCENE_CAP", 20),
		CompressSegmentCap: getEnvInt("COMPRESS_SEGMENT_CAP", 100),

		PlanTemperature:          float32(getEnvFloat("PLAN_TEMPERATURE", 0.3)),
		PlanCoverageTolerancePct: getEnvFloat("PLAN_COVERAGE_TOLERANCE_PCT", 10.0),

		RenderReferenceWidth:     getEnvInt("RENDER_REFERENCE_WIDTH", 1080),
		RenderLoudnessTargetLUFS: getEnvFloat("RENDER_LOUDNESS_TARGET_LUFS", -16.0),

		TempDir: getEnv("TEMP_DIR", "/tmp/reelforge"),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.BlobStoreURL == "" || cfg.BlobStoreServiceKey == "" {
		return nil, fmt.Errorf("BLOB_STORE_URL and BLOB_STORE_SERVICE_KEY are required")
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
