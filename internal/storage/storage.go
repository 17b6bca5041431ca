// Package storage is the blob store client: originals, derived
// artefacts and rendered outputs live behind a Supabase-Storage-shaped
// HTTP API, addressed by the object layout documented below. Files are
// immutable once written; callers overwrite by path (x-upsert) rather
// than mutating.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Rendered outputs can run to hundreds of MB; each attempt gets its
	// own generous window independent of how long earlier attempts took.
	uploadTimeout   = 180 * time.Second
	downloadTimeout = 120 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

type Storage struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

func New(baseURL, serviceKey, bucket string) *Storage {
	return &Storage{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Storage) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, path)
}

// withRetry runs one blob operation with exponential backoff and jitter.
// attempt reports whether its failure is worth retrying; a non-retryable
// failure (4xx other than 408/429, malformed request) surfaces
// immediately.
func (s *Storage) withRetry(ctx context.Context, op, path string, attempt func(ctx context.Context) (retryable bool, err error)) error {
	var lastErr error
	for try := 0; try <= maxRetries; try++ {
		if try > 0 {
			delay := retryDelay(try)
			log.Printf("[storage] %s retry %d/%d for %s (waiting %v)", op, try, maxRetries, path, delay)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		retryable, err := attempt(ctx)
		if err == nil {
			if try > 0 {
				log.Printf("[storage] %s succeeded on attempt %d for %s", op, try+1, path)
			}
			return nil
		}
		lastErr = err
		if !retryable {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// Upload writes an in-memory payload to the store. Suitable for small
// derived artefacts (caption files, frame stills); large outputs go
// through UploadFile, which streams.
func (s *Storage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	return s.withRetry(ctx, "upload", path, func(ctx context.Context) (bool, error) {
		return s.putObject(ctx, path, bytes.NewReader(data), int64(len(data)), contentType)
	})
}

// UploadFile streams a local file to the store without holding it in
// memory — rendered outputs are far too large for that. The file
// handle is re-wound for each retry.
func (s *Storage) UploadFile(ctx context.Context, storagePath, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	return s.withRetry(ctx, "upload", storagePath, func(ctx context.Context) (bool, error) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return false, fmt.Errorf("failed to rewind %s: %w", localPath, err)
		}
		return s.putObject(ctx, storagePath, f, info.Size(), contentType)
	})
}

func (s *Storage) putObject(ctx context.Context, path string, body io.Reader, size int64, contentType string) (bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPut, s.objectURL(path), body)
	if err != nil {
		return false, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return retryableErr(err), fmt.Errorf("upload request failed: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return false, nil
	}
	return retryableStatus(resp.StatusCode), fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
}

// Download fetches an object into memory. Used for small derived
// artefacts only — the Renderer hands ffmpeg remote URLs directly rather
// than pre-downloading sources.
func (s *Storage) Download(ctx context.Context, path string) ([]byte, error) {
	var out []byte
	err := s.withRetry(ctx, "download", path, func(ctx context.Context) (bool, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, s.objectURL(path), nil)
		if err != nil {
			return false, fmt.Errorf("failed to build download request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return retryableErr(err), fmt.Errorf("download request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return retryableStatus(resp.StatusCode), fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, fmt.Errorf("failed to read download body: %w", err)
		}
		out = data
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPublicURL returns the unauthenticated read URL for a completed
// output. Only meaningful once the render's finalisation step has
// written the object.
func (s *Storage) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, path)
}

// GetSignedURL creates a time-limited read URL for an object that is not
// publicly readable.
func (s *Storage) GetSignedURL(ctx context.Context, path string, expiresInSeconds int) (string, error) {
	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, path)

	payload := fmt.Sprintf(`{"expiresIn": %d}`, expiresInSeconds)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, strings.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("sign failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse sign response: %w", err)
	}
	return s.baseURL + result.SignedURL, nil
}

// Object layout:
//
//	originals/<media_id>/<filename>
//	derived/<media_id>/audio.wav
//	derived/<media_id>/frames/<t>.jpg
//	renders/<plan_id>/<aspect>.mp4
//	tmp/<job_id>/segments/<index>.mkv

// OriginalPath is the object path for a registered media's original
// upload.
func (s *Storage) OriginalPath(mediaID uuid.UUID, filename string) string {
	return filepath.Join("originals", mediaID.String(), filename)
}

// ExtractedAudioPath is the path of the normalised mono 16kHz PCM
// artefact the audio extractor writes, keyed by media_id so
// re-extraction is idempotent.
func (s *Storage) ExtractedAudioPath(mediaID uuid.UUID) string {
	return filepath.Join("derived", mediaID.String(), "audio.wav")
}

// FramePath is the path of one sampled-frame still image.
func (s *Storage) FramePath(mediaID uuid.UUID, t float64) string {
	return filepath.Join("derived", mediaID.String(), "frames", fmt.Sprintf("%.3f.jpg", t))
}

// RenderOutputPath is the path of one aspect ratio's rendered output.
func (s *Storage) RenderOutputPath(planID uuid.UUID, aspectRatio string) string {
	safeAspect := strings.ReplaceAll(aspectRatio, ":", "x")
	return filepath.Join("renders", planID.String(), safeAspect+".mp4")
}

// TempSegmentPath is the path of one job's scratch segment file, scoped
// to a per-job temp prefix that is deleted on job terminal.
func (s *Storage) TempSegmentPath(jobID uuid.UUID, index int) string {
	return filepath.Join("tmp", jobID.String(), "segments", fmt.Sprintf("%03d.mkv", index))
}

func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func retryableErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"timeout", "deadline exceeded", "connection reset",
		"connection refused", "EOF", "broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
