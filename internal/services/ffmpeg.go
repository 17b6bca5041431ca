package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FFmpegService wraps the system ffmpeg/ffprobe binaries for every media
// operation the pipeline needs: probing, audio extraction, silence
// detection, scene-cut detection, frame sampling for captioning, and the
// renderer's segment extraction, fit-and-pad, concatenation, subtitle
// burn-in, loudness normalisation and faststart remux. Both ffprobe and
// ffmpeg are invoked with the source URI
// directly — ffmpeg's http/https protocol handler streams ranges rather
// than requiring a pre-download, so egress stays bounded by the bytes
// each output actually reads.
type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	return &FFmpegService{tempDir: tempDir}
}

func (s *FFmpegService) CreateTempFile(relPath string) string {
	full := filepath.Join(s.tempDir, relPath)
	os.MkdirAll(filepath.Dir(full), 0755)
	return full
}

// Cleanup removes an entire job's scratch prefix — called on job terminal
// (successful or not), matching the tmp/<job_id>/ scratch layout.
func (s *FFmpegService) Cleanup(dir string) {
	os.RemoveAll(filepath.Join(s.tempDir, dir))
}

// ---------------------------------------------------------------------------
// Media Probe
// ---------------------------------------------------------------------------

// ProbeResult is the technical metadata a probe fills in.
type ProbeResult struct {
	Duration   float64
	FPS        float64
	Width      int
	Height     int
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	Bitrate    int64
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe reads source technical metadata without downloading the full
// asset. sourceURI may be a remote http(s) URL; ffprobe streams just
// enough of the container to read its headers.
func (s *FFmpegService) Probe(ctx context.Context, sourceURI string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		sourceURI,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("SourceUnreachable: ffprobe failed: %w", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("UnrecognisedFormat: failed to parse ffprobe output: %w", err)
	}

	result := &ProbeResult{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		result.Duration = d
	}
	if b, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		result.Bitrate = b
	}

	for _, st := range parsed.Streams {
		switch st.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = st.CodecName
				result.Width = st.Width
				result.Height = st.Height
				result.FPS = parseFrameRate(st.AvgFrameRate)
				if result.FPS == 0 {
					result.FPS = parseFrameRate(st.RFrameRate)
				}
			}
		case "audio":
			result.HasAudio = true
			if result.AudioCodec == "" {
				result.AudioCodec = st.CodecName
			}
		}
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("UnrecognisedFormat: no video stream found")
	}

	return result, nil
}

func parseFrameRate(s string) float64 {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// ---------------------------------------------------------------------------
// Audio Extractor
// ---------------------------------------------------------------------------

// ExtractAudio produces a normalised mono 16kHz 16-bit PCM wav from the
// source at outputPath. Returns ErrNoAudioTrack (not a failure) when the
// source carries no audio stream.
func (s *FFmpegService) ExtractAudio(ctx context.Context, sourceURI, outputPath string) error {
	os.MkdirAll(filepath.Dir(outputPath), 0755)

	args := []string{
		"-i", sourceURI,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		"-y", outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "Output file does not contain any stream") ||
			strings.Contains(stderr.String(), "does not contain any stream") {
			return ErrNoAudioTrack
		}
		return fmt.Errorf("ffmpeg audio extraction failed: %w", err)
	}
	return nil
}

// ErrNoAudioTrack signals a silent source — Silence Detector and
// Transcriber short-circuit to empty results, not failures.
var ErrNoAudioTrack = fmt.Errorf("NoAudioTrack")

// ---------------------------------------------------------------------------
// Silence Detector
// ---------------------------------------------------------------------------

// SilenceInterval is a raw [start, end) window detected in the audio.
type SilenceInterval struct {
	Start float64
	End   float64
}

var silenceStartRe = regexp.MustCompile(`silence_start:\s*([0-9.]+)`)
var silenceEndRe = regexp.MustCompile(`silence_end:\s*([0-9.]+)`)

// DetectSilence runs ffmpeg's silencedetect filter over the extracted
// audio and parses the stderr log for interval boundaries. minSilenceS is
// the configured minimum silence length.
func (s *FFmpegService) DetectSilence(ctx context.Context, audioPath string, minSilenceS float64, noiseFloorDB float64) ([]SilenceInterval, error) {
	filter := fmt.Sprintf("silencedetect=noise=%.1fdB:d=%.3f", noiseFloorDB, minSilenceS)
	args := []string{
		"-i", audioPath,
		"-af", filter,
		"-f", "null",
		"-",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	_ = cmd.Run() // ffmpeg -f null exits nonzero on some builds even on success; we parse stderr regardless

	var intervals []SilenceInterval
	var pendingStart *float64
	scanner := bufio.NewScanner(strings.NewReader(stderr.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if m := silenceStartRe.FindStringSubmatch(line); m != nil {
			v, _ := strconv.ParseFloat(m[1], 64)
			pendingStart = &v
		}
		if m := silenceEndRe.FindStringSubmatch(line); m != nil && pendingStart != nil {
			v, _ := strconv.ParseFloat(m[1], 64)
			intervals = append(intervals, SilenceInterval{Start: *pendingStart, End: v})
			pendingStart = nil
		}
	}
	return intervals, nil
}

// ---------------------------------------------------------------------------
// Scene-Cut Detector
// ---------------------------------------------------------------------------

var showinfoPtsRe = regexp.MustCompile(`pts_time:([0-9.]+)`)

// DetectSceneCuts runs ffmpeg's scene-change filter over the source video
// and returns cut timestamps. An empty source or one with no detected
// cuts yields an empty slice — callers treat that as "one scene covering
// the whole timeline".
func (s *FFmpegService) DetectSceneCuts(ctx context.Context, sourceURI string, threshold float64) ([]float64, error) {
	filter := fmt.Sprintf("select='gt(scene,%.2f)',showinfo", threshold)
	args := []string{
		"-i", sourceURI,
		"-vf", filter,
		"-f", "null",
		"-",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	_ = cmd.Run()

	var cuts []float64
	scanner := bufio.NewScanner(strings.NewReader(stderr.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "pts_time:") {
			continue
		}
		if m := showinfoPtsRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				cuts = append(cuts, v)
			}
		}
	}
	return cuts, nil
}

// ---------------------------------------------------------------------------
// Still-frame sampling
// ---------------------------------------------------------------------------

// SampleFrame extracts a single still frame at timestamp t (seconds) into
// outputPath, scaled down for the vision model's input budget.
func (s *FFmpegService) SampleFrame(ctx context.Context, sourceURI string, t float64, outputPath string) error {
	os.MkdirAll(filepath.Dir(outputPath), 0755)
	args := []string{
		"-ss", fmt.Sprintf("%.3f", t),
		"-i", sourceURI,
		"-frames:v", "1",
		"-vf", "scale=768:-2",
		"-q:v", "3",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg frame sample failed at t=%.3f: %w", t, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Renderer
// ---------------------------------------------------------------------------

// ExtractSegment pulls the [start, end) sub-window from the source and
// re-encodes it to a common intermediate codec/pixel-format/sample-rate
// so segments from the same plan concatenate cleanly.
// -ss before -i seeks using the source's native timeline without
// pre-downloading; fast seek is accurate to the nearest keyframe — cuts
// are not frame-exact below keyframe granularity.
func (s *FFmpegService) ExtractSegment(ctx context.Context, sourceURI string, start, end float64, outputPath string) error {
	os.MkdirAll(filepath.Dir(outputPath), 0755)
	duration := end - start
	args := []string{
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", sourceURI,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-ar", "48000",
		"-avoid_negative_ts", "make_zero",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("DecodeError: segment extraction [%.3f,%.3f) failed: %w", start, end, err)
	}
	return nil
}

// FitAndPad scales a segment to fit inside (width, height) preserving
// aspect ratio and pads the remainder with black. Content is never
// cropped.
func (s *FFmpegService) FitAndPad(ctx context.Context, inputPath, outputPath string, width, height int) error {
	filter := fmt.Sprintf(
		"scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
		width, height, width, height,
	)
	args := []string{
		"-i", inputPath,
		"-vf", filter,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("EncodeError: fit-and-pad failed: %w", err)
	}
	return nil
}

// BurnSubtitles hard-burns an ASS subtitle file into the video — captions
// are burned, not soft.
func (s *FFmpegService) BurnSubtitles(ctx context.Context, inputPath, assPath, outputPath string) error {
	escaped := escapeFFmpegFilterPath(assPath)
	args := []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("ass='%s'", escaped),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("EncodeError: subtitle burn-in failed: %w", err)
	}
	return nil
}

func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// ConcatSegments stream-concatenates adapted segments for one aspect
// ratio in EDL order, no re-encode at the joins.
func (s *FFmpegService) ConcatSegments(ctx context.Context, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}

	listPath := outputPath + ".concat.txt"
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	for _, p := range segmentPaths {
		fmt.Fprintf(f, "file '%s'\n", p)
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("EncodeError: concatenation failed: %w", err)
	}
	return nil
}

// NormaliseLoudness applies single-pass loudness normalisation to an
// industry target (default -16 LUFS).
func (s *FFmpegService) NormaliseLoudness(ctx context.Context, inputPath, outputPath string, targetLUFS float64) error {
	filter := fmt.Sprintf("loudnorm=I=%.1f:TP=-1.5:LRA=11", targetLUFS)
	args := []string{
		"-i", inputPath,
		"-af", filter,
		"-c:v", "copy",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("EncodeError: loudness normalisation failed: %w", err)
	}
	return nil
}

// Finalise remuxes with a streaming-friendly moov-atom placement. This
// is the last write before an output is readable.
func (s *FFmpegService) Finalise(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-i", inputPath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("OutputWriteError: faststart remux failed: %w", err)
	}
	return nil
}

// GetDuration returns the duration of a local media file in seconds.
func (s *FFmpegService) GetDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return d, nil
}
