package planner

import (
	"sort"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
)

// CompressorConfig caps how much enrichment data is forwarded into a
// story-planning prompt, bounding prompt size regardless of source
// length.
type CompressorConfig struct {
	FrameCap   int
	SceneCap   int
	SegmentCap int
}

// CompressedContext is the capped, prompt-ready view of a media's
// enrichment data. Dropped counts are carried through so the prompt can
// tell the model how much context was left out.
type CompressedContext struct {
	Segments       []models.TranscriptSegment
	Scenes         []models.Scene
	Frames         []models.Frame
	Candidates     []models.ClipCandidate
	SegmentsDropped int
	ScenesDropped   int
	FramesDropped   int
}

// Compress reduces full enrichment data down to the configured ceilings.
// Nothing is simply truncated, so the planner still sees the end of the
// video even on a long source: every source keeps its first and last
// entry; transcript segments fill the rest by word density, scenes are
// kept evenly spaced, and frames keep the longest description within each
// evenly spaced bucket. Candidates are always forwarded in full since SelectClips
// already bounds their count via ClipN.
func Compress(transcript *models.Transcript, scenes []models.Scene, frames []models.Frame, candidates []models.ClipCandidate, cfg CompressorConfig) CompressedContext {
	out := CompressedContext{Candidates: candidates}

	if transcript != nil {
		out.Segments, out.SegmentsDropped = evenSampleSegments(transcript.Segments, cfg.SegmentCap)
	}
	out.Scenes, out.ScenesDropped = evenSampleScenes(scenes, cfg.SceneCap)
	out.Frames, out.FramesDropped = evenSampleFrames(frames, cfg.FrameCap)

	return out
}

// wordDensity is words per second of speech, the ranking signal used to
// pick which transcript segments survive compression.
func wordDensity(seg models.TranscriptSegment) float64 {
	d := seg.End - seg.Start
	if d <= 0 {
		return 0
	}
	return float64(len(strings.Fields(seg.Text))) / d
}

// evenSampleSegments prefers the highest word-density segments and
// always keeps the first
// and last segment so the planner retains the opening and closing framing
// even when most of the middle is elided.
func evenSampleSegments(segs []models.TranscriptSegment, cap int) ([]models.TranscriptSegment, int) {
	if cap <= 0 || len(segs) <= cap {
		return segs, 0
	}
	if cap == 1 {
		return []models.TranscriptSegment{segs[0]}, len(segs) - 1
	}

	keep := make(map[int]bool, cap)
	keep[0] = true
	keep[len(segs)-1] = true

	ranked := make([]int, len(segs))
	for i := range segs {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return wordDensity(segs[ranked[i]]) > wordDensity(segs[ranked[j]])
	})
	for _, idx := range ranked {
		if len(keep) >= cap {
			break
		}
		keep[idx] = true
	}

	sampled := make([]models.TranscriptSegment, 0, len(keep))
	for i, seg := range segs {
		if keep[i] {
			sampled = append(sampled, seg)
		}
	}
	return sampled, len(segs) - len(sampled)
}

// evenSampleScenes keeps evenly spaced scenes plus always the first and
// last.
func evenSampleScenes(scenes []models.Scene, cap int) ([]models.Scene, int) {
	if cap <= 0 || len(scenes) <= cap {
		return scenes, 0
	}
	if cap == 1 {
		return []models.Scene{scenes[0]}, len(scenes) - 1
	}

	keep := make(map[int]bool, cap)
	keep[0] = true
	keep[len(scenes)-1] = true
	stride := float64(len(scenes)-1) / float64(cap-1)
	for i := 0; i < cap; i++ {
		idx := int(float64(i) * stride)
		if idx >= len(scenes) {
			idx = len(scenes) - 1
		}
		keep[idx] = true
	}

	sampled := make([]models.Scene, 0, len(keep))
	for i, sc := range scenes {
		if keep[i] {
			sampled = append(sampled, sc)
		}
	}
	return sampled, len(scenes) - len(sampled)
}

// evenSampleFrames keeps a uniformly spaced subsample across the timeline,
// always retaining the first and last frame, and within each stride
// bucket prefers the frame with the longest description — a proxy for
// the most information-dense frame in that span.
func evenSampleFrames(frames []models.Frame, cap int) ([]models.Frame, int) {
	if cap <= 0 || len(frames) <= cap {
		return frames, 0
	}
	if cap == 1 {
		return []models.Frame{frames[0]}, len(frames) - 1
	}

	sampled := make([]models.Frame, 0, cap)
	sampled = append(sampled, frames[0])

	innerCap := cap - 2
	stride := float64(len(frames)) / float64(innerCap+1)
	for i := 1; i <= innerCap; i++ {
		lo := int(float64(i) * stride)
		hi := int(float64(i+1) * stride)
		if hi > len(frames)-1 {
			hi = len(frames) - 1
		}
		if lo >= hi {
			lo = hi - 1
		}
		if lo < 0 {
			lo = 0
		}
		best := lo
		for j := lo; j < hi; j++ {
			if len(frames[j].Description) > len(frames[best].Description) {
				best = j
			}
		}
		sampled = append(sampled, frames[best])
	}

	sampled = append(sampled, frames[len(frames)-1])
	return sampled, len(frames) - len(sampled)
}
