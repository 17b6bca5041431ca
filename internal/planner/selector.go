package planner

import (
	"math"
	"sort"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
)

// SelectorConfig bounds the heuristic clip selector's window lengths and
// clip count,
// sourced 1:1 from the clip_min_s / clip_max_s / clip_n config knobs.
type SelectorConfig struct {
	MinDurationS float64
	MaxDurationS float64
	ClipCount    int
}

// hookKeywords are generic lexical markers of a quotable or attention-
// grabbing moment. This is a coarse proxy, not an NLP model — it only
// needs to nudge the ranking, not classify interestingness precisely.
var hookKeywords = []string{
	"never", "secret", "shocking", "amazing", "incredible", "huge",
	"biggest", "worst", "best", "mistake", "truth", "nobody", "everyone",
	"finally", "surprising", "warning", "important", "critical", "changed",
}

// SelectClips scores candidate windows over the source timeline and
// greedily picks up to ClipCount non-overlapping windows, highest score
// first. A source with no transcript yields no candidates — there
// is nothing to score against, and an empty result is the contract, not
// a failure.
func SelectClips(transcript *models.Transcript, silence *models.SilenceMap, scenes []models.Scene, duration float64, cfg SelectorConfig) []models.ClipCandidate {
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil
	}
	boundaries := collectBoundaries(transcript, scenes, duration)

	var candidates []models.ClipCandidate
	for i := 0; i < len(boundaries); i++ {
		for j := i + 1; j < len(boundaries); j++ {
			start, end := boundaries[i], boundaries[j]
			length := end - start
			if length < cfg.MinDurationS {
				continue
			}
			if length > cfg.MaxDurationS {
				break
			}
			score, hook := scoreWindow(start, end, transcript, silence, scenes, cfg)
			c := models.ClipCandidate{
				Start: start,
				End:   end,
				Score: score,
				Features: models.JSONB{
					"speech_density": speechDensity(start, end, transcript),
					"silence_ratio":  silenceRatio(start, end, silence),
					"scene_aligned":  sceneAligned(start, end, scenes),
				},
			}
			if hook != "" {
				c.HookText = &hook
			}
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	var selected []models.ClipCandidate
	for _, c := range candidates {
		if len(selected) >= cfg.ClipCount {
			break
		}
		if overlapsAny(c, selected) {
			continue
		}
		selected = append(selected, c)
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Start < selected[j].Start })
	return selected
}

func collectBoundaries(transcript *models.Transcript, scenes []models.Scene, duration float64) []float64 {
	set := map[float64]struct{}{0: {}, duration: {}}
	if transcript != nil {
		for _, seg := range transcript.Segments {
			set[seg.Start] = struct{}{}
			set[seg.End] = struct{}{}
		}
	}
	for _, sc := range scenes {
		set[sc.Start] = struct{}{}
		set[sc.End] = struct{}{}
	}
	boundaries := make([]float64, 0, len(set))
	for b := range set {
		boundaries = append(boundaries, b)
	}
	sort.Float64s(boundaries)
	return boundaries
}

func scoreWindow(start, end float64, transcript *models.Transcript, silence *models.SilenceMap, scenes []models.Scene, cfg SelectorConfig) (float64, string) {
	density := speechDensity(start, end, transcript)
	silRatio := silenceRatio(start, end, silence)
	keyword, hookText := keywordScore(start, end, transcript)
	alignment := 0.0
	if sceneAligned(start, end, scenes) {
		alignment = 1.0
	}
	shape := durationShapeScore(end-start, cfg.MinDurationS, cfg.MaxDurationS)

	// Weights sum to 1.0 over components each in [0,1]; scaled to the
	// ClipCandidate.Score contract of [0, 100].
	score := 0.35*density + 0.15*(1-silRatio) + 0.25*keyword + 0.1*alignment + 0.15*shape
	return score * 100, hookText
}

func speechDensity(start, end float64, transcript *models.Transcript) float64 {
	if transcript == nil || end <= start {
		return 0
	}
	var spoken float64
	for _, seg := range transcript.Segments {
		spoken += overlapLength(start, end, seg.Start, seg.End)
	}
	return clamp01(spoken / (end - start))
}

func silenceRatio(start, end float64, silence *models.SilenceMap) float64 {
	if silence == nil || end <= start {
		return 0
	}
	var silent float64
	for _, iv := range silence.Intervals {
		silent += overlapLength(start, end, iv.Start, iv.End)
	}
	return clamp01(silent / (end - start))
}

func sceneAligned(start, end float64, scenes []models.Scene) bool {
	const tolerance = 0.25
	var startOK, endOK bool
	for _, sc := range scenes {
		if math.Abs(sc.Start-start) <= tolerance {
			startOK = true
		}
		if math.Abs(sc.End-end) <= tolerance {
			endOK = true
		}
	}
	return startOK && endOK
}

func keywordScore(start, end float64, transcript *models.Transcript) (float64, string) {
	if transcript == nil {
		return 0, ""
	}
	var matches int
	var words int
	var firstHook string
	for _, seg := range transcript.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		lower := strings.ToLower(seg.Text)
		segWords := strings.Fields(lower)
		words += len(segWords)
		for _, kw := range hookKeywords {
			if strings.Contains(lower, kw) {
				matches++
				if firstHook == "" {
					firstHook = strings.TrimSpace(seg.Text)
				}
			}
		}
	}
	if words == 0 {
		return 0, ""
	}
	return clamp01(float64(matches) / math.Max(1, float64(words)/8)), firstHook
}

// durationShapeScore peaks at the midpoint of [min, max] and falls off
// toward either edge, so the selector prefers clips that aren't scraping
// the configured bounds.
func durationShapeScore(length, min, max float64) float64 {
	if max <= min {
		return 1
	}
	mid := (min + max) / 2
	halfRange := (max - min) / 2
	dist := math.Abs(length-mid) / halfRange
	return clamp01(1 - dist)
}

func overlapLength(aStart, aEnd, bStart, bEnd float64) float64 {
	lo := math.Max(aStart, bStart)
	hi := math.Min(aEnd, bEnd)
	if hi <= lo {
		return 0
	}
	return hi - lo
}

func overlapsAny(c models.ClipCandidate, existing []models.ClipCandidate) bool {
	for _, e := range existing {
		if overlapLength(c.Start, c.End, e.Start, e.End) > 0 {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
