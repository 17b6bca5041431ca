package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/bobarin/reelforge/internal/models"
)

// ValidatorConfig carries the per-media constraints the EDL validator
// checks a planner-produced edit decision list against.
type ValidatorConfig struct {
	SourceDuration       float64
	DesiredLengthPct     float64
	CoverageTolerancePct float64
	Strict               bool // reject on a coverage miss instead of warning
}

// roundingEpsilon is the granularity every timestamp is snapped to —
// small enough to be imperceptible in the rendered output, large enough
// to absorb floating point jitter between equal re-runs.
const roundingEpsilon = 0.001

// minSegmentDuration is the bounds-check drop threshold:
// a segment reduced to less than this after clamping is dropped rather
// than kept as an imperceptible sliver.
const minSegmentDuration = 0.1

// ValidationResult is the sanitized Plan body: a normalized EDL plus any
// non-fatal warnings surfaced to the caller.
type ValidationResult struct {
	EDL      []models.Segment
	StoryArc models.StoryArc
	Warnings []string
}

// Validate runs the full EDL Validator pipeline: schema and bounds
// checks, ordering and merge, rounding, full-timeline coverage,
// story-arc consistency, and the non-empty rule. It is idempotent —
// Validate(Validate(edl)) returns the same EDL and story arc, since every
// step is a deterministic normalization of its input rather than an
// incremental adjustment. Warnings about repairs made on the first pass
// (such as overlap merges) are not repeated on the second.
func Validate(edl []models.Segment, storyArc models.StoryArc, cfg ValidatorConfig) (*ValidationResult, error) {
	if cfg.SourceDuration <= 0 {
		return nil, fmt.Errorf("InvalidPlan: source duration must be positive")
	}
	if len(edl) == 0 {
		return nil, fmt.Errorf("InvalidPlan: edl is empty")
	}

	normalized, overlapWarnings, err := normalizeSegments(edl, cfg.SourceDuration)
	if err != nil {
		return nil, err
	}

	filled := fillGaps(normalized, cfg.SourceDuration)
	merged := mergeAdjacent(filled)

	warnings := append([]string{}, overlapWarnings...)

	hasKeep := false
	var keptDuration float64
	for _, seg := range merged {
		if seg.Kind == models.SegmentKindKeep {
			hasKeep = true
			keptDuration += seg.End - seg.Start
		}
	}
	if !hasKeep {
		return nil, fmt.Errorf("InvalidPlan: edl has no keep segments")
	}

	desiredDuration := cfg.SourceDuration * cfg.DesiredLengthPct / 100
	toleranceDuration := cfg.SourceDuration * cfg.CoverageTolerancePct / 100
	if math.Abs(keptDuration-desiredDuration) > toleranceDuration {
		msg := fmt.Sprintf(
			"kept duration %.2fs deviates from desired %.2fs by more than the %.1f%% tolerance",
			keptDuration, desiredDuration, cfg.CoverageTolerancePct,
		)
		if cfg.Strict {
			return nil, fmt.Errorf("InvalidPlan: %s", msg)
		}
		warnings = append(warnings, msg)
	}

	normalizedArc, arcWarnings := normalizeStoryArc(storyArc, cfg.SourceDuration, merged)
	warnings = append(warnings, arcWarnings...)

	return &ValidationResult{
		EDL:      merged,
		StoryArc: normalizedArc,
		Warnings: warnings,
	}, nil
}

// normalizeSegments validates each segment's schema, clamps it into
// [0, duration], rounds its boundaries, sorts by start time, and resolves
// overlaps: overlapping Keep segments are unioned with
// their reasons concatenated and a warning recorded; an overlap between
// any other pairing is resolved by clipping the later segment to begin
// where the earlier one ends, so the timeline never double-counts a
// stretch of source.
func normalizeSegments(edl []models.Segment, duration float64) ([]models.Segment, []string, error) {
	out := make([]models.Segment, 0, len(edl))
	for _, seg := range edl {
		switch seg.Kind {
		case models.SegmentKindKeep, models.SegmentKindSkip, models.SegmentKindTransition:
		default:
			return nil, nil, fmt.Errorf("InvalidPlan: unrecognised segment kind %q", seg.Kind)
		}

		start := clamp(round(seg.Start), 0, duration)
		end := clamp(round(seg.End), 0, duration)
		if end <= start {
			continue // zero/negative-length segment after clamping — drop silently, it contributes nothing
		}
		seg.Start, seg.End = start, end
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	var warnings []string
	resolved := out[:0]
	for _, seg := range out {
		if len(resolved) > 0 {
			last := &resolved[len(resolved)-1]
			if seg.Start < last.End {
				if seg.Kind == models.SegmentKindKeep && last.Kind == models.SegmentKindKeep {
					if seg.End > last.End {
						last.End = seg.End
					}
					last.Reason = concatReasons(last.Reason, seg.Reason)
					warnings = append(warnings, fmt.Sprintf(
						"overlapping keep segments merged into [%.3f, %.3f]", last.Start, last.End,
					))
					continue
				}
				seg.Start = last.End
			}
		}
		if seg.End-seg.Start >= minSegmentDuration {
			resolved = append(resolved, seg)
		}
	}
	return resolved, warnings, nil
}

func concatReasons(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}

// fillGaps inserts an explicit Skip segment over any uncovered stretch
// of [0, duration) — the EDL must cover the full timeline with no gaps.
func fillGaps(segments []models.Segment, duration float64) []models.Segment {
	out := make([]models.Segment, 0, len(segments)+2)
	cursor := 0.0
	for _, seg := range segments {
		if seg.Start > cursor+roundingEpsilon {
			out = append(out, models.Segment{Start: cursor, End: seg.Start, Kind: models.SegmentKindSkip, Reason: "gap filled by validator"})
		}
		out = append(out, seg)
		cursor = seg.End
	}
	if duration > cursor+roundingEpsilon {
		out = append(out, models.Segment{Start: cursor, End: duration, Kind: models.SegmentKindSkip, Reason: "gap filled by validator"})
	}
	return out
}

// mergeAdjacent collapses consecutive segments of the same kind whose
// boundaries abut — a fixed point of this function is stable under
// re-application, which is what makes Validate idempotent.
func mergeAdjacent(segments []models.Segment) []models.Segment {
	if len(segments) == 0 {
		return segments
	}
	merged := []models.Segment{segments[0]}
	for _, seg := range segments[1:] {
		last := &merged[len(merged)-1]
		if seg.Kind == last.Kind && seg.Start-last.End <= roundingEpsilon {
			last.End = seg.End
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// normalizeStoryArc clamps and rounds the three narrative anchors, then
// checks arc consistency: hook < climax < resolution, and each anchor must
// land inside a Keep segment of the sanitized EDL. Violations warn, they
// never reject.
func normalizeStoryArc(arc models.StoryArc, duration float64, edl []models.Segment) (models.StoryArc, []string) {
	var warnings []string
	arc.HookT = clamp(round(arc.HookT), 0, duration)
	arc.ClimaxT = clamp(round(arc.ClimaxT), 0, duration)
	arc.ResolutionT = clamp(round(arc.ResolutionT), 0, duration)

	if !(arc.HookT < arc.ClimaxT && arc.ClimaxT < arc.ResolutionT) {
		warnings = append(warnings, "story arc timestamps are not strictly ordered (hook < climax < resolution)")
	}
	for _, anchor := range []struct {
		name string
		t    float64
	}{
		{"hook", arc.HookT},
		{"climax", arc.ClimaxT},
		{"resolution", arc.ResolutionT},
	} {
		if !insideKeep(anchor.t, edl) {
			warnings = append(warnings, fmt.Sprintf("story arc %s at %.3fs falls outside every keep segment", anchor.name, anchor.t))
		}
	}
	return arc, warnings
}

func insideKeep(t float64, edl []models.Segment) bool {
	for _, seg := range edl {
		if seg.Kind == models.SegmentKindKeep && t >= seg.Start && t <= seg.End {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) float64 {
	return math.Round(v/roundingEpsilon) * roundingEpsilon
}
