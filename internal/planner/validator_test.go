package planner

import (
	"testing"

	"github.com/bobarin/reelforge/internal/models"
)

func TestValidateCoverageRoundTrip(t *testing.T) {
	// duration=100s, three Keep segments totalling 30s, desired 30%
	// with 10% tolerance — no coverage warning expected.
	edl := []models.Segment{
		{Start: 2, End: 12, Kind: models.SegmentKindKeep},
		{Start: 20, End: 30, Kind: models.SegmentKindKeep},
		{Start: 40, End: 50, Kind: models.SegmentKindKeep},
	}
	result, err := Validate(edl, models.StoryArc{HookT: 2, ClimaxT: 25, ResolutionT: 45}, ValidatorConfig{
		SourceDuration:       100,
		DesiredLengthPct:     30,
		CoverageTolerancePct: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var kept float64
	for _, seg := range result.EDL {
		if seg.Kind == models.SegmentKindKeep {
			kept += seg.End - seg.Start
		}
	}
	if kept != 30 {
		t.Errorf("expected total keep duration 30, got %v", kept)
	}
	for _, w := range result.Warnings {
		t.Errorf("unexpected warning: %s", w)
	}
}

func TestValidateMergesOverlappingKeepSegments(t *testing.T) {
	// Overlapping Keep segments merge into a union, one warning.
	edl := []models.Segment{
		{Start: 0, End: 10, Kind: models.SegmentKindKeep, Reason: "a"},
		{Start: 5, End: 12, Kind: models.SegmentKindKeep, Reason: "b"},
		{Start: 20, End: 25, Kind: models.SegmentKindKeep},
	}
	result, err := Validate(edl, models.StoryArc{HookT: 0, ClimaxT: 10, ResolutionT: 22}, ValidatorConfig{
		SourceDuration:       25,
		DesiredLengthPct:     68,
		CoverageTolerancePct: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var keepSegs []models.Segment
	for _, seg := range result.EDL {
		if seg.Kind == models.SegmentKindKeep {
			keepSegs = append(keepSegs, seg)
		}
	}
	if len(keepSegs) != 2 {
		t.Fatalf("expected 2 keep segments after merge, got %d: %+v", len(keepSegs), keepSegs)
	}
	if keepSegs[0].Start != 0 || keepSegs[0].End != 12 {
		t.Errorf("expected merged segment [0,12], got [%v,%v]", keepSegs[0].Start, keepSegs[0].End)
	}
	if keepSegs[0].Reason != "a; b" {
		t.Errorf("expected concatenated reason \"a; b\", got %q", keepSegs[0].Reason)
	}
	if keepSegs[1].Start != 20 || keepSegs[1].End != 25 {
		t.Errorf("expected untouched segment [20,25], got [%v,%v]", keepSegs[1].Start, keepSegs[1].End)
	}

	found := false
	for _, w := range result.Warnings {
		if w == "overlapping keep segments merged into [0.000, 12.000]" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a merged-segment warning, got %v", result.Warnings)
	}
}

func TestValidateIsAFixedPoint(t *testing.T) {
	// validate(validate(P)) == validate(P) for the resulting EDL.
	edl := []models.Segment{
		{Start: 0, End: 10, Kind: models.SegmentKindKeep},
		{Start: 5, End: 12, Kind: models.SegmentKindKeep},
		{Start: 20, End: 25, Kind: models.SegmentKindKeep},
	}
	cfg := ValidatorConfig{SourceDuration: 30, DesiredLengthPct: 50, CoverageTolerancePct: 50}
	arc := models.StoryArc{HookT: 0, ClimaxT: 10, ResolutionT: 22}

	first, err := Validate(edl, arc, cfg)
	if err != nil {
		t.Fatalf("first validate failed: %v", err)
	}
	second, err := Validate(first.EDL, first.StoryArc, cfg)
	if err != nil {
		t.Fatalf("second validate failed: %v", err)
	}

	if len(first.EDL) != len(second.EDL) {
		t.Fatalf("EDL length changed on re-validation: %d vs %d", len(first.EDL), len(second.EDL))
	}
	for i := range first.EDL {
		a, b := first.EDL[i], second.EDL[i]
		if a.Start != b.Start || a.End != b.End || a.Kind != b.Kind {
			t.Errorf("segment %d changed on re-validation: %+v vs %+v", i, a, b)
		}
	}
	if first.StoryArc != second.StoryArc {
		t.Errorf("story arc changed on re-validation: %+v vs %+v", first.StoryArc, second.StoryArc)
	}
}

func TestValidateRejectsEmptyKeep(t *testing.T) {
	edl := []models.Segment{
		{Start: 0, End: 10, Kind: models.SegmentKindSkip},
	}
	_, err := Validate(edl, models.StoryArc{}, ValidatorConfig{SourceDuration: 10, DesiredLengthPct: 50, CoverageTolerancePct: 10})
	if err == nil {
		t.Fatal("expected UnrenderablePlan-style rejection for an EDL with no keep segments")
	}
}

func TestValidateClipsOutOfBoundsSegment(t *testing.T) {
	edl := []models.Segment{
		{Start: 90, End: 102, Kind: models.SegmentKindKeep},
	}
	result, err := Validate(edl, models.StoryArc{HookT: 90, ClimaxT: 95, ResolutionT: 99}, ValidatorConfig{
		SourceDuration: 100, DesiredLengthPct: 10, CoverageTolerancePct: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, seg := range result.EDL {
		if seg.Start < 0 || seg.End > 100 {
			t.Errorf("segment escaped [0, duration]: %+v", seg)
		}
	}
}

func TestValidateWarnsWhenArcAnchorOutsideKeep(t *testing.T) {
	edl := []models.Segment{
		{Start: 10, End: 20, Kind: models.SegmentKindKeep},
	}
	result, err := Validate(edl, models.StoryArc{HookT: 1, ClimaxT: 15, ResolutionT: 19}, ValidatorConfig{
		SourceDuration: 100, DesiredLengthPct: 10, CoverageTolerancePct: 50,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "story arc hook at 1.000s falls outside every keep segment" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a hook-outside-keep warning, got %v", result.Warnings)
	}
}

func TestValidateWarnsOnUnorderedArc(t *testing.T) {
	edl := []models.Segment{
		{Start: 0, End: 10, Kind: models.SegmentKindKeep},
	}
	result, err := Validate(edl, models.StoryArc{HookT: 5, ClimaxT: 5, ResolutionT: 5}, ValidatorConfig{
		SourceDuration: 10, DesiredLengthPct: 100, CoverageTolerancePct: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, w := range result.Warnings {
		if w == "story arc timestamps are not strictly ordered (hook < climax < resolution)" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an ordering warning, got %v", result.Warnings)
	}
}

func TestValidateStrictCoverageRejection(t *testing.T) {
	edl := []models.Segment{
		{Start: 0, End: 5, Kind: models.SegmentKindKeep},
	}
	_, err := Validate(edl, models.StoryArc{HookT: 0, ClimaxT: 2, ResolutionT: 4}, ValidatorConfig{
		SourceDuration: 100, DesiredLengthPct: 50, CoverageTolerancePct: 10, Strict: true,
	})
	if err == nil {
		t.Fatal("expected strict coverage mismatch to reject the plan")
	}
}
