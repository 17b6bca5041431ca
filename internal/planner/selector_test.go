package planner

import (
	"testing"

	"github.com/bobarin/reelforge/internal/models"
)

func TestSelectClipsReturnsEmptyWithoutTranscript(t *testing.T) {
	// With no transcript there is nothing to score against; the selector
	// returns an empty list rather than failing.
	candidates := SelectClips(nil, nil, nil, 120, SelectorConfig{MinDurationS: 15, MaxDurationS: 60, ClipCount: 5})
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates without a transcript, got %d", len(candidates))
	}

	empty := &models.Transcript{Segments: nil}
	candidates = SelectClips(empty, nil, nil, 120, SelectorConfig{MinDurationS: 15, MaxDurationS: 60, ClipCount: 5})
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates with an empty transcript, got %d", len(candidates))
	}
}

func TestSelectClipsRespectsDurationBoundsAndNonOverlap(t *testing.T) {
	transcript := &models.Transcript{Segments: []models.TranscriptSegment{
		{Start: 0, End: 20, Text: "this is the incredible and shocking truth nobody tells you"},
		{Start: 25, End: 45, Text: "just some ordinary filler chatter with nothing special going on here"},
		{Start: 50, End: 80, Text: "never forget the biggest mistake that changed everything for everyone"},
	}}
	cfg := SelectorConfig{MinDurationS: 15, MaxDurationS: 60, ClipCount: 2}
	candidates := SelectClips(transcript, nil, nil, 100, cfg)

	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if len(candidates) > cfg.ClipCount {
		t.Fatalf("expected at most %d candidates, got %d", cfg.ClipCount, len(candidates))
	}
	for _, c := range candidates {
		length := c.End - c.Start
		if length < cfg.MinDurationS-1e-9 || length > cfg.MaxDurationS+1e-9 {
			t.Errorf("candidate [%v,%v] length %v out of bounds [%v,%v]", c.Start, c.End, length, cfg.MinDurationS, cfg.MaxDurationS)
		}
		if c.Score < 0 || c.Score > 100 {
			t.Errorf("candidate score %v out of [0,100] contract", c.Score)
		}
	}
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if overlapLength(candidates[i].Start, candidates[i].End, candidates[j].Start, candidates[j].End) > 0 {
				t.Errorf("candidates %d and %d overlap: %+v vs %+v", i, j, candidates[i], candidates[j])
			}
		}
	}
}

func TestKeywordScorePrefersHookWords(t *testing.T) {
	transcript := &models.Transcript{Segments: []models.TranscriptSegment{
		{Start: 0, End: 10, Text: "this is the shocking secret truth nobody tells you"},
	}}
	score, hook := keywordScore(0, 10, transcript)
	if score <= 0 {
		t.Errorf("expected positive keyword score for hook-laden text, got %v", score)
	}
	if hook == "" {
		t.Error("expected a hook text to be captured")
	}
}
