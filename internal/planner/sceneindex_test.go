package planner

import (
	"testing"

	"github.com/bobarin/reelforge/internal/models"
)

func TestIndexScenesSplitsAtCuts(t *testing.T) {
	scenes := IndexScenes([]float64{10, 20}, nil, 30)
	if len(scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(scenes))
	}
	want := [][2]float64{{0, 10}, {10, 20}, {20, 30}}
	for i, sc := range scenes {
		if sc.Start != want[i][0] || sc.End != want[i][1] {
			t.Errorf("scene %d: got [%v,%v], want [%v,%v]", i, sc.Start, sc.End, want[i][0], want[i][1])
		}
		if sc.Index != i {
			t.Errorf("scene %d has index %d", i, sc.Index)
		}
	}
}

func TestIndexScenesNoCutsYieldsSingleScene(t *testing.T) {
	scenes := IndexScenes(nil, nil, 42.5)
	if len(scenes) != 1 {
		t.Fatalf("expected a single whole-timeline scene, got %d", len(scenes))
	}
	if scenes[0].Start != 0 || scenes[0].End != 42.5 {
		t.Errorf("expected [0, 42.5], got [%v, %v]", scenes[0].Start, scenes[0].End)
	}
}

func TestIndexScenesContiguousCoverage(t *testing.T) {
	scenes := IndexScenes([]float64{3.5, 7.25, 18}, nil, 25)
	cursor := 0.0
	for i, sc := range scenes {
		if sc.Start != cursor {
			t.Errorf("gap before scene %d: previous end %v, start %v", i, cursor, sc.Start)
		}
		cursor = sc.End
	}
	if cursor != 25 {
		t.Errorf("scenes do not cover the full timeline: final end %v", cursor)
	}
}

func TestIndexScenesAggregatesFrameDescriptions(t *testing.T) {
	frames := []models.Frame{
		{T: 2, Description: "a dog runs"},
		{T: 5, Description: "the dog jumps"},
		{T: 15, Description: "a cat sleeps"},
	}
	scenes := IndexScenes([]float64{10}, frames, 20)
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0].Description != "a dog runs the dog jumps" {
		t.Errorf("scene 0 description: %q", scenes[0].Description)
	}
	if scenes[1].Description != "a cat sleeps" {
		t.Errorf("scene 1 description: %q", scenes[1].Description)
	}
}

func TestIndexScenesDropsCutBeyondDuration(t *testing.T) {
	// A cut at or past the duration produces a zero-length trailing window,
	// which must be skipped rather than emitted.
	scenes := IndexScenes([]float64{10, 30}, nil, 30)
	for _, sc := range scenes {
		if sc.End <= sc.Start {
			t.Errorf("zero-length scene emitted: [%v, %v]", sc.Start, sc.End)
		}
	}
	if len(scenes) != 2 {
		t.Errorf("expected 2 scenes, got %d", len(scenes))
	}
}
