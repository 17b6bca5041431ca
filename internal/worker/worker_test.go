package worker

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/services"
)

func TestRenderDimensions(t *testing.T) {
	cases := []struct {
		ratio string
		w, h  int
	}{
		{"16:9", 1920, 1080},
		{"9:16", 1080, 1920},
		{"1:1", 1080, 1080},
		{"4:5", 1080, 1350},
		{"21:9", 2520, 1080},
		{"garbage", 1080, 1080},
		{"0:9", 1080, 1080},
	}
	for _, c := range cases {
		w, h := renderDimensions(c.ratio, 1080)
		if w != c.w || h != c.h {
			t.Errorf("renderDimensions(%q) = %dx%d, want %dx%d", c.ratio, w, h, c.w, c.h)
		}
		if w%2 != 0 || h%2 != 0 {
			t.Errorf("renderDimensions(%q) produced odd dimension %dx%d", c.ratio, w, h)
		}
	}
}

func TestBuildCaptionCuesRemapsToOutputTimeline(t *testing.T) {
	segments := []models.TranscriptSegment{
		{Start: 0, End: 5, Text: "one"},
		{Start: 12, End: 18, Text: "two"},
	}
	keeps := []models.Segment{
		{Start: 2, End: 6, Kind: models.SegmentKindKeep},
		{Start: 10, End: 16, Kind: models.SegmentKindKeep},
	}

	cues := buildCaptionCues(segments, keeps)
	want := []services.CaptionCue{
		{OutputStart: 0, OutputEnd: 3, Text: "one"}, // [2,5] of keep [2,6], no skipped runtime ahead
		{OutputStart: 6, OutputEnd: 10, Text: "two"}, // [12,16] of keep [10,16], offset by keep 1's 4s
	}
	if len(cues) != len(want) {
		t.Fatalf("expected %d cues, got %d: %+v", len(want), len(cues), cues)
	}
	for i, c := range cues {
		if math.Abs(c.OutputStart-want[i].OutputStart) > 1e-9 ||
			math.Abs(c.OutputEnd-want[i].OutputEnd) > 1e-9 ||
			c.Text != want[i].Text {
			t.Errorf("cue %d: got %+v, want %+v", i, c, want[i])
		}
	}
}

func TestBuildCaptionCuesSkipsNonOverlappingSegments(t *testing.T) {
	segments := []models.TranscriptSegment{
		{Start: 50, End: 55, Text: "unheard"},
	}
	keeps := []models.Segment{
		{Start: 0, End: 10, Kind: models.SegmentKindKeep},
	}
	if cues := buildCaptionCues(segments, keeps); len(cues) != 0 {
		t.Errorf("expected no cues for speech entirely outside kept windows, got %+v", cues)
	}
}

func TestErrorDetailClassification(t *testing.T) {
	cases := []struct {
		in   string
		code string
		msg  string
	}{
		{"EncodeError: fit-and-pad failed: exit status 1", "EncodeError", "fit-and-pad failed: exit status 1"},
		{"InvalidPlan: InsufficientSignal: media has no transcript and no described scenes or frames to plan from", "InvalidPlan", "InsufficientSignal: media has no transcript and no described scenes or frames to plan from"},
		{"RenderFailed: 1 of 3 ratios failed: 1:1: encode died", "RenderFailed", "1 of 3 ratios failed: 1:1: encode died"},
		{"failed to load media abc: not found", "InternalError", "failed to load media abc: not found"},
		{"something went wrong", "InternalError", "something went wrong"},
	}
	for _, c := range cases {
		d := errorDetail(errors.New(c.in))
		if d.Code != c.code || d.Message != c.msg {
			t.Errorf("errorDetail(%q) = {%q, %q}, want {%q, %q}", c.in, d.Code, d.Message, c.code, c.msg)
		}
	}
}

func TestBackoffDelayIsExponential(t *testing.T) {
	if got := backoffDelay(1, 60, 0); got != 60*time.Second {
		t.Errorf("attempt 1: got %v, want 60s", got)
	}
	if got := backoffDelay(2, 60, 0); got != 120*time.Second {
		t.Errorf("attempt 2: got %v, want 120s", got)
	}
	if got := backoffDelay(3, 60, 0); got != 240*time.Second {
		t.Errorf("attempt 3: got %v, want 240s", got)
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := backoffDelay(1, 60, 10)
		if got < 60*time.Second || got > 70*time.Second {
			t.Fatalf("jittered delay %v escaped [60s, 70s]", got)
		}
	}
}
