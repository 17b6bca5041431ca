package planner

import (
	"fmt"
	"testing"

	"github.com/bobarin/reelforge/internal/models"
)

func makeSegments(n int) []models.TranscriptSegment {
	segs := make([]models.TranscriptSegment, n)
	for i := range segs {
		segs[i] = models.TranscriptSegment{
			Start: float64(i) * 2,
			End:   float64(i)*2 + 2,
			Text:  fmt.Sprintf("segment %d", i),
		}
	}
	return segs
}

func TestCompressPassesThroughUnderCap(t *testing.T) {
	transcript := &models.Transcript{Segments: makeSegments(3)}
	out := Compress(transcript, nil, nil, nil, CompressorConfig{FrameCap: 50, SceneCap: 20, SegmentCap: 100})
	if len(out.Segments) != 3 {
		t.Errorf("expected all 3 segments kept, got %d", len(out.Segments))
	}
	if out.SegmentsDropped != 0 || out.ScenesDropped != 0 || out.FramesDropped != 0 {
		t.Errorf("expected no drops, got %d/%d/%d", out.SegmentsDropped, out.ScenesDropped, out.FramesDropped)
	}
}

func TestCompressSegmentsKeepsFirstAndLast(t *testing.T) {
	transcript := &models.Transcript{Segments: makeSegments(20)}
	out := Compress(transcript, nil, nil, nil, CompressorConfig{FrameCap: 50, SceneCap: 20, SegmentCap: 5})
	if len(out.Segments) != 5 {
		t.Fatalf("expected 5 segments after compression, got %d", len(out.Segments))
	}
	if out.SegmentsDropped != 15 {
		t.Errorf("expected 15 segments dropped, got %d", out.SegmentsDropped)
	}
	if out.Segments[0].Text != "segment 0" {
		t.Errorf("first segment not retained: %q", out.Segments[0].Text)
	}
	if out.Segments[len(out.Segments)-1].Text != "segment 19" {
		t.Errorf("last segment not retained: %q", out.Segments[len(out.Segments)-1].Text)
	}
	// Compression must preserve timeline order.
	for i := 1; i < len(out.Segments); i++ {
		if out.Segments[i].Start < out.Segments[i-1].Start {
			t.Errorf("segments out of order at %d: %v after %v", i, out.Segments[i].Start, out.Segments[i-1].Start)
		}
	}
}

func TestCompressSegmentsPrefersWordDensity(t *testing.T) {
	segs := makeSegments(10)
	// Make segment 5 far denser than its neighbours.
	segs[5].Text = "a b c d e f g h i j k l m n o p q r s t"
	transcript := &models.Transcript{Segments: segs}
	out := Compress(transcript, nil, nil, nil, CompressorConfig{SegmentCap: 3})
	found := false
	for _, s := range out.Segments {
		if s.Text == segs[5].Text {
			found = true
		}
	}
	if !found {
		t.Errorf("densest segment was not retained: %+v", out.Segments)
	}
}

func TestCompressFramesKeepsEndpoints(t *testing.T) {
	frames := make([]models.Frame, 30)
	for i := range frames {
		frames[i] = models.Frame{T: float64(i), Description: fmt.Sprintf("frame %d", i)}
	}
	out := Compress(nil, nil, frames, nil, CompressorConfig{FrameCap: 6})
	if len(out.Frames) != 6 {
		t.Fatalf("expected 6 frames, got %d", len(out.Frames))
	}
	if out.Frames[0].T != 0 {
		t.Errorf("first frame not retained, got t=%v", out.Frames[0].T)
	}
	if out.Frames[len(out.Frames)-1].T != 29 {
		t.Errorf("last frame not retained, got t=%v", out.Frames[len(out.Frames)-1].T)
	}
	if out.FramesDropped != 24 {
		t.Errorf("expected 24 frames dropped, got %d", out.FramesDropped)
	}
}

func TestCompressFramesPrefersLongerDescriptionInBucket(t *testing.T) {
	frames := make([]models.Frame, 12)
	for i := range frames {
		frames[i] = models.Frame{T: float64(i), Description: "x"}
	}
	frames[4].Description = "a much longer description of what is happening in this frame"
	out := Compress(nil, nil, frames, nil, CompressorConfig{FrameCap: 4})
	found := false
	for _, f := range out.Frames {
		if f.T == 4 {
			found = true
		}
	}
	if !found {
		t.Errorf("frame with the longest description in its bucket was not retained: %+v", out.Frames)
	}
}

func TestCompressScenesKeepsEndpoints(t *testing.T) {
	scenes := make([]models.Scene, 40)
	for i := range scenes {
		scenes[i] = models.Scene{Index: i, Start: float64(i), End: float64(i + 1)}
	}
	out := Compress(nil, scenes, nil, nil, CompressorConfig{SceneCap: 10})
	if len(out.Scenes) > 10 {
		t.Fatalf("scene cap exceeded: %d", len(out.Scenes))
	}
	if out.Scenes[0].Index != 0 {
		t.Errorf("first scene not retained, got index %d", out.Scenes[0].Index)
	}
	if out.Scenes[len(out.Scenes)-1].Index != 39 {
		t.Errorf("last scene not retained, got index %d", out.Scenes[len(out.Scenes)-1].Index)
	}
}

func TestCompressNilTranscript(t *testing.T) {
	out := Compress(nil, nil, nil, nil, CompressorConfig{FrameCap: 50, SceneCap: 20, SegmentCap: 100})
	if len(out.Segments) != 0 {
		t.Errorf("expected no segments from a nil transcript, got %d", len(out.Segments))
	}
}
