package planner

import (
	"strings"
	"testing"

	"github.com/bobarin/reelforge/internal/models"
)

func promptFixture() (CompressedContext, PromptInputs) {
	ctx := CompressedContext{
		Segments: []models.TranscriptSegment{
			{Start: 0, End: 4, Text: "welcome back everyone"},
			{Start: 4, End: 9, Text: "today we build a rocket"},
		},
		Scenes: []models.Scene{
			{Index: 0, Start: 0, End: 9, Description: "a workshop bench"},
		},
		Frames: []models.Frame{
			{T: 1, Description: "a person at a workbench"},
		},
		SegmentsDropped: 7,
	}
	in := PromptInputs{
		StoryPrompt:      "make it feel like a heist",
		DesiredLengthPct: 30,
		Tone:             "playful",
		SourceDuration:   9,
	}
	return ctx, in
}

func TestBuildStoryPromptIsDeterministic(t *testing.T) {
	ctx, in := promptFixture()
	a := BuildStoryPrompt(ctx, in)
	b := BuildStoryPrompt(ctx, in)
	if a != b {
		t.Error("identical inputs produced different prompts")
	}
}

func TestBuildStoryPromptSections(t *testing.T) {
	ctx, in := promptFixture()
	prompt := BuildStoryPrompt(ctx, in)

	for _, want := range []string{
		"SOURCE DURATION: 9.00 seconds",
		"DESIRED OUTPUT LENGTH: 30.0% of source",
		"STORY BRIEF:\nmake it feel like a heist",
		"TONE: playful",
		"TRANSCRIPT SEGMENTS:",
		"SCENES:",
		"SAMPLED FRAMES:",
		"(7 additional segments were omitted to fit the context budget)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildStoryPromptContextSummaryCounts(t *testing.T) {
	ctx, in := promptFixture()
	prompt := BuildStoryPrompt(ctx, in)
	if !strings.Contains(prompt, "CONTEXT: 2 of 9 transcript segments, 1 of 1 scenes, 1 of 1 sampled frames") {
		t.Errorf("context summary missing or wrong:\n%s", prompt)
	}
}

func TestBuildStoryPromptOmitsEmptySections(t *testing.T) {
	ctx, in := promptFixture()
	ctx.Frames = nil
	ctx.Candidates = nil
	prompt := BuildStoryPrompt(ctx, in)
	if strings.Contains(prompt, "SAMPLED FRAMES:") {
		t.Error("frames section present with no frames")
	}
	if strings.Contains(prompt, "CANDIDATE HIGHLIGHT CLIPS") {
		t.Error("candidates section present with no candidates")
	}
}

func TestSystemPromptStatesContract(t *testing.T) {
	sys := SystemPrompt()
	for _, want := range []string{`"story_arc"`, `"edl"`, `"recommendations"`, "keep", "skip", "transition"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}
