package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptInputs carries everything the prompt builder needs beyond
// the compressed enrichment context: the caller-supplied story brief and
// the constraints the model's EDL must respect.
type PromptInputs struct {
	Summary          string
	StoryPrompt      string
	DesiredLengthPct float64
	TargetAudience   string
	Tone             string
	KeyMessage       string
	StylePreferences string
	SourceDuration   float64
}

const storyPlannerSystemPrompt = `You are a video story planner. You are given a source video's transcript, detected scenes, and candidate highlight clips, already reduced to fit your context budget. Produce an edit decision list that tells an automated renderer exactly which windows of the source to keep, skip, or transition between.

Respond with a single JSON object matching this exact shape, and nothing else:
{
  "story_arc": {"hook_t": number, "climax_t": number, "resolution_t": number},
  "key_moments": [{"start": number, "end": number, "importance": "high"|"medium"|"low", "role": "hook"|"build"|"climax"|"resolution", "reason": string}],
  "edl": [{"start": number, "end": number, "kind": "keep"|"skip"|"transition", "transition_kind": "fade"|"cut"|"xfade"|null, "transition_duration": number|null, "reason": string}],
  "transitions": [{"from": number, "to": number, "kind": string, "reason": string}],
  "recommendations": [{"message": string, "timestamp": number|null, "priority": "high"|"medium"|"low"}]
}

Rules:
- All timestamps are seconds from the start of the source video and must stay within [0, source_duration].
- The edl array must cover the entire source timeline with no gaps and no overlaps, in ascending order.
- Only "keep" segments contribute runtime to the rendered output.
- Prefer cutting at natural pauses or scene boundaries already present in the input.
- Do not invent timestamps outside the provided transcript, scene, or candidate data.`

// BuildStoryPrompt assembles the deterministic user-turn envelope: a
// fixed section order so the same inputs always produce the same prompt
// text, which keeps the planner's output reproducible enough for the EDL
// Validator's results to be meaningfully compared across re-runs.
func BuildStoryPrompt(ctx CompressedContext, in PromptInputs) string {
	var b strings.Builder

	fmt.Fprintf(&b, "SOURCE DURATION: %.2f seconds\n", in.SourceDuration)
	fmt.Fprintf(&b, "DESIRED OUTPUT LENGTH: %.1f%% of source\n", in.DesiredLengthPct)
	fmt.Fprintf(&b, "CONTEXT: %d of %d transcript segments, %d of %d scenes, %d of %d sampled frames included below\n\n",
		len(ctx.Segments), len(ctx.Segments)+ctx.SegmentsDropped,
		len(ctx.Scenes), len(ctx.Scenes)+ctx.ScenesDropped,
		len(ctx.Frames), len(ctx.Frames)+ctx.FramesDropped)

	if in.StoryPrompt != "" {
		fmt.Fprintf(&b, "STORY BRIEF:\n%s\n\n", in.StoryPrompt)
	}
	if in.Summary != "" {
		fmt.Fprintf(&b, "SUMMARY:\n%s\n\n", in.Summary)
	}
	if in.TargetAudience != "" {
		fmt.Fprintf(&b, "TARGET AUDIENCE: %s\n", in.TargetAudience)
	}
	if in.Tone != "" {
		fmt.Fprintf(&b, "TONE: %s\n", in.Tone)
	}
	if in.KeyMessage != "" {
		fmt.Fprintf(&b, "KEY MESSAGE: %s\n", in.KeyMessage)
	}
	if in.StylePreferences != "" {
		fmt.Fprintf(&b, "STYLE PREFERENCES: %s\n", in.StylePreferences)
	}
	b.WriteString("\n")

	b.WriteString("TRANSCRIPT SEGMENTS:\n")
	writeJSONBlock(&b, ctx.Segments)
	if ctx.SegmentsDropped > 0 {
		fmt.Fprintf(&b, "(%d additional segments were omitted to fit the context budget)\n", ctx.SegmentsDropped)
	}
	b.WriteString("\n")

	b.WriteString("SCENES:\n")
	writeJSONBlock(&b, ctx.Scenes)
	if ctx.ScenesDropped > 0 {
		fmt.Fprintf(&b, "(%d additional scenes were omitted to fit the context budget)\n", ctx.ScenesDropped)
	}
	b.WriteString("\n")

	if len(ctx.Frames) > 0 {
		b.WriteString("SAMPLED FRAMES:\n")
		writeJSONBlock(&b, ctx.Frames)
		if ctx.FramesDropped > 0 {
			fmt.Fprintf(&b, "(%d additional frames were omitted to fit the context budget)\n", ctx.FramesDropped)
		}
		b.WriteString("\n")
	}

	if len(ctx.Candidates) > 0 {
		b.WriteString("CANDIDATE HIGHLIGHT CLIPS (heuristically pre-scored):\n")
		writeJSONBlock(&b, ctx.Candidates)
		b.WriteString("\n")
	}

	return b.String()
}

// SystemPrompt returns the fixed system-turn instructions.
func SystemPrompt() string {
	return storyPlannerSystemPrompt
}

func writeJSONBlock(b *strings.Builder, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		b.WriteString("[]\n")
		return
	}
	b.Write(data)
	b.WriteString("\n")
}
