package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

// ---------------------------------------------------------------------------
// Transcriber
// ---------------------------------------------------------------------------

// Transcribe sends extracted audio to Whisper and returns a Transcript with
// segment-level text plus word-level timestamps nested under each segment.
// An empty or silent source still yields a Transcript with zero Segments —
// Completed, not Failed.
func (s *OpenAIService) Transcribe(ctx context.Context, audioData []byte, language string) (*models.Transcript, error) {
	if language == "" {
		language = "en"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: "audio.wav",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	t := &models.Transcript{Language: language}
	if len(resp.Segments) == 0 {
		log.Printf("[Whisper] no segments returned (text: %q) — treating as silent source", resp.Text)
		return t, nil
	}

	t.Segments = make([]models.TranscriptSegment, len(resp.Segments))
	for i, seg := range resp.Segments {
		t.Segments[i] = models.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	// Nest word timestamps under the segment whose window contains them —
	// Whisper returns words as a flat list regardless of segment boundaries.
	for _, w := range resp.Words {
		word := models.Word{Word: strings.TrimSpace(w.Word), Start: w.Start, End: w.End}
		idx := segmentIndexForWord(t.Segments, word.Start)
		if idx >= 0 {
			t.Segments[idx].Words = append(t.Segments[idx].Words, word)
		}
	}

	log.Printf("[Whisper] transcribed %d segments, %d words (duration: %.1fs)",
		len(t.Segments), len(resp.Words), resp.Duration)

	return t, nil
}

func segmentIndexForWord(segments []models.TranscriptSegment, wordStart float64) int {
	for i, seg := range segments {
		if wordStart >= seg.Start && wordStart < seg.End {
			return i
		}
	}
	if len(segments) > 0 {
		return len(segments) - 1
	}
	return -1
}

// ---------------------------------------------------------------------------
// Story Planner
// ---------------------------------------------------------------------------

// StoryPlanResult is the deserialised JSON-mode chat completion
// contract: story arc, key moments, an EDL, transitions, recommendations,
// plus the token usage the caller records on the Job row.
type StoryPlanResult struct {
	StoryArc        models.StoryArc         `json:"story_arc"`
	KeyMoments      []models.KeyMoment      `json:"key_moments"`
	EDL             []models.Segment        `json:"edl"`
	Transitions     []models.Transition     `json:"transitions"`
	Recommendations []models.Recommendation `json:"recommendations"`
	TokensUsed      int                     `json:"-"`
}

// PlanStory sends the compressed context envelope from the prompt
// builder to a JSON-mode chat completion and parses the strict
// response contract. Low temperature keeps the EDL reproducible run to
// run, which matters because the EDL validator must still be run
// afterward regardless of how disciplined the model's output looks.
func (s *OpenAIService) PlanStory(ctx context.Context, systemPrompt, userPrompt string, temperature float32, model string) (*StoryPlanResult, error) {
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("openai story plan request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	raw := resp.Choices[0].Message.Content
	var result StoryPlanResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		log.Printf("[StoryPlanner] parse failed: %v, raw response: %s", err, truncateString(raw, 2000))
		return nil, fmt.Errorf("InvalidPlannerOutput: failed to parse story plan: %w", err)
	}

	if len(result.EDL) == 0 {
		return nil, fmt.Errorf("InvalidPlannerOutput: story plan has an empty edl")
	}

	result.TokensUsed = resp.Usage.TotalTokens
	log.Printf("[StoryPlanner] plan generated: %d edl segments, %d key moments, %d tokens",
		len(result.EDL), len(result.KeyMoments), result.TokensUsed)

	return &result, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
