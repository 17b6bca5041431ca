package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatASSTime(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00:00.00"},
		{1.5, "0:00:01.50"},
		{61.25, "0:01:01.25"},
		{3661.5, "1:01:01.50"},
		{-2, "0:00:00.00"},
	}
	for _, c := range cases {
		if got := formatASSTime(c.seconds); got != c.want {
			t.Errorf("formatASSTime(%v) = %q, want %q", c.seconds, got, c.want)
		}
	}
}

func TestEscapeASSText(t *testing.T) {
	if got := escapeASSText("line one\nline two"); got != "line one\\Nline two" {
		t.Errorf("newline not escaped: %q", got)
	}
	if got := escapeASSText(`back\slash`); got != `back\\slash` {
		t.Errorf("backslash not escaped: %q", got)
	}
}

func TestCanvasSize(t *testing.T) {
	cases := []struct {
		ratio  string
		w, h   int
	}{
		{"9:16", 1080, 1920},
		{"16:9", 1920, 1080},
		{"1:1", 1080, 1080},
		{"4:5", 1080, 1350},
		{"something-else", 1920, 1080},
	}
	for _, c := range cases {
		w, h := CanvasSize(c.ratio)
		if w != c.w || h != c.h {
			t.Errorf("CanvasSize(%q) = %dx%d, want %dx%d", c.ratio, w, h, c.w, c.h)
		}
	}
}

func TestGenerateASSCaptions(t *testing.T) {
	out := filepath.Join(t.TempDir(), "captions.ass")
	cues := []CaptionCue{
		{OutputStart: 0, OutputEnd: 2.5, Text: "hello there"},
		{OutputStart: 2.5, OutputEnd: 5, Text: "general\nviewer"},
	}
	if err := GenerateASSCaptions(cues, out, "9:16"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"PlayResX: 1080",
		"PlayResY: 1920",
		"Dialogue: 0,0:00:00.00,0:00:02.50,Default,,0,0,0,,hello there",
		"general\\Nviewer",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("subtitle file missing %q", want)
		}
	}
}

func TestGenerateASSCaptionsRejectsEmptyCueList(t *testing.T) {
	out := filepath.Join(t.TempDir(), "captions.ass")
	if err := GenerateASSCaptions(nil, out, "16:9"); err == nil {
		t.Fatal("expected an error for an empty cue list")
	}
}
