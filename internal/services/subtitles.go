package services

import (
	"fmt"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// ASS Caption Generator
//
// Burns transcript segments as captions, timed against the rendered
// OUTPUT timeline rather than the source timeline — every kept EDL
// segment shifts earlier as the skipped segments ahead of it are
// removed, so captions must follow the same remapping the Renderer
// applies to picture and sound. Captions are segment-
// level, not word-by-word: the pipeline has no narration pass to time
// individual words against, only Whisper's transcript of the original
// dialogue.
// ---------------------------------------------------------------------------

const (
	captionFontName = "Noto Sans"

	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorSemiBlack = "&H80000000"

	captionOutline = 4
)

// CaptionCue is one burned caption: dialogue text over an OUTPUT-timeline
// window.
type CaptionCue struct {
	OutputStart float64
	OutputEnd   float64
	Text        string
}

// CanvasSize returns the ASS PlayRes dimensions for a given render aspect
// ratio, scaled so font sizing stays legible regardless of orientation.
func CanvasSize(aspectRatio string) (width, height int) {
	switch aspectRatio {
	case "9:16":
		return 1080, 1920
	case "16:9":
		return 1920, 1080
	case "1:1":
		return 1080, 1080
	case "4:5":
		return 1080, 1350
	default:
		return 1920, 1080
	}
}

// fontSizeForCanvas scales the caption font relative to canvas height so
// the same pipeline produces legible text across aspect ratios.
func fontSizeForCanvas(height int) int {
	size := height / 20
	if size < 36 {
		size = 36
	}
	return size
}

// GenerateASSCaptions writes an ASS subtitle file burning one dialogue
// line per cue, bottom-center aligned, sized to the target canvas.
func GenerateASSCaptions(cues []CaptionCue, outputPath string, aspectRatio string) error {
	if len(cues) == 0 {
		return fmt.Errorf("no caption cues to generate")
	}

	width, height := CanvasSize(aspectRatio)
	fontSize := fontSizeForCanvas(height)
	marginV := height / 12

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", width)
	fmt.Fprintf(&sb, "PlayResY: %d\n", height)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%d,%s,%s,%s,%s,0,0,0,0,100,100,1,0,1,%d,0,2,40,40,%d,1\n\n",
		captionFontName, fontSize, assColorWhite, assColorWhite, assColorBlack, assColorSemiBlack,
		captionOutline, marginV,
	)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, cue := range cues {
		text := strings.TrimSpace(cue.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(cue.OutputStart), formatASSTime(cue.OutputEnd), escapeASSText(text),
		)
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write ASS subtitle file: %w", err)
	}
	return nil
}

func escapeASSText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "\n", "\\N")
	return text
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds).
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
