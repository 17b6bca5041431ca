// Package planner holds the pure-computation stages of the pipeline —
// scene indexing, heuristic clip selection, context compression, prompt
// assembly, and EDL validation. None of these touch the network, the
// Registry, or the filesystem: every function here is a deterministic
// transform over its arguments, which is what makes the EDL Validator's
// fixed-point property provable by a unit test instead of an integration
// test.
package planner

import (
	"sort"

	"github.com/bobarin/reelforge/internal/models"
)

// IndexScenes merges scene-cut timestamps with sampled-frame descriptions
// into a contiguous, gap-free Scene list spanning [0, duration). A scene
// with no frame sampled inside its window is left with an empty
// Description rather than dropped — downstream consumers treat a blank
// description as "no visual context available".
func IndexScenes(cuts []float64, frames []models.Frame, duration float64) []models.Scene {
	boundaries := append([]float64{0}, cuts...)
	boundaries = append(boundaries, duration)
	sort.Float64s(boundaries)

	scenes := make([]models.Scene, 0, len(boundaries)-1)
	for i := 0; i < len(boundaries)-1; i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end-start <= 0 {
			continue
		}
		scenes = append(scenes, models.Scene{
			Index:       len(scenes),
			Start:       start,
			End:         end,
			Description: describeWindow(frames, start, end),
		})
	}
	if len(scenes) == 0 {
		scenes = append(scenes, models.Scene{Index: 0, Start: 0, End: duration})
	}
	return scenes
}

// describeWindow joins every frame description sampled inside [start, end)
// with a single space. Frames are expected to already be sorted by T.
func describeWindow(frames []models.Frame, start, end float64) string {
	var desc string
	for _, f := range frames {
		if f.T < start || f.T >= end {
			continue
		}
		if f.Description == "" {
			continue
		}
		if desc != "" {
			desc += " "
		}
		desc += f.Description
	}
	return desc
}
