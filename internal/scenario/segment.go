// SPDX-License-Identifier: MIT

package scenario

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TimedSegment is one segmented slice of the scenario with its time
// window assigned.
type TimedSegment struct {
	TimeStart   float64
	TimeEnd     float64
	Description string
}

const sceneBreak = "[SCENE_BREAK]"

// transitionMarkers are replaced by a canonical break token before
// segmentation. Order matters: longer spaced variants first, so a
// substring marker never splits inside a longer one.
var transitionMarkers = []string{
	"화면 전환이 되고",
	"화면 전환되고",
	"화면이 전환되고",
	"그 다음",
	"이후",
	"다음으로",
	"그리고",
	"->",
	"→",
	"장면 전환",
}

// connectives split a too-coarse fragment further when segmentation
// undershoots the target count.
var connectives = []string{"하고", "하며", "그리고", "또한", "이후", "다음", "그 다음"}

const (
	minFragmentRunes = 15
	minTokenRunes    = 10
	minShots         = 4
)

// Segment partitions a Korean scenario into timed segments. duration is
// the total video length in seconds, shotLen the target shot length
// (default 5s). The result tiles [0, duration] exactly; at least 4
// segments are produced unless the input is pathologically short.
func Segment(text string, duration, shotLen int) []TimedSegment {
	if shotLen <= 0 {
		shotLen = 5
	}
	text = norm.NFC.String(strings.TrimSpace(text))
	target := duration / shotLen
	if target < minShots {
		target = minShots
	}

	fragments := splitOnMarkers(text)

	// Keep only substantive fragments.
	var scenes []string
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if len([]rune(f)) > minFragmentRunes {
			scenes = append(scenes, f)
		}
	}

	if len(scenes) > target*3/2 {
		scenes = mergeGroups(scenes, target)
	}
	if len(scenes) < minShots || len(scenes) < target/2 {
		scenes = refine(scenes)
	}
	if len(scenes) < minShots {
		scenes = equalChunks(text, minShots)
	}
	if len(scenes) == 0 && text != "" {
		scenes = []string{text}
	}

	return assignTimes(scenes, duration)
}

func splitOnMarkers(text string) []string {
	replaced := text
	found := false
	for _, m := range transitionMarkers {
		if strings.Contains(replaced, m) {
			replaced = strings.ReplaceAll(replaced, m, " "+sceneBreak+" ")
			found = true
		}
	}
	if found {
		return strings.Split(replaced, sceneBreak)
	}
	return strings.Split(text, ".")
}

// mergeGroups joins consecutive fragments into target groups.
func mergeGroups(scenes []string, target int) []string {
	perGroup := len(scenes) / target
	if perGroup < 1 {
		perGroup = 1
	}
	var merged []string
	for i := 0; i < len(scenes); i += perGroup {
		end := i + perGroup
		if end > len(scenes) {
			end = len(scenes)
		}
		merged = append(merged, strings.Join(scenes[i:end], " "))
	}
	if len(merged) > target {
		merged = merged[:target]
	}
	return merged
}

// refine splits coarse fragments further, first by comma and then around
// connective morphemes, dropping short tokens.
func refine(scenes []string) []string {
	if len(scenes) == 1 {
		var parts []string
		for _, p := range strings.Split(scenes[0], ",") {
			p = strings.TrimSpace(p)
			if len([]rune(p)) > minTokenRunes {
				parts = append(parts, p)
			}
		}
		if len(parts) >= minShots {
			return parts
		}
		if len(parts) > 0 {
			scenes = parts
		}
	}

	var out []string
	for _, s := range scenes {
		out = append(out, splitOnConnectives(s)...)
	}
	return out
}

func splitOnConnectives(s string) []string {
	parts := []string{s}
	for _, c := range connectives {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, c)...)
		}
		parts = next
	}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len([]rune(p)) > minTokenRunes {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{s}
	}
	return out
}

// equalChunks cuts the original text into n equal rune-length pieces.
func equalChunks(text string, n int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	size := len(runes) / n
	if size == 0 {
		return []string{string(runes)}
	}
	var chunks []string
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// assignTimes distributes duration evenly across the segments. The last
// end is pinned to the exact duration so rounding never leaves a gap.
func assignTimes(scenes []string, duration int) []TimedSegment {
	n := len(scenes)
	if n == 0 {
		return nil
	}
	per := float64(duration) / float64(n)

	out := make([]TimedSegment, n)
	for i, desc := range scenes {
		out[i] = TimedSegment{
			TimeStart:   round2(float64(i) * per),
			TimeEnd:     round2(float64(i+1) * per),
			Description: desc,
		}
	}
	out[n-1].TimeEnd = float64(duration)
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
