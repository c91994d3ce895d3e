// SPDX-License-Identifier: MIT

package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Duration returns the container duration of a media file in seconds.
func (r Runner) Duration(ctx context.Context, path string) (float64, error) {
	if err := fsExists(path); err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, r.ffprobe(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed (exit %d): %w", cmd.ProcessState.ExitCode(), err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("ffprobe JSON parse failed: %w\nRaw output: %s", err, Truncate(string(out), 500))
	}
	if probe.Format.Duration == "" {
		return 0, fmt.Errorf("no duration in probe output for %s", path)
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probe.Format.Duration, err)
	}
	return d, nil
}
