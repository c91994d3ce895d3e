// SPDX-License-Identifier: MIT

// Package ffmpeg runs the media encoder CLI for the post-production
// operations: concat, audio overlay and audio mix.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Amore-GG/BE/internal/log"
)

const maxStderr = 4 * 1024

// Runner invokes ffmpeg/ffprobe binaries. The zero value uses the
// binaries from PATH.
type Runner struct {
	FFmpegBin  string
	FFprobeBin string
}

func (r Runner) ffmpeg() string {
	if r.FFmpegBin != "" {
		return r.FFmpegBin
	}
	return "ffmpeg"
}

func (r Runner) ffprobe() string {
	if r.FFprobeBin != "" {
		return r.FFprobeBin
	}
	return "ffprobe"
}

// concatCopyArgs builds the stream-copy concat invocation.
func concatCopyArgs(listPath, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}
}

// concatReencodeArgs builds the full re-encode fallback used when
// stream copy fails on codec drift between inputs.
func concatReencodeArgs(listPath, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		output,
	}
}

// mergeAudioVideoArgs maps the video of input 0 and the audio of input 1.
func mergeAudioVideoArgs(video, audio, output string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		output,
	}
}

// mixAudioArgs overlays extra audio onto a video's existing track via an
// amix filter graph. The video bitstream is copied.
func mixAudioArgs(video, audio string, vGain, aGain float64, output string) []string {
	filter := fmt.Sprintf(
		"[0:a]volume=%g[a0];[1:a]volume=%g[a1];[a0][a1]amix=inputs=2:duration=first:dropout_transition=2[aout]",
		vGain, aGain)
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		output,
	}
}

// concatListFile writes the ffconcat list for paths and returns its path.
func concatListFile(dir string, paths []string) (string, error) {
	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve concat input: %w", err)
		}
		// Single quotes in the path would break the list syntax.
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	list := filepath.Join(dir, fmt.Sprintf("concat_%s.txt", uuid.NewString()[:8]))
	if err := os.WriteFile(list, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return list, nil
}

// Concat joins two or more videos into output. Stream copy is attempted
// first; any nonzero exit triggers a full re-encode retry.
func (r Runner) Concat(ctx context.Context, paths []string, output string) error {
	if len(paths) < 2 {
		return fmt.Errorf("concat needs at least 2 inputs, got %d", len(paths))
	}
	for _, p := range paths {
		if err := fsExists(p); err != nil {
			return err
		}
	}

	list, err := concatListFile(filepath.Dir(output), paths)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	if err := r.run(ctx, concatCopyArgs(list, output)); err != nil {
		lg := log.WithComponent("ffmpeg")
		lg.Warn().Err(err).
			Msg("stream-copy concat failed, retrying with re-encode")
		if err := r.run(ctx, concatReencodeArgs(list, output)); err != nil {
			return fmt.Errorf("concat re-encode: %w", err)
		}
	}
	return nil
}

// MergeAudioVideo replaces the audio track of video with audio, trimming
// to the shorter stream.
func (r Runner) MergeAudioVideo(ctx context.Context, video, audio, output string) error {
	for _, p := range []string{video, audio} {
		if err := fsExists(p); err != nil {
			return err
		}
	}
	if err := r.run(ctx, mergeAudioVideoArgs(video, audio, output)); err != nil {
		return fmt.Errorf("merge audio/video: %w", err)
	}
	return nil
}

// MixAudio mixes extra audio into a video's existing audio track with
// per-input gains.
func (r Runner) MixAudio(ctx context.Context, video, audio string, vGain, aGain float64, output string) error {
	for _, p := range []string{video, audio} {
		if err := fsExists(p); err != nil {
			return err
		}
	}
	if err := r.run(ctx, mixAudioArgs(video, audio, vGain, aGain, output)); err != nil {
		return fmt.Errorf("mix audio: %w", err)
	}
	return nil
}

func (r Runner) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.ffmpeg(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	lg := log.WithComponent("ffmpeg")
	lg.Debug().Strs("args", args).Msg("encoder invocation")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("encoder cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("encoder exit %d: %s", cmd.ProcessState.ExitCode(),
			Truncate(stderr.String(), maxStderr))
	}
	return nil
}

func fsExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("input not found: %s", path)
	}
	return nil
}

// Truncate caps s for error payloads and logs.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
