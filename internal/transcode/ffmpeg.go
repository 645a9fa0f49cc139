package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Minute
	maxOutputTail  = 2048
)

// FFmpeg runs the ffmpeg binary. Each invocation is bounded by timeout
// and killed when the caller's context is cancelled.
type FFmpeg struct {
	path    string
	timeout time.Duration
}

func NewFFmpeg(binary string, timeout time.Duration) (*FFmpeg, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	slog.Debug("using ffmpeg", "path", path, "timeout", timeout)

	return &FFmpeg{path: path, timeout: timeout}, nil
}

func (f *FFmpeg) Encode(ctx context.Context, inputPath, outputPath string) error {
	return f.run(ctx, OpEncode, encodeArgs(inputPath, outputPath))
}

func (f *FFmpeg) ExtractFrame(ctx context.Context, inputPath, outputPath string, offset time.Duration) error {
	return f.run(ctx, OpThumbnail, frameArgs(inputPath, outputPath, offset))
}

func encodeArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		outputPath,
	}
}

func frameArgs(inputPath, outputPath string, offset time.Duration) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-ss", formatOffset(offset),
		"-vframes", "1",
		"-f", "image2",
		outputPath,
	}
}

// formatOffset renders d as HH:MM:SS.mmm.
func formatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	ms := int(d % time.Second / time.Millisecond)
	if ms == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, f.path, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		slog.Debug("ffmpeg finished", "op", op, "duration", time.Since(start))
		return nil
	}

	tErr := &Error{Op: op, Output: tail(string(output), maxOutputTail), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		tErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		tErr.Err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return tErr
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
