package transcode

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job names the staging files for one transcode. An empty ThumbnailPath
// skips frame extraction.
type Job struct {
	InputPath     string
	VideoPath     string
	ThumbnailPath string
}

// Runner drives a Transcoder for a job.
type Runner struct {
	transcoder Transcoder
	concurrent bool
}

func NewRunner(t Transcoder, concurrent bool) *Runner {
	return &Runner{transcoder: t, concurrent: concurrent}
}

// Transcode runs the encode and the frame extraction. When both are
// attempted both are awaited; a failing encode is reported ahead of a
// failing thumbnail.
func (r *Runner) Transcode(ctx context.Context, job Job) error {
	start := time.Now()

	var encodeErr, thumbErr error
	encode := func() error {
		encodeErr = r.transcoder.Encode(ctx, job.InputPath, job.VideoPath)
		return encodeErr
	}
	thumbnail := func() error {
		thumbErr = r.transcoder.ExtractFrame(ctx, job.InputPath, job.ThumbnailPath, ThumbnailOffset)
		return thumbErr
	}

	switch {
	case job.ThumbnailPath == "":
		_ = encode()
	case r.concurrent:
		// No shared cancellation: one step failing must not kill the other.
		var g errgroup.Group
		g.Go(encode)
		g.Go(thumbnail)
		_ = g.Wait()
	default:
		if encode() == nil {
			_ = thumbnail()
		}
	}

	if encodeErr != nil {
		return encodeErr
	}
	if thumbErr != nil {
		return thumbErr
	}

	slog.Debug("transcode finished", "input", job.InputPath, "duration", time.Since(start))
	return nil
}
