// Package transcode re-encodes uploaded videos and grabs a poster frame
// by shelling out to ffmpeg.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	OpEncode    = "encode"
	OpThumbnail = "thumbnail"

	// ThumbnailOffset is where the poster frame is taken from.
	ThumbnailOffset = time.Second

	defaultBaseName = "video"
	maxBaseNameLen  = 100
)

var (
	ErrEncodeFailed    = errors.New("video encode failed")
	ErrThumbnailFailed = errors.New("thumbnail extraction failed")
)

// Transcoder runs the two media operations a job needs.
type Transcoder interface {
	Encode(ctx context.Context, inputPath, outputPath string) error
	ExtractFrame(ctx context.Context, inputPath, outputPath string, offset time.Duration) error
}

// Error describes a failed ffmpeg invocation. Output holds the tail of
// the process output.
type Error struct {
	Op       string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += ", output: " + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrEncodeFailed:
		return e.Op == OpEncode
	case ErrThumbnailFailed:
		return e.Op == OpThumbnail
	}
	return false
}

// OutputNames derives the artifact names for a job from the uploaded file
// name: "{base}-{id}.mp4" and "{base}-{id}-thumbnail.jpg". The base is cut
// to at most maxBaseNameLen bytes.
func OutputNames(filename, jobID string) (video, thumbnail string) {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" {
		base = defaultBaseName
	}
	base = truncate(base, maxBaseNameLen)
	return fmt.Sprintf("%s-%s.mp4", base, jobID), fmt.Sprintf("%s-%s-thumbnail.jpg", base, jobID)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
