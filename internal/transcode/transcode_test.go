package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"
)

func TestOutputNames(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		wantVideo string
		wantThumb string
	}{
		{
			name:      "plain name",
			filename:  "holiday.mov",
			wantVideo: "holiday-job1.mp4",
			wantThumb: "holiday-job1-thumbnail.jpg",
		},
		{
			name:      "directories stripped",
			filename:  "/home/user/clips/holiday.webm",
			wantVideo: "holiday-job1.mp4",
			wantThumb: "holiday-job1-thumbnail.jpg",
		},
		{
			name:      "windows path",
			filename:  `C:\clips\trip.avi`,
			wantVideo: "trip-job1.mp4",
			wantThumb: "trip-job1-thumbnail.jpg",
		},
		{
			name:      "empty name falls back",
			filename:  "",
			wantVideo: "video-job1.mp4",
			wantThumb: "video-job1-thumbnail.jpg",
		},
		{
			name:      "extension only falls back",
			filename:  ".mp4",
			wantVideo: "video-job1.mp4",
			wantThumb: "video-job1-thumbnail.jpg",
		},
	}

	long := strings.Repeat("a", 240)
	tests = append(tests, struct {
		name      string
		filename  string
		wantVideo string
		wantThumb string
	}{
		name:      "long name is cut",
		filename:  long + ".mov",
		wantVideo: long[:maxBaseNameLen] + "-job1.mp4",
		wantThumb: long[:maxBaseNameLen] + "-job1-thumbnail.jpg",
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, thumb := OutputNames(tt.filename, "job1")
			if video != tt.wantVideo {
				t.Errorf("Expected video %s, got %s", tt.wantVideo, video)
			}
			if thumb != tt.wantThumb {
				t.Errorf("Expected thumbnail %s, got %s", tt.wantThumb, thumb)
			}
		})
	}
}

func TestOutputNames_MultibyteCut(t *testing.T) {
	// 99 ASCII bytes then a 3-byte rune straddling the limit.
	name := strings.Repeat("b", maxBaseNameLen-1) + "日本" + ".mp4"
	video, _ := OutputNames(name, "j")

	base := strings.TrimSuffix(video, "-j.mp4")
	if !utf8.ValidString(base) {
		t.Fatalf("Cut produced invalid UTF-8: %q", base)
	}
	if base != strings.Repeat("b", maxBaseNameLen-1) {
		t.Errorf("Expected cut before the rune, got %q", base)
	}
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{time.Second, "00:00:01"},
		{90 * time.Second, "00:01:30"},
		{time.Hour + 1500*time.Millisecond, "01:00:01.500"},
		{-time.Second, "00:00:00"},
	}

	for _, tt := range tests {
		if got := formatOffset(tt.in); got != tt.want {
			t.Errorf("formatOffset(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEncodeArgs(t *testing.T) {
	args := strings.Join(encodeArgs("in.bin", "out.mp4"), " ")
	for _, want := range []string{"-i in.bin", "-c:v libx264", "-crf 23", "-preset medium", "-c:a aac", "-b:a 128k"} {
		if !strings.Contains(args, want) {
			t.Errorf("Expected %q in %q", want, args)
		}
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Errorf("Expected output path last, got %q", args)
	}

	frame := strings.Join(frameArgs("in.bin", "t.jpg", ThumbnailOffset), " ")
	if !strings.Contains(frame, "-ss 00:00:01 -vframes 1") {
		t.Errorf("Unexpected frame args %q", frame)
	}
}

type stubTranscoder struct {
	encodeErr  error
	thumbErr   error
	delay      time.Duration
	encodes    atomic.Int32
	thumbnails atomic.Int32
}

func (s *stubTranscoder) Encode(ctx context.Context, in, out string) error {
	s.encodes.Add(1)
	time.Sleep(s.delay)
	return s.encodeErr
}

func (s *stubTranscoder) ExtractFrame(ctx context.Context, in, out string, offset time.Duration) error {
	s.thumbnails.Add(1)
	time.Sleep(s.delay)
	return s.thumbErr
}

func TestRunner_Transcode(t *testing.T) {
	encodeFail := &Error{Op: OpEncode, ExitCode: 1}
	thumbFail := &Error{Op: OpThumbnail, ExitCode: 1}

	tests := []struct {
		name       string
		concurrent bool
		job        Job
		encodeErr  error
		thumbErr   error
		wantErr    error
		wantEnc    int32
		wantThumb  int32
	}{
		{
			name:       "concurrent success",
			concurrent: true,
			job:        Job{InputPath: "in", VideoPath: "v", ThumbnailPath: "t"},
			wantEnc:    1,
			wantThumb:  1,
		},
		{
			name:       "encode failure still awaits thumbnail",
			concurrent: true,
			job:        Job{InputPath: "in", VideoPath: "v", ThumbnailPath: "t"},
			encodeErr:  encodeFail,
			wantErr:    ErrEncodeFailed,
			wantEnc:    1,
			wantThumb:  1,
		},
		{
			name:       "encode failure reported before thumbnail failure",
			concurrent: true,
			job:        Job{InputPath: "in", VideoPath: "v", ThumbnailPath: "t"},
			encodeErr:  encodeFail,
			thumbErr:   thumbFail,
			wantErr:    ErrEncodeFailed,
			wantEnc:    1,
			wantThumb:  1,
		},
		{
			name:       "thumbnail failure",
			concurrent: true,
			job:        Job{InputPath: "in", VideoPath: "v", ThumbnailPath: "t"},
			thumbErr:   thumbFail,
			wantErr:    ErrThumbnailFailed,
			wantEnc:    1,
			wantThumb:  1,
		},
		{
			name:       "sequential stops after encode failure",
			concurrent: false,
			job:        Job{InputPath: "in", VideoPath: "v", ThumbnailPath: "t"},
			encodeErr:  encodeFail,
			wantErr:    ErrEncodeFailed,
			wantEnc:    1,
			wantThumb:  0,
		},
		{
			name:       "no thumbnail path skips extraction",
			concurrent: true,
			job:        Job{InputPath: "in", VideoPath: "v"},
			wantEnc:    1,
			wantThumb:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubTranscoder{encodeErr: tt.encodeErr, thumbErr: tt.thumbErr, delay: 10 * time.Millisecond}
			runner := NewRunner(stub, tt.concurrent)

			err := runner.Transcode(t.Context(), tt.job)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if got := stub.encodes.Load(); got != tt.wantEnc {
				t.Errorf("Expected %d encodes, got %d", tt.wantEnc, got)
			}
			if got := stub.thumbnails.Load(); got != tt.wantThumb {
				t.Errorf("Expected %d thumbnail runs, got %d", tt.wantThumb, got)
			}
		})
	}
}

func TestRunner_RunsConcurrently(t *testing.T) {
	stub := &stubTranscoder{delay: 200 * time.Millisecond}
	runner := NewRunner(stub, true)

	start := time.Now()
	if err := runner.Transcode(t.Context(), Job{InputPath: "in", VideoPath: "v", ThumbnailPath: "t"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 390*time.Millisecond {
		t.Errorf("Expected concurrent runs, took %v", elapsed)
	}
}

func writeFakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("Failed to write fake ffmpeg: %v", err)
	}
	return path
}

func TestFFmpeg_Success(t *testing.T) {
	// Writes the arguments into the last argument, which is the output path.
	bin := writeFakeFFmpeg(t, "for last; do :; done\necho \"$@\" > \"$last\"\n")
	ff, err := NewFFmpeg(bin, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create ffmpeg: %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.mp4")
	if err := ff.Encode(t.Context(), "in.bin", out); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Expected output file: %v", err)
	}
	if !strings.Contains(string(data), "-c:v libx264") {
		t.Errorf("Unexpected recorded args: %s", data)
	}
}

func TestFFmpeg_ExitCode(t *testing.T) {
	bin := writeFakeFFmpeg(t, "echo 'Invalid data found when processing input' >&2\nexit 3\n")
	ff, err := NewFFmpeg(bin, time.Minute)
	if err != nil {
		t.Fatalf("Failed to create ffmpeg: %v", err)
	}

	err = ff.ExtractFrame(t.Context(), "in.bin", filepath.Join(t.TempDir(), "t.jpg"), ThumbnailOffset)
	if !errors.Is(err, ErrThumbnailFailed) {
		t.Fatalf("Expected thumbnail failure, got %v", err)
	}
	if errors.Is(err, ErrEncodeFailed) {
		t.Error("Thumbnail failure must not match encode failure")
	}

	var tErr *Error
	if !errors.As(err, &tErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if tErr.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", tErr.ExitCode)
	}
	if !strings.Contains(tErr.Output, "Invalid data") {
		t.Errorf("Expected captured output, got %q", tErr.Output)
	}
}

func TestFFmpeg_Timeout(t *testing.T) {
	bin := writeFakeFFmpeg(t, "exec sleep 5\n")
	ff, err := NewFFmpeg(bin, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create ffmpeg: %v", err)
	}

	start := time.Now()
	err = ff.Encode(t.Context(), "in.bin", "out.mp4")
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Expected encode failure, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Process was not killed on timeout")
	}
}

func TestNewFFmpeg_Missing(t *testing.T) {
	if _, err := NewFFmpeg(filepath.Join(t.TempDir(), "no-ffmpeg"), 0); err == nil {
		t.Error("Expected error for missing binary")
	}
}
