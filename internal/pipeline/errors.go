package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kdimtricp/vingest/internal/database"
	"github.com/kdimtricp/vingest/internal/staging"
	"github.com/kdimtricp/vingest/internal/storage"
	"github.com/kdimtricp/vingest/internal/transcode"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	KindClient Kind = iota
	KindTooLarge
	KindNotFound
	KindUpstream
	KindProcessing
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindTooLarge:
		return "too_large"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindProcessing:
		return "processing"
	case KindIO:
		return "io"
	}
	return "unknown"
}

// Error is a pipeline failure tagged with the stage it happened in.
type Error struct {
	Stage   Stage
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindClient:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// ClientFault reports whether the request itself was at fault.
func (e *Error) ClientFault() bool {
	return e.StatusCode() < http.StatusInternalServerError
}

// Public is the message safe to show the caller. Server-side failures
// keep the upstream detail but never credentials, which no error carries.
func (e *Error) Public() string {
	if e.ClientFault() || e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func kindOf(err error) Kind {
	var (
		pErr      *Error
		stageErr  *staging.Error
		uploadErr *storage.UploadError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &pErr):
		return pErr.Kind
	case errors.As(err, &maxErr):
		return KindTooLarge
	case errors.Is(err, database.ErrNotFound):
		return KindNotFound
	case errors.Is(err, database.ErrConflict):
		return KindClient
	case errors.Is(err, transcode.ErrEncodeFailed), errors.Is(err, transcode.ErrThumbnailFailed):
		return KindProcessing
	case errors.As(err, &stageErr):
		return KindIO
	case errors.As(err, &uploadErr):
		return KindUpstream
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindIO
	}
	return KindUpstream
}
