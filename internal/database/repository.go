package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/kdimtricp/vingest/internal/models"
)

const (
	videosTable = "videos"

	procIncrementViews = "increment_video_views"
	procToggleLike     = "toggle_video_like"
)

var (
	ErrNotFound = errors.New("video not found")
	ErrConflict = errors.New("video already exists")
)

// UpstreamError is a metadata store failure other than a missing row.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("metadata %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Repository is the metadata store for video records. Likes and views
// only change through IncrementViews and ToggleLike, both of which are
// atomic in every implementation.
type Repository interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ListVideos(ctx context.Context) ([]models.Video, error)
	InsertVideo(ctx context.Context, video *models.Video) error
	UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) error
	DeleteVideo(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, id, userID string) (*models.LikeState, error)
}
