package database

import (
	"context"
	"errors"
	"net/http"

	"github.com/kdimtricp/vingest/internal/models"
	"github.com/kdimtricp/vingest/internal/postgrest"
)

// RESTRepository keeps records in a PostgREST-fronted table.
type RESTRepository struct {
	client *postgrest.Client
}

func NewRESTRepository(client *postgrest.Client) *RESTRepository {
	return &RESTRepository{client: client}
}

// videoRow is the insert payload. created_at, likes and views are left to
// the store's defaults.
type videoRow struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	VideoURL     string  `json:"video_url"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	Owner        string  `json:"owner"`
}

func (r *RESTRepository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	if err := r.client.GetByColumn(ctx, videosTable, "id", id, &video); err != nil {
		return nil, restError("get", err)
	}
	return &video, nil
}

func (r *RESTRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	var videos []models.Video
	if err := r.client.ListOrdered(ctx, videosTable, "created_at.desc", &videos); err != nil {
		return nil, restError("list", err)
	}
	return videos, nil
}

func (r *RESTRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	row := videoRow{
		ID:           video.ID,
		Title:        video.Title,
		Description:  video.Description,
		VideoURL:     video.VideoURL,
		ThumbnailURL: video.ThumbnailURL,
		Owner:        video.Owner,
	}
	if err := r.client.Insert(ctx, videosTable, row); err != nil {
		return restError("insert", err)
	}
	return nil
}

func (r *RESTRepository) UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) error {
	if patch.IsEmpty() {
		_, err := r.GetVideo(ctx, id)
		return err
	}
	if err := r.client.Update(ctx, videosTable, "id", id, patch); err != nil {
		return restError("update", err)
	}
	return nil
}

func (r *RESTRepository) DeleteVideo(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, videosTable, "id", id); err != nil {
		return restError("delete", err)
	}
	return nil
}

func (r *RESTRepository) IncrementViews(ctx context.Context, id string) error {
	params := map[string]string{"p_video_id": id}
	if err := r.client.CallProcedure(ctx, procIncrementViews, params, nil); err != nil {
		return restError("increment views", err)
	}
	return nil
}

func (r *RESTRepository) ToggleLike(ctx context.Context, id, userID string) (*models.LikeState, error) {
	params := map[string]string{"p_video_id": id, "p_user_id": userID}

	var state models.LikeState
	if err := r.client.CallProcedure(ctx, procToggleLike, params, &state); err != nil {
		return nil, restError("toggle like", err)
	}
	return &state, nil
}

func restError(op string, err error) error {
	if errors.Is(err, postgrest.ErrNotFound) {
		return ErrNotFound
	}

	var pgErr *postgrest.Error
	if errors.As(err, &pgErr) {
		if pgErr.StatusCode == http.StatusConflict {
			return ErrConflict
		}
		return &UpstreamError{Op: op, StatusCode: pgErr.StatusCode, Body: pgErr.Body, Err: err}
	}
	return &UpstreamError{Op: op, Err: err}
}
