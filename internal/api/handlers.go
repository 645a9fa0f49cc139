package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/vingest/internal/database"
	"github.com/kdimtricp/vingest/internal/models"
	"github.com/kdimtricp/vingest/internal/pipeline"
	"github.com/kdimtricp/vingest/internal/storage"
)

const (
	userHeader    = "X-User-Id"
	anonymousUser = "anonymous"

	// maxJSONBody bounds the create payload.
	maxJSONBody = 1 << 20
	// multipartSlack leaves room for boundaries and part headers on top of
	// the file size limit.
	multipartSlack = 1 << 20
)

type App struct {
	Pipeline      *pipeline.Pipeline
	Repo          database.Repository
	Blobs         storage.Store
	Bucket        string
	MaxUploadSize int64
	// Media serves locally stored objects; nil for remote blob backends.
	Media http.Handler
}

type errorResponse struct {
	Error string `json:"error"`
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := app.Repo.ListVideos(r.Context())
	if err != nil {
		app.renderError(w, r, "list", err)
		return
	}

	out := make([]models.VideoMetadata, 0, len(videos))
	for i := range videos {
		out = append(out, videos[i].Metadata())
	}
	renderJSON(w, http.StatusOK, out)
}

// GetVideoHandler counts a view and returns the record. A failed view
// increment for an existing video does not fail the read.
func (app *App) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := app.Repo.IncrementViews(r.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			app.renderError(w, r, "get", err)
			return
		}
		slog.Warn("failed to increment views", "video_id", id, "error", err)
	}

	video, err := app.Repo.GetVideo(r.Context(), id)
	if err != nil {
		app.renderError(w, r, "get", err)
		return
	}
	renderJSON(w, http.StatusOK, video.Metadata())
}

func (app *App) CreateVideoHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req models.CreateVideoRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		app.renderError(w, r, "create", &pipeline.Error{
			Stage: pipeline.StageCreating, Kind: pipeline.KindClient, Message: "invalid JSON payload", Err: err,
		})
		return
	}
	if req.Owner == "" {
		req.Owner = r.Header.Get(userHeader)
	}

	resp, err := app.Pipeline.Create(r.Context(), req)
	if err != nil {
		app.renderError(w, r, "create", err)
		return
	}
	renderJSON(w, http.StatusCreated, resp)
}

func (app *App) UploadVideoHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	mr, err := app.multipartReader(w, r)
	if err != nil {
		app.renderError(w, r, "upload", err)
		return
	}

	result, err := app.Pipeline.Upload(r.Context(), id, mr)
	if err != nil {
		app.renderError(w, r, "upload", err)
		return
	}

	slog.Info("video uploaded", "video_id", id, "video_url", result.VideoURL)
	renderJSON(w, http.StatusOK, result)
}

// LegacyUploadHandler serves the upload-only flow that creates the record
// after processing.
func (app *App) LegacyUploadHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Deprecation", "true")
	w.Header().Set("Link", `</videos>; rel="successor-version"`)

	mr, err := app.multipartReader(w, r)
	if err != nil {
		app.renderError(w, r, "ingest", err)
		return
	}

	result, err := app.Pipeline.Ingest(r.Context(), mr, principal(r))
	if err != nil {
		app.renderError(w, r, "ingest", err)
		return
	}

	slog.Info("video ingested", "video_id", result.ID, "video_url", result.VideoURL)
	renderJSON(w, http.StatusOK, result)
}

// StreamVideoHandler resolves the playable URL of a video.
func (app *App) StreamVideoHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	video, err := app.Repo.GetVideo(r.Context(), id)
	if err != nil {
		app.renderError(w, r, "stream", err)
		return
	}

	url := video.VideoURL
	if !strings.HasPrefix(url, "http") {
		url = app.Blobs.PublicURL(app.Bucket, models.VideoObjectPath(id))
	}
	renderJSON(w, http.StatusOK, url)
}

// DeleteVideoHandler removes the record, then both objects. Object removal
// failures are logged and never reach the caller.
func (app *App) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := app.Repo.DeleteVideo(r.Context(), id); err != nil {
		app.renderError(w, r, "delete", err)
		return
	}

	storage.RemoveQuietly(r.Context(), app.Blobs, app.Bucket, models.VideoObjectPath(id))
	storage.RemoveQuietly(r.Context(), app.Blobs, app.Bucket, models.ThumbnailObjectPath(id))

	slog.Info("video deleted", "video_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) LikeVideoHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := app.Repo.ToggleLike(r.Context(), id, principal(r))
	if err != nil {
		app.renderError(w, r, "like", err)
		return
	}
	renderJSON(w, http.StatusOK, state)
}

func (app *App) multipartReader(w http.ResponseWriter, r *http.Request) (*multipart.Reader, error) {
	if app.MaxUploadSize > 0 {
		// Two file fields can be present on upload.
		r.Body = http.MaxBytesReader(w, r.Body, 2*app.MaxUploadSize+multipartSlack)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &pipeline.Error{
			Stage: pipeline.StageReceiving, Kind: pipeline.KindClient, Message: "expected multipart/form-data body", Err: err,
		}
	}
	return mr, nil
}

func principal(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
		return user
	}
	return anonymousUser
}

// renderError maps err to a status code. Client faults log at Info,
// everything else at Error with the failing stage.
func (app *App) renderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	pErr := asPipelineError(err)
	status := pErr.StatusCode()

	attrs := []any{
		"op", op,
		"path", r.URL.Path,
		"stage", pErr.Stage,
		"kind", pErr.Kind,
		"status", status,
		"error", err,
	}
	var upErr *database.UpstreamError
	if errors.As(err, &upErr) {
		attrs = append(attrs, "upstream_status", upErr.StatusCode, "body", upErr.Body)
	}
	var blobErr *storage.UploadError
	if errors.As(err, &blobErr) {
		attrs = append(attrs, "upstream_status", blobErr.StatusCode, "body", blobErr.Body)
	}

	if pErr.ClientFault() {
		slog.Info("request rejected", attrs...)
	} else {
		slog.Error("request failed", attrs...)
	}

	renderJSON(w, status, errorResponse{Error: pErr.Public()})
}

// asPipelineError gives repository errors the same shape as pipeline ones.
func asPipelineError(err error) *pipeline.Error {
	var pErr *pipeline.Error
	if errors.As(err, &pErr) {
		return pErr
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, database.ErrNotFound):
		return &pipeline.Error{Kind: pipeline.KindNotFound, Message: "video not found", Err: err}
	case errors.Is(err, database.ErrConflict):
		return &pipeline.Error{Kind: pipeline.KindClient, Message: "video already exists", Err: err}
	case errors.As(err, &maxErr):
		return &pipeline.Error{Kind: pipeline.KindTooLarge, Message: "request body too large", Err: err}
	}
	return &pipeline.Error{Kind: pipeline.KindUpstream, Message: "metadata store request failed", Err: err}
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
