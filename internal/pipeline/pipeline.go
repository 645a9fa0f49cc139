// Package pipeline takes an uploaded video from multipart body to stored
// artifacts and an updated metadata record.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kdimtricp/vingest/internal/database"
	"github.com/kdimtricp/vingest/internal/models"
	"github.com/kdimtricp/vingest/internal/staging"
	"github.com/kdimtricp/vingest/internal/storage"
	"github.com/kdimtricp/vingest/internal/transcode"
)

type Stage string

const (
	StageCreating           Stage = "creating"
	StageReceiving          Stage = "receiving"
	StageValidating         Stage = "validating"
	StageTranscoding        Stage = "transcoding"
	StageUploadingVideo     Stage = "uploading_video"
	StageUploadingThumbnail Stage = "uploading_thumbnail"
	StageUpdatingMetadata   Stage = "updating_metadata"
	StageDone               Stage = "done"
)

const (
	fieldVideo     = "video"
	fieldThumbnail = "thumbnail"
	fieldFile      = "file"

	videoContentType     = "video/mp4"
	thumbnailContentType = "image/jpeg"
)

type Options struct {
	Repository    database.Repository
	Blobs         storage.Store
	Staging       *staging.Store
	Runner        *transcode.Runner
	Bucket        string
	MaxUploadSize int64
	Logger        *slog.Logger
}

type Pipeline struct {
	repo    database.Repository
	blobs   storage.Store
	staging *staging.Store
	runner  *transcode.Runner
	bucket  string
	maxSize int64
	logger  *slog.Logger
}

func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:    opts.Repository,
		blobs:   opts.Blobs,
		staging: opts.Staging,
		runner:  opts.Runner,
		bucket:  opts.Bucket,
		maxSize: opts.MaxUploadSize,
		logger:  logger,
	}
}

// UploadResult describes the stored artifacts of a finished upload.
type UploadResult struct {
	ID            string  `json:"id"`
	VideoURL      string  `json:"video_url"`
	ThumbnailURL  string  `json:"thumbnail_url"`
	VideoFile     string  `json:"video_file"`
	// ThumbnailFile is empty when the client supplied the thumbnail.
	ThumbnailFile string  `json:"thumbnail_file,omitempty"`
	Stages        []Stage `json:"-"`
}

// Create inserts a placeholder record whose video URL already points at
// the object the upload will produce.
func (p *Pipeline) Create(ctx context.Context, req models.CreateVideoRequest) (*models.CreateVideoResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &Error{Stage: StageCreating, Kind: KindClient, Message: "title is required"}
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return nil, &Error{Stage: StageCreating, Kind: KindClient, Message: "owner is required"}
	}

	video := models.NewVideo(title, req.Description, owner)
	video.VideoURL = p.blobs.PublicURL(p.bucket, models.VideoObjectPath(video.ID))

	if err := p.repo.InsertVideo(ctx, video); err != nil {
		return nil, &Error{Stage: StageCreating, Kind: kindOf(err), Message: "failed to create video record", Err: err}
	}

	p.logger.Info("video record created", "video_id", video.ID, "owner", owner)
	return &models.CreateVideoResponse{
		ID:        video.ID,
		Title:     video.Title,
		UploadURL: models.UploadPath(video.ID),
	}, nil
}

// Upload processes the body for an existing record: a required "video"
// part and an optional "thumbnail" part, which replaces frame extraction.
func (p *Pipeline) Upload(ctx context.Context, id string, mr *multipart.Reader) (*UploadResult, error) {
	run := p.start(id)

	run.enter(StageReceiving)
	if _, err := p.repo.GetVideo(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, run.fail(KindNotFound, "video not found", err)
		}
		return nil, run.fail(kindOf(err), "video lookup failed", err)
	}

	parts, err := p.receive(mr, fieldVideo, fieldThumbnail)
	if err != nil {
		return nil, run.fail(kindOf(err), "failed to read upload", err)
	}

	run.enter(StageValidating)
	video := parts[fieldVideo]
	if err := validateVideo(video, fieldVideo); err != nil {
		return nil, run.fail(KindClient, err.Error(), nil)
	}
	thumb := parts[fieldThumbnail]
	if thumb != nil {
		if err := validateThumbnail(thumb); err != nil {
			return nil, run.fail(KindClient, err.Error(), nil)
		}
	}

	result, err := p.process(ctx, run, id, video, thumb)
	if err != nil {
		return nil, err
	}

	run.enter(StageUpdatingMetadata)
	patch := models.VideoPatch{VideoURL: &result.VideoURL, ThumbnailURL: &result.ThumbnailURL}
	if err := p.repo.UpdateVideo(ctx, id, patch); err != nil {
		p.logger.Error("metadata update failed after upload",
			"video_id", id, "orphaned", []string{models.VideoObjectPath(id), models.ThumbnailObjectPath(id)}, "error", err)
		return nil, run.fail(kindOf(err), "failed to update video record", err)
	}

	run.enter(StageDone)
	result.Stages = run.stages
	return result, nil
}

// Ingest is the older single-request flow: the body carries a "file" part,
// and the record is inserted only after both uploads succeed.
//
// Deprecated: use Create followed by Upload.
func (p *Pipeline) Ingest(ctx context.Context, mr *multipart.Reader, owner string) (*UploadResult, error) {
	id := uuid.New().String()
	run := p.start(id)
	p.logger.Warn("upload-only ingestion is deprecated, use create then upload", "video_id", id)

	run.enter(StageReceiving)
	parts, err := p.receive(mr, fieldFile)
	if err != nil {
		return nil, run.fail(kindOf(err), "failed to read upload", err)
	}

	run.enter(StageValidating)
	file := parts[fieldFile]
	if err := validateVideo(file, fieldFile); err != nil {
		return nil, run.fail(KindClient, err.Error(), nil)
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, run.fail(KindClient, "owner is required", nil)
	}

	result, err := p.process(ctx, run, id, file, nil)
	if err != nil {
		return nil, err
	}

	run.enter(StageUpdatingMetadata)
	video := models.NewVideo(titleFromFilename(file.filename), nil, owner)
	video.ID = id
	video.VideoURL = result.VideoURL
	video.ThumbnailURL = &result.ThumbnailURL
	if err := p.repo.InsertVideo(ctx, video); err != nil {
		p.logger.Error("metadata insert failed after upload",
			"video_id", id, "orphaned", []string{models.VideoObjectPath(id), models.ThumbnailObjectPath(id)}, "error", err)
		return nil, run.fail(kindOf(err), "failed to create video record", err)
	}

	run.enter(StageDone)
	result.Stages = run.stages
	return result, nil
}

// process runs Transcoding, UploadingVideo and UploadingThumbnail. Staging
// files live only for the duration of this call.
func (p *Pipeline) process(ctx context.Context, run *tracker, id string, video, thumb *part) (*UploadResult, error) {
	run.enter(StageTranscoding)

	scope := p.staging.NewScope()
	defer func() {
		if err := scope.Close(); err != nil {
			p.logger.Warn("staging cleanup failed", "video_id", id, "error", err)
		}
	}()

	videoName, thumbName := transcode.OutputNames(video.filename, id)

	input, err := scope.Acquire("input-*" + inputExt(video.filename))
	if err != nil {
		return nil, run.fail(KindIO, "failed to stage upload", err)
	}
	output, err := scope.Acquire("output-*.mp4")
	if err != nil {
		return nil, run.fail(KindIO, "failed to stage output", err)
	}
	if err := input.Write(video.data); err != nil {
		return nil, run.fail(KindIO, "failed to stage upload", err)
	}

	job := transcode.Job{InputPath: input.Path(), VideoPath: output.Path()}
	var thumbFile *staging.File
	if thumb == nil {
		thumbFile, err = scope.Acquire("thumb-*.jpg")
		if err != nil {
			return nil, run.fail(KindIO, "failed to stage thumbnail", err)
		}
		job.ThumbnailPath = thumbFile.Path()
	}

	if err := p.runner.Transcode(ctx, job); err != nil {
		return nil, run.fail(kindOf(err), "transcoding failed", err)
	}

	videoData, err := output.ReadAll()
	if err != nil {
		return nil, run.fail(KindIO, "failed to read encoded video", err)
	}
	if len(videoData) == 0 {
		return nil, run.fail(KindProcessing, "transcoding failed", transcode.ErrEncodeFailed)
	}

	var thumbData []byte
	if thumb != nil {
		thumbData = thumb.data
	} else {
		thumbData, err = thumbFile.ReadAll()
		if err != nil {
			return nil, run.fail(KindIO, "failed to read thumbnail", err)
		}
		if len(thumbData) == 0 {
			return nil, run.fail(KindProcessing, "transcoding failed", transcode.ErrThumbnailFailed)
		}
	}

	run.enter(StageUploadingVideo)
	videoPath := models.VideoObjectPath(id)
	if err := p.blobs.Upload(ctx, p.bucket, videoPath, videoData, videoContentType); err != nil {
		return nil, run.fail(kindOf(err), "failed to upload video", err)
	}

	run.enter(StageUploadingThumbnail)
	thumbPath := models.ThumbnailObjectPath(id)
	if err := p.blobs.Upload(ctx, p.bucket, thumbPath, thumbData, thumbnailContentType); err != nil {
		p.logger.Error("thumbnail upload failed after video upload", "video_id", id, "orphaned", videoPath, "error", err)
		return nil, run.fail(kindOf(err), "failed to upload thumbnail", err)
	}

	result := &UploadResult{
		ID:           id,
		VideoURL:     p.blobs.PublicURL(p.bucket, videoPath),
		ThumbnailURL: p.blobs.PublicURL(p.bucket, thumbPath),
		VideoFile:    videoName,
	}
	if thumb == nil {
		result.ThumbnailFile = thumbName
	}
	return result, nil
}

// tracker records the stages one request passed through.
type tracker struct {
	id     string
	stages []Stage
	logger *slog.Logger
}

func (p *Pipeline) start(id string) *tracker {
	return &tracker{id: id, logger: p.logger.With("video_id", id)}
}

func (r *tracker) enter(s Stage) {
	r.stages = append(r.stages, s)
	r.logger.Debug("pipeline stage", "stage", s)
}

func (r *tracker) current() Stage {
	if len(r.stages) == 0 {
		return StageReceiving
	}
	return r.stages[len(r.stages)-1]
}

func (r *tracker) fail(kind Kind, message string, err error) *Error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}
	return &Error{Stage: r.current(), Kind: kind, Message: message, Err: err}
}

func titleFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" || title == "." || title == "/" {
		return "video"
	}
	return title
}

func inputExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, `/\*`) {
		return ".bin"
	}
	return ext
}
