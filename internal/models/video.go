package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Video is the persisted metadata record for one uploaded video.
// Likes and Views are only ever changed through the repository's
// increment procedures.
type Video struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Title        string    `json:"title" gorm:"not null"`
	Description  *string   `json:"description"`
	VideoURL     string    `json:"video_url" gorm:"not null"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	Owner        string    `json:"owner" gorm:"not null"`
	Likes        int64     `json:"likes" gorm:"not null;default:0"`
	Views        int64     `json:"views" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Video) TableName() string {
	return "videos"
}

// NewVideo builds a placeholder record with a fresh id. VideoURL is filled
// by the caller once the object location is known.
func NewVideo(title string, description *string, owner string) *Video {
	return &Video{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Owner:       owner,
	}
}

// Like is one (video, user) pair in the like set.
type Like struct {
	VideoID   string    `json:"video_id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Like) TableName() string {
	return "video_likes"
}

// LikeState is the result of toggling a like.
type LikeState struct {
	VideoID string `json:"video_id"`
	Liked   bool   `json:"liked"`
	Likes   int64  `json:"likes"`
}

// VideoPatch lists the columns an update may touch. Nil fields are left alone.
type VideoPatch struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	VideoURL     *string `json:"video_url,omitempty"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
}

// Columns returns the patch as a column map, skipping unset fields.
func (p VideoPatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.VideoURL != nil {
		cols["video_url"] = *p.VideoURL
	}
	if p.ThumbnailURL != nil {
		cols["thumbnail_url"] = *p.ThumbnailURL
	}
	return cols
}

func (p VideoPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Apply copies the set fields of p onto v.
func (p VideoPatch) Apply(v *Video) {
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		v.Description = &d
	}
	if p.VideoURL != nil {
		v.VideoURL = *p.VideoURL
	}
	if p.ThumbnailURL != nil {
		t := *p.ThumbnailURL
		v.ThumbnailURL = &t
	}
}

type CreateVideoRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Owner       string  `json:"owner"`
}

type CreateVideoResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UploadURL string `json:"upload_url"`
}

// VideoMetadata is the public view of a record returned by list and get.
type VideoMetadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description"`
	Owner        string    `json:"owner"`
	StreamURL    string    `json:"stream_url"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	Likes        int64     `json:"likes"`
	Views        int64     `json:"views"`
	CreatedAt    time.Time `json:"created_at"`
}

func (v *Video) Metadata() VideoMetadata {
	return VideoMetadata{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		Owner:        v.Owner,
		StreamURL:    StreamPath(v.ID),
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		Likes:        v.Likes,
		Views:        v.Views,
		CreatedAt:    v.CreatedAt,
	}
}

// VideoObjectPath and ThumbnailObjectPath are the only object locations a
// video id maps to.
func VideoObjectPath(id string) string {
	return fmt.Sprintf("videos/%s.mp4", id)
}

func ThumbnailObjectPath(id string) string {
	return fmt.Sprintf("thumbnails/%s.jpg", id)
}

func UploadPath(id string) string {
	return fmt.Sprintf("/videos/%s/upload", id)
}

func StreamPath(id string) string {
	return fmt.Sprintf("/videos/%s/stream", id)
}
