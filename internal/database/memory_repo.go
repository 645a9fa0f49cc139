package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kdimtricp/vingest/internal/models"
)

// MemoryRepository keeps records in process memory. It is meant for local
// runs and tests; nothing survives a restart.
type MemoryRepository struct {
	mu     sync.Mutex
	videos map[string]*memoryVideo
	likes  map[string]map[string]struct{}
	seq    int64
	now    func() time.Time
}

type memoryVideo struct {
	video models.Video
	seq   int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		videos: make(map[string]*memoryVideo),
		likes:  make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

func (r *MemoryRepository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.videos[id]
	if !ok {
		return nil, ErrNotFound
	}
	v := copyVideo(mv.video)
	return &v, nil
}

func (r *MemoryRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	r.mu.Lock()
	rows := make([]memoryVideo, 0, len(r.videos))
	for _, mv := range r.videos {
		rows = append(rows, memoryVideo{video: copyVideo(mv.video), seq: mv.seq})
	}
	r.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].video.CreatedAt.Equal(rows[j].video.CreatedAt) {
			return rows[i].video.CreatedAt.After(rows[j].video.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	videos := make([]models.Video, 0, len(rows))
	for _, mv := range rows {
		videos = append(videos, mv.video)
	}
	return videos, nil
}

func (r *MemoryRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.videos[video.ID]; exists {
		return ErrConflict
	}

	row := copyVideo(*video)
	row.Likes, row.Views = 0, 0
	row.CreatedAt = r.now().UTC()
	r.seq++
	r.videos[video.ID] = &memoryVideo{video: row, seq: r.seq}

	video.CreatedAt = row.CreatedAt
	return nil
}

func (r *MemoryRepository) UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.videos[id]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(&mv.video)
	return nil
}

func (r *MemoryRepository) DeleteVideo(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.videos[id]; !ok {
		return ErrNotFound
	}
	delete(r.videos, id)
	delete(r.likes, id)
	return nil
}

func (r *MemoryRepository) IncrementViews(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.videos[id]
	if !ok {
		return ErrNotFound
	}
	mv.video.Views++
	return nil
}

func (r *MemoryRepository) ToggleLike(ctx context.Context, id, userID string) (*models.LikeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.videos[id]
	if !ok {
		return nil, ErrNotFound
	}

	users := r.likes[id]
	if users == nil {
		users = make(map[string]struct{})
		r.likes[id] = users
	}

	state := &models.LikeState{VideoID: id}
	if _, liked := users[userID]; liked {
		delete(users, userID)
		if mv.video.Likes > 0 {
			mv.video.Likes--
		}
	} else {
		users[userID] = struct{}{}
		mv.video.Likes++
		state.Liked = true
	}
	state.Likes = mv.video.Likes
	return state, nil
}

func copyVideo(v models.Video) models.Video {
	if v.Description != nil {
		d := *v.Description
		v.Description = &d
	}
	if v.ThumbnailURL != nil {
		t := *v.ThumbnailURL
		v.ThumbnailURL = &t
	}
	return v
}
