package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kdimtricp/vingest/internal/models"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// SQLRepository stores records through gorm in sqlite or postgres. On
// postgres the counters go through the stored functions from the
// migrations; on sqlite the same logic runs in a transaction.
type SQLRepository struct {
	db *DB
}

func NewSQLRepository(db *DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	var video models.Video
	result := r.db.GORM().WithContext(ctx).First(&video, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, sqlError("get", result.Error)
	}
	return &video, nil
}

func (r *SQLRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	var videos []models.Video
	result := r.db.GORM().WithContext(ctx).Order("created_at DESC").Find(&videos)
	if result.Error != nil {
		return nil, sqlError("list", result.Error)
	}
	return videos, nil
}

func (r *SQLRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	row := *video
	row.Likes, row.Views = 0, 0

	result := r.db.GORM().WithContext(ctx).Create(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrConflict
		}
		return sqlError("insert", result.Error)
	}
	video.CreatedAt = row.CreatedAt
	return nil
}

func (r *SQLRepository) UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) error {
	if patch.IsEmpty() {
		_, err := r.GetVideo(ctx, id)
		return err
	}

	result := r.db.GORM().WithContext(ctx).
		Model(&models.Video{}).
		Where("id = ?", id).
		Updates(patch.Columns())
	if result.Error != nil {
		return sqlError("update", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) DeleteVideo(ctx context.Context, id string) error {
	result := r.db.GORM().WithContext(ctx).Where("id = ?", id).Delete(&models.Video{})
	if result.Error != nil {
		return sqlError("delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) IncrementViews(ctx context.Context, id string) error {
	db := r.db.GORM().WithContext(ctx)

	if r.db.dbType == "postgres" {
		var views int64
		if err := db.Raw("SELECT "+procIncrementViews+"(?)", id).Row().Scan(&views); err != nil {
			return sqlError("increment views", err)
		}
		return nil
	}

	result := db.Model(&models.Video{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if result.Error != nil {
		return sqlError("increment views", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) ToggleLike(ctx context.Context, id, userID string) (*models.LikeState, error) {
	db := r.db.GORM().WithContext(ctx)

	if r.db.dbType == "postgres" {
		var raw string
		if err := db.Raw("SELECT "+procToggleLike+"(?, ?)::text", id, userID).Row().Scan(&raw); err != nil {
			return nil, sqlError("toggle like", err)
		}
		var state models.LikeState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("failed to decode like state: %w", err)
		}
		return &state, nil
	}

	state := &models.LikeState{VideoID: id}
	err := db.Transaction(func(tx *gorm.DB) error {
		var video models.Video
		if err := tx.Select("id").First(&video, "id = ?", id).Error; err != nil {
			return err
		}

		removed := tx.Where("video_id = ? AND user_id = ?", id, userID).Delete(&models.Like{})
		if removed.Error != nil {
			return removed.Error
		}

		videos := tx.Model(&models.Video{}).Where("id = ?", id)
		if removed.RowsAffected > 0 {
			state.Liked = false
			if err := videos.UpdateColumn("likes", gorm.Expr("MAX(likes - 1, 0)")).Error; err != nil {
				return err
			}
		} else {
			state.Liked = true
			if err := tx.Create(&models.Like{VideoID: id, UserID: userID}).Error; err != nil {
				return err
			}
			if err := videos.UpdateColumn("likes", gorm.Expr("likes + 1")).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Video{}).Select("likes").Where("id = ?", id).Scan(&state.Likes).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, sqlError("toggle like", err)
	}
	return state, nil
}

func sqlError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "P0002" {
		return ErrNotFound
	}
	return &UpstreamError{Op: op, Err: err}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
