package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/roster-gateway/internal/models"
)

const mediaColumns = `id, location, group_name, lesson_date, time_slot, handle, content_hash, size_bytes, kind, uploaded_by, created_at`

const mediaKeyClause = `location = ? AND group_name = ? AND lesson_date = ? AND time_slot = ?`

// MediaRepository indexes uploaded lesson media by lesson occurrence.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository constructs the repository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

func mediaKeyArgs(key models.MediaKey) []interface{} {
	return []interface{}{key.Location, key.Group, key.LessonDate, key.TimeSlot}
}

// Add records a blob and returns its id.
func (r *MediaRepository) Add(ctx context.Context, item *models.MediaItem) (int64, error) {
	query := r.db.Rebind(`INSERT INTO media_items
	(location, group_name, lesson_date, time_slot, handle, content_hash, size_bytes, kind, uploaded_by)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		item.Location, item.Group, item.LessonDate, item.TimeSlot,
		item.Handle, item.ContentHash, item.SizeBytes, string(item.Kind), item.UploadedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add media item: %w", err)
	}
	item.ID = id
	return id, nil
}

// Count returns how many blobs the lesson has.
func (r *MediaRepository) Count(ctx context.Context, key models.MediaKey) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM media_items WHERE ` + mediaKeyClause)
	var n int
	if err := r.db.GetContext(ctx, &n, query, mediaKeyArgs(key)...); err != nil {
		return 0, fmt.Errorf("count media items: %w", err)
	}
	return n, nil
}

// List returns the lesson's blobs in upload order.
func (r *MediaRepository) List(ctx context.Context, key models.MediaKey) ([]models.MediaItem, error) {
	query := r.db.Rebind(`SELECT ` + mediaColumns + ` FROM media_items WHERE ` + mediaKeyClause + ` ORDER BY id`)
	var items []models.MediaItem
	if err := r.db.SelectContext(ctx, &items, query, mediaKeyArgs(key)...); err != nil {
		return nil, fmt.Errorf("list media items: %w", err)
	}
	return items, nil
}
