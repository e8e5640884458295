package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/crosspost-earnings/internal/db"
)

// ErrVideoConflict is returned when a video's ID and its
// (platform, platform_video_id) already belong to two different rows.
var ErrVideoConflict = errors.New("video id and platform video id belong to different records")

// VideoRepository provides data access methods for the Video model.
// It serves the per-creator video sets the reconciliation engine runs on.
type VideoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new repository bound to the given DB connection.
func NewVideoRepository(database *gorm.DB) *VideoRepository {
	return &VideoRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *VideoRepository) WithTx(tx *gorm.DB) *VideoRepository {
	return &VideoRepository{db: tx}
}

// ListByCreator returns every video of a creator across all cycles.
//
// Behavior:
//   - Ordered by posted_at ASC, id ASC so the engine sees a stable input order.
//   - Videos with an unknown posted_at come first.
func (r *VideoRepository) ListByCreator(ctx context.Context, creatorID string) ([]db.Video, error) {
	var videos []db.Video
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("posted_at ASC").
		Order("id ASC").
		Find(&videos).Error
	return videos, err
}

// ListByCreatorAndCycle returns a creator's videos assigned to one cycle.
func (r *VideoRepository) ListByCreatorAndCycle(ctx context.Context, creatorID, cycleID string) ([]db.Video, error) {
	var videos []db.Video
	err := r.db.WithContext(ctx).
		Where("creator_id = ? AND cycle_id = ?", creatorID, cycleID).
		Order("posted_at ASC").
		Order("id ASC").
		Find(&videos).Error
	return videos, err
}

// ListCreatorIDs returns the distinct creators with at least one video in cycleID,
// ordered by creator_id.
func (r *VideoRepository) ListCreatorIDs(ctx context.Context, cycleID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&db.Video{}).
		Where("cycle_id = ?", cycleID).
		Distinct("creator_id").
		Order("creator_id ASC").
		Pluck("creator_id", &ids).Error
	return ids, err
}

// Get loads one video by ID.
func (r *VideoRepository) Get(ctx context.Context, videoID string) (*db.Video, error) {
	var v db.Video
	if err := r.db.WithContext(ctx).First(&v, "id = ?", videoID).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// SetIrrelevant toggles the creator/admin "don't pay me for this" flag.
// Returns gorm.ErrRecordNotFound when the video does not exist.
func (r *VideoRepository) SetIrrelevant(ctx context.Context, videoID string, irrelevant bool) error {
	res := r.db.WithContext(ctx).
		Model(&db.Video{}).
		Where("id = ?", videoID).
		Update("is_irrelevant", irrelevant)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports 0 rows when the value is unchanged; confirm existence.
		if _, err := r.Get(ctx, videoID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEngagement refreshes the counters written by a resync.
func (r *VideoRepository) UpdateEngagement(ctx context.Context, videoID string, views, likes, comments int64) error {
	return r.db.WithContext(ctx).
		Model(&db.Video{}).
		Where("id = ?", videoID).
		Updates(map[string]any{
			"views":    views,
			"likes":    likes,
			"comments": comments,
		}).Error
}

// Upsert inserts a video or, if its (platform, platform_video_id) exists,
// refreshes its engagement, caption and media metadata.
//
// Behavior:
//   - The irrelevant flag and cycle assignment are never overwritten by a resync.
//   - A row is only updated when both its ID and its platform key match.
//     An ID reused under another platform key, or a platform key arriving
//     under another ID, returns ErrVideoConflict and writes nothing.
func (r *VideoRepository) Upsert(ctx context.Context, v *db.Video) error {
	var existing []db.Video
	err := r.db.WithContext(ctx).
		Where("id = ?", v.ID).
		Or("platform = ? AND platform_video_id = ?", v.Platform, v.PlatformVideoID).
		Find(&existing).Error
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.ID != v.ID || e.Platform != v.Platform || e.PlatformVideoID != v.PlatformVideoID {
			return ErrVideoConflict
		}
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "platform"}, {Name: "platform_video_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"caption", "posted_at", "duration_seconds", "thumbnail_hash",
				"views", "likes", "comments", "updated_at",
			}),
		}).
		Create(v).Error
}
