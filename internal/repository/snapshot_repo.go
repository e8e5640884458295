package repository

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/db"
	"github.com/oggyb/crosspost-earnings/internal/engine"
)

// SnapshotRepository stores the frozen per-video pay records of paid cycles.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new repository bound to the given DB connection.
func NewSnapshotRepository(database *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *SnapshotRepository) WithTx(tx *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: tx}
}

// ReplaceForCycle writes a fresh snapshot of a creator's records for a cycle.
//
// Behavior:
//   - Existing records for (cycle, creator) are deleted first, in the same transaction.
//   - Every written row carries the same batch ID and digest.
//   - An empty record set clears the snapshot and returns an empty batch ID.
func (r *SnapshotRepository) ReplaceForCycle(
	ctx context.Context,
	cycleID, creatorID string,
	records []engine.SnapshotRecord,
) (string, error) {
	var batchID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("cycle_id = ? AND creator_id = ?", cycleID, creatorID).
			Delete(&db.CycleSnapshot{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		batchID = uuid.NewString()
		digest := Digest(records)
		rows := make([]db.CycleSnapshot, len(records))
		for i, rec := range records {
			if rec.CycleID != cycleID || rec.CreatorID != creatorID {
				return fmt.Errorf("snapshot record %s belongs to cycle %q creator %q", rec.VideoID, rec.CycleID, rec.CreatorID)
			}
			rows[i] = db.SnapshotFromEngine(rec, batchID, digest)
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return "", err
	}
	return batchID, nil
}

// ListForCycle returns a creator's snapshot records for a cycle, ordered by video_id.
func (r *SnapshotRepository) ListForCycle(ctx context.Context, cycleID, creatorID string) ([]db.CycleSnapshot, error) {
	var rows []db.CycleSnapshot
	err := r.db.WithContext(ctx).
		Where("cycle_id = ? AND creator_id = ?", cycleID, creatorID).
		Order("video_id ASC").
		Find(&rows).Error
	return rows, err
}

// Verify recomputes the digest of the stored records and compares it with
// the digest written at freeze time. An empty snapshot verifies trivially.
func (r *SnapshotRepository) Verify(ctx context.Context, cycleID, creatorID string) (bool, error) {
	rows, err := r.ListForCycle(ctx, cycleID, creatorID)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return true, nil
	}
	records := make([]engine.SnapshotRecord, len(rows))
	for i, row := range rows {
		if row.Digest != rows[0].Digest {
			return false, nil
		}
		records[i] = row.ToEngine()
	}
	return Digest(records) == rows[0].Digest, nil
}

// Digest is a BLAKE2b-256 checksum over the canonical form of records.
// Record order does not matter; amounts are fixed to 4 decimals to match
// the storage precision.
func Digest(records []engine.SnapshotRecord) string {
	sorted := make([]engine.SnapshotRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VideoID < sorted[j].VideoID })

	h, _ := blake2b.New256(nil)
	for _, r := range sorted {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d|%d|%d|%t|%t|%t|%s|%s|%s|%s\n",
			r.CycleID, r.VideoID, r.CreatorID, r.Platform, r.PlatformVideoID,
			r.Views, r.Likes, r.Comments,
			r.IsEligible, r.IsPaired, r.IsWinner,
			r.BasePayPerVideo.StringFixed(4), r.BonusAmount.StringFixed(4),
			r.EarnedBase.StringFixed(4), r.EarnedBonus.StringFixed(4),
		)
	}
	return hex.EncodeToString(h.Sum(nil))
}
