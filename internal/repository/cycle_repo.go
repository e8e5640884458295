package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/db"
)

// ErrNoActiveCycle is returned when no payout cycle is flagged active.
var ErrNoActiveCycle = errors.New("no active payout cycle")

// CycleRepository provides data access for payout cycles.
type CycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository creates a new repository bound to the given DB connection.
func NewCycleRepository(database *gorm.DB) *CycleRepository {
	return &CycleRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *CycleRepository) WithTx(tx *gorm.DB) *CycleRepository {
	return &CycleRepository{db: tx}
}

// GetActive returns the cycle flagged active. If several are flagged,
// the one with the latest start_date wins.
func (r *CycleRepository) GetActive(ctx context.Context) (*db.PayoutCycle, error) {
	var c db.PayoutCycle
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("start_date DESC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveCycle
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Get loads a cycle by ID.
func (r *CycleRepository) Get(ctx context.Context, cycleID string) (*db.PayoutCycle, error) {
	var c db.PayoutCycle
	if err := r.db.WithContext(ctx).First(&c, "id = ?", cycleID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// SetPaidAt persists the frozen flag. A nil paidAt unfreezes the cycle.
func (r *CycleRepository) SetPaidAt(ctx context.Context, cycleID string, paidAt *time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&db.PayoutCycle{}).
		Where("id = ?", cycleID).
		Update("paid_at", paidAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, cycleID); err != nil {
			return err
		}
	}
	return nil
}
