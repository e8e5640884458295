package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/crosspost-earnings/internal/db"
)

const settingsRowID = 1

// ErrSettingsMissing is returned when the payout settings row was never saved.
var ErrSettingsMissing = errors.New("payout settings are not configured")

// SettingsRepository reads and writes base pay rates and bonus tiers.
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository creates a new repository bound to the given DB connection.
func NewSettingsRepository(database *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: database}
}

// WithTx returns a copy bound to tx.
func (r *SettingsRepository) WithTx(tx *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: tx}
}

// GetSettings returns the singleton settings row.
// Returns ErrSettingsMissing if settings were never saved.
func (r *SettingsRepository) GetSettings(ctx context.Context) (*db.PayoutSettings, error) {
	var s db.PayoutSettings
	err := r.db.WithContext(ctx).First(&s, settingsRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsMissing
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings creates or overwrites the singleton settings row.
func (r *SettingsRepository) SaveSettings(ctx context.Context, s db.PayoutSettings) error {
	s.ID = settingsRowID
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"instagram_base_pay", "tiktok_base_pay", "updated_at"}),
		}).
		Create(&s).Error
}

// ListTiers returns all bonus tiers ordered by view_threshold ASC.
func (r *SettingsRepository) ListTiers(ctx context.Context) ([]db.BonusTier, error) {
	var tiers []db.BonusTier
	err := r.db.WithContext(ctx).Order("view_threshold ASC").Find(&tiers).Error
	return tiers, err
}

// ReplaceTiers swaps the whole tier table in one transaction.
func (r *SettingsRepository) ReplaceTiers(ctx context.Context, tiers []db.BonusTier) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&db.BonusTier{}).Error; err != nil {
			return err
		}
		if len(tiers) == 0 {
			return nil
		}
		rows := make([]db.BonusTier, len(tiers))
		for i, t := range tiers {
			rows[i] = db.BonusTier{ViewThreshold: t.ViewThreshold, BonusAmount: t.BonusAmount}
		}
		return tx.Create(&rows).Error
	})
}
