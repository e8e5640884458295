package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Video is one platform occurrence of a creator upload, as written by the sync jobs.
//
// Indexes:
//   - idx_platform_video(platform, platform_video_id) UNIQUE
//     One row per platform post; resync upserts on it.
//   - idx_creator_cycle(creator_id, cycle_id)
//     Serves the per-creator reads that feed the reconciliation engine.
//
// PostedAt is nullable: a post with an unknown timestamp is kept but never paired.
type Video struct {
	ID              string     `gorm:"primaryKey;size:64"`
	CreatorID       string     `gorm:"size:64;not null;index:idx_creator_cycle,priority:1"`
	Platform        string     `gorm:"size:16;not null;uniqueIndex:idx_platform_video,priority:1"`
	PlatformVideoID string     `gorm:"size:128;not null;uniqueIndex:idx_platform_video,priority:2"`
	Caption         string     `gorm:"type:text"`
	PostedAt        *time.Time `gorm:"index"`
	DurationSeconds *float64
	ThumbnailHash   string    `gorm:"size:16"`
	Views           int64     `gorm:"not null;default:0"`
	Likes           int64     `gorm:"not null;default:0"`
	Comments        int64     `gorm:"not null;default:0"`
	IsIrrelevant    bool      `gorm:"not null;default:false"`
	CycleID         *string   `gorm:"size:64;index:idx_creator_cycle,priority:2"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// PayoutSettings is a singleton row (ID=1) with the per-platform base pay.
type PayoutSettings struct {
	ID               uint            `gorm:"primaryKey"`
	InstagramBasePay decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TikTokBasePay    decimal.Decimal `gorm:"column:tiktok_base_pay;type:decimal(20,4);not null"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime"`
}

// BonusTier maps a view threshold to a flat bonus. Thresholds are unique.
type BonusTier struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	ViewThreshold int64           `gorm:"not null;uniqueIndex"`
	BonusAmount   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
}

// PayoutCycle is a payout period. PaidAt != nil means the cycle is frozen.
// Exactly one cycle is expected to carry Active=true.
type PayoutCycle struct {
	ID        string    `gorm:"primaryKey;size:64"`
	StartDate time.Time `gorm:"not null"`
	EndDate   time.Time `gorm:"not null"`
	PaidAt    *time.Time
	Active    bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// CycleSnapshot is the frozen pay record of one video in a paid cycle.
//
// Composite unique: (CycleID, VideoID), one record per video per cycle.
// BatchID groups the records written by one freeze; Digest is the batch
// checksum so auditors can detect edits after the fact.
type CycleSnapshot struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement"`
	BatchID         string          `gorm:"size:36;not null;index"`
	CycleID         string          `gorm:"size:64;not null;uniqueIndex:idx_cycle_video,priority:1;index:idx_cycle_creator,priority:1"`
	VideoID         string          `gorm:"size:64;not null;uniqueIndex:idx_cycle_video,priority:2"`
	CreatorID       string          `gorm:"size:64;not null;index:idx_cycle_creator,priority:2"`
	Platform        string          `gorm:"size:16;not null"`
	PlatformVideoID string          `gorm:"size:128;not null"`
	Views           int64           `gorm:"not null"`
	Likes           int64           `gorm:"not null"`
	Comments        int64           `gorm:"not null"`
	IsEligible      bool            `gorm:"not null"`
	IsPaired        bool            `gorm:"not null"`
	IsWinner        bool            `gorm:"not null"`
	BasePayPerVideo decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	BonusAmount     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	EarnedBase      decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	EarnedBonus     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Digest          string          `gorm:"size:64;not null"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{&Video{}, &PayoutSettings{}, &BonusTier{}, &PayoutCycle{}, &CycleSnapshot{}}
}
