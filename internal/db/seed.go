package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the database and populates it with a demo payout setup.
//
// Behavior:
//  1. Clears videos, snapshots, tiers, cycles and settings.
//  2. Writes base pay ($2.50 IG / $1.75 TikTok) and three bonus tiers.
//  3. Creates a paid previous cycle and an active 14-day cycle ending today.
//  4. For 3 creators, posts ~15 uploads each on both platforms: most share a
//     duration, some only a near-identical thumbnail, some are single-platform.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := clearAll(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	now := time.Now().UTC().Truncate(time.Second)
	activeStart := now.Add(-14 * 24 * time.Hour)
	prevStart := activeStart.Add(-14 * 24 * time.Hour)
	paidAt := activeStart.Add(2 * 24 * time.Hour)

	if err := seedSettings(db); err != nil {
		return err
	}

	cycles := []PayoutCycle{
		{ID: "cycle-prev", StartDate: prevStart, EndDate: activeStart, PaidAt: &paidAt},
		{ID: "cycle-active", StartDate: activeStart, EndDate: now, Active: true},
	}
	if err := db.Create(&cycles).Error; err != nil {
		return fmt.Errorf("failed to seed cycles: %w", err)
	}

	count := 0
	for c := 1; c <= 3; c++ {
		creatorID := fmt.Sprintf("creator-%d", c)
		for i := 0; i < 15; i++ {
			// spread uploads over both cycles, a few days before the active start
			posted := prevStart.Add(time.Duration(r.Intn(28*24)) * time.Hour)
			cycleID := "cycle-active"
			if posted.Before(activeStart.Add(-2 * 24 * time.Hour)) {
				cycleID = "cycle-prev"
			}

			duration := float64(10 + r.Intn(50))
			hash := fmt.Sprintf("%016x", r.Uint64())

			igVideo := Video{
				ID:              fmt.Sprintf("%s-ig-%d", creatorID, i),
				CreatorID:       creatorID,
				Platform:        "instagram",
				PlatformVideoID: fmt.Sprintf("IG%d%03d", c, i),
				Caption:         fmt.Sprintf("clip %d by %s", i, creatorID),
				PostedAt:        &posted,
				DurationSeconds: &duration,
				ThumbnailHash:   hash,
				Views:           int64(r.Intn(150_000)),
				Likes:           int64(r.Intn(5_000)),
				Comments:        int64(r.Intn(400)),
				CycleID:         &cycleID,
			}

			ttPosted := posted.Add(time.Duration(r.Intn(20)) * time.Hour)
			ttDuration := duration + float64(r.Intn(2))
			ttVideo := Video{
				ID:              fmt.Sprintf("%s-tt-%d", creatorID, i),
				CreatorID:       creatorID,
				Platform:        "tiktok",
				PlatformVideoID: fmt.Sprintf("TT%d%03d", c, i),
				Caption:         fmt.Sprintf("clip %d #fyp", i),
				PostedAt:        &ttPosted,
				ThumbnailHash:   flipBits(r, hash, r.Intn(8)),
				Views:           int64(r.Intn(150_000)),
				Likes:           int64(r.Intn(5_000)),
				Comments:        int64(r.Intn(400)),
				CycleID:         &cycleID,
			}

			switch i % 5 {
			case 3:
				// thumbnail-only pair: TikTok did not report a duration
			case 4:
				// single-platform upload
				if err := upsertVideo(db, &igVideo); err != nil {
					return err
				}
				count++
				continue
			default:
				ttVideo.DurationSeconds = &ttDuration
			}

			if err := upsertVideo(db, &igVideo); err != nil {
				return err
			}
			if err := upsertVideo(db, &ttVideo); err != nil {
				return err
			}
			count += 2
		}
	}
	log.Printf("Seeded %d videos.", count)

	return nil
}

// SeedMinimalTestData wipes the DB and inserts a tiny deterministic dataset:
//   - settings $2.50 / $1.75, tiers 5k→$5, 30k→$20, 100k→$50
//   - active cycle "cy-active" starting 2025-03-01, no paid cycles
//   - creator "c1": one duration pair (IG 50k views, TT 40k views), one
//     orphan IG post with 1M views, and one pre-cycle pair
func SeedMinimalTestData(db *gorm.DB) error {
	if err := clearAll(db); err != nil {
		return err
	}
	if err := seedSettings(db); err != nil {
		return err
	}

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cycle := PayoutCycle{ID: "cy-active", StartDate: start, EndDate: start.Add(14 * 24 * time.Hour), Active: true}
	if err := db.Create(&cycle).Error; err != nil {
		return err
	}

	at := func(h int) *time.Time { t := start.Add(time.Duration(h) * time.Hour); return &t }
	sec := func(s float64) *float64 { return &s }
	cy := "cy-active"

	videos := []Video{
		{ID: "ig-1", CreatorID: "c1", Platform: "instagram", PlatformVideoID: "IG1", Caption: "pair", PostedAt: at(24), DurationSeconds: sec(30), Views: 50_000, CycleID: &cy},
		{ID: "tt-1", CreatorID: "c1", Platform: "tiktok", PlatformVideoID: "TT1", Caption: "pair tt", PostedAt: at(26), DurationSeconds: sec(31), Views: 40_000, CycleID: &cy},
		{ID: "ig-2", CreatorID: "c1", Platform: "instagram", PlatformVideoID: "IG2", Caption: "solo", PostedAt: at(100), Views: 1_000_000, CycleID: &cy},
		{ID: "ig-0", CreatorID: "c1", Platform: "instagram", PlatformVideoID: "IG0", Caption: "early", PostedAt: at(-5), DurationSeconds: sec(12), Views: 10, CycleID: &cy},
		{ID: "tt-0", CreatorID: "c1", Platform: "tiktok", PlatformVideoID: "TT0", Caption: "early tt", PostedAt: at(-4), DurationSeconds: sec(12), Views: 20, CycleID: &cy},
	}
	return db.Create(&videos).Error
}

func clearAll(db *gorm.DB) error {
	for _, table := range []string{"cycle_snapshots", "videos", "bonus_tiers", "payout_cycles", "payout_settings"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func seedSettings(db *gorm.DB) error {
	settings := PayoutSettings{
		ID:               1,
		InstagramBasePay: decimal.RequireFromString("2.50"),
		TikTokBasePay:    decimal.RequireFromString("1.75"),
	}
	if err := db.Create(&settings).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	tiers := []BonusTier{
		{ViewThreshold: 5_000, BonusAmount: decimal.NewFromInt(5)},
		{ViewThreshold: 30_000, BonusAmount: decimal.NewFromInt(20)},
		{ViewThreshold: 100_000, BonusAmount: decimal.NewFromInt(50)},
	}
	if err := db.Create(&tiers).Error; err != nil {
		return fmt.Errorf("failed to seed tiers: %w", err)
	}
	return nil
}

func upsertVideo(db *gorm.DB, v *Video) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "platform"}, {Name: "platform_video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"views", "likes", "comments", "updated_at"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("failed to seed video: %w", err)
	}
	return nil
}

// flipBits returns hash with n random bits inverted.
func flipBits(r *rand.Rand, hash string, n int) string {
	var x uint64
	_, _ = fmt.Sscanf(hash, "%x", &x)
	for i := 0; i < n; i++ {
		x ^= 1 << uint(r.Intn(64))
	}
	return fmt.Sprintf("%016x", x)
}
