package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/db"
	"github.com/oggyb/crosspost-earnings/internal/engine"
	"github.com/oggyb/crosspost-earnings/internal/repository"
)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	require.NoError(t, err)
	// one connection, one in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

var cycleStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func video(id, creator, platform string, hours int, cycleID string) *db.Video {
	posted := cycleStart.Add(time.Duration(hours) * time.Hour)
	v := &db.Video{
		ID:              id,
		CreatorID:       creator,
		Platform:        platform,
		PlatformVideoID: "P-" + id,
		PostedAt:        &posted,
	}
	if cycleID != "" {
		v.CycleID = &cycleID
	}
	return v
}

func TestVideoUpsertKeepsFlags(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewVideoRepository(setupTestDB(t))

	v := video("ig-1", "c1", "instagram", 1, "cy")
	v.Views = 100
	require.NoError(t, repo.Upsert(ctx, v))
	require.NoError(t, repo.SetIrrelevant(ctx, "ig-1", true))

	resync := video("ig-1", "c1", "instagram", 1, "other")
	resync.Views = 500
	resync.Caption = "new caption"
	require.NoError(t, repo.Upsert(ctx, resync))

	got, err := repo.Get(ctx, "ig-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Views)
	assert.Equal(t, "new caption", got.Caption)
	assert.True(t, got.IsIrrelevant)
	require.NotNil(t, got.CycleID)
	assert.Equal(t, "cy", *got.CycleID)
}

func TestVideoUpsertRejectsDuplicatePlatformID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewVideoRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, video("a", "c1", "tiktok", 1, "")))
	dup := video("b", "c1", "tiktok", 1, "")
	dup.PlatformVideoID = "P-a"
	dup.Views = 99
	assert.ErrorIs(t, repo.Upsert(ctx, dup), repository.ErrVideoConflict)

	_, err := repo.Get(ctx, "b")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, got.Views)
}

func TestVideoUpsertRejectsReusedID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewVideoRepository(setupTestDB(t))

	require.NoError(t, repo.Upsert(ctx, video("a", "c1", "tiktok", 1, "")))
	moved := video("a", "c1", "instagram", 1, "")
	moved.PlatformVideoID = "IG-other"
	assert.ErrorIs(t, repo.Upsert(ctx, moved), repository.ErrVideoConflict)

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "tiktok", got.Platform)
	assert.Equal(t, "P-a", got.PlatformVideoID)
}

func TestVideoListings(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewVideoRepository(setupTestDB(t))

	for _, v := range []*db.Video{
		video("v3", "c1", "instagram", 30, "cy"),
		video("v1", "c1", "tiktok", 10, "cy"),
		video("v2", "c1", "instagram", 20, "old"),
		video("v4", "c2", "instagram", 5, "cy"),
		video("v5", "c3", "instagram", 5, ""),
	} {
		require.NoError(t, repo.Upsert(ctx, v))
	}

	all, err := repo.ListByCreator(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"v1", "v2", "v3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	inCycle, err := repo.ListByCreatorAndCycle(ctx, "c1", "cy")
	require.NoError(t, err)
	assert.Len(t, inCycle, 2)

	creators, err := repo.ListCreatorIDs(ctx, "cy")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, creators)
}

func TestVideoSetIrrelevantAndEngagement(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewVideoRepository(setupTestDB(t))
	require.NoError(t, repo.Upsert(ctx, video("v1", "c1", "instagram", 1, "")))

	// setting the same value twice is not an error
	require.NoError(t, repo.SetIrrelevant(ctx, "v1", false))
	assert.ErrorIs(t, repo.SetIrrelevant(ctx, "missing", true), gorm.ErrRecordNotFound)

	require.NoError(t, repo.UpdateEngagement(ctx, "v1", 10, 2, 1))
	got, err := repo.Get(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, [3]int64{10, 2, 1}, [3]int64{got.Views, got.Likes, got.Comments})
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSettingsRepository(setupTestDB(t))

	_, err := repo.GetSettings(ctx)
	assert.ErrorIs(t, err, repository.ErrSettingsMissing)

	require.NoError(t, repo.SaveSettings(ctx, db.PayoutSettings{
		InstagramBasePay: decimal.RequireFromString("2.50"),
		TikTokBasePay:    decimal.RequireFromString("1.75"),
	}))
	require.NoError(t, repo.SaveSettings(ctx, db.PayoutSettings{
		InstagramBasePay: decimal.RequireFromString("3.00"),
		TikTokBasePay:    decimal.RequireFromString("1.75"),
	}))

	s, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, s.InstagramBasePay.Equal(decimal.RequireFromString("3")))
	assert.True(t, s.TikTokBasePay.Equal(decimal.RequireFromString("1.75")))

	require.NoError(t, repo.ReplaceTiers(ctx, []db.BonusTier{
		{ViewThreshold: 30_000, BonusAmount: decimal.NewFromInt(20)},
		{ViewThreshold: 5_000, BonusAmount: decimal.NewFromInt(5)},
	}))
	require.NoError(t, repo.ReplaceTiers(ctx, []db.BonusTier{
		{ViewThreshold: 100_000, BonusAmount: decimal.NewFromInt(50)},
		{ViewThreshold: 5_000, BonusAmount: decimal.NewFromInt(5)},
	}))

	tiers, err := repo.ListTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, int64(5_000), tiers[0].ViewThreshold)
	assert.Equal(t, int64(100_000), tiers[1].ViewThreshold)
}

func TestCycleRepository(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	repo := repository.NewCycleRepository(database)

	_, err := repo.GetActive(ctx)
	assert.ErrorIs(t, err, repository.ErrNoActiveCycle)

	// cycles are provisioned by the admin tooling; insert them directly
	require.NoError(t, database.Create(&db.PayoutCycle{ID: "old", StartDate: cycleStart.AddDate(0, -1, 0), EndDate: cycleStart, Active: true}).Error)
	require.NoError(t, database.Create(&db.PayoutCycle{ID: "new", StartDate: cycleStart, EndDate: cycleStart.AddDate(0, 0, 14), Active: true}).Error)

	active, err := repo.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", active.ID)

	paidAt := cycleStart.Add(time.Hour)
	require.NoError(t, repo.SetPaidAt(ctx, "new", &paidAt))
	got, err := repo.Get(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
	assert.True(t, got.ToEngine().Frozen())

	require.NoError(t, repo.SetPaidAt(ctx, "new", nil))
	got, err = repo.Get(ctx, "new")
	require.NoError(t, err)
	assert.Nil(t, got.PaidAt)

	assert.ErrorIs(t, repo.SetPaidAt(ctx, "missing", nil), gorm.ErrRecordNotFound)
}

func snapshotRecords(creator string, views int64) []engine.SnapshotRecord {
	return []engine.SnapshotRecord{
		{
			CycleID: "cy", VideoID: "ig-1", CreatorID: creator, Platform: engine.PlatformInstagram,
			Views: views, IsEligible: true, IsPaired: true, IsWinner: true,
			BasePayPerVideo: decimal.RequireFromString("2.50"), BonusAmount: decimal.NewFromInt(20),
			EarnedBase: decimal.RequireFromString("2.50"), EarnedBonus: decimal.NewFromInt(20),
		},
		{
			CycleID: "cy", VideoID: "tt-1", CreatorID: creator, Platform: engine.PlatformTikTok,
			Views: 10, IsEligible: true, IsPaired: true,
			BasePayPerVideo: decimal.RequireFromString("1.75"),
			EarnedBase:      decimal.RequireFromString("1.75"),
		},
	}
}

func TestSnapshotReplaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSnapshotRepository(setupTestDB(t))

	first, err := repo.ReplaceForCycle(ctx, "cy", "c1", snapshotRecords("c1", 50_000))
	require.NoError(t, err)
	second, err := repo.ReplaceForCycle(ctx, "cy", "c1", snapshotRecords("c1", 60_000))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	rows, err := repo.ListForCycle(ctx, "cy", "c1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ig-1", rows[0].VideoID)
	assert.Equal(t, int64(60_000), rows[0].Views)
	assert.Equal(t, second, rows[0].BatchID)

	records := make([]engine.SnapshotRecord, len(rows))
	for i, r := range rows {
		records[i] = r.ToEngine()
	}
	assert.Equal(t, "24.25", engine.SumSnapshot(records).Total.StringFixed(2))

	ok, err := repo.Verify(ctx, "cy", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	// empty replace clears
	batch, err := repo.ReplaceForCycle(ctx, "cy", "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, batch)
	rows, err = repo.ListForCycle(ctx, "cy", "c1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSnapshotRejectsForeignRecords(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSnapshotRepository(setupTestDB(t))

	_, err := repo.ReplaceForCycle(ctx, "cy", "c1", snapshotRecords("c2", 1))
	assert.Error(t, err)
}

func TestSnapshotVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)
	repo := repository.NewSnapshotRepository(database)

	_, err := repo.ReplaceForCycle(ctx, "cy", "c1", snapshotRecords("c1", 50_000))
	require.NoError(t, err)

	require.NoError(t, database.Model(&db.CycleSnapshot{}).
		Where("video_id = ?", "tt-1").
		Update("earned_base", decimal.NewFromInt(100)).Error)

	ok, err := repo.Verify(ctx, "cy", "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigestIgnoresOrder(t *testing.T) {
	recs := snapshotRecords("c1", 1)
	reversed := []engine.SnapshotRecord{recs[1], recs[0]}
	assert.Equal(t, repository.Digest(recs), repository.Digest(reversed))

	recs[0].Views++
	assert.NotEqual(t, repository.Digest(recs), repository.Digest(reversed))
}
