package earnings

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/cache"
	"github.com/oggyb/crosspost-earnings/internal/db"
	"github.com/oggyb/crosspost-earnings/internal/engine"
	"github.com/oggyb/crosspost-earnings/internal/recalc"
	"github.com/oggyb/crosspost-earnings/internal/repository"
)

// store adapts the repositories to what the engine and the recalc task need.
type store struct {
	db        *gorm.DB
	videos    *repository.VideoRepository
	settings  *repository.SettingsRepository
	cycles    *repository.CycleRepository
	snapshots *repository.SnapshotRepository
	cache     *cache.RedisCache
	cacheTTL  time.Duration
}

var _ recalc.Store = (*store)(nil)

func newStore(database *gorm.DB, rc *cache.RedisCache, ttl time.Duration) *store {
	return &store{
		db:        database,
		videos:    repository.NewVideoRepository(database),
		settings:  repository.NewSettingsRepository(database),
		cycles:    repository.NewCycleRepository(database),
		snapshots: repository.NewSnapshotRepository(database),
		cache:     rc,
		cacheTTL:  ttl,
	}
}

func (s *store) GetCycle(ctx context.Context, cycleID string) (engine.PayoutCycle, error) {
	c, err := s.cycles.Get(ctx, cycleID)
	if err != nil {
		return engine.PayoutCycle{}, err
	}
	return c.ToEngine(), nil
}

func (s *store) SetPaidAt(ctx context.Context, cycleID string, paidAt *time.Time) error {
	return s.cycles.SetPaidAt(ctx, cycleID, paidAt)
}

func (s *store) ListCreators(ctx context.Context, cycleID string) ([]string, error) {
	return s.videos.ListCreatorIDs(ctx, cycleID)
}

func (s *store) ListCycleVideos(ctx context.Context, creatorID, cycleID string) ([]engine.Video, error) {
	rows, err := s.videos.ListByCreatorAndCycle(ctx, creatorID, cycleID)
	if err != nil {
		return nil, err
	}
	return toEngineVideos(rows), nil
}

func (s *store) ListCreatorVideos(ctx context.Context, creatorID string) ([]engine.Video, error) {
	rows, err := s.videos.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return toEngineVideos(rows), nil
}

func (s *store) UpdateEngagement(ctx context.Context, e recalc.Engagement) error {
	return s.videos.UpdateEngagement(ctx, e.VideoID, e.Views, e.Likes, e.Comments)
}

// Freeze rewrites every creator's snapshot and sets paid_at in one transaction.
// Creators are written in ID order so failures are reproducible.
func (s *store) Freeze(ctx context.Context, cycleID string, paidAt *time.Time, snapshots map[string][]engine.SnapshotRecord) error {
	creators := make([]string, 0, len(snapshots))
	for id := range snapshots {
		creators = append(creators, id)
	}
	sort.Strings(creators)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snaps := s.snapshots.WithTx(tx)
		for _, creatorID := range creators {
			if _, err := snaps.ReplaceForCycle(ctx, cycleID, creatorID, snapshots[creatorID]); err != nil {
				return fmt.Errorf("snapshot %s: %w", creatorID, err)
			}
		}
		return s.cycles.WithTx(tx).SetPaidAt(ctx, cycleID, paidAt)
	})
}

// PayConfig returns base rates and tiers.
// Cache-first strategy:
//  1. Attempts to read from Redis (earnings:settings:v1).
//  2. On miss or Redis error, falls back to DB.
//  3. On DB fetch, writes the cache with the configured TTL.
func (s *store) PayConfig(ctx context.Context) (engine.PayoutSettings, []engine.BonusTier, error) {
	if s.cache != nil {
		if pc, ok, err := s.cache.GetPayConfig(ctx); err == nil && ok {
			return pc.Settings, pc.Tiers, nil
		}
	}

	row, err := s.settings.GetSettings(ctx)
	if err != nil {
		return engine.PayoutSettings{}, nil, err
	}
	tierRows, err := s.settings.ListTiers(ctx)
	if err != nil {
		return engine.PayoutSettings{}, nil, err
	}

	settings := row.ToEngine()
	tiers := make([]engine.BonusTier, len(tierRows))
	for i, t := range tierRows {
		tiers[i] = t.ToEngine()
	}

	if s.cache != nil {
		_ = s.cache.SetPayConfig(ctx, cache.PayConfig{Settings: settings, Tiers: tiers}, s.cacheTTL)
	}
	return settings, tiers, nil
}

func toEngineVideos(rows []db.Video) []engine.Video {
	out := make([]engine.Video, len(rows))
	for i, r := range rows {
		out[i] = r.ToEngine()
	}
	return out
}
