package earnings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/crosspost-earnings/internal/app"
	"github.com/oggyb/crosspost-earnings/internal/db"
	"github.com/oggyb/crosspost-earnings/internal/engine"
	svcErr "github.com/oggyb/crosspost-earnings/internal/errors"
	"github.com/oggyb/crosspost-earnings/internal/ingest"
	"github.com/oggyb/crosspost-earnings/internal/logger"
	"github.com/oggyb/crosspost-earnings/internal/recalc"
	"github.com/oggyb/crosspost-earnings/internal/utils/pagination"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultCacheTTL = 10 * time.Minute
	defaultLockTTL  = 5 * time.Minute
)

// Bucket selects which slice of a creator's videos a listing covers.
type Bucket string

const (
	BucketCurrent  Bucket = "current"
	BucketPreCycle Bucket = "pre_cycle"
	BucketPast     Bucket = "past"
	BucketAll      Bucket = "all"
)

// ParseBucket maps the request value; empty means current.
func ParseBucket(s string) (Bucket, bool) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BucketCurrent, true
	case BucketCurrent, BucketPreCycle, BucketPast, BucketAll:
		return b, true
	}
	return "", false
}

// RowView is a paired row with everything the display layer renders.
type RowView struct {
	Row        engine.PairedRow
	Resolution engine.Resolution
	Earnings   engine.RowEarnings
}

// RowsPage is one page of rows, newest first.
type RowsPage struct {
	Rows          []RowView
	Totals        engine.Totals
	NextPageToken string
}

// Summary holds a creator's totals per bucket of the active cycle.
type Summary struct {
	CreatorID string
	CycleID   string
	Current   engine.Totals
	PreCycle  engine.Totals
	Past      engine.Totals
}

// CycleEarnings is a creator's payout for one cycle.
type CycleEarnings struct {
	CycleID   string
	CreatorID string
	Frozen    bool
	// FromSnapshot is true when totals come from the frozen snapshot.
	FromSnapshot bool
	// Verified reports whether the snapshot digest still matches its rows.
	Verified bool
	Totals   engine.Totals
}

// Service implements the earnings API on top of the reconciliation engine.
// Rows and earnings are recomputed from the stored videos on every call;
// only payout configuration is cached.
type Service struct {
	appCtx  *app.AppContext
	store   *store
	lockTTL time.Duration
	now     func() time.Time
}

// NewEarningsService creates a new service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (via the video, settings, cycle and snapshot repositories)
//   - RedisCache for the pay config cache and recalculation lock
func NewEarningsService(appCtx *app.AppContext) *Service {
	cacheTTL, lockTTL := defaultCacheTTL, defaultLockTTL
	if appCtx.Config != nil {
		if appCtx.Config.Earnings.SettingsCacheTTL > 0 {
			cacheTTL = appCtx.Config.Earnings.SettingsCacheTTL
		}
		if appCtx.Config.Earnings.RecalcLockTTL > 0 {
			lockTTL = appCtx.Config.Earnings.RecalcLockTTL
		}
	}
	if appCtx.Logger == nil {
		appCtx.Logger = logger.L()
	}
	return &Service{
		appCtx:  appCtx,
		store:   newStore(appCtx.DB, appCtx.RedisCache, cacheTTL),
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// ListPairedRows returns a creator's reconciled rows for one bucket.
//
// Behavior:
//   - current / pre_cycle / past are relative to the active cycle; pairing runs
//     inside the bucket only. "all" pairs the creator's full history.
//   - Rows are ordered date DESC, id DESC; paging uses an opaque cursor.
//   - Totals cover the whole bucket, not just the page.
func (s *Service) ListPairedRows(ctx context.Context, creatorID string, bucket Bucket, pageToken string, limit int) (*RowsPage, error) {
	log := logger.ForCreator(s.appCtx.Logger, creatorID, "")
	log.Debug("ListPairedRows called", "bucket", bucket, "token", pageToken, "limit", limit)

	if strings.TrimSpace(creatorID) == "" {
		return nil, svcErr.InvalidArgument("creator_id is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	cursor, err := pagination.Decode(pageToken)
	if err != nil {
		return nil, svcErr.InvalidArgument(err.Error())
	}

	videos, err := s.pricedCreatorVideos(ctx, creatorID)
	if err != nil {
		log.Error("loading videos failed", "err", err)
		return nil, svcErr.Map(err)
	}

	var report engine.BucketReport
	if bucket == BucketAll {
		report = engine.ReconcileBucket(videos)
	} else {
		active, err := s.store.cycles.GetActive(ctx)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		rep := engine.Reconcile(videos, active.ToEngine())
		switch bucket {
		case BucketPreCycle:
			report = rep.PreCycle
		case BucketPast:
			report = rep.Past
		default:
			report = rep.Current
		}
	}

	page := &RowsPage{Totals: report.Totals}
	for i, row := range report.Rows {
		if !cursor.After(row.Date, row.ID) {
			continue
		}
		if len(page.Rows) == limit {
			last := page.Rows[limit-1].Row
			token, _ := pagination.Encode(pagination.At(last.Date, last.ID))
			page.NextPageToken = token
			break
		}
		page.Rows = append(page.Rows, RowView{
			Row:        row,
			Resolution: engine.ResolveWinner(row),
			Earnings:   report.Earnings[i],
		})
	}

	log.Debug("ListPairedRows result", "rows", len(page.Rows), "next_token", page.NextPageToken)
	return page, nil
}

// GetEarnings returns the creator's totals for the current, pre-cycle and
// past buckets of the active cycle.
func (s *Service) GetEarnings(ctx context.Context, creatorID string) (*Summary, error) {
	log := logger.ForCreator(s.appCtx.Logger, creatorID, "")
	log.Debug("GetEarnings called")

	if strings.TrimSpace(creatorID) == "" {
		return nil, svcErr.InvalidArgument("creator_id is required")
	}

	active, err := s.store.cycles.GetActive(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	videos, err := s.pricedCreatorVideos(ctx, creatorID)
	if err != nil {
		log.Error("loading videos failed", "err", err)
		return nil, svcErr.Map(err)
	}

	rep := engine.Reconcile(videos, active.ToEngine())
	out := &Summary{
		CreatorID: creatorID,
		CycleID:   active.ID,
		Current:   rep.Current.Totals,
		PreCycle:  rep.PreCycle.Totals,
		Past:      rep.Past.Totals,
	}

	log.Debug("GetEarnings result", "cycle_id", active.ID,
		logger.Money("current_total", out.Current.Total),
		logger.Money("pre_cycle_total", out.PreCycle.Total),
	)
	return out, nil
}

// SetIrrelevant toggles a video's irrelevant flag. Frozen snapshots are not
// touched; the change shows up in live totals only.
func (s *Service) SetIrrelevant(ctx context.Context, videoID string, irrelevant bool) error {
	s.appCtx.Logger.Debug("SetIrrelevant called", "video_id", videoID, "irrelevant", irrelevant)

	if strings.TrimSpace(videoID) == "" {
		return svcErr.InvalidArgument("video_id is required")
	}
	if err := s.store.videos.SetIrrelevant(ctx, videoID, irrelevant); err != nil {
		s.appCtx.Logger.Error("SetIrrelevant failed", "video_id", videoID, "err", err)
		return svcErr.Map(err)
	}
	return nil
}

// UpsertVideos stores a batch of sync payloads.
//
// Behavior:
//   - Records are normalized first (platform aliases, timestamps, hash fields).
//   - A record without id, creator, platform video id or a known platform
//     rejects the whole batch with InvalidArgument.
//   - Existing (platform, platform_video_id) rows get fresh counters and media
//     metadata; the irrelevant flag and cycle assignment are kept.
//   - A record whose id and platform key point at two different stored rows
//     rejects the whole batch with AlreadyExists.
func (s *Service) UpsertVideos(ctx context.Context, raws []ingest.RawVideo) (int, error) {
	s.appCtx.Logger.Debug("UpsertVideos called", "count", len(raws))

	videos := ingest.NormalizeAll(raws)
	for i, v := range videos {
		switch {
		case v.ID == "" || v.CreatorID == "" || v.PlatformVideoID == "":
			return 0, svcErr.InvalidArgument(fmt.Sprintf("videos[%d]: id, creator_id and platform_video_id are required", i))
		case !v.Platform.Valid():
			return 0, svcErr.InvalidArgument(fmt.Sprintf("videos[%d]: unknown platform %q", i, v.Platform))
		}
	}

	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.store.videos.WithTx(tx)
		for _, v := range videos {
			row := db.VideoFromEngine(v)
			if err := repo.Upsert(ctx, &row); err != nil {
				return fmt.Errorf("upsert %s: %w", v.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.appCtx.Logger.Error("UpsertVideos failed", "err", err)
		return 0, svcErr.Map(err)
	}
	return len(videos), nil
}

// MarkCyclePaid freezes a cycle and writes the snapshot of every creator in it.
//
// Behavior:
//   - Fails with FailedPrecondition if the cycle is already paid.
//   - Fails with Aborted while a recalculation or another payout change holds
//     the cycle lock.
//   - Snapshots hold the current bucket of the cycle (pre-cycle videos are
//     not paid by it).
//   - All snapshots and paid_at are written in one DB transaction.
func (s *Service) MarkCyclePaid(ctx context.Context, cycleID string) (*engine.PayoutCycle, error) {
	log := s.appCtx.Logger.With("cycle_id", cycleID)
	log.Debug("MarkCyclePaid called")

	if strings.TrimSpace(cycleID) == "" {
		return nil, svcErr.InvalidArgument("cycle_id is required")
	}

	unlock, err := s.lockCycle(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	defer unlock()

	cycle, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if err := cycle.MarkPaid(s.now()); err != nil {
		return nil, svcErr.Map(err)
	}

	settings, tiers, err := s.store.PayConfig(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	creators, err := s.store.ListCreators(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	snapshots := make(map[string][]engine.SnapshotRecord, len(creators))
	for _, creatorID := range creators {
		videos, err := s.store.ListCycleVideos(ctx, creatorID, cycleID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		priced := engine.ApplyRates(videos, settings, tiers)
		current := engine.ReconcileBucket(engine.Bucket(priced, cycle).Current)
		snapshots[creatorID] = engine.BuildSnapshot(cycleID, current.Rows)
	}

	if err := s.store.Freeze(ctx, cycleID, cycle.PaidAt, snapshots); err != nil {
		log.Error("MarkCyclePaid failed", "err", err)
		return nil, svcErr.Map(err)
	}

	log.Info("cycle marked paid", "paid_at", cycle.PaidAt, "creators", len(creators))
	return &cycle, nil
}

// UnmarkCyclePaid moves a paid cycle back to pending. Snapshots stay in place
// until the cycle is frozen again. Like MarkCyclePaid it needs the cycle lock.
func (s *Service) UnmarkCyclePaid(ctx context.Context, cycleID string) (*engine.PayoutCycle, error) {
	log := s.appCtx.Logger.With("cycle_id", cycleID)
	log.Debug("UnmarkCyclePaid called")

	if strings.TrimSpace(cycleID) == "" {
		return nil, svcErr.InvalidArgument("cycle_id is required")
	}

	unlock, err := s.lockCycle(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	defer unlock()

	cycle, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if err := cycle.Unmark(); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.store.SetPaidAt(ctx, cycleID, nil); err != nil {
		log.Error("UnmarkCyclePaid failed", "err", err)
		return nil, svcErr.Map(err)
	}

	log.Info("cycle unmarked")
	return &cycle, nil
}

// RecalculateCycle runs a sync-and-recalculate over the cycle while holding
// the per-cycle Redis lock. A concurrent call fails with Aborted.
// A paid cycle is unfrozen, resnapshotted and refrozen; this is the only
// path that rewrites a frozen snapshot.
func (s *Service) RecalculateCycle(ctx context.Context, cycleID string) (*recalc.Result, error) {
	s.appCtx.Logger.Debug("RecalculateCycle called", "cycle_id", cycleID)

	if strings.TrimSpace(cycleID) == "" {
		return nil, svcErr.InvalidArgument("cycle_id is required")
	}
	return s.recalculate(ctx, cycleID, true)
}

// RecalculateActiveCycle recalculates whichever cycle is active. It is the
// scheduled entry point and never touches a paid cycle: when the active cycle
// is frozen it returns a Skipped result and leaves the snapshot alone.
func (s *Service) RecalculateActiveCycle(ctx context.Context) (*recalc.Result, error) {
	active, err := s.store.cycles.GetActive(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.recalculate(ctx, active.ID, false)
}

func (s *Service) recalculate(ctx context.Context, cycleID string, rewriteFrozen bool) (*recalc.Result, error) {
	log := s.appCtx.Logger.With("cycle_id", cycleID)

	if _, err := s.store.cycles.Get(ctx, cycleID); err != nil {
		return nil, svcErr.Map(err)
	}

	unlock, err := s.lockCycle(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	defer unlock()

	if !rewriteFrozen {
		// checked under the lock so a concurrent MarkCyclePaid cannot slip in
		cycle, err := s.store.GetCycle(ctx, cycleID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		if cycle.Frozen() {
			log.Info("cycle is paid, skipping recalculation")
			return &recalc.Result{CycleID: cycleID, WasFrozen: true, Skipped: true}, nil
		}
	}

	task := recalc.NewTask(cycleID, s.store, s.appCtx.Engagement, s.appCtx.Logger)
	res, err := task.Run(ctx)
	if err != nil {
		log.Error("recalculation failed", "err", err)
		return nil, svcErr.Map(err)
	}
	return &res, nil
}

// lockCycle takes the per-cycle Redis lock shared by recalculation and the
// payout state changes. Without Redis it is a no-op.
func (s *Service) lockCycle(ctx context.Context, cycleID string) (func(), error) {
	if s.appCtx.RedisCache == nil {
		return func() {}, nil
	}
	release, err := s.appCtx.RedisCache.AcquireRecalcLock(ctx, cycleID, uuid.NewString(), s.lockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.appCtx.Logger.Warn("failed to release cycle lock", "cycle_id", cycleID, "err", err)
		}
	}, nil
}

// GetCycleEarnings returns a creator's payout for one cycle.
// Frozen cycles are read from the snapshot; pending cycles are computed live.
func (s *Service) GetCycleEarnings(ctx context.Context, creatorID, cycleID string) (*CycleEarnings, error) {
	log := logger.ForCreator(s.appCtx.Logger, creatorID, cycleID)
	log.Debug("GetCycleEarnings called")

	if strings.TrimSpace(creatorID) == "" || strings.TrimSpace(cycleID) == "" {
		return nil, svcErr.InvalidArgument("creator_id and cycle_id are required")
	}

	row, err := s.store.cycles.Get(ctx, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	cycle := row.ToEngine()
	out := &CycleEarnings{CycleID: cycleID, CreatorID: creatorID, Frozen: cycle.Frozen()}

	if cycle.Frozen() {
		snaps, err := s.store.snapshots.ListForCycle(ctx, cycleID, creatorID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		records := make([]engine.SnapshotRecord, len(snaps))
		for i, sn := range snaps {
			records[i] = sn.ToEngine()
		}
		ok, err := s.store.snapshots.Verify(ctx, cycleID, creatorID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		if !ok {
			log.Warn("snapshot digest mismatch")
		}
		out.FromSnapshot = true
		out.Verified = ok
		out.Totals = engine.SumSnapshot(records)
		return out, nil
	}

	videos, err := s.store.ListCycleVideos(ctx, creatorID, cycleID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	settings, tiers, err := s.store.PayConfig(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	priced := engine.ApplyRates(videos, settings, tiers)
	out.Totals = engine.ReconcileBucket(engine.Bucket(priced, cycle).Current).Totals
	return out, nil
}

// UpdatePayConfig replaces the base rates and the whole bonus tier table.
//
// Behavior:
//   - Rates and bonus amounts must be non-negative; thresholds positive and unique.
//   - Settings and tiers are written in one DB transaction.
//   - The cached pay config is dropped afterwards; frozen snapshots keep the
//     amounts they were written with.
func (s *Service) UpdatePayConfig(ctx context.Context, settings engine.PayoutSettings, tiers []engine.BonusTier) error {
	s.appCtx.Logger.Debug("UpdatePayConfig called", "tiers", len(tiers))

	if settings.InstagramBasePay.IsNegative() || settings.TikTokBasePay.IsNegative() {
		return svcErr.InvalidArgument("base pay rates must not be negative")
	}
	seen := make(map[int64]bool, len(tiers))
	rows := make([]db.BonusTier, len(tiers))
	for i, t := range tiers {
		switch {
		case t.ViewThreshold <= 0:
			return svcErr.InvalidArgument(fmt.Sprintf("tiers[%d]: view_threshold must be positive", i))
		case t.BonusAmount.IsNegative():
			return svcErr.InvalidArgument(fmt.Sprintf("tiers[%d]: bonus_amount must not be negative", i))
		case seen[t.ViewThreshold]:
			return svcErr.InvalidArgument(fmt.Sprintf("tiers[%d]: duplicate view_threshold %d", i, t.ViewThreshold))
		}
		seen[t.ViewThreshold] = true
		rows[i] = db.BonusTier{ViewThreshold: t.ViewThreshold, BonusAmount: t.BonusAmount}
	}

	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.store.settings.WithTx(tx)
		if err := repo.SaveSettings(ctx, db.PayoutSettings{
			InstagramBasePay: settings.InstagramBasePay,
			TikTokBasePay:    settings.TikTokBasePay,
		}); err != nil {
			return err
		}
		return repo.ReplaceTiers(ctx, rows)
	})
	if err != nil {
		s.appCtx.Logger.Error("UpdatePayConfig failed", "err", err)
		return svcErr.Map(err)
	}

	if err := s.InvalidatePayConfig(ctx); err != nil {
		// stale for at most the cache TTL
		s.appCtx.Logger.Warn("failed to invalidate pay config cache", "err", err)
	}
	s.appCtx.Logger.Info("pay config updated",
		logger.Money("instagram_base_pay", settings.InstagramBasePay),
		logger.Money("tiktok_base_pay", settings.TikTokBasePay),
		"tiers", len(tiers),
	)
	return nil
}

// InvalidatePayConfig drops cached rates and tiers after an admin change.
func (s *Service) InvalidatePayConfig(ctx context.Context) error {
	if s.appCtx.RedisCache == nil {
		return nil
	}
	return s.appCtx.RedisCache.InvalidatePayConfig(ctx)
}

func (s *Service) pricedCreatorVideos(ctx context.Context, creatorID string) ([]engine.Video, error) {
	videos, err := s.store.ListCreatorVideos(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	settings, tiers, err := s.store.PayConfig(ctx)
	if err != nil {
		return nil, err
	}
	return engine.ApplyRates(videos, settings, tiers), nil
}
