package recalc_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/crosspost-earnings/internal/engine"
	"github.com/oggyb/crosspost-earnings/internal/logger"
	"github.com/oggyb/crosspost-earnings/internal/recalc"
)

var start = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	cycle     engine.PayoutCycle
	paidAtLog []*time.Time
	videos    map[string][]engine.Video
	updates   []recalc.Engagement
	snapshots map[string][]engine.SnapshotRecord
	// block, when set, is waited on inside ListCycleVideos
	block chan struct{}
	// freezeErr, when set, makes Freeze fail without writing anything
	freezeErr error
}

func (s *fakeStore) GetCycle(ctx context.Context, id string) (engine.PayoutCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle, nil
}

func (s *fakeStore) SetPaidAt(ctx context.Context, id string, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle.PaidAt = paidAt
	s.paidAtLog = append(s.paidAtLog, paidAt)
	return nil
}

func (s *fakeStore) ListCreators(ctx context.Context, cycleID string) ([]string, error) {
	return []string{"c1", "c2"}, nil
}

func (s *fakeStore) ListCycleVideos(ctx context.Context, creatorID, cycleID string) ([]engine.Video, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Video(nil), s.videos[creatorID]...), nil
}

func (s *fakeStore) UpdateEngagement(ctx context.Context, e recalc.Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, e)
	return nil
}

func (s *fakeStore) PayConfig(ctx context.Context) (engine.PayoutSettings, []engine.BonusTier, error) {
	return engine.PayoutSettings{
			InstagramBasePay: decimal.NewFromInt(2),
			TikTokBasePay:    decimal.NewFromInt(1),
		}, []engine.BonusTier{
			{ViewThreshold: 30_000, BonusAmount: decimal.NewFromInt(20)},
		}, nil
}

func (s *fakeStore) Freeze(ctx context.Context, cycleID string, paidAt *time.Time, snapshots map[string][]engine.SnapshotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freezeErr != nil {
		return s.freezeErr
	}
	for creatorID, records := range snapshots {
		s.snapshots[creatorID] = records
	}
	s.cycle.PaidAt = paidAt
	s.paidAtLog = append(s.paidAtLog, paidAt)
	return nil
}

type fakeSource struct{ views int64 }

func (f fakeSource) Fetch(ctx context.Context, videos []engine.Video) ([]recalc.Engagement, error) {
	out := make([]recalc.Engagement, 0, len(videos))
	for _, v := range videos {
		out = append(out, recalc.Engagement{VideoID: v.ID, Views: f.views, Likes: 1, Comments: 1})
	}
	return out, nil
}

type failingSource struct{}

func (failingSource) Fetch(ctx context.Context, videos []engine.Video) ([]recalc.Engagement, error) {
	return nil, errors.New("rate limited")
}

func newStore(paid bool) *fakeStore {
	d := 30.0
	at := func(h int) time.Time { return start.Add(time.Duration(h) * time.Hour) }
	cycle := engine.PayoutCycle{ID: "cy", StartDate: start, EndDate: start.Add(14 * 24 * time.Hour)}
	if paid {
		p := start.Add(20 * 24 * time.Hour)
		cycle.PaidAt = &p
	}
	return &fakeStore{
		cycle: cycle,
		videos: map[string][]engine.Video{
			"c1": {
				{ID: "a", CreatorID: "c1", Platform: engine.PlatformInstagram, TimestampUTC: at(5), DurationSeconds: &d, CycleID: "cy"},
				{ID: "b", CreatorID: "c1", Platform: engine.PlatformTikTok, TimestampUTC: at(6), DurationSeconds: &d, CycleID: "cy"},
			},
			"c2": {
				{ID: "z", CreatorID: "c2", Platform: engine.PlatformTikTok, TimestampUTC: at(7), CycleID: "cy"},
			},
		},
		snapshots: map[string][]engine.SnapshotRecord{},
	}
}

func TestTask_PaidCycleIsRefrozenWithNewSnapshot(t *testing.T) {
	store := newStore(true)
	paidAt := *store.cycle.PaidAt

	task := recalc.NewTask("cy", store, fakeSource{views: 45_000}, logger.Discard())
	res, err := task.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.WasFrozen)
	assert.True(t, res.Snapshotted)
	assert.Equal(t, 2, res.Creators)
	assert.Equal(t, 3, res.Refreshed)
	assert.True(t, decimal.NewFromInt(23).Equal(res.Totals["c1"].Total), "got %s", res.Totals["c1"].Total)
	assert.True(t, res.Totals["c2"].Total.IsZero())

	require.Len(t, store.paidAtLog, 2)
	assert.Nil(t, store.paidAtLog[0], "first unfreeze")
	require.NotNil(t, store.cycle.PaidAt)
	assert.Equal(t, paidAt, *store.cycle.PaidAt)

	require.Len(t, store.snapshots["c1"], 2)
	assert.Equal(t, int64(45_000), store.snapshots["c1"][0].Views)
	assert.Len(t, store.snapshots["c2"], 1)
	assert.Equal(t, recalc.StageDone, task.Progress().Stage)
}

func TestTask_PendingCycleWritesNoSnapshot(t *testing.T) {
	store := newStore(false)

	res, err := recalc.NewTask("cy", store, nil, logger.Discard()).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.WasFrozen)
	assert.Zero(t, res.Refreshed)
	assert.Empty(t, store.snapshots)
	assert.Empty(t, store.paidAtLog)
	assert.True(t, decimal.NewFromInt(3).Equal(res.Totals["c1"].Total))
}

func TestTask_SourceFailureRestoresPaidAt(t *testing.T) {
	store := newStore(true)
	paidAt := *store.cycle.PaidAt

	task := recalc.NewTask("cy", store, failingSource{}, logger.Discard())
	_, err := task.Run(context.Background())
	require.Error(t, err)

	require.NotNil(t, store.cycle.PaidAt)
	assert.Equal(t, paidAt, *store.cycle.PaidAt)
	assert.Equal(t, recalc.StageFailed, task.Progress().Stage)
}

func TestTask_FreezeFailureKeepsOldSnapshots(t *testing.T) {
	store := newStore(true)
	paidAt := *store.cycle.PaidAt
	old := []engine.SnapshotRecord{{CycleID: "cy", VideoID: "a", Views: 10}}
	store.snapshots["c1"] = old
	store.freezeErr = errors.New("disk full")

	task := recalc.NewTask("cy", store, fakeSource{views: 45_000}, logger.Discard())
	res, err := task.Run(context.Background())
	require.Error(t, err)
	assert.False(t, res.Snapshotted)

	assert.Equal(t, old, store.snapshots["c1"])
	assert.NotContains(t, store.snapshots, "c2")
	require.NotNil(t, store.cycle.PaidAt)
	assert.Equal(t, paidAt, *store.cycle.PaidAt)
	assert.Equal(t, recalc.StageFailed, task.Progress().Stage)
}

func TestTask_CancelRestoresPaidAt(t *testing.T) {
	store := newStore(true)
	store.block = make(chan struct{})
	paidAt := *store.cycle.PaidAt

	task := recalc.NewTask("cy", store, nil, logger.Discard())
	require.NoError(t, task.Start(context.Background()))

	require.Eventually(t, func() bool {
		return task.Progress().Stage == recalc.StageRefresh
	}, time.Second, time.Millisecond)
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop after Cancel")
	}
	_, err := task.Wait()
	assert.ErrorIs(t, err, context.Canceled)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotNil(t, store.cycle.PaidAt)
	assert.Equal(t, paidAt, *store.cycle.PaidAt)
}

func TestTask_StartTwice(t *testing.T) {
	task := recalc.NewTask("cy", newStore(false), nil, logger.Discard())
	_, err := task.Run(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, task.Start(context.Background()), recalc.ErrAlreadyStarted)
}
