package recalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oggyb/crosspost-earnings/internal/engine"
)

// ErrAlreadyStarted is returned when Start is called twice on the same Task.
var ErrAlreadyStarted = errors.New("recalculation task already started")

// Engagement is a fresh set of counters for one video.
type Engagement struct {
	VideoID  string
	Views    int64
	Likes    int64
	Comments int64
}

// EngagementSource is the sync collaborator that re-reads counters from the
// platforms. Fetching, retries and rate limits are its business.
type EngagementSource interface {
	Fetch(ctx context.Context, videos []engine.Video) ([]Engagement, error)
}

// Store is the persistence the task needs.
type Store interface {
	GetCycle(ctx context.Context, cycleID string) (engine.PayoutCycle, error)
	SetPaidAt(ctx context.Context, cycleID string, paidAt *time.Time) error
	ListCreators(ctx context.Context, cycleID string) ([]string, error)
	ListCycleVideos(ctx context.Context, creatorID, cycleID string) ([]engine.Video, error)
	UpdateEngagement(ctx context.Context, e Engagement) error
	PayConfig(ctx context.Context) (engine.PayoutSettings, []engine.BonusTier, error)
	// Freeze replaces the snapshot of every creator in snapshots and sets
	// paid_at in one transaction. Either all of it lands or none of it does.
	Freeze(ctx context.Context, cycleID string, paidAt *time.Time, snapshots map[string][]engine.SnapshotRecord) error
}

type Stage string

const (
	StagePending     Stage = "pending"
	StageUnfreeze    Stage = "unfreeze"
	StageRefresh     Stage = "refresh"
	StageRecalculate Stage = "recalculate"
	StageRefreeze    Stage = "refreeze"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Progress is a point-in-time view of a running task.
type Progress struct {
	Stage Stage
	Done  int
	Total int
}

// Result summarizes a finished recalculation.
type Result struct {
	CycleID     string
	WasFrozen   bool
	Creators    int
	Refreshed   int
	Totals      map[string]engine.Totals
	Snapshotted bool
	// Skipped is set by callers that chose not to run the task, e.g. the
	// scheduled job finding the active cycle already paid.
	Skipped bool
}

// Task is one sync-and-recalculate run over a cycle. It replaces ambient
// timers with an explicit object the caller can watch, cancel and wait on.
//
// Lifecycle:
//  1. unfreeze: a paid cycle has paid_at cleared while it is being rewritten.
//  2. refresh: every creator's cycle videos get fresh counters from the source.
//  3. recalculate: the engine reruns on the current bucket of each creator;
//     paid cycles get new snapshot records built in memory.
//  4. refreeze: every creator's snapshot and the original paid_at are written
//     in a single Freeze call.
//
// If the run fails or is canceled after unfreezing, paid_at is restored
// before Wait returns and the old snapshots are left untouched.
type Task struct {
	cycleID string
	store   Store
	source  EngagementSource
	log     *slog.Logger

	mu       sync.Mutex
	started  bool
	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}
	result   Result
	err      error
}

// NewTask prepares a task. source may be nil, in which case the refresh
// stage keeps the stored counters.
func NewTask(cycleID string, store Store, source EngagementSource, log *slog.Logger) *Task {
	if log == nil {
		log = slog.Default()
	}
	return &Task{
		cycleID:  cycleID,
		store:    store,
		source:   source,
		log:      log.With("cycle_id", cycleID),
		progress: Progress{Stage: StagePending},
		done:     make(chan struct{}),
	}
}

// Start runs the task in its own goroutine.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	go func() {
		res, err := t.run(ctx)
		t.finish(res, err)
	}()
	return nil
}

// Run executes the task on the calling goroutine.
func (t *Task) Run(ctx context.Context) (Result, error) {
	if err := t.Start(ctx); err != nil {
		return Result{}, err
	}
	return t.Wait()
}

// Cancel asks a running task to stop. It is safe to call at any time.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns its outcome.
func (t *Task) Wait() (Result, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Progress returns the current stage and counters.
func (t *Task) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Task) setProgress(stage Stage, done, total int) {
	t.mu.Lock()
	t.progress = Progress{Stage: stage, Done: done, Total: total}
	t.mu.Unlock()
}

func (t *Task) finish(res Result, err error) {
	t.mu.Lock()
	t.result, t.err = res, err
	if err != nil {
		t.progress.Stage = StageFailed
	} else {
		t.progress.Stage = StageDone
	}
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(t.done)
}

func (t *Task) run(ctx context.Context) (res Result, err error) {
	res.CycleID = t.cycleID

	cycle, err := t.store.GetCycle(ctx, t.cycleID)
	if err != nil {
		return res, fmt.Errorf("load cycle: %w", err)
	}
	paidAt := cycle.PaidAt
	res.WasFrozen = cycle.Frozen()

	if res.WasFrozen {
		t.setProgress(StageUnfreeze, 0, 1)
		if err := t.store.SetPaidAt(ctx, t.cycleID, nil); err != nil {
			return res, fmt.Errorf("unfreeze: %w", err)
		}
		defer func() {
			if err == nil {
				return
			}
			// restore even when ctx is already canceled
			if rerr := t.store.SetPaidAt(context.WithoutCancel(ctx), t.cycleID, paidAt); rerr != nil {
				t.log.Error("failed to restore paid_at", "err", rerr)
				err = errors.Join(err, rerr)
			}
		}()
	}

	creators, err := t.store.ListCreators(ctx, t.cycleID)
	if err != nil {
		return res, fmt.Errorf("list creators: %w", err)
	}
	res.Creators = len(creators)

	// refresh
	videosByCreator := make(map[string][]engine.Video, len(creators))
	for i, creatorID := range creators {
		t.setProgress(StageRefresh, i, len(creators))
		if err := ctx.Err(); err != nil {
			return res, err
		}
		videos, err := t.store.ListCycleVideos(ctx, creatorID, t.cycleID)
		if err != nil {
			return res, fmt.Errorf("list videos for %s: %w", creatorID, err)
		}
		n, err := t.refresh(ctx, videos)
		if err != nil {
			return res, fmt.Errorf("refresh %s: %w", creatorID, err)
		}
		res.Refreshed += n
		videosByCreator[creatorID] = videos
	}

	// recalculate
	settings, tiers, err := t.store.PayConfig(ctx)
	if err != nil {
		return res, fmt.Errorf("load pay config: %w", err)
	}
	res.Totals = make(map[string]engine.Totals, len(creators))
	var snapshots map[string][]engine.SnapshotRecord
	if res.WasFrozen {
		snapshots = make(map[string][]engine.SnapshotRecord, len(creators))
	}
	for i, creatorID := range creators {
		t.setProgress(StageRecalculate, i, len(creators))
		if err := ctx.Err(); err != nil {
			return res, err
		}
		priced := engine.ApplyRates(videosByCreator[creatorID], settings, tiers)
		current := engine.ReconcileBucket(engine.Bucket(priced, cycle).Current)
		res.Totals[creatorID] = current.Totals

		if snapshots != nil {
			snapshots[creatorID] = engine.BuildSnapshot(t.cycleID, current.Rows)
		}
		t.log.Debug("creator recalculated", "creator_id", creatorID, "total", current.Totals.Total.StringFixed(2))
	}

	if res.WasFrozen {
		t.setProgress(StageRefreeze, 0, 1)
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := t.store.Freeze(ctx, t.cycleID, paidAt, snapshots); err != nil {
			return res, fmt.Errorf("refreeze: %w", err)
		}
		res.Snapshotted = true
	}

	t.log.Info("cycle recalculated", "creators", res.Creators, "refreshed", res.Refreshed, "frozen", res.WasFrozen)
	return res, nil
}

// refresh pulls new counters and applies them both to storage and to videos.
func (t *Task) refresh(ctx context.Context, videos []engine.Video) (int, error) {
	if t.source == nil || len(videos) == 0 {
		return 0, nil
	}
	fresh, err := t.source.Fetch(ctx, videos)
	if err != nil {
		return 0, err
	}

	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.ID] = i
	}
	n := 0
	for _, e := range fresh {
		i, ok := index[e.VideoID]
		if !ok {
			continue
		}
		if err := t.store.UpdateEngagement(ctx, e); err != nil {
			return n, err
		}
		videos[i].Views, videos[i].Likes, videos[i].Comments = e.Views, e.Likes, e.Comments
		n++
	}
	return n, nil
}
