package scheduler_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/crosspost-earnings/internal/logger"
	"github.com/oggyb/crosspost-earnings/internal/recalc"
	"github.com/oggyb/crosspost-earnings/internal/scheduler"
)

type fakeRecalc struct {
	calls   atomic.Int32
	err     error
	skipped bool
}

func (f *fakeRecalc) RecalculateActiveCycle(ctx context.Context) (*recalc.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if f.skipped {
		return &recalc.Result{CycleID: "cy-active", WasFrozen: true, Skipped: true}, nil
	}
	return &recalc.Result{CycleID: "cy-active", Creators: 2}, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAddRejectsBadSpec(t *testing.T) {
	r := scheduler.New(logger.Discard(), context.Background())

	_, err := r.Add("every now and then", func(context.Context) {})
	assert.Error(t, err)

	// five-field specs need the seconds column here
	_, err = r.Add("*/5 * * * *", func(context.Context) {})
	assert.Error(t, err)

	_, err = r.Add("0 */30 * * * *", func(context.Context) {})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Entries())
}

func TestRunnerFiresJobs(t *testing.T) {
	type ctxKey struct{}
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	r := scheduler.New(logger.Discard(), base)

	var fired atomic.Int32
	var sawBase atomic.Bool
	_, err := r.Add("@every 1s", func(ctx context.Context) {
		sawBase.Store(ctx.Value(ctxKey{}) == "base")
		fired.Add(1)
	})
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool { return fired.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.True(t, sawBase.Load())
}

func TestRecalcJobLogsOutcome(t *testing.T) {
	var out syncBuffer
	log := slog.New(slog.NewTextHandler(&out, nil))

	ok := &fakeRecalc{}
	scheduler.RecalcJob(ok, log, time.Second)(context.Background())
	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Contains(t, out.String(), "scheduled recalculation done")

	held := &fakeRecalc{err: status.Error(codes.Aborted, "recalculation already in progress")}
	scheduler.RecalcJob(held, log, 0)(context.Background())
	assert.Contains(t, out.String(), "scheduled recalculation skipped")

	broken := &fakeRecalc{err: status.Error(codes.Internal, "boom")}
	scheduler.RecalcJob(broken, log, 0)(context.Background())
	assert.Contains(t, out.String(), "scheduled recalculation failed")
}

func TestRecalcJobSkipsPaidCycle(t *testing.T) {
	var out syncBuffer
	log := slog.New(slog.NewTextHandler(&out, nil))

	paid := &fakeRecalc{skipped: true}
	scheduler.RecalcJob(paid, log, time.Second)(context.Background())

	assert.Equal(t, int32(1), paid.calls.Load())
	assert.Contains(t, out.String(), "scheduled recalculation skipped")
	assert.Contains(t, out.String(), "cycle is paid")
	assert.NotContains(t, out.String(), "scheduled recalculation done")
}
