package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/crosspost-earnings/internal/recalc"
)

// Runner wraps a seconds-enabled cron with a base context and slog logging.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

func New(logger *slog.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec. Jobs receive the runner's base context.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() { job(r.baseCtx) })
}

// Entries returns the number of registered jobs.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("cron started", "entries", r.Entries())
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

// Recalculator is the slice of the earnings service the recalc job drives.
type Recalculator interface {
	RecalculateActiveCycle(ctx context.Context) (*recalc.Result, error)
}

// RecalcJob returns a job that recalculates the active cycle, bounded by timeout.
// A lock held by another worker, or an active cycle that is already paid,
// is logged and skipped.
func RecalcJob(svc Recalculator, logger *slog.Logger, timeout time.Duration) func(context.Context) {
	return func(ctx context.Context) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		started := time.Now()
		res, err := svc.RecalculateActiveCycle(ctx)
		switch {
		case err == nil && res.Skipped:
			logger.Info("scheduled recalculation skipped", "cycle_id", res.CycleID, "reason", "cycle is paid")
		case err == nil:
			logger.Info("scheduled recalculation done",
				"cycle_id", res.CycleID, "creators", res.Creators,
				"refreshed", res.Refreshed, "took", time.Since(started))
		case status.Code(err) == codes.Aborted:
			logger.Info("scheduled recalculation skipped", "reason", err)
		case status.Code(err) == codes.FailedPrecondition:
			logger.Warn("scheduled recalculation skipped", "reason", err)
		case errors.Is(err, context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
			logger.Error("scheduled recalculation timed out", "timeout", timeout)
		default:
			logger.Error("scheduled recalculation failed", "err", err)
		}
	}
}
