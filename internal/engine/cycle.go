package engine

import (
	"errors"
	"time"
)

var (
	ErrCycleAlreadyPaid = errors.New("payout cycle is already paid")
	ErrCycleNotPaid     = errors.New("payout cycle is not paid")
)

// PayoutCycle is a payout period. A cycle with PaidAt set is frozen.
type PayoutCycle struct {
	ID        string
	StartDate time.Time
	EndDate   time.Time
	PaidAt    *time.Time
}

// Frozen reports whether the cycle has been marked paid.
func (c PayoutCycle) Frozen() bool { return c.PaidAt != nil }

// MarkPaid moves a pending cycle to paid.
func (c *PayoutCycle) MarkPaid(at time.Time) error {
	if c.Frozen() {
		return ErrCycleAlreadyPaid
	}
	at = at.UTC()
	c.PaidAt = &at
	return nil
}

// Unmark moves a paid cycle back to pending.
func (c *PayoutCycle) Unmark() error {
	if !c.Frozen() {
		return ErrCycleNotPaid
	}
	c.PaidAt = nil
	return nil
}

// Buckets partitions videos relative to the active cycle.
type Buckets struct {
	Current  []Video
	PreCycle []Video
	Past     []Video
}

// Bucket splits videos into current, pre-cycle and past relative to active.
//
// Behavior:
//   - Current: assigned to the active cycle and posted at or after its start.
//     Videos posted after EndDate stay current while still assigned.
//   - PreCycle: assigned to the active cycle but posted before its start.
//     A missing timestamp counts as before the start.
//   - Past: assigned to any other cycle, or unassigned.
//
// Input order is preserved inside each bucket.
func Bucket(videos []Video, active PayoutCycle) Buckets {
	var b Buckets
	for _, v := range videos {
		switch {
		case v.CycleID == "" || v.CycleID != active.ID:
			b.Past = append(b.Past, v)
		case v.TimestampUTC.IsZero() || v.TimestampUTC.Before(active.StartDate):
			b.PreCycle = append(b.PreCycle, v)
		default:
			b.Current = append(b.Current, v)
		}
	}
	return b
}

// BucketReport is the reconciled view of one bucket.
type BucketReport struct {
	Rows     []PairedRow
	Earnings []RowEarnings
	Totals   Totals
}

// Report holds the reconciled buckets of a creator for the active cycle.
type Report struct {
	Current  BucketReport
	PreCycle BucketReport
	Past     BucketReport
}

// Reconcile buckets videos and runs pairing and earnings inside each bucket,
// so no pair ever spans two buckets. Rows are sorted newest first.
func Reconcile(videos []Video, active PayoutCycle) Report {
	b := Bucket(videos, active)
	return Report{
		Current:  ReconcileBucket(b.Current),
		PreCycle: ReconcileBucket(b.PreCycle),
		Past:     ReconcileBucket(b.Past),
	}
}

// ReconcileBucket pairs and prices a single set of videos.
func ReconcileBucket(videos []Video) BucketReport {
	rows := Pair(videos)
	SortRowsByDateDesc(rows)
	earnings := make([]RowEarnings, len(rows))
	for i, row := range rows {
		earnings[i] = RowEarningsFor(row)
	}
	return BucketReport{
		Rows:     rows,
		Earnings: earnings,
		Totals:   ComputeEarnings(rows),
	}
}
