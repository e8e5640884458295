package engine

import (
	"math"
	"sort"
	"time"
)

const (
	// MatchWindow is the maximum gap between two posts of the same upload.
	MatchWindow = 24 * time.Hour
	// MaxDurationDelta is the duration tolerance in seconds (inclusive).
	MaxDurationDelta = 1.0
)

// Pair matches a creator's Instagram videos with TikTok videos of the same upload.
//
// Behavior:
//   - Instagram videos are visited in input order. For each one, the duration
//     pass picks the unused in-window TikTok with the smallest duration delta
//     (ties: smallest time gap, then input order). Only if that fails, the
//     thumbnail pass takes the first unused in-window TikTok whose hash matches.
//   - A TikTok video is consumed by at most one row.
//   - Unmatched TikTok videos follow as single-sided rows, in input order.
//   - Every input video appears in exactly one row. The input is not mutated;
//     rows point at private copies.
//
// Rows come back in construction order; use SortRowsByDateDesc for display.
func Pair(videos []Video) []PairedRow {
	var igs, tts []*Video
	for i := range videos {
		v := videos[i]
		switch v.Platform {
		case PlatformTikTok:
			tts = append(tts, &v)
		default:
			// Anything that is not TikTok is reconciled from the Instagram side.
			igs = append(igs, &v)
		}
	}

	used := make([]bool, len(tts))
	rows := make([]PairedRow, 0, len(igs)+len(tts))

	for _, ig := range igs {
		idx, match := findMatch(ig, tts, used)

		row := PairedRow{
			ID:        ig.ID,
			Date:      ig.TimestampUTC,
			Caption:   ig.Caption,
			IG:        ig,
			MatchType: MatchNone,
		}
		if idx >= 0 {
			used[idx] = true
			row.TikTok = tts[idx]
			row.MatchType = match
		}
		row.WinnerPlatform = ResolveWinner(row).Winner
		rows = append(rows, row)
	}

	for i, tt := range tts {
		if used[i] {
			continue
		}
		row := PairedRow{
			ID:        tt.ID,
			Date:      tt.TimestampUTC,
			Caption:   tt.Caption,
			TikTok:    tt,
			MatchType: MatchNone,
		}
		row.WinnerPlatform = ResolveWinner(row).Winner
		rows = append(rows, row)
	}

	return rows
}

// findMatch returns the index of the TikTok paired with ig, or -1.
func findMatch(ig *Video, tts []*Video, used []bool) (int, MatchType) {
	if ig.TimestampUTC.IsZero() {
		return -1, MatchNone
	}

	// duration pass: best match
	best := -1
	var bestDur float64
	var bestGap time.Duration
	if ig.DurationSeconds != nil {
		for i, tt := range tts {
			if used[i] || tt.DurationSeconds == nil {
				continue
			}
			gap, ok := timeGap(ig, tt)
			if !ok {
				continue
			}
			d := math.Abs(*ig.DurationSeconds - *tt.DurationSeconds)
			if d > MaxDurationDelta {
				continue
			}
			if best < 0 || d < bestDur || (d == bestDur && gap < bestGap) {
				best, bestDur, bestGap = i, d, gap
			}
		}
	}
	if best >= 0 {
		return best, MatchDuration
	}

	// thumbnail pass: first match in list order
	for i, tt := range tts {
		if used[i] {
			continue
		}
		if _, ok := timeGap(ig, tt); !ok {
			continue
		}
		if HashesMatch(ig.ThumbnailHash, tt.ThumbnailHash) {
			return i, MatchThumbnail
		}
	}

	return -1, MatchNone
}

// timeGap returns |a-b| when both timestamps are known and within MatchWindow.
func timeGap(a, b *Video) (time.Duration, bool) {
	if a.TimestampUTC.IsZero() || b.TimestampUTC.IsZero() {
		return 0, false
	}
	gap := a.TimestampUTC.Sub(b.TimestampUTC)
	if gap < 0 {
		gap = -gap
	}
	return gap, gap <= MatchWindow
}

// SortRowsByDateDesc orders rows newest first, breaking ties by row ID
// descending so the order is total.
func SortRowsByDateDesc(rows []PairedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].ID > rows[j].ID
	})
}
