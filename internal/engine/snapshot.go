package engine

import "github.com/shopspring/decimal"

// SnapshotRecord is the flat, point-in-time pay record of one video in a frozen cycle.
// Once a cycle is paid this record, not live data, is the system of record.
type SnapshotRecord struct {
	CycleID         string          `json:"cycle_id"`
	VideoID         string          `json:"video_id"`
	CreatorID       string          `json:"creator_id"`
	Platform        Platform        `json:"platform"`
	PlatformVideoID string          `json:"platform_video_id"`
	Views           int64           `json:"views"`
	Likes           int64           `json:"likes"`
	Comments        int64           `json:"comments"`
	IsEligible      bool            `json:"is_eligible"`
	IsPaired        bool            `json:"is_paired"`
	IsWinner        bool            `json:"is_winner"`
	BasePayPerVideo decimal.Decimal `json:"base_pay_per_video"`
	BonusAmount     decimal.Decimal `json:"bonus_amount"`
	EarnedBase      decimal.Decimal `json:"earned_base"`
	EarnedBonus     decimal.Decimal `json:"earned_bonus"`
}

// Earned is what the video contributed to the cycle payout.
func (r SnapshotRecord) Earned() decimal.Decimal { return r.EarnedBase.Add(r.EarnedBonus) }

// BuildSnapshot flattens rows into one record per video, in row order
// (Instagram side first within a row).
func BuildSnapshot(cycleID string, rows []PairedRow) []SnapshotRecord {
	var out []SnapshotRecord
	for _, row := range rows {
		res := ResolveWinner(row)
		e := RowEarningsFor(row)
		if row.IG != nil {
			out = append(out, snapshotOf(cycleID, row.IG, res.IGEligible, row.Paired(),
				isWinner(res, PlatformInstagram), e.IGBase, e.IGBonus))
		}
		if row.TikTok != nil {
			out = append(out, snapshotOf(cycleID, row.TikTok, res.TTEligible, row.Paired(),
				isWinner(res, PlatformTikTok), e.TTBase, e.TTBonus))
		}
	}
	return out
}

// SumSnapshot totals a set of snapshot records.
func SumSnapshot(records []SnapshotRecord) Totals {
	t := Totals{BasePay: decimal.Zero, Bonus: decimal.Zero}
	for _, r := range records {
		t.BasePay = t.BasePay.Add(r.EarnedBase)
		t.Bonus = t.Bonus.Add(r.EarnedBonus)
	}
	t.Total = t.BasePay.Add(t.Bonus)
	return t
}

func snapshotOf(cycleID string, v *Video, eligible, paired, winner bool, base, bonus decimal.Decimal) SnapshotRecord {
	return SnapshotRecord{
		CycleID:         cycleID,
		VideoID:         v.ID,
		CreatorID:       v.CreatorID,
		Platform:        v.Platform,
		PlatformVideoID: v.PlatformVideoID,
		Views:           v.Views,
		Likes:           v.Likes,
		Comments:        v.Comments,
		IsEligible:      eligible,
		IsPaired:        paired,
		IsWinner:        winner,
		BasePayPerVideo: v.BasePayPerVideo,
		BonusAmount:     v.BonusAmount,
		EarnedBase:      base,
		EarnedBonus:     bonus,
	}
}

func isWinner(res Resolution, p Platform) bool {
	return res.Winner != nil && *res.Winner == p
}
