package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RowEarnings is the pay breakdown of one row.
type RowEarnings struct {
	RowID   string
	IGBase  decimal.Decimal
	IGBonus decimal.Decimal
	TTBase  decimal.Decimal
	TTBonus decimal.Decimal
	Total   decimal.Decimal
}

// BasePay is the sum of both sides' base pay.
func (e RowEarnings) BasePay() decimal.Decimal { return e.IGBase.Add(e.TTBase) }

// Bonus is the sum of both sides' bonus (at most one is non-zero).
func (e RowEarnings) Bonus() decimal.Decimal { return e.IGBonus.Add(e.TTBonus) }

// Totals aggregates earnings over a set of rows.
type Totals struct {
	BasePay decimal.Decimal
	Bonus   decimal.Decimal
	Total   decimal.Decimal
}

// RowEarningsFor computes what a single row pays.
//
// Behavior:
//   - Unpaired rows pay nothing, whatever their eligibility or views.
//   - Paired rows pay BasePayPerVideo for every eligible side.
//   - Only the resolved winner earns its BonusAmount.
func RowEarningsFor(row PairedRow) RowEarnings {
	out := RowEarnings{
		RowID:   row.ID,
		IGBase:  decimal.Zero,
		IGBonus: decimal.Zero,
		TTBase:  decimal.Zero,
		TTBonus: decimal.Zero,
		Total:   decimal.Zero,
	}
	if !row.Paired() {
		return out
	}

	res := ResolveWinner(row)
	if res.IGEligible {
		out.IGBase = row.IG.BasePayPerVideo
		if res.Winner != nil && *res.Winner == PlatformInstagram {
			out.IGBonus = row.IG.BonusAmount
		}
	}
	if res.TTEligible {
		out.TTBase = row.TikTok.BasePayPerVideo
		if res.Winner != nil && *res.Winner == PlatformTikTok {
			out.TTBonus = row.TikTok.BonusAmount
		}
	}
	out.Total = out.IGBase.Add(out.IGBonus).Add(out.TTBase).Add(out.TTBonus)
	return out
}

// ComputeEarnings sums per-row contributions over rows.
func ComputeEarnings(rows []PairedRow) Totals {
	t := Totals{BasePay: decimal.Zero, Bonus: decimal.Zero, Total: decimal.Zero}
	for _, row := range rows {
		e := RowEarningsFor(row)
		t.BasePay = t.BasePay.Add(e.BasePay())
		t.Bonus = t.Bonus.Add(e.Bonus())
	}
	t.Total = t.BasePay.Add(t.Bonus)
	return t
}

// BonusForViews returns the bonus of the highest tier whose threshold is <= views.
// Tiers are not cumulative and need not be sorted; an empty list yields zero.
func BonusForViews(tiers []BonusTier, views int64) decimal.Decimal {
	sorted := make([]BonusTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ViewThreshold < sorted[j].ViewThreshold
	})

	bonus := decimal.Zero
	for _, t := range sorted {
		if t.ViewThreshold > views {
			break
		}
		bonus = t.BonusAmount
	}
	return bonus
}

// ApplyRates returns copies of videos with base pay and tier bonus attached.
func ApplyRates(videos []Video, settings PayoutSettings, tiers []BonusTier) []Video {
	out := make([]Video, len(videos))
	for i, v := range videos {
		v.BasePayPerVideo = settings.BaseFor(v.Platform)
		v.BonusAmount = BonusForViews(tiers, v.Views)
		out[i] = v
	}
	return out
}
