package db

import (
	"github.com/oggyb/crosspost-earnings/internal/engine"
)

// ToEngine converts the stored row into the engine's canonical Video.
// Pay fields are left zero; callers attach them with engine.ApplyRates.
func (v Video) ToEngine() engine.Video {
	out := engine.Video{
		ID:              v.ID,
		CreatorID:       v.CreatorID,
		Platform:        engine.Platform(v.Platform),
		PlatformVideoID: v.PlatformVideoID,
		Caption:         v.Caption,
		ThumbnailHash:   v.ThumbnailHash,
		Views:           v.Views,
		Likes:           v.Likes,
		Comments:        v.Comments,
		IsIrrelevant:    v.IsIrrelevant,
	}
	if v.PostedAt != nil {
		out.TimestampUTC = v.PostedAt.UTC()
	}
	if v.DurationSeconds != nil {
		d := *v.DurationSeconds
		out.DurationSeconds = &d
	}
	if v.CycleID != nil {
		out.CycleID = *v.CycleID
	}
	return out
}

// VideoFromEngine builds a storable row from an engine.Video.
func VideoFromEngine(v engine.Video) Video {
	out := Video{
		ID:              v.ID,
		CreatorID:       v.CreatorID,
		Platform:        string(v.Platform),
		PlatformVideoID: v.PlatformVideoID,
		Caption:         v.Caption,
		ThumbnailHash:   v.ThumbnailHash,
		Views:           v.Views,
		Likes:           v.Likes,
		Comments:        v.Comments,
		IsIrrelevant:    v.IsIrrelevant,
	}
	if !v.TimestampUTC.IsZero() {
		ts := v.TimestampUTC.UTC()
		out.PostedAt = &ts
	}
	if v.DurationSeconds != nil {
		d := *v.DurationSeconds
		out.DurationSeconds = &d
	}
	if v.CycleID != "" {
		id := v.CycleID
		out.CycleID = &id
	}
	return out
}

// ToEngine converts the stored settings.
func (s PayoutSettings) ToEngine() engine.PayoutSettings {
	return engine.PayoutSettings{
		InstagramBasePay: s.InstagramBasePay,
		TikTokBasePay:    s.TikTokBasePay,
	}
}

// ToEngine converts a stored tier.
func (t BonusTier) ToEngine() engine.BonusTier {
	return engine.BonusTier{ViewThreshold: t.ViewThreshold, BonusAmount: t.BonusAmount}
}

// ToEngine converts the stored cycle.
func (c PayoutCycle) ToEngine() engine.PayoutCycle {
	out := engine.PayoutCycle{
		ID:        c.ID,
		StartDate: c.StartDate.UTC(),
		EndDate:   c.EndDate.UTC(),
	}
	if c.PaidAt != nil {
		p := c.PaidAt.UTC()
		out.PaidAt = &p
	}
	return out
}

// ToEngine converts a stored snapshot row.
func (s CycleSnapshot) ToEngine() engine.SnapshotRecord {
	return engine.SnapshotRecord{
		CycleID:         s.CycleID,
		VideoID:         s.VideoID,
		CreatorID:       s.CreatorID,
		Platform:        engine.Platform(s.Platform),
		PlatformVideoID: s.PlatformVideoID,
		Views:           s.Views,
		Likes:           s.Likes,
		Comments:        s.Comments,
		IsEligible:      s.IsEligible,
		IsPaired:        s.IsPaired,
		IsWinner:        s.IsWinner,
		BasePayPerVideo: s.BasePayPerVideo,
		BonusAmount:     s.BonusAmount,
		EarnedBase:      s.EarnedBase,
		EarnedBonus:     s.EarnedBonus,
	}
}

// SnapshotFromEngine builds a storable snapshot row.
func SnapshotFromEngine(r engine.SnapshotRecord, batchID, digest string) CycleSnapshot {
	return CycleSnapshot{
		BatchID:         batchID,
		CycleID:         r.CycleID,
		VideoID:         r.VideoID,
		CreatorID:       r.CreatorID,
		Platform:        string(r.Platform),
		PlatformVideoID: r.PlatformVideoID,
		Views:           r.Views,
		Likes:           r.Likes,
		Comments:        r.Comments,
		IsEligible:      r.IsEligible,
		IsPaired:        r.IsPaired,
		IsWinner:        r.IsWinner,
		BasePayPerVideo: r.BasePayPerVideo,
		BonusAmount:     r.BonusAmount,
		EarnedBase:      r.EarnedBase,
		EarnedBonus:     r.EarnedBonus,
		Digest:          digest,
	}
}
