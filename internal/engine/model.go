package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies the social network a video was published on.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	return p == PlatformInstagram || p == PlatformTikTok
}

// MatchType records which signal paired two videos.
type MatchType string

const (
	MatchDuration  MatchType = "duration"
	MatchThumbnail MatchType = "thumbnail"
	MatchNone      MatchType = "none"
)

// Video is one platform occurrence of an upload.
//
// Fields:
//   - TimestampUTC: zero value means the timestamp was missing or malformed;
//     such a video is never paired.
//   - DurationSeconds: nil when the platform did not report a length.
//   - ThumbnailHash: 16 hex chars (64-bit perceptual hash), empty when absent.
//   - BasePayPerVideo / BonusAmount: attached by ApplyRates (or by the caller)
//     before earnings are computed.
type Video struct {
	ID              string
	CreatorID       string
	Platform        Platform
	PlatformVideoID string
	Caption         string
	TimestampUTC    time.Time
	DurationSeconds *float64
	ThumbnailHash   string
	Views           int64
	Likes           int64
	Comments        int64
	IsIrrelevant    bool
	CycleID         string
	BasePayPerVideo decimal.Decimal
	BonusAmount     decimal.Decimal
}

// Eligible reports whether the video can earn anything at all.
func (v *Video) Eligible() bool {
	return v != nil && !v.IsIrrelevant
}

// PairedRow is a derived view over one or two videos believed to be the same upload.
type PairedRow struct {
	ID             string
	Date           time.Time
	Caption        string
	IG             *Video
	TikTok         *Video
	MatchType      MatchType
	WinnerPlatform *Platform
}

// Paired reports whether both sides are present.
func (r PairedRow) Paired() bool {
	return r.IG != nil && r.TikTok != nil
}

// Videos returns the non-nil sides of the row, Instagram first.
func (r PairedRow) Videos() []*Video {
	out := make([]*Video, 0, 2)
	if r.IG != nil {
		out = append(out, r.IG)
	}
	if r.TikTok != nil {
		out = append(out, r.TikTok)
	}
	return out
}

// BonusTier maps a view threshold to a flat bonus.
type BonusTier struct {
	ViewThreshold int64
	BonusAmount   decimal.Decimal
}

// PayoutSettings carries the per-platform base pay rates.
type PayoutSettings struct {
	InstagramBasePay decimal.Decimal
	TikTokBasePay    decimal.Decimal
}

// BaseFor returns the base rate configured for p.
func (s PayoutSettings) BaseFor(p Platform) decimal.Decimal {
	switch p {
	case PlatformInstagram:
		return s.InstagramBasePay
	case PlatformTikTok:
		return s.TikTokBasePay
	default:
		return decimal.Zero
	}
}

func platformPtr(p Platform) *Platform { return &p }
