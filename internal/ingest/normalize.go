package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/crosspost-earnings/internal/engine"
)

// RawVideo is the loosely-typed shape handed over by the platform sync jobs.
// Different sync paths fill different hash fields and may omit cycle data;
// Normalize folds them into a single engine.Video.
type RawVideo struct {
	ID              string   `json:"id"`
	CreatorID       string   `json:"creator_id"`
	Platform        string   `json:"platform"`
	PlatformVideoID string   `json:"platform_video_id"`
	Caption         string   `json:"caption"`
	Timestamp       string   `json:"timestamp"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	ThumbnailHash   string   `json:"thumbnail_hash,omitempty"`
	Thumbnail       string   `json:"thumbnail,omitempty"`
	Views           int64    `json:"views"`
	Likes           int64    `json:"likes"`
	Comments        int64    `json:"comments"`
	IsIrrelevant    bool     `json:"is_irrelevant"`
	CycleID         *string  `json:"cycle_id,omitempty"`
}

// Normalize converts a raw record into the canonical engine.Video.
//
// Behavior:
//   - Never fails. Unparseable timestamps become the zero time, which the
//     pairing engine treats as unpairable.
//   - ThumbnailHash wins over the legacy Thumbnail field; hashes are
//     lower-cased and a "0x" prefix is dropped.
//   - Negative durations and negative counters are treated as missing / zero.
func Normalize(raw RawVideo) engine.Video {
	v := engine.Video{
		ID:              strings.TrimSpace(raw.ID),
		CreatorID:       strings.TrimSpace(raw.CreatorID),
		Platform:        ParsePlatform(raw.Platform),
		PlatformVideoID: strings.TrimSpace(raw.PlatformVideoID),
		Caption:         raw.Caption,
		TimestampUTC:    ParseTimestamp(raw.Timestamp),
		ThumbnailHash:   normalizeHash(raw.ThumbnailHash, raw.Thumbnail),
		Views:           nonNegative(raw.Views),
		Likes:           nonNegative(raw.Likes),
		Comments:        nonNegative(raw.Comments),
		IsIrrelevant:    raw.IsIrrelevant,
	}
	if raw.DurationSeconds != nil && *raw.DurationSeconds >= 0 {
		d := *raw.DurationSeconds
		v.DurationSeconds = &d
	}
	if raw.CycleID != nil {
		v.CycleID = strings.TrimSpace(*raw.CycleID)
	}
	return v
}

// NormalizeAll normalizes a batch, preserving order.
func NormalizeAll(raws []RawVideo) []engine.Video {
	out := make([]engine.Video, 0, len(raws))
	for _, r := range raws {
		out = append(out, Normalize(r))
	}
	return out
}

// ParsePlatform maps the platform spellings seen in sync payloads.
// Unknown values come back as-is (lower-cased).
func ParsePlatform(s string) engine.Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "instagram", "ig", "insta", "reels":
		return engine.PlatformInstagram
	case "tiktok", "tt", "tik_tok", "tik-tok":
		return engine.PlatformTikTok
	}
	return engine.Platform(strings.ToLower(strings.TrimSpace(s)))
}

// ParseTimestamp accepts RFC3339 (with or without fractional seconds) and
// unix seconds. Anything else yields the zero time.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC()
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

func normalizeHash(primary, legacy string) string {
	h := strings.TrimSpace(primary)
	if h == "" {
		h = strings.TrimSpace(legacy)
	}
	h = strings.ToLower(h)
	return strings.TrimPrefix(h, "0x")
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
