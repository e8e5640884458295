package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is the opaque pagination state we encode/decode.
// DateSec + DateNsec + RowID mirror the date DESC, id DESC row order at full
// timestamp precision. Seconds and nanoseconds are kept apart because the
// zero time of undated rows does not fit in int64 nanoseconds.
type Cursor struct {
	RowID    string `json:"row_id"`
	DateSec  int64  `json:"date_sec"`
	DateNsec int64  `json:"date_nsec"`
}

// Empty reports whether the cursor points at the first page.
func (c Cursor) Empty() bool { return c.RowID == "" }

// After reports whether a row with (date, id) sorts strictly after the cursor
// in date DESC, id DESC order.
func (c Cursor) After(date time.Time, id string) bool {
	if c.Empty() {
		return true
	}
	sec, nsec := date.Unix(), int64(date.Nanosecond())
	if sec != c.DateSec {
		return sec < c.DateSec
	}
	if nsec != c.DateNsec {
		return nsec < c.DateNsec
	}
	return id < c.RowID
}

// At builds the cursor for a row.
func At(date time.Time, id string) Cursor {
	return Cursor{RowID: id, DateSec: date.Unix(), DateNsec: int64(date.Nanosecond())}
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}
	return c, nil
}
