package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2025, 3, 2, 8, 0, 0, 123456789, time.UTC)
	token, err := Encode(At(at, "ig-1"))
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "ig-1", c.RowID)
	assert.Equal(t, at.Unix(), c.DateSec)
	assert.Equal(t, int64(123456789), c.DateNsec)

	_, err = Decode("%%%")
	assert.Error(t, err)

	c, err = Decode("")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestCursorAfter(t *testing.T) {
	at := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	c := At(at, "m")

	assert.True(t, c.After(at.Add(-time.Minute), "z"), "older rows come after")
	assert.False(t, c.After(at.Add(time.Minute), "a"), "newer rows come before")
	assert.True(t, c.After(at, "a"), "same date, smaller id comes after")
	assert.False(t, c.After(at, "m"))
	assert.True(t, c.After(time.Time{}, "x"), "undated rows sort last")
	assert.True(t, Cursor{}.After(at, "any"))
}

func TestCursorAfterSubMillisecond(t *testing.T) {
	at := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	// both rows share a millisecond; the later one has the smaller id
	c := At(at.Add(500*time.Microsecond), "a")

	assert.True(t, c.After(at.Add(200*time.Microsecond), "z"), "older row in the same millisecond comes after")
	assert.False(t, c.After(at.Add(700*time.Microsecond), "0"), "newer row in the same millisecond comes before")
}

func TestCursorUndatedRows(t *testing.T) {
	c := At(time.Time{}, "m")

	assert.True(t, c.After(time.Time{}, "a"))
	assert.False(t, c.After(time.Time{}, "z"))
	assert.False(t, c.After(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), "a"))
}
