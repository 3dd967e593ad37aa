package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoRunMonth(t *testing.T) {
	_, err := AutoRunMonth(time.Date(2024, 7, 2, 23, 0, 0, 0, time.UTC), 3)
	assert.ErrorIs(t, err, ErrNotDue)

	month, err := AutoRunMonth(time.Date(2024, 7, 3, 0, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Equal(t, "2024-06", month)

	month, err = AutoRunMonth(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Equal(t, "2023-12", month)
}

func TestSweepDay(t *testing.T) {
	now := time.Date(2024, 7, 3, 2, 15, 0, 0, time.UTC)

	_, err := SweepDay(now.Add(-time.Hour), 2, "")
	assert.ErrorIs(t, err, ErrNotDue)

	day, err := SweepDay(now, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-03", day)

	_, err = SweepDay(now, 2, "2024-07-03")
	assert.ErrorIs(t, err, ErrNotDue)

	day, err = SweepDay(now.Add(24*time.Hour), 2, "2024-07-03")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-04", day)
}
