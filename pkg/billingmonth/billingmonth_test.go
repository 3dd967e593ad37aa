package billingmonth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	start, end, err := Parse("2024-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestParse_Invalid(t *testing.T) {
	for _, month := range []string{"", "2024", "2024-13", "06-2024", "2024-6"} {
		_, _, err := Parse(month)
		assert.ErrorIs(t, err, ErrInvalid, month)
	}
}

func TestPrevious(t *testing.T) {
	assert.Equal(t, "2023-12", Previous(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-05", Previous(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}
