package guard

import (
	"errors"
	"time"

	"github.com/smallbiznis/cirrus/pkg/billingmonth"
)

var ErrNotDue = errors.New("job_not_due")

const dayLayout = "2006-01-02"

// AutoRunMonth returns the billing month the automatic invoice run should
// cover. The run is due once the configured day of month has been reached,
// which guarantees the previous month has fully elapsed.
func AutoRunMonth(now time.Time, dayOfMonth int) (string, error) {
	if dayOfMonth < 1 {
		dayOfMonth = 1
	}
	if now.UTC().Day() < dayOfMonth {
		return "", ErrNotDue
	}
	return billingmonth.Previous(now), nil
}

// SweepDay returns today's UTC day key when the daily credit expiry sweep is
// due: the configured hour has been reached and no sweep ran today.
func SweepDay(now time.Time, hourUTC int, lastSweepDay string) (string, error) {
	now = now.UTC()
	if now.Hour() < hourUTC {
		return "", ErrNotDue
	}
	day := now.Format(dayLayout)
	if day == lastSweepDay {
		return "", ErrNotDue
	}
	return day, nil
}
