package billingmonth

import (
	"errors"
	"time"
)

// A billing month is the canonical "YYYY-MM" key used by invoice runs and
// reconciliation.
const Layout = "2006-01"

var ErrInvalid = errors.New("invalid_billing_month")

// Parse validates a billing month key and returns its half-open UTC range
// [start, end).
func Parse(month string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(Layout, month, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalid
	}
	return start, start.AddDate(0, 1, 0), nil
}

// Format returns the billing month key containing t.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Previous returns the key of the month before t's month.
func Previous(t time.Time) string {
	year, month, _ := t.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0).Format(Layout)
}
