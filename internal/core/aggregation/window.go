package aggregation

import (
	"fmt"
	"time"
)

// DayBucket returns the UTC calendar date of t as midnight UTC.
// Example: DayBucket(2024-03-01T23:59:59Z) → 2024-03-01T00:00:00Z
func DayBucket(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date into its UTC bucket.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
