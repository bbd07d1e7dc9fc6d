package sqlite

import (
	"fmt"
	"time"
)

// storedTimeLayout is a fixed-width UTC layout so lexicographic comparison of
// stored timestamps (the expiry-window query) matches chronological order.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders a timestamp in the canonical stored form.
func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// parseTime parses a stored timestamp, tolerating the formats older rows were
// written with.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		storedTimeLayout,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
