package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// layouts accepted from meters and ingestion clients, tried in order.
// Layouts without an offset are read as wall-clock time in the caller's location.
var layouts = []string{
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
	"2006-01-02 15:04:05", // database export
	"2006-01-02T15:04:05", // ISO without offset
	time.RFC3339Nano,      // ISO with offset
}

// ParseMeterTimestamp parses a reading timestamp, interpreting zone-less layouts in loc
func ParseMeterTimestamp(dateStr string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	dateStr = strings.TrimSpace(dateStr)

	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, dateStr, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// IsWithinTolerance reports whether readingTime lies within tolerance of receivedTime
// in either direction. A non-positive tolerance accepts any time.
func IsWithinTolerance(readingTime, receivedTime time.Time, tolerance time.Duration) bool {
	if tolerance <= 0 {
		return true
	}
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}
