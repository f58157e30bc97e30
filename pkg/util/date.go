package util

import (
	"strconv"
	"time"
)

var timeLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05" and bare dates (both
// read as UTC), or positive unix seconds.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}
