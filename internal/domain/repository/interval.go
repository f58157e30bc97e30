package repository

// Interval represents bar resolution requested from market data providers.
type Interval string

const (
	IntervalDay  Interval = "day"
	IntervalWeek Interval = "week"
	IntervalHour Interval = "60minute"
)

// IsValidInterval returns true if iv is a supported interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case IntervalDay, IntervalWeek, IntervalHour:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return IntervalDay }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// Timeframe maps an interval to the timeframe label stored on signals.
func (iv Interval) Timeframe() string {
	switch iv {
	case IntervalWeek:
		return "weekly"
	case IntervalHour:
		return "hourly"
	default:
		return "daily"
	}
}
