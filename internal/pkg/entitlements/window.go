package entitlements

import "time"

// window is a half-open [Start, End) range in UTC.
type window struct {
	Start time.Time
	End   time.Time
}

// dayWindow is the calendar day containing now in loc.
func dayWindow(now time.Time, loc *time.Location) window {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return window{Start: start.UTC(), End: start.AddDate(0, 0, 1).UTC()}
}

// monthWindow is the calendar month containing now in loc.
func monthWindow(now time.Time, loc *time.Location) window {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return window{Start: start.UTC(), End: start.AddDate(0, 1, 0).UTC()}
}

// remaining returns cap-used clamped at zero, or nil for an unlimited cap.
func remaining(limit *int, used int64) *int {
	if limit == nil {
		return nil
	}
	r := *limit - int(used)
	if r < 0 {
		r = 0
	}
	return &r
}

func withinCap(limit *int, used int64) bool {
	return limit == nil || used < int64(*limit)
}
