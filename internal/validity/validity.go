package validity

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusExpiringSoon Status = "expiring_soon"
	StatusExpired      Status = "expired"
)

// DisplayLayout is the format dates are shown in across the permit domain.
const DisplayLayout = "02-01-2006"

// DefaultExpiringWindow is how far ahead a validity end counts as expiring soon.
const DefaultExpiringWindow = 30 * 24 * time.Hour

type DateFilter string

const (
	FilterExpiring30Days DateFilter = "Expiring30Days"
	FilterExpiring60Days DateFilter = "Expiring60Days"
	FilterExpired        DateFilter = "Expired"
)

var inputLayouts = []string{
	DisplayLayout,
	"2006-01-02",
	"2-1-2006",
}

// ParseDate accepts DD-MM-YYYY, DD/MM/YYYY and YYYY-MM-DD and returns the
// calendar day at midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), "/", "-")
	if normalized == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range inputLayouts {
		if parsed, err := time.Parse(layout, normalized); err == nil {
			return DateOnly(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected DD-MM-YYYY", raw)
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DisplayLayout)
}

func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Classify applies the threshold rule: a validity end before today is expired,
// one within window of today (inclusive, to the end of that day) is expiring
// soon, anything later is active.
func Classify(validTo, today time.Time, window time.Duration) Status {
	start := DateOnly(today)
	end := DateOnly(today.Add(window)).Add(24*time.Hour - time.Millisecond)
	day := DateOnly(validTo)

	switch {
	case day.Before(start):
		return StatusExpired
	case !day.After(end):
		return StatusExpiringSoon
	default:
		return StatusActive
	}
}

// StatusFor parses a display date and classifies it with the default window.
// ok is false when the date cannot be parsed.
func StatusFor(raw string, today time.Time) (Status, bool) {
	validTo, err := ParseDate(raw)
	if err != nil {
		return "", false
	}
	return Classify(validTo, today, DefaultExpiringWindow), true
}

// DaysUntil returns whole calendar days from today to validTo; negative once
// validTo has passed.
func DaysUntil(validTo, today time.Time) int {
	return int(DateOnly(validTo).Sub(DateOnly(today)).Hours() / 24)
}

func ParseDateFilter(raw string) (DateFilter, error) {
	switch DateFilter(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case FilterExpiring30Days:
		return FilterExpiring30Days, nil
	case FilterExpiring60Days:
		return FilterExpiring60Days, nil
	case FilterExpired:
		return FilterExpired, nil
	default:
		return "", fmt.Errorf("unknown date filter %q", raw)
	}
}

// Matches reports whether a validity end passes the filter. An empty filter
// matches everything.
func (f DateFilter) Matches(validTo, today time.Time) bool {
	if f == "" {
		return true
	}
	if validTo.IsZero() {
		return false
	}
	days := DaysUntil(validTo, today)
	switch f {
	case FilterExpiring30Days:
		return days >= 0 && days <= 30
	case FilterExpiring60Days:
		return days >= 0 && days <= 60
	case FilterExpired:
		return days < 0
	default:
		return false
	}
}

// InForce reports whether a stored status marks the current row of a chain.
func (s Status) InForce() bool {
	return s == StatusActive || s == StatusExpiringSoon
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpiringSoon, StatusExpired:
		return true
	}
	return false
}
