package core

import (
	"fmt"
	"strings"
	"time"
)

// deviceLayouts are tried in order when parsing timestamps reported by the pump.
// Zone-less layouts are interpreted in the caller's location.
var deviceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	DeviceDatetimeFmt,
	"2006-01-02T15:04",
	CLIDatetimeFmt,
	"2006-01-02 15:04",
}

// GetTZ returns a *time.Location for the given timezone name.
// An empty name or "Local" selects the host zone; unknown names fall back to UTC.
func GetTZ(name string) *time.Location {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseDeviceTime parses an ISO-8601 style timestamp from the pump.
func ParseDeviceTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range deviceLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp '%s'", s)
}

// FormatDeviceTime formats t the way the pump expects datetime arguments.
func FormatDeviceTime(t time.Time) string {
	return t.Format(DeviceDatetimeFmt)
}

// TruncateToMinute drops seconds and sub-second precision on the wall clock.
func TruncateToMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// MinutesOfDay returns the wall-clock offset of t from midnight in minutes.
func MinutesOfDay(t time.Time) float64 {
	return float64(t.Hour())*60 + float64(t.Minute()) + float64(t.Second())/60
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" into a time on the zero date.
// An empty string yields the current wall-clock time.
func ParseTimeOfDay(s string, loc *time.Location) (time.Time, error) {
	if s == "" || s == "now" {
		return time.Now().In(loc), nil
	}
	for _, layout := range []string{CLITimeFmt, "15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time '%s' (expected HH:MM or HH:MM:SS)", s)
}

// ParseDatetime parses a CLI datetime argument ("now", "YYYY-MM-DD HH:MM:SS" or ISO-8601).
func ParseDatetime(s string, loc *time.Location) (time.Time, error) {
	if s == "" || s == "now" {
		return time.Now().In(loc), nil
	}
	t, err := ParseDeviceTime(s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime '%s' (expected YYYY-MM-DD HH:MM:SS)", s)
	}
	return t, nil
}
