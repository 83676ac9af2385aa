package domain

import (
	"fmt"
	"time"
)

// JoinWindow is the inclusive range of accepted join dates.
type JoinWindow struct {
	Min time.Time
	Max time.Time
}

// DefaultJoinWindow matches the current campaign: 2017-09-06 .. 2025-09-05.
func DefaultJoinWindow() JoinWindow {
	return JoinWindow{
		Min: time.Date(2017, 9, 6, 0, 0, 0, 0, time.UTC),
		Max: time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC),
	}
}

// ParseJoinWindow builds a window from two YYYY-MM-DD strings; empty values
// keep the default bound.
func ParseJoinWindow(minRaw, maxRaw string) (JoinWindow, error) {
	w := DefaultJoinWindow()
	if minRaw != "" {
		d, err := ParseDate(minRaw)
		if err != nil {
			return w, fmt.Errorf("min join date: %w", err)
		}
		w.Min = d
	}
	if maxRaw != "" {
		d, err := ParseDate(maxRaw)
		if err != nil {
			return w, fmt.Errorf("max join date: %w", err)
		}
		w.Max = d
	}
	if w.Max.Before(w.Min) {
		return w, fmt.Errorf("join window max %s before min %s", FormatDate(w.Max), FormatDate(w.Min))
	}
	return w, nil
}

// Check returns ErrJoinDateOutOfRange when d is outside the window.
func (w JoinWindow) Check(d time.Time) error {
	if d.Before(w.Min) || d.After(w.Max) {
		return ErrJoinDateOutOfRange
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// ParseTargetDate parses the anniversary target date. An empty value yields
// the zero time, which callers treat as today.
func ParseTargetDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("target date: %w", err)
	}
	return d, nil
}

// FormatDate formats d as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// ChineseDate formats d as "2017年9月6日".
func ChineseDate(d time.Time) string {
	return fmt.Sprintf("%d年%d月%d日", d.Year(), int(d.Month()), d.Day())
}

// DaysBetween counts whole days from start to target (negative if target is earlier).
func DaysBetween(start, target time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(s).Hours() / 24)
}
