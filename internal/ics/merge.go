package ics

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Fixed identity of the combined calendar artifact.
const (
	ProductID       = "-//CalDAV2iCal//Combined Calendar//EN"
	CalendarVersion = "2.0"
)

// BuildCombined assembles a fresh combined calendar from the given
// events. Only events with a concrete start time at or after cutoff
// survive; all-day and past events are dropped. The surviving events are
// appended in the order received and also returned so the caller can log
// each addition.
//
// An empty input still yields a fully-formed, valid calendar.
func BuildCombined(events []*Event, cutoff time.Time) (*ical.Calendar, []*Event) {
	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetVersion(CalendarVersion)

	var added []*Event
	for _, ev := range events {
		if ev == nil || ev.AllDay || ev.Start.IsZero() || ev.Start.Before(cutoff) {
			continue
		}
		cal.AddVEvent(ev.component)
		added = append(added, ev)
	}
	return cal, added
}

// WriteArtifact replaces the combined calendar file atomically: the new
// content lands in a temp file in the same directory and is renamed over
// the target, so concurrent downloads never observe a partial document
// and a failed sync never corrupts the previous artifact.
func WriteArtifact(path string, cal *ical.Calendar) error {
	if path == "" {
		return errors.New("artifact path is empty")
	}
	if cal == nil {
		return errors.New("calendar is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calendar-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(cal.Serialize()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
