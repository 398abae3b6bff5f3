package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "github.com/Omihmed/CalDAV2iCal/internal/log"
)

// maxOccurrencesPerEvent caps client-side expansion so a pathological
// RRULE cannot blow up a sync job.
const maxOccurrencesPerEvent = 1000

// Materialize expands an event that still carries an RRULE into one copy
// per occurrence inside [windowStart, windowEnd]. Fetched events arrive
// unexpanded, so this is where recurrences become concrete instances.
//
// Non-recurring events pass through unchanged. An unparseable rule
// degrades to the single base event.
func Materialize(ev *Event, windowStart, windowEnd time.Time) []*Event {
	if ev.RRule == "" || ev.AllDay {
		return []*Event{ev}
	}

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		appLog.Error("failed to parse RRULE, keeping base event", err, "uid", ev.UID, "rrule", ev.RRule)
		return []*Event{ev}
	}
	r.DTStart(ev.Start)

	starts := r.Between(windowStart.In(ev.Start.Location()), windowEnd.In(ev.Start.Location()), true)
	if len(starts) == 0 {
		return nil
	}
	if len(starts) > maxOccurrencesPerEvent {
		appLog.Warn("truncating occurrences for recurring event", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		starts = starts[:maxOccurrencesPerEvent]
	}

	duration := ev.End.Sub(ev.Start)

	out := make([]*Event, 0, len(starts))
	for _, start := range starts {
		occ, err := ev.occurrenceAt(start, duration)
		if err != nil {
			appLog.Error("failed to materialize occurrence", err, "uid", ev.UID)
			continue
		}
		out = append(out, occ)
	}
	return out
}

// occurrenceAt clones the event at a concrete start time: DTSTART/DTEND
// are rewritten and the RRULE is stripped so downstream readers see a
// plain single occurrence.
func (e *Event) occurrenceAt(start time.Time, duration time.Duration) (*Event, error) {
	// Round-trip through the serialized form; VEvent has no deep copy.
	wrapped := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" + e.Raw + "END:VCALENDAR\r\n"
	cal, err := ical.ParseCalendar(strings.NewReader(wrapped))
	if err != nil {
		return nil, err
	}
	ve := cal.Events()[0]

	ve.RemoveProperty(ical.ComponentPropertyRrule)
	ve.SetStartAt(start)
	end := e.End
	if duration > 0 {
		end = start.Add(duration)
		ve.SetEndAt(end)
	} else {
		// A stale DTEND from the base event would end before the
		// rewritten start.
		ve.RemoveProperty(ical.ComponentPropertyDtEnd)
		end = time.Time{}
	}

	return &Event{
		UID:       e.UID,
		Summary:   e.Summary,
		Start:     start,
		End:       end,
		Raw:       ve.Serialize(serializationConfig),
		component: ve,
	}, nil
}
