// Package ics turns raw calendar payloads fetched from remote servers
// into normalized events and merges them into the combined calendar
// artifact.
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// serializationConfig mirrors the library's unexported defaults.
var serializationConfig = &ical.SerializationConfiguration{
	MaxLength:         75,
	PropertyMaxLength: 75,
	NewLine:           "\r\n",
}

// Event is the normalized in-memory form of one remote calendar event.
type Event struct {
	UID     string
	Summary string

	// Start and End are absolute instants. An event whose DTSTART is a
	// date without a time component carries AllDay=true and does not
	// satisfy the "future and dated" merge filter.
	Start  time.Time
	End    time.Time
	AllDay bool

	// RRule is the raw RRULE value when the server returned the event
	// unexpanded; the materializer expands it client-side.
	RRule string

	// Raw is the canonical serialized VEVENT, kept so the merge step
	// never re-parses the payload.
	Raw string

	component *ical.VEvent
}

// Normalize parses one raw calendar payload and extracts the first VEVENT
// found. It fails soft: any parse problem is returned as an error for the
// caller to log, and never aborts the surrounding batch.
func Normalize(payload []byte) (*Event, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty event payload")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	events := cal.Events()
	if len(events) == 0 {
		return nil, errors.New("no VEVENT component in payload")
	}

	return fromVEvent(events[0])
}

func fromVEvent(ve *ical.VEvent) (*Event, error) {
	out := &Event{component: ve}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return nil, errors.New("event has no DTSTART")
	}

	// All-day events carry VALUE=DATE or a date-only DTSTART value.
	if params := dtStart.ICalParameters; params != nil {
		if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	// Library helpers resolve TZID/VTIMEZONE into concrete instants.
	if out.AllDay {
		if start, err := ve.GetAllDayStartAt(); err == nil {
			out.Start = start
		}
		if end, err := ve.GetAllDayEndAt(); err == nil {
			out.End = end
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return nil, err
		}
		out.Start = start
		if end, err := ve.GetEndAt(); err == nil {
			out.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	out.Raw = ve.Serialize(serializationConfig)
	return out, nil
}
