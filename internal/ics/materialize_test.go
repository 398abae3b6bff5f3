package ics_test

import (
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Omihmed/CalDAV2iCal/internal/ics"
)

func TestMaterialize(t *testing.T) {
	windowStart := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 365)

	convey.Convey("Given a non-recurring event", t, func() {
		start := time.Date(2027, 3, 15, 10, 0, 0, 0, time.UTC)
		ev, err := ics.Normalize(eventPayload("evt-1", "one-off", start, start.Add(time.Hour)))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When it is materialized", func() {
			out := ics.Materialize(ev, windowStart, windowEnd)

			convey.Convey("Then it passes through unchanged", func() {
				convey.So(out, convey.ShouldHaveLength, 1)
				convey.So(out[0], convey.ShouldEqual, ev)
			})
		})
	})

	convey.Convey("Given an unexpanded recurring event", t, func() {
		start := time.Date(2027, 3, 10, 9, 0, 0, 0, time.UTC)
		ev, err := ics.Normalize(recurringPayload("evt-rec", "standup", start, "FREQ=DAILY;COUNT=3"))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When it is materialized", func() {
			out := ics.Materialize(ev, windowStart, windowEnd)

			convey.Convey("Then each instance becomes its own occurrence", func() {
				convey.So(out, convey.ShouldHaveLength, 3)
				for i, occ := range out {
					convey.So(occ.Start.Equal(start.AddDate(0, 0, i)), convey.ShouldBeTrue)
					convey.So(occ.End.Sub(occ.Start), convey.ShouldEqual, time.Hour)
					convey.So(occ.UID, convey.ShouldEqual, "evt-rec")
				}
			})

			convey.Convey("Then the copies carry no RRULE", func() {
				for _, occ := range out {
					convey.So(occ.RRule, convey.ShouldBeEmpty)
					convey.So(occ.Raw, convey.ShouldNotContainSubstring, "RRULE")
				}
			})
		})

		convey.Convey("When the window misses every occurrence", func() {
			out := ics.Materialize(ev, start.AddDate(1, 0, 0), start.AddDate(2, 0, 0))

			convey.Convey("Then nothing is produced", func() {
				convey.So(out, convey.ShouldBeEmpty)
			})
		})
	})

	convey.Convey("Given a recurring event without a usable duration", t, func() {
		start := time.Date(2027, 3, 10, 9, 0, 0, 0, time.UTC)
		payload := []byte("BEGIN:VCALENDAR\r\n" +
			"VERSION:2.0\r\n" +
			"PRODID:-//test//EN\r\n" +
			"BEGIN:VEVENT\r\n" +
			"UID:evt-noend\r\n" +
			"DTSTAMP:20250101T000000Z\r\n" +
			"DTSTART:" + start.UTC().Format(icsTimeLayout) + "\r\n" +
			"DTEND:" + start.UTC().Format(icsTimeLayout) + "\r\n" +
			"RRULE:FREQ=DAILY;COUNT=2\r\n" +
			"SUMMARY:open ended\r\n" +
			"END:VEVENT\r\n" +
			"END:VCALENDAR\r\n")
		ev, err := ics.Normalize(payload)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When it is materialized", func() {
			out := ics.Materialize(ev, windowStart, windowEnd)

			convey.Convey("Then occurrences never keep the base event's end", func() {
				convey.So(out, convey.ShouldHaveLength, 2)
				for i, occ := range out {
					convey.So(occ.Start.Equal(start.AddDate(0, 0, i)), convey.ShouldBeTrue)
					convey.So(occ.End.IsZero(), convey.ShouldBeTrue)
					convey.So(occ.Raw, convey.ShouldNotContainSubstring, "DTEND")
				}
			})
		})
	})

	convey.Convey("Given an event with an unparseable RRULE", t, func() {
		start := time.Date(2027, 3, 10, 9, 0, 0, 0, time.UTC)
		ev, err := ics.Normalize(recurringPayload("evt-bad", "broken", start, "FREQ=NONSENSE"))
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When it is materialized", func() {
			out := ics.Materialize(ev, windowStart, windowEnd)

			convey.Convey("Then it degrades to the single base event", func() {
				convey.So(out, convey.ShouldHaveLength, 1)
				convey.So(out[0], convey.ShouldEqual, ev)
			})
		})
	})
}
