package moodle

import (
	"fmt"
	"time"

	"github.com/vhramos/moodle-calendar-sync/internal/event"
)

// DefaultTimeZone is the display zone attached to normalized events. It
// labels the instant for the sink; it does not shift it.
const DefaultTimeZone = "America/Sao_Paulo"

// coursePlaceholder stands in when an event carries no course.
const coursePlaceholder = "No course"

// Normalize flattens the week -> day -> event trees of the supplied months
// into sink-ready events and filters them to the requested range. The range
// end is inclusive through 23:59:59.999 of its day. Pure: no I/O, identical
// output for identical input.
func Normalize(months []*MonthData, rangeStart, rangeEnd time.Time, timeZone string) []event.Event {
	if timeZone == "" {
		timeZone = DefaultTimeZone
	}
	windowEnd := EndOfDay(rangeEnd)

	var events []event.Event
	for _, month := range months {
		if month == nil {
			continue
		}
		for _, week := range month.Weeks {
			for _, day := range week.Days {
				for _, raw := range day.Events {
					ev := normalizeOne(raw, timeZone)
					if !withinWindow(ev.Start.Time, rangeStart, windowEnd) {
						continue
					}
					events = append(events, ev)
				}
			}
		}
	}
	return events
}

// withinWindow is the filter predicate: inclusive on both ends.
func withinWindow(start, windowStart, windowEnd time.Time) bool {
	return !start.Before(windowStart) && !start.After(windowEnd)
}

// EndOfDay returns t pushed to 23:59:59.999 of its calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

func normalizeOne(raw RawEvent, timeZone string) event.Event {
	start := time.Unix(raw.TimeStart, 0).UTC()
	end := start.Add(time.Duration(raw.TimeDuration) * time.Second)

	course := coursePlaceholder
	if raw.Course != nil && raw.Course.FullName != "" {
		course = raw.Course.FullName
	}

	return event.Event{
		Summary:  raw.Name,
		Location: raw.Location,
		Start:    event.DateTime{Time: start, TimeZone: timeZone},
		End:      event.DateTime{Time: end, TimeZone: timeZone},
		Description: fmt.Sprintf("Course: %s\n%s\nURL: %s",
			course, raw.Description, raw.URL),
		Source: event.SourceRef{
			Title: "Moodle Event",
			URL:   raw.URL,
		},
	}
}
