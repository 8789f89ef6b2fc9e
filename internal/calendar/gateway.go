// Package calendar is the boundary to the external calendar service.
package calendar

import (
	"context"
	"fmt"
	"time"
)

// Operations reported in UpstreamError.
const (
	OpFreeBusy = "freebusy"
	OpInsert   = "insert"
	OpList     = "list"
)

// SendUpdatesAll asks the calendar service to email invitations to attendees.
const SendUpdatesAll = "all"

// BusyInterval is an occupied [Start, End) range reported by a calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the interval.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && b.Start.Before(end)
}

// Reminder is a reminder override on an event.
type Reminder struct {
	Method  string
	Minutes int64
}

// Event is the subset of a calendar event this service writes and reads.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
	Reminders   []Reminder
	SendUpdates string
}

// Gateway queries free/busy and writes events.
type Gateway interface {
	// FreeBusy returns busy intervals keyed by calendar ID for [start, end).
	FreeBusy(ctx context.Context, start, end time.Time, calendarIDs []string) (map[string][]BusyInterval, error)
	// InsertEvent creates the event and returns its ID.
	InsertEvent(ctx context.Context, calendarID string, ev *Event) (string, error)
	// ListEvents returns non-cancelled events overlapping [start, end).
	ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error)
}

// CalendarError is a per-calendar failure reported inside a free/busy response.
type CalendarError struct {
	CalendarID string
	Reason     string
}

func (e *CalendarError) Error() string {
	return fmt.Sprintf("calendar %s: %s", e.CalendarID, e.Reason)
}

// UpstreamError wraps a failed call to the calendar service.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("calendar %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Merge flattens per-calendar busy intervals into one set.
func Merge(byCalendar map[string][]BusyInterval) []BusyInterval {
	n := 0
	for _, intervals := range byCalendar {
		n += len(intervals)
	}
	out := make([]BusyInterval, 0, n)
	for _, intervals := range byCalendar {
		out = append(out, intervals...)
	}
	return out
}
