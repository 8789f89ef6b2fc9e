// Package calendartest provides an in-memory calendar.Gateway for tests.
package calendartest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sagemind/internal/calendar"
)

// Fake is an in-memory calendar. Inserted events are recorded and, when
// InsertMarksBusy is set, reported as busy by later free/busy queries.
type Fake struct {
	mu sync.Mutex

	busy   map[string][]calendar.BusyInterval
	events map[string][]calendar.Event

	InsertMarksBusy bool

	FreeBusyErr error
	InsertErr   error
	ListErr     error

	// AfterFreeBusy runs after a free/busy result is computed, outside the lock.
	AfterFreeBusy func()

	FreeBusyCalls int
	LastWindow    [2]time.Time
	LastIDs       []string
	Inserted      []calendar.Event
}

func New() *Fake {
	return &Fake{
		busy:   make(map[string][]calendar.BusyInterval),
		events: make(map[string][]calendar.Event),
	}
}

// AddBusy registers a busy interval on a calendar.
func (f *Fake) AddBusy(calendarID string, start, end time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy[calendarID] = append(f.busy[calendarID], calendar.BusyInterval{Start: start, End: end})
}

func (f *Fake) FreeBusy(_ context.Context, start, end time.Time, calendarIDs []string) (map[string][]calendar.BusyInterval, error) {
	f.mu.Lock()
	f.FreeBusyCalls++
	f.LastWindow = [2]time.Time{start, end}
	f.LastIDs = append([]string(nil), calendarIDs...)
	if f.FreeBusyErr != nil {
		err := f.FreeBusyErr
		f.mu.Unlock()
		return nil, err
	}

	out := make(map[string][]calendar.BusyInterval, len(calendarIDs))
	for _, id := range calendarIDs {
		intervals := make([]calendar.BusyInterval, 0)
		for _, b := range f.busy[id] {
			if b.Overlaps(start, end) {
				intervals = append(intervals, b)
			}
		}
		out[id] = intervals
	}
	hook := f.AfterFreeBusy
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *Fake) InsertEvent(_ context.Context, calendarID string, ev *calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InsertErr != nil {
		return "", f.InsertErr
	}

	stored := *ev
	stored.ID = uuid.NewString()
	f.events[calendarID] = append(f.events[calendarID], stored)
	f.Inserted = append(f.Inserted, stored)
	if f.InsertMarksBusy {
		f.busy[calendarID] = append(f.busy[calendarID], calendar.BusyInterval{Start: ev.Start, End: ev.End})
	}
	return stored.ID, nil
}

func (f *Fake) ListEvents(_ context.Context, calendarID string, start, end time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var out []calendar.Event
	for _, ev := range f.events[calendarID] {
		if ev.Start.Before(end) && start.Before(ev.End) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// InsertedCount returns the number of events created so far.
func (f *Fake) InsertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Inserted)
}
