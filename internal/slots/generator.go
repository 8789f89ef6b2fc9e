package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sagemind/internal/calendar"
	"sagemind/internal/metrics"
	"sagemind/internal/timezone"
)

// DateKeyLayout formats the local date keys of an Availability.
const DateKeyLayout = "2006-01-02"

// TimeSlot is a bookable [Start, End) interval with a precomputed local label.
type TimeSlot struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Display string    `json:"display"` // "9:30 AM"
}

// Availability maps local dates (YYYY-MM-DD) to that day's free slots in
// chronological order. Days without free slots are absent.
type Availability map[string][]TimeSlot

// Dates returns the keys in chronological order.
func (a Availability) Dates() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the total number of slots.
func (a Availability) Count() int {
	n := 0
	for _, s := range a {
		n += len(s)
	}
	return n
}

// Config holds the scheduling parameters.
type Config struct {
	CalendarIDs   []string
	DaysAhead     int
	MeetingLength time.Duration
	DayStartHour  int // 9
	DayEndHour    int // 17
}

// DefaultConfig returns a two-week window of 30-minute slots from 9 to 17.
func DefaultConfig() Config {
	return Config{
		CalendarIDs:   []string{"primary"},
		DaysAhead:     14,
		MeetingLength: 30 * time.Minute,
		DayStartHour:  9,
		DayEndHour:    17,
	}
}

// Generator computes free slots against one or more calendars.
type Generator struct {
	gateway calendar.Gateway
	tz      timezone.Resolver
	cfg     Config
}

// NewGenerator creates a generator. Zero config fields take DefaultConfig values.
func NewGenerator(gateway calendar.Gateway, tz timezone.Resolver, cfg Config) *Generator {
	def := DefaultConfig()
	if len(cfg.CalendarIDs) == 0 {
		cfg.CalendarIDs = def.CalendarIDs
	}
	if cfg.DaysAhead <= 0 {
		cfg.DaysAhead = def.DaysAhead
	}
	if cfg.MeetingLength <= 0 {
		cfg.MeetingLength = def.MeetingLength
	}
	if cfg.DayEndHour <= cfg.DayStartHour {
		cfg.DayStartHour, cfg.DayEndHour = def.DayStartHour, def.DayEndHour
	}
	return &Generator{gateway: gateway, tz: tz, cfg: cfg}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// ComputeAvailability returns free slots from tomorrow (local) for DaysAhead
// local days. A gateway failure is returned as *calendar.UpstreamError; an
// empty result means there are genuinely no free slots.
func (g *Generator) ComputeAvailability(ctx context.Context, now time.Time) (Availability, error) {
	started := time.Now()

	first, windowStart, windowEnd := g.window(now)

	byCalendar, err := g.gateway.FreeBusy(ctx, windowStart, windowEnd, g.cfg.CalendarIDs)
	if err != nil {
		metrics.ObserveAvailability("error", time.Since(started))
		return nil, &calendar.UpstreamError{Op: calendar.OpFreeBusy, Err: err}
	}
	busy := calendar.Merge(byCalendar)

	result := make(Availability)
	for i := 0; i < g.cfg.DaysAhead; i++ {
		day := first.AddDate(0, 0, i)
		if isWeekend(day.Weekday()) {
			continue
		}
		if daySlots := g.daySlots(day, now, busy); len(daySlots) > 0 {
			result[day.Format(DateKeyLayout)] = daySlots
		}
	}

	metrics.ObserveAvailability("ok", time.Since(started))
	metrics.SetSlotsOffered(result.Count())
	return result, nil
}

// window returns the first local day (civil date in UTC fields) and the
// [start, end) instants of the offered range for now.
func (g *Generator) window(now time.Time) (first, start, end time.Time) {
	y, m, d := timezone.LocalDate(g.tz, now)
	first = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	last := first.AddDate(0, 0, g.cfg.DaysAhead)

	start = timezone.Instant(g.tz, first.Year(), first.Month(), first.Day(), 0, 0)
	end = timezone.Instant(g.tz, last.Year(), last.Month(), last.Day(), 0, 0)
	return first, start, end
}

// InWindow reports whether start falls inside the range ComputeAvailability
// would offer at now: from tomorrow (local) for DaysAhead local days.
func (g *Generator) InWindow(start, now time.Time) bool {
	_, from, to := g.window(now)
	return !start.Before(from) && start.Before(to)
}

// daySlots enumerates the free slots of one local day. day carries the local
// civil date in its UTC fields.
func (g *Generator) daySlots(day, now time.Time, busy []calendar.BusyInterval) []TimeSlot {
	step := g.stepMinutes()
	length := g.cfg.MeetingLength
	var slots []TimeSlot

	for minutes := g.cfg.DayStartHour * 60; minutes+int(length/time.Minute) <= g.cfg.DayEndHour*60; minutes += step {
		hour, minute := minutes/60, minutes%60
		start := timezone.Instant(g.tz, day.Year(), day.Month(), day.Day(), hour, minute)
		end := start.Add(length)

		if !start.After(now) {
			continue
		}
		if overlapsAny(start, end, busy) {
			continue
		}

		slots = append(slots, TimeSlot{
			Start:   start,
			End:     end,
			Display: FormatDisplay(hour, minute),
		})
	}
	return slots
}

// IsCandidate reports whether [start, end) is a slot this generator could
// offer: correct length, on a local weekday, aligned to the slot grid and
// inside business hours. It does not consult calendars or the clock.
func (g *Generator) IsCandidate(start, end time.Time) bool {
	if end.Sub(start) != g.cfg.MeetingLength {
		return false
	}

	local := timezone.In(g.tz, start)
	if isWeekend(local.Weekday()) || local.Second() != 0 || local.Nanosecond() != 0 {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	startMin := g.cfg.DayStartHour * 60
	if minutes < startMin || minutes+int(g.cfg.MeetingLength/time.Minute) > g.cfg.DayEndHour*60 {
		return false
	}
	return (minutes-startMin)%g.stepMinutes() == 0
}

func (g *Generator) stepMinutes() int {
	return int(g.cfg.MeetingLength / time.Minute)
}

// FormatDisplay renders a local hour and minute as "h:mm AM/PM".
func FormatDisplay(hour, minute int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, period)
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func overlapsAny(start, end time.Time, busy []calendar.BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
