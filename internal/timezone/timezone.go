// Package timezone converts business wall-clock times in one civil timezone
// to absolute instants and back.
package timezone

import (
	"errors"
	"fmt"
	"time"

	// Embedded zone database so LoadZone works on hosts without /usr/share/zoneinfo.
	_ "time/tzdata"
)

const (
	// RuleZone resolves offsets from the timezone database.
	RuleZone = "zone"
	// RulePacific resolves offsets with the fixed US Pacific DST rule.
	RulePacific = "pacific"

	PacificStandardOffset = -8 * time.Hour
	PacificDaylightOffset = -7 * time.Hour
)

// ErrRuleMismatch is returned by CheckRule when the Pacific rule drives slot
// math for a zone with different offsets.
var ErrRuleMismatch = errors.New("dst rule does not match timezone")

// Resolver reports the UTC offset in effect on a local calendar date.
type Resolver interface {
	Offset(year int, month time.Month, day int) time.Duration
}

// New returns the resolver selected by rule. zoneName is only consulted for RuleZone.
func New(rule, zoneName string) (Resolver, error) {
	switch rule {
	case "", RuleZone:
		return LoadZone(zoneName)
	case RulePacific:
		return PacificRule{}, nil
	default:
		return nil, fmt.Errorf("unknown dst rule %q", rule)
	}
}

// PacificRule approximates US Pacific time without a timezone database:
// daylight time from the second Sunday of March until the first Sunday of November.
type PacificRule struct{}

func (PacificRule) Offset(year int, month time.Month, day int) time.Duration {
	if InPacificDaylight(year, month, day) {
		return PacificDaylightOffset
	}
	return PacificStandardOffset
}

func (PacificRule) String() string { return "pacific-rule" }

// InPacificDaylight reports whether the date falls in the daylight period.
// Only March and November need the weekday computation.
func InPacificDaylight(year int, month time.Month, day int) bool {
	switch {
	case month > time.March && month < time.November:
		return true
	case month == time.March:
		return day >= nthSunday(year, time.March, 2)
	case month == time.November:
		return day < nthSunday(year, time.November, 1)
	default:
		return false
	}
}

// nthSunday returns the day of month of the n-th Sunday.
func nthSunday(year int, month time.Month, n int) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	firstSunday := 1 + (7-int(first))%7
	return firstSunday + 7*(n-1)
}

// Zone resolves offsets from the timezone database.
type Zone struct {
	loc *time.Location
}

// LoadZone loads a zone by IANA name, e.g. "America/Los_Angeles".
func LoadZone(name string) (*Zone, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone name is empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// NewZone wraps an already loaded location.
func NewZone(loc *time.Location) *Zone {
	return &Zone{loc: loc}
}

// Offset reads the offset at local noon, so transition days resolve to the
// offset in effect during business hours.
func (z *Zone) Offset(year int, month time.Month, day int) time.Duration {
	_, secs := time.Date(year, month, day, 12, 0, 0, 0, z.loc).Zone()
	return time.Duration(secs) * time.Second
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) String() string { return z.loc.String() }

// Instant converts a local wall-clock time to an absolute UTC instant.
func Instant(r Resolver, year int, month time.Month, day, hour, minute int) time.Time {
	wall := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	return wall.Add(-r.Offset(year, month, day))
}

// LocalDate returns the local calendar date of t.
func LocalDate(r Resolver, t time.Time) (year int, month time.Month, day int) {
	t = t.UTC()
	year, month, day = t.Date()
	// The first guess uses the UTC date; a second pass corrects it when the
	// offset moved the instant across midnight into a day with another offset.
	year, month, day = t.Add(r.Offset(year, month, day)).Date()
	return t.Add(r.Offset(year, month, day)).Date()
}

// In returns t expressed in a fixed zone carrying the local offset.
func In(r Resolver, t time.Time) time.Time {
	y, m, d := LocalDate(r, t)
	off := r.Offset(y, m, d)
	return t.In(time.FixedZone("", int(off/time.Second)))
}

// Consistent reports whether a and b agree on the offset for every 1st and
// 15th of the year's months.
func Consistent(a, b Resolver, year int) bool {
	for m := time.January; m <= time.December; m++ {
		for _, d := range []int{1, 15} {
			if a.Offset(year, m, d) != b.Offset(year, m, d) {
				return false
			}
		}
	}
	return true
}

// CheckRule reports whether rule agrees with zoneName during year. Only
// RulePacific can disagree; RuleZone always follows the zone.
func CheckRule(rule, zoneName string, year int) error {
	if rule != RulePacific {
		return nil
	}
	zone, err := LoadZone(zoneName)
	if err != nil {
		return err
	}
	if !Consistent(PacificRule{}, zone, year) {
		return fmt.Errorf("%w: %s rule vs %s", ErrRuleMismatch, rule, zoneName)
	}
	return nil
}
