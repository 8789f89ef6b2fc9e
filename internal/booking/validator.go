// Package booking re-checks a chosen slot against the calendars and creates
// the consultation event.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sagemind/internal/calendar"
	"sagemind/internal/metrics"
	"sagemind/internal/slots"
)

// ConflictReason is returned to clients when the slot was taken in the meantime.
const ConflictReason = "This time slot is no longer available."

// ErrSlotConflict reports that the slot overlaps a busy interval or is held
// by a concurrent booking.
var ErrSlotConflict = errors.New("slot no longer available")

// Default reminder overrides, minutes before start.
var DefaultReminders = []calendar.Reminder{
	{Method: "email", Minutes: 24 * 60},
	{Method: "email", Minutes: 60},
}

// Config describes where events are created.
type Config struct {
	PrimaryCalendarID string
	// CalendarIDs are re-checked for conflicts. Defaults to the primary calendar.
	CalendarIDs []string
	TimeZone    string
	SiteName    string
	HoldTTL     time.Duration
}

// Request is a booking submitted by a visitor.
type Request struct {
	Name    string
	Email   string
	Company string
	Notes   string
	Slot    slots.TimeSlot
}

// Result is the outcome of a booking attempt.
type Result struct {
	Success bool
	EventID string
	Reason  string
}

// Option configures a Validator.
type Option func(*Validator)

// WithSlotLocker serializes check-then-insert per slot through l.
func WithSlotLocker(l SlotLocker) Option {
	return func(v *Validator) { v.locker = l }
}

// Validator books slots after re-checking availability.
type Validator struct {
	gateway calendar.Gateway
	cfg     Config
	locker  SlotLocker
	logger  zerolog.Logger
}

// NewValidator creates a validator.
func NewValidator(gateway calendar.Gateway, cfg Config, logger *zerolog.Logger, opts ...Option) *Validator {
	if cfg.PrimaryCalendarID == "" {
		cfg.PrimaryCalendarID = "primary"
	}
	if len(cfg.CalendarIDs) == 0 {
		cfg.CalendarIDs = []string{cfg.PrimaryCalendarID}
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "SageMind AI"
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 30 * time.Second
	}

	v := &Validator{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With().Str("component", "booking").Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Book re-checks the slot on every configured calendar and, if it is still
// free, creates the event on the primary calendar.
//
// A taken slot returns a non-nil Result with Success=false together with
// ErrSlotConflict. Calendar failures return *calendar.UpstreamError.
func (v *Validator) Book(ctx context.Context, req Request) (*Result, error) {
	slot := req.Slot
	log := v.logger.With().
		Time("slot_start", slot.Start).
		Str("email", req.Email).
		Logger()

	if v.locker != nil {
		release, ok, err := v.locker.Acquire(ctx, holdKey(slot), v.cfg.HoldTTL)
		switch {
		case err != nil:
			// hold backend down: continue with the plain re-check
			log.Warn().Err(err).Msg("slot hold unavailable")
		case !ok:
			metrics.IncBooking("conflict")
			return conflict(), ErrSlotConflict
		default:
			defer release()
		}
	}

	busy, err := v.gateway.FreeBusy(ctx, slot.Start, slot.End, v.cfg.CalendarIDs)
	if err != nil {
		metrics.IncBooking("error")
		return nil, &calendar.UpstreamError{Op: calendar.OpFreeBusy, Err: err}
	}
	for calID, intervals := range busy {
		for _, b := range intervals {
			if b.Overlaps(slot.Start, slot.End) {
				log.Info().Str("calendar_id", calID).Msg("slot taken at re-check")
				metrics.IncBooking("conflict")
				return conflict(), ErrSlotConflict
			}
		}
	}

	eventID, err := v.gateway.InsertEvent(ctx, v.cfg.PrimaryCalendarID, v.event(req))
	if err != nil {
		metrics.IncBooking("error")
		return nil, &calendar.UpstreamError{Op: calendar.OpInsert, Err: err}
	}

	metrics.IncBooking("success")
	log.Info().Str("event_id", eventID).Msg("booking created")

	v.detectDoubleBooking(ctx, &log, slot, eventID)

	return &Result{Success: true, EventID: eventID}, nil
}

// detectDoubleBooking looks for other events that landed on the same slot
// after the insert. It only reports; the booking stands.
func (v *Validator) detectDoubleBooking(ctx context.Context, log *zerolog.Logger, slot slots.TimeSlot, eventID string) {
	events, err := v.gateway.ListEvents(ctx, v.cfg.PrimaryCalendarID, slot.Start, slot.End)
	if err != nil {
		log.Warn().Err(err).Msg("post-insert check failed")
		return
	}

	for _, ev := range events {
		if ev.ID == eventID {
			continue
		}
		if ev.Start.Before(slot.End) && slot.Start.Before(ev.End) {
			metrics.IncDoubleBooking()
			log.Warn().
				Str("event_id", eventID).
				Str("other_event_id", ev.ID).
				Msg("double booking detected")
			return
		}
	}
}

func (v *Validator) event(req Request) *calendar.Event {
	summary := "Consultation: " + req.Name
	if req.Company != "" {
		summary += " (" + req.Company + ")"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Consultation call with %s\n", req.Name)
	fmt.Fprintf(&b, "Email: %s\n", req.Email)
	if req.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", req.Company)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", req.Notes)
	}
	fmt.Fprintf(&b, "\nBooked via %s website", v.cfg.SiteName)

	return &calendar.Event{
		Summary:     summary,
		Description: b.String(),
		Start:       req.Slot.Start,
		End:         req.Slot.End,
		TimeZone:    v.cfg.TimeZone,
		Attendees:   []string{req.Email},
		Reminders:   DefaultReminders,
		SendUpdates: calendar.SendUpdatesAll,
	}
}

func conflict() *Result {
	return &Result{Success: false, Reason: ConflictReason}
}

func holdKey(slot slots.TimeSlot) string {
	return "slot-hold:" + slot.Start.UTC().Format(time.RFC3339)
}
