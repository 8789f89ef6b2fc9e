package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sagemind/internal/booking"
	"sagemind/internal/events"
	"sagemind/internal/metrics"
	"sagemind/internal/slots"
)

const (
	msgBookRateLimited = "Too many booking attempts. Please try again later."
	msgBookRequired    = "Name, email, and time slot are required."
	msgInvalidEmail    = "Please provide a valid email address."
	msgInvalidBody     = "Invalid request body."
	msgInvalidSlot     = "Please choose one of the offered time slots."
	msgBookFailed      = "Failed to book consultation. Please try again later."
	msgBooked          = "Consultation booked successfully! Check your email for the calendar invite."
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// BookRequest is the body of POST /api/schedule/book.
type BookRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`
	Slot    *struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"slot"`
}

// SuccessResponse is returned by the write endpoints on success.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleBook re-checks and books a slot.
// POST /api/schedule/book
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	if !s.schedulingConfigured() {
		writeError(w, http.StatusServiceUnavailable, msgNotConfigured)
		return
	}

	if !s.allow(r, s.deps.BookLimiter) {
		metrics.IncRateLimited("book")
		writeError(w, http.StatusTooManyRequests, msgBookRateLimited)
		return
	}

	var req BookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	req.Notes = strings.TrimSpace(req.Notes)

	if req.Name == "" || req.Email == "" || req.Slot == nil || req.Slot.Start == "" || req.Slot.End == "" {
		writeError(w, http.StatusBadRequest, msgBookRequired)
		return
	}
	if !emailRe.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	slot, ok := s.parseSlot(req.Slot.Start, req.Slot.End)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidSlot)
		return
	}
	now := s.deps.Now()
	if !slot.Start.After(now) {
		writeError(w, http.StatusBadRequest, booking.ConflictReason)
		return
	}
	if !s.deps.Scheduler.InWindow(slot.Start, now) {
		writeError(w, http.StatusBadRequest, msgInvalidSlot)
		return
	}

	log := zerolog.Ctx(r.Context())
	res, err := s.deps.Booker.Book(r.Context(), booking.Request{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Notes:   req.Notes,
		Slot:    slot,
	})
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		reason := booking.ConflictReason
		if res != nil && res.Reason != "" {
			reason = res.Reason
		}
		writeError(w, http.StatusBadRequest, reason)
		return
	case err != nil:
		log.Error().Err(err).Time("slot_start", slot.Start).Msg("booking failed")
		writeError(w, http.StatusInternalServerError, msgBookFailed)
		return
	}

	s.publish(r, events.Event{
		Type: events.TypeBookingCreated,
		Payload: events.BookingCreated{
			EventID: res.EventID,
			Name:    req.Name,
			Email:   req.Email,
			Company: req.Company,
			Notes:   req.Notes,
			Start:   slot.Start,
			End:     slot.End,
		},
	})

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: msgBooked})
}

// parseSlot accepts only slots the scheduler could have offered.
func (s *Server) parseSlot(startStr, endStr string) (slots.TimeSlot, bool) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return slots.TimeSlot{}, false
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return slots.TimeSlot{}, false
	}
	if !s.deps.Scheduler.IsCandidate(start, end) {
		return slots.TimeSlot{}, false
	}
	return slots.TimeSlot{Start: start.UTC(), End: end.UTC()}, true
}
