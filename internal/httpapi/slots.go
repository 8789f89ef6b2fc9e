package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"sagemind/internal/slots"
)

const (
	msgNotConfigured = "Scheduling is not configured."
	msgSlotsFailed   = "Failed to fetch available times. Please try again later."
)

// SlotsResponse is the body of GET /api/schedule/slots.
type SlotsResponse struct {
	Slots slots.Availability `json:"slots"`
}

// handleSlots returns free slots keyed by local date.
// GET /api/schedule/slots
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	if !s.schedulingConfigured() {
		writeError(w, http.StatusServiceUnavailable, msgNotConfigured)
		return
	}

	avail, err := s.deps.Scheduler.ComputeAvailability(r.Context(), s.deps.Now())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("fetch available slots")
		writeError(w, http.StatusInternalServerError, msgSlotsFailed)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, SlotsResponse{Slots: avail})
}
