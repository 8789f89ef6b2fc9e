package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"sagemind/internal/events"
	"sagemind/internal/metrics"
)

const (
	msgContactRateLimited = "Too many submissions. Please try again later."
	msgContactRequired    = "Name, email, and message are required."
	msgServerConfig       = "Server configuration error. Please try again later."
	msgContactFailed      = "Failed to send message. Please try again later."
	msgContactSent        = "Message sent successfully!"
)

// ContactRequest is the body of POST /api/contact.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company,omitempty"`
	Message string `json:"message"`
}

// handleContact emails a contact form submission to the business.
// POST /api/contact
func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r, s.deps.ContactLimiter) {
		metrics.IncRateLimited("contact")
		writeError(w, http.StatusTooManyRequests, msgContactRateLimited)
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Company = strings.TrimSpace(req.Company)
	req.Message = strings.TrimSpace(req.Message)

	if req.Name == "" || req.Email == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, msgContactRequired)
		return
	}
	if !emailRe.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, msgInvalidEmail)
		return
	}

	log := zerolog.Ctx(r.Context())
	if s.deps.Mailer == nil || !s.deps.Mailer.Configured() {
		log.Error().Msg("missing email configuration")
		writeError(w, http.StatusInternalServerError, msgServerConfig)
		return
	}

	submission := events.ContactSubmitted{
		Name:    req.Name,
		Email:   req.Email,
		Company: req.Company,
		Message: req.Message,
	}
	if err := s.deps.Mailer.SendContact(r.Context(), submission); err != nil {
		log.Error().Err(err).Msg("send contact email")
		writeError(w, http.StatusInternalServerError, msgContactFailed)
		return
	}

	s.publish(r, events.Event{Type: events.TypeContactSubmitted, Payload: submission})

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: msgContactSent})
}
