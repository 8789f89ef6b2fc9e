// Package httpapi serves the scheduling and contact endpoints of the site.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"sagemind/internal/booking"
	"sagemind/internal/events"
	"sagemind/internal/ratelimit"
	"sagemind/internal/slots"
)

const maxBodyBytes = 64 << 10

// Scheduler computes availability and recognizes offered slots.
type Scheduler interface {
	ComputeAvailability(ctx context.Context, now time.Time) (slots.Availability, error)
	IsCandidate(start, end time.Time) bool
	InWindow(start, now time.Time) bool
}

// Booker books a slot after re-checking it.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Result, error)
}

// ContactMailer delivers contact form messages.
type ContactMailer interface {
	Configured() bool
	SendContact(ctx context.Context, c events.ContactSubmitted) error
}

// Publisher fans out domain events to notifiers.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Deps wires the server. A nil Scheduler or Booker means calendar
// integration is not configured and the scheduling routes answer 503.
type Deps struct {
	Scheduler      Scheduler
	Booker         Booker
	Mailer         ContactMailer
	Events         Publisher
	BookLimiter    ratelimit.Limiter
	ContactLimiter ratelimit.Limiter
	StaticDir      string
	Now            func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates a server.
func New(deps Deps, logger *zerolog.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/schedule/slots", s.handleSlots)
	mux.HandleFunc("POST /api/schedule/book", s.handleBook)
	mux.HandleFunc("POST /api/contact", s.handleContact)
	if s.deps.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.deps.StaticDir)))
	}
	return withLogging(&s.logger, mux)
}

func (s *Server) schedulingConfigured() bool {
	return s.deps.Scheduler != nil && s.deps.Booker != nil
}

// allow applies limiter to the caller. A limiter failure lets the request
// through.
func (s *Server) allow(r *http.Request, limiter ratelimit.Limiter) bool {
	if limiter == nil {
		return true
	}
	ok, err := limiter.Allow(r.Context(), clientKey(r))
	if err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) publish(r *http.Request, e events.Event) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(r.Context(), e); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("event", e.Type).Msg("notification failed")
	}
}
