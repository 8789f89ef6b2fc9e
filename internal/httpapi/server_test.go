package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagemind/internal/booking"
	"sagemind/internal/calendar/calendartest"
	"sagemind/internal/events"
	"sagemind/internal/ratelimit"
	"sagemind/internal/slots"
	"sagemind/internal/timezone"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeMailer struct {
	mu         sync.Mutex
	configured bool
	err        error
	sent       []events.ContactSubmitted
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendContact(_ context.Context, c events.ContactSubmitted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, c)
	return nil
}

type errScheduler struct{}

func (errScheduler) ComputeAvailability(context.Context, time.Time) (slots.Availability, error) {
	return nil, errors.New("googleapi: Error 403: secret upstream detail")
}

func (errScheduler) IsCandidate(time.Time, time.Time) bool { return true }

func (errScheduler) InWindow(time.Time, time.Time) bool { return true }

type testEnv struct {
	handler   http.Handler
	calendar  *calendartest.Fake
	mailer    *fakeMailer
	published []events.Event
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	tz, err := timezone.LoadZone("America/Los_Angeles")
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	env := &testEnv{
		calendar: calendartest.New(),
		mailer:   &fakeMailer{configured: true},
	}
	env.calendar.InsertMarksBusy = true

	bus := events.NewEventBus()
	record := func(_ context.Context, e events.Event) error {
		env.published = append(env.published, e)
		return nil
	}
	bus.Subscribe(events.TypeBookingCreated, record)
	bus.Subscribe(events.TypeContactSubmitted, record)

	deps := Deps{
		Scheduler:      slots.NewGenerator(env.calendar, tz, slots.DefaultConfig()),
		Booker:         booking.NewValidator(env.calendar, booking.Config{TimeZone: tz.String()}, &logger),
		Mailer:         env.mailer,
		Events:         bus,
		BookLimiter:    ratelimit.NewMemory(20, time.Hour),
		ContactLimiter: ratelimit.NewMemory(5, time.Hour),
		Now:            func() time.Time { return testNow },
	}
	if mutate != nil {
		mutate(&deps)
	}
	env.handler = New(deps, &logger).Handler()
	return env
}

func (e *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func validBooking() map[string]any {
	return map[string]any{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"company": "Engines Ltd",
		"slot": map[string]string{
			"start": "2024-06-11T16:00:00Z",
			"end":   "2024-06-11T16:30:00Z",
		},
	}
}

func TestHandleSlots(t *testing.T) {
	env := newTestEnv(t, nil)
	env.calendar.AddBusy("primary",
		time.Date(2024, 6, 11, 16, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 11, 16, 30, 0, 0, time.UTC))

	rec := env.do(http.MethodGet, "/api/schedule/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var resp struct {
		Slots map[string][]struct {
			Start   string `json:"start"`
			End     string `json:"end"`
			Display string `json:"display"`
		} `json:"slots"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	day := resp.Slots["2024-06-11"]
	require.NotEmpty(t, day)
	assert.Equal(t, "9:30 AM", day[0].Display)
	assert.Equal(t, "2024-06-11T16:30:00Z", day[0].Start)
	assert.Equal(t, "2024-06-11T17:00:00Z", day[0].End)
	assert.NotContains(t, resp.Slots, "2024-06-15")
}

func TestHandleSlots_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Scheduler = nil
		d.Booker = nil
	})

	rec := env.do(http.MethodGet, "/api/schedule/slots", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Scheduling is not configured.", decodeError(t, rec))
}

func TestHandleSlots_UpstreamError(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Scheduler = errScheduler{} })

	rec := env.do(http.MethodGet, "/api/schedule/slots", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg := decodeError(t, rec)
	assert.Equal(t, "Failed to fetch available times. Please try again later.", msg)
	assert.NotContains(t, msg, "403")
}

func TestHandleSlots_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/api/schedule/slots", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleBook_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/api/schedule/book", validBooking())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SuccessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Consultation booked successfully! Check your email for the calendar invite.", resp.Message)

	require.Equal(t, 1, env.calendar.InsertedCount())
	require.Len(t, env.published, 1)
	created := env.published[0].Payload.(events.BookingCreated)
	assert.Equal(t, env.calendar.Inserted[0].ID, created.EventID)
	assert.Equal(t, "Engines Ltd", created.Company)
	assert.Equal(t, time.Date(2024, 6, 11, 16, 0, 0, 0, time.UTC), created.Start)

	// the booked slot is gone from availability
	rec = env.do(http.MethodGet, "/api/schedule/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"start":"2024-06-11T16:00:00Z"`)

	// and booking it again conflicts
	rec = env.do(http.MethodPost, "/api/schedule/book", validBooking())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, booking.ConflictReason, decodeError(t, rec))
}

func TestHandleBook_Validation(t *testing.T) {
	withSlot := func(start, end string) map[string]any {
		b := validBooking()
		b["slot"] = map[string]string{"start": start, "end": end}
		return b
	}
	without := func(key string) map[string]any {
		b := validBooking()
		delete(b, key)
		return b
	}
	badEmail := validBooking()
	badEmail["email"] = "ada@example"

	tests := []struct {
		name      string
		body      any
		wantError string
	}{
		{"invalid json", "{not json", "Invalid request body."},
		{"missing name", without("name"), "Name, email, and time slot are required."},
		{"missing email", without("email"), "Name, email, and time slot are required."},
		{"missing slot", without("slot"), "Name, email, and time slot are required."},
		{"blank name", map[string]any{"name": "  ", "email": "a@b.co", "slot": map[string]string{"start": "x", "end": "y"}}, "Name, email, and time slot are required."},
		{"invalid email", badEmail, "Please provide a valid email address."},
		{"unparseable slot", withSlot("tomorrow", "later"), "Please choose one of the offered time slots."},
		{"off-grid slot", withSlot("2024-06-11T16:10:00Z", "2024-06-11T16:40:00Z"), "Please choose one of the offered time slots."},
		{"weekend slot", withSlot("2024-06-15T16:00:00Z", "2024-06-15T16:30:00Z"), "Please choose one of the offered time slots."},
		{"after hours", withSlot("2024-06-12T01:00:00Z", "2024-06-12T01:30:00Z"), "Please choose one of the offered time slots."},
		{"past slot", withSlot("2024-06-07T16:00:00Z", "2024-06-07T16:30:00Z"), booking.ConflictReason},
		{"later today", withSlot("2024-06-10T16:00:00Z", "2024-06-10T16:30:00Z"), "Please choose one of the offered time slots."},
		{"beyond lookahead", withSlot("2024-06-25T16:00:00Z", "2024-06-25T16:30:00Z"), "Please choose one of the offered time slots."},
		{"months out", withSlot("2024-09-10T16:00:00Z", "2024-09-10T16:30:00Z"), "Please choose one of the offered time slots."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(http.MethodPost, "/api/schedule/book", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
			assert.Zero(t, env.calendar.InsertedCount())
		})
	}
}

func TestHandleBook_Conflict(t *testing.T) {
	env := newTestEnv(t, nil)
	env.calendar.AddBusy("primary",
		time.Date(2024, 6, 11, 15, 45, 0, 0, time.UTC),
		time.Date(2024, 6, 11, 16, 15, 0, 0, time.UTC))

	rec := env.do(http.MethodPost, "/api/schedule/book", validBooking())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This time slot is no longer available.", decodeError(t, rec))
	assert.Empty(t, env.published)
}

func TestHandleBook_UpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.calendar.InsertErr = errors.New("googleapi: Error 500: backend exploded")

	rec := env.do(http.MethodPost, "/api/schedule/book", validBooking())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to book consultation. Please try again later.", decodeError(t, rec))
	assert.Empty(t, env.published)
}

func TestHandleBook_NotificationFailureStillSucceeds(t *testing.T) {
	bus := events.NewEventBus()
	bus.Subscribe(events.TypeBookingCreated, func(context.Context, events.Event) error {
		return errors.New("smtp down")
	})
	env := newTestEnv(t, func(d *Deps) { d.Events = bus })

	rec := env.do(http.MethodPost, "/api/schedule/book", validBooking())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.calendar.InsertedCount())
}

func TestHandleBook_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Scheduler = nil
		d.Booker = nil
	})
	rec := env.do(http.MethodPost, "/api/schedule/book", validBooking())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleBook_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.BookLimiter = ratelimit.NewMemory(1, time.Hour) })

	rec := env.do(http.MethodPost, "/api/schedule/book", "{}", "X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/schedule/book", "{}", "X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many booking attempts. Please try again later.", decodeError(t, rec))

	rec = env.do(http.MethodPost, "/api/schedule/book", "{}", "X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "other clients are unaffected")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestHandleBook_LimiterErrorFailsOpen(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.BookLimiter = failingLimiter{} })
	rec := env.do(http.MethodPost, "/api/schedule/book", validBooking())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleContact(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/api/contact", map[string]string{
		"name":    "Bo",
		"email":   "bo@example.com",
		"message": "Hello\nthere",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SuccessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, SuccessResponse{Success: true, Message: "Message sent successfully!"}, resp)

	require.Len(t, env.mailer.sent, 1)
	assert.Equal(t, "Hello\nthere", env.mailer.sent[0].Message)
	require.Len(t, env.published, 1)
	assert.Equal(t, events.TypeContactSubmitted, env.published[0].Type)
}

func TestHandleContact_Errors(t *testing.T) {
	valid := map[string]string{"name": "Bo", "email": "bo@example.com", "message": "hi"}

	tests := []struct {
		name       string
		mailer     *fakeMailer
		body       any
		wantStatus int
		wantError  string
	}{
		{"missing message", &fakeMailer{configured: true}, map[string]string{"name": "Bo", "email": "bo@example.com"}, http.StatusBadRequest, "Name, email, and message are required."},
		{"invalid email", &fakeMailer{configured: true}, map[string]string{"name": "Bo", "email": "bo at example", "message": "hi"}, http.StatusBadRequest, "Please provide a valid email address."},
		{"invalid json", &fakeMailer{configured: true}, "[", http.StatusBadRequest, "Invalid request body."},
		{"mail not configured", &fakeMailer{}, valid, http.StatusInternalServerError, "Server configuration error. Please try again later."},
		{"send failure", &fakeMailer{configured: true, err: errors.New("535")}, valid, http.StatusInternalServerError, "Failed to send message. Please try again later."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) { d.Mailer = tt.mailer })
			rec := env.do(http.MethodPost, "/api/contact", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decodeError(t, rec))
			assert.Empty(t, env.published)
		})
	}
}

func TestHandleContact_RateLimited(t *testing.T) {
	env := newTestEnv(t, nil)
	body := map[string]string{"name": "Bo", "email": "bo@example.com", "message": "hi"}

	for i := 0; i < 5; i++ {
		rec := env.do(http.MethodPost, "/api/contact", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(http.MethodPost, "/api/contact", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many submissions. Please try again later.", decodeError(t, rec))
}

func TestHandleContact_WorksWithoutCalendar(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Scheduler = nil
		d.Booker = nil
	})
	rec := env.do(http.MethodPost, "/api/contact", map[string]string{"name": "Bo", "email": "bo@example.com", "message": "hi"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/api/schedule/slots", nil, requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"remote addr", "192.0.2.1:5555", "", "192.0.2.1"},
		{"forwarded first entry", "10.0.0.1:80", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
		{"blank forwarded", "192.0.2.1:5555", " ,10.0.0.2", "192.0.2.1"},
		{"no port", "192.0.2.1", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}
			assert.Equal(t, tt.want, clientKey(r))
		})
	}
}
