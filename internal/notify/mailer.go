// Package notify delivers booking and contact notifications by email and
// Telegram.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"sagemind/internal/events"
	"sagemind/internal/metrics"
	"sagemind/internal/timezone"
)

const (
	gmailHost = "smtp.gmail.com"
	gmailPort = 587
)

// ErrMailNotConfigured is returned when no SMTP credentials are set.
var ErrMailNotConfigured = errors.New("mail is not configured")

// Dialer sends messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewGmailDialer returns a dialer for Gmail SMTP with an app password.
func NewGmailDialer(user, appPassword string) *gomail.Dialer {
	return gomail.NewDialer(gmailHost, gmailPort, user, appPassword)
}

// MailConfig holds addresses and labels used in outgoing mail.
type MailConfig struct {
	From       string
	To         string // business inbox; defaults to From
	SiteName   string
	SiteDomain string
	ZoneLabel  string // shown after the meeting time, e.g. "Pacific"
}

// Mailer renders and sends notification emails.
type Mailer struct {
	dialer Dialer
	cfg    MailConfig
	tz     timezone.Resolver
	logger zerolog.Logger
}

// NewMailer creates a mailer. A nil dialer makes every send fail with
// ErrMailNotConfigured.
func NewMailer(dialer Dialer, cfg MailConfig, tz timezone.Resolver, logger *zerolog.Logger) *Mailer {
	if cfg.To == "" {
		cfg.To = cfg.From
	}
	if cfg.SiteName == "" {
		cfg.SiteName = "SageMind AI"
	}
	if cfg.SiteDomain == "" {
		cfg.SiteDomain = "sagemindai.io"
	}
	if cfg.ZoneLabel == "" {
		cfg.ZoneLabel = "Pacific"
	}
	return &Mailer{
		dialer: dialer,
		cfg:    cfg,
		tz:     tz,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// Configured reports whether the mailer can send.
func (m *Mailer) Configured() bool {
	return m != nil && m.dialer != nil && m.cfg.From != ""
}

// Subscribe registers the booking email on bus.
func (m *Mailer) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.TypeBookingCreated, func(ctx context.Context, e events.Event) error {
		b, ok := e.Payload.(events.BookingCreated)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return m.SendBooking(ctx, b)
	})
}

type bookingView struct {
	Date      string
	Time      string
	ZoneLabel string
	Name      string
	Email     string
	Company   string
	Notes     string
}

// SendBooking emails the business about a new consultation with an
// invite.ics attachment.
func (m *Mailer) SendBooking(_ context.Context, b events.BookingCreated) error {
	if !m.Configured() {
		return ErrMailNotConfigured
	}

	date, clock := m.localDateTime(b)
	html, err := renderBooking(bookingView{
		Date:      date,
		Time:      clock,
		ZoneLabel: m.cfg.ZoneLabel,
		Name:      b.Name,
		Email:     b.Email,
		Company:   b.Company,
		Notes:     b.Notes,
	})
	if err != nil {
		return err
	}

	invite := BuildInvite(b, m.cfg.From, m.cfg.SiteName)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", fmt.Sprintf("New Consultation Booked: %s - %s", b.Name, date))
	msg.SetBody("text/html", html)
	msg.Attach("invite.ics",
		gomail.SetHeader(map[string][]string{
			"Content-Type": {"text/calendar; charset=utf-8; method=REQUEST"},
		}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.WriteString(w, invite)
			return err
		}),
	)

	return m.send(msg, "booking")
}

type contactView struct {
	SiteName   string
	SiteDomain string
	Name       string
	Email      string
	Company    string
	Message    string
	Lines      []string
}

// SendContact forwards a contact form submission; replies go to the submitter.
func (m *Mailer) SendContact(_ context.Context, c events.ContactSubmitted) error {
	if !m.Configured() {
		return ErrMailNotConfigured
	}

	html, text, err := renderContact(contactView{
		SiteName:   m.cfg.SiteName,
		SiteDomain: m.cfg.SiteDomain,
		Name:       c.Name,
		Email:      c.Email,
		Company:    c.Company,
		Message:    c.Message,
		Lines:      strings.Split(c.Message, "\n"),
	})
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Reply-To", c.Email)
	msg.SetHeader("Subject", "New Contact Form Submission from "+c.Name)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)

	return m.send(msg, "contact")
}

func (m *Mailer) send(msg *gomail.Message, kind string) error {
	if err := m.dialer.DialAndSend(msg); err != nil {
		metrics.IncNotification("email", kind, "error")
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	metrics.IncNotification("email", kind, "ok")
	m.logger.Debug().Str("kind", kind).Msg("email sent")
	return nil
}

func (m *Mailer) localDateTime(b events.BookingCreated) (string, string) {
	local := b.Start
	if m.tz != nil {
		local = timezone.In(m.tz, b.Start)
	}
	return local.Format("Monday, January 2, 2006"), local.Format("3:04 PM")
}

func renderBooking(v bookingView) (string, error) {
	var buf bytes.Buffer
	if err := bookingHTML.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render booking email: %w", err)
	}
	return buf.String(), nil
}

func renderContact(v contactView) (string, string, error) {
	var html, text bytes.Buffer
	if err := contactHTML.Execute(&html, v); err != nil {
		return "", "", fmt.Errorf("render contact email: %w", err)
	}
	if err := contactText.Execute(&text, v); err != nil {
		return "", "", fmt.Errorf("render contact text: %w", err)
	}
	return html.String(), text.String(), nil
}
