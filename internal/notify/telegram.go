package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"sagemind/internal/events"
	"sagemind/internal/metrics"
	"sagemind/internal/timezone"
)

// TelegramSender is the subset of *tgbotapi.BotAPI used for alerts.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts operator alerts to one chat.
type Telegram struct {
	bot       TelegramSender
	chatID    int64
	tz        timezone.Resolver
	zoneLabel string
	logger    zerolog.Logger
}

// NewTelegram creates an alert notifier for chatID.
func NewTelegram(bot TelegramSender, chatID int64, tz timezone.Resolver, zoneLabel string, logger *zerolog.Logger) *Telegram {
	if zoneLabel == "" {
		zoneLabel = "Pacific"
	}
	return &Telegram{
		bot:       bot,
		chatID:    chatID,
		tz:        tz,
		zoneLabel: zoneLabel,
		logger:    logger.With().Str("component", "telegram").Logger(),
	}
}

// Subscribe registers booking and contact alerts on bus.
func (t *Telegram) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.TypeBookingCreated, func(ctx context.Context, e events.Event) error {
		b, ok := e.Payload.(events.BookingCreated)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return t.send("booking", t.bookingText(b))
	})
	bus.Subscribe(events.TypeContactSubmitted, func(ctx context.Context, e events.Event) error {
		c, ok := e.Payload.(events.ContactSubmitted)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		return t.send("contact", contactAlert(c))
	})
}

func (t *Telegram) bookingText(b events.BookingCreated) string {
	local := timezone.In(t.tz, b.Start)

	var sb strings.Builder
	sb.WriteString("New consultation booked\n")
	fmt.Fprintf(&sb, "%s, %s %s\n", local.Format("Mon Jan 2"), local.Format("3:04 PM"), t.zoneLabel)
	fmt.Fprintf(&sb, "%s <%s>", b.Name, b.Email)
	if b.Company != "" {
		fmt.Fprintf(&sb, "\nCompany: %s", b.Company)
	}
	if b.Notes != "" {
		fmt.Fprintf(&sb, "\nNotes: %s", b.Notes)
	}
	return sb.String()
}

func contactAlert(c events.ContactSubmitted) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "New contact message from %s <%s>", c.Name, c.Email)
	if c.Company != "" {
		fmt.Fprintf(&sb, " (%s)", c.Company)
	}
	sb.WriteString("\n\n")
	sb.WriteString(c.Message)
	return sb.String()
}

func (t *Telegram) send(kind, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		metrics.IncNotification("telegram", kind, "error")
		return fmt.Errorf("telegram %s alert: %w", kind, err)
	}
	metrics.IncNotification("telegram", kind, "ok")
	t.logger.Debug().Str("kind", kind).Msg("alert sent")
	return nil
}
