package calendar

import (
	"context"
	"fmt"
	"time"

	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Google is a Gateway backed by the Google Calendar v3 API.
type Google struct {
	svc *gcal.Service
}

// NewGoogle authenticates with a service-account key. subject, when set, is
// the workspace user the service account impersonates (domain-wide delegation),
// which Google requires for inviting attendees.
func NewGoogle(ctx context.Context, serviceAccountKey []byte, subject string, opts ...option.ClientOption) (*Google, error) {
	conf, err := googleoauth.JWTConfigFromJSON(serviceAccountKey, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	conf.Subject = subject

	opts = append([]option.ClientOption{option.WithHTTPClient(conf.Client(ctx))}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Google{svc: svc}, nil
}

// NewGoogleWithService wraps an existing client.
func NewGoogleWithService(svc *gcal.Service) *Google {
	return &Google{svc: svc}
}

func (g *Google) FreeBusy(ctx context.Context, start, end time.Time, calendarIDs []string) (map[string][]BusyInterval, error) {
	items := make([]*gcal.FreeBusyRequestItem, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		items = append(items, &gcal.FreeBusyRequestItem{Id: id})
	}

	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  start.UTC().Format(time.RFC3339),
		TimeMax:  end.UTC().Format(time.RFC3339),
		TimeZone: "UTC",
		Items:    items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}

	out := make(map[string][]BusyInterval, len(calendarIDs))
	for _, id := range calendarIDs {
		fb, ok := resp.Calendars[id]
		if !ok {
			return nil, &CalendarError{CalendarID: id, Reason: "missing from response"}
		}
		if len(fb.Errors) > 0 {
			return nil, &CalendarError{CalendarID: id, Reason: fb.Errors[0].Reason}
		}

		intervals := make([]BusyInterval, 0, len(fb.Busy))
		for _, p := range fb.Busy {
			bs, err := time.Parse(time.RFC3339, p.Start)
			if err != nil {
				return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
			}
			be, err := time.Parse(time.RFC3339, p.End)
			if err != nil {
				return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
			}
			intervals = append(intervals, BusyInterval{Start: bs, End: be})
		}
		out[id] = intervals
	}
	return out, nil
}

func (g *Google) InsertEvent(ctx context.Context, calendarID string, ev *Event) (string, error) {
	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
	}
	for _, email := range ev.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
	}
	if len(ev.Reminders) > 0 {
		overrides := make([]*gcal.EventReminder, 0, len(ev.Reminders))
		for _, r := range ev.Reminders {
			overrides = append(overrides, &gcal.EventReminder{Method: r.Method, Minutes: r.Minutes})
		}
		body.Reminders = &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}

	call := g.svc.Events.Insert(calendarID, body).Context(ctx)
	if ev.SendUpdates != "" {
		call = call.SendUpdates(ev.SendUpdates)
	}
	created, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func (g *Google) ListEvents(ctx context.Context, calendarID string, start, end time.Time) ([]Event, error) {
	var out []Event
	err := g.svc.Events.List(calendarID).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status == "cancelled" {
					continue
				}
				es, err := parseEventTime(item.Start)
				if err != nil {
					return fmt.Errorf("event %s start: %w", item.Id, err)
				}
				ee, err := parseEventTime(item.End)
				if err != nil {
					return fmt.Errorf("event %s end: %w", item.Id, err)
				}
				out = append(out, Event{
					ID:      item.Id,
					Summary: item.Summary,
					Start:   es,
					End:     ee,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// parseEventTime handles both timed and all-day events.
func parseEventTime(dt *gcal.EventDateTime) (time.Time, error) {
	if dt == nil {
		return time.Time{}, fmt.Errorf("missing time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	return time.Parse("2006-01-02", dt.Date)
}
