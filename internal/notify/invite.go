package notify

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"sagemind/internal/events"
)

// BuildInvite renders an iCalendar REQUEST for the booked consultation.
// The UID is tied to the calendar event so clients merge it with the
// invitation Google sends.
func BuildInvite(b events.BookingCreated, organizer, siteName string) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId(fmt.Sprintf("-//%s//Scheduling//EN", siteName))

	uid := b.EventID
	if uid == "" {
		uid = fmt.Sprintf("%d", b.Start.Unix())
	}
	ev := cal.AddEvent(uid + "@google.com")

	stamp := time.Now().UTC()
	ev.SetCreatedTime(stamp)
	ev.SetDtStampTime(stamp)
	ev.SetStartAt(b.Start.UTC())
	ev.SetEndAt(b.End.UTC())
	ev.SetStatus(ics.ObjectStatusConfirmed)

	summary := "Consultation: " + b.Name
	if b.Company != "" {
		summary += " (" + b.Company + ")"
	}
	ev.SetSummary(summary)
	if b.Notes != "" {
		ev.SetDescription(b.Notes)
	}

	if organizer != "" {
		ev.SetOrganizer(organizer, ics.WithCN(siteName))
	}
	ev.AddAttendee(b.Email,
		ics.WithCN(b.Name),
		ics.CalendarUserTypeIndividual,
		ics.ParticipationStatusNeedsAction,
		ics.ParticipationRoleReqParticipant,
		ics.WithRSVP(true),
	)

	return cal.Serialize()
}
