// Package calendar exports an agent's deadline pipeline as an iCalendar
// feed that Google Calendar and Outlook can subscribe to.
package calendar

import (
	"context"
	"fmt"
	"strings"

	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

const (
	prodID    = "-//DealDesk//Transaction Deadlines//EN"
	uidDomain = "dealdesk"
)

// EventList is a filtered view of projected deadline events.
type EventList struct {
	Today  common.Date            `json:"today"`
	Events []domaincontract.Event `json:"events"`
	Issues []domaincontract.Issue `json:"issues,omitempty"`
}

// Service renders deadline feeds.
type Service interface {
	// ExportICS builds the full iCalendar document for one agent. Every
	// projectable milestone of every active contract becomes a VEVENT,
	// completed ones included so subscribed calendars keep history.
	ExportICS(ctx context.Context, ownerID common.UserID) ([]byte, error)

	// ListEvents returns projected events. withinDays > 0 keeps only
	// incomplete events due within that horizon; limit > 0 caps the result.
	ListEvents(ctx context.Context, ownerID common.UserID, withinDays, limit int) (*EventList, error)
}

type service struct {
	repo         domaincontract.Repository
	settingsRepo domaincontract.ReminderSettingsRepository
	logger       logging.Logger
}

// NewService wires the calendar service.
func NewService(repo domaincontract.Repository, settingsRepo domaincontract.ReminderSettingsRepository, log logging.Logger) Service {
	return &service{repo: repo, settingsRepo: settingsRepo, logger: log}
}

func (s *service) ExportICS(ctx context.Context, ownerID common.UserID) ([]byte, error) {
	contracts, err := s.repo.ListByOwner(ctx, ownerID, domaincontract.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	settings, err := s.settingsRepo.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	actives, issues := domaincontract.Resolve(contracts)
	if len(issues) > 0 {
		s.logger.Warn("calendar export skipped malformed transactions",
			logging.String("owner_id", string(ownerID)),
			logging.Int("issues", len(issues)),
		)
	}

	events := domaincontract.ProjectAll(actives)
	return BuildICS(events, *settings), nil
}

func (s *service) ListEvents(ctx context.Context, ownerID common.UserID, withinDays, limit int) (*EventList, error) {
	contracts, err := s.repo.ListByOwner(ctx, ownerID, domaincontract.ListFilter{IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	actives, issues := domaincontract.Resolve(contracts)
	events := domaincontract.ProjectAll(actives)
	today := common.Today()

	if withinDays > 0 {
		horizon := today.AddDays(withinDays)
		filtered := make([]domaincontract.Event, 0, len(events))
		for _, ev := range events {
			if ev.Completed || ev.Date.Before(today) || ev.Date.After(horizon) {
				continue
			}
			filtered = append(filtered, ev)
		}
		events = filtered
	}
	if limit > 0 {
		events = domaincontract.Upcoming(events, today, limit)
	}

	return &EventList{Today: today, Events: events, Issues: issues}, nil
}

// BuildICS renders projected events as an RFC 5545 document. UIDs are
// derived from the contract id and milestone so re-exports update events
// in place instead of duplicating them.
func BuildICS(events []domaincontract.Event, settings domaincontract.ReminderSettings) []byte {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:" + prodID + "\r\n")
	b.WriteString("CALSCALE:GREGORIAN\r\n")
	b.WriteString("METHOD:PUBLISH\r\n")

	for _, ev := range events {
		writeEvent(&b, ev, settings)
	}

	b.WriteString("END:VCALENDAR\r\n")
	return []byte(b.String())
}

func writeEvent(b *strings.Builder, ev domaincontract.Event, settings domaincontract.ReminderSettings) {
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(b, "UID:%s-%s@%s\r\n", ev.ContractID, ev.Milestone, uidDomain)

	// DTSTAMP is required by RFC 5545. Derived from the event date rather
	// than the wall clock so re-exports stay byte-identical.
	fmt.Fprintf(b, "DTSTAMP:%sT000000Z\r\n", icsDate(ev.Date))

	// All-day events: DTEND is the exclusive next day per RFC 5545.
	fmt.Fprintf(b, "DTSTART;VALUE=DATE:%s\r\n", icsDate(ev.Date))
	fmt.Fprintf(b, "DTEND;VALUE=DATE:%s\r\n", icsDate(ev.Date.AddDays(1)))

	summary := fmt.Sprintf("%s - %s", ev.Milestone.Label(), ev.PropertyAddress)
	writeFolded(b, "SUMMARY:"+escapeText(summary))

	if ev.IsCounterOffer {
		desc := fmt.Sprintf("Counter-offer #%d", ev.CounterOfferNumber)
		if ev.UsingOriginalDates {
			desc += " (dates from original contract)"
		}
		writeFolded(b, "DESCRIPTION:"+escapeText(desc))
	}

	fmt.Fprintf(b, "CATEGORIES:%s\r\n", ev.Milestone)
	if ev.Completed {
		b.WriteString("STATUS:CONFIRMED\r\n")
	} else {
		for _, days := range settings.OffsetsFor(ev.Milestone) {
			b.WriteString("BEGIN:VALARM\r\n")
			b.WriteString("ACTION:DISPLAY\r\n")
			fmt.Fprintf(b, "TRIGGER:-P%dD\r\n", days)
			writeFolded(b, "DESCRIPTION:"+escapeText(summary))
			b.WriteString("END:VALARM\r\n")
		}
	}

	b.WriteString("END:VEVENT\r\n")
}

// writeFolded writes one content line, folding at 75 octets with a leading
// space on continuation lines per RFC 5545 section 3.1.
func writeFolded(b *strings.Builder, line string) {
	limit := 75
	for len(line) > limit {
		b.WriteString(line[:limit])
		b.WriteString("\r\n ")
		line = line[limit:]
		// The fold space counts toward the limit of continuation lines.
		limit = 74
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

func icsDate(d common.Date) string {
	return d.Time().Format("20060102")
}

// escapeText escapes the characters RFC 5545 reserves in text values.
func escapeText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}
