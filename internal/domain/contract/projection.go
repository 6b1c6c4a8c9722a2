package contract

import (
	"sort"

	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// Event is one dated milestone projected out of an active record. It is the
// unit the dashboard lists, the reminder scheduler scans, and the ICS
// exporter turns into calendar entries.
type Event struct {
	ContractID         common.ID     `json:"contract_id"`
	OwnerID            common.UserID `json:"owner_id"`
	Milestone          Milestone     `json:"milestone"`
	Date               common.Date   `json:"date"`
	Completed          bool          `json:"completed"`
	PropertyAddress    string        `json:"property_address"`
	IsCounterOffer     bool          `json:"is_counter_offer"`
	CounterOfferNumber int           `json:"counter_offer_number,omitempty"`
	UsingOriginalDates bool          `json:"using_original_dates,omitempty"`
}

// DaysUntil returns the whole days from today to the event date. Negative
// for past-due events.
func (e Event) DaysUntil(today common.Date) int {
	return today.DaysUntil(e.Date)
}

// Overdue reports whether the event's date has passed without completion.
func (e Event) Overdue(today common.Date) bool {
	return !e.Completed && e.Date.Before(today)
}

// Project expands an active record into events, one per actionable milestone
// with a date set. ContractDate is display-only and never becomes an event.
// Closing is always projected with Completed=false: the closing row stays
// visible on the dashboard until the contract is archived, even after the
// closing-complete transition has moved the contract to closed.
func Project(rec ActiveRecord) []Event {
	c := rec.Contract
	events := make([]Event, 0, len(Milestones))
	for _, m := range Milestones {
		date := c.MilestoneDate(m)
		if date.IsZero() {
			continue
		}
		completed := c.MilestoneCompleted(m)
		if m == MilestoneClosing {
			completed = false
		}
		events = append(events, Event{
			ContractID:         c.ID,
			OwnerID:            c.OwnerID,
			Milestone:          m,
			Date:               date,
			Completed:          completed,
			PropertyAddress:    c.PropertyAddress,
			IsCounterOffer:     c.IsCounterOffer,
			CounterOfferNumber: c.CounterOfferNumber,
			UsingOriginalDates: rec.UsingOriginalDates,
		})
	}
	return events
}

// ProjectAll projects every active record and concatenates the results in
// record order.
func ProjectAll(recs []ActiveRecord) []Event {
	var events []Event
	for _, rec := range recs {
		events = append(events, Project(rec)...)
	}
	return events
}

// DefaultUpcomingLimit caps the dashboard's upcoming-deadlines list.
const DefaultUpcomingLimit = 8

// Upcoming filters out completed and past events, sorts the remainder by
// ascending date (ties broken by property address then milestone order so
// the list is stable), and truncates to limit. limit <= 0 means no cap.
func Upcoming(events []Event, today common.Date, limit int) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Completed || e.Date.Before(today) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].PropertyAddress != out[j].PropertyAddress {
			return out[i].PropertyAddress < out[j].PropertyAddress
		}
		return milestoneRank(out[i].Milestone) < milestoneRank(out[j].Milestone)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// OverdueEvents returns the incomplete events whose dates have passed,
// oldest first.
func OverdueEvents(events []Event, today common.Date) []Event {
	out := make([]Event, 0)
	for _, e := range events {
		if e.Overdue(today) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// Emailable filters active records down to those a deadline email can be
// sent for: a syntactically valid email on the represented side, a status
// that is neither cancelled nor superseded, and at least one projectable
// milestone event.
func Emailable(recs []ActiveRecord) []ActiveRecord {
	out := make([]ActiveRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Contract.Status == StatusCancelled || rec.Contract.Status == StatusSuperseded {
			continue
		}
		if !rec.Contract.HasValidRepresentedEmail() {
			continue
		}
		if len(Project(rec)) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func milestoneRank(m Milestone) int {
	for i, known := range Milestones {
		if m == known {
			return i
		}
	}
	return len(Milestones)
}
