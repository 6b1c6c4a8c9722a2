package contract

import (
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

// DefaultReminderOffsets is the out-of-the-box reminder schedule: a reminder
// fires when a milestone is exactly 1, 3, 5, or 7 days away.
var DefaultReminderOffsets = []int{1, 3, 5, 7}

// ReminderSettings holds a user's per-milestone reminder offsets. Milestones
// without an explicit entry fall back to DefaultReminderOffsets.
type ReminderSettings struct {
	UserID  common.UserID       `json:"user_id"`
	Offsets map[Milestone][]int `json:"offsets,omitempty"`
}

// OffsetsFor returns the offsets configured for the milestone, or the
// defaults when none are set.
func (s ReminderSettings) OffsetsFor(m Milestone) []int {
	if offsets, ok := s.Offsets[m]; ok && len(offsets) > 0 {
		return offsets
	}
	return DefaultReminderOffsets
}

// Validate rejects negative offsets; 0 (day-of) is allowed.
func (s ReminderSettings) Validate() error {
	for m, offsets := range s.Offsets {
		if _, err := ParseMilestone(string(m)); err != nil {
			return err
		}
		for _, d := range offsets {
			if d < 0 {
				return errors.New(errors.ErrCodeReminderConfigInvalid, "reminder offsets must be ≥ 0")
			}
		}
	}
	return nil
}

// Eligible reports whether a reminder should fire for the event today: the
// milestone is not completed and the number of whole days until its date is
// one of the configured offsets. Past-due events are never eligible since
// offsets are non-negative.
func Eligible(e Event, today common.Date, offsets []int) bool {
	if e.Completed {
		return false
	}
	days := e.DaysUntil(today)
	for _, d := range offsets {
		if days == d {
			return true
		}
	}
	return false
}

// DueReminders scans projected events and returns those eligible for a
// reminder today under the given settings, preserving input order.
func DueReminders(events []Event, today common.Date, settings ReminderSettings) []Event {
	due := make([]Event, 0)
	for _, e := range events {
		if Eligible(e, today, settings.OffsetsFor(e.Milestone)) {
			due = append(due, e)
		}
	}
	return due
}
