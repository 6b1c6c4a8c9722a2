package contract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

func TestEligible(t *testing.T) {
	today := common.NewDate(2025, time.January, 10)
	offsets := DefaultReminderOffsets

	tests := []struct {
		name string
		date common.Date
		done bool
		want bool
	}{
		{"one day out", today.AddDays(1), false, true},
		{"three days out", today.AddDays(3), false, true},
		{"seven days out", today.AddDays(7), false, true},
		{"two days out", today.AddDays(2), false, false},
		{"eight days out", today.AddDays(8), false, false},
		{"day of", today, false, false},
		{"past due", today.AddDays(-3), false, false},
		{"completed", today.AddDays(3), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{Milestone: MilestoneClosing, Date: tt.date, Completed: tt.done}
			assert.Equal(t, tt.want, Eligible(e, today, offsets))
		})
	}
}

func TestOffsetsFor(t *testing.T) {
	s := ReminderSettings{
		UserID:  "agent-1",
		Offsets: map[Milestone][]int{MilestoneClosing: {0, 14}},
	}
	assert.Equal(t, []int{0, 14}, s.OffsetsFor(MilestoneClosing))
	assert.Equal(t, DefaultReminderOffsets, s.OffsetsFor(MilestoneInspection))

	empty := ReminderSettings{}
	assert.Equal(t, DefaultReminderOffsets, empty.OffsetsFor(MilestoneClosing))
}

func TestReminderSettingsValidate(t *testing.T) {
	ok := ReminderSettings{Offsets: map[Milestone][]int{MilestoneClosing: {0, 1, 7}}}
	assert.NoError(t, ok.Validate())

	negative := ReminderSettings{Offsets: map[Milestone][]int{MilestoneClosing: {-1}}}
	assert.Equal(t, errors.ErrCodeReminderConfigInvalid, errors.GetCode(negative.Validate()))

	unknown := ReminderSettings{Offsets: map[Milestone][]int{"escrow": {1}}}
	assert.Equal(t, errors.ErrCodeMilestoneUnknown, errors.GetCode(unknown.Validate()))
}

func TestDueReminders(t *testing.T) {
	today := common.NewDate(2025, time.January, 10)
	settings := ReminderSettings{
		Offsets: map[Milestone][]int{MilestoneClosing: {14}},
	}

	events := []Event{
		{Milestone: MilestoneInspection, Date: today.AddDays(3)}, // default offsets
		{Milestone: MilestoneClosing, Date: today.AddDays(14)},   // custom offsets
		{Milestone: MilestoneClosing, Date: today.AddDays(3)},    // 3 not in closing's custom set
		{Milestone: MilestoneAppraisal, Date: today.AddDays(4)},
	}

	due := DueReminders(events, today, settings)
	require.Len(t, due, 2)
	assert.Equal(t, MilestoneInspection, due[0].Milestone)
	assert.Equal(t, MilestoneClosing, due[1].Milestone)
	assert.Equal(t, 14, due[1].DaysUntil(today))
}
