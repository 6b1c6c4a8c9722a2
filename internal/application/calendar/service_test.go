package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

type stubRepo struct {
	domaincontract.Repository
	contracts []domaincontract.Contract
}

func (s *stubRepo) ListByOwner(ctx context.Context, ownerID common.UserID, filter domaincontract.ListFilter) ([]domaincontract.Contract, error) {
	return s.contracts, nil
}

type stubSettingsRepo struct {
	settings domaincontract.ReminderSettings
}

func (s *stubSettingsRepo) Get(ctx context.Context, userID common.UserID) (*domaincontract.ReminderSettings, error) {
	settings := s.settings
	settings.UserID = userID
	return &settings, nil
}

func (s *stubSettingsRepo) Put(ctx context.Context, settings *domaincontract.ReminderSettings) error {
	s.settings = *settings
	return nil
}

func TestExportICSDeterministicUIDs(t *testing.T) {
	repo := &stubRepo{contracts: []domaincontract.Contract{{
		ID: "root-1", OwnerID: "agent-1",
		Status:          domaincontract.StatusUnderContract,
		PropertyAddress: "12 Elm St",
		InspectionDate:  common.NewDate(2025, time.January, 15),
		ClosingDate:     common.NewDate(2025, time.March, 1),
	}}}
	svc := NewService(repo, &stubSettingsRepo{}, logging.NewNopLogger())

	first, err := svc.ExportICS(context.Background(), "agent-1")
	require.NoError(t, err)
	second, err := svc.ExportICS(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	ics := string(first)
	assert.Contains(t, ics, "BEGIN:VCALENDAR\r\n")
	assert.Contains(t, ics, "UID:root-1-inspection@dealdesk\r\n")
	assert.Contains(t, ics, "UID:root-1-closing@dealdesk\r\n")
	assert.Contains(t, ics, "DTSTART;VALUE=DATE:20250115\r\n")
	assert.Contains(t, ics, "DTEND;VALUE=DATE:20250116\r\n")
	assert.Equal(t, 2, strings.Count(ics, "BEGIN:VEVENT"))
}

func TestExportICSSkipsContractDate(t *testing.T) {
	repo := &stubRepo{contracts: []domaincontract.Contract{{
		ID: "root-1", OwnerID: "agent-1",
		Status:          domaincontract.StatusUnderContract,
		PropertyAddress: "12 Elm St",
		ContractDate:    common.NewDate(2025, time.January, 2),
	}}}
	svc := NewService(repo, &stubSettingsRepo{}, logging.NewNopLogger())

	ics, err := svc.ExportICS(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.NotContains(t, string(ics), "BEGIN:VEVENT")
}

func TestListEventsHorizon(t *testing.T) {
	repo := &stubRepo{contracts: []domaincontract.Contract{{
		ID: "root-1", OwnerID: "agent-1",
		Status:          domaincontract.StatusUnderContract,
		PropertyAddress: "12 Elm St",
		InspectionDate:  common.Today().AddDays(5),
		ClosingDate:     common.Today().AddDays(40),
	}}}
	svc := NewService(repo, &stubSettingsRepo{}, logging.NewNopLogger())

	all, err := svc.ListEvents(context.Background(), "agent-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all.Events, 2)

	near, err := svc.ListEvents(context.Background(), "agent-1", 30, 0)
	require.NoError(t, err)
	require.Len(t, near.Events, 1)
	assert.Equal(t, domaincontract.MilestoneInspection, near.Events[0].Milestone)

	capped, err := svc.ListEvents(context.Background(), "agent-1", 0, 1)
	require.NoError(t, err)
	require.Len(t, capped.Events, 1)
	assert.Equal(t, domaincontract.MilestoneInspection, capped.Events[0].Milestone)
}

func TestBuildICSAlarmsFollowSettings(t *testing.T) {
	events := []domaincontract.Event{{
		ContractID:      "root-1",
		Milestone:       domaincontract.MilestoneClosing,
		Date:            common.NewDate(2025, time.March, 1),
		PropertyAddress: "12 Elm St",
	}}
	settings := domaincontract.ReminderSettings{
		Offsets: map[domaincontract.Milestone][]int{
			domaincontract.MilestoneClosing: {2, 10},
		},
	}

	ics := string(BuildICS(events, settings))
	assert.Contains(t, ics, "TRIGGER:-P2D\r\n")
	assert.Contains(t, ics, "TRIGGER:-P10D\r\n")
	assert.Equal(t, 2, strings.Count(ics, "BEGIN:VALARM"))
}

func TestBuildICSCompletedEventHasNoAlarm(t *testing.T) {
	events := []domaincontract.Event{{
		ContractID:      "root-1",
		Milestone:       domaincontract.MilestoneInspection,
		Date:            common.NewDate(2025, time.January, 15),
		Completed:       true,
		PropertyAddress: "12 Elm St",
	}}

	ics := string(BuildICS(events, domaincontract.ReminderSettings{}))
	assert.Contains(t, ics, "STATUS:CONFIRMED\r\n")
	assert.NotContains(t, ics, "BEGIN:VALARM")
}

func TestBuildICSEscapesText(t *testing.T) {
	events := []domaincontract.Event{{
		ContractID:      "root-1",
		Milestone:       domaincontract.MilestoneClosing,
		Date:            common.NewDate(2025, time.March, 1),
		PropertyAddress: "12 Elm St, Unit 4; rear",
	}}

	ics := string(BuildICS(events, domaincontract.ReminderSettings{}))
	assert.Contains(t, ics, `SUMMARY:Closing - 12 Elm St\, Unit 4\; rear`)
}

func TestBuildICSStampsEvents(t *testing.T) {
	events := []domaincontract.Event{{
		ContractID:      "root-1",
		Milestone:       domaincontract.MilestoneClosing,
		Date:            common.NewDate(2025, time.March, 1),
		PropertyAddress: "12 Elm St",
	}}

	ics := string(BuildICS(events, domaincontract.ReminderSettings{}))
	assert.Contains(t, ics, "DTSTAMP:20250301T000000Z\r\n")
}

func TestBuildICSFoldsLongLines(t *testing.T) {
	events := []domaincontract.Event{{
		ContractID:      "root-1",
		Milestone:       domaincontract.MilestoneClosing,
		Date:            common.NewDate(2025, time.March, 1),
		PropertyAddress: strings.Repeat("1234 Very Long Boulevard ", 8),
	}}

	ics := string(BuildICS(events, domaincontract.ReminderSettings{}))
	for _, line := range strings.Split(ics, "\r\n") {
		assert.LessOrEqual(t, len(line), 75)
	}
	assert.Contains(t, ics, "\r\n ")

	// Unfolding restores the full summary.
	unfolded := strings.ReplaceAll(ics, "\r\n ", "")
	assert.Contains(t, unfolded, "SUMMARY:Closing - 1234 Very Long Boulevard")
}

func TestBuildICSCounterOfferDescription(t *testing.T) {
	events := []domaincontract.Event{{
		ContractID:         "co-2",
		Milestone:          domaincontract.MilestoneClosing,
		Date:               common.NewDate(2025, time.March, 1),
		PropertyAddress:    "12 Elm St",
		IsCounterOffer:     true,
		CounterOfferNumber: 2,
		UsingOriginalDates: true,
	}}

	ics := string(BuildICS(events, domaincontract.ReminderSettings{}))
	assert.Contains(t, ics, "UID:co-2-closing@dealdesk\r\n")
	assert.Contains(t, ics, "DESCRIPTION:Counter-offer #2 (dates from original contract)\r\n")
}
