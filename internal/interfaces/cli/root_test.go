package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appreminder "github.com/dealdeskhq/dealdesk/internal/application/reminder"
	domaincontract "github.com/dealdeskhq/dealdesk/internal/domain/contract"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/messaging/kafka"
	"github.com/dealdeskhq/dealdesk/pkg/errors"
	"github.com/dealdeskhq/dealdesk/pkg/types/common"
)

func TestRootCommandStructure(t *testing.T) {
	root := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate", "remind"} {
		assert.True(t, names[want], want)
	}

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "configs/config.yaml", flag.DefValue)
}

func TestMigrateSubcommands(t *testing.T) {
	root := NewRootCommand()
	migrate, _, err := root.Find([]string{"migrate", "up"})
	require.NoError(t, err)
	assert.Equal(t, "up", migrate.Name())

	down, _, err := root.Find([]string{"migrate", "down"})
	require.NoError(t, err)
	assert.Equal(t, "down", down.Name())
}

func TestRemindFlags(t *testing.T) {
	root := NewRootCommand()
	remind, _, err := root.Find([]string{"remind"})
	require.NoError(t, err)
	assert.NotNil(t, remind.Flags().Lookup("dry-run"))
	assert.NotNil(t, remind.Flags().Lookup("json"))
}

func TestPrintScanReport(t *testing.T) {
	report := &appreminder.ScanReport{
		UsersScanned: 2,
		DueReminders: []kafka.ReminderDuePayload{{
			OwnerID:         common.UserID("user-1"),
			ContractID:      common.ID("ctr-1"),
			Milestone:       "closing",
			Date:            common.Today().AddDays(3),
			DaysUntil:       3,
			PropertyAddress: "12 Elm St",
		}},
		Issues: []domaincontract.Issue{{
			TransactionKey: common.ID("ctr-9"),
			Code:           errors.ErrCodeDanglingCounterOffer,
			Detail:         "counter-offer references missing root",
		}},
	}

	// Writes to stdout; exercises both the reminder and issue lines.
	printScanReport(report, true)
}
