package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appreminder "github.com/dealdeskhq/dealdesk/internal/application/reminder"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres/repositories"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/email"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/messaging/kafka"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
)

// newRemindCommand runs one reminder sweep. Deployments invoke it from
// cron once per day; the worker then delivers whatever it queued.
func newRemindCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Scan all users for due reminders and queue them for delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemind(cmd.Context(), opts, dryRun, asJSON)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report due reminders without publishing them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the scan report as JSON")
	return cmd
}

func runRemind(ctx context.Context, opts *RootOptions, dryRun, asJSON bool) error {
	cfg, logger, err := bootstrap(opts)
	if err != nil {
		return err
	}

	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	producer, err := kafka.NewProducer(cfg.Kafka, "remind", logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	contractRepo := repositories.NewPostgresContractRepo(conn, logger)
	userRepo := repositories.NewPostgresUserRepo(conn, logger)
	settingsRepo := repositories.NewPostgresReminderSettingsRepo(conn, logger)
	// One-shot invocation; no metrics endpoint to scrape.
	emailClient := email.NewClient(cfg.Email, logger, nil)

	svc := appreminder.NewService(userRepo, contractRepo, settingsRepo, producer, emailClient, logger, nil, cfg.Worker.ReminderBatchSize)

	report, err := svc.Scan(ctx, dryRun)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printScanReport(report, dryRun)

	logger.Info("reminder scan finished",
		logging.Int("users", report.UsersScanned),
		logging.Int("due", len(report.DueReminders)),
		logging.Int("published", report.Published),
		logging.Bool("dry_run", dryRun),
	)
	return nil
}

func printScanReport(report *appreminder.ScanReport, dryRun bool) {
	mode := "published"
	if dryRun {
		mode = "due (dry run)"
	}
	fmt.Printf("scanned %d users, %d reminders %s\n", report.UsersScanned, len(report.DueReminders), mode)
	for _, r := range report.DueReminders {
		fmt.Printf("  %-22s %s in %d day(s)  %s\n", r.Milestone, r.Date.String(), r.DaysUntil, r.PropertyAddress)
	}
	for _, issue := range report.Issues {
		fmt.Printf("  issue: [%s] transaction %s: %s\n", issue.Code, issue.TransactionKey, issue.Detail)
	}
	for _, e := range report.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}
