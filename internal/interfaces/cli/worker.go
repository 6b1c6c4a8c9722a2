package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appreminder "github.com/dealdeskhq/dealdesk/internal/application/reminder"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres/repositories"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/email"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/messaging/kafka"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
)

func newWorkerCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background worker that delivers reminders and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
}

func runWorker(ctx context.Context, opts *RootOptions) error {
	cfg, logger, err := bootstrap(opts)
	if err != nil {
		return err
	}
	logger.Info("starting DealDesk worker", logging.String("version", Version))

	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	producer, err := kafka.NewProducer(cfg.Kafka, "worker", logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	m := metrics.New()

	contractRepo := repositories.NewPostgresContractRepo(conn, logger)
	userRepo := repositories.NewPostgresUserRepo(conn, logger)
	settingsRepo := repositories.NewPostgresReminderSettingsRepo(conn, logger)
	emailClient := email.NewClient(cfg.Email, logger, m)

	reminderSvc := appreminder.NewService(userRepo, contractRepo, settingsRepo, producer, emailClient, logger, m, cfg.Worker.ReminderBatchSize)

	consumerOpts := kafka.ConsumerOptions{
		MaxRetries:     cfg.Worker.MaxRetries,
		RetryBackoff:   cfg.Worker.RetryBackoff,
		HandlerTimeout: cfg.Worker.HandlerTimeout,
		Metrics:        m,
	}

	reminderConsumer, err := kafka.NewConsumer(cfg.Kafka, kafka.TopicReminderDue, consumerOpts, logger)
	if err != nil {
		return err
	}
	defer reminderConsumer.Close()

	emailConsumer, err := kafka.NewConsumer(cfg.Kafka, kafka.TopicNotificationEmail, consumerOpts, logger)
	if err != nil {
		return err
	}
	defer emailConsumer.Close()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return reminderConsumer.Run(gctx, handleReminderDue(reminderSvc))
	})
	g.Go(func() error {
		return emailConsumer.Run(gctx, handleNotificationEmail(emailClient))
	})

	err = g.Wait()
	if err != nil && runCtx.Err() == nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

// handleReminderDue delivers one reminder email per event.
func handleReminderDue(svc appreminder.Service) kafka.Handler {
	return func(ctx context.Context, env *kafka.EventEnvelope) error {
		var payload kafka.ReminderDuePayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		return svc.HandleReminderDue(ctx, payload)
	}
}

// handleNotificationEmail sends pre-composed emails queued by other
// components.
func handleNotificationEmail(sender email.Sender) kafka.Handler {
	return func(ctx context.Context, env *kafka.EventEnvelope) error {
		var payload kafka.EmailPayload
		if err := env.DecodePayload(&payload); err != nil {
			return err
		}
		return sender.Send(ctx, email.Message{
			To:      payload.To,
			Subject: payload.Subject,
			HTML:    payload.HTML,
			Text:    payload.Text,
		})
	}
}
