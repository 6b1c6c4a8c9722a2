package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appcalendar "github.com/dealdeskhq/dealdesk/internal/application/calendar"
	appcontract "github.com/dealdeskhq/dealdesk/internal/application/contract"
	appextraction "github.com/dealdeskhq/dealdesk/internal/application/extraction"
	appreminder "github.com/dealdeskhq/dealdesk/internal/application/reminder"
	appuser "github.com/dealdeskhq/dealdesk/internal/application/user"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/auth"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/postgres/repositories"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/database/redis"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/email"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/extraction"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/messaging/kafka"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/logging"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/monitoring/metrics"
	"github.com/dealdeskhq/dealdesk/internal/infrastructure/storage/minio"
	httpserver "github.com/dealdeskhq/dealdesk/internal/interfaces/http"
	"github.com/dealdeskhq/dealdesk/internal/interfaces/http/handlers"
	"github.com/dealdeskhq/dealdesk/internal/interfaces/http/middleware"
)

func newServeCommand(opts *RootOptions) *cobra.Command {
	var runMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the DealDesk API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, runMigrations)
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, runMigrations bool) error {
	cfg, logger, err := bootstrap(opts)
	if err != nil {
		return err
	}
	logger.Info("starting DealDesk API server",
		logging.String("version", Version),
		logging.Int("port", cfg.Server.Port),
	)

	if runMigrations {
		if err := postgres.RunMigrations(cfg.Database, logger); err != nil {
			return err
		}
	}

	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	m := metrics.New()

	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, logger, redis.WithMetrics(m))

	producer, err := kafka.NewProducer(cfg.Kafka, "apiserver", logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	docs, err := minio.NewDocumentStore(ctx, cfg.MinIO, logger)
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.Auth, logger)
	if err != nil {
		return err
	}

	contractRepo := repositories.NewPostgresContractRepo(conn, logger)
	userRepo := repositories.NewPostgresUserRepo(conn, logger)
	orgRepo := repositories.NewPostgresOrganizationRepo(conn, logger)
	settingsRepo := repositories.NewPostgresReminderSettingsRepo(conn, logger)

	emailClient := email.NewClient(cfg.Email, logger, m)
	extractor := extraction.NewClient(cfg.Extraction, logger)

	contractSvc := appcontract.NewService(contractRepo, cache, producer, logger, m)
	calendarSvc := appcalendar.NewService(contractRepo, settingsRepo, logger)
	reminderSvc := appreminder.NewService(userRepo, contractRepo, settingsRepo, producer, emailClient, logger, m, cfg.Worker.ReminderBatchSize)
	extractionSvc := appextraction.NewService(docs, extractor, logger, m)
	userSvc := appuser.NewService(userRepo, orgRepo, logger)

	corsCfg := middleware.DefaultCORSConfig()
	rateCfg := middleware.DefaultRateLimitConfig()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		ServerConfig: cfg.Server,
		Logger:       logger,
		Metrics:      m,
		Verifier:     verifier,
		Users:        userSvc,

		ContractHandler: handlers.NewContractHandler(contractSvc, logger),
		CalendarHandler: handlers.NewCalendarHandler(calendarSvc, logger),
		ReminderHandler: handlers.NewReminderHandler(reminderSvc, logger),
		UploadHandler:   handlers.NewUploadHandler(extractionSvc, logger),
		UserHandler:     handlers.NewUserHandler(userSvc, logger),
		HealthHandler: handlers.NewHealthHandler(Version, map[string]handlers.Pinger{
			"postgres": handlers.PingerFunc(conn.HealthCheck),
			"redis":    handlers.PingerFunc(cache.Ping),
		}, logger),

		CORS:      &corsCfg,
		RateLimit: &rateCfg,
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	case <-ctx.Done():
	}

	return srv.Shutdown(context.Background())
}
