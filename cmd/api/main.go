package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/servicedesk/internal/api/http"
	"github.com/spec-kit/servicedesk/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/automation"
	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/ingest"
	"github.com/spec-kit/servicedesk/internal/mailer"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/persistence"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/service"
	"github.com/spec-kit/servicedesk/internal/sla"
	"github.com/spec-kit/servicedesk/internal/storage"
	"github.com/spec-kit/servicedesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	inboundRepo := repository.NewInboundEmailRepository(pool)
	outboundRepo := repository.NewOutboundEmailRepository(pool)
	ruleRepo := repository.NewAutomationRuleRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)

	policy := func() sla.Policy { return cfg.SLA.Policy() }

	transport := mailer.NewSMTPTransport(cfg.SMTP, outboundRepo, logger)

	attachmentStore, err := storage.NewMinioStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to init attachment store", zap.Error(err))
	}

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		CommentRepo:  commentRepo,
		InboundRepo:  inboundRepo,
		OutboundRepo: outboundRepo,
		CatalogRepo:  catalogRepo,
		Dispatcher:   dispatcher,
		Transport:    transport,
		Policy:       policy,
		MailConfig:   cfg.Mailbox,
		Logger:       logger,
	})
	authService := service.NewAuthService(*cfg, agentRepo)

	engine := automation.NewEngine(
		ruleRepo,
		service.NewAutomationTicketWriter(ticketRepo, commentRepo),
		transport,
		logger,
	)
	automationService := service.NewAutomationService(engine, metrics, logger)
	worker.StartAutomationWorker(automationService, dispatcher)

	slaMonitor := service.NewSlaMonitor(ticketRepo, commentRepo, dispatcher, policy, metrics, logger)
	if err := slaMonitor.Start(); err != nil {
		logger.Fatal("failed to start sla monitor", zap.Error(err))
	}
	defer slaMonitor.Stop()

	var watermark ingest.WatermarkStore = &ingest.MemoryWatermark{}
	if redis.Client != nil {
		watermark = ingest.NewRedisWatermark(redis.Client)
	}
	dialer := ingest.NewIMAPDialer(ingest.IMAPConfig{
		Host:     cfg.Mailbox.Host,
		Port:     cfg.Mailbox.Port,
		Username: cfg.Mailbox.Username,
		Password: cfg.Mailbox.Password,
		Folder:   cfg.Mailbox.Folder,
	})
	poller := ingest.NewPoller(dialer, inboundRepo, ticketService, attachmentStore, watermark, func() ingest.Settings {
		return ingest.Settings{
			Enabled:      cfg.Mailbox.Enabled,
			PollInterval: cfg.Mailbox.PollInterval(),
			CycleTimeout: cfg.Mailbox.CycleTimeout(),
		}
	}, logger, metrics)
	poller.Start(ctx)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), agentRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Automation:     handlers.NewAutomationRulesHandler(ruleRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
