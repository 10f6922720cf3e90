package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/clock"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/config"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/feature/owner"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/feature/principal"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/health"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/lifecycle"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/questionnaire"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/registration"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/render"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/store"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/store/postgres"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	postgresConnectTimeout  = 10 * time.Second
	postgresMigrateTimeout  = 15 * time.Second
	ownerBootstrapTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := pflag.Bool("config-only", false, "load and print configuration then exit")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	fail := func(msg string, err error) {
		logger.WithError(err).Error(msg)
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}

	catalog, err := render.Load(cfg.DefaultLocale)
	if err != nil {
		fail("message catalog error", err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		fail("mongo connection error", err)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = mongoManager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		fail("mongo index setup error", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	pgCtx, cancelPG := context.WithTimeout(context.Background(), postgresConnectTimeout)
	pg, err := postgres.Connect(pgCtx, cfg.PostgresDSN)
	cancelPG()
	if err != nil {
		fail("postgres connection error", err)
	}

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), postgresMigrateTimeout)
	err = pg.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		fail("postgres migration error", err)
	}

	logger.WithField("event", "postgres_ready").Info("connected to postgres and applied schema")

	ownerRegistrar := owner.NewRegistrar(mongoManager.Principals(), logger)
	ownerCtx, cancelOwner := context.WithTimeout(context.Background(), ownerBootstrapTimeout)
	err = ownerRegistrar.EnsureOwner(ownerCtx, cfg.BotOwnerID)
	cancelOwner()
	if err != nil {
		fail("owner bootstrap error", err)
	}

	events := store.NewEventStore(mongoManager.Events())
	questions := store.NewQuestionStore(mongoManager.Questions())
	sessions := store.NewSessionStore(mongoManager.QuestionSessions())
	gateway := registration.NewGateway(postgres.NewLedger(pg), events, logger)
	machine := questionnaire.NewMachine(sessions, questions, events, gateway, clock.Real(), cfg.QuestionSessionTTL, logger)

	dispatcher, err := telegram.NewDispatcher(catalog, logger,
		telegram.WithPrincipalRegistrar(principal.NewRegistrar(mongoManager.Principals(), logger)),
		telegram.WithPrincipalDirectory(domain.NewPrincipalRepository(mongoManager.Principals())),
		telegram.WithEventStore(events),
		telegram.WithQuestionStore(questions),
		telegram.WithRegistrations(gateway),
		telegram.WithQuestionnaire(machine),
		telegram.WithLifecycle(lifecycle.NewGuard(events, logger)),
		telegram.WithStatsProvider(store.NewStatsProvider(mongoManager.Principals(), mongoManager.Events())),
		telegram.WithBotUsername(cfg.BotUsername),
	)
	if err != nil {
		fail("dispatcher setup error", err)
	}

	tgClient, err := telegram.NewClient(cfg, dispatcher, logger)
	if err != nil {
		fail("telegram client setup error", err)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, mongoManager, pg, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithField("event", "health_error").WithError(err).Error("health server stopped unexpectedly")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithField("event", "health_shutdown_error").WithError(err).Warn("health server shutdown error")
	}
	cancelHealth()

	pg.Close()
	logger.WithField("event", "postgres_closed").Info("postgres pool closed")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
