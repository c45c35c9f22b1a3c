package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"smart_agenda/internal/ai"
	"smart_agenda/internal/config"
	"smart_agenda/internal/handlers"
	"smart_agenda/internal/jobs"
	"smart_agenda/internal/logging"
	"smart_agenda/internal/notify"
	"smart_agenda/internal/recurrence"
	"smart_agenda/internal/storage"
	"smart_agenda/internal/usecases"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, messages, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	telegram := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, loc, notify.WithLogger(logger))
	if !telegram.Enabled() {
		logger.Warn("telegram is not configured, notifications are disabled")
	}
	notifiers := usecases.Notifiers{telegram}

	var (
		oauth   handlers.OAuthFlow
		preview ai.CalendarPreviewer
	)
	googleCalendar, err := storage.NewGoogleCalendarStorage(ctx, cfg.GoogleCredentialsFile, cfg.GoogleTokenFile, loc, logger)
	if err != nil {
		logger.Warn("google calendar is disabled", zap.Error(err))
	} else {
		notifiers = append(notifiers, googleCalendar)
		oauth = googleCalendar
		preview = googleCalendar
	}

	generator := recurrence.NewGenerator(recurrence.UUIDAllocator{})
	scheduler := usecases.NewScheduler(usecases.SchedulerDeps{
		Store:     events,
		Generator: generator,
		Extender:  recurrence.NewExtender(generator, time.Now),
		Notifier:  notifiers,
		Logger:    logger,
		Location:  loc,
	})
	if err := scheduler.Load(ctx); err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	logger.Info("events loaded", zap.Int("active", len(scheduler.Events())), zap.Int("trash", len(scheduler.Trash())))

	if cfg.GigaChatKey == "" {
		logger.Warn("GIGACHAT_AUTH_KEY is empty, the assistant will only answer with a hint")
	}
	parser := ai.NewIntentParser(ai.IntentParserDeps{
		Client:   ai.NewGigaChatClient(cfg.GigaChatKey, ai.WithModel(cfg.GigaChatModel)),
		Preview:  preview,
		Location: loc,
		Logger:   logger,
	})
	assistant := usecases.NewAssistant(scheduler, parser, messages, logger, usecases.WithAssistantLocation(loc))

	runner, err := jobs.NewRunner(jobs.Config{
		AgendaSpec:   cfg.AgendaCron,
		ReminderSpec: cfg.ReminderCron,
		PurgeSpec:    cfg.PurgeCron,
		ExtendSpec:   cfg.ExtendCron,
		Location:     loc,
	}, jobs.Deps{
		Events:    scheduler,
		Agenda:    telegram,
		Reminders: telegram,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create jobs: %w", err)
	}

	router, err := handlers.NewRouter(handlers.RouterDeps{
		Environment: cfg.Environment,
		Scheduler:   scheduler,
		Assistant:   assistant,
		Agenda:      telegram,
		OAuth:       oauth,
		Location:    loc,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runner.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	runner.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStorage picks the event and message stores from cfg.Storage.
func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (usecases.EventStore, usecases.MessageStore, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage, events are lost on restart")
		return storage.NewMemoryEventStorage(), storage.NewMemoryMessageStorage(), func() {}, nil
	}

	pool, err := storage.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := storage.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("connected to postgres")

	return storage.NewEventStorage(pool), storage.NewMessageStorage(pool), pool.Close, nil
}
