package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zapisnik/internal/api"
	"zapisnik/internal/config"
	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/export"
	"zapisnik/internal/logging"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"
	"zapisnik/internal/repository"
	"zapisnik/internal/schedule"
	"zapisnik/internal/service"
	"zapisnik/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, users, logger, closer, loadErr := loadConfigAndLogger()
	if loadErr != nil {
		return loadErr
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	db, err := initDatabase(cfg, users, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return err
	}

	redisClient, stateRepo := initStateRepository(ctx, cfg, &logger)
	defer func() {
		if redisClient != nil {
			_ = repository.Close(redisClient)
		}
	}()

	metrics.Register()

	eventBus := events.NewBus()
	subscribeBookingEvents(eventBus, &logger)

	hours := schedule.OpeningHours{
		Open:     cfg.Schedule.OpenHour,
		Close:    cfg.Schedule.CloseHour,
		Location: loc,
	}
	engine := service.NewEngine(db, db, eventBus, schedule.RealClock{}, hours, cfg.Schedule.DefaultWeeklyLimit, &logger)

	// Фоновый перевод завершившихся заявок в completed
	retryPolicy := worker.RetryPolicy{MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	sweeper := worker.NewSweeper(engine, schedule.RealClock{}, time.Duration(cfg.Schedule.SweepIntervalSec)*time.Second, retryPolicy, &logger)
	go sweeper.Start(ctx)

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort, &logger)
	}

	exporter := export.NewExporter(db, db, loc, &logger)
	apiServer := api.NewHTTPServer(&cfg.API, engine, stateRepo, exporter, loc, &logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, []models.User, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	usersPath := cfg.UsersFile
	if envPath := os.Getenv("USERS_PATH"); envPath != "" {
		usersPath = envPath
	}
	if usersPath == "" {
		usersPath = "configs/users.yaml"
	}
	users, err := config.LoadUsers(usersPath)
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", usersPath)
		return nil, nil, zerolog.Logger{}, closer, err
	}

	return cfg, users, logger, closer, nil
}

func initDatabase(cfg *config.Config, users []models.User, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return nil, err
	}

	// Синхронизируем реестр пользователей
	for i := range users {
		if err := db.CreateOrUpdateUser(context.Background(), &users[i]); err != nil {
			logger.Error().Err(err).Int64("user_id", users[i].ID).Msg("Ошибка синхронизации пользователя")
		}
	}
	logger.Info().Int("users", len(users)).Msg("User roster synced")
	return db, nil
}

func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*goredis.Client, *repository.FailoverStateRepository) {
	var redisClient *goredis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	ttl := time.Duration(models.DefaultReportCacheTTL) * time.Second
	primaryRepo := repository.NewRedisStateRepository(redisClient, ttl)
	fallbackRepo := repository.NewMemoryStateRepository(ttl)
	return redisClient, repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	logger.Info().Int("port", port).Msg("Prometheus metrics listening")
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// subscribeBookingEvents wires the metrics counters and the audit log to
// booking lifecycle events.
func subscribeBookingEvents(bus *events.Bus, logger *zerolog.Logger) {
	if bus == nil {
		return
	}

	audit := func(ev *events.Event) error {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Str("booking_id", payload.BookingID).
			Int64("user_id", payload.UserID).
			Int64("actor_id", payload.ActorID).
			Str("status", payload.Status).
			Msg("booking event")
		return nil
	}

	bulkAudit := func(ev *events.Event) error {
		var payload events.BulkEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
			return nil
		}
		logger.Info().
			Str("event", ev.Type).
			Int64("user_id", payload.UserID).
			Int64("count", payload.Count).
			Msg("bulk booking event")
		return nil
	}

	bus.Subscribe(events.EventBookingCreated, audit)
	bus.Subscribe(events.EventBookingUpdated, audit)
	bus.Subscribe(events.EventBookingCancelled, audit)
	bus.Subscribe(events.EventBookingCompleted, audit)
	bus.Subscribe(events.EventBookingsBulkCanceled, bulkAudit)
	bus.Subscribe(events.EventBookingsSwept, bulkAudit)

	bulkCount := func(ev *events.Event) int64 {
		var payload events.BulkEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return 0
		}
		return payload.Count
	}

	bus.Subscribe(events.EventBookingCreated, func(ev *events.Event) error {
		metrics.IncCreated()
		return nil
	})
	bus.Subscribe(events.EventBookingCancelled, func(ev *events.Event) error {
		metrics.AddCancelled(1)
		return nil
	})
	bus.Subscribe(events.EventBookingCompleted, func(ev *events.Event) error {
		metrics.AddCompleted(1)
		return nil
	})
	bus.Subscribe(events.EventBookingsBulkCanceled, func(ev *events.Event) error {
		metrics.AddCancelled(float64(bulkCount(ev)))
		return nil
	})
	bus.Subscribe(events.EventBookingsSwept, func(ev *events.Event) error {
		metrics.AddCompleted(float64(bulkCount(ev)))
		return nil
	})
}
