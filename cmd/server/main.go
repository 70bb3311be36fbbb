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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"spacebook/internal/api"
	"spacebook/internal/availability"
	"spacebook/internal/config"
	"spacebook/internal/db"
	"spacebook/internal/events"
	"spacebook/internal/logging"
	"spacebook/internal/metrics"
	"spacebook/internal/service"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load(os.Getenv("SPACEBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	configured, err := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid logging config")
	}
	logger = configured

	zone, err := cfg.Zone()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	database, err := db.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = config.WatchResources(ctx, cfg.ResourcesConfigPath, 30*time.Second, &logger, func(rc *config.ResourcesConfig) {
		problems, err := database.SyncResourcesFromConfig(ctx, rc)
		for _, p := range problems {
			logger.Warn().Err(p).Msg("resource schedule problem")
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to sync resources")
			return
		}
		logger.Info().Int("resources", len(rc.Resources)).Msg("resources synced")
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ResourcesConfigPath).Msg("failed to load resources")
	}

	resolver := availability.NewResolver(cfg.GridSpec(), zone)
	svc := service.NewAvailabilityService(database, resolver, cfg.BookingMaxAdvance(), &logger)

	bus := events.NewEventBus()
	subscribeEventLog(bus, &logger)

	server := api.NewHTTPServer(api.Options{
		Port:         cfg.API.ListenPort,
		APIKey:       cfg.API.APIKey,
		RateLimitRPS: cfg.API.RateLimitRPS,
		Burst:        cfg.API.Burst,
	}, svc, bus, &logger)

	backups := db.NewBackupService(database, db.BackupOptions{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		Path:          cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backups.Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP API error")
			stop()
		}
	}()

	logger.Info().Str("tenant", cfg.Tenant.Name).Str("timezone", zone.Name()).
		Str("time_reference", string(zone.Reference())).Msg("Booking server started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP API shutdown error")
	}
	logger.Info().Msg("Booking server stopped")
}

// subscribeEventLog writes every reservation event to the log.
func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(ev events.Event) error {
		var p events.ReservationPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		logger.Info().
			Str("event", ev.Type).
			Str("reservation_id", p.Reservation.ID).
			Int64("resource_id", p.Reservation.ResourceID).
			Str("status", string(p.Reservation.Status)).
			Str("previous_status", string(p.PreviousStatus)).
			Msg("reservation event")
		return nil
	}
	bus.Subscribe(events.ReservationCreated, handler)
	bus.Subscribe(events.ReservationStatusChanged, handler)
}

func startHealthServer(ctx context.Context, port int, database *db.DB, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
