package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/sentinel/alerts"
	redissink "go.pilab.hu/sentinel/alerts/redis"
	echoapi "go.pilab.hu/sentinel/api/echo"
	"go.pilab.hu/sentinel/cache"
	"go.pilab.hu/sentinel/config"
	"go.pilab.hu/sentinel/domain"
	"go.pilab.hu/sentinel/internal/anomaly"
	"go.pilab.hu/sentinel/internal/fingerprint"
	"go.pilab.hu/sentinel/internal/metrics"
	"go.pilab.hu/sentinel/internal/telemetry"
	"go.pilab.hu/sentinel/middleware"
	"go.pilab.hu/sentinel/mongodb"
	"go.pilab.hu/sentinel/services"
	"go.pilab.hu/sentinel/sweeper"
	"go.pilab.hu/sentinel/tracker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Msg("Starting sentinel server")

	ctx := context.Background()

	// Telemetry providers must be up before the instrumented Mongo client.
	tp, err := telemetry.InitTracer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer provider")
	}

	client, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MongoDB connection")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Error disconnecting MongoDB client")
		}
	}()

	// Repositories
	sessionRepo, err := mongodb.NewSessionRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SessionRepository")
	}
	attemptRepo, err := mongodb.NewLoginAttemptRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LoginAttemptRepository")
	}
	notificationRepo, err := mongodb.NewNotificationRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize NotificationRepository")
	}

	// Alert fan-out: persisted operator notifications, plus Redis pub/sub
	// when configured.
	sinks := []domain.AlertSink{alerts.NewNotificationSink(notificationRepo)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		sinks = append(sinks, redissink.NewPublisher(rdb, cfg.RedisAlertChannel))
		defer rdb.Close()
	}
	alertSink := alerts.NewComposite(sinks...)

	operators := cache.NewOperatorCache(mongodb.NewOperatorDirectoryMongo(db), cfg.OperatorCacheTTL())
	defer operators.Stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics.Register(registry)

	mp, err := telemetry.InitMeter(registry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize meter provider")
	}
	defer telemetry.Shutdown(context.Background(), tp, mp)

	// Core engine
	classifier := anomaly.NewClassifier(sessionRepo, attemptRepo, anomaly.Thresholds{
		RequestRateLimit:   cfg.RequestRateLimit,
		RequestRateWindow:  time.Minute,
		BruteForceLimit:    cfg.BruteForceLimit,
		BruteForceWindow:   15 * time.Minute,
		BusinessHoursStart: cfg.BusinessHoursStart,
		BusinessHoursEnd:   cfg.BusinessHoursEnd,
		ConcurrentLimit:    cfg.ConcurrentSessionLimit,
		ConcurrentWindow:   30 * time.Minute,
	})
	extractor := fingerprint.NewExtractor(fingerprint.DefaultConfig())
	trk := tracker.New(extractor, sessionRepo, attemptRepo, classifier, alertSink, operators,
		tracker.WithSessionTTL(cfg.SessionTTL()))

	sw := sweeper.New(sessionRepo,
		sweeper.WithInterval(cfg.SweepInterval()),
		sweeper.WithRetention(cfg.Retention()),
		sweeper.WithProbability(cfg.SweepProbability))

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go sw.Run(sweepCtx)

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.SessionTracking(trk, nil))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	admin := e.Group("/api/admin", middleware.RequireOperator(mongodb.OperatorRole))
	sessionService := services.NewSessionService(sessionRepo, notificationRepo)
	echoapi.NewSessionAPI(sessionService).RegisterRoutes(admin)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down sentinel server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
}

func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
