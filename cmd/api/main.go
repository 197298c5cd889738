package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/peer-eval-api/internal/config"
	"github.com/noah-isme/peer-eval-api/internal/database"
	"github.com/noah-isme/peer-eval-api/internal/handler"
	"github.com/noah-isme/peer-eval-api/internal/middleware"
	"github.com/noah-isme/peer-eval-api/internal/repository"
	"github.com/noah-isme/peer-eval-api/internal/router"
	"github.com/noah-isme/peer-eval-api/internal/scoring"
	"github.com/noah-isme/peer-eval-api/internal/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "peer-eval-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, cfg.AppEnv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, peer score cache disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, grade events fall back to redis")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	engine, err := scoring.NewEngine(scoring.Scale{
		Min:         cfg.Scoring.ScaleMin,
		Neutral:     cfg.Scoring.Neutral,
		Max:         cfg.Scoring.ScaleMax,
		OutputBound: cfg.Scoring.OutputBound,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scoring scale")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	activityService := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	peerService := service.NewPeerEvaluationService(service.PeerEvaluationDependencies{
		Evaluations: repository.NewEvaluationRepository(db),
		Responses:   repository.NewResponseRepository(db),
		Students:    repository.NewStudentRepository(db),
		Grades:      repository.NewGradeRepository(db),
		Engine:      engine,
		Combiner:    scoring.NewCombiner(cfg.DefaultGroupGrade),
		Validator:   validate,
		Cache:       redisClient,
		CacheTTL:    cfg.ScoresCacheTTL,
		Workers:     cfg.GradingWorkers,
		Events:      service.NewGradeEventPublisher(natsConn, cfg.NATSSubject, redisClient, logger),
		Activity:    activityService,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:    &logger,
		AccessLog: cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		PeerEvaluationHandler: handler.NewPeerEvaluationHandler(peerService, logger),
		ActivityHandler:       handler.NewActivityHandler(activityService, validate, logger),
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
		GradingRateLimit:      middleware.RateLimit("grading", 10, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
