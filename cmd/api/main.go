package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/ai"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "gema-grader").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx := context.Background()

	generator, err := newGenerator(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create generation backend")
	}
	if err := generator.Probe(ctx); err != nil {
		logger.Warn().Err(err).Msg("generation backend unreachable, grading will run on fallbacks until it recovers")
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create embedding backend")
	}
	if embedder == nil {
		logger.Warn().Msg("no embedding backend configured, every segment will score zero")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, rubric cache disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, grading events disabled")
			natsConn = nil
		} else {
			defer natsConn.Drain()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	analyzer := grading.NewRubricAnalyzer(generator, grading.RubricDefaults{MaxPoints: cfg.DefaultPoints, PartCount: cfg.DefaultParts}, cfg.RubricTokens, logger)
	pipeline := grading.NewPipeline(grading.PipelineDeps{
		Analyzer:  service.NewCachedRubricAnalyzer(analyzer, redisClient, cfg.RubricCacheTTL, logger),
		Segmenter: grading.NewSegmenter(generator, cfg.SegmentTokens, logger),
		Parser:    grading.NewParser(logger),
		Scorer:    grading.NewScorer(embedder, grading.Thresholds{FullMatch: cfg.FullMatchThreshold, Match: cfg.MatchThreshold}, logger),
		Feedback:  grading.NewFeedbackSynthesizer(generator, cfg.FeedbackTokens, logger),
	}, logger)

	var questionRepo repository.QuestionRepository
	var questionHandler *handler.QuestionHandler
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := db.AutoMigrate(&models.Question{}); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}

		questionRepo = repository.NewQuestionRepository(db)
		questionService := service.NewQuestionService(questionRepo, validate, logger)
		if cfg.SeedFile != "" {
			if _, err := questionService.SeedFromFile(ctx, cfg.SeedFile); err != nil {
				logger.Error().Err(err).Str("path", cfg.SeedFile).Msg("failed to seed course work")
			}
		}
		questionHandler = handler.NewQuestionHandler(questionService, logger)
	}

	publisher := service.NewNATSGradingPublisher(natsConn, cfg.NATSSubject, logger)
	gradingService := service.NewGradingService(pipeline, questionRepo, publisher, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})

	var authMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		authMiddleware = middleware.Authenticate(cfg.JWTSecret)
	}
	router.Register(app, cfg, router.Dependencies{
		GradingHandler:  handler.NewGradingHandler(gradingService, logger),
		QuestionHandler: questionHandler,
		Generator:       generator,
		AuthMiddleware:  authMiddleware,
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("generator", cfg.GeneratorProvider).Str("embedding", cfg.EmbeddingProvider).Msg("grader listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func newGenerator(cfg config.Config, logger zerolog.Logger) (*ai.Client, error) {
	var backend ai.Backend
	switch cfg.GeneratorProvider {
	case "openai":
		openaiBackend, err := ai.NewOpenAIBackend(ai.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.GeneratorURL, Model: cfg.GeneratorModel})
		if err != nil {
			return nil, err
		}
		backend = openaiBackend
	default:
		ollamaBackend, err := ai.NewOllamaBackend(ai.OllamaConfig{URL: cfg.GeneratorURL, Model: cfg.GeneratorModel})
		if err != nil {
			return nil, err
		}
		backend = ollamaBackend
	}

	return ai.NewClient(backend, ai.ClientConfig{
		MaxRetries:   cfg.GeneratorMaxRetries,
		Timeout:      cfg.GeneratorTimeout,
		ProbeTimeout: cfg.GeneratorProbeTimeout,
		Temperature:  cfg.GeneratorTemperature,
		TopP:         cfg.GeneratorTopP,
	}, logger), nil
}

// newEmbedder returns a nil Embedder when embeddings are disabled.
func newEmbedder(cfg config.Config) (ai.Embedder, error) {
	httpClient := &http.Client{Timeout: cfg.EmbeddingTimeout}

	switch cfg.EmbeddingProvider {
	case "none":
		return nil, nil
	case "openai":
		return ai.NewOpenAIEmbedder(ai.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.EmbeddingURL, Model: cfg.EmbeddingModel, HTTPClient: httpClient})
	default:
		return ai.NewOllamaEmbedder(ai.OllamaConfig{URL: cfg.EmbeddingURL, Model: cfg.EmbeddingModel, HTTPClient: httpClient})
	}
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
