package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/analytics"
	"github.com/noah-isme/gema-kg/internal/config"
	"github.com/noah-isme/gema-kg/internal/database"
	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/graphstore/neo4jstore"
	"github.com/noah-isme/gema-kg/internal/graphstore/sqlstore"
	"github.com/noah-isme/gema-kg/internal/handler"
	"github.com/noah-isme/gema-kg/internal/middleware"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
	"github.com/noah-isme/gema-kg/internal/router"
	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/pkg/ai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	store, err := openGraphStore(cfg, logger)
	if err != nil {
		log.Fatalf("failed to open graph store: %v", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("graph store close failed")
		}
	}()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	events := service.NopEventPublisher()
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		events = service.NewNATSEventPublisher(natsConn, cfg.NATSSubjectPrefix, logger)
	}

	detector, err := analytics.NewCommunityDetector(cfg.CommunityDetector)
	if err != nil {
		log.Fatalf("invalid analytics configuration: %v", err)
	}

	var grader ai.Grader
	if cfg.OpenAIAPIKey != "" {
		openAIGrader, err := ai.NewOpenAIGrader(ai.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.AIModel,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("failed to create grader: %v", err)
		}
		grader = openAIGrader
	} else {
		logger.Info().Msg("automatic grading disabled: no openai api key configured")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	peopleRepo := repository.NewPeopleRepository(store)
	courseRepo := repository.NewCourseRepository(store)
	submissionRepo := repository.NewSubmissionRepository(store)
	mistakeRepo := repository.NewMistakeRepository(store)
	criterionRepo := repository.NewCriterionRepository(store)
	materialRepo := repository.NewMaterialRepository(store)

	recorder := service.NewMistakeRecorder(mistakeRepo, criterionRepo, submissionRepo, service.NewLexicalMatcher(), events, logger)
	courseService := service.NewCourseService(peopleRepo, courseRepo, submissionRepo, validate, logger)
	materialService := service.NewMaterialService(courseRepo, materialRepo, criterionRepo, validate, cfg.MaterialMaxBytes, logger)
	gradingService := service.NewGradingService(submissionRepo, courseRepo, materialRepo, recorder, grader, validate, logger)
	var similarityOpts []service.SimilarityOption
	if cfg.SimilarityKey == config.SimilarityKeyQuestionCriteria {
		similarityOpts = append(similarityOpts, service.WithMistakeKey(service.QuestionCriteriaKey))
	}
	similarityService := service.NewSimilarityService(submissionRepo, mistakeRepo, logger, similarityOpts...)
	analyticsService := service.NewAnalyticsService(mistakeRepo, criterionRepo, materialRepo, detector, redisClient, events, service.AnalyticsConfig{
		CacheTTL:          cfg.AnalyticsCacheTTL,
		SimilarityWorkers: cfg.SimilarityWorkers,
	}, logger)
	recommendationService := service.NewRecommendationService(peopleRepo, courseRepo, submissionRepo, mistakeRepo, materialRepo, logger)

	scheduler := service.NewAnalyticsScheduler(analyticsService, courseRepo, natsConn, cfg.NATSSubjectPrefix, cfg.AnalyticsInterval, cfg.AnalyticsDebounce, logger)
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	scheduler.Start(schedulerCtx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.MaterialMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
		StackTraces:  cfg.AppEnv != "production",
	})
	router.Register(app, cfg, router.Dependencies{
		CourseHandler:         handler.NewCourseHandler(courseService, logger),
		MaterialHandler:       handler.NewMaterialHandler(materialService, logger),
		GradingHandler:        handler.NewGradingHandler(gradingService, similarityService, logger),
		AnalyticsHandler:      handler.NewAnalyticsHandler(analyticsService, logger),
		RecommendationHandler: handler.NewRecommendationHandler(recommendationService, logger),
		HealthStore:           store,
		JWTMiddleware:         middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
	stopScheduler()
	scheduler.Wait()
}

func openGraphStore(cfg config.Config, logger zerolog.Logger) (graphstore.Store, error) {
	switch cfg.GraphBackend {
	case config.GraphBackendNeo4j:
		driver, err := database.ConnectNeo4j(context.Background(), cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		store, err := neo4jstore.New(driver, cfg.Neo4jDatabase, logger)
		if err != nil {
			return nil, err
		}
		store.EnsureIndexes(context.Background(), models.VertexCollections())
		return store, nil
	default:
		db, err := database.ConnectSQL(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(db, logger)
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
