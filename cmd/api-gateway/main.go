package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-scheduling-engine/api/swagger"
	"github.com/noah-isme/sma-scheduling-engine/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-scheduling-engine/internal/middleware"
	"github.com/noah-isme/sma-scheduling-engine/internal/repository"
	"github.com/noah-isme/sma-scheduling-engine/internal/service"
	"github.com/noah-isme/sma-scheduling-engine/pkg/cache"
	"github.com/noah-isme/sma-scheduling-engine/pkg/config"
	"github.com/noah-isme/sma-scheduling-engine/pkg/database"
	"github.com/noah-isme/sma-scheduling-engine/pkg/jobs"
	"github.com/noah-isme/sma-scheduling-engine/pkg/lock"
	"github.com/noah-isme/sma-scheduling-engine/pkg/logger"
	"github.com/noah-isme/sma-scheduling-engine/pkg/messaging"
	corsmiddleware "github.com/noah-isme/sma-scheduling-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-scheduling-engine/pkg/middleware/requestid"
)

// @title SMA Scheduling Engine API
// @version 1.0.0
// @description Timetable generation, conflict validation, substitute teacher search and weekly quota decay.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.Lock.Backend == "redis" {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.Namespace, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Lock.Backend == "redis" {
		locker = lock.NewRedisLocker(redisClient, "scheduler:lock:", cfg.Lock.TTL)
	}

	notifications := service.NewNotificationService(nil, logr)
	if cfg.RabbitMQ.Enabled {
		publisher, err := messaging.Dial(cfg.RabbitMQ)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect rabbitmq", "error", err)
		}
		defer publisher.Close() //nolint:errcheck
		notifications = service.NewNotificationService(publisher, logr)
	}

	validate := validator.New()

	assignmentRepo := repository.NewAssignmentRepository(db)
	entryRepo := repository.NewScheduleEntryRepository(db)
	overrideRepo := repository.NewScheduleOverrideRepository(db)
	slotRepo := repository.NewSlotDefinitionRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	absenceRepo := repository.NewAbsenceRepository(db)
	taskRepo := repository.NewReplacementTaskRepository(db)

	capacity := service.NewCapacityCalculator(cfg.Scheduler.PeriodsPerDay)

	generatorSvc := service.NewTimetableGeneratorService(
		directoryRepo,
		assignmentRepo,
		slotRepo,
		entryRepo,
		taskRepo,
		db,
		locker,
		cacheSvc,
		metricsSvc,
		validate,
		logr,
		service.TimetableGeneratorConfig{DaysPerWeek: cfg.Scheduler.DaysPerWeek},
	)
	validatorSvc := service.NewTimetableValidatorService(entryRepo, cacheSvc, cfg.Cache.TTL, logr)
	timetableSvc := service.NewTimetableService(entryRepo, overrideRepo, slotRepo, nil, nil, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, directoryRepo, capacity, locker, validate, logr)

	replacementSvc := service.NewReplacementService(service.ReplacementDeps{
		Absences:    absenceRepo,
		Entries:     entryRepo,
		Assignments: assignmentRepo,
		Tasks:       taskRepo,
		Overrides:   overrideRepo,
		Directory:   directoryRepo,
		Notifier:    notifications,
		Tokens:      service.NewOfferTokenService(cfg.Replacement.OfferTokenSecret),
		Tx:          db,
		Locker:      locker,
		Metrics:     metricsSvc,
		Validator:   validate,
		Logger:      logr,
	}, service.ReplacementConfig{
		PeriodsPerDay: cfg.Scheduler.PeriodsPerDay,
		OfferTTL:      cfg.Replacement.OfferTTL,
		MaxAttempts:   cfg.Replacement.MaxCandidateAttempt,
		AdminRole:     cfg.Scheduler.AdminRole,
	})

	absenceQueue := jobs.NewQueue("absences", replacementSvc.HandleAbsenceJob, jobs.QueueConfig{
		Workers:    cfg.Replacement.AbsenceWorkers,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Retryable:  service.RetryableJobError,
		Logger:     logr,
	})
	absenceQueue.Start(ctx)
	defer absenceQueue.Stop()
	dispatcher := service.NewAbsenceDispatcher(absenceQueue, logr)

	decaySvc := service.NewWeeklyDecayService(
		assignmentRepo,
		entryRepo,
		taskRepo,
		directoryRepo,
		notifications,
		db,
		locker,
		cacheSvc,
		metricsSvc,
		logr,
		cfg.Scheduler.AdminRole,
	)

	replacementSvc.StartSweeper(ctx, cfg.Replacement.SweepInterval)
	if cfg.Decay.Enabled {
		decaySvc.StartScheduler(ctx, service.DecayScheduleConfig{
			Weekday:       cfg.Decay.Weekday,
			Hour:          cfg.Decay.Hour,
			CheckInterval: cfg.Decay.CheckInterval,
		})
	}

	timetableHandler := handler.NewTimetableHandler(generatorSvc, validatorSvc, timetableSvc)
	absenceHandler := handler.NewAbsenceHandler(replacementSvc, dispatcher)
	replacementHandler := handler.NewReplacementHandler(replacementSvc)
	decayHandler := handler.NewDecayHandler(decaySvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		timetables := api.Group("/timetables/:classId")
		timetables.GET("", timetableHandler.Get)
		timetables.POST("/generate", timetableHandler.Generate)
		timetables.GET("/conflicts", timetableHandler.Conflicts)
		timetables.GET("/export", timetableHandler.Export)

		absences := api.Group("/absences/:id")
		absences.POST("/approved", absenceHandler.Approved)
		absences.POST("/replacements", absenceHandler.Process)
		absences.GET("/replacements", absenceHandler.Replacements)

		replacements := api.Group("/replacements")
		replacements.POST("/respond", replacementHandler.Respond)
		replacements.POST("/:taskId/accept", replacementHandler.Accept)
		replacements.POST("/:taskId/decline", replacementHandler.Decline)

		api.POST("/assignments", assignmentHandler.Create)
		api.PATCH("/assignments/:id/quota", assignmentHandler.UpdateQuota)
		api.POST("/decay/run", decayHandler.Run)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
