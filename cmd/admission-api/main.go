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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-admission-api/api/swagger"
	"github.com/noah-isme/course-admission-api/internal/directory"
	"github.com/noah-isme/course-admission-api/internal/dto"
	"github.com/noah-isme/course-admission-api/internal/handler"
	internalmiddleware "github.com/noah-isme/course-admission-api/internal/middleware"
	"github.com/noah-isme/course-admission-api/internal/models"
	"github.com/noah-isme/course-admission-api/internal/repository"
	"github.com/noah-isme/course-admission-api/internal/service"
	"github.com/noah-isme/course-admission-api/pkg/cache"
	"github.com/noah-isme/course-admission-api/pkg/config"
	"github.com/noah-isme/course-admission-api/pkg/database"
	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
	"github.com/noah-isme/course-admission-api/pkg/jobs"
	"github.com/noah-isme/course-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-admission-api/pkg/middleware/requestid"
)

// @title Course Admission API
// @version 1.0.0
// @description Seat-constrained course enrollment with FIFO waitlists
// @BasePath /api/v1
// @schemes http

type admissionBackend interface {
	EnsureCourse(ctx context.Context, courseID string) (bool, error)
	WithinCourse(ctx context.Context, courseID string, fn repository.CourseTxFunc) error
	ActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentRecord, error)
}

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

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	var checks []handler.ReadinessCheck

	var db *sqlx.DB
	if cfg.NeedsDatabase() {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect database", zap.Error(err))
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(db.DB, logr); err != nil {
				logr.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		checks = append(checks, handler.ReadinessCheck{Name: "postgres", Check: db.PingContext})
	}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	var store admissionBackend
	switch cfg.Admission.StoreDriver {
	case config.StorePostgres:
		store = repository.NewAdmissionStore(db, repository.WithSectionTimeout(cfg.Database.SectionTimeout))
	default:
		store = repository.NewMemoryAdmissionStore()
	}

	var (
		courseDir  service.CourseDirectory
		studentDir service.StudentDirectory
		seeds      []directory.CapacitySeed
	)
	switch cfg.Directory.Mode {
	case config.DirectoryHTTP:
		opts := directory.HTTPOptions{Timeout: cfg.Directory.Timeout, MaxRetries: cfg.Directory.MaxRetries, Logger: logr}
		courseDir = directory.NewHTTPCourseDirectory(cfg.Directory.CourseURL, opts)
		studentDir = directory.NewHTTPStudentDirectory(cfg.Directory.StudentURL, opts)
	case config.DirectoryDatabase:
		courseDir = repository.NewCourseRepository(db)
		studentDir = repository.NewStudentRepository(db)
	default:
		static, err := directory.LoadStaticDirectory(cfg.Directory.CatalogFile, store)
		if err != nil {
			logr.Fatal("failed to load course catalog", zap.Error(err))
		}
		courseDir, studentDir, seeds = static, static, static.Seeds()
	}

	var cacheRepo service.CacheRepository
	if cfg.CourseCache.Enabled && redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	catalog := service.NewCourseCatalogService(courseDir, service.NewCacheService(cacheRepo,
		service.WithCacheMetrics(metricsSvc),
		service.WithCacheLogger(logr),
		service.WithCacheTTL(cfg.CourseCache.TTL),
		service.WithCacheNamespace("admission"),
	))

	sinks := []service.EventSink{service.NewLogEventSink(logr)}
	if cfg.Notifications.RedisEnabled && redisClient != nil {
		sinks = append(sinks, repository.NewRedisEventPublisher(redisClient, cfg.Notifications.Channel))
	}
	notifier := service.NewNotificationService(jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, courseDir, metricsSvc, logr, sinks...)
	notifier.Start(ctx)
	defer notifier.Stop()

	admissionSvc := service.NewAdmissionService(store, catalog, studentDir, validate, logr,
		service.WithAdmissionNotifier(notifier),
		service.WithAdmissionMetrics(metricsSvc),
	)
	seedCapacities(ctx, admissionSvc, seeds, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, cfg.CORS.MaxAge))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks...)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.GET("/stats", metricsHandler.Stats)
	handler.NewAdmissionHandler(admissionSvc).RegisterRoutes(api)
	api.GET("/courses/:courseId/roster", handler.NewRosterHandler(service.NewRosterExportService(admissionSvc, logr)).Export)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env,
			"store", cfg.Admission.StoreDriver, "directory", cfg.Directory.Mode, "sinks", notifier.Sinks())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// seedCapacities applies catalog capacities at startup. A ledger that already
// holds more seats than the catalog declares keeps its current size.
func seedCapacities(ctx context.Context, svc *service.AdmissionService, seeds []directory.CapacitySeed, logr *zap.Logger) {
	for _, seed := range seeds {
		total := seed.Capacity
		_, err := svc.SetCapacity(ctx, dto.SetCapacityRequest{CourseID: seed.CourseID, TotalCapacity: &total})
		switch {
		case err == nil:
		case errors.Is(err, appErrors.ErrCapacityBelowTaken):
			logr.Warn("catalog capacity below taken seats; keeping ledger", zap.String("course_id", seed.CourseID), zap.Int("capacity", total))
		default:
			logr.Fatal("failed to seed course capacity", zap.String("course_id", seed.CourseID), zap.Error(err))
		}
	}
}
