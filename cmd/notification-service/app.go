package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"logiflow/internal/bus"
	"logiflow/internal/config"
	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/internal/notifications"
	"logiflow/pkg/bootstrap"
	"logiflow/pkg/health"
	"logiflow/pkg/logging"
	"logiflow/pkg/metrics"
	"logiflow/pkg/middleware"
	"logiflow/pkg/migrations"
	"logiflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	service        notifications.Service
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("notification-service")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := a.initService(); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBus(); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	if err := a.Bus.DeclareTopology(ctx, []bus.Binding{
		{Topic: bus.TopicOrders, Queue: constants.QueueNotificationsOrderCreated, Pattern: bus.KeyOrderCreated},
		{Topic: bus.TopicOrders, Queue: constants.QueueNotificationsOrderUpdated, Pattern: bus.KeyOrderUpdated},
		{Topic: bus.TopicTracking, Queue: constants.QueueNotificationsLocationUpdated, Pattern: bus.KeyLocationUpdated},
	}); err != nil {
		return fmt.Errorf("failed to declare bus topology: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "notification-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterNotificationMetrics()
	metrics.RegisterBusMetrics()
	metrics.RegisterDatabaseMetrics()

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("postgres is required, set database.postgres.host")
	}
	a.db = db

	if a.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db, migrations.DefaultPostgresPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return nil
}

func (a *App) initService() error {
	repo := notifications.NewRepository(a.db)
	sender := notifications.NewSimulatedSender(a.Config.Notifications.SenderFailureRate)
	a.service = notifications.NewService(repo, sender, a.Logger)
	return nil
}

func (a *App) initHTTPServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("notification-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	handler := notifications.NewHandler(a.service, a.Logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if amqpBus, ok := a.Bus.(*bus.AMQPBus); ok {
		healthRegistry.Register(health.NewRabbitMQChecker(amqpBus.Connection()))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	consumers := []struct {
		queue   string
		handler bus.HandlerFunc
	}{
		{constants.QueueNotificationsOrderCreated, a.service.HandleOrderCreated},
		{constants.QueueNotificationsOrderUpdated, a.service.HandleOrderUpdated},
		{constants.QueueNotificationsLocationUpdated, a.service.HandleLocationUpdated},
	}
	for _, consumer := range consumers {
		consumer := consumer
		g.Go(func() error {
			consumeCtx := logging.WithServiceName(gCtx, "notification-service")
			a.Logger.InfowCtx(consumeCtx, "Starting consumer", "queue", consumer.queue)
			return a.Bus.Subscribe(gCtx, consumer.queue, consumer.handler)
		})
	}

	if interval := a.Config.Notifications.RetryInterval; interval > 0 {
		g.Go(func() error {
			sweepCtx := logging.WithServiceName(gCtx, "notification-service")
			a.Logger.InfowCtx(sweepCtx, "Starting retry sweep", "interval", interval)
			a.service.RunRetrySweep(sweepCtx, interval)
			return nil
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownLogCtx := logging.WithServiceName(ctx, "notification-service")
	a.Logger.InfowCtx(shutdownLogCtx, "Shutting down notification service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, nil, a.db, nil)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
