package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"logiflow/internal/auth"
	"logiflow/internal/bus"
	"logiflow/internal/config"
	"logiflow/internal/constants"
	"logiflow/internal/logger"
	"logiflow/internal/realtime"
	"logiflow/pkg/bootstrap"
	"logiflow/pkg/health"
	"logiflow/pkg/logging"
	"logiflow/pkg/metrics"
	"logiflow/pkg/middleware"
	"logiflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	hub            *realtime.Hub
	broadcaster    *realtime.Broadcaster
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("realtime-service")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.InitBus(); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	if err := a.Bus.DeclareTopology(ctx, []bus.Binding{
		{Topic: bus.TopicOrders, Queue: constants.QueueRealtimeOrderCreated, Pattern: bus.KeyOrderCreated},
		{Topic: bus.TopicOrders, Queue: constants.QueueRealtimeOrderUpdated, Pattern: bus.KeyOrderUpdated},
		{Topic: bus.TopicTracking, Queue: constants.QueueRealtimeLocationUpdated, Pattern: bus.KeyLocationUpdated},
	}); err != nil {
		return fmt.Errorf("failed to declare bus topology: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, "realtime-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterRealtimeMetrics()
	metrics.RegisterBusMetrics()

	if err := a.initHTTPServer(); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initHTTPServer() error {
	a.hub = realtime.NewHub(a.Logger)
	a.broadcaster = realtime.NewBroadcaster(a.hub, a.Logger)

	verifier, err := auth.NewVerifier(a.Config.Auth)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("realtime-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	wsHandler := realtime.NewWSHandler(a.hub, verifier, a.Config.Realtime, a.Logger)
	wsHandler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
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
		{constants.QueueRealtimeOrderCreated, a.broadcaster.HandleOrderCreated},
		{constants.QueueRealtimeOrderUpdated, a.broadcaster.HandleOrderUpdated},
		{constants.QueueRealtimeLocationUpdated, a.broadcaster.HandleLocationUpdated},
	}
	for _, consumer := range consumers {
		consumer := consumer
		g.Go(func() error {
			consumeCtx := logging.WithServiceName(gCtx, "realtime-service")
			a.Logger.InfowCtx(consumeCtx, "Starting consumer", "queue", consumer.queue)
			return a.Bus.Subscribe(gCtx, consumer.queue, consumer.handler)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownLogCtx := logging.WithServiceName(ctx, "realtime-service")
	a.Logger.InfowCtx(shutdownLogCtx, "Shutting down realtime service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.hub != nil {
			a.hub.CloseAll()
		}

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

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
