package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/pickpack-service/internal/application"
	"github.com/wms-platform/pickpack-service/internal/infrastructure/clients"
	inframongo "github.com/wms-platform/pickpack-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
	"github.com/wms-platform/pickpack-service/pkg/kafka"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
	"github.com/wms-platform/pickpack-service/pkg/middleware"
	"github.com/wms-platform/pickpack-service/pkg/mongodb"
	"github.com/wms-platform/pickpack-service/pkg/outbox"
	outboxmongo "github.com/wms-platform/pickpack-service/pkg/outbox/mongodb"
)

const serviceName = "pickpack-service"

type config struct {
	ServerAddress   string
	Environment     string
	Version         string
	LogLevel        string
	MongoURI        string
	MongoDatabase   string
	KafkaBrokers    string
	OrderServiceURL string
	LockTTL         time.Duration
	OutboxInterval  time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() config {
	return config{
		ServerAddress:   getEnv("SERVER_ADDRESS", ":8086"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		Version:         getEnv("SERVICE_VERSION", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "pickpack"),
		KafkaBrokers:    getEnv("KAFKA_BROKERS", "localhost:9092"),
		OrderServiceURL: getEnv("ORDER_SERVICE_URL", "http://localhost:8081"),
		LockTTL:         getEnvDuration("LOCK_TTL", 15*time.Minute),
		OutboxInterval:  getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	cfg := loadConfig()

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Level:       cfg.LogLevel,
	})
	logger.SetAsDefault()

	logger.Info("starting pickpack service",
		"address", cfg.ServerAddress,
		"lockTTL", cfg.LockTTL,
	)

	m := metrics.NewMetrics(serviceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := mongodb.NewClient(ctx, mongodb.DefaultConfig(cfg.MongoURI, cfg.MongoDatabase))
	if err != nil {
		logger.WithError(err).Error("failed to connect to mongodb")
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Close(context.Background()); err != nil {
			logger.WithError(err).Error("failed to close mongodb client")
		}
	}()

	outboxRepo, err := outboxmongo.NewRepository(ctx, mongoClient.Database())
	if err != nil {
		logger.WithError(err).Error("failed to initialize outbox repository")
		os.Exit(1)
	}

	factory := cloudevents.NewEventFactory("//wms/" + serviceName)

	eventRepo, err := inframongo.NewEventRepository(ctx, mongoClient)
	if err != nil {
		logger.WithError(err).Error("failed to initialize event repository")
		os.Exit(1)
	}
	workflowRepo, err := inframongo.NewWorkflowRepository(ctx, mongoClient, eventRepo, outboxRepo, factory, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize workflow repository")
		os.Exit(1)
	}
	waveRepo, err := inframongo.NewWaveRepository(ctx, mongoClient, outboxRepo, factory)
	if err != nil {
		logger.WithError(err).Error("failed to initialize wave repository")
		os.Exit(1)
	}

	producer := kafka.NewProducer(kafka.DefaultConfig(cfg.KafkaBrokers, serviceName), m)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Error("failed to close kafka producer")
		}
	}()

	publisher := outbox.NewPublisher(outboxRepo, producer, logger, m, &outbox.PublisherConfig{
		PollInterval: cfg.OutboxInterval,
		BatchSize:    100,
	})
	if err := publisher.Start(ctx); err != nil {
		logger.WithError(err).Error("failed to start outbox publisher")
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Stop(); err != nil {
			logger.WithError(err).Error("failed to stop outbox publisher")
		}
	}()

	orderClient := clients.NewOrderServiceClient(cfg.OrderServiceURL, logger, m)

	workflowService := application.NewWorkflowService(workflowRepo, waveRepo, eventRepo, orderClient, logger, m, cfg.LockTTL)
	queueService := application.NewQueueService(workflowRepo, orderClient, logger, m)
	statsService := application.NewStatsService(eventRepo, workflowRepo, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	middleware.Setup(router, middleware.Config{
		ServiceName: serviceName,
		Logger:      logger,
		Metrics:     m,
	})

	responder := middleware.NewErrorResponder(logger)

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, map[string]middleware.HealthChecker{
		"mongodb": mongoClient,
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/workflows", createWorkflowHandler(workflowService, responder))
		v1.GET("/workflows/:orderId", getWorkflowHandler(workflowService, responder))
		v1.GET("/workflows/:orderId/events", getWorkflowEventsHandler(workflowService, responder))
		v1.POST("/workflows/:orderId/events", logEventHandler(workflowService, responder))
		v1.POST("/workflows/:orderId/claim", claimHandler(workflowService, responder))
		v1.POST("/workflows/:orderId/release", releaseHandler(workflowService, responder))
		v1.POST("/workflows/:orderId/complete-pick", completePickHandler(workflowService, responder))
		v1.POST("/workflows/:orderId/complete-pack", completePackHandler(workflowService, responder))
		v1.POST("/batch-claim", batchClaimHandler(workflowService, responder))

		v1.GET("/queue", queueHandler(queueService, responder))

		v1.GET("/waves", listWavesHandler(workflowService, responder))
		v1.GET("/waves/:waveId", getWaveHandler(workflowService, responder))
		v1.POST("/waves/:waveId/cancel", cancelWaveHandler(workflowService, responder))

		v1.GET("/stats", statsHandler(statsService, responder))
		v1.GET("/leaderboard", leaderboardHandler(statsService, responder))
	}

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "address", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown failed")
	}

	logger.Info("pickpack service stopped")
}

func createWorkflowHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.CreateWorkflowCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		workflow, err := service.CreateWorkflow(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondCreated(c, workflow)
	}
}

func getWorkflowHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		workflow, err := service.GetWorkflow(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, workflow)
	}
}

func getWorkflowEventsHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := service.GetWorkflowEvents(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, gin.H{"events": events})
	}
}

func logEventHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.LogEventCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
		cmd.OrderID = c.Param("orderId")

		event, err := service.LogEvent(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondCreated(c, event)
	}
}

func claimHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.ClaimCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
		cmd.OrderID = c.Param("orderId")

		result, err := service.Claim(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, result)
	}
}

func releaseHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.ReleaseCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
		cmd.OrderID = c.Param("orderId")

		workflow, err := service.Release(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, workflow)
	}
}

func completePickHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.CompletePickCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
		cmd.OrderID = c.Param("orderId")

		workflow, err := service.CompletePick(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, workflow)
	}
}

func completePackHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.CompletePackCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
		cmd.OrderID = c.Param("orderId")

		workflow, err := service.CompletePack(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, workflow)
	}
}

func batchClaimHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.BatchClaimCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}

		result, err := service.BatchClaim(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, result)
	}
}

func queueHandler(service *application.QueueService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		queue, err := service.GetQueue(c.Request.Context())
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, queue)
	}
}

func listWavesHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		waves, err := service.ListWaves(c.Request.Context(), c.Query("status"))
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, gin.H{"waves": waves})
	}
}

func getWaveHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		wave, err := service.GetWave(c.Request.Context(), c.Param("waveId"))
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, wave)
	}
}

func cancelWaveHandler(service *application.WorkflowService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd application.CancelWaveCommand
		if appErr := middleware.BindAndValidate(c, &cmd); appErr != nil {
			middleware.AbortWithAppError(c, appErr)
			return
		}
		cmd.WaveID = c.Param("waveId")

		wave, err := service.CancelWave(c.Request.Context(), cmd)
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, wave)
	}
}

func statsHandler(service *application.StatsService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := service.GetStats(c.Request.Context(), c.Query("period"))
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, stats)
	}
}

func leaderboardHandler(service *application.StatsService, responder *middleware.ErrorResponder) gin.HandlerFunc {
	return func(c *gin.Context) {
		board, err := service.GetLeaderboard(c.Request.Context(), c.Query("period"), c.Query("type"))
		if err != nil {
			responder.Respond(c, err)
			return
		}
		responder.RespondOK(c, board)
	}
}
