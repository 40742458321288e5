package main

import (
	"context"
	"strings"
	"time"

	"contentops/autopilot/internal/capability"
	"contentops/autopilot/internal/handlers"
	"contentops/autopilot/internal/scheduler"
	"contentops/autopilot/internal/store"
	"contentops/autopilot/internal/worker"
	"contentops/autopilot/pkg/auth"
	"contentops/autopilot/pkg/config"
	"contentops/autopilot/pkg/database"
	"contentops/autopilot/pkg/kafka"
	"contentops/autopilot/pkg/logging"
	"contentops/autopilot/pkg/monitoring"
	"contentops/autopilot/pkg/server"
	"contentops/autopilot/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("autopilot")

	// Load environment variables
	config.LoadEnv(logger)

	info := version.GetInfo()
	logger.WithFields(logging.Fields{
		"version": info.Version,
		"commit":  version.GetShortCommit(),
		"built":   info.BuildDate,
	}).Info("Starting Autopilot (Scheduling & Publication Engine)")

	dbURL := config.RequireEnv("DATABASE_URL")
	jwtSecret := config.RequireEnv("JWT_SECRET")
	brokers := strings.Split(config.GetEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	cycleTopic := config.GetEnv("CYCLE_TOPIC", "autopilot.cycle_requests")
	dlqTopic := cycleTopic + ".dlq"
	generatorURL := config.RequireEnv("GENERATOR_URL")
	publisherURL := config.RequireEnv("PUBLISHER_URL")
	serviceToken := config.GetEnv("SERVICE_TOKEN", "")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	st := store.NewStore(db)

	// Kafka producer for cycle dispatch and DLQ routing
	producer, err := kafka.NewProducer(brokers, "autopilot-producer", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	// Consumer group executing dispatched cycles
	consumer, err := kafka.NewConsumer(brokers, "autopilot-cycle-workers", "autopilot-consumer", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("autopilot", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("autopilot", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer.GetClient()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  dbURL,
		"JWT_SECRET":    jwtSecret,
		"GENERATOR_URL": generatorURL,
		"PUBLISHER_URL": publisherURL,
	}))

	// Engine metrics
	apiMetrics := &handlers.AutopilotMetrics{
		CyclesDispatched: metricsCollector.NewCounter("autopilot_cycles_dispatched_total", "Cycle triggers dispatched", []string{"status"}),
		ItemActions:      metricsCollector.NewCounter("autopilot_item_actions_total", "Buffer and lifecycle item actions", []string{"action"}),
		SlotOperations:   metricsCollector.NewCounter("autopilot_slot_operations_total", "Posting slot mutations", []string{"operation"}),
	}
	cycleOutcomes := metricsCollector.NewCounter("autopilot_cycle_outcomes_total", "Cycle worker outcomes", []string{"outcome"})
	publishOutcomes := metricsCollector.NewCounter("autopilot_publications_total", "Publication sweep outcomes", []string{"outcome"})

	// Capability adapters
	generator := capability.NewHTTPGenerator(generatorURL, serviceToken, logger)
	publisher := capability.NewHTTPPublisher(publisherURL, serviceToken, logger)

	// Scheduling engine
	tracker := scheduler.NewMixTracker(st)
	lifecycle := scheduler.NewLifecycle(st, logger)
	orchestrator := scheduler.NewOrchestrator(st, generator, tracker, logger)

	// Initialize handlers
	handlers.Init(st, logger, producer, cycleTopic, apiMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cycle worker: consumes dispatched triggers
	cycleMetrics := &worker.CycleMetrics{
		Completed: cycleOutcomes.WithLabelValues("completed"),
		Failed:    cycleOutcomes.WithLabelValues("failed"),
		Skipped:   cycleOutcomes.WithLabelValues("skipped"),
		DLQ:       cycleOutcomes.WithLabelValues("dlq"),
	}
	cycleWorker := worker.NewCycleWorker(st, orchestrator, producer, dlqTopic, cycleMetrics, logger)
	consumer.AddHandler(cycleTopic, cycleWorker.HandleCycleRequest)
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Kafka consumer stopped")
		}
	}()

	// Publication sweep worker. The toggle exists so a second deployment
	// can run API-only next to a dedicated sweeper.
	if config.GetEnvBool("PUBLISH_SWEEP_ENABLED", true) {
		publishMetrics := &worker.PublishMetrics{
			Published: publishOutcomes.WithLabelValues("published"),
			Failed:    publishOutcomes.WithLabelValues("failed"),
		}
		sweepInterval := config.GetEnvDuration("PUBLISH_SWEEP_INTERVAL", time.Minute)
		publishWorker := worker.NewPublishWorker(st, publisher, lifecycle, publishMetrics, logger, sweepInterval)
		go publishWorker.Start(ctx)
	} else {
		logger.Warn("Publication sweep disabled via PUBLISH_SWEEP_ENABLED")
	}

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "autopilot", healthChecker, metricsCollector)

	protected := router.Group("")
	protected.Use(auth.JWTAuthMiddleware([]byte(jwtSecret)))
	{
		protected.GET("/slots", handlers.ListSlots)
		protected.POST("/slots", handlers.CreateSlot)
		protected.GET("/slots/:id", handlers.GetSlot)
		protected.PATCH("/slots/:id", handlers.UpdateSlot)
		protected.DELETE("/slots/:id", handlers.DeleteSlot)

		protected.GET("/pillars", handlers.GetPillars)
		protected.PUT("/pillars", handlers.PutPillars)

		protected.GET("/autopilot/status", handlers.GetStatus)
		protected.POST("/autopilot/run", handlers.RunAutopilot)
		protected.GET("/autopilot/cycles", handlers.GetCycles)
		protected.GET("/autopilot/buffer", handlers.GetBuffer)
		protected.POST("/autopilot/buffer/action", handlers.BufferAction)
		protected.POST("/autopilot/items/:id/retry", handlers.RetryItem)

		protected.POST("/items", handlers.CreateItem)
		protected.GET("/items/:id", handlers.GetItem)
	}

	// Service-to-service surface, token-authenticated
	if serviceToken != "" {
		internal := router.Group("/internal")
		internal.Use(auth.ServiceAuthMiddleware(serviceToken))
		internal.GET("/items/due", handlers.GetDueItems)
	}

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("autopilot", "18010")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
