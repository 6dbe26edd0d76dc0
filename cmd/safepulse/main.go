package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"safepulse/internal/alert"
	"safepulse/internal/api"
	"safepulse/internal/channels"
	"safepulse/internal/config"
	"safepulse/internal/db"
	"safepulse/internal/directory"
	"safepulse/internal/kafka"
	"safepulse/internal/logging"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Build notification channels
	reg, err := channels.Build(cfg)
	if err != nil {
		logger.Errorf("Failed to build channels: %v", err)
		log.Fatalf("Channel setup failed: %v", err)
	}

	// Initialize the coordinator
	dir := directory.New(dbConn, cfg.Authority.Name, cfg.Authority.Endpoint)
	coord := alert.New(dbConn, dir, reg, dbConn, logger, alert.Config{
		MaxAttempts:    cfg.Engine.MaxAttempts,
		BaseRetryDelay: cfg.Engine.BaseRetryDelay,
		MaxRetryDelay:  cfg.Engine.MaxRetryDelay,
		SendTimeout:    cfg.Engine.SendTimeout,
		AlertLifetime:  cfg.Engine.AlertLifetime,
		SweepInterval:  cfg.Engine.SweepInterval,
		QueueSize:      cfg.Engine.QueueSize,
		MaxWorkers:     cfg.Engine.MaxWorkers,
	})

	hub := api.NewLiveHub(logger)
	coord.SetLive(hub)
	coord.Start()

	// Start Kafka consumers
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	consumer := kafka.NewConsumer(cfg, coord, dbConn, logger)
	consumer.Start(ctx, &wg)

	// Start API server
	handler := api.NewHandler(coord, dbConn, hub, logger)
	router := api.NewRouter(logger, cfg, handler)
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	cancel()
	consumer.Close()
	wg.Wait()
	coord.Stop()
	logger.Infof("Service stopped")
}
