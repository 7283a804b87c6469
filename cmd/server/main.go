package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/config"
	"github.com/smarttransit/rail-ticket-engine/internal/database"
	"github.com/smarttransit/rail-ticket-engine/internal/handlers"
	"github.com/smarttransit/rail-ticket-engine/internal/middleware"
	"github.com/smarttransit/rail-ticket-engine/internal/services"
	"github.com/smarttransit/rail-ticket-engine/pkg/events"
	"github.com/smarttransit/rail-ticket-engine/pkg/sessions"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting rail ticket engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	engineCfg := services.DefaultEngineConfig()
	engineCfg.Accounts = services.AccountConfig{
		BcryptCost:         cfg.Security.BcryptCost,
		BootstrapPrivilege: cfg.Engine.BootstrapPrivilege,
	}
	engineCfg.Transfer = services.TransferPolicy{
		OnePerInterchange: cfg.Engine.TransferOnePerInterchange,
		Limit:             cfg.Engine.TransferLimit,
	}

	// Persistence is optional; without DATABASE_URL the engine runs in memory
	var db *database.PostgresDB
	if cfg.Database.URL != "" {
		db, err = database.NewConnection(cfg.Database, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		logger.Info("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				logger.Fatalf("Failed to migrate database: %v", err)
			}
		}
		engineCfg.Store = database.NewEngineStore(db, logger)
	} else {
		logger.Warn("DATABASE_URL not set, engine state will not survive a restart")
	}

	if cfg.Sessions.Backend == "redis" {
		opts := sessions.RedisOptions{
			Addr:     cfg.Sessions.RedisAddr,
			Password: cfg.Sessions.RedisPassword,
			DB:       cfg.Sessions.RedisDB,
			Prefix:   cfg.Sessions.Prefix,
			TTL:      cfg.Sessions.TTL,
		}
		client, err := sessions.NewRedisClient(ctx, opts)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		engineCfg.Sessions = sessions.NewRedis(client, opts)
		logger.WithField("addr", cfg.Sessions.RedisAddr).Info("Using Redis session table")
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher = events.NewPublisher(events.Config{
			URL:    cfg.Events.URL,
			Queue:  cfg.Events.Queue,
			Buffer: cfg.Events.Buffer,
		}, logger)
		go publisher.Run(ctx)
		engineCfg.Notifier = publisher
		logger.WithField("queue", cfg.Events.Queue).Info("Publishing order events")
	}

	engine := services.NewEngine(engineCfg, logger)
	if err := engine.Restore(ctx); err != nil {
		logger.Fatalf("Failed to restore engine state: %v", err)
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:  cfg.CORS.AllowedOrigins,
		AllowMethods:  cfg.CORS.AllowedMethods,
		AllowHeaders:  cfg.CORS.AllowedHeaders,
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	adminHandler := handlers.NewAdminHandler(engine, pinger, version, logger)

	// Health check endpoint
	router.GET("/health", adminHandler.Health)

	// API v1 routes
	v1 := router.Group("/api/v1")
	handlers.NewUserHandler(engine, cfg.Engine.DefaultPrivilege, logger).RegisterRoutes(v1)
	handlers.NewTrainHandler(engine, logger).RegisterRoutes(v1)
	handlers.NewOrderHandler(engine, logger).RegisterRoutes(v1)
	adminHandler.RegisterRoutes(v1)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Flush buffered order events after the last request has finished
	if publisher != nil {
		publisher.Close()
		if n := publisher.Dropped(); n > 0 {
			logger.WithField("dropped", n).Warn("Order events were dropped during this run")
		}
	}

	logger.Info("Server exited successfully")
}
