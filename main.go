// Package main provides the main entry point for the cost model service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/werkpilot/cost-model-service/app/handlers"
	"github.com/werkpilot/cost-model-service/app/router"
	"github.com/werkpilot/cost-model-service/app/scheduler"
	"github.com/werkpilot/cost-model-service/app/services"
	businessflow "github.com/werkpilot/cost-model-service/business_flow"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting cost model service...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Route the standard logger through the configured sinks
	setupAppLogger(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupAppLogger points the standard logger at stdout, a rotated file, or both
func setupAppLogger(cfg config.LoggingConfig) {
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	switch cfg.Output {
	case "file":
		log.SetOutput(rotated)
	default: // both
		log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// migrateDatabase creates or updates the schema for the service's models
func migrateDatabase(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Article{},
		&models.Index{},
		&models.CostModel{},
		&models.Order{},
	); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	log.Println("Database schema migrated")
	return nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := migrateDatabase(db); err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	articleRepo := repository.NewArticleRepository(db)
	indexRepo := repository.NewIndexRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	costModelRepo := repository.NewCostModelRepository(db)

	// Initialize external clients
	appLogger := log.Default()
	openAIClient := services.NewOpenAIClient(cfg.OpenAI, cfg.Processing.CanonicalIndexNames)
	weaviateClient := services.NewWeaviateClient(cfg.Weaviate, cfg.OpenAI.APIKey, appLogger)

	// Initialize the background processing pipeline
	processor := services.NewArticleProcessor(
		articleRepo,
		indexRepo,
		costModelRepo,
		orderRepo,
		openAIClient,
		weaviateClient,
		db,
		rc,
		cfg.Cache.RedisPrefix,
		cfg.Processing,
		appLogger,
	)

	// Initialize flows
	articleFlow := businessflow.NewArticleFlow(articleRepo, db)
	analyzeFlow := businessflow.NewAnalyzeFlow(articleRepo, processor, cfg.OpenAI, db, appLogger)
	costingFlow := businessflow.NewCostingFlow(
		articleRepo,
		indexRepo,
		costModelRepo,
		orderRepo,
		cfg.Processing,
		&cfg.Cache,
		rc,
	)
	indexFlow := businessflow.NewIndexFlow(indexRepo, db)
	orderFlow := businessflow.NewOrderFlow(orderRepo, articleRepo, db, &cfg.Cache, rc)
	costModelFlow := businessflow.NewCostModelFlow(costModelRepo, articleRepo, indexRepo, &cfg.Cache, rc)
	estimateFlow := businessflow.NewEstimateFlow(articleRepo, costModelRepo, openAIClient, cfg.OpenAI)
	ingestFlow := businessflow.NewIngestFlow(indexRepo, orderRepo, articleRepo, db, &cfg.Cache, rc)

	// Initialize handlers
	articleHandler := handlers.NewArticleHandler(articleFlow)
	analyzeHandler := handlers.NewAnalyzeHandler(analyzeFlow)
	costingHandler := handlers.NewCostingHandler(costingFlow)
	indexHandler := handlers.NewIndexHandler(indexFlow)
	orderHandler := handlers.NewOrderHandler(orderFlow)
	costModelHandler := handlers.NewCostModelHandler(costModelFlow)
	estimateHandler := handlers.NewEstimateHandler(estimateFlow)
	ingestHandler := handlers.NewIngestHandler(ingestFlow)

	// Initialize router
	appRouter := router.NewFiberRouter(
		articleHandler,
		analyzeHandler,
		costingHandler,
		indexHandler,
		orderHandler,
		costModelHandler,
		estimateHandler,
		ingestHandler,
	)

	// Start the processing watchdog
	if cfg.Processing.Enabled {
		watchdog := scheduler.NewProcessingWatchdog(articleRepo, cfg.Processing)
		stopWatchdog := watchdog.Start(context.Background())
		stopFuncs = append(stopFuncs, stopWatchdog)
	}

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
