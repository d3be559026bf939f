// Package main provides the main entry point for the ZapSender campaign service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/zapsender/zapsender-backend/app/handlers"
	"github.com/zapsender/zapsender-backend/app/middleware"
	"github.com/zapsender/zapsender-backend/app/router"
	"github.com/zapsender/zapsender-backend/app/scheduler"
	"github.com/zapsender/zapsender-backend/app/services"
	businessflow "github.com/zapsender/zapsender-backend/business_flow"
	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/repository"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting ZapSender application...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
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

// startCacheHealthMonitor periodically pings Redis to detect connectivity
// issues. The returned cancel function stops the monitor.
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

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.PingInterval))
	}

	// Repositories
	scheduleRepo := repository.NewScheduleRepository(db)
	batchRepo := repository.NewBatchScheduleRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	contactRepo := repository.NewContactRepository(db)
	sessionRepo := repository.NewWhatsAppSessionRepository(db)
	templateRepo := repository.NewMessageTemplateRepository(db)

	// External services
	schedulerClient := services.NewSchedulerClient(&cfg.Scheduler)
	gatewayClient := services.NewWhatsAppClient(&cfg.Gateway)
	notificationService := services.NewNotificationService(&cfg.Notify)

	tokenService, err := services.NewTokenService(&cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Business flows
	contactResolver := businessflow.NewContactResolver(contactRepo, rc, &cfg.Cache)

	materializer := businessflow.NewMessageMaterializer(
		messageRepo,
		sessionRepo,
		templateRepo,
		contactResolver,
		schedulerClient,
		notificationService,
		gatewayClient,
		&cfg.Campaign,
		&cfg.Gateway,
	)

	coordinator := businessflow.NewBatchCoordinator(
		batchRepo,
		scheduleRepo,
		contactRepo,
		materializer,
		schedulerClient,
		&cfg.Campaign,
		&cfg.Scheduler,
	)

	canceller := businessflow.NewCancellationCoordinator(
		scheduleRepo,
		batchRepo,
		messageRepo,
		schedulerClient,
		notificationService,
		&cfg.Notify,
	)

	campaignFlow := businessflow.NewCampaignFlow(
		scheduleRepo,
		batchRepo,
		messageRepo,
		sessionRepo,
		templateRepo,
		coordinator,
		canceller,
		notificationService,
	)

	// Handlers and middleware
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	webhookHandler := handlers.NewWebhookHandler(materializer, campaignFlow)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	callbackAuth := middleware.NewCallbackAuth(cfg.Scheduler.BearerToken)

	appRouter := router.NewFiberRouter(cfg, campaignHandler, webhookHandler, authMiddleware, callbackAuth)

	// Background sweeper for messages the scheduler never confirmed
	sweeper := scheduler.NewMessageSweeper(messageRepo, scheduleRepo, cfg.Campaign, cfg.Logging)
	stopFuncs = append(stopFuncs, sweeper.Start(context.Background()))

	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
