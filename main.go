// Package main provides the main entry point for the EuroBank payment gateway
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Misty-clouds/eurobankv2/app/handlers"
	"github.com/Misty-clouds/eurobankv2/app/router"
	"github.com/Misty-clouds/eurobankv2/app/scheduler"
	"github.com/Misty-clouds/eurobankv2/app/services"
	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"
	"github.com/Misty-clouds/eurobankv2/config"
	"github.com/Misty-clouds/eurobankv2/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting eurobankv2 payment gateway...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

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

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
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

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.PingPeriod)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	depositRepo := repository.NewDepositRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	ledgerRepo := repository.NewWithdrawalLedgerRepository(db)
	verificationRepo := repository.NewVerificationRequestRepository(db)
	batchRepo := repository.NewPayoutBatchRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	txManager := repository.NewTxManager(db)

	// Initialize processor client and supporting services
	processor := services.NewNowPaymentsClient(
		cfg.Processor.BaseURL,
		cfg.Processor.APIKey,
		cfg.Processor.Email,
		cfg.Processor.Password,
		cfg.Processor.CallbackURL,
		cfg.Processor.Timeout,
	)
	tokens := services.NewTokenCache(processor)

	totp, err := services.NewTOTPService(cfg.Security.TOTPSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TOTP service: %w", err)
	}

	// Initialize business flows
	depositFlow := businessflow.NewDepositFlow(
		depositRepo, userRepo, auditRepo, processor, txManager, rc, businessflow.DefaultProfitPolicy,
	)
	withdrawalFlow := businessflow.NewWithdrawalFlow(
		withdrawalRepo, ledgerRepo, userRepo, auditRepo, processor, tokens, txManager,
	)
	webhookFlow := businessflow.NewWebhookFlow(
		depositFlow, withdrawalFlow, auditRepo, cfg.Processor.IPNSecret,
	)
	verificationFlow := businessflow.NewVerificationFlow(
		verificationRepo, auditRepo, totp,
	)
	dispatcher := businessflow.NewPayoutDispatcher(
		withdrawalRepo, batchRepo, settingsRepo, verificationRepo, auditRepo,
		withdrawalFlow, processor, tokens, services.DefaultBackoffPolicy(),
	)

	// Initialize HTTP handlers
	h := router.Handlers{
		Deposit:      handlers.NewDepositHandler(depositFlow),
		Withdrawal:   handlers.NewWithdrawalHandler(withdrawalFlow),
		Webhook:      handlers.NewWebhookHandler(webhookFlow),
		Verification: handlers.NewVerificationHandler(verificationFlow, totp),
		Cron:         handlers.NewCronHandler(dispatcher, settingsRepo),
	}

	// Initialize router
	r := router.NewFiberRouter(h, cfg.Security.AdminAPIKey, cfg.Security.CronAPIKey)

	// Start the payout scheduler
	if cfg.Payouts.SchedulerEnabled {
		sched := scheduler.NewPayoutScheduler(dispatcher, cfg.Payouts.SchedulerInterval)
		stop := sched.Start(context.Background())
		stopFuncs = append(stopFuncs, stop)
		log.Printf("Payout scheduler started with interval %s", cfg.Payouts.SchedulerInterval)
	}

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
