package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aiops-sync-queue/internal/config"
	"aiops-sync-queue/internal/handler"
	"aiops-sync-queue/internal/middleware"
	"aiops-sync-queue/internal/model"
	"aiops-sync-queue/internal/repository"
	"aiops-sync-queue/internal/router"
	"aiops-sync-queue/internal/service"

	_ "github.com/go-sql-driver/mysql"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting sync queue API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize the item store based on config
	var itemRepo repository.SyncItemRepository
	switch cfg.QueueDB.Type {
	case "postgres", "postgresql":
		pgRepo, err := repository.NewPostgresSyncItemRepository(cfg.QueueDB.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		itemRepo = pgRepo
		log.Println("PostgreSQL item store initialized")
	case "mysql":
		db, err := sql.Open("mysql", cfg.QueueDB.MySQLDSN())
		if err != nil {
			log.Fatalf("Failed to open MySQL: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to reach MySQL: %v", err)
		}
		mysqlRepo, err := repository.NewMySQLSyncItemRepository(db)
		if err != nil {
			log.Fatalf("Failed to initialize MySQL item store: %v", err)
		}
		itemRepo = mysqlRepo
		log.Println("MySQL item store initialized")
	case "redis":
		redisRepo, err := repository.NewRedisSyncItemRepository(repository.RedisConfig{
			Addr:     cfg.QueueDB.RedisAddress(),
			Password: cfg.QueueDB.RedisPassword,
			DB:       cfg.QueueDB.RedisDB,
		})
		if err != nil {
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		itemRepo = redisRepo
		log.Println("Redis item store initialized")
	case "memory":
		itemRepo = repository.NewMemorySyncItemRepository()
		log.Println("In-memory item store initialized (data will not survive restarts)")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteSyncItemRepository(cfg.QueueDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		itemRepo = sqliteRepo
		log.Println("SQLite item store initialized")
	}
	defer itemRepo.Close()

	// Initialize services
	queueService := service.NewQueueService(itemRepo, service.QueueConfig{
		DefaultMaxAttempts: cfg.Queue.DefaultMaxAttempts,
		DefaultBatchLimit:  cfg.Queue.DefaultBatchLimit,
	})

	// Optional background dispatcher
	var dispatcher *service.Dispatcher
	if cfg.Queue.DispatchEnabled && cfg.Remote.BaseURL != "" {
		remote := service.NewHTTPRemote(cfg.Remote.BaseURL, cfg.Remote.Timeout)
		dispatcher = service.NewDispatcher(queueService, remote.Call, service.DispatcherConfig{
			Interval:    cfg.Queue.DispatchInterval,
			BatchLimit:  cfg.Queue.DefaultBatchLimit,
			Tenants:     cfg.Queue.DispatchTenants,
			CallTimeout: cfg.Remote.Timeout,
		})
		dispatcher.Start()
	} else {
		log.Println("Dispatcher disabled; queue is drive-it-yourself via the batch endpoints")
	}

	// Initialize handlers
	storeOK := func() bool {
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := itemRepo.Get(probeCtx, "health", "probe")
		return err == nil || errors.Is(err, model.ErrNotFound)
	}
	healthHandler := handler.New(cfg.App.Version, storeOK)
	queueHandler := handler.NewQueueHandler(queueService)

	// Create auth middleware with injected dependencies (NO GLOBALS!)
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		APIKeys: cfg.App.APIKeys,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		QueueHandler:   queueHandler,
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if dispatcher != nil {
		dispatcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
