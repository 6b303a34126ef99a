package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	internalhttp "github.com/accessdesk/credpool/internal/api/http"
	"github.com/accessdesk/credpool/internal/audit"
	"github.com/accessdesk/credpool/internal/auth"
	"github.com/accessdesk/credpool/internal/db"
	"github.com/accessdesk/credpool/internal/inventory"
	"github.com/accessdesk/credpool/internal/pool"
	"github.com/accessdesk/credpool/internal/secrets"
	"github.com/accessdesk/credpool/internal/users"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Credential Pool Server", "version", AppVersion)

	masterKey, err := secrets.ParseKey(config.Secrets.MasterKey)
	if err != nil {
		slog.Error("Invalid master key", "error", err)
		os.Exit(1)
	}
	if config.Auth.JWTSecret == "" {
		slog.Error("auth.jwt_secret is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Database.MigrateOnStart {
		if err := db.RunMigrations(config.Database.URL, config.Database.Schema); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	dbPool, err := db.InitDB(ctx, config.Database.Config)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	var redisClient *redis.Client
	var notifier *audit.Notifier
	if config.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			slog.Warn("Redis unreachable, audit notifications disabled", "addr", config.Redis.Addr, "error", err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			notifier = audit.NewNotifier(redisClient, config.Redis.Channel)
			slog.Info("Audit notifications enabled", "addr", config.Redis.Addr, "channel", config.Redis.Channel)
		}
		pingCancel()
	}

	cipher := secrets.NewCipher(masterKey)
	recorder := audit.NewRecorder(dbPool, notifier)
	poolService := pool.NewService(pool.NewStore(dbPool), recorder, config.Pool.MaxBatch)
	inventoryService := inventory.NewService(dbPool, cipher, recorder)
	authService := auth.NewService(dbPool, auth.Config{
		JWTSecret:   config.Auth.JWTSecret,
		TokenExpiry: time.Duration(config.Auth.TokenExpiryHours) * time.Hour,
	})
	userService := users.NewService(dbPool)

	services := &internalhttp.Services{
		Auth:      authService,
		Users:     userService,
		Pool:      poolService,
		Inventory: inventoryService,
		Recorder:  recorder,
		Cipher:    cipher,
		DB:        dbPool,
		JWTSecret: config.Auth.JWTSecret,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	internalhttp.SetupRoute(ctx, engine, config.Http, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Wait()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("Redis close error", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}
