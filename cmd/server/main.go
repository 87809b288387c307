package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/brokerpilot/api/internal/auth"
	"github.com/brokerpilot/api/internal/broker"
	"github.com/brokerpilot/api/internal/config"
	"github.com/brokerpilot/api/internal/database"
	"github.com/brokerpilot/api/internal/expiration"
	"github.com/brokerpilot/api/internal/jobs"
	"github.com/brokerpilot/api/internal/ledger"
	"github.com/brokerpilot/api/internal/orders"
	"github.com/brokerpilot/api/internal/reconcile"
	"github.com/brokerpilot/api/internal/refresh"
	"github.com/brokerpilot/api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the order automation server with graceful
// shutdown support.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && os.Getenv("DEBUG") != "true" {
		zerolog.SetGlobalLevel(level)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Storage.SQLitePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}
	ldgr := ledger.New(db)

	// Build the broker registry from configuration
	registry, err := broker.NewRegistry(cfg.Brokers)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build broker registry")
	}

	calendar, err := expiration.New()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load trading calendar")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret)
	authService.RegisterAPICredentials(cfg.Auth.APIKey, cfg.Auth.APISecret)
	authHandlers := auth.NewGinHandlers(authService)

	reconciler := reconcile.NewService(ldgr, registry)
	orderService := orders.NewService(ldgr, registry, reconciler)
	orderHandlers := orders.NewGinHandlers(orderService)

	conductor := refresh.NewConductor(ldgr, registry, cfg.Refresh.StaleAfter())
	jobService := jobs.NewService(conductor, orderService, reconciler, calendar, cfg.Refresh.Throttle())
	jobHandlers := jobs.NewGinHandlers(jobService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.Auth.JWTSecret, authHandlers, orderHandlers, jobHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
// - Auth routes: public token issuance
// - Order routes: order management, protected by JWT authentication
// - Internal routes: scheduler triggers, protected by internal auth
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	jobHandlers *jobs.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order management routes
		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.GET("", orderHandlers.ListOrdersHandler())
			ordersGroup.POST("", orderHandlers.CreateOrderHandler())
			ordersGroup.DELETE("/executed", orderHandlers.DeleteExecutedHandler())
			ordersGroup.PUT("/:id", orderHandlers.UpdateOrderHandler())
			ordersGroup.DELETE("/:id", orderHandlers.DeleteOrderHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/trigger", jobHandlers.TriggerHandler())
		}
	}
}
