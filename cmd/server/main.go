package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/crypto-sim-api/internal/auth"
	"github.com/ksred/crypto-sim-api/internal/config"
	"github.com/ksred/crypto-sim-api/internal/dashboard"
	"github.com/ksred/crypto-sim-api/internal/database"
	"github.com/ksred/crypto-sim-api/internal/market"
	"github.com/ksred/crypto-sim-api/internal/portfolio"
	"github.com/ksred/crypto-sim-api/internal/trading"
	"github.com/ksred/crypto-sim-api/pkg/middleware"

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

// main initializes and runs the trading API server with graceful shutdown
// support. It wires the price oracle, the execution engine and the
// reconciliation engine together with their API routes.
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	marketService := market.NewService(db, cfg.Assets)
	marketHandlers := market.NewGinHandlers(marketService)

	portfolioService := portfolio.NewService(db, marketService)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	tradingService := trading.NewService(db, portfolioService, trading.NewRandomOutcomes(), cfg.ExecutionSuccessRate)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	dashboardService := dashboard.NewService(marketService, portfolioService, tradingService)
	dashboardHandlers := dashboard.NewGinHandlers(dashboardService)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, marketHandlers, tradingHandlers, portfolioHandlers, dashboardHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
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

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Market routes: Public rate-limited price data
// - Trade and portfolio routes: Protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	marketHandlers *market.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	portfolioHandlers *portfolio.GinHandlers,
	dashboardHandlers *dashboard.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Market data routes (public)
		marketGroup := v1.Group("/market")
		{
			marketGroup.GET("/prices", marketHandlers.GetPricesHandler())
			marketGroup.GET("/price/:symbol", marketHandlers.GetPriceHandler())
			marketGroup.GET("/assets", marketHandlers.ListAssetsHandler())
		}

		// Trade routes
		trades := v1.Group("/trades")
		trades.Use(middleware.JWTAuth(jwtSecret))
		{
			trades.POST("", tradingHandlers.SubmitOrderHandler())
			trades.GET("", tradingHandlers.GetAllTradesHandler())
			trades.GET("/recent", tradingHandlers.GetRecentTradesHandler())
			trades.GET("/:trade_id", tradingHandlers.GetTradeHandler())
			trades.GET("/symbol/:symbol", tradingHandlers.GetTradesBySymbolHandler())
			trades.PUT("/:trade_id/cancel", tradingHandlers.CancelTradeHandler())
		}

		// Portfolio routes
		portfolioGroup := v1.Group("/portfolio")
		portfolioGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolioGroup.GET("", portfolioHandlers.GetPortfolioHandler())
			portfolioGroup.GET("/total-value", portfolioHandlers.GetTotalValueHandler())
			portfolioGroup.GET("/:symbol", portfolioHandlers.GetHoldingHandler())
		}

		// Dashboard routes
		dashboardGroup := v1.Group("/dashboard")
		dashboardGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			dashboardGroup.GET("/overview", dashboardHandlers.GetOverviewHandler())
		}
	}
}
