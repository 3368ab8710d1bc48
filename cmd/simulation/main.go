package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/crypto-sim-api/internal/auth"
	"github.com/ksred/crypto-sim-api/internal/config"
	"github.com/ksred/crypto-sim-api/internal/dashboard"
	"github.com/ksred/crypto-sim-api/internal/database"
	"github.com/ksred/crypto-sim-api/internal/market"
	"github.com/ksred/crypto-sim-api/internal/portfolio"
	"github.com/ksred/crypto-sim-api/internal/trading"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/ksred/crypto-sim-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"bitcoin", "ethereum", "cardano", "solana"}
	sides   = []string{"BUY", "SELL"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":      {name: "Authentication"},
			"submit":    {name: "Submit Order"},
			"cancel":    {name: "Cancel Trade"},
			"recent":    {name: "Recent Trades"},
			"portfolio": {name: "Get Portfolio"},
			"total":     {name: "Total Value"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// submitOrder submits a new order to the API and returns the resulting trade
func (sc *simulationClient) submitOrder(order *types.OrderRequest) (*types.Trade, error) {
	start := time.Now()
	defer func() {
		sc.stats["submit"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(
		"POST",
		fmt.Sprintf("%s/api/v1/trades", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Submit order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("submit order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool        `json:"success"`
		Data    types.Trade `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.TradeID == "" {
		return nil, fmt.Errorf("no trade ID in response: %s", string(respBody))
	}

	return &result.Data, nil
}

// cancelTrade attempts to cancel a trade. Trades already in a terminal
// state come back as 404, which the simulation counts as expected.
func (sc *simulationClient) cancelTrade(tradeID string) (bool, error) {
	start := time.Now()
	defer func() {
		sc.stats["cancel"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"PUT",
		fmt.Sprintf("%s/api/v1/trades/%s/cancel", sc.baseURL, tradeID),
		nil,
	)
	if err != nil {
		return false, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("cancel trade failed with status %d", resp.StatusCode)
	}
}

// getRecentTrades fetches the most recent trades
func (sc *simulationClient) getRecentTrades(limit int) ([]types.Trade, error) {
	start := time.Now()
	defer func() {
		sc.stats["recent"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/trades/recent?limit=%d", sc.baseURL, limit),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recent trades failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool          `json:"success"`
		Data    []types.Trade `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// getPortfolio fetches the current holdings
func (sc *simulationClient) getPortfolio() ([]types.Holding, error) {
	start := time.Now()
	defer func() {
		sc.stats["portfolio"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/portfolio", sc.baseURL),
		nil,
	)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get portfolio failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool            `json:"success"`
		Data    []types.Holding `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// getTotalValue fetches the total portfolio value
func (sc *simulationClient) getTotalValue() (decimal.Decimal, error) {
	start := time.Now()
	defer func() {
		sc.stats["total"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		"GET",
		fmt.Sprintf("%s/api/v1/portfolio/total-value", sc.baseURL),
		nil,
	)
	if err != nil {
		return decimal.Zero, err
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("total value failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool            `json:"success"`
		Data    decimal.Decimal `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// submitOrders generates and submits random orders to the API
// Runs as a worker goroutine, sending completed trades to tradesChan
func submitOrders(workerID, numOrders int, simClient *simulationClient, tradesChan chan<- *types.Trade) {
	for i := 0; i < numOrders; i++ {
		order := &types.OrderRequest{
			Symbol: symbols[rand.Intn(len(symbols))],
			Side:   sides[rand.Intn(len(sides))],
			Amount: decimal.NewFromFloat(rand.Float64()*2 + 0.01).Round(4),
			Price:  decimal.NewFromFloat(rand.Float64()*50000 + 100).Round(2),
		}

		trade, err := simClient.submitOrder(order)
		if err != nil {
			simClient.stats["submit"].failures++
			log.Error().Err(err).
				Int("worker_id", workerID).
				Str("symbol", order.Symbol).
				Msg("Failed to submit order")
			continue
		}

		tradesChan <- trade
		log.Info().
			Int("worker_id", workerID).
			Str("trade_id", trade.TradeID).
			Str("symbol", trade.Symbol).
			Str("side", trade.Side).
			Str("status", trade.Status).
			Str("amount", trade.Amount.String()).
			Str("price", trade.Price.String()).
			Msg("Order submitted")

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// startServer initializes and starts the trading API server
// Sets up all required services, handlers and routes
func startServer() error {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(cfg.JWTSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	marketService := market.NewService(db, cfg.Assets)
	portfolioService := portfolio.NewService(db, marketService)
	tradingService := trading.NewService(db, portfolioService, trading.NewRandomOutcomes(), cfg.ExecutionSuccessRate)
	dashboardService := dashboard.NewService(marketService, portfolioService, tradingService)

	router := gin.Default()
	setupRoutes(
		router,
		cfg.JWTSecret,
		auth.NewGinHandlers(authService),
		market.NewGinHandlers(marketService),
		trading.NewGinHandlers(tradingService),
		portfolio.NewGinHandlers(portfolioService),
		dashboard.NewGinHandlers(dashboardService),
	)

	return router.Run(":" + cfg.Port)
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
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
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		marketGroup := v1.Group("/market")
		{
			marketGroup.GET("/prices", marketHandlers.GetPricesHandler())
			marketGroup.GET("/price/:symbol", marketHandlers.GetPriceHandler())
			marketGroup.GET("/assets", marketHandlers.ListAssetsHandler())
		}

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

		portfolioGroup := v1.Group("/portfolio")
		portfolioGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			portfolioGroup.GET("", portfolioHandlers.GetPortfolioHandler())
			portfolioGroup.GET("/total-value", portfolioHandlers.GetTotalValueHandler())
			portfolioGroup.GET("/:symbol", portfolioHandlers.GetHoldingHandler())
		}

		dashboardGroup := v1.Group("/dashboard")
		dashboardGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			dashboardGroup.GET("/overview", dashboardHandlers.GetOverviewHandler())
		}
	}
}

// main runs the trading simulation
// It starts a local API server and simulates multiple concurrent trading clients
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	tradesChan := make(chan *types.Trade, targetOrders)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			submitOrders(workerID, targetOrders/numWorkers, simClient, tradesChan)
		}(i)
	}

	wg.Wait()
	close(tradesChan)

	// Collect outcome statistics
	statusCounts := make(map[string]int)
	symbolCounts := make(map[string]int)
	var trades []*types.Trade
	for trade := range tradesChan {
		trades = append(trades, trade)
		statusCounts[trade.Status]++
		symbolCounts[trade.Symbol]++
	}

	log.Info().
		Int("trades_submitted", len(trades)).
		Int("completed", statusCounts[types.StatusCompleted]).
		Int("failed", statusCounts[types.StatusFailed]).
		Msg("All orders submitted")

	// Cancellation attempts against decided trades are expected to 404
	cancelled := 0
	for i, trade := range trades {
		if i%10 != 0 {
			continue
		}
		ok, err := simClient.cancelTrade(trade.TradeID)
		if err != nil {
			simClient.stats["cancel"].failures++
			log.Error().Err(err).Str("trade_id", trade.TradeID).Msg("Cancel request failed")
			continue
		}
		if ok {
			cancelled++
		}
	}
	log.Info().Int("cancelled", cancelled).Msg("Cancellation pass complete")

	recent, err := simClient.getRecentTrades(10)
	if err != nil {
		simClient.stats["recent"].failures++
		log.Error().Err(err).Msg("Failed to fetch recent trades")
	} else {
		log.Info().Int("recent_trades", len(recent)).Msg("Fetched recent trades")
	}

	holdings, err := simClient.getPortfolio()
	if err != nil {
		simClient.stats["portfolio"].failures++
		log.Error().Err(err).Msg("Failed to fetch portfolio")
	} else {
		for _, holding := range holdings {
			log.Info().
				Str("symbol", holding.Symbol).
				Str("quantity", holding.Quantity.String()).
				Str("average_price", holding.AveragePrice.String()).
				Str("current_value", holding.CurrentValue.String()).
				Msg("Holding")
		}
	}

	total, err := simClient.getTotalValue()
	if err != nil {
		simClient.stats["total"].failures++
		log.Error().Err(err).Msg("Failed to fetch total portfolio value")
	} else {
		log.Info().Str("total_value", total.String()).Msg("Total portfolio value")
	}

	// Print symbol distribution
	for symbol, count := range symbolCounts {
		log.Info().Str("symbol", symbol).Int("orders", count).Msg("Symbol distribution")
	}

	simClient.printPerformanceStats()
}
