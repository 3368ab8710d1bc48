package trading

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/ksred/crypto-sim-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Reconciler applies a completed trade to the holdings ledger.
type Reconciler interface {
	Reconcile(trade *types.Trade) error
}

// Service is the trade execution engine. It owns the trade lifecycle:
// orders become PENDING trades, a single probabilistic draw decides the
// outcome, and successful executions are handed to the reconciler before
// the terminal state is persisted.
type Service struct {
	db          *Database
	ledger      Reconciler
	outcomes    OutcomeSource
	successRate float64
}

// NewService creates a trade execution engine.
//
// successRate is the probability in [0,1] that a submitted order
// executes; outcomes supplies the uniform draw so tests can force either
// result.
func NewService(gormDB *gorm.DB, ledger Reconciler, outcomes OutcomeSource, successRate float64) *Service {
	return &Service{
		db:          NewDatabase(gormDB),
		ledger:      ledger,
		outcomes:    outcomes,
		successRate: successRate,
	}
}

// SubmitOrder validates an order, persists it as a PENDING trade and
// resolves the execution simulation synchronously. The caller receives
// the trade only after the outcome is decided and, on success, the
// ledger is reconciled.
func (s *Service) SubmitOrder(req *types.OrderRequest) (*types.Trade, error) {
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	trade := &types.Trade{
		TradeID:    uuid.New().String(),
		Symbol:     strings.ToLower(req.Symbol),
		Side:       req.Side,
		Amount:     req.Amount,
		Price:      req.Price,
		TotalValue: req.Amount.Mul(req.Price),
		Status:     types.StatusPending,
		CreatedAt:  time.Now(),
	}

	if err := s.db.CreateTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to persist trade: %w", err)
	}

	if err := s.executeTrade(trade); err != nil {
		return nil, err
	}

	return trade, nil
}

// executeTrade draws the execution outcome and drives the trade to its
// terminal state. The updated trade is persisted only after
// reconciliation resolves, so a COMPLETED trade is never left without a
// matching ledger write: if reconciliation fails, the trade is persisted
// FAILED and the inconsistency logged.
func (s *Service) executeTrade(trade *types.Trade) error {
	logger := log.With().
		Str("trade_id", trade.TradeID).
		Str("symbol", trade.Symbol).
		Str("side", trade.Side).
		Str("service", "trading").
		Logger()

	draw := s.outcomes.Draw()

	if draw < s.successRate {
		now := time.Now()
		trade.Status = types.StatusCompleted
		trade.ExecutedAt = &now

		if err := s.ledger.Reconcile(trade); err != nil {
			logger.Error().
				Err(err).
				Msg("reconciliation failed, downgrading trade to FAILED")
			trade.Status = types.StatusFailed
			trade.ExecutedAt = nil
		} else {
			logger.Info().
				Str("total_value", trade.TotalValue.String()).
				Msg("trade executed")
		}
	} else {
		trade.Status = types.StatusFailed
		logger.Info().
			Float64("draw", draw).
			Float64("success_rate", s.successRate).
			Msg("trade execution failed")
	}

	if err := s.db.UpdateTrade(trade); err != nil {
		return fmt.Errorf("failed to persist trade outcome: %w", err)
	}
	return nil
}

// CancelTrade cancels a PENDING trade. Unknown IDs return
// ErrTradeNotFound; trades already in a terminal state return
// ErrTradeNotCancellable, which the API surfaces exactly like not-found.
// Cancellation never touches the ledger.
func (s *Service) CancelTrade(tradeID string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, types.ErrTradeNotFound
	}

	if trade.Status != types.StatusPending {
		return nil, types.ErrTradeNotCancellable
	}

	trade.Status = types.StatusCancelled
	if err := s.db.UpdateTrade(trade); err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}

	log.Info().
		Str("trade_id", trade.TradeID).
		Str("symbol", trade.Symbol).
		Msg("trade cancelled")
	return trade, nil
}

// GetAllTrades returns every trade, most recent first.
func (s *Service) GetAllTrades() ([]types.Trade, error) {
	return s.db.GetAllDesc()
}

// GetTradesBySymbol returns the trades for a symbol, most recent first.
func (s *Service) GetTradesBySymbol(symbol string) ([]types.Trade, error) {
	return s.db.GetBySymbolDesc(strings.ToLower(symbol))
}

// GetTradeByID returns a single trade, or nil when unknown.
func (s *Service) GetTradeByID(tradeID string) (*types.Trade, error) {
	return s.db.GetTrade(tradeID)
}

// GetRecentTrades returns up to limit trades, most recent first. A limit
// of zero or less yields an empty list.
func (s *Service) GetRecentTrades(limit int) ([]types.Trade, error) {
	if limit <= 0 {
		return []types.Trade{}, nil
	}
	return s.db.GetRecentDesc(limit)
}

// validateOrder rejects malformed orders before anything is persisted.
func validateOrder(req *types.OrderRequest) error {
	if strings.TrimSpace(req.Symbol) == "" {
		return &types.ValidationError{Field: "symbol", Message: "must not be empty"}
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return &types.ValidationError{Field: "side", Message: "must be BUY or SELL"}
	}
	if req.Amount.Sign() <= 0 {
		return &types.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if req.Price.Sign() <= 0 {
		return &types.ValidationError{Field: "price", Message: "must be positive"}
	}
	return nil
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SubmitOrderHandler handles POST requests to submit new orders
// Requires a valid JWT token
// Request body should contain the order details
func (h *GinHandlers) SubmitOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.SubmitOrder(&req)
		response.Handle(c, trade, err)
	}
}

// GetAllTradesHandler handles GET requests for the full trade history
func (h *GinHandlers) GetAllTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.GetAllTrades()
		response.Handle(c, trades, err)
	}
}

// GetRecentTradesHandler handles GET requests for the most recent trades
// Query parameter: limit (default 10)
func (h *GinHandlers) GetRecentTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 10
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				response.BadRequest(c, "limit must be an integer")
				return
			}
			limit = parsed
		}

		trades, err := h.service.GetRecentTrades(limit)
		response.Handle(c, trades, err)
	}
}

// GetTradeHandler handles GET requests for a single trade
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.GetTradeByID(c.Param("trade_id"))
		if err == nil && trade == nil {
			response.NotFound(c, "Trade not found")
			return
		}
		response.Handle(c, trade, err)
	}
}

// GetTradesBySymbolHandler handles GET requests for a symbol's trades
// URL parameter: symbol
func (h *GinHandlers) GetTradesBySymbolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trades, err := h.service.GetTradesBySymbol(c.Param("symbol"))
		response.Handle(c, trades, err)
	}
}

// CancelTradeHandler handles PUT requests to cancel pending trades
// URL parameter: trade_id
func (h *GinHandlers) CancelTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		trade, err := h.service.CancelTrade(c.Param("trade_id"))
		response.Handle(c, trade, err)
	}
}
