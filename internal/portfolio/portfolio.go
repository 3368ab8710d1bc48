package portfolio

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/ksred/crypto-sim-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// averagePricePrecision is the fixed fractional precision of the cost
// basis, matching the ledger schema. Division rounds half up.
const averagePricePrecision = 8

// PriceSource supplies current market quotes for holdings valuation.
// A nil quote means the source has no price for the symbol.
type PriceSource interface {
	Quote(symbol string) (*types.Quote, error)
}

// Service is the portfolio reconciliation engine: the single writer of
// the holdings ledger. It applies completed trades using weighted-average
// cost accounting and values holdings against the price source on every
// read.
type Service struct {
	db     *Database
	prices PriceSource
	locks  *symbolLocks
}

// NewService creates a reconciliation engine backed by the given database
// and price source.
func NewService(gormDB *gorm.DB, prices PriceSource) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		prices: prices,
		locks:  newSymbolLocks(),
	}
}

// Reconcile applies a completed trade to the holdings ledger.
//
// Reconciliation for a given symbol is serialized: two concurrent trades
// on the same symbol never interleave their read-modify-write of the
// holding. Distinct symbols proceed in parallel.
func (s *Service) Reconcile(trade *types.Trade) error {
	logger := log.With().
		Str("trade_id", trade.TradeID).
		Str("symbol", trade.Symbol).
		Str("side", trade.Side).
		Str("service", "portfolio").
		Logger()

	lock := s.locks.forSymbol(trade.Symbol)
	lock.Lock()
	defer lock.Unlock()

	holding, err := s.db.GetBySymbol(trade.Symbol)
	if err != nil {
		return fmt.Errorf("failed to load holding: %w", err)
	}

	if holding == nil {
		if trade.Side == types.SideSell {
			// Lenient policy: selling an asset that is not held leaves
			// the ledger untouched and the trade still completes.
			logger.Warn().
				Str("policy", "sell_without_holding").
				Msg("sell against unknown holding ignored")
			return nil
		}
		return s.createHolding(trade, logger)
	}

	if trade.Side == types.SideBuy {
		return s.applyBuy(holding, trade, logger)
	}
	return s.applySell(holding, trade, logger)
}

// createHolding opens a fresh position from the first BUY of a symbol.
func (s *Service) createHolding(trade *types.Trade, logger zerolog.Logger) error {
	holding := &types.Holding{
		Symbol:       trade.Symbol,
		Quantity:     trade.Amount,
		AveragePrice: trade.Price,
		LastUpdated:  time.Now(),
	}
	holding.CurrentValue = s.valueOf(holding)

	if err := s.db.Upsert(holding); err != nil {
		return fmt.Errorf("failed to create holding: %w", err)
	}

	logger.Info().
		Str("quantity", holding.Quantity.String()).
		Str("average_price", holding.AveragePrice.String()).
		Msg("holding created")
	return nil
}

// applyBuy recomputes the cost basis as the quantity-weighted mean of the
// existing position and the newly acquired amount.
func (s *Service) applyBuy(holding *types.Holding, trade *types.Trade, logger zerolog.Logger) error {
	totalCost := holding.Quantity.Mul(holding.AveragePrice).
		Add(trade.Amount.Mul(trade.Price))
	newQuantity := holding.Quantity.Add(trade.Amount)

	holding.Quantity = newQuantity
	holding.AveragePrice = totalCost.DivRound(newQuantity, averagePricePrecision)
	holding.CurrentValue = s.valueOf(holding)
	holding.LastUpdated = time.Now()

	if err := s.db.Upsert(holding); err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	logger.Info().
		Str("quantity", holding.Quantity.String()).
		Str("average_price", holding.AveragePrice.String()).
		Msg("holding increased")
	return nil
}

// applySell reduces the position without touching the cost basis. A sell
// that empties (or over-empties) the position deletes the holding; a
// later BUY starts a fresh cost basis.
func (s *Service) applySell(holding *types.Holding, trade *types.Trade, logger zerolog.Logger) error {
	newQuantity := holding.Quantity.Sub(trade.Amount)

	if newQuantity.Sign() <= 0 {
		if err := s.db.Delete(holding.Symbol); err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
		logger.Info().
			Str("sold", trade.Amount.String()).
			Str("held", holding.Quantity.String()).
			Msg("holding liquidated")
		return nil
	}

	holding.Quantity = newQuantity
	holding.CurrentValue = s.valueOf(holding)
	holding.LastUpdated = time.Now()

	if err := s.db.Upsert(holding); err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}

	logger.Info().
		Str("quantity", holding.Quantity.String()).
		Msg("holding reduced")
	return nil
}

// valueOf derives the current market value of a holding. When the price
// source has no quote, or fails, valuation falls back to the last known
// cost basis so reads and reconciliation never stall on the oracle.
func (s *Service) valueOf(holding *types.Holding) decimal.Decimal {
	quote, err := s.prices.Quote(holding.Symbol)
	if err != nil || quote == nil {
		if err != nil {
			log.Warn().
				Err(err).
				Str("symbol", holding.Symbol).
				Msg("price source unavailable, valuing at cost basis")
		}
		return holding.Quantity.Mul(holding.AveragePrice)
	}
	return holding.Quantity.Mul(quote.PriceUSD)
}

// GetPortfolio returns all holdings with freshly recomputed market
// values.
func (s *Service) GetPortfolio() ([]types.Holding, error) {
	holdings, err := s.db.GetAll()
	if err != nil {
		return nil, err
	}

	for i := range holdings {
		holdings[i].CurrentValue = s.valueOf(&holdings[i])
	}
	return holdings, nil
}

// GetHoldingBySymbol returns the holding for a symbol with a freshly
// recomputed market value, or nil when no position exists.
func (s *Service) GetHoldingBySymbol(symbol string) (*types.Holding, error) {
	holding, err := s.db.GetBySymbol(strings.ToLower(symbol))
	if err != nil || holding == nil {
		return nil, err
	}

	holding.CurrentValue = s.valueOf(holding)
	return holding, nil
}

// GetTotalValue returns the exact decimal sum of every holding's
// recomputed current value. An empty portfolio is worth zero.
func (s *Service) GetTotalValue() (decimal.Decimal, error) {
	holdings, err := s.GetPortfolio()
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, holding := range holdings {
		total = total.Add(holding.CurrentValue)
	}
	return total, nil
}

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for portfolio
// endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetPortfolioHandler handles GET requests for the full holdings list
func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		holdings, err := h.service.GetPortfolio()
		response.Handle(c, holdings, err)
	}
}

// GetTotalValueHandler handles GET requests for the total portfolio value
func (h *GinHandlers) GetTotalValueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		total, err := h.service.GetTotalValue()
		response.Handle(c, total, err)
	}
}

// GetHoldingHandler handles GET requests for a single holding
// URL parameter: symbol
func (h *GinHandlers) GetHoldingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		holding, err := h.service.GetHoldingBySymbol(c.Param("symbol"))
		if err == nil && holding == nil {
			response.NotFound(c, "Holding not found")
			return
		}
		response.Handle(c, holding, err)
	}
}

// symbolLocks hands out one mutex per symbol so reconciliation is a
// per-symbol critical section.
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSymbolLocks() *symbolLocks {
	return &symbolLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *symbolLocks) forSymbol(symbol string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[symbol] = lock
	}
	return lock
}
