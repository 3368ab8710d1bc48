package market

import (
	"math/rand"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/crypto-sim-api/internal/config"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/ksred/crypto-sim-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote generation bounds. Prices move up to 5% around the base price per
// observation, the 24h change figure stays within 10%.
const (
	priceVolatility = 0.05
	maxChange24h    = 10.0
)

// Service is the mock price oracle. It produces quotes with bounded
// random volatility around each asset's configured base price and keeps
// a persisted snapshot of the latest observation per asset.
type Service struct {
	db     *Database
	assets map[string]config.Asset
	// symbols preserves the configured asset order for price listings
	symbols []string
}

// NewService creates a price oracle for the given asset table.
func NewService(gormDB *gorm.DB, assets []config.Asset) *Service {
	bySymbol := make(map[string]config.Asset, len(assets))
	symbols := make([]string, 0, len(assets))
	for _, asset := range assets {
		symbol := strings.ToLower(asset.Symbol)
		bySymbol[symbol] = asset
		symbols = append(symbols, symbol)
	}

	return &Service{
		db:      NewDatabase(gormDB),
		assets:  bySymbol,
		symbols: symbols,
	}
}

// Quote returns the current quote for a symbol, or nil if the symbol is
// not a configured asset. Every produced quote also refreshes the
// persisted snapshot for the asset.
func (s *Service) Quote(symbol string) (*types.Quote, error) {
	asset, ok := s.assets[strings.ToLower(symbol)]
	if !ok {
		return nil, nil
	}

	quote := s.generateQuote(asset)

	if err := s.db.UpsertSnapshot(quote); err != nil {
		log.Error().
			Err(err).
			Str("symbol", quote.Symbol).
			Msg("failed to persist market snapshot")
		return nil, err
	}

	return quote, nil
}

// CurrentPrices returns a quote for every configured asset, keyed by
// symbol.
func (s *Service) CurrentPrices() (map[string]*types.Quote, error) {
	prices := make(map[string]*types.Quote, len(s.symbols))
	for _, symbol := range s.symbols {
		quote, err := s.Quote(symbol)
		if err != nil {
			return nil, err
		}
		prices[symbol] = quote
	}
	return prices, nil
}

// ListAssets returns the persisted market snapshots.
func (s *Service) ListAssets() ([]types.Cryptocurrency, error) {
	return s.db.GetSnapshots()
}

// generateQuote draws a price around the asset's base price with bounded
// volatility and a simulated 24h change figure.
func (s *Service) generateQuote(asset config.Asset) *types.Quote {
	volatility := (rand.Float64() - 0.5) * 2 * priceVolatility
	price := asset.BasePrice.
		Mul(decimal.NewFromFloat(1 + volatility)).
		Round(2)

	change24h := decimal.NewFromFloat((rand.Float64() - 0.5) * 2 * maxChange24h).Round(2)

	return &types.Quote{
		Symbol:    strings.ToLower(asset.Symbol),
		Name:      asset.Name,
		PriceUSD:  price,
		Change24h: change24h,
	}
}

// GinHandlers contains HTTP handlers for market data endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for market endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetPricesHandler handles GET requests for current prices of all
// configured assets
func (h *GinHandlers) GetPricesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		prices, err := h.service.CurrentPrices()
		response.Handle(c, prices, err)
	}
}

// GetPriceHandler handles GET requests for a single symbol's quote
// URL parameter: symbol
func (h *GinHandlers) GetPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := h.service.Quote(c.Param("symbol"))
		if err == nil && quote == nil {
			response.NotFound(c, "Unknown symbol")
			return
		}
		response.Handle(c, quote, err)
	}
}

// ListAssetsHandler handles GET requests for the persisted asset
// snapshots
func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.service.ListAssets()
		response.Handle(c, assets, err)
	}
}

// snapshotFromQuote builds the persisted snapshot row for a quote.
// LastUpdated records the observation time.
func snapshotFromQuote(quote *types.Quote) *types.Cryptocurrency {
	return &types.Cryptocurrency{
		Symbol:           quote.Symbol,
		Name:             quote.Name,
		CurrentPrice:     quote.PriceUSD,
		ChangePercent24h: quote.Change24h,
		LastUpdated:      time.Now(),
	}
}
