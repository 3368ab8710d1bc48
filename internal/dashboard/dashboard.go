package dashboard

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/crypto-sim-api/internal/market"
	"github.com/ksred/crypto-sim-api/internal/portfolio"
	"github.com/ksred/crypto-sim-api/internal/trading"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/ksred/crypto-sim-api/pkg/response"
	"github.com/shopspring/decimal"
)

// recentTradeCount is how many trades the overview shows.
const recentTradeCount = 5

// Overview is the aggregate read model for the dashboard endpoint.
type Overview struct {
	Prices              map[string]*types.Quote `json:"prices"`
	Portfolio           []types.Holding         `json:"portfolio"`
	TotalPortfolioValue decimal.Decimal         `json:"total_portfolio_value"`
	RecentTrades        []types.Trade           `json:"recent_trades"`
}

// Service composes market, portfolio and trading reads into a single
// overview. It is read-only.
type Service struct {
	market    *market.Service
	portfolio *portfolio.Service
	trading   *trading.Service
}

// NewService creates a dashboard service over the given services.
func NewService(market *market.Service, portfolio *portfolio.Service, trading *trading.Service) *Service {
	return &Service{
		market:    market,
		portfolio: portfolio,
		trading:   trading,
	}
}

// GetOverview assembles current prices, holdings, total value and the
// most recent trades.
func (s *Service) GetOverview() (*Overview, error) {
	prices, err := s.market.CurrentPrices()
	if err != nil {
		return nil, err
	}

	holdings, err := s.portfolio.GetPortfolio()
	if err != nil {
		return nil, err
	}

	total, err := s.portfolio.GetTotalValue()
	if err != nil {
		return nil, err
	}

	recent, err := s.trading.GetRecentTrades(recentTradeCount)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Prices:              prices,
		Portfolio:           holdings,
		TotalPortfolioValue: total,
		RecentTrades:        recent,
	}, nil
}

// GinHandlers contains HTTP handlers for dashboard endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for dashboard
// endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetOverviewHandler handles GET requests for the dashboard overview
func (h *GinHandlers) GetOverviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, err := h.service.GetOverview()
		response.Handle(c, overview, err)
	}
}
