package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ksred/crypto-sim-api/internal/database"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// stubPrices is a deterministic PriceSource for tests.
type stubPrices struct {
	quotes map[string]decimal.Decimal
	err    error
}

func (s *stubPrices) Quote(symbol string) (*types.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	price, ok := s.quotes[symbol]
	if !ok {
		return nil, nil
	}
	return &types.Quote{Symbol: symbol, PriceUSD: price}, nil
}

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func completedTrade(t *testing.T, symbol, side, amount, price string) *types.Trade {
	t.Helper()
	now := time.Now()
	return &types.Trade{
		TradeID:    fmt.Sprintf("trade-%s-%s-%s", symbol, side, amount),
		Symbol:     symbol,
		Side:       side,
		Amount:     dec(t, amount),
		Price:      dec(t, price),
		TotalValue: dec(t, amount).Mul(dec(t, price)),
		Status:     types.StatusCompleted,
		CreatedAt:  now,
		ExecutedAt: &now,
	}
}

func requireDecimalEqual(t *testing.T, expected, actual decimal.Decimal) {
	t.Helper()
	require.True(t, expected.Equal(actual), "expected %s, got %s", expected, actual)
}

func TestReconcile_BuyCreatesHolding(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	err := service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.1", "43200.00"))
	require.NoError(t, err)

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	assert.Equal(t, "bitcoin", holding.Symbol)
	requireDecimalEqual(t, dec(t, "0.1"), holding.Quantity)
	requireDecimalEqual(t, dec(t, "43200.00"), holding.AveragePrice)
	requireDecimalEqual(t, dec(t, "4320.00"), holding.CurrentValue)
	assert.False(t, holding.LastUpdated.IsZero())
}

func TestReconcile_BuyRecomputesWeightedAverage(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.1", "43200.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.1", "44800.00")))

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	requireDecimalEqual(t, dec(t, "0.2"), holding.Quantity)
	requireDecimalEqual(t, dec(t, "44000"), holding.AveragePrice)
}

func TestReconcile_AveragePriceRoundsHalfUp(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	// 1 @ 1.00 + 2 @ 2.00 => 5/3 = 1.666... rounds to 8 places half up
	require.NoError(t, service.Reconcile(completedTrade(t, "cardano", types.SideBuy, "1", "1.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "cardano", types.SideBuy, "2", "2.00")))

	holding, err := service.GetHoldingBySymbol("cardano")
	require.NoError(t, err)
	require.NotNil(t, holding)

	requireDecimalEqual(t, dec(t, "1.66666667"), holding.AveragePrice)
}

func TestReconcile_SellReducesQuantityKeepsAverage(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.2", "44000.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideSell, "0.05", "50000.00")))

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	requireDecimalEqual(t, dec(t, "0.15"), holding.Quantity)
	// Selling never touches the cost basis of the remainder
	requireDecimalEqual(t, dec(t, "44000.00"), holding.AveragePrice)
}

func TestReconcile_SellToZeroDeletesHolding(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.15", "44000.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideSell, "0.15", "41000.00")))

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	assert.Nil(t, holding)
}

func TestReconcile_OverSellDeletesHolding(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "ethereum", types.SideBuy, "1", "2680.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "ethereum", types.SideSell, "5", "2680.00")))

	holding, err := service.GetHoldingBySymbol("ethereum")
	require.NoError(t, err)
	assert.Nil(t, holding)
}

func TestReconcile_SellWithoutHoldingIsIgnored(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "solana", types.SideSell, "10", "98.50")))

	holding, err := service.GetHoldingBySymbol("solana")
	require.NoError(t, err)
	assert.Nil(t, holding)

	portfolio, err := service.GetPortfolio()
	require.NoError(t, err)
	assert.Empty(t, portfolio)
}

func TestReconcile_RebuyAfterLiquidationStartsFreshCostBasis(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "1", "40000.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideSell, "1", "45000.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "1", "50000.00")))

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	// The old basis is gone, the new one comes from the re-buy alone
	requireDecimalEqual(t, dec(t, "50000.00"), holding.AveragePrice)
	requireDecimalEqual(t, dec(t, "1"), holding.Quantity)
}

func TestValuation_UsesLiveQuote(t *testing.T) {
	db := setupTestDB(t)
	prices := &stubPrices{quotes: map[string]decimal.Decimal{
		"bitcoin": dec(t, "45000.00"),
	}}
	service := NewService(db, prices)

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.5", "43200.00")))

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	requireDecimalEqual(t, dec(t, "22500.00"), holding.CurrentValue)
}

func TestValuation_FallsBackToCostBasisOnOracleError(t *testing.T) {
	db := setupTestDB(t)
	prices := &stubPrices{quotes: map[string]decimal.Decimal{
		"bitcoin": dec(t, "45000.00"),
	}}
	service := NewService(db, prices)

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.5", "43200.00")))

	// Oracle outage must not fail reads
	prices.err = errors.New("oracle unavailable")

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	requireDecimalEqual(t, dec(t, "21600.00"), holding.CurrentValue)
}

func TestGetTotalValue(t *testing.T) {
	db := setupTestDB(t)
	prices := &stubPrices{quotes: map[string]decimal.Decimal{
		"bitcoin":  dec(t, "45000.00"),
		"ethereum": dec(t, "2700.00"),
	}}
	service := NewService(db, prices)

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "0.1", "43200.00")))
	require.NoError(t, service.Reconcile(completedTrade(t, "ethereum", types.SideBuy, "2", "2680.00")))

	total, err := service.GetTotalValue()
	require.NoError(t, err)

	// 0.1*45000 + 2*2700 = 4500 + 5400
	requireDecimalEqual(t, dec(t, "9900.00"), total)
}

func TestGetTotalValue_EmptyPortfolioIsZero(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	total, err := service.GetTotalValue()
	require.NoError(t, err)
	requireDecimalEqual(t, decimal.Zero, total)
}

func TestGetHoldingBySymbol_NormalizesCase(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	require.NoError(t, service.Reconcile(completedTrade(t, "bitcoin", types.SideBuy, "1", "40000.00")))

	holding, err := service.GetHoldingBySymbol("BITCOIN")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.Equal(t, "bitcoin", holding.Symbol)
}

func TestReconcile_ConcurrentBuysSameSymbol(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(db, &stubPrices{})

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trade := completedTrade(t, "bitcoin", types.SideBuy, "1", "40000.00")
			trade.TradeID = fmt.Sprintf("concurrent-%d", i)
			errs <- service.Reconcile(trade)
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	holding, err := service.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)

	// A lost update would leave fewer than 20 units
	requireDecimalEqual(t, dec(t, "20"), holding.Quantity)
	requireDecimalEqual(t, dec(t, "40000.00"), holding.AveragePrice)
}
