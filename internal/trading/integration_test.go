package trading

import (
	"testing"

	"github.com/ksred/crypto-sim-api/internal/portfolio"
	"github.com/ksred/crypto-sim-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrices struct{}

func (staticPrices) Quote(symbol string) (*types.Quote, error) {
	return nil, nil
}

// Exercises the full lifecycle of an order through execution and
// holding reconciliation: two buys at different prices blend the
// average cost, a partial sell keeps it, and a final sell liquidates
// the position.
func TestOrderLifecycleWithLedger(t *testing.T) {
	db := setupTestDB(t)
	ledger := portfolio.NewService(db, staticPrices{})
	service := NewService(db, ledger, &fixedOutcomes{draw: 0.0}, 0.9)

	_, err := service.SubmitOrder(orderRequest(t, "bitcoin", types.SideBuy, "0.1", "43200.00"))
	require.NoError(t, err)

	_, err = service.SubmitOrder(orderRequest(t, "bitcoin", types.SideBuy, "0.1", "44800.00"))
	require.NoError(t, err)

	holding, err := ledger.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.True(t, dec(t, "0.2").Equal(holding.Quantity), "got %s", holding.Quantity)
	assert.True(t, dec(t, "44000").Equal(holding.AveragePrice), "got %s", holding.AveragePrice)

	_, err = service.SubmitOrder(orderRequest(t, "bitcoin", types.SideSell, "0.05", "45000.00"))
	require.NoError(t, err)

	holding, err = ledger.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.True(t, dec(t, "0.15").Equal(holding.Quantity), "got %s", holding.Quantity)
	assert.True(t, dec(t, "44000").Equal(holding.AveragePrice), "got %s", holding.AveragePrice)

	_, err = service.SubmitOrder(orderRequest(t, "bitcoin", types.SideSell, "0.15", "46000.00"))
	require.NoError(t, err)

	holding, err = ledger.GetHoldingBySymbol("bitcoin")
	require.NoError(t, err)
	assert.Nil(t, holding)

	trades, err := service.GetAllTrades()
	require.NoError(t, err)
	assert.Len(t, trades, 4)
	for _, trade := range trades {
		assert.Equal(t, types.StatusCompleted, trade.Status)
	}
}
