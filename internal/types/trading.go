package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade lifecycle states. COMPLETED, FAILED and CANCELLED are terminal.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"
	StatusFailed    = "FAILED"
)

// OrderRequest is the inbound order payload. It is validated and turned
// into a Trade; it is never persisted itself.
type OrderRequest struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"` // BUY or SELL
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
}

// Trade is a persisted order submission together with its execution
// outcome. TotalValue is computed once at creation and never recomputed.
// ExecutedAt is set only on the transition to COMPLETED.
type Trade struct {
	gorm.Model `json:"-"`
	TradeID    string          `gorm:"uniqueIndex" json:"trade_id"`
	Symbol     string          `gorm:"index" json:"symbol"`
	Side       string          `json:"side"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,8)" json:"amount"`
	Price      decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	TotalValue decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_value"`
	Status     string          `json:"status"` // PENDING, COMPLETED, CANCELLED, FAILED
	CreatedAt  time.Time       `json:"created_at"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`
}

// Holding is the ledger entry for one symbol: position size and cost
// basis. Quantity stays strictly positive while the row exists; a holding
// whose quantity would drop to zero or below is deleted instead.
// CurrentValue is a derived view recomputed on every read, never trusted
// as stored.
type Holding struct {
	gorm.Model   `json:"-"`
	Symbol       string          `gorm:"uniqueIndex" json:"symbol"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,8)" json:"quantity"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(20,8)" json:"average_price"`
	CurrentValue decimal.Decimal `gorm:"type:decimal(20,8)" json:"current_value"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// Cryptocurrency is the persisted market snapshot for a tradable asset,
// refreshed whenever the oracle produces a quote for it.
type Cryptocurrency struct {
	gorm.Model       `json:"-"`
	Symbol           string          `gorm:"uniqueIndex" json:"symbol"`
	Name             string          `json:"name"`
	CurrentPrice     decimal.Decimal `gorm:"type:decimal(20,8)" json:"current_price"`
	ChangePercent24h decimal.Decimal `gorm:"type:decimal(20,8)" json:"change_percent_24h"`
	LastUpdated      time.Time       `json:"last_updated"`
}

// Quote is a price observation returned by the price oracle.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	PriceUSD  decimal.Decimal `json:"usd"`
	Change24h decimal.Decimal `json:"usd_24h_change"`
}
