package trading

import (
	"errors"

	"github.com/ksred/crypto-sim-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

func (d *Database) GetTrade(tradeID string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) UpdateTrade(trade *types.Trade) error {
	return d.db.Save(trade).Error
}

// Recency ordering is createdAt descending with the insertion id as a
// stable tie-breaker.
const recencyOrder = "created_at DESC, id DESC"

func (d *Database) GetAllDesc() ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Order(recencyOrder).Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) GetBySymbolDesc(symbol string) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Where("symbol = ?", symbol).Order(recencyOrder).Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (d *Database) GetRecentDesc(limit int) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.Order(recencyOrder).Limit(limit).Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}
