package market

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

// UpsertSnapshot writes the latest observed quote for an asset, creating
// the snapshot row on first observation.
func (d *Database) UpsertSnapshot(quote *types.Quote) error {
	var existing types.Cryptocurrency
	err := d.db.Where("symbol = ?", quote.Symbol).First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return d.db.Create(snapshotFromQuote(quote)).Error
		}
		return err
	}

	snapshot := snapshotFromQuote(quote)
	existing.Name = snapshot.Name
	existing.CurrentPrice = snapshot.CurrentPrice
	existing.ChangePercent24h = snapshot.ChangePercent24h
	existing.LastUpdated = snapshot.LastUpdated
	return d.db.Save(&existing).Error
}

func (d *Database) GetSnapshots() ([]types.Cryptocurrency, error) {
	var snapshots []types.Cryptocurrency
	if err := d.db.Order("symbol asc").Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (d *Database) GetSnapshot(symbol string) (*types.Cryptocurrency, error) {
	var snapshot types.Cryptocurrency
	if err := d.db.Where("symbol = ?", symbol).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
