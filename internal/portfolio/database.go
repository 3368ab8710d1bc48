package portfolio

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

func (d *Database) GetAll() ([]types.Holding, error) {
	var holdings []types.Holding
	if err := d.db.Order("symbol asc").Find(&holdings).Error; err != nil {
		return nil, err
	}
	return holdings, nil
}

func (d *Database) GetBySymbol(symbol string) (*types.Holding, error) {
	var holding types.Holding
	if err := d.db.Where("symbol = ?", symbol).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &holding, nil
}

// Upsert writes a holding, creating the row when it has no store
// identity yet.
func (d *Database) Upsert(holding *types.Holding) error {
	if holding.ID == 0 {
		return d.db.Create(holding).Error
	}
	return d.db.Save(holding).Error
}

// Delete removes the holding for a symbol entirely.
func (d *Database) Delete(symbol string) error {
	return d.db.Unscoped().Where("symbol = ?", symbol).Delete(&types.Holding{}).Error
}
