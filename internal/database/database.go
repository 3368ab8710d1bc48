package database

import (
	"github.com/ksred/crypto-sim-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite database at the given path and migrates
// all persisted schemas.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs auto-migration for every persisted model. Exposed
// separately so tests can migrate in-memory databases.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Trade{},
		&types.Holding{},
		&types.Cryptocurrency{},
	)
}
