package database

import (
	"github.com/brokerpilot/api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the ledger database at path and migrates the schema.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate brings the schema up to date. Split out so tests can migrate an
// in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.PlaceOrder{},
		&types.Account{},
		&types.QuoteSnapshot{},
	)
}
