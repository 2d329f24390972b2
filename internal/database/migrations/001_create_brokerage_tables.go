package migrations

import (
	"github.com/ksred/klear-brokerage/internal/types"
	"gorm.io/gorm"
)

// CreateBrokerageTables creates the reference, order and watchlist tables
func CreateBrokerageTables(db *gorm.DB) error {
	// Reference data first, then the entities that point at it by id
	if err := db.AutoMigrate(&types.Client{}, &types.Instrument{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.Order{}, &types.IdempotencyRecord{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.WatchList{}, &types.WatchListItem{}); err != nil {
		return err
	}

	return nil
}
