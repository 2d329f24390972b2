package migrations

import "gorm.io/gorm"

// AddLookupIndexes adds the indexes behind the ledger and watchlist list queries
func AddLookupIndexes(db *gorm.DB) error {
	indexes := []string{
		// Orders of one client filtered by status
		`CREATE INDEX IF NOT EXISTS idx_orders_client_status
		 ON orders(client_id, status)`,

		// Time ordered listing
		`CREATE INDEX IF NOT EXISTS idx_orders_placed_at
		 ON orders(placed_at)`,

		// Default list lookups per client
		`CREATE INDEX IF NOT EXISTS idx_watch_lists_client_default
		 ON watch_lists(client_id, is_default)`,

		// Instrument search
		`CREATE INDEX IF NOT EXISTS idx_instruments_exchange_type
		 ON instruments(exchange_type)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
