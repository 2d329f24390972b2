package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

// Run applies every migration in order. Each step is idempotent.
func Run(db *gorm.DB) error {
	steps := []struct {
		name string
		fn   func(*gorm.DB) error
	}{
		{"001_create_brokerage_tables", CreateBrokerageTables},
		{"002_add_lookup_indexes", AddLookupIndexes},
	}

	for _, step := range steps {
		if err := step.fn(db); err != nil {
			return fmt.Errorf("migration %s: %w", step.name, err)
		}
	}
	return nil
}
