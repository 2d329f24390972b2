package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/ksred/klear-brokerage/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) dbWithContext(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

func (d *Database) CreateInstrument(ctx context.Context, instrument *types.Instrument) error {
	return d.dbWithContext(ctx).Create(instrument).Error
}

// GetInstrument returns nil, nil when no instrument has the id
func (d *Database) GetInstrument(ctx context.Context, instrumentID string) (*types.Instrument, error) {
	var instrument types.Instrument
	if err := d.dbWithContext(ctx).Where("instrument_id = ?", instrumentID).First(&instrument).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &instrument, nil
}

// GetInstruments loads every instrument in ids that exists, keyed by instrument id
func (d *Database) GetInstruments(ctx context.Context, ids []string) (map[string]types.Instrument, error) {
	instrumentMap := make(map[string]types.Instrument, len(ids))
	if len(ids) == 0 {
		return instrumentMap, nil
	}

	var instruments []types.Instrument
	if err := d.dbWithContext(ctx).Where("instrument_id IN ?", ids).Find(&instruments).Error; err != nil {
		return nil, err
	}

	for _, instrument := range instruments {
		instrumentMap[instrument.InstrumentID] = instrument
	}
	return instrumentMap, nil
}

func (d *Database) UpdateInstrument(ctx context.Context, instrument *types.Instrument) error {
	return d.dbWithContext(ctx).Save(instrument).Error
}

func (d *Database) ListInstruments(ctx context.Context) ([]types.Instrument, error) {
	var instruments []types.Instrument
	if err := d.dbWithContext(ctx).Order("symbol").Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}

// SearchInstruments matches symbol and company name case-insensitively. Empty terms match everything.
func (d *Database) SearchInstruments(ctx context.Context, symbol, company string) ([]types.Instrument, error) {
	query := d.dbWithContext(ctx).Model(&types.Instrument{})
	if symbol != "" {
		query = query.Where("LOWER(symbol) LIKE ?", "%"+strings.ToLower(symbol)+"%")
	}
	if company != "" {
		query = query.Where("LOWER(company_name) LIKE ?", "%"+strings.ToLower(company)+"%")
	}

	var instruments []types.Instrument
	if err := query.Order("symbol").Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}

func (d *Database) ListByExchangeType(ctx context.Context, exchangeType string) ([]types.Instrument, error) {
	var instruments []types.Instrument
	if err := d.dbWithContext(ctx).
		Where("LOWER(exchange_type) = ?", strings.ToLower(exchangeType)).
		Order("symbol").
		Find(&instruments).Error; err != nil {
		return nil, err
	}
	return instruments, nil
}
