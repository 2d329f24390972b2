package trading

import (
	"context"
	"errors"
	"time"

	"github.com/ksred/klear-brokerage/internal/types"
	"gorm.io/gorm"
)

// idempotencyTTL is how long a placement can be replayed with the same key
const idempotencyTTL = 24 * time.Hour

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) dbWithContext(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx)
}

func (d *Database) CreateOrder(ctx context.Context, order *types.Order) error {
	return d.dbWithContext(ctx).Create(order).Error
}

// GetOrder returns nil, nil when no order has the id
func (d *Database) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.dbWithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) UpdateOrder(ctx context.Context, order *types.Order) error {
	return d.dbWithContext(ctx).Save(order).Error
}

func (d *Database) ListOrders(ctx context.Context) ([]types.Order, error) {
	return d.findOrders(ctx, "", nil)
}

func (d *Database) ListOrdersByClient(ctx context.Context, clientID string) ([]types.Order, error) {
	return d.findOrders(ctx, "client_id = ?", clientID)
}

func (d *Database) ListOrdersByStatus(ctx context.Context, status types.OrderStatus) ([]types.Order, error) {
	return d.findOrders(ctx, "status = ?", status)
}

func (d *Database) findOrders(ctx context.Context, where string, arg interface{}) ([]types.Order, error) {
	query := d.dbWithContext(ctx)
	if where != "" {
		query = query.Where(where, arg)
	}

	orders := []types.Order{}
	if err := query.Order("placed_at, id").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateOrderWithIdempotency creates a new order and idempotency record in a transaction.
// An expired record with the same key is replaced. A live record is left in
// place, so the insert fails with gorm.ErrDuplicatedKey.
func (d *Database) CreateOrderWithIdempotency(ctx context.Context, order *types.Order, idempotencyKey string) error {
	// Begin transaction
	tx := d.dbWithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Unscoped().
		Where("idempotency_key = ? AND expires_at <= ?", idempotencyKey, order.PlacedAt).
		Delete(&types.IdempotencyRecord{}).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Create(order).Error; err != nil {
		tx.Rollback()
		return err
	}

	// Create idempotency record
	record := types.IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     order.OrderID,
		ResourceType:   "order",
		ExpiresAt:      order.PlacedAt.Add(idempotencyTTL),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetIdempotencyRecord retrieves an idempotency record by key, or nil, nil when there is none
func (d *Database) GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.dbWithContext(ctx).Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
