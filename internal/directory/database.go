package directory

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

func (d *Database) CreateClient(ctx context.Context, client *types.Client) error {
	return d.dbWithContext(ctx).Create(client).Error
}

// GetClient returns nil, nil when no client has the id
func (d *Database) GetClient(ctx context.Context, clientID string) (*types.Client, error) {
	var client types.Client
	if err := d.dbWithContext(ctx).Where("client_id = ?", clientID).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (d *Database) UpdateClient(ctx context.Context, client *types.Client) error {
	return d.dbWithContext(ctx).Save(client).Error
}

func (d *Database) ListClients(ctx context.Context) ([]types.Client, error) {
	var clients []types.Client
	if err := d.dbWithContext(ctx).Order("id").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// SearchClients matches name or client code case-insensitively. Empty terms match everything.
func (d *Database) SearchClients(ctx context.Context, name, code string) ([]types.Client, error) {
	query := d.dbWithContext(ctx).Model(&types.Client{})
	if name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if code != "" {
		query = query.Where("LOWER(client_code) LIKE ?", "%"+strings.ToLower(code)+"%")
	}

	var clients []types.Client
	if err := query.Order("id").Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}
