package watchlist

import (
	"context"
	"errors"

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

// CreateWatchList stores list unless its client already owns maxPerClient lists.
// The first list a client creates is always stored as the default.
func (d *Database) CreateWatchList(ctx context.Context, list *types.WatchList, maxPerClient int) error {
	tx := d.dbWithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var count int64
	if err := tx.Model(&types.WatchList{}).Where("client_id = ?", list.ClientID).Count(&count).Error; err != nil {
		tx.Rollback()
		return err
	}
	if count >= int64(maxPerClient) {
		tx.Rollback()
		return types.NewError(types.KindLimitExceeded, "client cannot have more than %d watchlists", maxPerClient)
	}
	if count == 0 {
		list.IsDefault = true
	}

	if err := tx.Create(list).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetWatchList returns nil, nil when no list has the id. Items are loaded only when withItems is set.
func (d *Database) GetWatchList(ctx context.Context, watchListID string, withItems bool) (*types.WatchList, error) {
	query := d.dbWithContext(ctx)
	if withItems {
		query = query.Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("added_at, id")
		})
	}

	var list types.WatchList
	if err := query.Where("watch_list_id = ?", watchListID).First(&list).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &list, nil
}

func (d *Database) ListWatchListsByClient(ctx context.Context, clientID string) ([]types.WatchList, error) {
	lists := []types.WatchList{}
	if err := d.dbWithContext(ctx).Where("client_id = ?", clientID).Order("id").Find(&lists).Error; err != nil {
		return nil, err
	}
	return lists, nil
}

func (d *Database) RenameWatchList(ctx context.Context, list *types.WatchList, name string) error {
	return d.dbWithContext(ctx).Model(list).Update("name", name).Error
}

// CountDefaults counts the client's default lists other than excludeID
func (d *Database) CountDefaults(ctx context.Context, clientID, excludeID string) (int64, error) {
	var count int64
	err := d.dbWithContext(ctx).Model(&types.WatchList{}).
		Where("client_id = ? AND is_default = ? AND watch_list_id <> ?", clientID, true, excludeID).
		Count(&count).Error
	return count, err
}

// DeleteWatchList removes the list's items and then the list in one transaction
func (d *Database) DeleteWatchList(ctx context.Context, list *types.WatchList) error {
	tx := d.dbWithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Where("watch_list_id = ?", list.WatchListID).Delete(&types.WatchListItem{}).Error; err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Delete(list).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GetItem returns nil, nil when the instrument is not a member of the list
func (d *Database) GetItem(ctx context.Context, watchListID, instrumentID string) (*types.WatchListItem, error) {
	var item types.WatchListItem
	err := d.dbWithContext(ctx).
		Where("watch_list_id = ? AND instrument_id = ?", watchListID, instrumentID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// AddItem stores item unless the instrument is already a member or the list holds maxItems.
// The duplicate check runs first.
func (d *Database) AddItem(ctx context.Context, item *types.WatchListItem, maxItems int) error {
	tx := d.dbWithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var existing int64
	if err := tx.Model(&types.WatchListItem{}).
		Where("watch_list_id = ? AND instrument_id = ?", item.WatchListID, item.InstrumentID).
		Count(&existing).Error; err != nil {
		tx.Rollback()
		return err
	}
	if existing > 0 {
		tx.Rollback()
		return types.NewError(types.KindAlreadyExists, "instrument %s is already in the watchlist", item.InstrumentID).
			WithDetail("instrument_id", item.InstrumentID)
	}

	var count int64
	if err := tx.Model(&types.WatchListItem{}).Where("watch_list_id = ?", item.WatchListID).Count(&count).Error; err != nil {
		tx.Rollback()
		return err
	}
	if count >= int64(maxItems) {
		tx.Rollback()
		return types.NewError(types.KindLimitExceeded, "cannot add more than %d instruments to a watchlist", maxItems)
	}

	if err := tx.Create(item).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (d *Database) DeleteItem(ctx context.Context, item *types.WatchListItem) error {
	return d.dbWithContext(ctx).Delete(item).Error
}
