package types

import "time"

// WatchList is a named set of instruments owned by one client.
// Items are only loaded on the read paths that ask for them.
type WatchList struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	WatchListID string          `gorm:"uniqueIndex" json:"watchlist_id"`
	ClientID    string          `gorm:"index" json:"client_id"`
	Name        string          `json:"name"`
	IsDefault   bool            `json:"is_default"`
	Items       []WatchListItem `gorm:"foreignKey:WatchListID;references:WatchListID" json:"items,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WatchListItem is one instrument membership. An instrument appears at most once per watchlist.
type WatchListItem struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	WatchListID  string    `gorm:"uniqueIndex:idx_watch_list_items_membership" json:"watchlist_id"`
	InstrumentID string    `gorm:"uniqueIndex:idx_watch_list_items_membership" json:"instrument_id"`
	AddedAt      time.Time `json:"added_at"`
}
