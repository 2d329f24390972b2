package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusExecuted, StatusCancelled:
		return true
	}
	return false
}

type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
)

func (v Validity) Valid() bool {
	return v == ValidityDay || v == ValidityIOC
}

// Order is a limit order admitted by the order ledger. Orders are never deleted;
// they end in EXECUTED or CANCELLED.
type Order struct {
	gorm.Model   `json:"-"`
	OrderID      string          `gorm:"uniqueIndex" json:"order_id"`
	ClientID     string          `gorm:"index" json:"client_id"`
	InstrumentID string          `json:"instrument_id"`
	Side         OrderSide       `json:"side"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `gorm:"type:numeric" json:"price"`
	Status       OrderStatus     `gorm:"index" json:"status"`
	Validity     Validity        `json:"validity"`
	PlacedAt     time.Time       `json:"placed_at"`
}

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
