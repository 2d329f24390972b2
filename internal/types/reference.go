package types

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type KYCStatus string

const (
	KYCCompleted    KYCStatus = "COMPLETED"
	KYCNotCompleted KYCStatus = "NOT_COMPLETED"
)

type ClientStatus string

const (
	ClientActive   ClientStatus = "ACTIVE"
	ClientInactive ClientStatus = "INACTIVE"
)

// Client is the account holder record kept by the client directory.
// The order ledger and watchlists only read its eligibility attributes.
type Client struct {
	gorm.Model `json:"-"`
	ClientID   string       `gorm:"uniqueIndex" json:"client_id"`
	ClientCode string       `json:"client_code"`
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	Phone      string       `json:"phone"`
	PAN        string       `json:"pan"`
	KYCStatus  KYCStatus    `json:"kyc_status"`
	Status     ClientStatus `json:"status"`
}

// CanTrade reports whether the client passes the KYC and account status gate.
func (c *Client) CanTrade() bool {
	return c.KYCStatus == KYCCompleted && c.Status == ClientActive
}

type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeMCX Exchange = "MCX"
)

type ExchangeType string

const (
	ExchangeTypeEquity    ExchangeType = "Equity"
	ExchangeTypeFutures   ExchangeType = "Futures"
	ExchangeTypeOptions   ExchangeType = "Options"
	ExchangeTypeCurrency  ExchangeType = "Currency"
	ExchangeTypeCommodity ExchangeType = "Commodity"
)

// Instrument is a tradable security kept by the instrument catalog.
// A nil LotSize means the instrument has no lot constraint.
type Instrument struct {
	gorm.Model   `json:"-"`
	InstrumentID string              `gorm:"uniqueIndex" json:"instrument_id"`
	Symbol       string              `gorm:"index" json:"symbol"`
	CompanyName  string              `json:"company_name"`
	Exchange     Exchange            `json:"exchange"`
	ExchangeType ExchangeType        `json:"exchange_type"`
	CurrentPrice decimal.NullDecimal `gorm:"type:numeric" json:"current_price"`
	LotSize      *int64              `json:"lot_size"`
}

// PriceOrZero returns the current price, treating a missing price as zero.
func (i *Instrument) PriceOrZero() decimal.Decimal {
	if !i.CurrentPrice.Valid {
		return decimal.Zero
	}
	return i.CurrentPrice.Decimal
}
