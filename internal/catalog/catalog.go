package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/klear-brokerage/internal/types"
	"github.com/ksred/klear-brokerage/pkg/response"
)

// Service keeps the tradable instruments: lot sizes for order admission and
// current prices for watchlist summaries
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type RegisterInstrumentRequest struct {
	Symbol       string             `json:"symbol" binding:"required"`
	CompanyName  string             `json:"company_name"`
	Exchange     types.Exchange     `json:"exchange"`
	ExchangeType types.ExchangeType `json:"exchange_type"`
	CurrentPrice *decimal.Decimal   `json:"current_price"`
	LotSize      *int64             `json:"lot_size"`
}

type UpdatePriceRequest struct {
	CurrentPrice *decimal.Decimal `json:"current_price"`
}

// Register validates and stores a new instrument
func (s *Service) Register(ctx context.Context, req RegisterInstrumentRequest) (*types.Instrument, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return nil, types.InvalidRequest("symbol is required")
	}
	switch req.Exchange {
	case "", types.ExchangeNSE, types.ExchangeBSE, types.ExchangeMCX:
	default:
		return nil, types.InvalidRequest("unknown exchange %q", req.Exchange)
	}
	switch req.ExchangeType {
	case "", types.ExchangeTypeEquity, types.ExchangeTypeFutures, types.ExchangeTypeOptions,
		types.ExchangeTypeCurrency, types.ExchangeTypeCommodity:
	default:
		return nil, types.InvalidRequest("unknown exchange type %q", req.ExchangeType)
	}
	if req.LotSize != nil && *req.LotSize <= 0 {
		return nil, types.InvalidRequest("lot size must be a positive number")
	}
	if err := validatePrice(req.CurrentPrice); err != nil {
		return nil, err
	}

	instrument := &types.Instrument{
		InstrumentID: uuid.New().String(),
		Symbol:       strings.ToUpper(req.Symbol),
		CompanyName:  req.CompanyName,
		Exchange:     req.Exchange,
		ExchangeType: req.ExchangeType,
		CurrentPrice: nullDecimal(req.CurrentPrice),
		LotSize:      req.LotSize,
	}
	if err := s.db.CreateInstrument(ctx, instrument); err != nil {
		return nil, fmt.Errorf("failed to create instrument: %w", err)
	}

	log.Info().
		Str("instrument_id", instrument.InstrumentID).
		Str("symbol", instrument.Symbol).
		Msg("instrument registered")

	return instrument, nil
}

// FindInstrument is the lookup used by other services. It returns nil, nil for an unknown id.
func (s *Service) FindInstrument(ctx context.Context, instrumentID string) (*types.Instrument, error) {
	return s.db.GetInstrument(ctx, instrumentID)
}

// FindInstruments returns the known instruments among ids, keyed by id
func (s *Service) FindInstruments(ctx context.Context, ids []string) (map[string]types.Instrument, error) {
	return s.db.GetInstruments(ctx, ids)
}

// Get returns the instrument or a NOT_FOUND error
func (s *Service) Get(ctx context.Context, instrumentID string) (*types.Instrument, error) {
	instrument, err := s.db.GetInstrument(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instrument: %w", err)
	}
	if instrument == nil {
		return nil, types.NotFound("instrument %s not found", instrumentID)
	}
	return instrument, nil
}

func (s *Service) List(ctx context.Context) ([]types.Instrument, error) {
	return s.db.ListInstruments(ctx)
}

func (s *Service) Search(ctx context.Context, symbol, company string) ([]types.Instrument, error) {
	return s.db.SearchInstruments(ctx, symbol, company)
}

func (s *Service) ListByExchangeType(ctx context.Context, exchangeType string) ([]types.Instrument, error) {
	return s.db.ListByExchangeType(ctx, exchangeType)
}

// UpdatePrice sets the current price. A nil price marks it unknown.
func (s *Service) UpdatePrice(ctx context.Context, instrumentID string, price *decimal.Decimal) (*types.Instrument, error) {
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	instrument, err := s.Get(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	instrument.CurrentPrice = nullDecimal(price)
	if err := s.db.UpdateInstrument(ctx, instrument); err != nil {
		return nil, fmt.Errorf("failed to update instrument price: %w", err)
	}

	log.Debug().
		Str("instrument_id", instrument.InstrumentID).
		Str("current_price", instrument.PriceOrZero().String()).
		Msg("instrument price updated")

	return instrument, nil
}

func validatePrice(price *decimal.Decimal) error {
	if price != nil && price.IsNegative() {
		return types.NewError(types.KindInvalidPrice, "current price cannot be negative")
	}
	return nil
}

func nullDecimal(price *decimal.Decimal) decimal.NullDecimal {
	if price == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*price)
}

// GinHandlers contains HTTP handlers for instrument endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) RegisterInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterInstrumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		instrument, err := h.service.Register(c.Request.Context(), req)
		response.Handle(c, instrument, err)
	}
}

func (h *GinHandlers) ListInstrumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instruments, err := h.service.List(c.Request.Context())
		response.Handle(c, instruments, err)
	}
}

// SearchInstrumentsHandler handles GET requests with optional symbol and company query parameters
func (h *GinHandlers) SearchInstrumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instruments, err := h.service.Search(c.Request.Context(), c.Query("symbol"), c.Query("company"))
		response.Handle(c, instruments, err)
	}
}

func (h *GinHandlers) ListByExchangeTypeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instruments, err := h.service.ListByExchangeType(c.Request.Context(), c.Param("exchange_type"))
		response.Handle(c, instruments, err)
	}
}

func (h *GinHandlers) GetInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		instrument, err := h.service.Get(c.Request.Context(), c.Param("instrument_id"))
		response.Handle(c, instrument, err)
	}
}

func (h *GinHandlers) UpdatePriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		instrument, err := h.service.UpdatePrice(c.Request.Context(), c.Param("instrument_id"), req.CurrentPrice)
		response.Handle(c, instrument, err)
	}
}
