package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/klear-brokerage/internal/types"
	"github.com/ksred/klear-brokerage/pkg/response"
)

// ClientDirectory looks up clients. It returns nil, nil for an unknown id.
type ClientDirectory interface {
	FindClient(ctx context.Context, clientID string) (*types.Client, error)
}

// InstrumentCatalog looks up instruments. It returns nil, nil for an unknown id.
type InstrumentCatalog interface {
	FindInstrument(ctx context.Context, instrumentID string) (*types.Instrument, error)
}

// OrderStore persists orders. Lookups return nil, nil when nothing matches.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *types.Order) error
	CreateOrderWithIdempotency(ctx context.Context, order *types.Order, idempotencyKey string) error
	GetIdempotencyRecord(ctx context.Context, key string) (*types.IdempotencyRecord, error)
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
	UpdateOrder(ctx context.Context, order *types.Order) error
	ListOrders(ctx context.Context) ([]types.Order, error)
	ListOrdersByClient(ctx context.Context, clientID string) ([]types.Order, error)
	ListOrdersByStatus(ctx context.Context, status types.OrderStatus) ([]types.Order, error)
}

type PlaceOrderRequest struct {
	ClientID     string           `json:"client_id"`
	InstrumentID string           `json:"instrument_id"`
	Side         types.OrderSide  `json:"side"`
	Quantity     *int64           `json:"quantity"`
	Price        *decimal.Decimal `json:"price"`
	Validity     types.Validity   `json:"validity"`
}

// ModifyOrderRequest replaces price and quantity. A nil field keeps its current value.
type ModifyOrderRequest struct {
	Price    *decimal.Decimal `json:"price"`
	Quantity *int64           `json:"quantity"`
}

type UpdateStatusRequest struct {
	Status types.OrderStatus `json:"status" binding:"required"`
}

// Service is the order ledger: it admits new orders and owns their lifecycle
type Service struct {
	store       OrderStore
	clients     ClientDirectory
	instruments InstrumentCatalog
	now         func() time.Time
}

// NewService creates a new order ledger on top of the given store and reference lookups
func NewService(store OrderStore, clients ClientDirectory, instruments InstrumentCatalog) *Service {
	return &Service{
		store:       store,
		clients:     clients,
		instruments: instruments,
		now:         time.Now,
	}
}

// PlaceOrder admits a new order and stores it as PENDING.
// Checks run in a fixed order and nothing is written when one fails:
// client exists, instrument exists, client eligibility, quantity, lot size, price.
// A non-empty idempotencyKey that was used within the last 24 hours returns the original order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest, idempotencyKey string) (*types.Order, error) {
	logger := log.With().
		Str("client_id", req.ClientID).
		Str("instrument_id", req.InstrumentID).
		Str("service", "trading").
		Logger()

	if idempotencyKey != "" {
		existing, err := s.replay(ctx, idempotencyKey)
		if err != nil {
			logger.Error().Err(err).Msg("failed to check idempotency record")
			return nil, err
		}
		if existing != nil {
			logger.Info().Str("order_id", existing.OrderID).Msg("returning order for replayed idempotency key")
			return existing, nil
		}
	}

	if err := s.admit(ctx, &req); err != nil {
		logRejection(logger, err, "order rejected")
		return nil, err
	}

	order := &types.Order{
		OrderID:      uuid.New().String(),
		ClientID:     req.ClientID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Quantity:     *req.Quantity,
		Price:        *req.Price,
		Status:       types.StatusPending,
		Validity:     req.Validity,
		PlacedAt:     s.now().UTC(),
	}

	var err error
	if idempotencyKey != "" {
		err = s.store.CreateOrderWithIdempotency(ctx, order, idempotencyKey)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent request with the same key won the insert
			existing, replayErr := s.replay(ctx, idempotencyKey)
			if replayErr != nil {
				logger.Error().Err(replayErr).Msg("failed to check idempotency record")
				return nil, replayErr
			}
			if existing != nil {
				logger.Info().Str("order_id", existing.OrderID).Msg("returning order for replayed idempotency key")
				return existing, nil
			}
		}
	} else {
		err = s.store.CreateOrder(ctx, order)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to store order")
		return nil, fmt.Errorf("failed to store order: %w", err)
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Str("price", order.Price.String()).
		Str("validity", string(order.Validity)).
		Msg("order placed")

	return order, nil
}

func (s *Service) replay(ctx context.Context, idempotencyKey string) (*types.Order, error) {
	record, err := s.store.GetIdempotencyRecord(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch idempotency record: %w", err)
	}
	if record == nil || !record.ExpiresAt.After(s.now()) {
		return nil, nil
	}

	order, err := s.store.GetOrder(ctx, record.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order for idempotency key: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("idempotency key %s points at missing order %s", idempotencyKey, record.ResourceID)
	}
	return order, nil
}

// admit resolves the client and instrument and runs the admission checks
func (s *Service) admit(ctx context.Context, req *PlaceOrderRequest) error {
	client, err := s.clients.FindClient(ctx, req.ClientID)
	if err != nil {
		return fmt.Errorf("failed to fetch client: %w", err)
	}
	if client == nil {
		return types.NotFound("client %s not found", req.ClientID)
	}

	instrument, err := s.instruments.FindInstrument(ctx, req.InstrumentID)
	if err != nil {
		return fmt.Errorf("failed to fetch instrument: %w", err)
	}
	if instrument == nil {
		return types.NotFound("instrument %s not found", req.InstrumentID)
	}

	return runAdmissionChecks(&admission{
		req:        req,
		client:     client,
		instrument: instrument,
	})
}

// ModifyOrder replaces price and quantity of a PENDING order. Lot size, price
// positivity and client eligibility are not checked again.
func (s *Service) ModifyOrder(ctx context.Context, orderID string, req ModifyOrderRequest) (*types.Order, error) {
	logger := log.With().Str("order_id", orderID).Str("service", "trading").Logger()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		logRejection(logger, err, "modify rejected")
		return nil, err
	}
	if err := checkTransition(order, opModify); err != nil {
		logRejection(logger, err, "modify rejected")
		return nil, err
	}

	if req.Price != nil {
		order.Price = *req.Price
	}
	if req.Quantity != nil {
		order.Quantity = *req.Quantity
	}

	if err := s.store.UpdateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to update order")
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	logger.Info().
		Int64("quantity", order.Quantity).
		Str("price", order.Price.String()).
		Msg("order modified")

	return order, nil
}

// CancelOrder moves a PENDING order to CANCELLED
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*types.Order, error) {
	logger := log.With().Str("order_id", orderID).Str("service", "trading").Logger()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		logRejection(logger, err, "cancel rejected")
		return nil, err
	}
	if err := checkTransition(order, opCancel); err != nil {
		logRejection(logger, err, "cancel rejected")
		return nil, err
	}

	order.Status = types.StatusCancelled
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to cancel order")
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	logger.Info().Msg("order cancelled")
	return order, nil
}

// UpdateStatus overwrites the order status. This is the hook for the external
// settlement process and is authoritative: terminal statuses are not protected.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus) (*types.Order, error) {
	logger := log.With().Str("order_id", orderID).Str("service", "trading").Logger()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		logRejection(logger, err, "status update rejected")
		return nil, err
	}
	if !status.Valid() {
		err := types.InvalidRequest("unknown order status %q", status)
		logRejection(logger, err, "status update rejected")
		return nil, err
	}

	previous := order.Status
	order.Status = status
	if err := s.store.UpdateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("failed to update order status")
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	event := logger.Info()
	if IsTerminal(previous) && previous != status {
		event = logger.Warn()
	}
	event.
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("order status updated")

	return order, nil
}

// GetOrder retrieves an order by its ID
func (s *Service) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	return s.getOrder(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context) ([]types.Order, error) {
	return s.store.ListOrders(ctx)
}

func (s *Service) ListClientOrders(ctx context.Context, clientID string) ([]types.Order, error) {
	return s.store.ListOrdersByClient(ctx, clientID)
}

func (s *Service) ListPendingOrders(ctx context.Context) ([]types.Order, error) {
	return s.store.ListOrdersByStatus(ctx, types.StatusPending)
}

func (s *Service) getOrder(ctx context.Context, orderID string) (*types.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		return nil, types.NotFound("order %s not found", orderID)
	}
	return order, nil
}

// logRejection logs business rule failures as warnings and anything else as errors
func logRejection(logger zerolog.Logger, err error, msg string) {
	if kind := types.KindOf(err); kind != "" {
		logger.Warn().Str("kind", string(kind)).Err(err).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// PlaceOrderHandler handles POST requests to place new orders
// An optional Idempotency-Key header makes retries safe
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.PlaceOrder(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.GetOrder(c.Request.Context(), c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ListOrders(c.Request.Context())
		response.Handle(c, orders, err)
	}
}

func (h *GinHandlers) ListPendingOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ListPendingOrders(c.Request.Context())
		response.Handle(c, orders, err)
	}
}

// ListClientOrdersHandler handles GET requests for every order of one client
// URL parameter: client_id
func (h *GinHandlers) ListClientOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := h.service.ListClientOrders(c.Request.Context(), c.Param("client_id"))
		response.Handle(c, orders, err)
	}
}

func (h *GinHandlers) ModifyOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ModifyOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.ModifyOrder(c.Request.Context(), c.Param("order_id"), req)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := h.service.CancelOrder(c.Request.Context(), c.Param("order_id"))
		response.Handle(c, order, err)
	}
}

// UpdateOrderStatusHandler handles PUT requests from the settlement process
// Mounted on the internal route group
func (h *GinHandlers) UpdateOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.UpdateStatus(c.Request.Context(), c.Param("order_id"), req.Status)
		response.Handle(c, order, err)
	}
}
