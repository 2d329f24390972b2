package watchlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/klear-brokerage/internal/types"
	"github.com/ksred/klear-brokerage/pkg/response"
)

const (
	MaxWatchListsPerClient = 5
	MaxItemsPerWatchList   = 20
)

type ClientDirectory interface {
	FindClient(ctx context.Context, clientID string) (*types.Client, error)
}

type InstrumentCatalog interface {
	FindInstrument(ctx context.Context, instrumentID string) (*types.Instrument, error)
	FindInstruments(ctx context.Context, ids []string) (map[string]types.Instrument, error)
}

// Store persists watchlists and their items. Lookups return nil, nil when nothing matches.
type Store interface {
	CreateWatchList(ctx context.Context, list *types.WatchList, maxPerClient int) error
	GetWatchList(ctx context.Context, watchListID string, withItems bool) (*types.WatchList, error)
	ListWatchListsByClient(ctx context.Context, clientID string) ([]types.WatchList, error)
	RenameWatchList(ctx context.Context, list *types.WatchList, name string) error
	CountDefaults(ctx context.Context, clientID, excludeID string) (int64, error)
	DeleteWatchList(ctx context.Context, list *types.WatchList) error
	GetItem(ctx context.Context, watchListID, instrumentID string) (*types.WatchListItem, error)
	AddItem(ctx context.Context, item *types.WatchListItem, maxItems int) error
	DeleteItem(ctx context.Context, item *types.WatchListItem) error
}

type CreateWatchListRequest struct {
	ClientID  string `json:"client_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

type RenameWatchListRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddInstrumentRequest struct {
	InstrumentID string     `json:"instrument_id" binding:"required"`
	AddedAt      *time.Time `json:"added_at"`
}

// Summary is the derived market value of a watchlist. It is never stored.
type Summary struct {
	WatchListID      string          `json:"watchlist_id"`
	Name             string          `json:"name"`
	InstrumentCount  int             `json:"instrument_count"`
	TotalMarketValue decimal.Decimal `json:"total_market_value"`
	Report           string          `json:"report"`
}

// Service enforces the watchlist cardinality, membership and default-list rules
type Service struct {
	store       Store
	clients     ClientDirectory
	instruments InstrumentCatalog
	now         func() time.Time
}

func NewService(store Store, clients ClientDirectory, instruments InstrumentCatalog) *Service {
	return &Service{
		store:       store,
		clients:     clients,
		instruments: instruments,
		now:         time.Now,
	}
}

// Create adds an empty watchlist for the client. A client owns at most
// MaxWatchListsPerClient lists and its first list is always the default.
func (s *Service) Create(ctx context.Context, req CreateWatchListRequest) (*types.WatchList, error) {
	logger := log.With().Str("client_id", req.ClientID).Str("service", "watchlist").Logger()

	client, err := s.clients.FindClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	if client == nil {
		return nil, types.NotFound("client %s not found", req.ClientID)
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, types.InvalidRequest("watchlist name is required")
	}

	list := &types.WatchList{
		WatchListID: uuid.New().String(),
		ClientID:    req.ClientID,
		Name:        req.Name,
		IsDefault:   req.IsDefault,
	}
	if err := s.store.CreateWatchList(ctx, list, MaxWatchListsPerClient); err != nil {
		if types.KindOf(err) != "" {
			logger.Warn().Err(err).Msg("watchlist rejected")
			return nil, err
		}
		logger.Error().Err(err).Msg("failed to create watchlist")
		return nil, fmt.Errorf("failed to create watchlist: %w", err)
	}

	logger.Info().
		Str("watchlist_id", list.WatchListID).
		Bool("is_default", list.IsDefault).
		Msg("watchlist created")

	return list, nil
}

// Rename replaces the name only. Membership and the default flag are untouched.
func (s *Service) Rename(ctx context.Context, watchListID, name string) (*types.WatchList, error) {
	if strings.TrimSpace(name) == "" {
		return nil, types.InvalidRequest("watchlist name is required")
	}

	list, err := s.get(ctx, watchListID, false)
	if err != nil {
		return nil, err
	}

	if err := s.store.RenameWatchList(ctx, list, name); err != nil {
		return nil, fmt.Errorf("failed to rename watchlist: %w", err)
	}
	list.Name = name

	return list, nil
}

// Delete removes a non-default watchlist together with its items
func (s *Service) Delete(ctx context.Context, watchListID string) error {
	logger := log.With().Str("watchlist_id", watchListID).Str("service", "watchlist").Logger()

	list, err := s.get(ctx, watchListID, false)
	if err != nil {
		return err
	}

	if list.IsDefault {
		err := types.InvalidState("default watchlist cannot be deleted")
		logger.Warn().Err(err).Msg("delete rejected")
		return err
	}

	otherDefaults, err := s.store.CountDefaults(ctx, list.ClientID, list.WatchListID)
	if err != nil {
		return fmt.Errorf("failed to count default watchlists: %w", err)
	}
	if list.IsDefault && otherDefaults == 0 {
		return types.InvalidState("at least one default watchlist must remain per client")
	}

	if err := s.store.DeleteWatchList(ctx, list); err != nil {
		logger.Error().Err(err).Msg("failed to delete watchlist")
		return fmt.Errorf("failed to delete watchlist: %w", err)
	}

	logger.Info().Str("client_id", list.ClientID).Msg("watchlist deleted")
	return nil
}

// AddInstrument adds a member stamped with addedAt, or the current time when addedAt is nil
func (s *Service) AddInstrument(ctx context.Context, watchListID, instrumentID string, addedAt *time.Time) (*types.WatchListItem, error) {
	logger := log.With().
		Str("watchlist_id", watchListID).
		Str("instrument_id", instrumentID).
		Str("service", "watchlist").
		Logger()

	if _, err := s.get(ctx, watchListID, false); err != nil {
		return nil, err
	}

	instrument, err := s.instruments.FindInstrument(ctx, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instrument: %w", err)
	}
	if instrument == nil {
		return nil, types.NotFound("instrument %s not found", instrumentID)
	}

	stamp := s.now().UTC()
	if addedAt != nil {
		stamp = addedAt.UTC()
	}

	item := &types.WatchListItem{
		WatchListID:  watchListID,
		InstrumentID: instrumentID,
		AddedAt:      stamp,
	}
	if err := s.store.AddItem(ctx, item, MaxItemsPerWatchList); err != nil {
		if types.KindOf(err) != "" {
			logger.Warn().Err(err).Msg("instrument rejected")
			return nil, err
		}
		logger.Error().Err(err).Msg("failed to add instrument")
		return nil, fmt.Errorf("failed to add instrument to watchlist: %w", err)
	}

	logger.Debug().Msg("instrument added to watchlist")
	return item, nil
}

func (s *Service) RemoveInstrument(ctx context.Context, watchListID, instrumentID string) error {
	item, err := s.store.GetItem(ctx, watchListID, instrumentID)
	if err != nil {
		return fmt.Errorf("failed to fetch watchlist item: %w", err)
	}
	if item == nil {
		return types.NotFound("instrument %s not found in watchlist %s", instrumentID, watchListID)
	}

	if err := s.store.DeleteItem(ctx, item); err != nil {
		return fmt.Errorf("failed to remove instrument from watchlist: %w", err)
	}
	return nil
}

// Summary counts the members and adds up their current prices. A missing price counts as zero.
func (s *Service) Summary(ctx context.Context, watchListID string) (*Summary, error) {
	list, err := s.get(ctx, watchListID, true)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		ids = append(ids, item.InstrumentID)
	}
	instruments, err := s.instruments.FindInstruments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instruments: %w", err)
	}

	total := decimal.Zero
	for _, id := range ids {
		if instrument, ok := instruments[id]; ok {
			total = total.Add(instrument.PriceOrZero())
		}
	}

	return &Summary{
		WatchListID:      list.WatchListID,
		Name:             list.Name,
		InstrumentCount:  len(list.Items),
		TotalMarketValue: total,
		Report: fmt.Sprintf("Watchlist '%s' contains %d instruments. Total Market Value: ₹%s",
			list.Name, len(list.Items), total.StringFixed(2)),
	}, nil
}

// GetWithItems returns the watchlist with its members ordered by when they were added
func (s *Service) GetWithItems(ctx context.Context, watchListID string) (*types.WatchList, error) {
	list, err := s.get(ctx, watchListID, true)
	if err != nil {
		return nil, err
	}
	if list.Items == nil {
		list.Items = []types.WatchListItem{}
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, watchListID string) (*types.WatchList, error) {
	return s.get(ctx, watchListID, false)
}

func (s *Service) ListByClient(ctx context.Context, clientID string) ([]types.WatchList, error) {
	client, err := s.clients.FindClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	if client == nil {
		return nil, types.NotFound("client %s not found", clientID)
	}
	return s.store.ListWatchListsByClient(ctx, clientID)
}

func (s *Service) get(ctx context.Context, watchListID string, withItems bool) (*types.WatchList, error) {
	list, err := s.store.GetWatchList(ctx, watchListID, withItems)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch watchlist: %w", err)
	}
	if list == nil {
		return nil, types.NotFound("watchlist %s not found", watchListID)
	}
	return list, nil
}

// GinHandlers contains HTTP handlers for watchlist endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) CreateWatchListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateWatchListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		list, err := h.service.Create(c.Request.Context(), req)
		response.Handle(c, list, err)
	}
}

func (h *GinHandlers) ListClientWatchListsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		lists, err := h.service.ListByClient(c.Request.Context(), c.Param("client_id"))
		response.Handle(c, lists, err)
	}
}

func (h *GinHandlers) GetWatchListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.service.Get(c.Request.Context(), c.Param("watchlist_id"))
		response.Handle(c, list, err)
	}
}

func (h *GinHandlers) GetWatchListItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.service.GetWithItems(c.Request.Context(), c.Param("watchlist_id"))
		response.Handle(c, list, err)
	}
}

func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.Summary(c.Request.Context(), c.Param("watchlist_id"))
		response.Handle(c, summary, err)
	}
}

func (h *GinHandlers) RenameWatchListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenameWatchListRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		list, err := h.service.Rename(c.Request.Context(), c.Param("watchlist_id"), req.Name)
		response.Handle(c, list, err)
	}
}

func (h *GinHandlers) DeleteWatchListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		watchListID := c.Param("watchlist_id")
		err := h.service.Delete(c.Request.Context(), watchListID)
		response.Handle(c, gin.H{"watchlist_id": watchListID, "deleted": true}, err)
	}
}

// AddInstrumentHandler handles POST requests adding one instrument to a watchlist
// The added_at field is optional and defaults to the server time
func (h *GinHandlers) AddInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddInstrumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		item, err := h.service.AddInstrument(c.Request.Context(), c.Param("watchlist_id"), req.InstrumentID, req.AddedAt)
		response.Handle(c, item, err)
	}
}

func (h *GinHandlers) RemoveInstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		watchListID := c.Param("watchlist_id")
		instrumentID := c.Param("instrument_id")
		err := h.service.RemoveInstrument(c.Request.Context(), watchListID, instrumentID)
		response.Handle(c, gin.H{"watchlist_id": watchListID, "instrument_id": instrumentID, "removed": true}, err)
	}
}
