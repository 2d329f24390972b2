package directory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/klear-brokerage/internal/types"
	"github.com/ksred/klear-brokerage/pkg/response"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// Service keeps the client records the order ledger and watchlists check eligibility against
type Service struct {
	db *Database
}

// NewService creates a new directory service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

type RegisterClientRequest struct {
	ClientCode string             `json:"client_code" binding:"required"`
	Name       string             `json:"name" binding:"required"`
	Email      string             `json:"email" binding:"omitempty,email"`
	Phone      string             `json:"phone" binding:"required"`
	PAN        string             `json:"pan"`
	KYCStatus  types.KYCStatus    `json:"kyc_status"`
	Status     types.ClientStatus `json:"status"`
}

type UpdateStatusRequest struct {
	KYCStatus types.KYCStatus    `json:"kyc_status"`
	Status    types.ClientStatus `json:"status"`
}

// Register validates and stores a new client. KYC defaults to NOT_COMPLETED and status to ACTIVE.
func (s *Service) Register(ctx context.Context, req RegisterClientRequest) (*types.Client, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ClientCode) == "" || strings.TrimSpace(req.Phone) == "" {
		return nil, types.InvalidRequest("client code, name and phone are required")
	}
	if req.PAN != "" && !panPattern.MatchString(req.PAN) {
		return nil, types.InvalidRequest("PAN %q is not in the AAAAA9999A format", req.PAN)
	}
	if req.KYCStatus == "" {
		req.KYCStatus = types.KYCNotCompleted
	}
	if req.Status == "" {
		req.Status = types.ClientActive
	}
	if err := validateStatuses(req.KYCStatus, req.Status); err != nil {
		return nil, err
	}

	client := &types.Client{
		ClientID:   uuid.New().String(),
		ClientCode: req.ClientCode,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		PAN:        req.PAN,
		KYCStatus:  req.KYCStatus,
		Status:     req.Status,
	}
	if err := s.db.CreateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	log.Info().
		Str("client_id", client.ClientID).
		Str("kyc_status", string(client.KYCStatus)).
		Str("status", string(client.Status)).
		Msg("client registered")

	return client, nil
}

// FindClient is the lookup used by other services. It returns nil, nil for an unknown id.
func (s *Service) FindClient(ctx context.Context, clientID string) (*types.Client, error) {
	return s.db.GetClient(ctx, clientID)
}

// Get returns the client or a NOT_FOUND error
func (s *Service) Get(ctx context.Context, clientID string) (*types.Client, error) {
	client, err := s.db.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	if client == nil {
		return nil, types.NotFound("client %s not found", clientID)
	}
	return client, nil
}

func (s *Service) List(ctx context.Context) ([]types.Client, error) {
	return s.db.ListClients(ctx)
}

func (s *Service) Search(ctx context.Context, name, code string) ([]types.Client, error) {
	return s.db.SearchClients(ctx, name, code)
}

// UpdateStatus changes the KYC and/or account status. Empty fields are left unchanged.
func (s *Service) UpdateStatus(ctx context.Context, clientID string, req UpdateStatusRequest) (*types.Client, error) {
	client, err := s.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	if req.KYCStatus != "" {
		client.KYCStatus = req.KYCStatus
	}
	if req.Status != "" {
		client.Status = req.Status
	}
	if err := validateStatuses(client.KYCStatus, client.Status); err != nil {
		return nil, err
	}

	if err := s.db.UpdateClient(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}

	log.Info().
		Str("client_id", client.ClientID).
		Str("kyc_status", string(client.KYCStatus)).
		Str("status", string(client.Status)).
		Msg("client status updated")

	return client, nil
}

func validateStatuses(kyc types.KYCStatus, status types.ClientStatus) error {
	if kyc != types.KYCCompleted && kyc != types.KYCNotCompleted {
		return types.InvalidRequest("unknown KYC status %q", kyc)
	}
	if status != types.ClientActive && status != types.ClientInactive {
		return types.InvalidRequest("unknown client status %q", status)
	}
	return nil
}

// GinHandlers contains HTTP handlers for client endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for client endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) RegisterClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		client, err := h.service.Register(c.Request.Context(), req)
		response.Handle(c, client, err)
	}
}

func (h *GinHandlers) ListClientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clients, err := h.service.List(c.Request.Context())
		response.Handle(c, clients, err)
	}
}

// SearchClientsHandler handles GET requests with optional name and code query parameters
func (h *GinHandlers) SearchClientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clients, err := h.service.Search(c.Request.Context(), c.Query("name"), c.Query("code"))
		response.Handle(c, clients, err)
	}
}

func (h *GinHandlers) GetClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := h.service.Get(c.Request.Context(), c.Param("client_id"))
		response.Handle(c, client, err)
	}
}

func (h *GinHandlers) UpdateClientStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		client, err := h.service.UpdateStatus(c.Request.Context(), c.Param("client_id"), req)
		response.Handle(c, client, err)
	}
}
