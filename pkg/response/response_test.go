package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/klear-brokerage/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func handle(t *testing.T, method string, data interface{}, err error) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, "/", nil)

	Handle(c, data, err)

	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHandleMapsErrorKinds(t *testing.T) {
	tests := []struct {
		kind   types.ErrorKind
		status int
	}{
		{types.KindNotFound, http.StatusNotFound},
		{types.KindInvalidQuantity, http.StatusBadRequest},
		{types.KindInvalidPrice, http.StatusBadRequest},
		{types.KindLotSizeViolation, http.StatusBadRequest},
		{types.KindInvalidRequest, http.StatusBadRequest},
		{types.KindIneligibleClient, http.StatusUnprocessableEntity},
		{types.KindInvalidState, http.StatusConflict},
		{types.KindAlreadyExists, http.StatusConflict},
		{types.KindLimitExceeded, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", types.NewError(tt.kind, "reason"))
			rec, body := handle(t, http.MethodGet, nil, err)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if body.Success || body.Error == nil {
				t.Fatalf("expected error envelope, got %+v", body)
			}
			if body.Error.Code != string(tt.kind) || body.Error.Message != "reason" {
				t.Fatalf("unexpected error body: %+v", body.Error)
			}
		})
	}
}

func TestHandleIncludesDetails(t *testing.T) {
	err := types.NewError(types.KindIneligibleClient, "client cannot trade").WithDetail("kyc_status", "NOT_COMPLETED")
	_, body := handle(t, http.MethodPost, nil, err)

	if body.Error.Details["kyc_status"] != "NOT_COMPLETED" {
		t.Fatalf("expected kyc_status detail, got %+v", body.Error.Details)
	}
}

func TestHandleSuccessStatusByMethod(t *testing.T) {
	rec, body := handle(t, http.MethodPost, map[string]string{"id": "1"}, nil)
	if rec.Code != http.StatusCreated || !body.Success {
		t.Fatalf("expected 201 success, got %d %+v", rec.Code, body)
	}

	rec, _ = handle(t, http.MethodGet, map[string]string{"id": "1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleFallbacks(t *testing.T) {
	rec, _ := handle(t, http.MethodGet, nil, gorm.ErrRecordNotFound)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for gorm not found, got %d", rec.Code)
	}

	rec, _ = handle(t, http.MethodPost, nil, fmt.Errorf("failed to store order: %w", gorm.ErrDuplicatedKey))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate key, got %d", rec.Code)
	}

	rec, body := handle(t, http.MethodGet, nil, errors.New("disk on fire"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body.Error.Message == "disk on fire" {
		t.Fatalf("internal error details must not leak")
	}
}
