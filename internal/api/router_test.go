package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ksred/klear-brokerage/internal/config"
	"github.com/ksred/klear-brokerage/internal/database"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.NewInMemoryDatabase()
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	return &testAPI{t: t, router: NewRouter(db, config.RateLimits{})}
}

func (a *testAPI) do(method, path string, body interface{}, headers map[string]string) (int, envelope) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		a.t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

// id performs the request, expects want and returns the named id field from data
func (a *testAPI) id(method, path string, body interface{}, want int, field string) string {
	a.t.Helper()
	code, env := a.do(method, path, body, nil)
	if code != want {
		a.t.Fatalf("%s %s: expected %d, got %d (%+v)", method, path, want, code, env.Error)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		a.t.Fatalf("decode data: %v", err)
	}
	value, _ := data[field].(string)
	if value == "" {
		a.t.Fatalf("%s %s: missing %s in %s", method, path, field, string(env.Data))
	}
	return value
}

func (a *testAPI) expectError(method, path string, body interface{}, wantStatus int, wantCode string) envelope {
	a.t.Helper()
	code, env := a.do(method, path, body, nil)
	if code != wantStatus || env.Success || env.Error == nil || env.Error.Code != wantCode {
		a.t.Fatalf("%s %s: expected %d %s, got %d %+v", method, path, wantStatus, wantCode, code, env.Error)
	}
	return env
}

func TestOrderFlowOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	clientID := a.id(http.MethodPost, "/api/v1/clients", map[string]interface{}{
		"client_code": "CL001", "name": "Asha Rao", "phone": "9999999999", "pan": "ABCDE1234F",
	}, http.StatusCreated, "client_id")
	instrumentID := a.id(http.MethodPost, "/api/v1/instruments", map[string]interface{}{
		"symbol": "NIFTY", "exchange": "NSE", "exchange_type": "Futures", "lot_size": 5, "current_price": 22000,
	}, http.StatusCreated, "instrument_id")

	order := map[string]interface{}{
		"client_id": clientID, "instrument_id": instrumentID, "side": "BUY", "quantity": 10, "price": 100,
	}
	env := a.expectError(http.MethodPost, "/api/v1/orders", order, http.StatusUnprocessableEntity, "INELIGIBLE_CLIENT")
	if env.Error.Details["kyc_status"] != "NOT_COMPLETED" {
		t.Fatalf("expected kyc_status detail, got %v", env.Error.Details)
	}

	a.id(http.MethodPut, "/api/v1/clients/"+clientID+"/status", map[string]interface{}{"kyc_status": "COMPLETED"},
		http.StatusOK, "client_id")

	order["quantity"] = 7
	env = a.expectError(http.MethodPost, "/api/v1/orders", order, http.StatusBadRequest, "LOT_SIZE_VIOLATION")
	if env.Error.Details["lot_size"] != "5" {
		t.Fatalf("expected lot_size detail 5, got %v", env.Error.Details)
	}

	order["quantity"] = 10
	order["price"] = 0
	a.expectError(http.MethodPost, "/api/v1/orders", order, http.StatusBadRequest, "INVALID_PRICE")

	order["price"] = 100
	orderID := a.id(http.MethodPost, "/api/v1/orders", order, http.StatusCreated, "order_id")

	code, env := a.do(http.MethodPut, "/api/v1/orders/"+orderID+"/modify", map[string]interface{}{"price": "120", "quantity": 20}, nil)
	if code != http.StatusOK {
		t.Fatalf("modify: expected 200, got %d %+v", code, env.Error)
	}
	var modified struct {
		Quantity int64  `json:"quantity"`
		Price    string `json:"price"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &modified); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if modified.Quantity != 20 || modified.Price != "120" || modified.Status != "PENDING" {
		t.Fatalf("unexpected modified order %+v", modified)
	}

	code, env = a.do(http.MethodGet, "/api/v1/orders/pending", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("pending: expected 200, got %d", code)
	}
	var pending []map[string]interface{}
	if err := json.Unmarshal(env.Data, &pending); err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending order, got %d (%v)", len(pending), err)
	}

	if code, _ := a.do(http.MethodDelete, "/api/v1/orders/"+orderID, nil, nil); code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", code)
	}
	a.expectError(http.MethodPut, "/api/v1/orders/"+orderID+"/modify", map[string]interface{}{"price": 130},
		http.StatusConflict, "INVALID_STATE")
	a.expectError(http.MethodGet, "/api/v1/orders/missing", nil, http.StatusNotFound, "NOT_FOUND")

	code, env = a.do(http.MethodPut, "/api/v1/internal/orders/"+orderID+"/status", map[string]interface{}{"status": "EXECUTED"}, nil)
	if code != http.StatusOK {
		t.Fatalf("status hook: expected 200, got %d %+v", code, env.Error)
	}
	a.expectError(http.MethodPut, "/api/v1/internal/orders/"+orderID+"/status", map[string]interface{}{"status": "FILLED"},
		http.StatusBadRequest, "INVALID_REQUEST")
}

func TestIdempotencyKeyOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	clientID := a.id(http.MethodPost, "/api/v1/clients", map[string]interface{}{
		"client_code": "CL002", "name": "Vikram Shah", "phone": "8888888888", "kyc_status": "COMPLETED",
	}, http.StatusCreated, "client_id")
	instrumentID := a.id(http.MethodPost, "/api/v1/instruments", map[string]interface{}{"symbol": "INFY"},
		http.StatusCreated, "instrument_id")

	order := map[string]interface{}{
		"client_id": clientID, "instrument_id": instrumentID, "side": "SELL", "quantity": 3, "price": "1500.5", "validity": "IOC",
	}
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		code, env := a.do(http.MethodPost, "/api/v1/orders", order, headers)
		if code != http.StatusCreated {
			t.Fatalf("place: expected 201, got %d %+v", code, env.Error)
		}
		var placed struct {
			OrderID string `json:"order_id"`
		}
		if err := json.Unmarshal(env.Data, &placed); err != nil {
			t.Fatalf("decode order: %v", err)
		}
		ids = append(ids, placed.OrderID)
	}
	if ids[0] != ids[1] {
		t.Fatalf("expected replay to return the same order, got %v", ids)
	}

	code, env := a.do(http.MethodGet, "/api/v1/orders/client/"+clientID, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", code)
	}
	var orders []map[string]interface{}
	if err := json.Unmarshal(env.Data, &orders); err != nil || len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d (%v)", len(orders), err)
	}
}

func TestWatchListFlowOverHTTP(t *testing.T) {
	a := newTestAPI(t)

	clientID := a.id(http.MethodPost, "/api/v1/clients", map[string]interface{}{
		"client_code": "CL003", "name": "Meera Iyer", "phone": "7777777777",
	}, http.StatusCreated, "client_id")
	first := a.id(http.MethodPost, "/api/v1/instruments", map[string]interface{}{"symbol": "TCS", "current_price": "3400.50"},
		http.StatusCreated, "instrument_id")
	second := a.id(http.MethodPost, "/api/v1/instruments", map[string]interface{}{"symbol": "WIPRO"},
		http.StatusCreated, "instrument_id")

	listID := a.id(http.MethodPost, "/api/v1/watchlists", map[string]interface{}{"client_id": clientID, "name": "Tech"},
		http.StatusCreated, "watchlist_id")
	a.id(http.MethodPost, "/api/v1/watchlists/"+listID+"/instruments", map[string]interface{}{"instrument_id": first},
		http.StatusCreated, "instrument_id")
	a.id(http.MethodPost, "/api/v1/watchlists/"+listID+"/instruments", map[string]interface{}{"instrument_id": second},
		http.StatusCreated, "instrument_id")
	a.expectError(http.MethodPost, "/api/v1/watchlists/"+listID+"/instruments", map[string]interface{}{"instrument_id": first},
		http.StatusConflict, "ALREADY_EXISTS")

	code, env := a.do(http.MethodGet, "/api/v1/watchlists/"+listID+"/summary", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", code)
	}
	var summary struct {
		InstrumentCount int    `json:"instrument_count"`
		Report          string `json:"report"`
	}
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	want := "Watchlist 'Tech' contains 2 instruments. Total Market Value: ₹3400.50"
	if summary.InstrumentCount != 2 || summary.Report != want {
		t.Fatalf("unexpected summary %+v", summary)
	}

	a.expectError(http.MethodDelete, "/api/v1/watchlists/"+listID, nil, http.StatusConflict, "INVALID_STATE")

	if code, _ := a.do(http.MethodDelete, "/api/v1/watchlists/"+listID+"/instruments/"+second, nil, nil); code != http.StatusOK {
		t.Fatalf("remove instrument: expected 200, got %d", code)
	}
	a.expectError(http.MethodDelete, "/api/v1/watchlists/"+listID+"/instruments/"+second, nil, http.StatusNotFound, "NOT_FOUND")

	code, env = a.do(http.MethodGet, "/api/v1/watchlists/"+listID+"/items", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("items: expected 200, got %d", code)
	}
	var withItems struct {
		IsDefault bool                     `json:"is_default"`
		Items     []map[string]interface{} `json:"items"`
	}
	if err := json.Unmarshal(env.Data, &withItems); err != nil {
		t.Fatalf("decode watchlist: %v", err)
	}
	if !withItems.IsDefault || len(withItems.Items) != 1 {
		t.Fatalf("unexpected watchlist %+v", withItems)
	}

	a.expectError(http.MethodPost, "/api/v1/watchlists", map[string]interface{}{"client_id": "missing", "name": "X"},
		http.StatusNotFound, "NOT_FOUND")
	a.expectError(http.MethodPost, "/api/v1/watchlists", map[string]interface{}{"client_id": clientID},
		http.StatusBadRequest, "BAD_REQUEST")
}
