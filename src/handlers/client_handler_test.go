package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/username/portfoliodesk/backend/src/database"
	"github.com/username/portfoliodesk/backend/src/logger"
	"github.com/username/portfoliodesk/backend/src/model"
	"github.com/username/portfoliodesk/backend/src/services"
)

func seedTestUser(t *testing.T, username string) int64 {
	t.Helper()
	user := &model.User{
		Username:     username,
		Email:        username + "@example.com",
		Password:     "hashed",
		AuthProvider: "local",
		IsVerified:   true,
	}
	if err := user.CreateUser(database.DB); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user.ID
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestClientCRUD(t *testing.T) {
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	userID := seedTestUser(t, "alice")
	mux := newTestMux(t, userID)

	rec := doJSON(t, mux, "POST", "/api/clients", map[string]any{
		"fullName":     "Maria Silva",
		"city":         "Lisbon",
		"cashPosition": "1500.50",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created model.Client
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding created client: %v", err)
	}
	if created.FullName != "Maria Silva" {
		t.Errorf("fullName = %q, want Maria Silva", created.FullName)
	}
	if !created.CashPosition.Equal(decimal.RequireFromString("1500.50")) {
		t.Errorf("cashPosition = %s, want 1500.50", created.CashPosition)
	}

	rec = doJSON(t, mux, "GET", "/api/clients", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var listed []model.Client
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decoding client list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d clients, want 1", len(listed))
	}

	rec = doJSON(t, mux, "PATCH", "/api/clients/1", map[string]any{"city": "Porto"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated model.Client
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decoding updated client: %v", err)
	}
	if updated.City != "Porto" {
		t.Errorf("city = %q, want Porto", updated.City)
	}
	if updated.FullName != "Maria Silva" {
		t.Errorf("fullName lost on partial update: %q", updated.FullName)
	}

	rec = doJSON(t, mux, "DELETE", "/api/clients/1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, mux, "GET", "/api/clients/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", rec.Code)
	}
}

// newTestMux wires the entity routes against the already-initialized
// database, with the auth middleware replaced by a context stub for the
// given user.
func newTestMux(t *testing.T, userID int64) *http.ServeMux {
	t.Helper()
	dashboardService := services.NewDashboardService(database.DB, cache.New(time.Minute, 2*time.Minute))
	transactionService := services.NewTransactionService(database.DB)
	clientHandler := NewClientHandler(dashboardService)
	investmentHandler := NewInvestmentHandler(dashboardService)
	transactionHandler := NewTransactionHandler(transactionService, dashboardService)
	dashboardHandler := NewDashboardHandler(dashboardService)

	asUser := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			next(w, r.WithContext(context.WithValue(r.Context(), userIDContextKey, userID)))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clients", asUser(clientHandler.ListClientsHandler))
	mux.HandleFunc("POST /api/clients", asUser(clientHandler.CreateClientHandler))
	mux.HandleFunc("GET /api/clients/{id}", asUser(clientHandler.GetClientHandler))
	mux.HandleFunc("PATCH /api/clients/{id}", asUser(clientHandler.UpdateClientHandler))
	mux.HandleFunc("DELETE /api/clients/{id}", asUser(clientHandler.DeleteClientHandler))
	mux.HandleFunc("POST /api/investments", asUser(investmentHandler.CreateInvestmentHandler))
	mux.HandleFunc("PATCH /api/investments/{id}", asUser(investmentHandler.UpdateInvestmentHandler))
	mux.HandleFunc("POST /api/transactions", asUser(transactionHandler.CreateTransactionHandler))
	mux.HandleFunc("GET /api/dashboard", asUser(dashboardHandler.GetDashboardHandler))
	return mux
}

func TestOwnershipNotLeaked(t *testing.T) {
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	alice := seedTestUser(t, "alice")
	bob := seedTestUser(t, "bob")

	aliceMux := newTestMux(t, alice)
	bobMux := newTestMux(t, bob)

	rec := doJSON(t, aliceMux, "POST", "/api/clients", map[string]any{"fullName": "Maria Silva"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rec.Code)
	}

	// Bob sees a 404, identical to a client that never existed.
	rec = doJSON(t, bobMux, "GET", "/api/clients/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user get: status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, bobMux, "PATCH", "/api/clients/1", map[string]any{"city": "Porto"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user update: status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, bobMux, "DELETE", "/api/clients/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user delete: status = %d, want 404", rec.Code)
	}
}

// brokerageFirms is stored as a JSON array string; any other JSON value,
// even a syntactically valid one, must be rejected.
func TestBrokerageFirmsMustBeArray(t *testing.T) {
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	userID := seedTestUser(t, "alice")
	mux := newTestMux(t, userID)

	for _, bad := range []string{`{}`, `"just a string"`, `42`, `not json`} {
		rec := doJSON(t, mux, "POST", "/api/clients", map[string]any{
			"fullName":       "Maria Silva",
			"brokerageFirms": bad,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("create with brokerageFirms %q: status = %d, want 400", bad, rec.Code)
		}
	}

	rec := doJSON(t, mux, "POST", "/api/clients", map[string]any{
		"fullName":       "Maria Silva",
		"brokerageFirms": `["XP", "BTG"]`,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create with array brokerageFirms: status = %d, want 201", rec.Code)
	}

	rec = doJSON(t, mux, "PATCH", "/api/clients/1", map[string]any{"brokerageFirms": `{}`})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("update with object brokerageFirms: status = %d, want 400", rec.Code)
	}
}

func TestTransactionEndpointRejectsOversell(t *testing.T) {
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	userID := seedTestUser(t, "alice")
	mux := newTestMux(t, userID)

	rec := doJSON(t, mux, "POST", "/api/clients", map[string]any{"fullName": "Maria Silva"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client: status = %d", rec.Code)
	}
	rec = doJSON(t, mux, "POST", "/api/investments", map[string]any{
		"clientId":     1,
		"stockName":    "Acme Corp",
		"quantityLots": "100",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create investment: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, "POST", "/api/transactions", map[string]any{
		"investmentId": 1,
		"type":         "SELL",
		"quantityLots": "150",
		"pricePerLot":  "26",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversell: status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error message in the response body")
	}
}

func TestInvestmentQuantityNotDirectlyEditable(t *testing.T) {
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	userID := seedTestUser(t, "alice")
	mux := newTestMux(t, userID)

	rec := doJSON(t, mux, "POST", "/api/clients", map[string]any{"fullName": "Maria Silva"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client: status = %d", rec.Code)
	}
	rec = doJSON(t, mux, "POST", "/api/investments", map[string]any{
		"clientId":     1,
		"stockName":    "Acme Corp",
		"quantityLots": "100",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create investment: status = %d", rec.Code)
	}

	rec = doJSON(t, mux, "PATCH", "/api/investments/1", map[string]any{"quantityLots": "999"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("quantity patch: status = %d, want 400", rec.Code)
	}
}

func TestDashboardETag(t *testing.T) {
	logger.InitLogger("error")
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	userID := seedTestUser(t, "alice")
	mux := newTestMux(t, userID)

	rec := doJSON(t, mux, "GET", "/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header")
	}

	req := httptest.NewRequest("GET", "/api/dashboard", nil)
	req.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNotModified {
		t.Errorf("conditional get: status = %d, want 304", rec2.Code)
	}
}
