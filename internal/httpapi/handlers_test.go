package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"propos/internal/domain"
	"propos/internal/service"
	"propos/internal/store/memory"
)

type testEnv struct {
	api     *API
	handler http.Handler
	repo    *memory.Store
	main    *domain.Store
	branch  *domain.Store
	product *domain.Product
}

// newTestEnv builds a full API on an in-memory store with a real AuthManager
// and Service so handler tests exercise the complete request path.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	main, err := repo.CreateStore(ctx, domain.Store{Name: "Main", IsDefault: true})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	branch, err := repo.CreateStore(ctx, domain.Store{Name: "Branch"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	for _, u := range []domain.User{
		{Username: "admin", Password: mustHashPassword(t, "admin123"), Role: domain.RoleAdmin, StoreID: main.ID, Active: true},
		{Username: "clerk", Password: mustHashPassword(t, "clerk123"), Role: domain.RoleStaff, StoreID: main.ID, Active: true},
	} {
		if _, err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user %s: %v", u.Username, err)
		}
	}
	product, err := repo.CreateProduct(ctx, domain.Product{Name: "Widget", SKU: "SKU-1", PriceCents: 500, CostCents: 300, MinStock: 2, Active: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	svc := service.New(repo, nil, main.ID, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	api := New(svc, auth, "*")

	return &testEnv{
		api:     api,
		handler: api.Handler(),
		repo:    repo,
		main:    main,
		branch:  branch,
		product: product,
	}
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	return body.AccessToken
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedStock(t *testing.T, token string, qty int) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/purchases", token, domain.PurchaseCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.PurchaseLineRequest{{ProductID: e.product.ID, Quantity: qty, UnitCostCents: 300}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed purchase: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	e := newTestEnv(t)

	var last int
	for i := 0; i < 7; i++ {
		payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.9:4411"
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}
}

func TestRoutesRequireBearerToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 15)

	rec := e.do(t, http.MethodPost, "/api/v1/sales", clerk, domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 6, UnitPriceCents: 500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.SaleWithItems `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if created.Sale.TotalCents != 3000 {
		t.Fatalf("total = %d, want 3000", created.Sale.TotalCents)
	}

	row, err := e.repo.GetInventory(context.Background(), e.product.ID, e.main.ID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if row.Quantity != 9 {
		t.Fatalf("quantity = %d, want 9", row.Quantity)
	}

	// Refund, then reverse inventory as admin.
	rec = e.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/sales/%d/status", created.Sale.ID), clerk,
		domain.StatusUpdateRequest{Status: domain.SaleStatusRefunded})
	if rec.Code != http.StatusOK {
		t.Fatalf("refund: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sales/%d/reverse-inventory", created.Sale.ID), clerk, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff reverse: expected 403, got %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sales/%d/reverse-inventory", created.Sale.ID), admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin reverse: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	row, err = e.repo.GetInventory(context.Background(), e.product.ID, e.main.ID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if row.Quantity != 15 {
		t.Fatalf("quantity after reversal = %d, want 15", row.Quantity)
	}
}

func TestOversellReturnsConflict(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 3)

	rec := e.do(t, http.MethodPost, "/api/v1/sales", clerk, domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 4, UnitPriceCents: 500}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSameStoreTransferReturnsBadRequest(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 10)

	rec := e.do(t, http.MethodPost, "/api/v1/transfers", clerk, domain.TransferCreateRequest{
		FromStoreID: e.main.ID,
		ToStoreID:   e.main.ID,
		Items:       []domain.TransferLineRequest{{ProductID: e.product.ID, Quantity: 1}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestTransferOverHTTPMovesStock(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 9)

	rec := e.do(t, http.MethodPost, "/api/v1/transfers", clerk, domain.TransferCreateRequest{
		FromStoreID: e.main.ID,
		ToStoreID:   e.branch.ID,
		Items:       []domain.TransferLineRequest{{ProductID: e.product.ID, Quantity: 4}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory?store_id=%d", e.branch.ID), clerk, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("inventory: expected 200, got %d", rec.Code)
	}
	var body struct {
		Inventory []domain.InventoryRow `json:"inventory"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode inventory: %v", err)
	}
	if len(body.Inventory) != 1 || body.Inventory[0].Quantity != 4 {
		t.Fatalf("branch inventory = %+v, want one row with quantity 4", body.Inventory)
	}
}

func TestLowStockEndpoint(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 2) // minStock is 2: threshold is inclusive

	rec := e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/inventory/low-stock?store_id=%d", e.main.ID), clerk, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Items []domain.LowStockItem `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].Product.SKU != "SKU-1" {
		t.Fatalf("items = %+v, want the widget at its threshold", body.Items)
	}
}

func TestUsersEndpointIsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")
	clerk := e.login(t, "clerk", "clerk123")

	if rec := e.do(t, http.MethodGet, "/api/v1/users", clerk, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("staff list users: expected 403, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/v1/users", admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin list users: expected 200, got %d", rec.Code)
	}

	rec := e.do(t, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{
		Username: "manager1",
		Password: "secret99",
		Role:     domain.RoleManager,
		StoreID:  e.main.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	// The new account can log in straight away.
	e.login(t, "manager1", "secret99")
}

func TestUnknownSaleReturnsNotFound(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")

	rec := e.do(t, http.MethodGet, "/api/v1/sales/9999", clerk, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDashboardSummaryEndpoint(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 20)

	rec := e.do(t, http.MethodPost, "/api/v1/sales", clerk, domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 2, UnitPriceCents: 500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/v1/dashboard/summary?store_id=%d", e.main.ID), clerk, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Summary domain.DashboardSummary `json:"summary"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Summary.SalesCount != 1 || body.Summary.SalesTotalCents != 1000 {
		t.Fatalf("summary = %+v, want one sale totaling 1000", body.Summary)
	}
	if body.Summary.PurchasesCount != 1 {
		t.Fatalf("purchases count = %d, want 1", body.Summary.PurchasesCount)
	}
}

func TestBarcodeLookup(t *testing.T) {
	e := newTestEnv(t)
	admin := e.login(t, "admin", "admin123")

	rec := e.do(t, http.MethodPost, "/api/v1/products", admin, domain.Product{
		Name: "Scanned", SKU: "SKU-9", Barcode: "5901234123457", PriceCents: 250,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/api/v1/products/barcode/5901234123457", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("barcode lookup: expected 200, got %d", rec.Code)
	}
	var body struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Product.SKU != "SKU-9" {
		t.Fatalf("sku = %q, want SKU-9", body.Product.SKU)
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	e := newTestEnv(t)
	clerk := e.login(t, "clerk", "clerk123")
	e.seedStock(t, clerk, 5)

	rec := e.do(t, http.MethodPost, "/api/v1/sales", clerk, domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 1, UnitPriceCents: 500}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d", rec.Code)
	}
	var created struct {
		Sale domain.SaleWithItems `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = e.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/sales/%d/status", created.Sale.ID), clerk,
		domain.StatusUpdateRequest{Status: "shipped"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}
