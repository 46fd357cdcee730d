package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"propos/internal/domain"
	"propos/internal/store"
	"propos/internal/store/memory"
)

type env struct {
	svc     *Service
	repo    *memory.Store
	main    *domain.Store
	branch  *domain.Store
	user    *domain.User
	product *domain.Product
}

func newEnv(t *testing.T) *env {
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
	user, err := repo.CreateUser(ctx, domain.User{Username: "cashier", Password: "x", Role: domain.RoleStaff, Active: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := repo.CreateProduct(ctx, domain.Product{Name: "Widget", SKU: "SKU-1", PriceCents: 500, CostCents: 300, MinStock: 2, Active: true})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	return &env{
		svc:     New(repo, nil, 0, time.Minute),
		repo:    repo,
		main:    main,
		branch:  branch,
		user:    user,
		product: product,
	}
}

func (e *env) asStaff() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: e.user.ID, Username: e.user.Username, Role: domain.RoleStaff})
}

func (e *env) asAdmin() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: e.user.ID, Username: "admin", Role: domain.RoleAdmin})
}

func (e *env) stock(t *testing.T, qty int) {
	t.Helper()
	_, err := e.svc.CreatePurchase(e.asStaff(), domain.PurchaseCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.PurchaseLineRequest{{ProductID: e.product.ID, Quantity: qty, UnitCostCents: 300}},
	})
	if err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
}

func TestCreateSaleComputesTotalsAndDefaults(t *testing.T) {
	e := newEnv(t)
	e.stock(t, 20)

	sale, err := e.svc.CreateSale(e.asStaff(), domain.SaleCreateRequest{
		// StoreID omitted: default store resolution kicks in.
		DiscountCents: 100,
		TaxCents:      50,
		Items: []domain.SaleLineRequest{
			{ProductID: e.product.ID, Quantity: 3, UnitPriceCents: 500},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalCents != 3*500-100+50 {
		t.Fatalf("total = %d, want %d", sale.TotalCents, 3*500-100+50)
	}
	if sale.StoreID != e.main.ID {
		t.Fatalf("store = %d, want default %d", sale.StoreID, e.main.ID)
	}
	if !strings.HasPrefix(sale.InvoiceNumber, "INV-") {
		t.Fatalf("invoice number %q, want generated INV- reference", sale.InvoiceNumber)
	}
	if sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("status = %q, want completed default", sale.Status)
	}
	if sale.PaymentMethod != "cash" || sale.PaymentStatus != "paid" {
		t.Fatalf("payment defaults = %q/%q", sale.PaymentMethod, sale.PaymentStatus)
	}
	if len(sale.Items) != 1 || sale.Items[0].SubtotalCents != 1500 {
		t.Fatalf("items = %+v", sale.Items)
	}

	row, err := e.repo.GetInventory(context.Background(), e.product.ID, e.main.ID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if row.Quantity != 17 {
		t.Fatalf("quantity = %d, want 17", row.Quantity)
	}
}

func TestCreateSaleRequiresActor(t *testing.T) {
	e := newEnv(t)
	e.stock(t, 5)

	_, err := e.svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 1, UnitPriceCents: 500}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCreateSaleRejectsExcessiveDiscount(t *testing.T) {
	e := newEnv(t)
	e.stock(t, 5)

	_, err := e.svc.CreateSale(e.asStaff(), domain.SaleCreateRequest{
		StoreID:       e.main.ID,
		DiscountCents: 600, // subtotal is only 500
		Items:         []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 1, UnitPriceCents: 500}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestCreateTransferRejectsSameStore(t *testing.T) {
	e := newEnv(t)
	e.stock(t, 5)

	_, err := e.svc.CreateTransfer(e.asStaff(), domain.TransferCreateRequest{
		FromStoreID: e.main.ID,
		ToStoreID:   e.main.ID,
		Items:       []domain.TransferLineRequest{{ProductID: e.product.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrSameStoreTransfer) {
		t.Fatalf("err = %v, want ErrSameStoreTransfer", err)
	}
}

func TestCatalogMutationsNeedManagerRole(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.CreateProduct(e.asStaff(), domain.Product{Name: "New", SKU: "SKU-2", PriceCents: 100})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("staff create product err = %v, want ErrForbidden", err)
	}

	created, err := e.svc.CreateProduct(e.asAdmin(), domain.Product{Name: "New", SKU: "sku-2", PriceCents: 100})
	if err != nil {
		t.Fatalf("admin create product: %v", err)
	}
	if created.SKU != "SKU-2" {
		t.Fatalf("sku = %q, want normalized SKU-2", created.SKU)
	}
}

func TestReverseSaleInventoryNeedsManagerRole(t *testing.T) {
	e := newEnv(t)
	e.stock(t, 10)

	sale, err := e.svc.CreateSale(e.asStaff(), domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 2, UnitPriceCents: 500}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := e.svc.UpdateSaleStatus(e.asStaff(), sale.ID, domain.SaleStatusRefunded); err != nil {
		t.Fatalf("refund: %v", err)
	}

	if _, err := e.svc.ReverseSaleInventory(e.asStaff(), sale.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("staff reverse err = %v, want ErrForbidden", err)
	}
	reversed, err := e.svc.ReverseSaleInventory(e.asAdmin(), sale.ID)
	if err != nil {
		t.Fatalf("admin reverse: %v", err)
	}
	if !reversed.StockReversed {
		t.Fatal("StockReversed not set")
	}
}

// countingCache records hits so the test can tell a cached summary from a
// recomputed one.
type countingCache struct {
	mu    sync.Mutex
	data  map[string]*domain.DashboardSummary
	sets  int
	dels  int
	reads int
}

func newCountingCache() *countingCache {
	return &countingCache{data: make(map[string]*domain.DashboardSummary)}
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.DashboardSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.DashboardSummary, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = value
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels++
	delete(c.data, key)
	return nil
}

func TestDashboardSummaryUsesCacheAndInvalidatesOnSale(t *testing.T) {
	e := newEnv(t)
	summaries := newCountingCache()
	e.svc = New(e.repo, summaries, e.main.ID, time.Minute)
	e.stock(t, 20)

	first, err := e.svc.DashboardSummary(e.asStaff(), e.main.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if first.PurchasesCount != 1 {
		t.Fatalf("purchases count = %d, want 1", first.PurchasesCount)
	}
	if summaries.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", summaries.sets)
	}

	// Second read is served from cache.
	if _, err := e.svc.DashboardSummary(e.asStaff(), e.main.ID); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summaries.sets != 1 {
		t.Fatalf("cache sets = %d after cached read, want 1", summaries.sets)
	}

	// A new sale invalidates, so the next read recomputes.
	if _, err := e.svc.CreateSale(e.asStaff(), domain.SaleCreateRequest{
		StoreID: e.main.ID,
		Items:   []domain.SaleLineRequest{{ProductID: e.product.ID, Quantity: 1, UnitPriceCents: 500}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if summaries.dels == 0 {
		t.Fatal("sale did not invalidate the summary cache")
	}
	refreshed, err := e.svc.DashboardSummary(e.asStaff(), e.main.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if refreshed.SalesCount != 1 {
		t.Fatalf("sales count = %d, want 1", refreshed.SalesCount)
	}
}

func TestLowStockResolvesDefaultStore(t *testing.T) {
	e := newEnv(t)
	e.stock(t, 1) // below minStock 2

	low, err := e.svc.GetLowStockItems(e.asStaff(), 0)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].StoreID != e.main.ID {
		t.Fatalf("low stock = %+v, want one row at the default store", low)
	}
}
