package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"propos/internal/cache"
	"propos/internal/domain"
	"propos/internal/refid"
	"propos/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ErrForbidden is returned when the acting user's role does not allow the
// operation.
var ErrForbidden = errors.New("insufficient role")

type Service struct {
	repo           store.Repository
	summaries      cache.SummaryCache
	defaultStoreID int64
	summaryTTL     time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, defaultStoreID int64, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 60 * time.Second
	}

	return &Service{
		repo:           repo,
		summaries:      summaries,
		defaultStoreID: defaultStoreID,
		summaryTTL:     summaryTTL,
	}
}

func (s *Service) requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrForbidden
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, ErrForbidden
}

// resolveStoreID falls back to the configured default store, then to the
// repository's default flag, when the request does not name one.
func (s *Service) resolveStoreID(ctx context.Context, storeID int64) (int64, error) {
	if storeID != 0 {
		return storeID, nil
	}
	if s.defaultStoreID != 0 {
		return s.defaultStoreID, nil
	}
	def, err := s.repo.GetDefaultStore(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, store.ErrInvalidReference
		}
		return 0, err
	}
	return def.ID, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) GetStore(ctx context.Context, id int64) (*domain.Store, error) {
	return s.repo.GetStore(ctx, id)
}

func (s *Service) GetDefaultStore(ctx context.Context) (*domain.Store, error) {
	return s.repo.GetDefaultStore(ctx)
}

func (s *Service) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.CreateStore(ctx, st)
}

func (s *Service) UpdateStore(ctx context.Context, id int64, req domain.StoreUpdateRequest) (*domain.Store, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.UpdateStore(ctx, id, req)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, query)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.repo.GetProductByBarcode(ctx, strings.TrimSpace(barcode))
}

func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	product.Name = strings.TrimSpace(product.Name)
	product.Active = true
	return s.repo.CreateProduct(ctx, product)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.UpdateProduct(ctx, id, req)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.CreateCategory(ctx, category)
}

func (s *Service) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx)
}

func (s *Service) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.CreateUnit(ctx, unit)
}

func (s *Service) ListInventory(ctx context.Context, storeID int64) ([]domain.InventoryRow, error) {
	return s.repo.ListInventory(ctx, storeID)
}

func (s *Service) GetInventory(ctx context.Context, productID int64, storeID int64) (*domain.InventoryRow, error) {
	resolved, err := s.resolveStoreID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetInventory(ctx, productID, resolved)
}

// GetLowStockItems always reads the live ledger; results are never cached.
func (s *Service) GetLowStockItems(ctx context.Context, storeID int64) ([]domain.LowStockItem, error) {
	resolved, err := s.resolveStoreID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetLowStockItems(ctx, resolved)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SearchCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	return s.repo.SearchCustomers(ctx, query)
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	return s.repo.CreateCustomer(ctx, customer)
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	return s.repo.UpdateCustomer(ctx, id, req)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	supplier.Name = strings.TrimSpace(supplier.Name)
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.UpdateSupplier(ctx, id, req)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, user)
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (*domain.User, error) {
	if _, err := s.requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.UpdateUser(ctx, id, req)
}

// CreateSale records a sale and decreases stock at the selling store. Totals
// are recomputed server-side from the line items; client-sent subtotals are
// ignored.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.SaleWithItems, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, store.ErrValidation
	}
	storeID, err := s.resolveStoreID(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	subtotal := int64(0)
	for _, line := range req.Items {
		if line.Quantity < 1 || line.UnitPriceCents < 0 {
			return nil, store.ErrValidation
		}
		lineTotal := int64(line.Quantity) * line.UnitPriceCents
		subtotal += lineTotal
		items = append(items, domain.SaleItem{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  lineTotal,
		})
	}
	if req.DiscountCents < 0 || req.TaxCents < 0 || req.DiscountCents > subtotal {
		return nil, store.ErrValidation
	}

	sale := domain.Sale{
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		CustomerID:    req.CustomerID,
		UserID:        actor.UserID,
		StoreID:       storeID,
		TotalCents:    subtotal - req.DiscountCents + req.TaxCents,
		DiscountCents: req.DiscountCents,
		TaxCents:      req.TaxCents,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		PaymentStatus: req.PaymentStatus,
		Status:        req.Status,
	}
	if sale.InvoiceNumber == "" {
		sale.InvoiceNumber = refid.Invoice()
	}
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = "cash"
	}
	if sale.PaymentStatus == "" {
		sale.PaymentStatus = "paid"
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusCompleted
	}
	if sale.Status != domain.SaleStatusCompleted && sale.Status != domain.SaleStatusPending {
		return nil, store.ErrValidation
	}
	if req.Date != nil {
		sale.Date = req.Date.UTC()
	}

	created, err := s.repo.CreateSale(ctx, sale, items)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, storeID)

	return s.GetSaleWithItems(ctx, created.ID)
}

func (s *Service) GetSaleWithItems(ctx context.Context, id int64) (*domain.SaleWithItems, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &domain.SaleWithItems{Sale: *sale, Items: items}
	if sale.CustomerID != 0 {
		customer, err := s.repo.GetCustomer(ctx, sale.CustomerID)
		if err == nil {
			result.Customer = customer
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return result, nil
}

func (s *Service) ListSales(ctx context.Context, storeID int64) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, storeID)
}

func (s *Service) GetRecentSales(ctx context.Context, storeID int64, limit int) ([]domain.SaleWithItems, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.repo.GetRecentSales(ctx, storeID, limit)
}

func (s *Service) UpdateSaleStatus(ctx context.Context, id int64, status string) (*domain.Sale, error) {
	if !isSaleStatus(status) {
		return nil, store.ErrValidation
	}
	sale, err := s.repo.UpdateSaleStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, sale.StoreID)
	return sale, nil
}

// ReverseSaleInventory restocks a refunded sale's lines. Manager or admin
// only; the repository enforces the exactly-once guarantee.
func (s *Service) ReverseSaleInventory(ctx context.Context, id int64) (*domain.Sale, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.ReverseSaleInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("[service] sale %d inventory reversed by %s", id, actor.Username)
	s.invalidateSummary(ctx, sale.StoreID)
	return sale, nil
}

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseCreateRequest) (*domain.PurchaseWithItems, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, store.ErrValidation
	}
	storeID, err := s.resolveStoreID(ctx, req.StoreID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.PurchaseItem, 0, len(req.Items))
	total := int64(0)
	for _, line := range req.Items {
		if line.Quantity < 1 || line.UnitCostCents < 0 {
			return nil, store.ErrValidation
		}
		lineTotal := int64(line.Quantity) * line.UnitCostCents
		total += lineTotal
		items = append(items, domain.PurchaseItem{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitCostCents: line.UnitCostCents,
			SubtotalCents: lineTotal,
		})
	}

	purchase := domain.Purchase{
		Reference:  strings.TrimSpace(req.Reference),
		SupplierID: req.SupplierID,
		UserID:     actor.UserID,
		StoreID:    storeID,
		TotalCents: total,
		Status:     req.Status,
	}
	if purchase.Reference == "" {
		purchase.Reference = refid.Purchase()
	}
	if purchase.Status == "" {
		purchase.Status = domain.PurchaseStatusCompleted
	}
	if purchase.Status != domain.PurchaseStatusCompleted && purchase.Status != domain.PurchaseStatusPending {
		return nil, store.ErrValidation
	}
	if req.Date != nil {
		purchase.Date = req.Date.UTC()
	}

	created, err := s.repo.CreatePurchase(ctx, purchase, items)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, storeID)

	return s.GetPurchaseWithItems(ctx, created.ID)
}

func (s *Service) GetPurchaseWithItems(ctx context.Context, id int64) (*domain.PurchaseWithItems, error) {
	purchase, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetPurchaseItems(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &domain.PurchaseWithItems{Purchase: *purchase, Items: items}
	if purchase.SupplierID != 0 {
		supplier, err := s.repo.GetSupplier(ctx, purchase.SupplierID)
		if err == nil {
			result.Supplier = supplier
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return result, nil
}

func (s *Service) ListPurchases(ctx context.Context, storeID int64) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, storeID)
}

func (s *Service) UpdatePurchaseStatus(ctx context.Context, id int64, status string) (*domain.Purchase, error) {
	if !isOrderStatus(status) {
		return nil, store.ErrValidation
	}
	purchase, err := s.repo.UpdatePurchaseStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, purchase.StoreID)
	return purchase, nil
}

func (s *Service) ReversePurchaseInventory(ctx context.Context, id int64) (*domain.Purchase, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	purchase, err := s.repo.ReversePurchaseInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("[service] purchase %d inventory reversed by %s", id, actor.Username)
	s.invalidateSummary(ctx, purchase.StoreID)
	return purchase, nil
}

func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (*domain.TransferWithItems, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	if len(req.Items) == 0 {
		return nil, store.ErrValidation
	}
	if req.FromStoreID == 0 || req.ToStoreID == 0 {
		return nil, store.ErrInvalidReference
	}
	if req.FromStoreID == req.ToStoreID {
		return nil, store.ErrSameStoreTransfer
	}

	items := make([]domain.TransferItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return nil, store.ErrValidation
		}
		items = append(items, domain.TransferItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	transfer := domain.Transfer{
		Reference:   strings.TrimSpace(req.Reference),
		FromStoreID: req.FromStoreID,
		ToStoreID:   req.ToStoreID,
		UserID:      actor.UserID,
		Status:      req.Status,
	}
	if transfer.Reference == "" {
		transfer.Reference = refid.Transfer()
	}
	if transfer.Status == "" {
		transfer.Status = domain.TransferStatusCompleted
	}
	if transfer.Status != domain.TransferStatusCompleted && transfer.Status != domain.TransferStatusPending {
		return nil, store.ErrValidation
	}
	if req.Date != nil {
		transfer.Date = req.Date.UTC()
	}

	created, err := s.repo.CreateTransfer(ctx, transfer, items)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, req.FromStoreID)
	s.invalidateSummary(ctx, req.ToStoreID)

	return s.GetTransferWithItems(ctx, created.ID)
}

func (s *Service) GetTransferWithItems(ctx context.Context, id int64) (*domain.TransferWithItems, error) {
	transfer, err := s.repo.GetTransfer(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetTransferItems(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &domain.TransferWithItems{Transfer: *transfer, Items: items}
	if from, err := s.repo.GetStore(ctx, transfer.FromStoreID); err == nil {
		result.FromStore = from
	}
	if to, err := s.repo.GetStore(ctx, transfer.ToStoreID); err == nil {
		result.ToStore = to
	}
	return result, nil
}

func (s *Service) ListTransfers(ctx context.Context, fromStoreID int64, toStoreID int64) ([]domain.Transfer, error) {
	return s.repo.ListTransfers(ctx, fromStoreID, toStoreID)
}

func (s *Service) UpdateTransferStatus(ctx context.Context, id int64, status string) (*domain.Transfer, error) {
	if !isOrderStatus(status) {
		return nil, store.ErrValidation
	}
	transfer, err := s.repo.UpdateTransferStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, transfer.FromStoreID)
	s.invalidateSummary(ctx, transfer.ToStoreID)
	return transfer, nil
}

func (s *Service) ReverseTransferInventory(ctx context.Context, id int64) (*domain.Transfer, error) {
	actor, err := s.requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return nil, err
	}
	transfer, err := s.repo.ReverseTransferInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("[service] transfer %d inventory reversed by %s", id, actor.Username)
	s.invalidateSummary(ctx, transfer.FromStoreID)
	s.invalidateSummary(ctx, transfer.ToStoreID)
	return transfer, nil
}

// DashboardSummary aggregates today's activity for one store. The rendered
// summary is cached under a per-store per-day key; low-stock data still comes
// from the live ledger on every call.
func (s *Service) DashboardSummary(ctx context.Context, storeID int64) (*domain.DashboardSummary, error) {
	resolved, err := s.resolveStoreID(ctx, storeID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	key := summaryKey(resolved, now)

	if cached, ok, err := s.summaries.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: summary cache read failed: %v", err)
	}

	summary, err := s.buildSummary(ctx, resolved, now)
	if err != nil {
		return nil, err
	}
	if err := s.summaries.Set(ctx, key, summary, s.summaryTTL); err != nil {
		log.Printf("[service] WARN: summary cache write failed: %v", err)
	}
	return summary, nil
}

func (s *Service) buildSummary(ctx context.Context, storeID int64, now time.Time) (*domain.DashboardSummary, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	inToday := func(t time.Time) bool {
		return !t.Before(dayStart) && t.Before(dayEnd)
	}

	summary := &domain.DashboardSummary{
		StoreID:     storeID,
		Date:        dayStart.Format("2006-01-02"),
		GeneratedAt: now.Format(time.RFC3339),
	}

	sales, err := s.repo.ListSales(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for _, sale := range sales {
		if !inToday(sale.Date) || sale.Status == domain.SaleStatusRefunded {
			continue
		}
		summary.SalesCount++
		summary.SalesTotalCents += sale.TotalCents
	}

	purchases, err := s.repo.ListPurchases(ctx, storeID)
	if err != nil {
		return nil, err
	}
	for _, purchase := range purchases {
		if !inToday(purchase.Date) || purchase.Status == domain.PurchaseStatusCanceled {
			continue
		}
		summary.PurchasesCount++
		summary.PurchasesTotalCents += purchase.TotalCents
	}

	transfers, err := s.repo.ListTransfers(ctx, storeID, 0)
	if err != nil {
		return nil, err
	}
	for _, transfer := range transfers {
		if inToday(transfer.Date) && transfer.Status != domain.TransferStatusCanceled {
			summary.TransfersCount++
		}
	}

	low, err := s.repo.GetLowStockItems(ctx, storeID)
	if err != nil {
		return nil, err
	}
	summary.LowStockCount = len(low)

	return summary, nil
}

func (s *Service) invalidateSummary(ctx context.Context, storeID int64) {
	key := summaryKey(storeID, time.Now().UTC())
	if err := s.summaries.Invalidate(ctx, key); err != nil {
		log.Printf("[service] WARN: summary cache invalidate failed: %v", err)
	}
}

func summaryKey(storeID int64, now time.Time) string {
	return fmt.Sprintf("dashboard:%d:%s", storeID, now.Format("2006-01-02"))
}

func isSaleStatus(status string) bool {
	switch status {
	case domain.SaleStatusPending, domain.SaleStatusCompleted, domain.SaleStatusRefunded:
		return true
	}
	return false
}

func isOrderStatus(status string) bool {
	switch status {
	case domain.PurchaseStatusPending, domain.PurchaseStatusCompleted, domain.PurchaseStatusCanceled:
		return true
	}
	return false
}
