package store

import (
	"context"
	"errors"

	"propos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidReference  = errors.New("invalid reference")
	ErrSameStoreTransfer = errors.New("transfer source and destination must differ")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Repository is the persistence contract for every entity plus the three
// inventory-affecting transaction workflows. CreateSale, CreatePurchase,
// CreateTransfer and the Reverse*Inventory operations are all-or-nothing:
// either the header, all line items, and every inventory delta are applied,
// or nothing is persisted.
type Repository interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	GetStore(ctx context.Context, id int64) (*domain.Store, error)
	CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	UpdateStore(ctx context.Context, id int64, req domain.StoreUpdateRequest) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)
	GetDefaultStore(ctx context.Context) (*domain.Store, error)

	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)

	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	GetUnit(ctx context.Context, id int64) (*domain.Unit, error)
	CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	ListUnits(ctx context.Context) ([]domain.Unit, error)

	// Inventory ledger. GetInventory is the composite-key lookup; storeID 0
	// in ListInventory means all stores.
	GetInventory(ctx context.Context, productID int64, storeID int64) (*domain.InventoryRow, error)
	ListInventory(ctx context.Context, storeID int64) ([]domain.InventoryRow, error)
	GetLowStockItems(ctx context.Context, storeID int64) ([]domain.LowStockItem, error)

	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	SearchCustomers(ctx context.Context, query string) ([]domain.Customer, error)

	GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, id int64, req domain.SupplierUpdateRequest) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem) (*domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, id int64, status string) (*domain.Sale, error)
	ReverseSaleInventory(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID int64) ([]domain.Sale, error)
	GetSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error)
	GetRecentSales(ctx context.Context, storeID int64, limit int) ([]domain.SaleWithItems, error)

	GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase, items []domain.PurchaseItem) (*domain.Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, id int64, status string) (*domain.Purchase, error)
	ReversePurchaseInventory(ctx context.Context, id int64) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, storeID int64) ([]domain.Purchase, error)
	GetPurchaseItems(ctx context.Context, purchaseID int64) ([]domain.PurchaseItem, error)

	GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error)
	CreateTransfer(ctx context.Context, transfer domain.Transfer, items []domain.TransferItem) (*domain.Transfer, error)
	UpdateTransferStatus(ctx context.Context, id int64, status string) (*domain.Transfer, error)
	ReverseTransferInventory(ctx context.Context, id int64) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, fromStoreID int64, toStoreID int64) ([]domain.Transfer, error)
	GetTransferItems(ctx context.Context, transferID int64) ([]domain.TransferItem, error)
}

// ValidSaleTransition reports whether a sale may move from one status to
// another. refunded is terminal; updating to the current status is a no-op
// handled by the caller.
func ValidSaleTransition(from string, to string) bool {
	switch from {
	case domain.SaleStatusPending:
		return to == domain.SaleStatusCompleted || to == domain.SaleStatusRefunded
	case domain.SaleStatusCompleted:
		return to == domain.SaleStatusRefunded
	default:
		return false
	}
}

// ValidOrderTransition covers purchases and transfers, which share one
// lifecycle. canceled is terminal.
func ValidOrderTransition(from string, to string) bool {
	if from != domain.PurchaseStatusPending {
		return false
	}
	return to == domain.PurchaseStatusCompleted || to == domain.PurchaseStatusCanceled
}
