package domain

import "time"

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	StoreID  int64  `json:"store_id,omitempty"`
	Active   bool   `json:"active"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	StoreID  int64  `json:"store_id,omitempty"`
}

type UserUpdateRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	StoreID  *int64  `json:"store_id,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type Store struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	IsDefault bool   `json:"is_default"`
}

type StoreUpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Address   *string `json:"address,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Unit struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	Barcode     string `json:"barcode,omitempty"`
	Description string `json:"description,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	CostCents   int64  `json:"cost_cents"`
	CategoryID  int64  `json:"category_id,omitempty"`
	UnitID      int64  `json:"unit_id,omitempty"`
	MinStock    int    `json:"min_stock"`
	Active      bool   `json:"active"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Barcode     *string `json:"barcode,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	CostCents   *int64  `json:"cost_cents,omitempty"`
	CategoryID  *int64  `json:"category_id,omitempty"`
	UnitID      *int64  `json:"unit_id,omitempty"`
	MinStock    *int    `json:"min_stock,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// InventoryRow is the quantity-on-hand record for one product at one store.
// At most one row exists per (product, store) pair; only the transaction
// workflows mutate its quantity.
type InventoryRow struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	StoreID   int64 `json:"store_id"`
	Quantity  int   `json:"quantity"`
}

type LowStockItem struct {
	InventoryRow
	Product Product `json:"product"`
}

type Customer struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	LoyaltyPoints int    `json:"loyalty_points"`
}

type CustomerUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Email         *string `json:"email,omitempty"`
	Address       *string `json:"address,omitempty"`
	LoyaltyPoints *int    `json:"loyalty_points,omitempty"`
}

type Supplier struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
}

type SupplierUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	ContactPerson *string `json:"contact_person,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Email         *string `json:"email,omitempty"`
	Address       *string `json:"address,omitempty"`
}

type Sale struct {
	ID            int64     `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	CustomerID    int64     `json:"customer_id,omitempty"`
	UserID        int64     `json:"user_id"`
	StoreID       int64     `json:"store_id"`
	Date          time.Time `json:"date"`
	TotalCents    int64     `json:"total_cents"`
	DiscountCents int64     `json:"discount_cents"`
	TaxCents      int64     `json:"tax_cents"`
	PaymentMethod string    `json:"payment_method"`
	PaymentStatus string    `json:"payment_status"`
	Status        string    `json:"status"`
	StockReversed bool      `json:"stock_reversed"`
}

type SaleItem struct {
	ID             int64 `json:"id"`
	SaleID         int64 `json:"sale_id"`
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	SubtotalCents  int64 `json:"subtotal_cents"`
}

type SaleWithItems struct {
	Sale
	Items    []SaleItem `json:"items"`
	Customer *Customer  `json:"customer,omitempty"`
}

type Purchase struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	SupplierID    int64     `json:"supplier_id,omitempty"`
	UserID        int64     `json:"user_id"`
	StoreID       int64     `json:"store_id"`
	Date          time.Time `json:"date"`
	TotalCents    int64     `json:"total_cents"`
	Status        string    `json:"status"`
	StockReversed bool      `json:"stock_reversed"`
}

type PurchaseItem struct {
	ID            int64 `json:"id"`
	PurchaseID    int64 `json:"purchase_id"`
	ProductID     int64 `json:"product_id"`
	Quantity      int   `json:"quantity"`
	UnitCostCents int64 `json:"unit_cost_cents"`
	SubtotalCents int64 `json:"subtotal_cents"`
}

type PurchaseWithItems struct {
	Purchase
	Items    []PurchaseItem `json:"items"`
	Supplier *Supplier      `json:"supplier,omitempty"`
}

type Transfer struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	FromStoreID   int64     `json:"from_store_id"`
	ToStoreID     int64     `json:"to_store_id"`
	UserID        int64     `json:"user_id"`
	Date          time.Time `json:"date"`
	Status        string    `json:"status"`
	StockReversed bool      `json:"stock_reversed"`
}

type TransferItem struct {
	ID         int64 `json:"id"`
	TransferID int64 `json:"transfer_id"`
	ProductID  int64 `json:"product_id"`
	Quantity   int   `json:"quantity"`
}

type TransferWithItems struct {
	Transfer
	Items     []TransferItem `json:"items"`
	FromStore *Store         `json:"from_store,omitempty"`
	ToStore   *Store         `json:"to_store,omitempty"`
}

type SaleLineRequest struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

type SaleCreateRequest struct {
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	CustomerID    int64             `json:"customer_id,omitempty"`
	StoreID       int64             `json:"store_id"`
	Date          *time.Time        `json:"date,omitempty"`
	DiscountCents int64             `json:"discount_cents"`
	TaxCents      int64             `json:"tax_cents"`
	PaymentMethod string            `json:"payment_method"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	Status        string            `json:"status,omitempty"`
	Items         []SaleLineRequest `json:"items"`
}

type PurchaseLineRequest struct {
	ProductID     int64 `json:"product_id"`
	Quantity      int   `json:"quantity"`
	UnitCostCents int64 `json:"unit_cost_cents"`
}

type PurchaseCreateRequest struct {
	Reference  string                `json:"reference,omitempty"`
	SupplierID int64                 `json:"supplier_id,omitempty"`
	StoreID    int64                 `json:"store_id"`
	Date       *time.Time            `json:"date,omitempty"`
	Status     string                `json:"status,omitempty"`
	Items      []PurchaseLineRequest `json:"items"`
}

type TransferLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type TransferCreateRequest struct {
	Reference   string                `json:"reference,omitempty"`
	FromStoreID int64                 `json:"from_store_id"`
	ToStoreID   int64                 `json:"to_store_id"`
	Date        *time.Time            `json:"date,omitempty"`
	Status      string                `json:"status,omitempty"`
	Items       []TransferLineRequest `json:"items"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type DashboardSummary struct {
	StoreID             int64  `json:"store_id"`
	Date                string `json:"date"`
	SalesCount          int64  `json:"sales_count"`
	SalesTotalCents     int64  `json:"sales_total_cents"`
	PurchasesCount      int64  `json:"purchases_count"`
	PurchasesTotalCents int64  `json:"purchases_total_cents"`
	TransfersCount      int64  `json:"transfers_count"`
	LowStockCount       int    `json:"low_stock_count"`
	GeneratedAt         string `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	UserID      int64  `json:"user_id"`
	StoreID     int64  `json:"store_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID   int64
	Username string
	Role     string
}

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
)

const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusCanceled  = "canceled"
)

const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusCanceled  = "canceled"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
)
