package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"propos/internal/domain"
	"propos/internal/store"
)

type Store struct {
	mu sync.RWMutex

	users         map[int64]domain.User
	stores        map[int64]domain.Store
	products      map[int64]domain.Product
	categories    map[int64]domain.Category
	units         map[int64]domain.Unit
	inventory     map[int64]domain.InventoryRow
	customers     map[int64]domain.Customer
	suppliers     map[int64]domain.Supplier
	sales         map[int64]domain.Sale
	saleItems     map[int64]domain.SaleItem
	purchases     map[int64]domain.Purchase
	purchaseItems map[int64]domain.PurchaseItem
	transfers     map[int64]domain.Transfer
	transferItems map[int64]domain.TransferItem

	nextID map[string]int64
}

func New() *Store {
	return &Store{
		users:         make(map[int64]domain.User),
		stores:        make(map[int64]domain.Store),
		products:      make(map[int64]domain.Product),
		categories:    make(map[int64]domain.Category),
		units:         make(map[int64]domain.Unit),
		inventory:     make(map[int64]domain.InventoryRow),
		customers:     make(map[int64]domain.Customer),
		suppliers:     make(map[int64]domain.Supplier),
		sales:         make(map[int64]domain.Sale),
		saleItems:     make(map[int64]domain.SaleItem),
		purchases:     make(map[int64]domain.Purchase),
		purchaseItems: make(map[int64]domain.PurchaseItem),
		transfers:     make(map[int64]domain.Transfer),
		transferItems: make(map[int64]domain.TransferItem),
		nextID:        make(map[string]int64),
	}
}

// NewSeeded builds a store preloaded with demo catalog data for dev mode.
// The admin password is read from SEED_ADMIN_PASSWORD; a hardcoded dev
// default is used with a warning when unset. These credentials are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	main, _ := s.CreateStore(ctx, domain.Store{Name: "Main Store", Address: "123 Main St, Anytown", Phone: "555-1234", Email: "main@propos.example", IsDefault: true})
	branch, _ := s.CreateStore(ctx, domain.Store{Name: "Riverside Branch", Address: "42 River Rd, Anytown", Phone: "555-5678", Email: "riverside@propos.example"})

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev admin credentials. Set SEED_ADMIN_PASSWORD to override.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed admin password: %v", err)
	}
	_, _ = s.CreateUser(ctx, domain.User{
		Username: "admin",
		Password: string(hash),
		FullName: "Admin User",
		Email:    "admin@propos.example",
		Role:     domain.RoleAdmin,
		StoreID:  main.ID,
		Active:   true,
	})

	groceries, _ := s.CreateCategory(ctx, domain.Category{Name: "Groceries", Description: "Food and grocery items"})
	electronics, _ := s.CreateCategory(ctx, domain.Category{Name: "Electronics", Description: "Electronic devices and accessories"})
	home, _ := s.CreateCategory(ctx, domain.Category{Name: "Home", Description: "Home goods and furniture"})

	piece, _ := s.CreateUnit(ctx, domain.Unit{Name: "Piece", ShortName: "pc"})
	kilogram, _ := s.CreateUnit(ctx, domain.Unit{Name: "Kilogram", ShortName: "kg"})
	liter, _ := s.CreateUnit(ctx, domain.Unit{Name: "Liter", ShortName: "L"})
	pack, _ := s.CreateUnit(ctx, domain.Unit{Name: "Pack", ShortName: "pack"})

	seedProducts := []domain.Product{
		{Name: "Organic Bananas", SKU: "PRD-001", Barcode: "123456789", Description: "Fresh organic bananas", PriceCents: 199, CostCents: 120, CategoryID: groceries.ID, UnitID: kilogram.ID, MinStock: 10, Active: true},
		{Name: "Whole Wheat Bread", SKU: "PRD-002", Barcode: "234567890", Description: "Whole grain bread", PriceCents: 349, CostCents: 200, CategoryID: groceries.ID, UnitID: piece.ID, MinStock: 15, Active: true},
		{Name: "Fresh Milk 1L", SKU: "PRD-003", Barcode: "345678901", Description: "Fresh whole milk", PriceCents: 299, CostCents: 180, CategoryID: groceries.ID, UnitID: liter.ID, MinStock: 25, Active: true},
		{Name: "Wireless Earbuds", SKU: "PRD-004", Barcode: "456789012", Description: "Bluetooth wireless earbuds", PriceCents: 4999, CostCents: 3000, CategoryID: electronics.ID, UnitID: piece.ID, MinStock: 5, Active: true},
		{Name: "Paper Towels", SKU: "PRD-005", Barcode: "567890123", Description: "Pack of 6 paper towel rolls", PriceCents: 899, CostCents: 550, CategoryID: home.ID, UnitID: pack.ID, MinStock: 20, Active: true},
	}
	quantities := []int{2, 3, 12, 10, 8}
	branchQuantities := []int{20, 18, 6, 2, 25}
	for i, p := range seedProducts {
		created, err := s.CreateProduct(ctx, p)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.upsertInventoryLocked(created.ID, main.ID, quantities[i])
		s.upsertInventoryLocked(created.ID, branch.ID, branchQuantities[i])
		s.mu.Unlock()
	}

	_, _ = s.CreateCustomer(ctx, domain.Customer{Name: "Michael Johnson", Phone: "555-1001", Email: "michael@example.com", Address: "456 Oak St", LoyaltyPoints: 120})
	_, _ = s.CreateCustomer(ctx, domain.Customer{Name: "Sarah Williams", Phone: "555-1002", Email: "sarah@example.com", Address: "789 Pine St", LoyaltyPoints: 85})
	_, _ = s.CreateSupplier(ctx, domain.Supplier{Name: "Global Foods Inc.", ContactPerson: "John Smith", Phone: "555-2001", Email: "orders@globalfoods.example", Address: "100 Industry Blvd"})
	_, _ = s.CreateSupplier(ctx, domain.Supplier{Name: "Tech Suppliers Ltd.", ContactPerson: "Lisa Wang", Phone: "555-2002", Email: "sales@techsuppliers.example", Address: "200 Commerce Dr"})

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// allocID must be called with the write lock held.
func (s *Store) allocID(kind string) int64 {
	s.nextID[kind]++
	return s.nextID[kind]
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, user := range s.users {
		if user.Username == username {
			copyUser := user
			return &copyUser, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return nil, store.ErrValidation
		}
	}
	if user.StoreID != 0 {
		if _, ok := s.stores[user.StoreID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}

	user.ID = s.allocID("user")
	s.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) UpdateUser(_ context.Context, id int64, req domain.UserUpdateRequest) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.StoreID != nil {
		if *req.StoreID != 0 {
			if _, ok := s.stores[*req.StoreID]; !ok {
				return nil, store.ErrInvalidReference
			}
		}
		user.StoreID = *req.StoreID
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	s.users[id] = user
	updated := user
	return &updated, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.User) int { return cmpInt64(a.ID, b.ID) })
	return users, nil
}

func (s *Store) GetStore(_ context.Context, id int64) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyStore := st
	return &copyStore, nil
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrValidation
	}
	if st.IsDefault {
		s.clearDefaultStoreLocked()
	}

	st.ID = s.allocID("store")
	s.stores[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) UpdateStore(_ context.Context, id int64, req domain.StoreUpdateRequest) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrValidation
		}
		st.Name = name
	}
	if req.Address != nil {
		st.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		st.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		st.Email = strings.TrimSpace(*req.Email)
	}
	if req.IsDefault != nil {
		if *req.IsDefault {
			s.clearDefaultStoreLocked()
		}
		st.IsDefault = *req.IsDefault
	}

	s.stores[id] = st
	updated := st
	return &updated, nil
}

// clearDefaultStoreLocked keeps at most one store flagged as default.
func (s *Store) clearDefaultStoreLocked() {
	for id, st := range s.stores {
		if st.IsDefault {
			st.IsDefault = false
			s.stores[id] = st
		}
	}
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int { return cmpInt64(a.ID, b.ID) })
	return stores, nil
}

func (s *Store) GetDefaultStore(_ context.Context) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.stores {
		if st.IsDefault {
			copyStore := st
			return &copyStore, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if product.SKU == sku {
			copyProduct := product
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if barcode == "" {
		return nil, store.ErrNotFound
	}
	for _, product := range s.products {
		if product.Barcode == barcode {
			copyProduct := product
			return &copyProduct, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	product.Name = strings.TrimSpace(product.Name)
	if product.SKU == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrValidation
	}
	for _, existing := range s.products {
		if existing.SKU == product.SKU {
			return nil, store.ErrValidation
		}
	}
	if product.CategoryID != 0 {
		if _, ok := s.categories[product.CategoryID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}
	if product.UnitID != 0 {
		if _, ok := s.units[product.UnitID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}

	product.ID = s.allocID("product")
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	// SKU is immutable once created; there is deliberately no field for it.
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrValidation
		}
		product.Name = name
	}
	if req.Barcode != nil {
		product.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return nil, store.ErrValidation
		}
		product.PriceCents = *req.PriceCents
	}
	if req.CostCents != nil {
		if *req.CostCents < 0 {
			return nil, store.ErrValidation
		}
		product.CostCents = *req.CostCents
	}
	if req.CategoryID != nil {
		if *req.CategoryID != 0 {
			if _, ok := s.categories[*req.CategoryID]; !ok {
				return nil, store.ErrInvalidReference
			}
		}
		product.CategoryID = *req.CategoryID
	}
	if req.UnitID != nil {
		if *req.UnitID != 0 {
			if _, ok := s.units[*req.UnitID]; !ok {
				return nil, store.ErrInvalidReference
			}
		}
		product.UnitID = *req.UnitID
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return nil, store.ErrValidation
		}
		product.MinStock = *req.MinStock
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	s.products[id] = product
	updated := product
	return &updated, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		products = append(products, product)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return cmpInt64(a.ID, b.ID) })
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Product, 0, 16)
	for _, product := range s.products {
		if query == "" ||
			strings.Contains(strings.ToLower(product.Name), query) ||
			strings.Contains(strings.ToLower(product.SKU), query) ||
			(product.Barcode != "" && strings.Contains(strings.ToLower(product.Barcode), query)) {
			result = append(result, product)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return cmpInt64(a.ID, b.ID) })
	return result, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrValidation
	}
	category.ID = s.allocID("category")
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, category := range s.categories {
		categories = append(categories, category)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return cmpInt64(a.ID, b.ID) })
	return categories, nil
}

func (s *Store) GetUnit(_ context.Context, id int64) (*domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.units[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyUnit := unit
	return &copyUnit, nil
}

func (s *Store) CreateUnit(_ context.Context, unit domain.Unit) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit.Name = strings.TrimSpace(unit.Name)
	unit.ShortName = strings.TrimSpace(unit.ShortName)
	if unit.Name == "" || unit.ShortName == "" {
		return nil, store.ErrValidation
	}
	unit.ID = s.allocID("unit")
	s.units[unit.ID] = unit
	created := unit
	return &created, nil
}

func (s *Store) ListUnits(_ context.Context) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]domain.Unit, 0, len(s.units))
	for _, unit := range s.units {
		units = append(units, unit)
	}
	slices.SortFunc(units, func(a, b domain.Unit) int { return cmpInt64(a.ID, b.ID) })
	return units, nil
}

func (s *Store) GetInventory(_ context.Context, productID int64, storeID int64) (*domain.InventoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.findInventoryLocked(productID, storeID)
	if !ok {
		return nil, store.ErrNotFound
	}
	copyRow := row
	return &copyRow, nil
}

func (s *Store) ListInventory(_ context.Context, storeID int64) ([]domain.InventoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.InventoryRow, 0, len(s.inventory))
	for _, row := range s.inventory {
		if storeID != 0 && row.StoreID != storeID {
			continue
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b domain.InventoryRow) int { return cmpInt64(a.ID, b.ID) })
	return rows, nil
}

func (s *Store) GetLowStockItems(_ context.Context, storeID int64) ([]domain.LowStockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.LowStockItem, 0, 16)
	for _, row := range s.inventory {
		if row.StoreID != storeID {
			continue
		}
		product, ok := s.products[row.ProductID]
		if !ok {
			continue
		}
		// Inclusive threshold: quantity exactly at minStock already counts.
		if row.Quantity <= product.MinStock {
			items = append(items, domain.LowStockItem{InventoryRow: row, Product: product})
		}
	}
	slices.SortFunc(items, func(a, b domain.LowStockItem) int { return cmpInt64(a.ID, b.ID) })
	return items, nil
}

// findInventoryLocked is the composite-key lookup; callers hold the lock.
func (s *Store) findInventoryLocked(productID int64, storeID int64) (domain.InventoryRow, bool) {
	for _, row := range s.inventory {
		if row.ProductID == productID && row.StoreID == storeID {
			return row, true
		}
	}
	return domain.InventoryRow{}, false
}

// upsertInventoryLocked adds delta to the (product, store) row, creating it
// when absent. It never creates duplicate rows for a pair; callers hold the
// write lock and have already checked the stock policy.
func (s *Store) upsertInventoryLocked(productID int64, storeID int64, delta int) {
	if row, ok := s.findInventoryLocked(productID, storeID); ok {
		row.Quantity += delta
		s.inventory[row.ID] = row
		return
	}
	row := domain.InventoryRow{
		ID:        s.allocID("inventory"),
		ProductID: productID,
		StoreID:   storeID,
		Quantity:  delta,
	}
	s.inventory[row.ID] = row
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	customer.ID = s.allocID("customer")
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, id int64, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrValidation
		}
		customer.Name = name
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		customer.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		customer.Address = strings.TrimSpace(*req.Address)
	}
	if req.LoyaltyPoints != nil {
		customer.LoyaltyPoints = *req.LoyaltyPoints
	}

	s.customers[id] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		customers = append(customers, customer)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return cmpInt64(a.ID, b.ID) })
	return customers, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Customer, 0, 16)
	for _, customer := range s.customers {
		if lower == "" ||
			strings.Contains(strings.ToLower(customer.Name), lower) ||
			(customer.Phone != "" && strings.Contains(customer.Phone, query)) ||
			(customer.Email != "" && strings.Contains(strings.ToLower(customer.Email), lower)) {
			result = append(result, customer)
		}
	}
	slices.SortFunc(result, func(a, b domain.Customer) int { return cmpInt64(a.ID, b.ID) })
	return result, nil
}

func (s *Store) GetSupplier(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrValidation
	}
	supplier.ID = s.allocID("supplier")
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(_ context.Context, id int64, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, store.ErrValidation
		}
		supplier.Name = name
	}
	if req.ContactPerson != nil {
		supplier.ContactPerson = strings.TrimSpace(*req.ContactPerson)
	}
	if req.Phone != nil {
		supplier.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		supplier.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		supplier.Address = strings.TrimSpace(*req.Address)
	}

	s.suppliers[id] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int { return cmpInt64(a.ID, b.ID) })
	return suppliers, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySale := sale
	return &copySale, nil
}

// CreateSale persists the header and its line items, then decreases source
// store stock per line. The whole workflow runs under one write lock: a
// failed validation leaves nothing behind.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale, items []domain.SaleItem) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 || sale.InvoiceNumber == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.sales {
		if existing.InvoiceNumber == sale.InvoiceNumber {
			return nil, store.ErrValidation
		}
	}
	if err := s.checkSaleRefsLocked(sale); err != nil {
		return nil, err
	}
	needed := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrValidation
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrInvalidReference
		}
		needed[item.ProductID] += item.Quantity
	}
	// Stock is checked against the summed quantity per product, so a sale
	// listing the same product on several lines cannot slip past a per-line
	// check and drive the row negative.
	for productID, qty := range needed {
		row, ok := s.findInventoryLocked(productID, sale.StoreID)
		if !ok || row.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	sale.ID = s.allocID("sale")
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}
	s.sales[sale.ID] = sale

	for _, item := range items {
		item.ID = s.allocID("saleItem")
		item.SaleID = sale.ID
		s.saleItems[item.ID] = item
		s.upsertInventoryLocked(item.ProductID, sale.StoreID, -item.Quantity)
	}

	created := sale
	return &created, nil
}

func (s *Store) checkSaleRefsLocked(sale domain.Sale) error {
	if _, ok := s.stores[sale.StoreID]; !ok {
		return store.ErrInvalidReference
	}
	if _, ok := s.users[sale.UserID]; !ok {
		return store.ErrInvalidReference
	}
	if sale.CustomerID != 0 {
		if _, ok := s.customers[sale.CustomerID]; !ok {
			return store.ErrInvalidReference
		}
	}
	return nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, id int64, status string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status != sale.Status {
		if !store.ValidSaleTransition(sale.Status, status) {
			return nil, store.ErrValidation
		}
		sale.Status = status
		s.sales[id] = sale
	}
	updated := sale
	return &updated, nil
}

// ReverseSaleInventory restocks every line of a refunded sale. Status
// updates never touch inventory; this is the explicit compensation step, and
// it runs at most once per sale.
func (s *Store) ReverseSaleInventory(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusRefunded || sale.StockReversed {
		return nil, store.ErrValidation
	}

	for _, item := range s.saleItems {
		if item.SaleID != id {
			continue
		}
		s.upsertInventoryLocked(item.ProductID, sale.StoreID, item.Quantity)
	}
	sale.StockReversed = true
	s.sales[id] = sale
	updated := sale
	return &updated, nil
}

func (s *Store) ListSales(_ context.Context, storeID int64) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if storeID != 0 && sale.StoreID != storeID {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int { return cmpDateDesc(a.Date, b.Date, a.ID, b.ID) })
	return sales, nil
}

func (s *Store) GetSaleItems(_ context.Context, saleID int64) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.SaleItem, 0, 8)
	for _, item := range s.saleItems {
		if item.SaleID == saleID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.SaleItem) int { return cmpInt64(a.ID, b.ID) })
	return items, nil
}

func (s *Store) GetRecentSales(_ context.Context, storeID int64, limit int) ([]domain.SaleWithItems, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if storeID != 0 && sale.StoreID != storeID {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int { return cmpDateDesc(a.Date, b.Date, a.ID, b.ID) })
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}

	result := make([]domain.SaleWithItems, 0, len(sales))
	for _, sale := range sales {
		entry := domain.SaleWithItems{Sale: sale}
		for _, item := range s.saleItems {
			if item.SaleID == sale.ID {
				entry.Items = append(entry.Items, item)
			}
		}
		slices.SortFunc(entry.Items, func(a, b domain.SaleItem) int { return cmpInt64(a.ID, b.ID) })
		if sale.CustomerID != 0 {
			if customer, ok := s.customers[sale.CustomerID]; ok {
				copyCustomer := customer
				entry.Customer = &copyCustomer
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) GetPurchase(_ context.Context, id int64) (*domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyPurchase := purchase
	return &copyPurchase, nil
}

// CreatePurchase persists the header and items, then increases stock at the
// receiving store, creating inventory rows for first-ever (product, store)
// pairs.
func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase, items []domain.PurchaseItem) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 || purchase.Reference == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.purchases {
		if existing.Reference == purchase.Reference {
			return nil, store.ErrValidation
		}
	}
	if _, ok := s.stores[purchase.StoreID]; !ok {
		return nil, store.ErrInvalidReference
	}
	if _, ok := s.users[purchase.UserID]; !ok {
		return nil, store.ErrInvalidReference
	}
	if purchase.SupplierID != 0 {
		if _, ok := s.suppliers[purchase.SupplierID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}
	for _, item := range items {
		if item.Quantity < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrValidation
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrInvalidReference
		}
	}

	purchase.ID = s.allocID("purchase")
	if purchase.Date.IsZero() {
		purchase.Date = time.Now().UTC()
	}
	s.purchases[purchase.ID] = purchase

	for _, item := range items {
		item.ID = s.allocID("purchaseItem")
		item.PurchaseID = purchase.ID
		s.purchaseItems[item.ID] = item
		s.upsertInventoryLocked(item.ProductID, purchase.StoreID, item.Quantity)
	}

	created := purchase
	return &created, nil
}

func (s *Store) UpdatePurchaseStatus(_ context.Context, id int64, status string) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status != purchase.Status {
		if !store.ValidOrderTransition(purchase.Status, status) {
			return nil, store.ErrValidation
		}
		purchase.Status = status
		s.purchases[id] = purchase
	}
	updated := purchase
	return &updated, nil
}

func (s *Store) ReversePurchaseInventory(_ context.Context, id int64) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if purchase.Status != domain.PurchaseStatusCanceled || purchase.StockReversed {
		return nil, store.ErrValidation
	}
	needed := make(map[int64]int)
	for _, item := range s.purchaseItems {
		if item.PurchaseID != id {
			continue
		}
		needed[item.ProductID] += item.Quantity
	}
	for productID, qty := range needed {
		row, ok := s.findInventoryLocked(productID, purchase.StoreID)
		if !ok || row.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for _, item := range s.purchaseItems {
		if item.PurchaseID != id {
			continue
		}
		s.upsertInventoryLocked(item.ProductID, purchase.StoreID, -item.Quantity)
	}
	purchase.StockReversed = true
	s.purchases[id] = purchase
	updated := purchase
	return &updated, nil
}

func (s *Store) ListPurchases(_ context.Context, storeID int64) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchases := make([]domain.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		if storeID != 0 && purchase.StoreID != storeID {
			continue
		}
		purchases = append(purchases, purchase)
	}
	slices.SortFunc(purchases, func(a, b domain.Purchase) int { return cmpDateDesc(a.Date, b.Date, a.ID, b.ID) })
	return purchases, nil
}

func (s *Store) GetPurchaseItems(_ context.Context, purchaseID int64) ([]domain.PurchaseItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.PurchaseItem, 0, 8)
	for _, item := range s.purchaseItems {
		if item.PurchaseID == purchaseID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.PurchaseItem) int { return cmpInt64(a.ID, b.ID) })
	return items, nil
}

func (s *Store) GetTransfer(_ context.Context, id int64) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, ok := s.transfers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyTransfer := transfer
	return &copyTransfer, nil
}

// CreateTransfer moves stock between two stores: per line, the source row is
// decreased and the destination row increased (created when absent). Total
// units per product across all stores are conserved.
func (s *Store) CreateTransfer(_ context.Context, transfer domain.Transfer, items []domain.TransferItem) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 || transfer.Reference == "" {
		return nil, store.ErrValidation
	}
	if transfer.FromStoreID == transfer.ToStoreID {
		return nil, store.ErrSameStoreTransfer
	}
	for _, existing := range s.transfers {
		if existing.Reference == transfer.Reference {
			return nil, store.ErrValidation
		}
	}
	if _, ok := s.stores[transfer.FromStoreID]; !ok {
		return nil, store.ErrInvalidReference
	}
	if _, ok := s.stores[transfer.ToStoreID]; !ok {
		return nil, store.ErrInvalidReference
	}
	if _, ok := s.users[transfer.UserID]; !ok {
		return nil, store.ErrInvalidReference
	}
	needed := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.ErrInvalidReference
		}
		needed[item.ProductID] += item.Quantity
	}
	// Summed per product: duplicate lines for one product must not pass a
	// per-line check and leave the source row negative.
	for productID, qty := range needed {
		row, ok := s.findInventoryLocked(productID, transfer.FromStoreID)
		if !ok || row.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	transfer.ID = s.allocID("transfer")
	if transfer.Date.IsZero() {
		transfer.Date = time.Now().UTC()
	}
	s.transfers[transfer.ID] = transfer

	for _, item := range items {
		item.ID = s.allocID("transferItem")
		item.TransferID = transfer.ID
		s.transferItems[item.ID] = item
		s.upsertInventoryLocked(item.ProductID, transfer.FromStoreID, -item.Quantity)
		s.upsertInventoryLocked(item.ProductID, transfer.ToStoreID, item.Quantity)
	}

	created := transfer
	return &created, nil
}

func (s *Store) UpdateTransferStatus(_ context.Context, id int64, status string) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status != transfer.Status {
		if !store.ValidOrderTransition(transfer.Status, status) {
			return nil, store.ErrValidation
		}
		transfer.Status = status
		s.transfers[id] = transfer
	}
	updated := transfer
	return &updated, nil
}

func (s *Store) ReverseTransferInventory(_ context.Context, id int64) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, ok := s.transfers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferStatusCanceled || transfer.StockReversed {
		return nil, store.ErrValidation
	}
	needed := make(map[int64]int)
	for _, item := range s.transferItems {
		if item.TransferID != id {
			continue
		}
		needed[item.ProductID] += item.Quantity
	}
	for productID, qty := range needed {
		row, ok := s.findInventoryLocked(productID, transfer.ToStoreID)
		if !ok || row.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for _, item := range s.transferItems {
		if item.TransferID != id {
			continue
		}
		s.upsertInventoryLocked(item.ProductID, transfer.ToStoreID, -item.Quantity)
		s.upsertInventoryLocked(item.ProductID, transfer.FromStoreID, item.Quantity)
	}
	transfer.StockReversed = true
	s.transfers[id] = transfer
	updated := transfer
	return &updated, nil
}

func (s *Store) ListTransfers(_ context.Context, fromStoreID int64, toStoreID int64) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfers := make([]domain.Transfer, 0, len(s.transfers))
	for _, transfer := range s.transfers {
		if fromStoreID != 0 && transfer.FromStoreID != fromStoreID {
			continue
		}
		if toStoreID != 0 && transfer.ToStoreID != toStoreID {
			continue
		}
		transfers = append(transfers, transfer)
	}
	slices.SortFunc(transfers, func(a, b domain.Transfer) int { return cmpDateDesc(a.Date, b.Date, a.ID, b.ID) })
	return transfers, nil
}

func (s *Store) GetTransferItems(_ context.Context, transferID int64) ([]domain.TransferItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.TransferItem, 0, 8)
	for _, item := range s.transferItems {
		if item.TransferID == transferID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b domain.TransferItem) int { return cmpInt64(a.ID, b.ID) })
	return items, nil
}

func cmpInt64(a int64, b int64) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

// cmpDateDesc orders newest-date-first, breaking ties on descending id so
// listings are stable.
func cmpDateDesc(aDate time.Time, bDate time.Time, aID int64, bID int64) int {
	if aDate.Equal(bDate) {
		return cmpInt64(bID, aID)
	}
	if aDate.After(bDate) {
		return -1
	}
	return 1
}
