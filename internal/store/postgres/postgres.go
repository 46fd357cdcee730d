package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"propos/internal/domain"
	"propos/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, username, password, full_name, email, role, COALESCE(store_id, 0), active`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Username, &user.Password, &user.FullName, &user.Email, &user.Role, &user.StoreID, &user.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = lower($1)`, username))
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Username == "" || user.Password == "" {
		return nil, store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, full_name, email, role, store_id, active)
		VALUES (lower($1),$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, user.Username, user.Password, user.FullName, user.Email, user.Role, nullIfZero(user.StoreID), user.Active).Scan(&user.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	created := user
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (*domain.User, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.StoreID != nil {
		user.StoreID = *req.StoreID
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET full_name = $2, email = $3, role = $4, store_id = $5, active = $6
		WHERE id = $1
	`, id, user.FullName, user.Email, user.Role, nullIfZero(user.StoreID), user.Active)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.FullName, &user.Email, &user.Role, &user.StoreID, &user.Active); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

const storeColumns = `id, name, address, phone, email, is_default`

func scanStore(row interface{ Scan(...any) error }) (*domain.Store, error) {
	var st domain.Store
	err := row.Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &st.Email, &st.IsDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetStore(ctx context.Context, id int64) (*domain.Store, error) {
	return scanStore(s.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	if st.Name == "" {
		return nil, store.ErrValidation
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if st.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE stores SET is_default = false WHERE is_default`); err != nil {
			return nil, err
		}
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO stores (name, address, phone, email, is_default)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, st.Name, st.Address, st.Phone, st.Email, st.IsDefault).Scan(&st.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := st
	return &created, nil
}

func (s *Store) UpdateStore(ctx context.Context, id int64, req domain.StoreUpdateRequest) (*domain.Store, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	st, err := scanStore(tx.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, store.ErrValidation
		}
		st.Name = *req.Name
	}
	if req.Address != nil {
		st.Address = *req.Address
	}
	if req.Phone != nil {
		st.Phone = *req.Phone
	}
	if req.Email != nil {
		st.Email = *req.Email
	}
	if req.IsDefault != nil {
		if *req.IsDefault && !st.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE stores SET is_default = false WHERE is_default`); err != nil {
				return nil, err
			}
		}
		st.IsDefault = *req.IsDefault
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stores SET name = $2, address = $3, phone = $4, email = $5, is_default = $6
		WHERE id = $1
	`, id, st.Name, st.Address, st.Phone, st.Email, st.IsDefault)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 8)
	for rows.Next() {
		var st domain.Store
		if err := rows.Scan(&st.ID, &st.Name, &st.Address, &st.Phone, &st.Email, &st.IsDefault); err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

func (s *Store) GetDefaultStore(ctx context.Context) (*domain.Store, error) {
	return scanStore(s.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE is_default LIMIT 1`))
}

const productColumns = `id, name, sku, barcode, description, price_cents, cost_cents,
	COALESCE(category_id, 0), COALESCE(unit_id, 0), min_stock, active`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Description, &p.PriceCents, &p.CostCents, &p.CategoryID, &p.UnitID, &p.MinStock, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = upper($1)`, sku))
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE barcode = $1`, barcode))
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrValidation
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, sku, barcode, description, price_cents, cost_cents, category_id, unit_id, min_stock, active)
		VALUES ($1,upper($2),$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, sku
	`, product.Name, product.SKU, product.Barcode, product.Description, product.PriceCents, product.CostCents,
		nullIfZero(product.CategoryID), nullIfZero(product.UnitID), product.MinStock, product.Active).Scan(&product.ID, &product.SKU)
	if err != nil {
		return nil, mapConstraint(err)
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, store.ErrValidation
		}
		product.Name = *req.Name
	}
	if req.Barcode != nil {
		product.Barcode = *req.Barcode
	}
	if req.Description != nil {
		product.Description = *req.Description
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
		product.CategoryID = *req.CategoryID
	}
	if req.UnitID != nil {
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

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, description = $4, price_cents = $5, cost_cents = $6,
		    category_id = $7, unit_id = $8, min_stock = $9, active = $10
		WHERE id = $1
	`, id, product.Name, product.Barcode, product.Description, product.PriceCents, product.CostCents,
		nullIfZero(product.CategoryID), nullIfZero(product.UnitID), product.MinStock, product.Active)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Store) listProducts(ctx context.Context, where string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Description, &p.PriceCents, &p.CostCents, &p.CategoryID, &p.UnitID, &p.MinStock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, ``)
}

func (s *Store) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	pattern := "%" + query + "%"
	return s.listProducts(ctx, `WHERE name ILIKE $1 OR sku ILIKE $1 OR barcode ILIKE $1`, pattern)
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var category domain.Category
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description FROM categories WHERE id = $1`, id).
		Scan(&category.ID, &category.Name, &category.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Name == "" {
		return nil, store.ErrValidation
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description) VALUES ($1,$2) RETURNING id
	`, category.Name, category.Description).Scan(&category.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Description); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (s *Store) GetUnit(ctx context.Context, id int64) (*domain.Unit, error) {
	var unit domain.Unit
	err := s.db.QueryRowContext(ctx, `SELECT id, name, short_name FROM units WHERE id = $1`, id).
		Scan(&unit.ID, &unit.Name, &unit.ShortName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &unit, nil
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if unit.Name == "" || unit.ShortName == "" {
		return nil, store.ErrValidation
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO units (name, short_name) VALUES ($1,$2) RETURNING id
	`, unit.Name, unit.ShortName).Scan(&unit.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	created := unit
	return &created, nil
}

func (s *Store) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, short_name FROM units ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.Unit, 0, 8)
	for rows.Next() {
		var unit domain.Unit
		if err := rows.Scan(&unit.ID, &unit.Name, &unit.ShortName); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

func (s *Store) GetInventory(ctx context.Context, productID int64, storeID int64) (*domain.InventoryRow, error) {
	var row domain.InventoryRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, store_id, quantity FROM inventory
		WHERE product_id = $1 AND store_id = $2
	`, productID, storeID).Scan(&row.ID, &row.ProductID, &row.StoreID, &row.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

func (s *Store) ListInventory(ctx context.Context, storeID int64) ([]domain.InventoryRow, error) {
	query := `SELECT id, product_id, store_id, quantity FROM inventory ORDER BY id`
	args := []any{}
	if storeID != 0 {
		query = `SELECT id, product_id, store_id, quantity FROM inventory WHERE store_id = $1 ORDER BY id`
		args = append(args, storeID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.InventoryRow, 0, 64)
	for rows.Next() {
		var row domain.InventoryRow
		if err := rows.Scan(&row.ID, &row.ProductID, &row.StoreID, &row.Quantity); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetLowStockItems joins inventory against products with an inclusive
// threshold: quantity at or below min_stock is low. Read-only by design.
func (s *Store) GetLowStockItems(ctx context.Context, storeID int64) ([]domain.LowStockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.product_id, i.store_id, i.quantity,
		       p.id, p.name, p.sku, p.barcode, p.description, p.price_cents, p.cost_cents,
		       COALESCE(p.category_id, 0), COALESCE(p.unit_id, 0), p.min_stock, p.active
		FROM inventory i
		JOIN products p ON p.id = i.product_id
		WHERE i.store_id = $1 AND i.quantity <= p.min_stock
		ORDER BY i.id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.LowStockItem, 0, 16)
	for rows.Next() {
		var item domain.LowStockItem
		p := &item.Product
		if err := rows.Scan(&item.ID, &item.ProductID, &item.StoreID, &item.Quantity,
			&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Description, &p.PriceCents, &p.CostCents,
			&p.CategoryID, &p.UnitID, &p.MinStock, &p.Active); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, loyalty_points FROM customers WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.Address, &customer.LoyaltyPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, address, loyalty_points)
		VALUES ($1,$2,$3,$4,$5) RETURNING id
	`, customer.Name, customer.Phone, customer.Email, customer.Address, customer.LoyaltyPoints).Scan(&customer.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	customer := &domain.Customer{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, phone, email, address, loyalty_points FROM customers WHERE id = $1 FOR UPDATE
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.Address, &customer.LoyaltyPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, store.ErrValidation
		}
		customer.Name = *req.Name
	}
	if req.Phone != nil {
		customer.Phone = *req.Phone
	}
	if req.Email != nil {
		customer.Email = *req.Email
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.LoyaltyPoints != nil {
		customer.LoyaltyPoints = *req.LoyaltyPoints
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE customers SET name = $2, phone = $3, email = $4, address = $5, loyalty_points = $6
		WHERE id = $1
	`, id, customer.Name, customer.Phone, customer.Email, customer.Address, customer.LoyaltyPoints)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *Store) listCustomers(ctx context.Context, where string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, address, loyalty_points FROM customers `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.Address, &customer.LoyaltyPoints); err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, rows.Err()
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.listCustomers(ctx, ``)
}

func (s *Store) SearchCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	pattern := "%" + query + "%"
	return s.listCustomers(ctx, `WHERE name ILIKE $1 OR phone ILIKE $1 OR email ILIKE $1`, pattern)
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact_person, phone, email, address FROM suppliers WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.ContactPerson, &supplier.Phone, &supplier.Email, &supplier.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrValidation
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, contact_person, phone, email, address)
		VALUES ($1,$2,$3,$4,$5) RETURNING id
	`, supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email, supplier.Address).Scan(&supplier.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}
	created := supplier
	return &created, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, id int64, req domain.SupplierUpdateRequest) (*domain.Supplier, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	supplier := &domain.Supplier{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, contact_person, phone, email, address FROM suppliers WHERE id = $1 FOR UPDATE
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.ContactPerson, &supplier.Phone, &supplier.Email, &supplier.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, store.ErrValidation
		}
		supplier.Name = *req.Name
	}
	if req.ContactPerson != nil {
		supplier.ContactPerson = *req.ContactPerson
	}
	if req.Phone != nil {
		supplier.Phone = *req.Phone
	}
	if req.Email != nil {
		supplier.Email = *req.Email
	}
	if req.Address != nil {
		supplier.Address = *req.Address
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE suppliers SET name = $2, contact_person = $3, phone = $4, email = $5, address = $6
		WHERE id = $1
	`, id, supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email, supplier.Address)
	if err != nil {
		return nil, mapConstraint(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_person, phone, email, address FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.ContactPerson, &supplier.Phone, &supplier.Email, &supplier.Address); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, supplier)
	}
	return suppliers, rows.Err()
}

const saleColumns = `id, invoice_number, COALESCE(customer_id, 0), user_id, store_id, date,
	total_cents, discount_cents, tax_cents, payment_method, payment_status, status, stock_reversed`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerID, &sale.UserID, &sale.StoreID, &sale.Date,
		&sale.TotalCents, &sale.DiscountCents, &sale.TaxCents, &sale.PaymentMethod, &sale.PaymentStatus, &sale.Status, &sale.StockReversed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

// CreateSale runs header insert, item inserts, and stock decrements in one
// serializable transaction. Inventory rows are locked before the decrement so
// two concurrent sales of the last unit cannot both pass the stock check.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem) (*domain.Sale, error) {
	if len(items) == 0 || sale.InvoiceNumber == "" {
		return nil, store.ErrValidation
	}
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrValidation
		}
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Quantities are summed per product before the stock check so duplicate
	// lines for one product cannot each pass against the same pre-decrement
	// row. An unknown product is a reference error, not a stock shortage.
	needed := make(map[int64]int, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := needed[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		needed[item.ProductID] += item.Quantity
	}
	for _, productID := range order {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrInvalidReference
		}
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM inventory WHERE product_id = $1 AND store_id = $2 FOR UPDATE
		`, productID, sale.StoreID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInsufficientStock
		}
		if err != nil {
			return nil, err
		}
		if qty < needed[productID] {
			return nil, store.ErrInsufficientStock
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (invoice_number, customer_id, user_id, store_id, date,
			total_cents, discount_cents, tax_cents, payment_method, payment_status, status, stock_reversed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,false)
		RETURNING id
	`, sale.InvoiceNumber, nullIfZero(sale.CustomerID), sale.UserID, sale.StoreID, sale.Date,
		sale.TotalCents, sale.DiscountCents, sale.TaxCents, sale.PaymentMethod, sale.PaymentStatus, sale.Status).Scan(&sale.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, item.ProductID, item.Quantity, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return nil, mapConstraint(err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - $3
			WHERE product_id = $1 AND store_id = $2
		`, item.ProductID, sale.StoreID, item.Quantity)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, id int64, status string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := scanSale(tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if status != sale.Status {
		if !store.ValidSaleTransition(sale.Status, status) {
			return nil, store.ErrValidation
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, status); err != nil {
			return nil, err
		}
		sale.Status = status
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ReverseSaleInventory(ctx context.Context, id int64) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := scanSale(tx.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusRefunded || sale.StockReversed {
		return nil, store.ErrValidation
	}

	// GROUP BY so a sale carrying the same product on several lines produces
	// one upsert row per product; ON CONFLICT rejects duplicate keys within a
	// single statement.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, store_id, quantity)
		SELECT si.product_id, $2, SUM(si.quantity) FROM sale_items si WHERE si.sale_id = $1
		GROUP BY si.product_id
		ON CONFLICT (product_id, store_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity
	`, id, sale.StoreID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sales SET stock_reversed = true WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	sale.StockReversed = true
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, storeID int64) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales ORDER BY date DESC, id DESC`
	args := []any{}
	if storeID != 0 {
		query = `SELECT ` + saleColumns + ` FROM sales WHERE store_id = $1 ORDER BY date DESC, id DESC`
		args = append(args, storeID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerID, &sale.UserID, &sale.StoreID, &sale.Date,
			&sale.TotalCents, &sale.DiscountCents, &sale.TaxCents, &sale.PaymentMethod, &sale.PaymentStatus, &sale.Status, &sale.StockReversed); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) GetSaleItems(ctx context.Context, saleID int64) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price_cents, subtotal_cents
		FROM sale_items WHERE sale_id = $1 ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetRecentSales(ctx context.Context, storeID int64, limit int) ([]domain.SaleWithItems, error) {
	if limit < 1 {
		limit = 10
	}
	query := `SELECT ` + saleColumns + ` FROM sales ORDER BY date DESC, id DESC LIMIT $1`
	args := []any{limit}
	if storeID != 0 {
		query = `SELECT ` + saleColumns + ` FROM sales WHERE store_id = $2 ORDER BY date DESC, id DESC LIMIT $1`
		args = append(args, storeID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SaleWithItems, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNumber, &sale.CustomerID, &sale.UserID, &sale.StoreID, &sale.Date,
			&sale.TotalCents, &sale.DiscountCents, &sale.TaxCents, &sale.PaymentMethod, &sale.PaymentStatus, &sale.Status, &sale.StockReversed); err != nil {
			return nil, err
		}
		result = append(result, domain.SaleWithItems{Sale: sale})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		items, err := s.GetSaleItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Items = items
		if result[i].CustomerID != 0 {
			customer, err := s.GetCustomer(ctx, result[i].CustomerID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			result[i].Customer = customer
		}
	}
	return result, nil
}

const purchaseColumns = `id, reference, COALESCE(supplier_id, 0), user_id, store_id, date, total_cents, status, stock_reversed`

func scanPurchase(row interface{ Scan(...any) error }) (*domain.Purchase, error) {
	var purchase domain.Purchase
	err := row.Scan(&purchase.ID, &purchase.Reference, &purchase.SupplierID, &purchase.UserID, &purchase.StoreID,
		&purchase.Date, &purchase.TotalCents, &purchase.Status, &purchase.StockReversed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	return scanPurchase(s.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id))
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase, items []domain.PurchaseItem) (*domain.Purchase, error) {
	if len(items) == 0 || purchase.Reference == "" {
		return nil, store.ErrValidation
	}
	for _, item := range items {
		if item.Quantity < 1 || item.UnitCostCents < 0 {
			return nil, store.ErrValidation
		}
	}
	if purchase.Date.IsZero() {
		purchase.Date = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO purchases (reference, supplier_id, user_id, store_id, date, total_cents, status, stock_reversed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false)
		RETURNING id
	`, purchase.Reference, nullIfZero(purchase.SupplierID), purchase.UserID, purchase.StoreID,
		purchase.Date, purchase.TotalCents, purchase.Status).Scan(&purchase.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, quantity, unit_cost_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, purchase.ID, item.ProductID, item.Quantity, item.UnitCostCents, item.SubtotalCents)
		if err != nil {
			return nil, mapConstraint(err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, store_id, quantity)
			VALUES ($1,$2,$3)
			ON CONFLICT (product_id, store_id)
			DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity
		`, item.ProductID, purchase.StoreID, item.Quantity)
		if err != nil {
			return nil, mapConstraint(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := purchase
	return &created, nil
}

func (s *Store) UpdatePurchaseStatus(ctx context.Context, id int64, status string) (*domain.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	purchase, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if status != purchase.Status {
		if !store.ValidOrderTransition(purchase.Status, status) {
			return nil, store.ErrValidation
		}
		if _, err := tx.ExecContext(ctx, `UPDATE purchases SET status = $2 WHERE id = $1`, id, status); err != nil {
			return nil, err
		}
		purchase.Status = status
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return purchase, nil
}

func (s *Store) ReversePurchaseInventory(ctx context.Context, id int64) (*domain.Purchase, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	purchase, err := scanPurchase(tx.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if purchase.Status != domain.PurchaseStatusCanceled || purchase.StockReversed {
		return nil, store.ErrValidation
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM purchase_items WHERE purchase_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	type line struct {
		productID int64
		quantity  int
	}
	lines := make([]line, 0, 8)
	for itemRows.Next() {
		var l line
		if err := itemRows.Scan(&l.productID, &l.quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	needed := make(map[int64]int, len(lines))
	order := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := needed[l.productID]; !ok {
			order = append(order, l.productID)
		}
		needed[l.productID] += l.quantity
	}
	for _, productID := range order {
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM inventory WHERE product_id = $1 AND store_id = $2 FOR UPDATE
		`, productID, purchase.StoreID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && qty < needed[productID]) {
			return nil, store.ErrInsufficientStock
		}
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - $3
			WHERE product_id = $1 AND store_id = $2
		`, productID, purchase.StoreID, needed[productID])
		if err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE purchases SET stock_reversed = true WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	purchase.StockReversed = true
	return purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, storeID int64) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases ORDER BY date DESC, id DESC`
	args := []any{}
	if storeID != 0 {
		query = `SELECT ` + purchaseColumns + ` FROM purchases WHERE store_id = $1 ORDER BY date DESC, id DESC`
		args = append(args, storeID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 32)
	for rows.Next() {
		var purchase domain.Purchase
		if err := rows.Scan(&purchase.ID, &purchase.Reference, &purchase.SupplierID, &purchase.UserID, &purchase.StoreID,
			&purchase.Date, &purchase.TotalCents, &purchase.Status, &purchase.StockReversed); err != nil {
			return nil, err
		}
		purchases = append(purchases, purchase)
	}
	return purchases, rows.Err()
}

func (s *Store) GetPurchaseItems(ctx context.Context, purchaseID int64) ([]domain.PurchaseItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_id, product_id, quantity, unit_cost_cents, subtotal_cents
		FROM purchase_items WHERE purchase_id = $1 ORDER BY id
	`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.Quantity, &item.UnitCostCents, &item.SubtotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const transferColumns = `id, reference, from_store_id, to_store_id, user_id, date, status, stock_reversed`

func scanTransfer(row interface{ Scan(...any) error }) (*domain.Transfer, error) {
	var transfer domain.Transfer
	err := row.Scan(&transfer.ID, &transfer.Reference, &transfer.FromStoreID, &transfer.ToStoreID,
		&transfer.UserID, &transfer.Date, &transfer.Status, &transfer.StockReversed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) GetTransfer(ctx context.Context, id int64) (*domain.Transfer, error) {
	return scanTransfer(s.db.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id))
}

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.Transfer, items []domain.TransferItem) (*domain.Transfer, error) {
	if len(items) == 0 || transfer.Reference == "" {
		return nil, store.ErrValidation
	}
	if transfer.FromStoreID == transfer.ToStoreID {
		return nil, store.ErrSameStoreTransfer
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, store.ErrValidation
		}
	}
	if transfer.Date.IsZero() {
		transfer.Date = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Same aggregation as CreateSale: duplicate lines for one product are
	// checked against the summed quantity, and a missing product surfaces as
	// a reference error before any stock check.
	needed := make(map[int64]int, len(items))
	order := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := needed[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		needed[item.ProductID] += item.Quantity
	}
	for _, productID := range order {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrInvalidReference
		}
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM inventory WHERE product_id = $1 AND store_id = $2 FOR UPDATE
		`, productID, transfer.FromStoreID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrInsufficientStock
		}
		if err != nil {
			return nil, err
		}
		if qty < needed[productID] {
			return nil, store.ErrInsufficientStock
		}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO transfers (reference, from_store_id, to_store_id, user_id, date, status, stock_reversed)
		VALUES ($1,$2,$3,$4,$5,$6,false)
		RETURNING id
	`, transfer.Reference, transfer.FromStoreID, transfer.ToStoreID, transfer.UserID, transfer.Date, transfer.Status).Scan(&transfer.ID)
	if err != nil {
		return nil, mapConstraint(err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transfer_items (transfer_id, product_id, quantity)
			VALUES ($1,$2,$3)
		`, transfer.ID, item.ProductID, item.Quantity)
		if err != nil {
			return nil, mapConstraint(err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - $3
			WHERE product_id = $1 AND store_id = $2
		`, item.ProductID, transfer.FromStoreID, item.Quantity)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, store_id, quantity)
			VALUES ($1,$2,$3)
			ON CONFLICT (product_id, store_id)
			DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity
		`, item.ProductID, transfer.ToStoreID, item.Quantity)
		if err != nil {
			return nil, mapConstraint(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := transfer
	return &created, nil
}

func (s *Store) UpdateTransferStatus(ctx context.Context, id int64, status string) (*domain.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	transfer, err := scanTransfer(tx.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if status != transfer.Status {
		if !store.ValidOrderTransition(transfer.Status, status) {
			return nil, store.ErrValidation
		}
		if _, err := tx.ExecContext(ctx, `UPDATE transfers SET status = $2 WHERE id = $1`, id, status); err != nil {
			return nil, err
		}
		transfer.Status = status
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *Store) ReverseTransferInventory(ctx context.Context, id int64) (*domain.Transfer, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	transfer, err := scanTransfer(tx.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if transfer.Status != domain.TransferStatusCanceled || transfer.StockReversed {
		return nil, store.ErrValidation
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM transfer_items WHERE transfer_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	type line struct {
		productID int64
		quantity  int
	}
	lines := make([]line, 0, 8)
	for itemRows.Next() {
		var l line
		if err := itemRows.Scan(&l.productID, &l.quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	needed := make(map[int64]int, len(lines))
	order := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := needed[l.productID]; !ok {
			order = append(order, l.productID)
		}
		needed[l.productID] += l.quantity
	}
	for _, productID := range order {
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM inventory WHERE product_id = $1 AND store_id = $2 FOR UPDATE
		`, productID, transfer.ToStoreID).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && qty < needed[productID]) {
			return nil, store.ErrInsufficientStock
		}
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - $3
			WHERE product_id = $1 AND store_id = $2
		`, productID, transfer.ToStoreID, needed[productID])
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory (product_id, store_id, quantity)
			VALUES ($1,$2,$3)
			ON CONFLICT (product_id, store_id)
			DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity
		`, productID, transfer.FromStoreID, needed[productID])
		if err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE transfers SET stock_reversed = true WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	transfer.StockReversed = true
	return transfer, nil
}

func (s *Store) ListTransfers(ctx context.Context, fromStoreID int64, toStoreID int64) ([]domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers
		WHERE ($1 = 0 OR from_store_id = $1) AND ($2 = 0 OR to_store_id = $2)
		ORDER BY date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, fromStoreID, toStoreID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, 32)
	for rows.Next() {
		var transfer domain.Transfer
		if err := rows.Scan(&transfer.ID, &transfer.Reference, &transfer.FromStoreID, &transfer.ToStoreID,
			&transfer.UserID, &transfer.Date, &transfer.Status, &transfer.StockReversed); err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer)
	}
	return transfers, rows.Err()
}

func (s *Store) GetTransferItems(ctx context.Context, transferID int64) ([]domain.TransferItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transfer_id, product_id, quantity
		FROM transfer_items WHERE transfer_id = $1 ORDER BY id
	`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransferItem, 0, 8)
	for rows.Next() {
		var item domain.TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// mapConstraint folds postgres constraint violations into the sentinel
// errors: 23505 (unique) means a duplicate natural key, 23503 (foreign key)
// means the request referenced a row that does not exist.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrValidation
		case "23503":
			return store.ErrInvalidReference
		}
	}
	return err
}

func nullIfZero(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
