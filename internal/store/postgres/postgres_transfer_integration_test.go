package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"propos/internal/domain"
	"propos/internal/store"
)

func TestTransferMovesStockBetweenStores(t *testing.T) {
	databaseURL := os.Getenv("PROPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PROPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	sku := fmt.Sprintf("SKU-TRF-IT-%d", stamp)
	reference := fmt.Sprintf("TRF-IT-%d", stamp)

	source, err := s.CreateStore(ctx, domain.Store{Name: fmt.Sprintf("it-source-%d", stamp)})
	if err != nil {
		t.Fatalf("create source store: %v", err)
	}
	dest, err := s.CreateStore(ctx, domain.Store{Name: fmt.Sprintf("it-dest-%d", stamp)})
	if err != nil {
		t.Fatalf("create dest store: %v", err)
	}
	user, err := s.CreateUser(ctx, domain.User{
		Username: fmt.Sprintf("it-user-%d", stamp),
		Password: "x",
		Role:     domain.RoleStaff,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Name: "Transfer IT Widget", SKU: sku, PriceCents: 500, CostCents: 300, MinStock: 1, Active: true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transfer_items WHERE transfer_id IN (SELECT id FROM transfers WHERE reference = $1)`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transfers WHERE reference = $1`, reference)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id IN ($1, $2)`, source.ID, dest.ID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, store_id, quantity)
		VALUES ($1, $2, 9)
	`, product.ID, source.ID); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	_, err = s.CreateTransfer(ctx, domain.Transfer{
		Reference:   reference,
		FromStoreID: source.ID,
		ToStoreID:   dest.ID,
		UserID:      user.ID,
		Status:      domain.TransferStatusCompleted,
	}, []domain.TransferItem{{ProductID: product.ID, Quantity: 4}})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	sourceRow, err := s.GetInventory(ctx, product.ID, source.ID)
	if err != nil {
		t.Fatalf("source inventory: %v", err)
	}
	if sourceRow.Quantity != 5 {
		t.Fatalf("expected source quantity 5, got %d", sourceRow.Quantity)
	}
	destRow, err := s.GetInventory(ctx, product.ID, dest.ID)
	if err != nil {
		t.Fatalf("dest inventory: %v", err)
	}
	if destRow.Quantity != 4 {
		t.Fatalf("expected dest quantity 4, got %d", destRow.Quantity)
	}
}

func TestSaleStockCheckErrorKinds(t *testing.T) {
	databaseURL := os.Getenv("PROPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PROPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	shop, err := s.CreateStore(ctx, domain.Store{Name: fmt.Sprintf("it-sale-%d", stamp)})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	user, err := s.CreateUser(ctx, domain.User{
		Username: fmt.Sprintf("it-sale-user-%d", stamp),
		Password: "x",
		Role:     domain.RoleStaff,
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Name: "Sale IT Widget", SKU: fmt.Sprintf("SKU-SALE-IT-%d", stamp), PriceCents: 500, CostCents: 300, MinStock: 1, Active: true,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, shop.ID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, store_id, quantity)
		VALUES ($1, $2, 8)
	`, product.ID, shop.ID); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	// An unresolvable product id is a reference error, not a stock shortage.
	_, err = s.CreateSale(ctx, domain.Sale{
		InvoiceNumber: fmt.Sprintf("INV-IT-%d-A", stamp),
		UserID:        user.ID,
		StoreID:       shop.ID,
		PaymentMethod: "cash",
		Status:        domain.SaleStatusCompleted,
	}, []domain.SaleItem{{ProductID: -1, Quantity: 1, UnitPriceCents: 500, SubtotalCents: 500}})
	if !errors.Is(err, store.ErrInvalidReference) {
		t.Fatalf("unknown product err = %v, want ErrInvalidReference", err)
	}

	// Duplicate lines for one product are summed before the stock check.
	_, err = s.CreateSale(ctx, domain.Sale{
		InvoiceNumber: fmt.Sprintf("INV-IT-%d-B", stamp),
		UserID:        user.ID,
		StoreID:       shop.ID,
		PaymentMethod: "cash",
		Status:        domain.SaleStatusCompleted,
	}, []domain.SaleItem{
		{ProductID: product.ID, Quantity: 5, UnitPriceCents: 500, SubtotalCents: 2500},
		{ProductID: product.ID, Quantity: 5, UnitPriceCents: 500, SubtotalCents: 2500},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("duplicate-line oversell err = %v, want ErrInsufficientStock", err)
	}
	row, err := s.GetInventory(ctx, product.ID, shop.ID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if row.Quantity != 8 {
		t.Fatalf("quantity = %d, want 8 (nothing applied)", row.Quantity)
	}
}
