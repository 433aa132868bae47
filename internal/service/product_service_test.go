package service

import (
	"context"
	"errors"
	"testing"

	"apteka/internal/domain"
	"apteka/internal/repository"
)

func TestProductCreate_PharmacyOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)

	if _, err := f.products.Create(ctx, user(1), domain.Product{Name: "Aspirin", Price: 10}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user create: %v", err)
	}
	if _, err := f.products.Create(ctx, pharmacy(phID), domain.Product{Price: 10}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nameless product: %v", err)
	}
	if _, err := f.products.Create(ctx, pharmacy(phID), domain.Product{Name: "Aspirin", Price: -1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative price: %v", err)
	}
	if _, err := f.products.Create(ctx, pharmacy(999), domain.Product{Name: "Aspirin", Price: 10}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("unknown pharmacy: %v", err)
	}

	// pharmacy_id from the request body is ignored
	v, err := f.products.Create(ctx, pharmacy(phID), domain.Product{
		Name: "Aspirin", Category: "otc", Price: 10, StockQuantity: 25, PharmacyID: 777,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v.PharmacyID != phID {
		t.Fatalf("pharmacy id: %d", v.PharmacyID)
	}
	if v.StockStatus != domain.StockInStock {
		t.Fatalf("stock status: %s", v.StockStatus)
	}
}

func TestProductStockStatus_Derived(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)

	cases := []struct {
		stock int64
		want  domain.StockStatus
	}{
		{0, domain.StockOutOfStock},
		{1, domain.StockLowStock},
		{9, domain.StockLowStock},
		{10, domain.StockInStock},
		{100, domain.StockInStock},
	}
	for _, tc := range cases {
		id := f.seedProduct(t, phID, "Item", 1, tc.stock)
		v, err := f.products.GetByID(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if v.StockStatus != tc.want {
			t.Fatalf("stock %d: expected %s, got %s", tc.stock, tc.want, v.StockStatus)
		}
	}
}

func TestProductUpdateDelete_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	owner := f.seedPharmacy(t)
	other := f.seedPharmacy(t)
	id := f.seedProduct(t, owner, "Aspirin", 10, 5)

	upd := domain.Product{ID: id, Name: "Aspirin Forte", Category: "otc", Price: 12, StockQuantity: 7}
	if _, err := f.products.Update(ctx, pharmacy(other), upd); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign update: %v", err)
	}
	v, err := f.products.Update(ctx, pharmacy(owner), upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if v.Name != "Aspirin Forte" || v.Price != 12 || v.StockQuantity != 7 {
		t.Fatalf("update lost fields: %+v", v.Product)
	}

	if err := f.products.Delete(ctx, pharmacy(other), id); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign delete: %v", err)
	}
	if err := f.products.Delete(ctx, pharmacy(owner), id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.products.GetByID(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
}

func TestProductList_Filters(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ph1 := f.seedPharmacy(t)
	ph2 := f.seedPharmacy(t)
	f.seedProduct(t, ph1, "Aspirin", 10, 5)
	f.seedProduct(t, ph1, "Aspirin Forte", 15, 5)
	f.seedProduct(t, ph2, "Vitamin C", 5, 5)

	all, err := f.products.List(ctx, repository.ProductFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all: %d", len(all))
	}

	byName, err := f.products.List(ctx, repository.ProductFilter{NameSubstring: "aspirin"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 2 {
		t.Fatalf("name filter: %d", len(byName))
	}

	byPharmacy, err := f.products.List(ctx, repository.ProductFilter{PharmacyID: ph2})
	if err != nil {
		t.Fatal(err)
	}
	if len(byPharmacy) != 1 || byPharmacy[0].Name != "Vitamin C" {
		t.Fatalf("pharmacy filter: %+v", byPharmacy)
	}

	min := 12.0
	expensive, err := f.products.List(ctx, repository.ProductFilter{MinPrice: &min})
	if err != nil {
		t.Fatal(err)
	}
	if len(expensive) != 1 || expensive[0].Name != "Aspirin Forte" {
		t.Fatalf("price filter: %+v", expensive)
	}
}
