package service

import (
	"context"
	"errors"
	"testing"

	"apteka/internal/domain"
	"apteka/internal/repository"

	"golang.org/x/sync/errgroup"
)

type fixture struct {
	store      *repository.MemoryStore
	pharmacies *repository.MemoryPharmacies
	users      *repository.MemoryUsers
	products   *ProductService
	cart       *CartService
	orders     *OrderService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	carts := repository.NewMemoryCarts(store)
	orders := repository.NewMemoryOrders(store)
	pharmacies := repository.NewMemoryPharmacies(store)
	users := repository.NewMemoryUsers(store)
	tx := repository.NewMemoryTx(store)

	cartSvc := NewCartService(carts, store, pharmacies, users)
	return &fixture{
		store:      store,
		pharmacies: pharmacies,
		users:      users,
		products:   NewProductService(store, pharmacies, 10),
		cart:       cartSvc,
		orders:     NewOrderService(store, orders, pharmacies, cartSvc, nil, tx, nil),
	}
}

func (f *fixture) seedPharmacy(t *testing.T) int64 {
	t.Helper()
	p := domain.Pharmacy{Name: "Central Pharmacy", Location: "Main St"}
	if err := f.pharmacies.Create(context.Background(), &p); err != nil {
		t.Fatalf("seed pharmacy: %v", err)
	}
	return p.ID
}

func (f *fixture) seedProduct(t *testing.T, pharmacyID int64, name string, price float64, stock int64) int64 {
	t.Helper()
	p := domain.Product{PharmacyID: pharmacyID, Name: name, Category: "otc", Price: price, StockQuantity: stock}
	if err := f.store.Create(context.Background(), &p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p.ID
}

func user(id int64) domain.Actor     { return domain.Actor{ID: id, Type: domain.ActorUser} }
func pharmacy(id int64) domain.Actor { return domain.Actor{ID: id, Type: domain.ActorPharmacy} }

func TestCreateOrder_FreezesPriceAndReservesStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID:      phID,
		Items:           []domain.CartItem{{ProductID: p1, Quantity: 2}},
		DeliveryAddress: "Main St 1",
		PaymentMethod:   "cash_on_delivery",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if o.TotalPrice != 20 {
		t.Fatalf("total expected 20, got %v", o.TotalPrice)
	}
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %s", o.Status)
	}
	if o.PaymentStatus != domain.PaymentPending {
		t.Fatalf("expected payment pending")
	}
	if o.OrderCode == "" {
		t.Fatalf("order code missing")
	}
	if o.EstimatedDelivery.IsZero() {
		t.Fatalf("estimated delivery missing")
	}
	if o.Items[0].PriceAtTime != 10 {
		t.Fatalf("price not frozen: %v", o.Items[0].PriceAtTime)
	}

	got, _ := f.store.GetByID(ctx, p1)
	if got.StockQuantity != 3 {
		t.Fatalf("stock expected 3, got %d", got.StockQuantity)
	}

	// price changes after purchase must not touch the snapshot
	got.Price = 99
	if err := f.store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	reloaded, err := f.orders.GetOrder(ctx, user(1), o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Items[0].PriceAtTime != 10 || reloaded.TotalPrice != 20 {
		t.Fatalf("snapshot mutated: %+v", reloaded.Items[0])
	}
}

func TestCreateOrder_PartialFailureRollsBackReservations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)
	p2 := f.seedProduct(t, phID, "Vitamin C", 5, 1)

	// p2 has only 1 in stock, so the order must fail after p1 was reserved
	_, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items: []domain.CartItem{
			{ProductID: p1, Quantity: 2},
			{ProductID: p2, Quantity: 3},
		},
	})
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	got1, _ := f.store.GetByID(ctx, p1)
	got2, _ := f.store.GetByID(ctx, p2)
	if got1.StockQuantity != 5 || got2.StockQuantity != 1 {
		t.Fatalf("stock not restored: %d %d", got1.StockQuantity, got2.StockQuantity)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	otherPh := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)
	foreign := f.seedProduct(t, otherPh, "Ibuprofen", 15, 5)
	empty := f.seedProduct(t, phID, "Bandage", 3, 0)

	cases := []struct {
		name string
		in   CreateOrderInput
		want error
	}{
		{"empty items", CreateOrderInput{PharmacyID: phID}, ErrEmptyOrder},
		{"zero quantity", CreateOrderInput{PharmacyID: phID, Items: []domain.CartItem{{ProductID: p1, Quantity: 0}}}, ErrInvalidInput},
		{"missing pharmacy", CreateOrderInput{PharmacyID: 999, Items: []domain.CartItem{{ProductID: p1, Quantity: 1}}}, repository.ErrNotFound},
		{"missing product", CreateOrderInput{PharmacyID: phID, Items: []domain.CartItem{{ProductID: 999, Quantity: 1}}}, repository.ErrNotFound},
		{"foreign product", CreateOrderInput{PharmacyID: phID, Items: []domain.CartItem{{ProductID: foreign, Quantity: 1}}}, ErrInvalidInput},
		{"out of stock", CreateOrderInput{PharmacyID: phID, Items: []domain.CartItem{{ProductID: empty, Quantity: 1}}}, ErrOutOfStock},
		{"duplicate product", CreateOrderInput{PharmacyID: phID, Items: []domain.CartItem{
			{ProductID: p1, Quantity: 1}, {ProductID: p1, Quantity: 2},
		}}, ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := f.orders.CreateOrder(ctx, user(1), tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	// rejected orders leave the ledger untouched
	if got, _ := f.store.GetByID(ctx, p1); got.StockQuantity != 5 {
		t.Fatalf("stock touched by rejected orders: %d", got.StockQuantity)
	}

	if _, err := f.orders.CreateOrder(ctx, pharmacy(phID), CreateOrderInput{
		PharmacyID: phID, Items: []domain.CartItem{{ProductID: p1, Quantity: 1}},
	}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("pharmacy actor must not create orders: %v", err)
	}
}

func TestCreateOrder_RemovesPurchasedFromCart(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)
	p2 := f.seedProduct(t, phID, "Vitamin C", 5, 5)

	if _, err := f.cart.AddItem(ctx, 1, p1, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, 1, p2, 1); err != nil {
		t.Fatal(err)
	}

	if _, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 2}},
	}); err != nil {
		t.Fatal(err)
	}

	view, err := f.cart.GetCart(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.ItemCount != 1 || view.Cart.Items[0].ProductID != p2 {
		t.Fatalf("cart cleanup wrong: %+v", view.Cart.Items)
	}
}

// Гонка за последние единицы: суммарно зарезервировано не больше остатка
func TestCreateOrder_Concurrent_NoOversell(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	const buyers = 20
	var g errgroup.Group
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		uid := int64(i + 1)
		g.Go(func() error {
			_, err := f.orders.CreateOrder(ctx, user(uid), CreateOrderInput{
				PharmacyID: phID,
				Items:      []domain.CartItem{{ProductID: p1, Quantity: 1}},
			})
			results <- err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrOutOfStock) {
			var insufficient *InsufficientStockError
			if !errors.As(err, &insufficient) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful orders, got %d", succeeded)
	}
	got, _ := f.store.GetByID(ctx, p1)
	if got.StockQuantity != 0 {
		t.Fatalf("stock expected 0, got %d", got.StockQuantity)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}

	cancelled, err := f.orders.CancelOrder(ctx, user(1), o.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancellationReason != "changed my mind" || cancelled.CancelledBy != "user" {
		t.Fatalf("cancel metadata: %+v", cancelled)
	}

	got, _ := f.store.GetByID(ctx, p1)
	if got.StockQuantity != 5 {
		t.Fatalf("stock expected 5, got %d", got.StockQuantity)
	}

	// second cancel is an invalid transition
	var invalid *InvalidTransitionError
	if _, err := f.orders.CancelOrder(ctx, user(1), o.ID, ""); !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCancelOrder_ConcurrentReleasesStockOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 1000)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}

	const callers = 8
	var g errgroup.Group
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			_, err := f.orders.CancelOrder(ctx, user(1), o.ID, "changed my mind")
			results <- err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var invalid *InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful cancel, got %d", succeeded)
	}
	got, _ := f.store.GetByID(ctx, p1)
	if got.StockQuantity != 1000 {
		t.Fatalf("stock expected 1000, got %d", got.StockQuantity)
	}
}

func TestCancelOrder_OwnershipAndConfirmed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.orders.CancelOrder(ctx, user(2), o.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger cancel: %v", err)
	}

	// confirmed orders can still be cancelled, by the pharmacy side too
	if _, err := f.orders.UpdateStatus(ctx, pharmacy(phID), o.ID, domain.OrderStatusConfirmed); err != nil {
		t.Fatal(err)
	}
	cancelled, err := f.orders.CancelOrder(ctx, pharmacy(phID), o.ID, "no courier available")
	if err != nil {
		t.Fatalf("pharmacy cancel of confirmed: %v", err)
	}
	if cancelled.CancelledBy != "pharmacy" {
		t.Fatalf("cancelledBy: %s", cancelled.CancelledBy)
	}
}

func TestDeclineOrder_PendingOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.orders.DeclineOrder(ctx, user(1), o.ID, "nope"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user decline: %v", err)
	}

	declined, err := f.orders.DeclineOrder(ctx, pharmacy(phID), o.ID, "prescription required")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != domain.OrderStatusDeclined || declined.DeclineReason != "prescription required" {
		t.Fatalf("decline metadata: %+v", declined)
	}
	if declined.CancelledBy != "pharmacy" {
		t.Fatalf("cancelledBy: %s", declined.CancelledBy)
	}
	got, _ := f.store.GetByID(ctx, p1)
	if got.StockQuantity != 5 {
		t.Fatalf("stock expected 5, got %d", got.StockQuantity)
	}

	// a confirmed order cannot be declined
	o2, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.UpdateStatus(ctx, pharmacy(phID), o2.ID, domain.OrderStatusConfirmed); err != nil {
		t.Fatal(err)
	}
	var invalid *InvalidTransitionError
	if _, err := f.orders.DeclineOrder(ctx, pharmacy(phID), o2.ID, ""); !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func deliver(t *testing.T, f *fixture, phID, orderID int64) {
	t.Helper()
	ctx := context.Background()
	steps := []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	}
	for _, st := range steps {
		if _, err := f.orders.UpdateStatus(ctx, pharmacy(phID), orderID, st); err != nil {
			t.Fatalf("transition to %s: %v", st, err)
		}
	}
}

func TestUpdateStatus_TransitionTable(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// user cannot drive the state machine
	if _, err := f.orders.UpdateStatus(ctx, user(1), o.ID, domain.OrderStatusConfirmed); !errors.Is(err, ErrForbidden) {
		t.Fatalf("user update: %v", err)
	}

	// pending -> shipped skips confirmed
	var invalid *InvalidTransitionError
	if _, err := f.orders.UpdateStatus(ctx, pharmacy(phID), o.ID, domain.OrderStatusShipped); !errors.As(err, &invalid) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	// cancellation goes through its own operation so stock gets released
	if _, err := f.orders.UpdateStatus(ctx, pharmacy(phID), o.ID, domain.OrderStatusCancelled); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cancel via status: %v", err)
	}

	deliver(t, f, phID, o.ID)
	got, err := f.orders.GetOrder(ctx, user(1), o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ActualDelivery == nil {
		t.Fatalf("actual delivery not stamped")
	}

	// delivered is terminal
	for _, st := range []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing, domain.OrderStatusShipped,
	} {
		if _, err := f.orders.UpdateStatus(ctx, pharmacy(phID), o.ID, st); !errors.As(err, &invalid) {
			t.Fatalf("delivered -> %s must fail, got %v", st, err)
		}
	}
}

func TestAddReview_OncePerDeliveredOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 5)

	o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
		PharmacyID: phID,
		Items:      []domain.CartItem{{ProductID: p1, Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// not delivered yet
	if _, err := f.orders.AddReview(ctx, user(1), o.ID, 5, "great"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("review before delivery: %v", err)
	}

	deliver(t, f, phID, o.ID)

	if _, err := f.orders.AddReview(ctx, user(1), o.ID, 6, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("rating 6: %v", err)
	}
	if _, err := f.orders.AddReview(ctx, pharmacy(phID), o.ID, 5, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("pharmacy review: %v", err)
	}

	reviewed, err := f.orders.AddReview(ctx, user(1), o.ID, 4, "fast delivery")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Review == nil || reviewed.Review.Rating != 4 {
		t.Fatalf("review not stored: %+v", reviewed.Review)
	}

	if _, err := f.orders.AddReview(ctx, user(1), o.ID, 5, "again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("second review: %v", err)
	}
}

func TestListOrders_And_Statistics(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	phID := f.seedPharmacy(t)
	p1 := f.seedProduct(t, phID, "Aspirin", 10, 100)

	var first *domain.Order
	for i := 0; i < 4; i++ {
		o, err := f.orders.CreateOrder(ctx, user(1), CreateOrderInput{
			PharmacyID: phID,
			Items:      []domain.CartItem{{ProductID: p1, Quantity: 1}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = o
		}
	}
	if _, err := f.orders.CancelOrder(ctx, user(1), first.ID, ""); err != nil {
		t.Fatal(err)
	}

	page, err := f.orders.ListOrders(ctx, user(1), ListOrdersInput{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Pagination.TotalOrders != 4 || page.Pagination.TotalPages != 2 || !page.Pagination.HasNextPage {
		t.Fatalf("pagination: %+v", page.Pagination)
	}
	if len(page.Orders) != 2 {
		t.Fatalf("page size: %d", len(page.Orders))
	}

	pending, err := f.orders.ListOrders(ctx, pharmacy(phID), ListOrdersInput{Status: domain.OrderStatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if pending.Pagination.TotalOrders != 3 {
		t.Fatalf("pending total: %d", pending.Pagination.TotalOrders)
	}

	stats, err := f.orders.Statistics(ctx, pharmacy(phID))
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalOrders != 4 {
		t.Fatalf("total orders: %d", stats.TotalOrders)
	}
	if stats.OrdersByStatus["pending"] != 3 || stats.OrdersByStatus["cancelled"] != 1 {
		t.Fatalf("by status: %+v", stats.OrdersByStatus)
	}
	// cancelled order does not count towards revenue
	if stats.TotalRevenue != 30 {
		t.Fatalf("revenue expected 30, got %v", stats.TotalRevenue)
	}
}
