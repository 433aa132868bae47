package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"apteka/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu              sync.RWMutex
	nextProdID      int64
	nextOrderID     int64
	nextCartID      int64
	nextPharmacyID  int64
	nextNotifID     int64
	productsByID    map[int64]domain.Product
	ordersByID      map[int64]domain.Order
	cartsByUser     map[int64]domain.Cart
	pharmaciesByID  map[int64]domain.Pharmacy
	favouritesByUsr map[int64][]int64
	notifsByTarget  map[int64][]domain.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProdID:      1,
		nextOrderID:     1,
		nextCartID:      1,
		nextPharmacyID:  1,
		nextNotifID:     1,
		productsByID:    make(map[int64]domain.Product),
		ordersByID:      make(map[int64]domain.Order),
		cartsByUser:     make(map[int64]domain.Cart),
		pharmaciesByID:  make(map[int64]domain.Pharmacy),
		favouritesByUsr: make(map[int64][]int64),
		notifsByTarget:  make(map[int64][]domain.Notification),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// Ensure interfaces
var _ ProductRepository = (*MemoryStore)(nil)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p.ID = m.nextProdID
	m.nextProdID++
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.productsByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		if f.Category != "" && !containsIgnoreCase(p.Category, f.Category) {
			continue
		}
		if f.PharmacyID != 0 && p.PharmacyID != f.PharmacyID {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ReserveStock условный декремент под общей блокировкой: проверка и
// списание неразделимы, два конкурентных резерва последней единицы
// не могут пройти оба
func (m *MemoryStore) ReserveStock(ctx context.Context, productID, qty int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[productID]
	if !ok {
		return ErrNotFound
	}
	if p.StockQuantity < qty {
		return ErrInsufficientStock
	}
	p.StockQuantity -= qty
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[productID] = p
	return nil
}

func (m *MemoryStore) ReleaseStock(ctx context.Context, productID, qty int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[productID]
	if !ok {
		return ErrNotFound
	}
	p.StockQuantity += qty
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[productID] = p
	return nil
}

// CartRepository implementation on wrapper type
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) GetByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.cartsByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp, nil
}

func (mc *MemoryCarts) Save(ctx context.Context, cart *domain.Cart) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	now := time.Now().UTC()
	if cart.ID == 0 {
		cart.ID = mc.store.nextCartID
		mc.store.nextCartID++
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now
	cp := *cart
	cp.Items = append([]domain.CartItem(nil), cart.Items...)
	mc.store.cartsByUser[cart.UserID] = cp
	return nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func copyOrder(o domain.Order) domain.Order {
	cp := o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.Review != nil {
		r := *o.Review
		cp.Review = &r
	}
	if o.ActualDelivery != nil {
		d := *o.ActualDelivery
		cp.ActualDelivery = &d
	}
	return cp
}

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	mo.store.ordersByID[o.ID] = copyOrder(*o)
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (mo *MemoryOrders) Update(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	if _, ok := mo.store.ordersByID[o.ID]; !ok {
		return ErrNotFound
	}
	o.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[o.ID] = copyOrder(*o)
	return nil
}

func matchOrder(o domain.Order, f OrderFilter) bool {
	if f.UserID != 0 && o.UserID != f.UserID {
		return false
	}
	if f.PharmacyID != 0 && o.PharmacyID != f.PharmacyID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, int64, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if matchOrder(o, f) {
			out = append(out, copyOrder(o))
		}
	}
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start >= len(out) {
			return []domain.Order{}, total, nil
		}
		end := start + f.PageSize
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, total, nil
}

func (mo *MemoryOrders) CountByStatus(ctx context.Context, f OrderFilter, status domain.OrderStatus) (int64, error) {
	f.Status = status
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	var n int64
	for _, o := range mo.store.ordersByID {
		if matchOrder(o, f) {
			n++
		}
	}
	return n, nil
}

func (mo *MemoryOrders) RevenueTotal(ctx context.Context, f OrderFilter) (float64, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	var total float64
	for _, o := range mo.store.ordersByID {
		if !matchOrder(o, f) {
			continue
		}
		if o.Status == domain.OrderStatusCancelled || o.Status == domain.OrderStatusDeclined {
			continue
		}
		total += o.TotalPrice
	}
	return total, nil
}

// UserRepository implementation on wrapper type
type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

var _ UserRepository = (*MemoryUsers)(nil)

func (mu *MemoryUsers) AddFavouriteProduct(ctx context.Context, userID, productID int64) error {
	mu.store.wlock(ctx)
	defer mu.store.wunlock(ctx)
	favs := mu.store.favouritesByUsr[userID]
	for _, id := range favs {
		if id == productID {
			return nil // idempotent
		}
	}
	mu.store.favouritesByUsr[userID] = append(favs, productID)
	return nil
}

func (mu *MemoryUsers) GetFavourites(ctx context.Context, userID int64) ([]int64, error) {
	mu.store.rlock(ctx)
	defer mu.store.runlock(ctx)
	return append([]int64(nil), mu.store.favouritesByUsr[userID]...), nil
}

// PharmacyRepository implementation on wrapper type
type MemoryPharmacies struct{ store *MemoryStore }

func NewMemoryPharmacies(store *MemoryStore) *MemoryPharmacies {
	return &MemoryPharmacies{store: store}
}

var _ PharmacyRepository = (*MemoryPharmacies)(nil)

func (mp *MemoryPharmacies) Create(ctx context.Context, p *domain.Pharmacy) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	p.ID = mp.store.nextPharmacyID
	mp.store.nextPharmacyID++
	p.CreatedAt = time.Now().UTC()
	mp.store.pharmaciesByID[p.ID] = *p
	return nil
}

func (mp *MemoryPharmacies) GetByID(ctx context.Context, id int64) (*domain.Pharmacy, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	p, ok := mp.store.pharmaciesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

// NotificationRepository implementation on wrapper type
type MemoryNotifications struct{ store *MemoryStore }

func NewMemoryNotifications(store *MemoryStore) *MemoryNotifications {
	return &MemoryNotifications{store: store}
}

var _ NotificationRepository = (*MemoryNotifications)(nil)

func (mn *MemoryNotifications) Create(ctx context.Context, n *domain.Notification) error {
	mn.store.wlock(ctx)
	defer mn.store.wunlock(ctx)
	n.ID = mn.store.nextNotifID
	mn.store.nextNotifID++
	n.CreatedAt = time.Now().UTC()
	mn.store.notifsByTarget[n.TargetID] = append(mn.store.notifsByTarget[n.TargetID], *n)
	return nil
}

func (mn *MemoryNotifications) ListByTarget(ctx context.Context, targetID int64) ([]domain.Notification, error) {
	mn.store.rlock(ctx)
	defer mn.store.runlock(ctx)
	list := mn.store.notifsByTarget[targetID]
	out := append([]domain.Notification(nil), list...)
	// newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (mn *MemoryNotifications) MarkRead(ctx context.Context, targetID, id int64) error {
	mn.store.wlock(ctx)
	defer mn.store.wunlock(ctx)
	list := mn.store.notifsByTarget[targetID]
	for i := range list {
		if list[i].ID == id {
			list[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Для in-memory используем блокировку записи и помечаем контекст, чтобы репозитории пропускали внутренние локи
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	ctx = context.WithValue(ctx, txKey{}, true)
	return fn(ctx)
}
