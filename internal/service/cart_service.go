package service

import (
	"context"
	"errors"
	"sort"

	"apteka/internal/domain"
	"apteka/internal/repository"
)

// CartView корзина вместе с количеством позиций
type CartView struct {
	Cart      domain.Cart `json:"cart"`
	ItemCount int         `json:"item_count"`
}

// SummaryItem позиция сводки корзины
type SummaryItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

// PharmacyGroup позиции одной аптеки внутри сводки
type PharmacyGroup struct {
	Pharmacy domain.Pharmacy `json:"pharmacy"`
	Items    []SummaryItem   `json:"items"`
	Subtotal float64         `json:"subtotal"`
}

// CartSummary сводка корзины, сгруппированная по аптекам
type CartSummary struct {
	ItemCount  int             `json:"item_count"`
	TotalPrice float64         `json:"total_price"`
	Pharmacies []PharmacyGroup `json:"pharmacies"`
}

// CartService поддерживает мягкое состояние намерений покупки: корзина
// самовосстанавливается при чтении, авторитетная проверка остатков
// происходит ещё раз при оформлении заказа.
type CartService struct {
	carts      repository.CartRepository
	products   repository.ProductRepository
	pharmacies repository.PharmacyRepository
	users      repository.UserRepository
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository, pharmacies repository.PharmacyRepository, users repository.UserRepository) *CartService {
	return &CartService{carts: carts, products: products, pharmacies: pharmacies, users: users}
}

func (s *CartService) loadOrCreate(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			cart = &domain.Cart{UserID: userID, Items: []domain.CartItem{}}
			if err := s.carts.Save(ctx, cart); err != nil {
				return nil, err
			}
			return cart, nil
		}
		return nil, err
	}
	return cart, nil
}

// revalidate выбрасывает недоступные позиции и пересчитывает сумму;
// возвращает true, если корзина изменилась
func (s *CartService) revalidate(ctx context.Context, cart *domain.Cart) (bool, error) {
	valid := make([]domain.CartItem, 0, len(cart.Items))
	var total float64
	for _, it := range cart.Items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue // silently pruned
			}
			return false, err
		}
		if !p.Purchasable(it.Quantity) {
			continue
		}
		total += p.Price * float64(it.Quantity)
		valid = append(valid, it)
	}
	changed := len(valid) != len(cart.Items) || cart.TotalPrice != total
	cart.Items = valid
	cart.TotalPrice = total
	return changed, nil
}

// recalcTotal пересчитывает сумму без выбрасывания позиций
func (s *CartService) recalcTotal(ctx context.Context, cart *domain.Cart) error {
	var total float64
	for _, it := range cart.Items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return err
		}
		if !p.Purchasable(it.Quantity) {
			continue
		}
		total += p.Price * float64(it.Quantity)
	}
	cart.TotalPrice = total
	return nil
}

// GetCart лениво создаёт корзину и возвращает её, сверив каждую позицию
// с текущим остатком; сохраняет только если что-то изменилось
func (s *CartService) GetCart(ctx context.Context, userID int64) (*CartView, error) {
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	changed, err := s.revalidate(ctx, cart)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.carts.Save(ctx, cart); err != nil {
			return nil, err
		}
	}
	return &CartView{Cart: *cart, ItemCount: len(cart.Items)}, nil
}

// AddItem добавляет товар; для уже лежащего в корзине товара количества
// складываются и сверяются с остатком
func (s *CartService) AddItem(ctx context.Context, userID, productID, qty int64) (*CartView, error) {
	if qty < 1 {
		return nil, ErrInvalidInput
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.StockQuantity == 0 {
		return nil, ErrOutOfStock
	}
	if p.StockQuantity < qty {
		return nil, &InsufficientStockError{ProductName: p.Name, Requested: qty, Available: p.StockQuantity}
	}

	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if idx := cart.FindItem(productID); idx >= 0 {
		newQty := cart.Items[idx].Quantity + qty
		if newQty > p.StockQuantity {
			// сообщаем, сколько единиц ещё можно добавить
			return nil, &InsufficientStockError{
				ProductName: p.Name,
				Requested:   qty,
				Available:   p.StockQuantity - cart.Items[idx].Quantity,
			}
		}
		cart.Items[idx].Quantity = newQty
	} else {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: qty})
	}

	if err := s.recalcTotal(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return &CartView{Cart: *cart, ItemCount: len(cart.Items)}, nil
}

// UpdateItem перезаписывает количество существующей позиции
func (s *CartService) UpdateItem(ctx context.Context, userID, productID, qty int64) (*CartView, error) {
	if qty < 1 {
		return nil, ErrInvalidInput
	}
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := cart.FindItem(productID)
	if idx < 0 {
		return nil, repository.ErrNotFound
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.StockQuantity == 0 {
		return nil, ErrOutOfStock
	}
	if p.StockQuantity < qty {
		return nil, &InsufficientStockError{ProductName: p.Name, Requested: qty, Available: p.StockQuantity}
	}
	cart.Items[idx].Quantity = qty
	if err := s.recalcTotal(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return &CartView{Cart: *cart, ItemCount: len(cart.Items)}, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) (*CartView, error) {
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	idx := cart.FindItem(productID)
	if idx < 0 {
		return nil, repository.ErrNotFound
	}
	cart.RemoveItemAt(idx)
	if err := s.recalcTotal(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return &CartView{Cart: *cart, ItemCount: len(cart.Items)}, nil
}

func (s *CartService) Clear(ctx context.Context, userID int64) (*CartView, error) {
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.Items = []domain.CartItem{}
	cart.TotalPrice = 0
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return &CartView{Cart: *cart, ItemCount: 0}, nil
}

// MoveToFavourites убирает позицию из корзины и добавляет товар в
// избранное; повторное добавление не создаёт дубликата
func (s *CartService) MoveToFavourites(ctx context.Context, userID, productID int64) error {
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	idx := cart.FindItem(productID)
	if idx < 0 {
		return repository.ErrNotFound
	}
	cart.RemoveItemAt(idx)
	if err := s.recalcTotal(ctx, cart); err != nil {
		return err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return err
	}
	return s.users.AddFavouriteProduct(ctx, userID, productID)
}

// Sync примиряет корзину, собранную клиентом офлайн, с серверной:
// недоступные товары пропускаются, количества обрезаются по остатку,
// при конфликте выигрывает большее
func (s *CartService) Sync(ctx context.Context, userID int64, localItems []domain.CartItem) (*CartView, error) {
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, local := range localItems {
		if local.Quantity < 1 {
			continue
		}
		p, err := s.products.GetByID(ctx, local.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if p.StockQuantity == 0 {
			continue
		}
		capped := local.Quantity
		if capped > p.StockQuantity {
			capped = p.StockQuantity
		}
		if idx := cart.FindItem(local.ProductID); idx >= 0 {
			if capped > cart.Items[idx].Quantity {
				cart.Items[idx].Quantity = capped
			}
		} else {
			cart.Items = append(cart.Items, domain.CartItem{ProductID: local.ProductID, Quantity: capped})
		}
	}
	if err := s.recalcTotal(ctx, cart); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, err
	}
	return &CartView{Cart: *cart, ItemCount: len(cart.Items)}, nil
}

// Summary сводка корзины по аптекам
func (s *CartService) Summary(ctx context.Context, userID int64) (*CartSummary, error) {
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &CartSummary{Pharmacies: []PharmacyGroup{}}, nil
		}
		return nil, err
	}

	groups := make(map[int64]*PharmacyGroup)
	summary := &CartSummary{Pharmacies: []PharmacyGroup{}}
	for _, it := range cart.Items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		g, ok := groups[p.PharmacyID]
		if !ok {
			ph, err := s.pharmacies.GetByID(ctx, p.PharmacyID)
			if err != nil {
				return nil, err
			}
			g = &PharmacyGroup{Pharmacy: *ph}
			groups[p.PharmacyID] = g
		}
		sub := p.Price * float64(it.Quantity)
		g.Items = append(g.Items, SummaryItem{
			ProductID: p.ID, Name: p.Name, Price: p.Price,
			Quantity: it.Quantity, Subtotal: sub,
		})
		g.Subtotal += sub
		summary.ItemCount++
		summary.TotalPrice += sub
	}

	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		summary.Pharmacies = append(summary.Pharmacies, *groups[id])
	}
	return summary, nil
}

// RemovePurchased чистит купленные позиции после оформления заказа;
// вызывается best-effort, отсутствие корзины не ошибка
func (s *CartService) RemovePurchased(ctx context.Context, userID int64, productIDs []int64) error {
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	purchased := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		purchased[id] = true
	}
	kept := cart.Items[:0]
	for _, it := range cart.Items {
		if !purchased[it.ProductID] {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(cart.Items) {
		return nil
	}
	cart.Items = kept
	if err := s.recalcTotal(ctx, cart); err != nil {
		return err
	}
	return s.carts.Save(ctx, cart)
}
