package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"apteka/internal/domain"
	"apteka/internal/notify"
	"apteka/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OrderService реализует машину состояний заказа: создание с резервом
// остатков, отмену и отклонение с возвратом, переходы статусов, отзыв
type OrderService struct {
	products   repository.ProductRepository
	orders     repository.OrderRepository
	pharmacies repository.PharmacyRepository
	cart       *CartService
	notifier   notify.Notifier
	tx         repository.TxManager
	logger     *zap.Logger
}

func NewOrderService(
	products repository.ProductRepository,
	orders repository.OrderRepository,
	pharmacies repository.PharmacyRepository,
	cart *CartService,
	notifier notify.Notifier,
	tx repository.TxManager,
	logger *zap.Logger,
) *OrderService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		products:   products,
		orders:     orders,
		pharmacies: pharmacies,
		cart:       cart,
		notifier:   notifier,
		tx:         tx,
		logger:     logger,
	}
}

// CreateOrderInput запрос на оформление заказа
type CreateOrderInput struct {
	PharmacyID      int64
	Items           []domain.CartItem
	DeliveryAddress string
	DeliveryType    domain.DeliveryType
	PaymentMethod   string
	Notes           string
}

func generateOrderCode() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}

// CreateOrder проверяет каждую позицию, фиксирует текущие цены и
// атомарно резервирует остатки. Если резерв очередной позиции не
// прошёл, уже списанные количества возвращаются до выхода с ошибкой —
// частичный резерв никогда не остаётся висеть.
func (s *OrderService) CreateOrder(ctx context.Context, actor domain.Actor, in CreateOrderInput) (*domain.Order, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if !actor.IsUser() {
		return nil, ErrForbidden
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if in.DeliveryType == "" {
		in.DeliveryType = domain.DeliveryTypeDelivery
	}
	if in.DeliveryType != domain.DeliveryTypePickup && in.DeliveryType != domain.DeliveryTypeDelivery {
		return nil, ErrInvalidInput
	}

	if _, err := s.pharmacies.GetByID(ctx, in.PharmacyID); err != nil {
		return nil, err
	}

	// validate items and freeze prices
	orderItems := make([]domain.OrderItem, 0, len(in.Items))
	seen := make(map[int64]bool, len(in.Items))
	var totalPrice float64
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return nil, ErrInvalidInput
		}
		if seen[it.ProductID] {
			return nil, fmt.Errorf("%w: duplicate product in order items", ErrInvalidInput)
		}
		seen[it.ProductID] = true
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.PharmacyID != in.PharmacyID {
			return nil, fmt.Errorf("%w: product %q does not belong to this pharmacy", ErrInvalidInput, p.Name)
		}
		if p.StockQuantity == 0 {
			return nil, ErrOutOfStock
		}
		if p.StockQuantity < it.Quantity {
			return nil, &InsufficientStockError{ProductName: p.Name, Requested: it.Quantity, Available: p.StockQuantity}
		}
		orderItems = append(orderItems, domain.OrderItem{
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			PriceAtTime: p.Price,
		})
		totalPrice += p.Price * float64(it.Quantity)
	}

	// reserve stock item by item; roll back on first failure
	reserved := make([]domain.OrderItem, 0, len(orderItems))
	for _, it := range orderItems {
		if err := s.products.ReserveStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.releaseAll(ctx, reserved)
			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, s.insufficientStock(ctx, it.ProductID, it.Quantity)
			}
			return nil, err
		}
		reserved = append(reserved, it)
	}

	days := 3
	if in.DeliveryType == domain.DeliveryTypePickup {
		days = 1
	}
	order := &domain.Order{
		OrderCode:         generateOrderCode(),
		UserID:            actor.ID,
		PharmacyID:        in.PharmacyID,
		Items:             orderItems,
		TotalPrice:        totalPrice,
		Status:            domain.OrderStatusPending,
		DeliveryAddress:   in.DeliveryAddress,
		DeliveryType:      in.DeliveryType,
		PaymentMethod:     in.PaymentMethod,
		PaymentStatus:     domain.PaymentPending,
		EstimatedDelivery: time.Now().UTC().AddDate(0, 0, days),
		Notes:             in.Notes,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		// заказ не записан — возвращаем резерв
		s.releaseAll(ctx, reserved)
		return nil, err
	}

	// купленное уходит из корзины best-effort: заказ уже создан
	if s.cart != nil {
		ids := make([]int64, len(orderItems))
		for i, it := range orderItems {
			ids[i] = it.ProductID
		}
		if err := s.cart.RemovePurchased(ctx, actor.ID, ids); err != nil {
			s.logger.Warn("cart cleanup after checkout failed",
				zap.Int64("user_id", actor.ID),
				zap.String("order_code", order.OrderCode),
				zap.Error(err))
		}
	}

	s.notifier.Notify(ctx, order.PharmacyID, "New Order",
		fmt.Sprintf("Order #%s has been placed and is waiting for confirmation.", order.OrderCode))
	return order, nil
}

func (s *OrderService) releaseAll(ctx context.Context, items []domain.OrderItem) {
	for _, it := range items {
		if err := s.products.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			s.logger.Error("stock release failed",
				zap.Int64("product_id", it.ProductID),
				zap.Int64("quantity", it.Quantity),
				zap.Error(err))
		}
	}
}

func (s *OrderService) insufficientStock(ctx context.Context, productID, requested int64) error {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if p.StockQuantity == 0 {
		return ErrOutOfStock
	}
	return &InsufficientStockError{ProductName: p.Name, Requested: requested, Available: p.StockQuantity}
}

func (s *OrderService) getOwned(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	owns := (actor.IsUser() && o.UserID == actor.ID) ||
		(actor.IsPharmacy() && o.PharmacyID == actor.ID)
	if !owns {
		return nil, ErrForbidden
	}
	return o, nil
}

// GetOrder возвращает заказ владельцу — пользователю или аптеке
func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, orderID int64) (*domain.Order, error) {
	if orderID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.getOwned(ctx, actor, orderID)
}

// ListOrdersInput параметры выборки заказов актора
type ListOrdersInput struct {
	Status   domain.OrderStatus
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Pagination метаданные страничной навигации
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalOrders int64 `json:"total_orders"`
	HasNextPage bool  `json:"has_next_page"`
	HasPrevPage bool  `json:"has_prev_page"`
}

// OrderPage страница заказов
type OrderPage struct {
	Orders     []domain.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

// ListOrders заказы текущего актора: пользователь видит свои покупки,
// аптека — свои продажи
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor, in ListOrdersInput) (*OrderPage, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if in.Status != "" && !domain.ValidStatus(in.Status) {
		return nil, ErrInvalidInput
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.PageSize < 1 {
		in.PageSize = 10
	}
	f := repository.OrderFilter{
		Status:   in.Status,
		From:     in.From,
		To:       in.To,
		Page:     in.Page,
		PageSize: in.PageSize,
	}
	if actor.IsPharmacy() {
		f.PharmacyID = actor.ID
	} else {
		f.UserID = actor.ID
	}
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + int64(in.PageSize) - 1) / int64(in.PageSize))
	return &OrderPage{
		Orders: orders,
		Pagination: Pagination{
			CurrentPage: in.Page,
			TotalPages:  totalPages,
			TotalOrders: total,
			HasNextPage: in.Page < totalPages,
			HasPrevPage: in.Page > 1,
		},
	}, nil
}

// CancelOrder отмена владельцем (любой стороной) пока заказ pending или
// confirmed; остатки возвращаются в реестр в той же транзакции
func (s *OrderService) CancelOrder(ctx context.Context, actor domain.Actor, orderID int64, reason string) (*domain.Order, error) {
	var o *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		// статус перечитывается внутри транзакции: параллельная отмена не
		// должна вернуть остатки дважды
		o, err = s.getOwned(ctx, actor, orderID)
		if err != nil {
			return err
		}
		if !o.CanBeCancelled() {
			return &InvalidTransitionError{From: o.Status, To: domain.OrderStatusCancelled}
		}
		for _, it := range o.Items {
			if err := s.products.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		o.Status = domain.OrderStatusCancelled
		o.CancellationReason = reason
		o.CancelledBy = string(actor.Type)
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	target := o.PharmacyID
	if actor.IsPharmacy() {
		target = o.UserID
	}
	msg := fmt.Sprintf("Order #%s has been cancelled.", o.OrderCode)
	if reason != "" {
		msg = fmt.Sprintf("Order #%s has been cancelled. Reason: %s", o.OrderCode, reason)
	}
	s.notifier.Notify(ctx, target, "Order Cancelled", msg)
	return o, nil
}

// DeclineOrder аптека отклоняет ещё не подтверждённый заказ
func (s *OrderService) DeclineOrder(ctx context.Context, actor domain.Actor, orderID int64, reason string) (*domain.Order, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if !actor.IsPharmacy() {
		return nil, ErrForbidden
	}
	var o *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.getOwned(ctx, actor, orderID)
		if err != nil {
			return err
		}
		if !o.CanBeDeclined() {
			return &InvalidTransitionError{From: o.Status, To: domain.OrderStatusDeclined}
		}
		for _, it := range o.Items {
			if err := s.products.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		o.Status = domain.OrderStatusDeclined
		o.DeclineReason = reason
		o.CancelledBy = string(domain.ActorPharmacy)
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, o.UserID, "Order Declined",
		fmt.Sprintf("Order #%s has been declined by the pharmacy.", o.OrderCode))
	return o, nil
}

// UpdateStatus переход по таблице; отмена и отклонение идут только через
// свои операции, потому что требуют возврата остатков
func (s *OrderService) UpdateStatus(ctx context.Context, actor domain.Actor, orderID int64, newStatus domain.OrderStatus) (*domain.Order, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if !actor.IsPharmacy() {
		return nil, ErrForbidden
	}
	if !domain.ValidStatus(newStatus) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, newStatus)
	}
	if newStatus == domain.OrderStatusCancelled || newStatus == domain.OrderStatusDeclined {
		return nil, fmt.Errorf("%w: use the cancel or decline operation", ErrInvalidInput)
	}
	var o *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.getOwned(ctx, actor, orderID)
		if err != nil {
			return err
		}
		if !domain.CanTransition(o.Status, newStatus) {
			return &InvalidTransitionError{From: o.Status, To: newStatus}
		}
		o.Status = newStatus
		if newStatus == domain.OrderStatusDelivered {
			now := time.Now().UTC()
			o.ActualDelivery = &now
		}
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	if newStatus == domain.OrderStatusDelivered {
		s.notifier.Notify(ctx, o.UserID, "Order Delivered",
			fmt.Sprintf("Order #%s has been delivered successfully.", o.OrderCode))
	}
	return o, nil
}

// AddReview один отзыв на доставленный заказ, без права редактирования
func (s *OrderService) AddReview(ctx context.Context, actor domain.Actor, orderID int64, rating int, comment string) (*domain.Order, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	if !actor.IsUser() {
		return nil, ErrForbidden
	}
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if len(comment) > 500 {
		return nil, fmt.Errorf("%w: review comment cannot exceed 500 characters", ErrInvalidInput)
	}
	o, err := s.getOwned(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.OrderStatusDelivered {
		return nil, fmt.Errorf("%w: only delivered orders can be reviewed", ErrInvalidInput)
	}
	if o.Review != nil {
		return nil, ErrConflict
	}
	o.Review = &domain.OrderReview{Rating: rating, Comment: comment, CreatedAt: time.Now().UTC()}
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, o.PharmacyID, "New Review",
		fmt.Sprintf("Order #%s received a %d-star review.", o.OrderCode, rating))
	return o, nil
}

// OrderStats агрегаты по заказам актора
type OrderStats struct {
	TotalOrders    int64            `json:"total_orders"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	TotalRevenue   float64          `json:"total_revenue"`
}

// Statistics счётчики собираются параллельно, по одному запросу на статус
func (s *OrderService) Statistics(ctx context.Context, actor domain.Actor) (*OrderStats, error) {
	if actor.ID == 0 {
		return nil, ErrUnauthenticated
	}
	f := repository.OrderFilter{}
	if actor.IsPharmacy() {
		f.PharmacyID = actor.ID
	} else {
		f.UserID = actor.ID
	}

	statuses := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusConfirmed,
		domain.OrderStatusPreparing,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	}
	counts := make([]int64, len(statuses))
	var total int64
	var revenue float64

	g, ctx := errgroup.WithContext(ctx)
	for i, st := range statuses {
		i, st := i, st
		g.Go(func() error {
			n, err := s.orders.CountByStatus(ctx, f, st)
			counts[i] = n
			return err
		})
	}
	g.Go(func() error {
		n, err := s.orders.CountByStatus(ctx, f, "")
		total = n
		return err
	})
	g.Go(func() error {
		r, err := s.orders.RevenueTotal(ctx, f)
		revenue = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byStatus := make(map[string]int64, len(statuses))
	for i, st := range statuses {
		byStatus[string(st)] = counts[i]
	}
	return &OrderStats{TotalOrders: total, OrdersByStatus: byStatus, TotalRevenue: revenue}, nil
}
