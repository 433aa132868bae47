package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"apteka/internal/domain"
)

// ErrNotFound возвращается, когда сущность не найдена
var ErrNotFound = errors.New("not found")

// ErrInsufficientStock возвращается атомарным резервированием, когда
// запрошенное количество превышает остаток (в том числе нулевой)
var ErrInsufficientStock = errors.New("insufficient stock")

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	Category      string
	PharmacyID    int64
	MinPrice      *float64
	MaxPrice      *float64
}

// OrderFilter параметры выборки заказов со страничной навигацией
type OrderFilter struct {
	UserID     int64
	PharmacyID int64
	Status     domain.OrderStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// ProductRepository репозиторий товаров и одновременно реестр остатков.
// ReserveStock и ReleaseStock — единственные операции, меняющие остаток
// из конкурентных запросов, и обе атомарны на уровне хранилища.
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)

	// ReserveStock списывает qty единиц одним условным декрементом:
	// остаток уменьшается только если его хватает, иначе ErrInsufficientStock.
	ReserveStock(ctx context.Context, productID, qty int64) error
	// ReleaseStock возвращает qty единиц на остаток (отмена/отклонение заказа)
	ReleaseStock(ctx context.Context, productID, qty int64) error
}

// CartRepository корзина хранится целиком, одна на пользователя
type CartRepository interface {
	GetByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
}

// OrderRepository интерфейс репозитория заказов
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	List(ctx context.Context, f OrderFilter) ([]domain.Order, int64, error)
	CountByStatus(ctx context.Context, f OrderFilter, status domain.OrderStatus) (int64, error)
	// RevenueTotal сумма totalPrice без отменённых и отклонённых заказов
	RevenueTotal(ctx context.Context, f OrderFilter) (float64, error)
}

// UserRepository хранит избранные товары пользователя
type UserRepository interface {
	AddFavouriteProduct(ctx context.Context, userID, productID int64) error
	GetFavourites(ctx context.Context, userID int64) ([]int64, error)
}

// PharmacyRepository интерфейс репозитория аптек
type PharmacyRepository interface {
	Create(ctx context.Context, p *domain.Pharmacy) error
	GetByID(ctx context.Context, id int64) (*domain.Pharmacy, error)
}

// NotificationRepository хранилище уведомлений
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByTarget(ctx context.Context, targetID int64) ([]domain.Notification, error)
	MarkRead(ctx context.Context, targetID, id int64) error
}

// TxManager абстракция транзакции. Для in-memory — глобальная блокировка записи.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
