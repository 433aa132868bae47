package service

import (
	"errors"
	"fmt"

	"apteka/internal/domain"
)

var (
	// ErrInvalidInput некорректные данные запроса (количество < 1, рейтинг вне 1..5 и т.п.)
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthenticated запрос без идентичности
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden актор аутентифицирован, но не владелец ресурса или не та роль
	ErrForbidden = errors.New("forbidden")
	// ErrOutOfStock товар полностью отсутствует на складе
	ErrOutOfStock = errors.New("product is currently out of stock")
	// ErrConflict повторное создание уже существующего ресурса (второй отзыв)
	ErrConflict = errors.New("already exists")
	// ErrEmptyOrder заказ без позиций
	ErrEmptyOrder = errors.New("order must contain at least one item")
)

// InsufficientStockError запрошено больше, чем осталось; Available —
// сколько единиц ещё можно добавить
type InsufficientStockError struct {
	ProductName string
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d items of %q available in stock", e.Available, e.ProductName)
}

// InvalidTransitionError запрошенный переход отсутствует в таблице
type InvalidTransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
