package domain

import "time"

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusDeclined       OrderStatus = "declined"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	OrderStatusPickedUp       OrderStatus = "picked_up"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// transitions таблица допустимых переходов; любые другие рёбра запрещены
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusDeclined, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusReadyForPickup, OrderStatusPickedUp, OrderStatusShipped},
	OrderStatusReadyForPickup: {OrderStatusPickedUp},
	OrderStatusPickedUp:       {OrderStatusDelivered},
	OrderStatusShipped:        {OrderStatusDelivered},
}

// ValidStatus проверяет, что строка — известный статус
func ValidStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDeclined,
		OrderStatusPreparing, OrderStatusReadyForPickup, OrderStatusPickedUp,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition проверяет ребро from -> to по таблице переходов
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type DeliveryType string

const (
	DeliveryTypePickup   DeliveryType = "pickup"
	DeliveryTypeDelivery DeliveryType = "delivery"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// OrderItem позиция заказа; PriceAtTime фиксируется в момент покупки
type OrderItem struct {
	ProductID   int64   `json:"product_id" db:"product_id"`
	Quantity    int64   `json:"quantity" db:"quantity"`
	PriceAtTime float64 `json:"price_at_time" db:"price_at_time"`
}

// OrderReview единственный отзыв на доставленный заказ
type OrderReview struct {
	Rating    int       `json:"rating" db:"review_rating"`
	Comment   string    `json:"comment" db:"review_comment"`
	CreatedAt time.Time `json:"created_at" db:"review_created_at"`
}

// Order неизменяемый снимок покупки
type Order struct {
	ID                 int64         `json:"id" db:"id"`
	OrderCode          string        `json:"order_code" db:"order_code"`
	UserID             int64         `json:"user_id" db:"user_id"`
	PharmacyID         int64         `json:"pharmacy_id" db:"pharmacy_id"`
	Items              []OrderItem   `json:"items"`
	TotalPrice         float64       `json:"total_price" db:"total_price"`
	Status             OrderStatus   `json:"status" db:"status"`
	DeliveryAddress    string        `json:"delivery_address" db:"delivery_address"`
	DeliveryType       DeliveryType  `json:"delivery_type" db:"delivery_type"`
	PaymentMethod      string        `json:"payment_method" db:"payment_method"`
	PaymentStatus      PaymentStatus `json:"payment_status" db:"payment_status"`
	EstimatedDelivery  time.Time     `json:"estimated_delivery" db:"estimated_delivery"`
	ActualDelivery     *time.Time    `json:"actual_delivery,omitempty" db:"actual_delivery"`
	Review             *OrderReview  `json:"review,omitempty"`
	Notes              string        `json:"notes,omitempty" db:"notes"`
	CancellationReason string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	DeclineReason      string        `json:"decline_reason,omitempty" db:"decline_reason"`
	CancelledBy        string        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// CanBeCancelled отмена доступна пока заказ не взят в работу
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

// CanBeDeclined аптека отклоняет только ещё не подтверждённый заказ
func (o *Order) CanBeDeclined() bool {
	return o.Status == OrderStatusPending
}

// CanBeReviewed один отзыв и только после доставки
func (o *Order) CanBeReviewed() bool {
	return o.Status == OrderStatusDelivered && o.Review == nil
}

// IsTerminal конечные статусы, из которых нет переходов
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusDeclined:
		return true
	}
	return false
}
