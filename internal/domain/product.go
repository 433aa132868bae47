package domain

import "time"

// StockStatus производный статус наличия, никогда не хранится отдельно
type StockStatus string

const (
	StockInStock    StockStatus = "in_stock"
	StockLowStock   StockStatus = "low_stock"
	StockOutOfStock StockStatus = "out_of_stock"
)

// StockStatusFor выводит статус из количества; threshold — граница low_stock
func StockStatusFor(quantity, threshold int64) StockStatus {
	switch {
	case quantity <= 0:
		return StockOutOfStock
	case quantity < threshold:
		return StockLowStock
	default:
		return StockInStock
	}
}

// Product представляет товар аптеки
type Product struct {
	ID            int64     `json:"id" db:"id"`
	PharmacyID    int64     `json:"pharmacy_id" db:"pharmacy_id"`
	Name          string    `json:"name" db:"name"`
	Category      string    `json:"category" db:"category"`
	Price         float64   `json:"price" db:"price"`
	StockQuantity int64     `json:"stock_quantity" db:"stock_quantity"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Purchasable сообщает, можно ли положить qty единиц в заказ или корзину
func (p Product) Purchasable(qty int64) bool {
	return p.StockQuantity > 0 && p.StockQuantity >= qty
}

// Pharmacy владелец товаров и сторона заказа
type Pharmacy struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Location  string    `json:"location" db:"location"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User хранит только то, что нужно ядру: набор избранных товаров
type User struct {
	ID                int64   `json:"id" db:"id"`
	FavouriteProducts []int64 `json:"favourite_products"`
}

// Notification уведомление о событии жизненного цикла заказа
type Notification struct {
	ID        int64     `json:"id" db:"id"`
	TargetID  int64     `json:"target_id" db:"target_id"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
