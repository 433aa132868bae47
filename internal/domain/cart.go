package domain

import "time"

// CartItem позиция корзины, productId уникален в пределах корзины
type CartItem struct {
	ProductID int64 `json:"product_id" db:"product_id"`
	Quantity  int64 `json:"quantity" db:"quantity"`
}

// Cart корзина пользователя, создаётся лениво при первом обращении.
// TotalPrice пересчитывается по текущим ценам при каждом чтении и изменении.
type Cart struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"user_id" db:"user_id"`
	Items      []CartItem `json:"items"`
	TotalPrice float64    `json:"total_price" db:"total_price"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// FindItem возвращает индекс позиции с данным товаром или -1
func (c *Cart) FindItem(productID int64) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// RemoveItemAt удаляет позицию по индексу
func (c *Cart) RemoveItemAt(idx int) {
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
}
