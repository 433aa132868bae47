package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"apteka/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// sqlTxKey ключ транзакции в контексте для postgres-репозиториев
type sqlTxKey struct{}

func ext(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// SQLTx транзакционный менеджер поверх BeginTxx; вложенный вызов
// переиспользует уже открытую транзакцию
type SQLTx struct{ db *sqlx.DB }

func NewSQLTx(db *sqlx.DB) *SQLTx { return &SQLTx{db: db} }

var _ TxManager = (*SQLTx)(nil)

func (t *SQLTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

// PGProducts репозиторий товаров на postgres
type PGProducts struct{ db *sqlx.DB }

func NewPGProducts(db *sqlx.DB) *PGProducts { return &PGProducts{db: db} }

var _ ProductRepository = (*PGProducts)(nil)

const productColumns = `id, pharmacy_id, name, category, price, stock_quantity, created_at, updated_at`

func (r *PGProducts) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (pharmacy_id, name, category, price, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, created_at, updated_at`
	return ext(ctx, r.db).QueryRowxContext(ctx, query,
		p.PharmacyID, p.Name, p.Category, p.Price, p.StockQuantity,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PGProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGProducts) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products
		SET name = $1, category = $2, price = $3, stock_quantity = $4, updated_at = now()
		WHERE id = $5`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, p.Name, p.Category, p.Price, p.StockQuantity, p.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PGProducts) Delete(ctx context.Context, id int64) error {
	res, err := ext(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PGProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	conditions := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.NameSubstring != "" {
		conditions = append(conditions, "name ILIKE "+arg("%"+f.NameSubstring+"%"))
	}
	if f.Category != "" {
		conditions = append(conditions, "category ILIKE "+arg("%"+f.Category+"%"))
	}
	if f.PharmacyID != 0 {
		conditions = append(conditions, "pharmacy_id = "+arg(f.PharmacyID))
	}
	if f.MinPrice != nil {
		conditions = append(conditions, "price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conditions = append(conditions, "price <= "+arg(*f.MaxPrice))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	out := []domain.Product{}
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ReserveStock единый условный UPDATE: списание проходит только если
// остатка хватает, конкурентный пересказ невозможен
func (r *PGProducts) ReserveStock(ctx context.Context, productID, qty int64) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $1, updated_at = now()
		WHERE id = $2 AND stock_quantity >= $1`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, qty, productID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// either missing or not enough stock
		if _, err := r.GetByID(ctx, productID); err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

func (r *PGProducts) ReleaseStock(ctx context.Context, productID, qty int64) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $1, updated_at = now()
		WHERE id = $2`
	res, err := ext(ctx, r.db).ExecContext(ctx, query, qty, productID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// PGCarts корзина на двух таблицах: carts + cart_items, сохранение целиком
type PGCarts struct{ db *sqlx.DB }

func NewPGCarts(db *sqlx.DB) *PGCarts { return &PGCarts{db: db} }

var _ CartRepository = (*PGCarts)(nil)

func (r *PGCarts) GetByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	var c domain.Cart
	query := `SELECT id, user_id, total_price, created_at, updated_at FROM carts WHERE user_id = $1`
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &c, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	items := []domain.CartItem{}
	err := sqlx.SelectContext(ctx, ext(ctx, r.db), &items,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY product_id`, c.ID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return &c, nil
}

func (r *PGCarts) Save(ctx context.Context, cart *domain.Cart) error {
	e := ext(ctx, r.db)
	if cart.ID == 0 {
		query := `
			INSERT INTO carts (user_id, total_price, created_at, updated_at)
			VALUES ($1, $2, now(), now())
			ON CONFLICT (user_id) DO UPDATE SET total_price = EXCLUDED.total_price, updated_at = now()
			RETURNING id, created_at, updated_at`
		if err := e.QueryRowxContext(ctx, query, cart.UserID, cart.TotalPrice).
			Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt); err != nil {
			return err
		}
	} else {
		_, err := e.ExecContext(ctx,
			`UPDATE carts SET total_price = $1, updated_at = now() WHERE id = $2`,
			cart.TotalPrice, cart.ID)
		if err != nil {
			return err
		}
	}
	if _, err := e.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cart.ID); err != nil {
		return err
	}
	for _, it := range cart.Items {
		_, err := e.ExecContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)`,
			cart.ID, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
	}
	return nil
}

// PGOrders репозиторий заказов на postgres
type PGOrders struct{ db *sqlx.DB }

func NewPGOrders(db *sqlx.DB) *PGOrders { return &PGOrders{db: db} }

var _ OrderRepository = (*PGOrders)(nil)

const orderColumns = `id, order_code, user_id, pharmacy_id, total_price, status,
	delivery_address, delivery_type, payment_method, payment_status,
	estimated_delivery, actual_delivery, notes, cancellation_reason,
	decline_reason, cancelled_by, review_rating, review_comment,
	review_created_at, created_at, updated_at`

type orderRow struct {
	domain.Order
	ReviewRating    sql.NullInt64  `db:"review_rating"`
	ReviewComment   sql.NullString `db:"review_comment"`
	ReviewCreatedAt sql.NullTime   `db:"review_created_at"`
}

func (row orderRow) toDomain() domain.Order {
	o := row.Order
	if row.ReviewRating.Valid {
		o.Review = &domain.OrderReview{
			Rating:    int(row.ReviewRating.Int64),
			Comment:   row.ReviewComment.String,
			CreatedAt: row.ReviewCreatedAt.Time,
		}
	}
	return o
}

// Create пишет заказ и его позиции одним куском: либо всё, либо ничего.
// Если транзакция уже открыта выше по стеку, присоединяемся к ней.
func (r *PGOrders) Create(ctx context.Context, o *domain.Order) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*sqlx.Tx); ok {
		return r.create(ctx, ext(ctx, r.db), o)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.create(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGOrders) create(ctx context.Context, e sqlx.ExtContext, o *domain.Order) error {
	query := `
		INSERT INTO orders (order_code, user_id, pharmacy_id, total_price, status,
			delivery_address, delivery_type, payment_method, payment_status,
			estimated_delivery, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING id, created_at, updated_at`
	err := e.QueryRowxContext(ctx, query,
		o.OrderCode, o.UserID, o.PharmacyID, o.TotalPrice, o.Status,
		o.DeliveryAddress, o.DeliveryType, o.PaymentMethod, o.PaymentStatus,
		o.EstimatedDelivery, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		_, err := e.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_at_time) VALUES ($1, $2, $3, $4)`,
			o.ID, it.ProductID, it.Quantity, it.PriceAtTime)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PGOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var row orderRow
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o := row.toDomain()
	if err := r.loadItems(ctx, map[int64]*domain.Order{o.ID: &o}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PGOrders) loadItems(ctx context.Context, byID map[int64]*domain.Order) error {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	type itemRow struct {
		OrderID int64 `db:"order_id"`
		domain.OrderItem
	}
	rows := []itemRow{}
	err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows,
		`SELECT order_id, product_id, quantity, price_at_time FROM order_items WHERE order_id = ANY($1) ORDER BY product_id`,
		pq.Array(ids))
	if err != nil {
		return err
	}
	for _, row := range rows {
		o := byID[row.OrderID]
		o.Items = append(o.Items, row.OrderItem)
	}
	return nil
}

// Update перезаписывает изменяемые поля заказа; состав позиций неизменен
func (r *PGOrders) Update(ctx context.Context, o *domain.Order) error {
	var rating sql.NullInt64
	var comment sql.NullString
	var reviewAt sql.NullTime
	if o.Review != nil {
		rating = sql.NullInt64{Int64: int64(o.Review.Rating), Valid: true}
		comment = sql.NullString{String: o.Review.Comment, Valid: true}
		reviewAt = sql.NullTime{Time: o.Review.CreatedAt, Valid: true}
	}
	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, actual_delivery = $3,
			cancellation_reason = $4, decline_reason = $5, cancelled_by = $6,
			review_rating = $7, review_comment = $8, review_created_at = $9,
			updated_at = now()
		WHERE id = $10`
	res, err := ext(ctx, r.db).ExecContext(ctx, query,
		o.Status, o.PaymentStatus, o.ActualDelivery,
		o.CancellationReason, o.DeclineReason, o.CancelledBy,
		rating, comment, reviewAt, o.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func orderConditions(f OrderFilter, args *[]interface{}) []string {
	conditions := []string{}
	arg := func(v interface{}) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	if f.UserID != 0 {
		conditions = append(conditions, "user_id = "+arg(f.UserID))
	}
	if f.PharmacyID != 0 {
		conditions = append(conditions, "pharmacy_id = "+arg(f.PharmacyID))
	}
	if f.Status != "" {
		conditions = append(conditions, "status = "+arg(f.Status))
	}
	if f.From != nil {
		conditions = append(conditions, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conditions = append(conditions, "created_at <= "+arg(*f.To))
	}
	return conditions
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func (r *PGOrders) List(ctx context.Context, f OrderFilter) ([]domain.Order, int64, error) {
	args := []interface{}{}
	where := whereClause(orderConditions(f, &args))

	var total int64
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &total,
		`SELECT count(*) FROM orders`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, id DESC`
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	rows := []orderRow{}
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, args...); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Order, len(rows))
	byID := make(map[int64]*domain.Order, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
		byID[out[i].ID] = &out[i]
	}
	if len(byID) > 0 {
		if err := r.loadItems(ctx, byID); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *PGOrders) CountByStatus(ctx context.Context, f OrderFilter, status domain.OrderStatus) (int64, error) {
	f.Status = status
	args := []interface{}{}
	where := whereClause(orderConditions(f, &args))
	var n int64
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &n, `SELECT count(*) FROM orders`+where, args...)
	return n, err
}

func (r *PGOrders) RevenueTotal(ctx context.Context, f OrderFilter) (float64, error) {
	args := []interface{}{}
	conditions := orderConditions(f, &args)
	conditions = append(conditions, "status NOT IN ('cancelled', 'declined')")
	var total float64
	err := sqlx.GetContext(ctx, ext(ctx, r.db), &total,
		`SELECT coalesce(sum(total_price), 0) FROM orders`+whereClause(conditions), args...)
	return total, err
}

// PGUsers избранные товары пользователя
type PGUsers struct{ db *sqlx.DB }

func NewPGUsers(db *sqlx.DB) *PGUsers { return &PGUsers{db: db} }

var _ UserRepository = (*PGUsers)(nil)

func (r *PGUsers) AddFavouriteProduct(ctx context.Context, userID, productID int64) error {
	_, err := ext(ctx, r.db).ExecContext(ctx,
		`INSERT INTO user_favourites (user_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, productID)
	return err
}

func (r *PGUsers) GetFavourites(ctx context.Context, userID int64) ([]int64, error) {
	out := []int64{}
	err := sqlx.SelectContext(ctx, ext(ctx, r.db), &out,
		`SELECT product_id FROM user_favourites WHERE user_id = $1 ORDER BY product_id`, userID)
	return out, err
}

// PGPharmacies репозиторий аптек
type PGPharmacies struct{ db *sqlx.DB }

func NewPGPharmacies(db *sqlx.DB) *PGPharmacies { return &PGPharmacies{db: db} }

var _ PharmacyRepository = (*PGPharmacies)(nil)

func (r *PGPharmacies) Create(ctx context.Context, p *domain.Pharmacy) error {
	query := `
		INSERT INTO pharmacies (name, location, created_at)
		VALUES ($1, $2, now())
		RETURNING id, created_at`
	return ext(ctx, r.db).QueryRowxContext(ctx, query, p.Name, p.Location).Scan(&p.ID, &p.CreatedAt)
}

func (r *PGPharmacies) GetByID(ctx context.Context, id int64) (*domain.Pharmacy, error) {
	var p domain.Pharmacy
	query := `SELECT id, name, location, created_at FROM pharmacies WHERE id = $1`
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// PGNotifications хранилище уведомлений
type PGNotifications struct{ db *sqlx.DB }

func NewPGNotifications(db *sqlx.DB) *PGNotifications { return &PGNotifications{db: db} }

var _ NotificationRepository = (*PGNotifications)(nil)

func (r *PGNotifications) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (target_id, title, message, read, created_at)
		VALUES ($1, $2, $3, false, now())
		RETURNING id, created_at`
	return ext(ctx, r.db).QueryRowxContext(ctx, query, n.TargetID, n.Title, n.Message).
		Scan(&n.ID, &n.CreatedAt)
}

func (r *PGNotifications) ListByTarget(ctx context.Context, targetID int64) ([]domain.Notification, error) {
	out := []domain.Notification{}
	err := sqlx.SelectContext(ctx, ext(ctx, r.db), &out,
		`SELECT id, target_id, title, message, read, created_at FROM notifications WHERE target_id = $1 ORDER BY id DESC`,
		targetID)
	return out, err
}

func (r *PGNotifications) MarkRead(ctx context.Context, targetID, id int64) error {
	res, err := ext(ctx, r.db).ExecContext(ctx,
		`UPDATE notifications SET read = true WHERE id = $1 AND target_id = $2`, id, targetID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
