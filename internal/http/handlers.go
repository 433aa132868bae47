package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"apteka/internal/domain"
	"apteka/internal/repository"
	"apteka/internal/service"
)

// Заголовки, которыми шлюз аутентификации передаёт личность вызывающего.
// Сама проверка учётных данных происходит до этого сервиса.
const (
	headerActorID   = "X-User-ID"
	headerActorType = "X-User-Type"
)

const actorKey = "actor"

type Server struct {
	engine        *gin.Engine
	products      *service.ProductService
	cart          *service.CartService
	orders        *service.OrderService
	pharmacies    repository.PharmacyRepository
	notifications repository.NotificationRepository
}

func NewServer(
	products *service.ProductService,
	cart *service.CartService,
	orders *service.OrderService,
	pharmacies repository.PharmacyRepository,
	notifications repository.NotificationRepository,
) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), identity())
	s := &Server{
		engine:        r,
		products:      products,
		cart:          cart,
		orders:        orders,
		pharmacies:    pharmacies,
		notifications: notifications,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	{
		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET(":id", s.getProduct)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)
		products.GET("", s.listProducts)

		pharmacies := v1.Group("/pharmacies")
		pharmacies.POST("", s.createPharmacy)
		pharmacies.GET(":id", s.getPharmacy)

		cart := v1.Group("/cart")
		cart.GET("", s.getCart)
		cart.DELETE("", s.clearCart)
		cart.POST("/items", s.addCartItem)
		cart.PUT("/items/:productId", s.updateCartItem)
		cart.DELETE("/items/:productId", s.removeCartItem)
		cart.POST("/items/:productId/favourite", s.moveToFavourites)
		cart.POST("/sync", s.syncCart)
		cart.GET("/summary", s.cartSummary)

		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.GET("", s.listOrders)
		orders.GET("/stats", s.orderStats)
		orders.GET(":id", s.getOrder)
		orders.POST(":id/cancel", s.cancelOrder)
		orders.POST(":id/decline", s.declineOrder)
		orders.PATCH(":id/status", s.updateOrderStatus)
		orders.POST(":id/review", s.addReview)

		notifications := v1.Group("/notifications")
		notifications.GET("", s.listNotifications)
		notifications.POST(":id/read", s.markNotificationRead)
	}
}

// identity разбирает заголовки личности; отсутствие заголовков не
// ошибка — публичные маршруты работают и без них
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(headerActorID), 10, 64)
		if err != nil || id <= 0 {
			c.Next()
			return
		}
		t := domain.ActorType(c.GetHeader(headerActorType))
		if t != domain.ActorUser && t != domain.ActorPharmacy {
			// неизвестная роль приравнивается к анониму
			c.Next()
			return
		}
		c.Set(actorKey, domain.Actor{ID: id, Type: t})
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(actorKey); ok {
		return v.(domain.Actor)
	}
	return domain.Actor{}
}

// cartUser корзина принадлежит только пользователю
func (s *Server) cartUser(c *gin.Context) (int64, bool) {
	actor := actorFrom(c)
	if actor.ID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return 0, false
	}
	if !actor.IsUser() {
		c.JSON(http.StatusForbidden, gin.H{"error": "cart is only available to users"})
		return 0, false
	}
	return actor.ID, true
}

// Product handlers
type productReq struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	StockQuantity int64   `json:"stock_quantity"`
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body productReq true "Product"
// @Success 201 {object} service.ProductView
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Create(c, actorFrom(c), domain.Product{
		Name:          req.Name,
		Category:      req.Category,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} service.ProductView
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	p, err := s.products.GetByID(c, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body productReq true "Update"
// @Success 200 {object} service.ProductView
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Update(c, actorFrom(c), domain.Product{
		ID:            id,
		Name:          req.Name,
		Category:      req.Category,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Tags products
// @Param id path int true "Product ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.products.Delete(c, actorFrom(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name contains"
// @Param category query string false "Category"
// @Param pharmacy_id query int false "Pharmacy ID"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Success 200 {array} service.ProductView
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	var f repository.ProductFilter
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	f.Category = c.Query("category")
	if v := c.Query("pharmacy_id"); v != "" {
		if x, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.PharmacyID = x
		}
	}
	if v := c.Query("min_price"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinPrice = &x
		}
	}
	if v := c.Query("max_price"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			f.MaxPrice = &x
		}
	}
	list, err := s.products.List(c, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// Pharmacy handlers
type pharmacyReq struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// @Summary Register pharmacy
// @Tags pharmacies
// @Accept json
// @Produce json
// @Param input body pharmacyReq true "Pharmacy"
// @Success 201 {object} domain.Pharmacy
// @Failure 400 {object} map[string]string
// @Router /pharmacies [post]
func (s *Server) createPharmacy(c *gin.Context) {
	var req pharmacyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	ph := domain.Pharmacy{Name: req.Name, Location: req.Location}
	if err := s.pharmacies.Create(c, &ph); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ph)
}

// @Summary Get pharmacy by id
// @Tags pharmacies
// @Produce json
// @Param id path int true "Pharmacy ID"
// @Success 200 {object} domain.Pharmacy
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /pharmacies/{id} [get]
func (s *Server) getPharmacy(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	ph, err := s.pharmacies.GetByID(c, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ph)
}

// Cart handlers

// @Summary Get cart
// @Tags cart
// @Produce json
// @Success 200 {object} service.CartView
// @Failure 401 {object} map[string]string
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	view, err := s.cart.GetCart(c, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Clear cart
// @Tags cart
// @Produce json
// @Success 200 {object} service.CartView
// @Failure 401 {object} map[string]string
// @Router /cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	view, err := s.cart.Clear(c, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type addCartItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// @Summary Add item to cart
// @Tags cart
// @Accept json
// @Produce json
// @Param input body addCartItemReq true "Item"
// @Success 200 {object} service.CartView
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	var req addCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, err := s.cart.AddItem(c, userID, req.ProductID, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateCartItemReq struct {
	Quantity int64 `json:"quantity"`
}

// @Summary Update cart item quantity
// @Tags cart
// @Accept json
// @Produce json
// @Param productId path int true "Product ID"
// @Param input body updateCartItemReq true "Quantity"
// @Success 200 {object} service.CartView
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items/{productId} [put]
func (s *Server) updateCartItem(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	productID, err := parseID(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req updateCartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, err := s.cart.UpdateItem(c, userID, productID, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Remove item from cart
// @Tags cart
// @Produce json
// @Param productId path int true "Product ID"
// @Success 200 {object} service.CartView
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items/{productId} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	productID, err := parseID(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	view, err := s.cart.RemoveItem(c, userID, productID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Move cart item to favourites
// @Tags cart
// @Param productId path int true "Product ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /cart/items/{productId}/favourite [post]
func (s *Server) moveToFavourites(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	productID, err := parseID(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.cart.MoveToFavourites(c, userID, productID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type syncCartReq struct {
	Items []domain.CartItem `json:"items"`
}

// @Summary Sync offline cart
// @Tags cart
// @Accept json
// @Produce json
// @Param input body syncCartReq true "Local items"
// @Success 200 {object} service.CartView
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /cart/sync [post]
func (s *Server) syncCart(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	var req syncCartReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, err := s.cart.Sync(c, userID, req.Items)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// @Summary Cart summary grouped by pharmacy
// @Tags cart
// @Produce json
// @Success 200 {object} service.CartSummary
// @Failure 401 {object} map[string]string
// @Router /cart/summary [get]
func (s *Server) cartSummary(c *gin.Context) {
	userID, ok := s.cartUser(c)
	if !ok {
		return
	}
	sum, err := s.cart.Summary(c, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Order handlers
type createOrderReq struct {
	PharmacyID      int64             `json:"pharmacy_id"`
	Items           []domain.CartItem `json:"items"`
	DeliveryAddress string            `json:"delivery_address"`
	DeliveryType    string            `json:"delivery_type"`
	PaymentMethod   string            `json:"payment_method"`
	Notes           string            `json:"notes"`
}

// @Summary Create order
// @Tags orders
// @Accept json
// @Produce json
// @Param input body createOrderReq true "Order"
// @Success 201 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.CreateOrder(c, actorFrom(c), service.CreateOrderInput{
		PharmacyID:      req.PharmacyID,
		Items:           req.Items,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryType:    domain.DeliveryType(req.DeliveryType),
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// @Summary List orders of the caller
// @Tags orders
// @Produce json
// @Param status query string false "Status filter"
// @Param from query string false "Created after (RFC3339)"
// @Param to query string false "Created before (RFC3339)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} service.OrderPage
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	var in service.ListOrdersInput
	in.Status = domain.OrderStatus(c.Query("status"))
	if v := c.Query("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		in.From = &ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		in.To = &ts
	}
	if v := c.Query("page"); v != "" {
		if x, err := strconv.Atoi(v); err == nil {
			in.Page = x
		}
	}
	if v := c.Query("page_size"); v != "" {
		if x, err := strconv.Atoi(v); err == nil {
			in.PageSize = x
		}
	}
	page, err := s.orders.ListOrders(c, actorFrom(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// @Summary Order statistics of the caller
// @Tags orders
// @Produce json
// @Success 200 {object} service.OrderStats
// @Failure 401 {object} map[string]string
// @Router /orders/stats [get]
func (s *Server) orderStats(c *gin.Context) {
	stats, err := s.orders.Statistics(c, actorFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	o, err := s.orders.GetOrder(c, actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type reasonReq struct {
	Reason string `json:"reason"`
}

// @Summary Cancel order
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body reasonReq false "Reason"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req reasonReq
	// body is optional
	_ = c.ShouldBindJSON(&req)
	o, err := s.orders.CancelOrder(c, actorFrom(c), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Decline order
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body reasonReq false "Reason"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/decline [post]
func (s *Server) declineOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req reasonReq
	_ = c.ShouldBindJSON(&req)
	o, err := s.orders.DeclineOrder(c, actorFrom(c), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type statusReq struct {
	Status string `json:"status"`
}

// @Summary Update order status
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body statusReq true "New status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/status [patch]
func (s *Server) updateOrderStatus(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.UpdateStatus(c, actorFrom(c), id, domain.OrderStatus(req.Status))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type reviewReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// @Summary Review a delivered order
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body reviewReq true "Review"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/review [post]
func (s *Server) addReview(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.orders.AddReview(c, actorFrom(c), id, req.Rating, req.Comment)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// Notification handlers

// @Summary List notifications of the caller
// @Tags notifications
// @Produce json
// @Success 200 {array} domain.Notification
// @Failure 401 {object} map[string]string
// @Router /notifications [get]
func (s *Server) listNotifications(c *gin.Context) {
	actor := actorFrom(c)
	if actor.ID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	list, err := s.notifications.ListByTarget(c, actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Mark notification as read
// @Tags notifications
// @Param id path int true "Notification ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /notifications/{id}/read [post]
func (s *Server) markNotificationRead(c *gin.Context) {
	actor := actorFrom(c)
	if actor.ID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := s.notifications.MarkRead(c, actor.ID, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func fail(c *gin.Context, err error) {
	c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	var insufficient *service.InsufficientStockError
	var transition *service.InvalidTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrOutOfStock),
		errors.As(err, &insufficient):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict),
		errors.As(err, &transition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
