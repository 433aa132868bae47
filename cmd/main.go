package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"apteka/config"
	httpapi "apteka/internal/http"
	"apteka/internal/notify"
	"apteka/internal/repository"
	"apteka/internal/service"
	"apteka/pkg/logger"

	_ "apteka/docs"
)

// @title Apteka API
// @version 1.0
// @description Pharmacy marketplace backend: products, carts and orders
// @BasePath /api/v1
func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	appLogger, err := logger.New(logger.Options{
		Service:  "apteka",
		Env:      cfg.Server.AppEnv,
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer appLogger.Sync()

	var (
		products      repository.ProductRepository
		carts         repository.CartRepository
		orders        repository.OrderRepository
		pharmacies    repository.PharmacyRepository
		users         repository.UserRepository
		notifications repository.NotificationRepository
		tx            repository.TxManager
	)

	switch cfg.Storage.Driver {
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.Postgres.DSN())
		if err != nil {
			appLogger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		defer db.Close()

		products = repository.NewPGProducts(db)
		carts = repository.NewPGCarts(db)
		orders = repository.NewPGOrders(db)
		pharmacies = repository.NewPGPharmacies(db)
		users = repository.NewPGUsers(db)
		notifications = repository.NewPGNotifications(db)
		tx = repository.NewSQLTx(db)
		appLogger.Info("storage ready", zap.String("driver", "postgres"), zap.String("db", cfg.Postgres.DBName))
	default:
		store := repository.NewMemoryStore()
		products = store
		carts = repository.NewMemoryCarts(store)
		orders = repository.NewMemoryOrders(store)
		pharmacies = repository.NewMemoryPharmacies(store)
		users = repository.NewMemoryUsers(store)
		notifications = repository.NewMemoryNotifications(store)
		tx = repository.NewMemoryTx(store)
		appLogger.Info("storage ready", zap.String("driver", "memory"))
	}

	dispatcher := notify.NewDispatcher(notifications, appLogger)
	defer dispatcher.Close()

	productsSvc := service.NewProductService(products, pharmacies, cfg.Stock.LowStockThreshold)
	cartSvc := service.NewCartService(carts, products, pharmacies, users)
	ordersSvc := service.NewOrderService(products, orders, pharmacies, cartSvc, dispatcher, tx, appLogger)

	srv := httpapi.NewServer(productsSvc, cartSvc, ordersSvc, pharmacies, notifications)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		appLogger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		appLogger.Error("shutdown error", zap.Error(err))
	}
}
