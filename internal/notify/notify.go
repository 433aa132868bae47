package notify

import (
	"context"
	"sync"

	"apteka/internal/domain"
	"apteka/internal/repository"

	"go.uber.org/zap"
)

// Notifier получатель событий жизненного цикла заказа. Вызовы не должны
// блокировать и не должны возвращать ошибку вызывающему — доставка
// уведомлений не может провалить бизнес-операцию.
type Notifier interface {
	Notify(ctx context.Context, targetID int64, title, message string)
}

// Dispatcher пишет уведомления в хранилище асинхронно; ошибки только логируются
type Dispatcher struct {
	repo   repository.NotificationRepository
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(repo repository.NotificationRepository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, logger: logger}
}

var _ Notifier = (*Dispatcher)(nil)

func (d *Dispatcher) Notify(ctx context.Context, targetID int64, title, message string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		n := domain.Notification{TargetID: targetID, Title: title, Message: message}
		// не наследуем контекст запроса: отправка переживает ответ клиенту
		if err := d.repo.Create(context.Background(), &n); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.Int64("target_id", targetID),
				zap.String("title", title),
				zap.Error(err))
			return
		}
		d.logger.Debug("notification dispatched",
			zap.Int64("target_id", targetID),
			zap.String("title", title))
	}()
}

// Close дожидается отправки всех уведомлений в полёте
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

// Nop заглушка для тестов и отключённых уведомлений
type Nop struct{}

func (Nop) Notify(context.Context, int64, string, string) {}
