package notify

import (
	"context"
	"testing"

	"apteka/internal/repository"

	"go.uber.org/zap"
)

func TestDispatcher_DeliversAsynchronously(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	repo := repository.NewMemoryNotifications(store)
	d := NewDispatcher(repo, zap.NewNop())

	d.Notify(ctx, 7, "New Order", "Order #ORD-1 has been placed.")
	d.Notify(ctx, 7, "Order Delivered", "Order #ORD-1 has been delivered successfully.")
	d.Notify(ctx, 8, "New Review", "Order #ORD-2 received a 5-star review.")
	d.Close()

	got, err := repo.ListByTarget(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	// newest first
	if got[0].Title != "Order Delivered" || got[1].Title != "New Order" {
		t.Fatalf("order wrong: %q, %q", got[0].Title, got[1].Title)
	}
	if got[0].Read {
		t.Fatalf("fresh notification marked read")
	}

	if err := repo.MarkRead(ctx, 7, got[0].ID); err != nil {
		t.Fatal(err)
	}
	got, err = repo.ListByTarget(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !got[0].Read {
		t.Fatalf("mark read not persisted")
	}
}

func TestDispatcher_CancelledRequestContextStillDelivers(t *testing.T) {
	store := repository.NewMemoryStore()
	repo := repository.NewMemoryNotifications(store)
	d := NewDispatcher(repo, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, 1, "Order Cancelled", "Order #ORD-3 has been cancelled.")
	d.Close()

	got, err := repo.ListByTarget(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
}
