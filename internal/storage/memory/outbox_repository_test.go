package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

func TestOutboxRepository_PullPendingKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := newOutboxRepository(func() time.Time { return time.Now().UTC() })

	for _, id := range []string{"m-3", "m-1", "m-2"} {
		repo.enqueue(domain.OutboxMessage{ID: id, AggregateType: domain.AggregateProduct})
	}

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != "m-3" || pending[1].ID != "m-1" {
		t.Fatalf("unexpected order: %s, %s", pending[0].ID, pending[1].ID)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := newOutboxRepository(func() time.Time { return time.Now().UTC() })
	repo.enqueue(domain.OutboxMessage{ID: "m-1"})
	repo.enqueue(domain.OutboxMessage{ID: "m-2"})

	if err := repo.MarkSent(ctx, "m-1"); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "m-2"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}
	if err := repo.MarkSent(ctx, "missing"); err != domain.ErrOutboxPublish {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
}

func TestOutboxRepository_Stats(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := newOutboxRepository(func() time.Time { return clock })

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 0 || !stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}

	repo.enqueue(domain.OutboxMessage{ID: "m-1"})
	clock = clock.Add(time.Minute)
	repo.enqueue(domain.OutboxMessage{ID: "m-2"})

	stats, err = repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("expected 2 pending, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected oldest pending: %s", stats.OldestPendingAt)
	}
}
