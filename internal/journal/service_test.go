package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
	"github.com/devansh0703/BinanceTradeBot/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	// 内存库多连接会各自独立，测试固定单连接。
	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestService_RecordAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	intent := order.Intent{ID: "intent-1", Symbol: "BTC/USDT:USDT", Kind: order.KindLimit, Side: order.SideBuy, Quantity: 1}
	svc.RecordIntent(ctx, intent)
	svc.RecordStateChange(ctx, "intent-1", order.StatePending, order.StateActive, "activated")
	svc.RecordChild(ctx, "intent-1", order.Child{ID: "ord-1", Side: order.SideBuy, Quantity: 1, Price: 50000})
	svc.RecordFill(ctx, "intent-1", "ord-1", 1, order.ChildFilled)
	svc.RecordError(ctx, "intent-1", "submit", errors.New("boom"))

	all, err := svc.ListEvents(ctx, "", 100)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 events, got %d", len(all))
	}

	fills, err := svc.ListEvents(ctx, EventChildFill, 100)
	if err != nil {
		t.Fatalf("ListEvents(fill) failed: %v", err)
	}
	if len(fills) != 1 || fills[0].IntentID != "intent-1" {
		t.Fatalf("unexpected fill events: %+v", fills)
	}

	limited, err := svc.ListEvents(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListEvents(limit) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 events with limit, got %d", len(limited))
	}
}

func TestService_RecordErrorIgnoresNil(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	svc.RecordError(ctx, "intent-1", "submit", nil)

	events, err := svc.ListEvents(ctx, EventError, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for nil error, got %d", len(events))
	}
}

func TestService_SaveSnapshotUpserts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	rec := order.NewRecord(order.Intent{ID: "intent-1", Symbol: "BTC/USDT:USDT", Kind: order.KindLimit, Side: order.SideBuy, Quantity: 1})
	svc.SaveSnapshot(ctx, rec.Snapshot())
	if err := rec.Transition(order.StateActive, ""); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	svc.SaveSnapshot(ctx, rec.Snapshot())

	var count int
	if err := svc.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM intent_snapshots`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single snapshot row after upsert, got %d", count)
	}
}
