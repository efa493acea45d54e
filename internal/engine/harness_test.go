package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devansh0703/BinanceTradeBot/internal/config"
	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
	"github.com/devansh0703/BinanceTradeBot/internal/risk"
)

const testSymbol = "BTC/USDT:USDT"

// fakeGateway 为内存网关：记录全部提交与撤单，
// 回报事件由测试脚本通过 events 通道注入。
type fakeGateway struct {
	mu          sync.Mutex
	submissions []exchange.OrderSpec
	cancelled   []string
	submitErr   error
	cancelErr   error

	events chan exchange.OrderEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(chan exchange.OrderEvent, 64)}
}

func (f *fakeGateway) Submit(ctx context.Context, spec exchange.OrderSpec) (exchange.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return exchange.Ack{}, f.submitErr
	}
	f.submissions = append(f.submissions, spec)
	return exchange.Ack{
		OrderID: fmt.Sprintf("ord-%d", len(f.submissions)),
		Status:  exchange.StatusNew,
	}, nil
}

func (f *fakeGateway) Cancel(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return "", f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return exchange.StatusCancelled, nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, symbol, orderID string) (exchange.OrderStatus, error) {
	return exchange.StatusNew, nil
}

func (f *fakeGateway) Events() <-chan exchange.OrderEvent {
	return f.events
}

func (f *fakeGateway) fill(orderID string, cumFilled float64, status exchange.OrderStatus) {
	f.events <- exchange.OrderEvent{
		OrderID:   orderID,
		Type:      exchange.EventFill,
		Status:    status,
		FilledQty: cumFilled,
		Timestamp: time.Now().UTC(),
	}
}

func (f *fakeGateway) reject(orderID, code string) {
	f.events <- exchange.OrderEvent{
		OrderID:   orderID,
		Type:      exchange.EventReject,
		Status:    exchange.StatusRejected,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}
}

func (f *fakeGateway) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func (f *fakeGateway) submission(i int) exchange.OrderSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[i]
}

func (f *fakeGateway) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cancelled))
	copy(out, f.cancelled)
	return out
}

// orderIDByPrice 按价格与方向查找已提交订单的订单号。
func (f *fakeGateway) orderIDByPrice(price float64, side string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, spec := range f.submissions {
		if spec.Price == price && spec.Side == side {
			return fmt.Sprintf("ord-%d", i+1), true
		}
	}
	return "", false
}

var _ exchange.Gateway = (*fakeGateway)(nil)

func newTestSupervisor(t *testing.T, gw exchange.Gateway, hub *feed.Hub) *Supervisor {
	t.Helper()

	cfg := config.EngineConfig{
		RequestsPerSecond: 1000,
		Burst:             100,
		GridSpacing:       "arithmetic",
		EventBuffer:       64,
	}
	guard := risk.NewGuard(config.RiskConfig{
		MaxPositionSize:  1000,
		MaxOrderNotional: 1e12,
		MaxPrice:         1e9,
	}, nil)

	sup := NewSupervisor(cfg, gw, hub, guard, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = sup.Run(ctx) }()

	return sup
}

func submitIntent(t *testing.T, sup *Supervisor, intent order.Intent) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := sup.SubmitIntent(intent)
		if err == nil {
			return
		}
		if errors.Is(err, ErrNotRunning) && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		t.Fatalf("SubmitIntent failed: %v", err)
	}
}

func waitForState(t *testing.T, sup *Supervisor, intentID string, want order.State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	var last order.State
	for time.Now().Before(deadline) {
		snap, err := sup.QueryIntent(intentID)
		if err == nil {
			last = snap.State
			if snap.State == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("intent %s never reached state %s, last seen %s", intentID, want, last)
}

func waitForSubmissions(t *testing.T, gw *fakeGateway, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gw.submissionCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d submissions, got %d", n, gw.submissionCount())
}

func waitForSubscribers(t *testing.T, hub *feed.Hub, symbol string, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(symbol) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers for %s", n, symbol)
}

func publishTick(hub *feed.Hub, price float64, ts time.Time) {
	hub.Publish(feed.PriceTick{Symbol: testSymbol, Price: price, Timestamp: ts})
}
