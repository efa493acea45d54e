package engine

import (
	"testing"
	"time"

	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

func priceTick(price float64, ts time.Time) feed.PriceTick {
	return feed.PriceTick{Symbol: testSymbol, Price: price, Timestamp: ts}
}

func TestTrigger_BuyFiresOnFirstCross(t *testing.T) {
	trig := newTrigger(order.SideBuy, 50000)
	base := time.Now()

	if trig.evaluate(priceTick(49990, base)) {
		t.Fatal("fired below stop price")
	}
	if !trig.evaluate(priceTick(50005, base.Add(time.Millisecond))) {
		t.Fatal("expected fire at first price >= stop")
	}
	// 已触发后不再评估。
	if trig.evaluate(priceTick(50020, base.Add(2*time.Millisecond))) {
		t.Fatal("fired twice")
	}
}

func TestTrigger_SellDirection(t *testing.T) {
	trig := newTrigger(order.SideSell, 50000)
	base := time.Now()

	if trig.evaluate(priceTick(50100, base)) {
		t.Fatal("sell trigger fired above stop price")
	}
	if !trig.evaluate(priceTick(49900, base.Add(time.Millisecond))) {
		t.Fatal("expected fire at first price <= stop")
	}
}

func TestTrigger_DiscardsOutOfOrderTicks(t *testing.T) {
	trig := newTrigger(order.SideBuy, 50000)
	base := time.Now()

	if trig.evaluate(priceTick(49990, base)) {
		t.Fatal("fired below stop price")
	}
	// 时间戳早于最近一次评估的行情直接丢弃，即便价格满足条件。
	if trig.evaluate(priceTick(50100, base.Add(-time.Second))) {
		t.Fatal("fired on stale tick")
	}
	if !trig.evaluate(priceTick(50100, base.Add(time.Second))) {
		t.Fatal("expected fire on fresh tick")
	}
}

func TestStopLimitSpec_DefaultLimitPrice(t *testing.T) {
	spec := stopLimitSpec(testSymbol, order.SideSell, 1, 50000, 0)
	if spec.Price != 50000*0.99 {
		t.Fatalf("expected default sell limit 49500, got %v", spec.Price)
	}

	spec = stopLimitSpec(testSymbol, order.SideBuy, 1, 50000, 0)
	if spec.Price != 50000*1.01 {
		t.Fatalf("expected default buy limit 50500, got %v", spec.Price)
	}

	spec = stopLimitSpec(testSymbol, order.SideSell, 1, 50000, 49800)
	if spec.Price != 49800 || spec.StopPrice != 50000 {
		t.Fatalf("explicit limit price not honored: %+v", spec)
	}
}
