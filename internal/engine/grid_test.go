package engine

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

func TestGridPrices_Arithmetic(t *testing.T) {
	got := gridPrices(90, 110, 5, order.SpacingArithmetic)
	want := []float64{90, 95, 100, 105, 110}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("level %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestGridPrices_Geometric(t *testing.T) {
	got := gridPrices(100, 400, 3, order.SpacingGeometric)
	want := []float64{100, 200, 400}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("level %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func gridIntent() order.Intent {
	return order.Intent{
		ID:         "grid-1",
		Symbol:     testSymbol,
		Kind:       order.KindGrid,
		Side:       order.SideBuy,
		Quantity:   5,
		LowerPrice: 90,
		UpperPrice: 110,
		Levels:     5,
		Spacing:    order.SpacingArithmetic,
	}
}

func TestGrid_PlacesLaddersAroundCurrentPrice(t *testing.T) {
	gw := newFakeGateway()
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	submitIntent(t, sup, gridIntent())
	waitForState(t, sup, "grid-1", order.StateActive)
	waitForSubscribers(t, hub, testSymbol, 1)

	publishTick(hub, 97.5, time.Now())
	waitForSubmissions(t, gw, 5)

	wantSides := map[float64]string{90: "buy", 95: "buy", 100: "sell", 105: "sell", 110: "sell"}
	for i := 0; i < 5; i++ {
		spec := gw.submission(i)
		if spec.Type != exchange.TypeLimit || spec.Quantity != 1 {
			t.Fatalf("level order %d: unexpected spec %+v", i, spec)
		}
		if want := wantSides[spec.Price]; want != spec.Side {
			t.Fatalf("price %v: expected side %s, got %s", spec.Price, want, spec.Side)
		}
		delete(wantSides, spec.Price)
	}
	if len(wantSides) != 0 {
		t.Fatalf("levels missing orders: %v", wantSides)
	}
}

func TestGrid_FillReplenishesLevel(t *testing.T) {
	gw := newFakeGateway()
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	submitIntent(t, sup, gridIntent())
	waitForSubscribers(t, hub, testSymbol, 1)
	publishTick(hub, 97.5, time.Now())
	waitForSubmissions(t, gw, 5)

	buyID, ok := gw.orderIDByPrice(95, "buy")
	if !ok {
		t.Fatal("no buy order at 95")
	}
	gw.fill(buyID, 1, exchange.StatusFilled)

	// 镜像层 100 已有在途卖单，跳过镜像；本层 95 补挂买单。
	waitForSubmissions(t, gw, 6)
	replenished := gw.submission(5)
	if replenished.Side != "buy" || replenished.Price != 95 {
		t.Fatalf("expected replenished buy at 95, got %+v", replenished)
	}

	waitForState(t, sup, "grid-1", order.StatePartiallyFilled)

	// 每层至多一笔未结订单，总在途不超过层数。
	snap, _ := sup.QueryIntent("grid-1")
	openByPrice := map[float64]int{}
	open := 0
	for _, child := range snap.Children {
		if !child.Status.Terminal() {
			open++
			openByPrice[child.Price]++
		}
	}
	if open > 5 {
		t.Fatalf("open children %d exceeds level count", open)
	}
	for price, n := range openByPrice {
		if n > 1 {
			t.Fatalf("level at %v has %d open orders", price, n)
		}
	}

	if err := sup.CancelIntent("grid-1"); err != nil {
		t.Fatalf("CancelIntent failed: %v", err)
	}
	waitForState(t, sup, "grid-1", order.StateCancelled)

	snap, _ = sup.QueryIntent("grid-1")
	for _, child := range snap.Children {
		if !child.Status.Terminal() {
			t.Fatalf("child %s left non-terminal after cancel", child.ID)
		}
	}
}

func TestGrid_BoundaryFillRetiresLevel(t *testing.T) {
	gw := newFakeGateway()
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	intent := gridIntent()
	intent.ID = "grid-edge"
	intent.Levels = 2
	submitIntent(t, sup, intent)
	waitForSubscribers(t, hub, testSymbol, 1)

	// 现价高于整个区间，两层都挂卖单。
	publishTick(hub, 120, time.Now())
	waitForSubmissions(t, gw, 2)

	sellID, ok := gw.orderIDByPrice(90, "sell")
	if !ok {
		t.Fatal("no sell order at 90")
	}
	// 最低层卖单成交，镜像层越界：该层停用，不再补单。
	gw.fill(sellID, 2.5, exchange.StatusFilled)
	waitForState(t, sup, "grid-edge", order.StatePartiallyFilled)

	time.Sleep(30 * time.Millisecond)
	if gw.submissionCount() != 2 {
		t.Fatalf("expected no new orders after boundary fill, got %d", gw.submissionCount())
	}

	snap, _ := sup.QueryIntent("grid-edge")
	retired := false
	for _, note := range snap.Annotations {
		if strings.Contains(note, "停用") {
			retired = true
		}
	}
	if !retired {
		t.Fatalf("expected retirement annotation, got %v", snap.Annotations)
	}
}
