package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/devansh0703/BinanceTradeBot/internal/exchange"
	"github.com/devansh0703/BinanceTradeBot/internal/feed"
	"github.com/devansh0703/BinanceTradeBot/internal/order"
)

func ocoIntent() order.Intent {
	return order.Intent{
		ID:                 "oco-1",
		Symbol:             testSymbol,
		Kind:               order.KindOCO,
		Side:               order.SideSell,
		Quantity:           1,
		TakeProfitPrice:    52000,
		StopLossPrice:      48000,
		StopLossLimitPrice: 47900,
	}
}

func TestOCO_FillCancelsSibling(t *testing.T) {
	gw := newFakeGateway()
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	submitIntent(t, sup, ocoIntent())
	waitForSubmissions(t, gw, 2)

	tp := gw.submission(0)
	if tp.Type != exchange.TypeLimit || tp.Price != 52000 {
		t.Fatalf("unexpected take-profit leg: %+v", tp)
	}
	sl := gw.submission(1)
	if sl.Type != exchange.TypeStopLimit || sl.StopPrice != 48000 || sl.Price != 47900 {
		t.Fatalf("unexpected stop-loss leg: %+v", sl)
	}

	// 止盈腿成交，止损腿应在有限时间内被撤销。
	gw.fill("ord-1", 1, exchange.StatusFilled)
	waitForState(t, sup, "oco-1", order.StateFilled)

	ids := gw.cancelledIDs()
	if len(ids) != 1 || ids[0] != "ord-2" {
		t.Fatalf("expected stop-loss leg cancelled, got %v", ids)
	}

	snap, _ := sup.QueryIntent("oco-1")
	for _, child := range snap.Children {
		if !child.Status.Terminal() {
			t.Fatalf("child %s left non-terminal", child.ID)
		}
	}
	if len(snap.Annotations) != 0 {
		t.Fatalf("expected no race annotation, got %v", snap.Annotations)
	}
}

func TestOCO_DoubleFillRecordedAsRace(t *testing.T) {
	gw := newFakeGateway()
	gw.cancelErr = errors.New("transport down")
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	intent := ocoIntent()
	intent.ID = "oco-race"
	submitIntent(t, sup, intent)
	waitForSubmissions(t, gw, 2)

	// 撤单未送达前两腿相继成交：交易所级竞态，意图保持 Filled。
	gw.fill("ord-1", 1, exchange.StatusFilled)
	gw.fill("ord-2", 1, exchange.StatusFilled)
	waitForState(t, sup, "oco-race", order.StateFilled)

	snap, _ := sup.QueryIntent("oco-race")
	found := false
	for _, note := range snap.Annotations {
		if strings.Contains(note, "RaceCondition") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected RaceCondition annotation, got %v", snap.Annotations)
	}
}

func TestOCO_LegRejectionCancelsOther(t *testing.T) {
	gw := newFakeGateway()
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	intent := ocoIntent()
	intent.ID = "oco-reject"
	submitIntent(t, sup, intent)
	waitForSubmissions(t, gw, 2)

	gw.reject("ord-2", "PriceOutOfRange")
	waitForState(t, sup, "oco-reject", order.StateRejected)

	ids := gw.cancelledIDs()
	if len(ids) != 1 || ids[0] != "ord-1" {
		t.Fatalf("expected surviving leg cancelled, got %v", ids)
	}
}

func TestOCO_CancelIntent(t *testing.T) {
	gw := newFakeGateway()
	hub := feed.NewHub(64, nil)
	sup := newTestSupervisor(t, gw, hub)

	intent := ocoIntent()
	intent.ID = "oco-cancel"
	submitIntent(t, sup, intent)
	waitForSubmissions(t, gw, 2)

	if err := sup.CancelIntent("oco-cancel"); err != nil {
		t.Fatalf("CancelIntent failed: %v", err)
	}
	waitForState(t, sup, "oco-cancel", order.StateCancelled)

	if got := len(gw.cancelledIDs()); got != 2 {
		t.Fatalf("expected both legs cancelled, got %d", got)
	}
}
