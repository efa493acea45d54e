package feed

import (
	"testing"
	"time"
)

func tick(symbol string, price float64, ts time.Time) PriceTick {
	return PriceTick{Symbol: symbol, Price: price, Timestamp: ts}
}

func TestHub_PublishDeliversInOrder(t *testing.T) {
	hub := NewHub(8, nil)
	sub, err := hub.Subscribe("BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	base := time.Now()
	prices := []float64{100, 101, 102}
	for i, p := range prices {
		hub.Publish(tick("BTC/USDT:USDT", p, base.Add(time.Duration(i)*time.Millisecond)))
	}

	for i, want := range prices {
		got := <-sub.C
		if got.Price != want {
			t.Fatalf("tick %d: expected price %v, got %v", i, want, got.Price)
		}
	}
}

func TestHub_SymbolIsolation(t *testing.T) {
	hub := NewHub(8, nil)
	btc, _ := hub.Subscribe("BTC/USDT:USDT")
	defer btc.Close()

	hub.Publish(tick("ETH/USDT:USDT", 3000, time.Now()))

	select {
	case got := <-btc.C:
		t.Fatalf("received tick for wrong symbol: %+v", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(1, nil)
	slow, _ := hub.Subscribe("BTC/USDT:USDT")
	fast, _ := hub.Subscribe("BTC/USDT:USDT")
	defer slow.Close()
	defer fast.Close()

	// slow 的缓冲为1且从不消费，多余行情被丢弃而不是阻塞广播；
	// fast 紧跟每次发布消费，若广播被 slow 阻塞则此处超时。
	base := time.Now()
	for i := 0; i < 5; i++ {
		hub.Publish(tick("BTC/USDT:USDT", float64(100+i), base.Add(time.Duration(i)*time.Millisecond)))
		select {
		case got := <-fast.C:
			if got.Price != float64(100+i) {
				t.Fatalf("tick %d: expected price %v, got %v", i, float64(100+i), got.Price)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("fast subscriber missed tick %d", i)
		}
	}
}
