package feed

import "testing"

func TestStreamSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/USDT:USDT": "btcusdt",
		"ETH/USDT":      "ethusdt",
		"btcusdt":       "btcusdt",
	}
	for in, want := range cases {
		if got := streamSymbol(in); got != want {
			t.Fatalf("streamSymbol(%q): expected %q, got %q", in, want, got)
		}
	}
}
