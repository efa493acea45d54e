package order

import (
	"testing"
	"time"
)

func validTWAP() Intent {
	return Intent{
		ID:       "twap-1",
		Symbol:   "BTC/USDT:USDT",
		Kind:     KindTWAP,
		Side:     SideBuy,
		Quantity: 100,
		Slices:   4,
		Duration: time.Minute,
	}
}

func TestIntentValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Intent)
		wantErr bool
	}{
		{"valid twap", func(*Intent) {}, false},
		{"missing id", func(i *Intent) { i.ID = "" }, true},
		{"bad side", func(i *Intent) { i.Side = "long" }, true},
		{"zero quantity", func(i *Intent) { i.Quantity = 0 }, true},
		{"zero slices", func(i *Intent) { i.Slices = 0 }, true},
		{"zero duration", func(i *Intent) { i.Duration = 0 }, true},
		{"unknown kind", func(i *Intent) { i.Kind = "iceberg" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validTWAP()
			tc.mutate(&intent)
			err := intent.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestIntentValidate_Grid(t *testing.T) {
	intent := Intent{
		ID:         "grid-1",
		Symbol:     "BTC/USDT:USDT",
		Kind:       KindGrid,
		Side:       SideBuy,
		Quantity:   5,
		LowerPrice: 90,
		UpperPrice: 110,
		Levels:     5,
	}
	if err := intent.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	intent.UpperPrice = 80
	if err := intent.Validate(); err == nil {
		t.Fatal("expected error for inverted price range")
	}

	intent.UpperPrice = 110
	intent.Spacing = "logarithmic"
	if err := intent.Validate(); err == nil {
		t.Fatal("expected error for unknown spacing")
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatal("Opposite mapping broken")
	}
}
