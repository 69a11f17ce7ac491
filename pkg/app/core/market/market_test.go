package market

import (
	"errors"
	"testing"
)

func TestValidateOrder(t *testing.T) {
	m, err := NewMarket("SOL-USDC", "SOL", "USDC", MintFor("SOL"), MintFor("USDC"), Params{
		PriceDecimals: 2, SizeDecimals: 3, TickSize: 5, LotSize: 10, MinOrderSize: 10, MaxOrderSize: 1000,
	})
	if err != nil {
		t.Fatalf("NewMarket: %v", err)
	}

	tests := []struct {
		name    string
		price   uint64
		amount  uint64
		wantErr error
	}{
		{"valid", 100, 20, nil},
		{"zero price", 0, 20, ErrZeroPrice},
		{"zero amount", 100, 0, ErrZeroAmount},
		{"off tick", 101, 20, ErrTickSize},
		{"off lot", 100, 25, ErrLotSize},
		{"above max", 100, 2000, ErrAboveMaximum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateOrder(tt.price, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateOrder(%d,%d) = %v, want %v", tt.price, tt.amount, err, tt.wantErr)
			}
		})
	}

	m.Status = Paused
	if err := m.ValidateOrder(100, 20); !errors.Is(err, ErrNotActive) {
		t.Errorf("paused market: err = %v, want ErrNotActive", err)
	}
}

func TestNewMarket_Invalid(t *testing.T) {
	same := MintFor("X")
	if _, err := NewMarket("X-X", "X", "X", same, same, DefaultParams); err == nil {
		t.Error("identical mints should be rejected")
	}
	p := DefaultParams
	p.TickSize = 0
	if _, err := NewMarket("A-B", "A", "B", MintFor("A"), MintFor("B"), p); err == nil {
		t.Error("zero tick size should be rejected")
	}
}

func TestToTicks(t *testing.T) {
	m, _ := NewMarketWithDefaults("SOL-USDC", "SOL", "USDC")

	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"101.25", 101250000, false},
		{"0.000001", 1, false},
		{"0.0000001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"99999999999999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := m.ToTicks(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ToTicks(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ToTicks(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	if got := m.FormatPrice(101250000); got != "101.25" {
		t.Errorf("FormatPrice = %q, want 101.25", got)
	}
	lots, err := m.ToLots("1.5")
	if err != nil || lots != 1500000000 {
		t.Errorf("ToLots(1.5) = %d, %v", lots, err)
	}
	if got := m.FormatAmount(lots); got != "1.5" {
		t.Errorf("FormatAmount = %q, want 1.5", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	sol, _ := NewMarketWithDefaults("SOL-USDC", "SOL", "USDC")
	eth, _ := NewMarketWithDefaults("ETH-USDC", "ETH", "USDC")

	if err := r.Register(sol); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(eth); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(sol); err == nil {
		t.Error("duplicate symbol accepted")
	}
	dup, _ := NewMarketWithDefaults("SOL-USDC2", "SOL", "USDC")
	if err := r.Register(dup); err == nil {
		t.Error("duplicate mint pair accepted")
	}

	list := r.List()
	if len(list) != 2 || list[0].Symbol != "ETH-USDC" {
		t.Errorf("List not sorted: %v", list)
	}
	if m, ok := r.ByMints(MintFor("SOL"), MintFor("USDC")); !ok || m != sol {
		t.Error("ByMints did not find SOL-USDC")
	}

	if err := r.SetStatus("SOL-USDC", Closed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := r.SetStatus("SOL-USDC", Active); err == nil {
		t.Error("Closed should be terminal")
	}
	if _, err := r.Get("BTC-USDC"); err == nil {
		t.Error("Get on unknown symbol should fail")
	}
}
