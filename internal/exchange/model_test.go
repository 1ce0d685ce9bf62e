package exchange

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestWeightedAverageCost(t *testing.T) {
	cases := []struct {
		name   string
		oldAvg string
		oldQty int64
		price  string
		qty    int64
		want   string
	}{
		{"first buy", "0", 0, "10", 5, "10"},
		{"blend up", "10", 10, "20", 10, "15"},
		{"blend down", "100", 1, "50", 3, "62.5"},
		{"same price", "7.25", 4, "7.25", 6, "7.25"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := WeightedAverageCost(dec(tc.oldAvg), tc.oldQty, dec(tc.price), tc.qty)
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestWeightedAverageCostZeroTotal(t *testing.T) {
	if got := WeightedAverageCost(dec("10"), 0, dec("20"), 0); !got.IsZero() {
		t.Fatalf("got %s, want 0", got)
	}
}

func TestApplyBuyToHolding(t *testing.T) {
	qty, avg := ApplyBuyToHolding(false, 0, decimal.Zero, 5, dec("12.50"))
	if qty != 5 || !avg.Equal(dec("12.50")) {
		t.Fatalf("first buy = (%d, %s), want (5, 12.50)", qty, avg)
	}
	qty, avg = ApplyBuyToHolding(true, 10, dec("10"), 10, dec("20"))
	if qty != 20 || !avg.Equal(dec("15")) {
		t.Fatalf("repeat buy = (%d, %s), want (20, 15)", qty, avg)
	}
}

func TestReduceHolding(t *testing.T) {
	cases := []struct {
		name      string
		held      int64
		qty       int64
		remaining int64
		remove    bool
		wantErr   bool
	}{
		{"partial sell", 10, 4, 6, false, false},
		{"full sell removes position", 10, 10, 0, true, false},
		{"oversell rejected", 3, 10, 3, false, true},
		{"sell against nothing", 0, 1, 0, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remaining, remove, err := ReduceHolding(tc.held, tc.qty)
			if tc.wantErr {
				if !errors.Is(err, ErrInsufficientShares) {
					t.Fatalf("err = %v, want ErrInsufficientShares", err)
				}
				var sharesErr *InsufficientSharesError
				if !errors.As(err, &sharesErr) || sharesErr.Available != tc.held {
					t.Fatalf("reported available = %v, want %d", err, tc.held)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if remaining != tc.remaining || remove != tc.remove {
				t.Fatalf("got (%d, %v), want (%d, %v)", remaining, remove, tc.remaining, tc.remove)
			}
		})
	}
}

func TestApplyModifier(t *testing.T) {
	cases := []struct {
		name       string
		price      string
		changeType string
		percent    string
		want       string
	}{
		{"increase ten percent", "100", ChangeIncrease, "10", "110"},
		{"decrease ten percent", "100", ChangeDecrease, "10", "90"},
		{"same leaves price", "42.42", ChangeSame, "99", "42.42"},
		{"decrease clamps to floor", "10.00", ChangeDecrease, "150", "0.01"},
		{"decrease to exactly floor", "1", ChangeDecrease, "99", "0.01"},
		{"fractional percent", "200", ChangeIncrease, "2.5", "205"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplyModifier(dec(tc.price), tc.changeType, dec(tc.percent))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSplitAllocation(t *testing.T) {
	if got := SplitAllocation(dec("1000"), 4); !got.Equal(dec("250")) {
		t.Fatalf("got %s, want 250", got)
	}
	if got := SplitAllocation(dec("100"), 3); !got.Mul(decimal.NewFromInt(3)).Round(2).Equal(dec("100")) {
		t.Fatalf("three-way split does not recombine: share %s", got)
	}
	if got := SplitAllocation(dec("500"), 0); !got.IsZero() {
		t.Fatalf("got %s, want 0 for empty team", got)
	}
}

func TestProfitLossPercent(t *testing.T) {
	if got := ProfitLossPercent(dec("50"), dec("200")); !got.Equal(dec("25")) {
		t.Fatalf("got %s, want 25", got)
	}
	if got := ProfitLossPercent(dec("-20"), dec("100")); !got.Equal(dec("-20")) {
		t.Fatalf("got %s, want -20", got)
	}
	if got := ProfitLossPercent(dec("50"), decimal.Zero); !got.IsZero() {
		t.Fatalf("got %s, want 0 when nothing invested", got)
	}
}

func TestSymbolValidation(t *testing.T) {
	valid := []string{"AAPL", "X", "BTC100", "0XY"}
	for _, s := range valid {
		if err := ValidateSymbol(s); err != nil {
			t.Errorf("ValidateSymbol(%q) = %v, want nil", s, err)
		}
	}
	invalid := []string{"", "aapl", "TOOLONGSYMBOL", "AB-C", "A B"}
	for _, s := range invalid {
		if err := ValidateSymbol(s); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ValidateSymbol(%q) = %v, want ErrInvalidInput", s, err)
		}
	}
	if got := NormalizeSymbol("  aapl "); got != "AAPL" {
		t.Fatalf("NormalizeSymbol = %q, want AAPL", got)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		limit, fallback, max, want int
	}{
		{0, 50, 200, 50},
		{-5, 50, 200, 50},
		{25, 50, 200, 25},
		{10000000, 50, 200, 200},
		{500, 100, 500, 500},
	}
	for _, tc := range cases {
		if got := clampLimit(tc.limit, tc.fallback, tc.max); got != tc.want {
			t.Errorf("clampLimit(%d, %d, %d) = %d, want %d", tc.limit, tc.fallback, tc.max, got, tc.want)
		}
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	var err error = &InsufficientFundsError{Required: dec("100"), Available: dec("40")}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatal("InsufficientFundsError should match ErrInsufficientFunds")
	}
	err = &InsufficientSharesError{Requested: 10, Available: 3}
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatal("InsufficientSharesError should match ErrInsufficientShares")
	}
}
