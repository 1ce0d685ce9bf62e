package exchange

import "testing"

func TestCardModifierViewsRebuild(t *testing.T) {
	in := []CardModifierInput{
		{StockID: 1, ChangeType: ChangeIncrease, ChangePercent: dec("10")},
		{StockID: 2, ChangeType: ChangeDecrease, ChangePercent: dec("5")},
	}
	symbols := map[int64]string{1: "AAPL", 2: "MSFT"}

	// A serialization retry rebuilds the card view; each build must start
	// from scratch, never accumulate onto a prior attempt's slice.
	for attempt := 0; attempt < 2; attempt++ {
		views := cardModifierViews(in, symbols)
		if len(views) != len(in) {
			t.Fatalf("attempt %d: got %d views, want %d", attempt, len(views), len(in))
		}
	}

	views := cardModifierViews(in, symbols)
	if views[0].StockSymbol != "AAPL" || views[0].ChangePercent != 10 {
		t.Fatalf("unexpected first view: %+v", views[0])
	}
	if views[1].StockSymbol != "MSFT" || views[1].ChangeType != ChangeDecrease {
		t.Fatalf("unexpected second view: %+v", views[1])
	}
}
