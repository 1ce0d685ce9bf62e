package exchange

import "testing"

func TestSettingsCache(t *testing.T) {
	c := newSettingsCache(TradingSettings{BuyEnabled: true, SellEnabled: false})

	if _, ok := c.get(settingBuyEnabled); ok {
		t.Fatal("fresh cache should miss")
	}
	if !c.fallback(settingBuyEnabled) {
		t.Fatal("buy fallback should be true")
	}
	if c.fallback(settingSellEnabled) {
		t.Fatal("sell fallback should be false")
	}

	c.put(settingSellEnabled, true)
	v, ok := c.get(settingSellEnabled)
	if !ok || !v {
		t.Fatalf("get after put = (%v, %v), want (true, true)", v, ok)
	}
}
