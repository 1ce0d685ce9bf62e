package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

const (
	settingBuyEnabled  = "buy_enabled"
	settingSellEnabled = "sell_enabled"
)

// settingsCache fronts the trading.settings table. Reads hit the cache,
// writes go to the table and refresh the cached value, so every trade
// request sees toggles without a per-request settings query.
type settingsCache struct {
	mu       sync.RWMutex
	values   map[string]bool
	defaults map[string]bool
}

func newSettingsCache(defaults TradingSettings) *settingsCache {
	return &settingsCache{
		values: make(map[string]bool),
		defaults: map[string]bool{
			settingBuyEnabled:  defaults.BuyEnabled,
			settingSellEnabled: defaults.SellEnabled,
		},
	}
}

func (c *settingsCache) get(key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *settingsCache) put(key string, value bool) {
	c.mu.Lock()
	c.values[key] = value
	c.mu.Unlock()
}

func (c *settingsCache) fallback(key string) bool {
	return c.defaults[key]
}

func (s *Service) BuyEnabled(ctx context.Context) (bool, error) {
	return s.setting(ctx, settingBuyEnabled)
}

func (s *Service) SellEnabled(ctx context.Context) (bool, error) {
	return s.setting(ctx, settingSellEnabled)
}

func (s *Service) Settings(ctx context.Context) (TradingSettings, error) {
	buy, err := s.BuyEnabled(ctx)
	if err != nil {
		return TradingSettings{}, err
	}
	sell, err := s.SellEnabled(ctx)
	if err != nil {
		return TradingSettings{}, err
	}
	return TradingSettings{BuyEnabled: buy, SellEnabled: sell}, nil
}

// UpdateSettings persists the toggles and refreshes the cache. Nil fields
// leave the corresponding toggle untouched.
func (s *Service) UpdateSettings(ctx context.Context, buyEnabled, sellEnabled *bool) (TradingSettings, error) {
	if buyEnabled == nil && sellEnabled == nil {
		return TradingSettings{}, fmt.Errorf("%w: buyEnabled or sellEnabled is required", ErrInvalidInput)
	}
	if buyEnabled != nil {
		if err := s.writeSetting(ctx, settingBuyEnabled, *buyEnabled); err != nil {
			return TradingSettings{}, err
		}
	}
	if sellEnabled != nil {
		if err := s.writeSetting(ctx, settingSellEnabled, *sellEnabled); err != nil {
			return TradingSettings{}, err
		}
	}
	return s.Settings(ctx)
}

func (s *Service) setting(ctx context.Context, key string) (bool, error) {
	if v, ok := s.settings.get(key); ok {
		return v, nil
	}
	var value bool
	err := s.db.QueryRow(ctx, `
		SELECT value FROM trading.settings WHERE key = $1
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		value = s.settings.fallback(key)
		s.settings.put(key, value)
		return value, nil
	}
	if err != nil {
		return false, err
	}
	s.settings.put(key, value)
	return value, nil
}

func (s *Service) writeSetting(ctx context.Context, key string, value bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trading.settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()
	`, key, value)
	if err != nil {
		return err
	}
	s.settings.put(key, value)
	return nil
}
