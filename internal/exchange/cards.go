package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CreateCard stores a named bundle of per-stock price modifiers. Every
// referenced stock must resolve at creation time; the symbol is snapshotted
// onto the modifier so card listings survive later delistings.
func (s *Service) CreateCard(ctx context.Context, in CreateCardInput) (CardView, error) {
	var out CardView
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return out, fmt.Errorf("%w: card name is required", ErrInvalidInput)
	}
	if len(in.Modifiers) == 0 {
		return out, fmt.Errorf("%w: priceModifiers array is required", ErrInvalidInput)
	}
	for _, m := range in.Modifiers {
		if !validChangeType(m.ChangeType) {
			return out, fmt.Errorf("%w: changeType must be increase, decrease or same", ErrInvalidInput)
		}
		if m.ChangePercent.IsNegative() {
			return out, fmt.Errorf("%w: changePercent must not be negative", ErrInvalidInput)
		}
	}
	if in.CardType == "" {
		in.CardType = "custom"
	}

	err := s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		// A serialization retry re-runs this closure; start from a clean
		// view so nothing accumulates across attempts.
		out = CardView{}
		symbols := make(map[int64]string, len(in.Modifiers))
		for _, m := range in.Modifiers {
			var symbol string
			err := tx.QueryRow(ctx, `
				SELECT symbol FROM trading.stocks WHERE id = $1
			`, m.StockID).Scan(&symbol)
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrStockNotFound
			}
			if err != nil {
				return err
			}
			symbols[m.StockID] = symbol
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO trading.cards (name, description, card_type, created_by)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, in.Name, in.Description, in.CardType, in.CreatedBy).Scan(&out.ID, &out.CreatedAt)
		if err != nil {
			return err
		}

		for _, m := range in.Modifiers {
			if _, err := tx.Exec(ctx, `
				INSERT INTO trading.card_modifiers (card_id, stock_id, stock_symbol, change_type, change_percent)
				VALUES ($1, $2, $3, $4, $5)
			`, out.ID, m.StockID, symbols[m.StockID], m.ChangeType, m.ChangePercent); err != nil {
				return err
			}
		}
		out.Modifiers = cardModifierViews(in.Modifiers, symbols)
		return nil
	})
	if err != nil {
		return CardView{}, err
	}
	out.Name = in.Name
	out.Description = in.Description
	out.CardType = in.CardType
	out.CreatedBy = in.CreatedBy
	return out, nil
}

// cardModifierViews renders modifier inputs with their snapshotted symbols.
// Always a fresh slice, so rebuilding the same card view twice is safe.
func cardModifierViews(modifiers []CardModifierInput, symbols map[int64]string) []CardModifierView {
	out := make([]CardModifierView, 0, len(modifiers))
	for _, m := range modifiers {
		pct, _ := m.ChangePercent.Float64()
		out = append(out, CardModifierView{
			StockID:       m.StockID,
			StockSymbol:   symbols[m.StockID],
			ChangeType:    m.ChangeType,
			ChangePercent: pct,
		})
	}
	return out
}

func (s *Service) ListCards(ctx context.Context) ([]CardView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, card_type, is_active, activated_at,
		       COALESCE(activated_by, ''), COALESCE(created_by, ''), created_at
		FROM trading.cards
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]CardView, 0)
	for rows.Next() {
		var c CardView
		var activatedAt *time.Time
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CardType, &c.IsActive,
			&activatedAt, &c.ActivatedBy, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ActivatedAt = activatedAt
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range cards {
		mods, err := s.cardModifiers(ctx, cards[i].ID)
		if err != nil {
			return nil, err
		}
		cards[i].Modifiers = mods
	}
	return cards, nil
}

func (s *Service) cardModifiers(ctx context.Context, cardID int64) ([]CardModifierView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT stock_id, stock_symbol, change_type, change_percent
		FROM trading.card_modifiers
		WHERE card_id = $1
		ORDER BY id
	`, cardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CardModifierView, 0)
	for rows.Next() {
		var m CardModifierView
		var pct decimal.Decimal
		if err := rows.Scan(&m.StockID, &m.StockSymbol, &m.ChangeType, &pct); err != nil {
			return nil, err
		}
		m.ChangePercent, _ = pct.Float64()
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActivateCard applies every modifier to its stock's price and flips the
// card active, all in one transaction. Activation is one-way: an already
// active card is rejected rather than re-applied against the mutated
// prices. Modifiers whose stock no longer resolves are skipped.
func (s *Service) ActivateCard(ctx context.Context, cardID int64, actorID string) (ActivateCardResult, error) {
	var out ActivateCardResult
	err := s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		out = ActivateCardResult{PriceChanges: []PriceChange{}}

		var name string
		var isActive bool
		err := tx.QueryRow(ctx, `
			SELECT name, is_active
			FROM trading.cards
			WHERE id = $1
			FOR UPDATE
		`, cardID).Scan(&name, &isActive)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCardNotFound
		}
		if err != nil {
			return err
		}
		if isActive {
			return ErrCardAlreadyActive
		}
		out.CardName = name

		rows, err := tx.Query(ctx, `
			SELECT stock_id, change_type, change_percent
			FROM trading.card_modifiers
			WHERE card_id = $1
			ORDER BY id
		`, cardID)
		if err != nil {
			return err
		}
		type modifier struct {
			stockID    int64
			changeType string
			percent    decimal.Decimal
		}
		var mods []modifier
		for rows.Next() {
			var m modifier
			if err := rows.Scan(&m.stockID, &m.changeType, &m.percent); err != nil {
				rows.Close()
				return err
			}
			mods = append(mods, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, m := range mods {
			var symbol string
			var oldPrice decimal.Decimal
			err := tx.QueryRow(ctx, `
				SELECT symbol, current_price
				FROM trading.stocks
				WHERE id = $1
				FOR UPDATE
			`, m.stockID).Scan(&symbol, &oldPrice)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}

			newPrice := ApplyModifier(oldPrice, m.changeType, m.percent)
			if !newPrice.Equal(oldPrice) {
				if _, err := tx.Exec(ctx, `
					UPDATE trading.stocks
					SET current_price = $1
					WHERE id = $2
				`, newPrice, m.stockID); err != nil {
					return err
				}
			}
			pct, _ := m.percent.Float64()
			out.PriceChanges = append(out.PriceChanges, PriceChange{
				Symbol:        symbol,
				OldPrice:      money(oldPrice),
				NewPrice:      money(newPrice),
				ChangeType:    m.changeType,
				ChangePercent: pct,
			})
		}

		if _, err := tx.Exec(ctx, `
			UPDATE trading.cards
			SET is_active = true, activated_at = now(), activated_by = $1
			WHERE id = $2
		`, actorID, cardID); err != nil {
			return err
		}
		return appendActivityTx(ctx, tx, "card_activated", actorID, map[string]any{
			"card": name, "changes": len(out.PriceChanges),
		})
	})
	return out, err
}

func (s *Service) DeleteCard(ctx context.Context, cardID int64) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM trading.cards WHERE id = $1`, cardID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}
