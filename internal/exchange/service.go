package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Service owns every accounting operation. All mutations of balances,
// holdings and prices run inside serializable transactions with row locks
// on the account, so one settlement is all-or-nothing and two concurrent
// requests from the same account cannot both pass a sufficiency check.
type Service struct {
	db       *pgxpool.Pool
	log      *slog.Logger
	settings *settingsCache
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, defaults TradingSettings) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		log:      logger,
		settings: newSettingsCache(defaults),
	}
}

// Buy settles a purchase: balance debit, immutable trade record, and a
// holding upsert with a quantity-weighted average cost, in one transaction.
func (s *Service) Buy(ctx context.Context, in TradeInput) (BuyResult, error) {
	var out BuyResult
	if in.Quantity <= 0 {
		return out, fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidInput)
	}
	enabled, err := s.BuyEnabled(ctx)
	if err != nil {
		return out, err
	}
	if !enabled {
		return out, ErrBuyingDisabled
	}

	err = s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		stock, err := stockForTradeTx(ctx, tx, in.StockID)
		if err != nil {
			return err
		}

		var balance decimal.Decimal
		var team, username string
		err = tx.QueryRow(ctx, `
			SELECT balance, team, username
			FROM users.accounts
			WHERE id = $1
			FOR UPDATE
		`, in.AccountID).Scan(&balance, &team, &username)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}

		cost := stock.price.Mul(decimal.NewFromInt(in.Quantity))
		if balance.LessThan(cost) {
			return &InsufficientFundsError{Required: cost, Available: balance}
		}
		newBalance := balance.Sub(cost)

		if _, err := tx.Exec(ctx, `
			UPDATE users.accounts
			SET balance = $1
			WHERE id = $2
		`, newBalance, in.AccountID); err != nil {
			return err
		}

		trade, err := appendTradeTx(ctx, tx, in.AccountID, stock, SideBuy, in.Quantity, cost, team)
		if err != nil {
			return err
		}

		qty, avg, err := upsertHoldingBuyTx(ctx, tx, in.AccountID, stock.id, in.Quantity, stock.price, team)
		if err != nil {
			return err
		}

		if err := appendActivityTx(ctx, tx, "buy", in.AccountID, map[string]any{
			"symbol": stock.symbol, "quantity": in.Quantity, "total": money(cost),
		}); err != nil {
			return err
		}

		out = BuyResult{
			Trade:      trade,
			NewBalance: money(newBalance),
			Portfolio:  HoldingStamp{Quantity: qty, AveragePrice: money(avg)},
		}
		return nil
	})
	return out, err
}

// Sell settles a sale: balance credit, trade record, and a holding
// decrement that removes the row entirely when the position reaches zero.
// Average cost is never recalculated on a sell.
func (s *Service) Sell(ctx context.Context, in TradeInput) (SellResult, error) {
	var out SellResult
	if in.Quantity <= 0 {
		return out, fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidInput)
	}
	enabled, err := s.SellEnabled(ctx)
	if err != nil {
		return out, err
	}
	if !enabled {
		return out, ErrSellingDisabled
	}

	err = s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		stock, err := stockRowTx(ctx, tx, in.StockID)
		if err != nil {
			return err
		}

		var balance decimal.Decimal
		var team string
		err = tx.QueryRow(ctx, `
			SELECT balance, team
			FROM users.accounts
			WHERE id = $1
			FOR UPDATE
		`, in.AccountID).Scan(&balance, &team)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return err
		}

		remaining, err := reduceHoldingTx(ctx, tx, in.AccountID, stock.id, in.Quantity)
		if err != nil {
			return err
		}

		proceeds := stock.price.Mul(decimal.NewFromInt(in.Quantity))
		newBalance := balance.Add(proceeds)
		if _, err := tx.Exec(ctx, `
			UPDATE users.accounts
			SET balance = $1
			WHERE id = $2
		`, newBalance, in.AccountID); err != nil {
			return err
		}

		trade, err := appendTradeTx(ctx, tx, in.AccountID, stock, SideSell, in.Quantity, proceeds, team)
		if err != nil {
			return err
		}

		if err := appendActivityTx(ctx, tx, "sell", in.AccountID, map[string]any{
			"symbol": stock.symbol, "quantity": in.Quantity, "total": money(proceeds),
		}); err != nil {
			return err
		}

		out = SellResult{
			Trade:             trade,
			NewBalance:        money(newBalance),
			RemainingQuantity: remaining,
		}
		return nil
	})
	return out, err
}

// Portfolio values every holding at the current stock price. The join
// resolves the stock; a holding whose stock cannot be resolved is simply
// absent from the result instead of failing the whole read.
func (s *Service) Portfolio(ctx context.Context, accountID string) (PortfolioResult, error) {
	out := PortfolioResult{Portfolio: []PortfolioItem{}}
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.symbol, s.name, s.description, s.current_price, s.initial_price,
		       s.available, s.category, s.created_at,
		       h.quantity, h.average_price
		FROM trading.holdings h
		JOIN trading.stocks s ON s.id = h.stock_id
		WHERE h.account_id = $1
		ORDER BY s.symbol
	`, accountID)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	totalInvested := decimal.Zero
	totalCurrent := decimal.Zero
	for rows.Next() {
		var sv StockView
		var price, initial, avg decimal.Decimal
		var qty int64
		if err := rows.Scan(&sv.ID, &sv.Symbol, &sv.Name, &sv.Description, &price, &initial,
			&sv.Available, &sv.Category, &sv.CreatedAt, &qty, &avg); err != nil {
			return out, err
		}
		sv.CurrentPrice = money(price)
		sv.InitialPrice = money(initial)

		qtyDec := decimal.NewFromInt(qty)
		invested := avg.Mul(qtyDec)
		current := price.Mul(qtyDec)
		profit := current.Sub(invested)

		out.Portfolio = append(out.Portfolio, PortfolioItem{
			Stock:             sv,
			Quantity:          qty,
			AveragePrice:      money(avg),
			CurrentPrice:      money(price),
			InvestedValue:     money(invested),
			CurrentValue:      money(current),
			ProfitLoss:        money(profit),
			ProfitLossPercent: money(ProfitLossPercent(profit, invested)),
		})
		totalInvested = totalInvested.Add(invested)
		totalCurrent = totalCurrent.Add(current)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}

	totalProfit := totalCurrent.Sub(totalInvested)
	out.Summary = PortfolioSummary{
		TotalInvested:          money(totalInvested),
		TotalCurrent:           money(totalCurrent),
		TotalProfitLoss:        money(totalProfit),
		TotalProfitLossPercent: money(ProfitLossPercent(totalProfit, totalInvested)),
	}
	return out, nil
}

// TradeHistory is the caller's most recent trades, newest first.
func (s *Service) TradeHistory(ctx context.Context, accountID string, limit int) ([]TradeView, error) {
	limit = clampLimit(limit, 50, 200)
	rows, err := s.db.Query(ctx, `
		SELECT t.id, s.symbol, s.name, t.side, t.quantity, t.price_per_unit,
		       t.total_amount, t.team, t.created_at
		FROM trading.trades t
		JOIN trading.stocks s ON s.id = t.stock_id
		WHERE t.account_id = $1
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows, false)
}

// ListStocks returns tradable stocks; includeDelisted widens the result
// for the admin views.
func (s *Service) ListStocks(ctx context.Context, includeDelisted bool) ([]StockView, error) {
	query := `
		SELECT id, symbol, name, description, current_price, initial_price,
		       available, category, created_at
		FROM trading.stocks
	`
	if !includeDelisted {
		query += " WHERE available = true"
	}
	query += " ORDER BY symbol"
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]StockView, 0)
	for rows.Next() {
		var sv StockView
		var price, initial decimal.Decimal
		if err := rows.Scan(&sv.ID, &sv.Symbol, &sv.Name, &sv.Description, &price, &initial,
			&sv.Available, &sv.Category, &sv.CreatedAt); err != nil {
			return nil, err
		}
		sv.CurrentPrice = money(price)
		sv.InitialPrice = money(initial)
		out = append(out, sv)
	}
	return out, rows.Err()
}

type stockRow struct {
	id        int64
	symbol    string
	name      string
	price     decimal.Decimal
	available bool
}

func stockRowTx(ctx context.Context, tx pgx.Tx, stockID int64) (stockRow, error) {
	var st stockRow
	err := tx.QueryRow(ctx, `
		SELECT id, symbol, name, current_price, available
		FROM trading.stocks
		WHERE id = $1
	`, stockID).Scan(&st.id, &st.symbol, &st.name, &st.price, &st.available)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, ErrStockNotFound
	}
	return st, err
}

func stockForTradeTx(ctx context.Context, tx pgx.Tx, stockID int64) (stockRow, error) {
	st, err := stockRowTx(ctx, tx, stockID)
	if err != nil {
		return st, err
	}
	if !st.available || !st.price.IsPositive() {
		return st, ErrStockUnavailable
	}
	return st, nil
}

func appendTradeTx(ctx context.Context, tx pgx.Tx, accountID string, stock stockRow, side string, qty int64, total decimal.Decimal, team string) (TradeView, error) {
	var id int64
	var createdAt time.Time
	err := tx.QueryRow(ctx, `
		INSERT INTO trading.trades (account_id, stock_id, side, quantity, price_per_unit, total_amount, team)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, accountID, stock.id, side, qty, stock.price, total, team).Scan(&id, &createdAt)
	if err != nil {
		return TradeView{}, err
	}
	return TradeView{
		ID:           id,
		Symbol:       stock.symbol,
		StockName:    stock.name,
		Side:         side,
		Quantity:     qty,
		PricePerUnit: money(stock.price),
		TotalAmount:  money(total),
		Team:         team,
		CreatedAt:    createdAt,
	}, nil
}

func upsertHoldingBuyTx(ctx context.Context, tx pgx.Tx, accountID string, stockID, qty int64, price decimal.Decimal, team string) (int64, decimal.Decimal, error) {
	var oldQty int64
	var oldAvg decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT quantity, average_price
		FROM trading.holdings
		WHERE account_id = $1 AND stock_id = $2
		FOR UPDATE
	`, accountID, stockID).Scan(&oldQty, &oldAvg)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, decimal.Zero, err
	}
	exists := err == nil

	newQty, newAvg := ApplyBuyToHolding(exists, oldQty, oldAvg, qty, price)
	if !exists {
		_, err = tx.Exec(ctx, `
			INSERT INTO trading.holdings (account_id, stock_id, quantity, average_price, team)
			VALUES ($1, $2, $3, $4, $5)
		`, accountID, stockID, newQty, newAvg, team)
		return newQty, newAvg, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE trading.holdings
		SET quantity = $1, average_price = $2, updated_at = now()
		WHERE account_id = $3 AND stock_id = $4
	`, newQty, newAvg, accountID, stockID)
	return newQty, newAvg, err
}

func reduceHoldingTx(ctx context.Context, tx pgx.Tx, accountID string, stockID, qty int64) (int64, error) {
	var held int64
	err := tx.QueryRow(ctx, `
		SELECT quantity
		FROM trading.holdings
		WHERE account_id = $1 AND stock_id = $2
		FOR UPDATE
	`, accountID, stockID).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &InsufficientSharesError{Requested: qty, Available: 0}
	}
	if err != nil {
		return 0, err
	}

	remaining, remove, err := ReduceHolding(held, qty)
	if err != nil {
		return 0, err
	}
	if remove {
		_, err := tx.Exec(ctx, `
			DELETE FROM trading.holdings
			WHERE account_id = $1 AND stock_id = $2
		`, accountID, stockID)
		return 0, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE trading.holdings
		SET quantity = $1, updated_at = now()
		WHERE account_id = $2 AND stock_id = $3
	`, remaining, accountID, stockID)
	return remaining, err
}

func appendActivityTx(ctx context.Context, tx pgx.Tx, kind, accountID string, detail map[string]any) error {
	meta, _ := json.Marshal(detail)
	_, err := tx.Exec(ctx, `
		INSERT INTO trading.activities (type, account_id, detail)
		VALUES ($1, $2, $3::jsonb)
	`, kind, accountID, string(meta))
	return err
}

func scanTrades(rows pgx.Rows, withUsername bool) ([]TradeView, error) {
	out := make([]TradeView, 0)
	for rows.Next() {
		var t TradeView
		var price, total decimal.Decimal
		dest := []any{&t.ID, &t.Symbol, &t.StockName, &t.Side, &t.Quantity, &price, &total, &t.Team, &t.CreatedAt}
		if withUsername {
			dest = append(dest, &t.Username)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t.PricePerUnit = money(price)
		t.TotalAmount = money(total)
		out = append(out, t)
	}
	return out, rows.Err()
}

// withSerializableTx runs fn inside a serializable transaction, retrying
// serialization failures with capped exponential backoff. Exhausting the
// retry budget surfaces ErrTxConflict so the caller can resubmit.
func (s *Service) withSerializableTx(ctx context.Context, fn func(pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		s.log.Debug("serialization conflict, retrying", "attempt", attempt+1)
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
