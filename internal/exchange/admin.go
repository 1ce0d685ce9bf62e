package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CreateStock lists a new instrument. Symbols are case-normalized and
// unique; the creation price doubles as the initial price.
func (s *Service) CreateStock(ctx context.Context, in CreateStockInput) (StockView, error) {
	var out StockView
	in.Symbol = NormalizeSymbol(in.Symbol)
	if err := ValidateSymbol(in.Symbol); err != nil {
		return out, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return out, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !in.Price.IsPositive() {
		return out, fmt.Errorf("%w: currentPrice must be greater than 0", ErrInvalidInput)
	}
	if in.Category == "" {
		in.Category = "general"
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO trading.stocks (symbol, name, description, current_price, initial_price, available, category, created_by)
		VALUES ($1, $2, $3, $4, $4, true, $5, $6)
		RETURNING id, created_at
	`, in.Symbol, in.Name, in.Description, in.Price, in.Category, in.CreatedBy).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return out, ErrSymbolExists
		}
		return out, err
	}
	out.Symbol = in.Symbol
	out.Name = in.Name
	out.Description = in.Description
	out.CurrentPrice = money(in.Price)
	out.InitialPrice = money(in.Price)
	out.Available = true
	out.Category = in.Category
	return out, nil
}

// UpdateStockPrice is the direct admin price override, independent of
// trading cards.
func (s *Service) UpdateStockPrice(ctx context.Context, stockID int64, price decimal.Decimal) (StockView, error) {
	var out StockView
	if !price.IsPositive() {
		return out, fmt.Errorf("%w: currentPrice must be greater than 0", ErrInvalidInput)
	}
	var initial decimal.Decimal
	err := s.db.QueryRow(ctx, `
		UPDATE trading.stocks
		SET current_price = $1
		WHERE id = $2
		RETURNING id, symbol, name, description, initial_price, available, category, created_at
	`, price, stockID).Scan(&out.ID, &out.Symbol, &out.Name, &out.Description,
		&initial, &out.Available, &out.Category, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrStockNotFound
	}
	if err != nil {
		return out, err
	}
	out.CurrentPrice = money(price)
	out.InitialPrice = money(initial)
	return out, nil
}

// DelistStock is the delete operation. Deletion is soft: the stock is
// marked unavailable so holdings keep resolving and sells still value
// correctly; nothing ever dangles.
func (s *Service) DelistStock(ctx context.Context, stockID int64) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE trading.stocks
		SET available = false
		WHERE id = $1
	`, stockID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

// AllocateTeamMoney distributes a total across every member of a team in
// one transaction. "equal" adds the per-member share to existing balances;
// any other mode sets each balance to the share, discarding what was there.
func (s *Service) AllocateTeamMoney(ctx context.Context, in AllocateInput) (AllocateResult, error) {
	var out AllocateResult
	in.TeamName = strings.TrimSpace(in.TeamName)
	if in.TeamName == "" {
		return out, fmt.Errorf("%w: teamName is required", ErrInvalidInput)
	}
	if !in.TotalAmount.IsPositive() {
		return out, fmt.Errorf("%w: totalAmount must be greater than 0", ErrInvalidInput)
	}
	mode := strings.TrimSpace(in.DistributionType)
	if mode != DistributeEqual {
		mode = DistributeSet
	}

	err := s.withSerializableTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, username, balance
			FROM users.accounts
			WHERE team = $1
			ORDER BY username
			FOR UPDATE
		`, in.TeamName)
		if err != nil {
			return err
		}
		type member struct {
			id       string
			username string
			balance  decimal.Decimal
		}
		var members []member
		for rows.Next() {
			var m member
			if err := rows.Scan(&m.id, &m.username, &m.balance); err != nil {
				rows.Close()
				return err
			}
			members = append(members, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(members) == 0 {
			return ErrTeamEmpty
		}

		share := SplitAllocation(in.TotalAmount, len(members))
		out = AllocateResult{
			TeamName:         in.TeamName,
			TotalAmount:      money(in.TotalAmount),
			DistributionType: mode,
			UpdatedMembers:   make([]AllocatedMember, 0, len(members)),
		}
		for _, m := range members {
			newBalance := share
			if mode == DistributeEqual {
				newBalance = m.balance.Add(share)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE users.accounts
				SET balance = $1
				WHERE id = $2
			`, newBalance, m.id); err != nil {
				return err
			}
			out.UpdatedMembers = append(out.UpdatedMembers, AllocatedMember{
				ID:        m.id,
				Username:  m.username,
				Balance:   money(newBalance),
				Allocated: money(share),
			})
		}
		out.MembersUpdated = len(out.UpdatedMembers)
		return appendActivityTx(ctx, tx, "allocation", in.ActorID, map[string]any{
			"team": in.TeamName, "total": money(in.TotalAmount), "mode": mode,
		})
	})
	return out, err
}

// ListTeams groups accounts by team with balance totals, richest first.
func (s *Service) ListTeams(ctx context.Context) ([]TeamView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, email, team, role, balance, created_at
		FROM users.accounts
		ORDER BY team, username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTeam := make(map[string]*TeamView)
	order := make([]string, 0)
	totals := make(map[string]decimal.Decimal)
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.ID, &acct.Username, &acct.Email, &acct.Team,
			&acct.Role, &acct.Balance, &acct.CreatedAt); err != nil {
			return nil, err
		}
		tv, ok := byTeam[acct.Team]
		if !ok {
			tv = &TeamView{TeamName: acct.Team}
			byTeam[acct.Team] = tv
			order = append(order, acct.Team)
			totals[acct.Team] = decimal.Zero
		}
		tv.Members = append(tv.Members, acct.View())
		tv.MemberCount++
		totals[acct.Team] = totals[acct.Team].Add(acct.Balance)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TeamView, 0, len(order))
	for _, name := range order {
		tv := byTeam[name]
		tv.TotalBalance = money(totals[name])
		out = append(out, *tv)
	}
	// Richest team first, matching the admin dashboard sort.
	sort.Slice(out, func(i, j int) bool { return out[i].TotalBalance > out[j].TotalBalance })
	return out, nil
}

// TeamExists reports whether any account already belongs to the team.
func (s *Service) TeamExists(ctx context.Context, teamName string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users.accounts WHERE team = $1)
	`, strings.TrimSpace(teamName)).Scan(&exists)
	return exists, err
}

// AssignTeam moves an account onto a team.
func (s *Service) AssignTeam(ctx context.Context, accountID, teamName string) (Account, error) {
	teamName = strings.TrimSpace(teamName)
	if teamName == "" {
		return Account{}, fmt.Errorf("%w: teamName is required", ErrInvalidInput)
	}
	var acct Account
	err := s.db.QueryRow(ctx, `
		UPDATE users.accounts
		SET team = $1
		WHERE id = $2
		RETURNING id, username, email, password_hash, team, role, balance, created_at
	`, teamName, accountID).Scan(&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash,
		&acct.Team, &acct.Role, &acct.Balance, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return acct, ErrAccountNotFound
	}
	return acct, err
}

func (s *Service) ListAccounts(ctx context.Context) ([]AccountView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, email, team, role, balance, created_at
		FROM users.accounts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AccountView, 0)
	for rows.Next() {
		var acct Account
		if err := rows.Scan(&acct.ID, &acct.Username, &acct.Email, &acct.Team,
			&acct.Role, &acct.Balance, &acct.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, acct.View())
	}
	return out, rows.Err()
}

// SetAccountBalance is the direct administrative balance override.
func (s *Service) SetAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) (Account, error) {
	var acct Account
	if balance.IsNegative() {
		return acct, fmt.Errorf("%w: balance must not be negative", ErrInvalidInput)
	}
	err := s.db.QueryRow(ctx, `
		UPDATE users.accounts
		SET balance = $1
		WHERE id = $2
		RETURNING id, username, email, password_hash, team, role, balance, created_at
	`, balance, accountID).Scan(&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash,
		&acct.Team, &acct.Role, &acct.Balance, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return acct, ErrAccountNotFound
	}
	return acct, err
}

// AllTrades is the admin trade monitor feed, newest first.
func (s *Service) AllTrades(ctx context.Context, limit int) ([]TradeView, error) {
	limit = clampLimit(limit, 100, 500)
	rows, err := s.db.Query(ctx, `
		SELECT t.id, s.symbol, s.name, t.side, t.quantity, t.price_per_unit,
		       t.total_amount, t.team, t.created_at, a.username
		FROM trading.trades t
		JOIN trading.stocks s ON s.id = t.stock_id
		JOIN users.accounts a ON a.id = t.account_id
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows, true)
}

func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var out DashboardStats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(1) FROM users.accounts),
			(SELECT COUNT(1) FROM trading.stocks),
			(SELECT COUNT(1) FROM trading.trades)
	`).Scan(&out.TotalUsers, &out.TotalStocks, &out.TotalTrades)
	if err != nil {
		return out, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT team, COUNT(1), COALESCE(SUM(balance), 0)
		FROM users.accounts
		GROUP BY team
		ORDER BY 3 DESC
	`)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	out.Teams = make([]TeamStat, 0)
	for rows.Next() {
		var t TeamStat
		var total decimal.Decimal
		if err := rows.Scan(&t.TeamName, &t.MemberCount, &total); err != nil {
			return out, err
		}
		t.TotalBalance = money(total)
		out.Teams = append(out.Teams, t)
	}
	if err := rows.Err(); err != nil {
		return out, err
	}
	out.TotalTeams = len(out.Teams)

	recent, err := s.AllTrades(ctx, 10)
	if err != nil {
		return out, err
	}
	out.RecentTrades = recent
	return out, nil
}
