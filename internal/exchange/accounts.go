package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAccount registers a user into a team. Balance starts at zero;
// only allocations and settlements move it afterwards.
func (s *Service) CreateAccount(ctx context.Context, in SignupInput, passwordHash string) (Account, error) {
	var acct Account
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Team = strings.TrimSpace(in.Team)
	in.Role = strings.TrimSpace(in.Role)
	if in.Role == "" {
		in.Role = RoleTrader
	}
	if !validRole(in.Role) {
		return acct, fmt.Errorf("%w: role must be trader, team-lead or admin", ErrInvalidInput)
	}

	acct = Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Team:         in.Team,
		Role:         in.Role,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return acct, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO users.accounts (id, username, email, password_hash, team, role, balance)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING balance, created_at
	`, acct.ID, acct.Username, acct.Email, acct.PasswordHash, acct.Team, acct.Role).
		Scan(&acct.Balance, &acct.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return acct, ErrEmailExists
		}
		return acct, err
	}
	if err := appendActivityTx(ctx, tx, "signup", acct.ID, map[string]any{"team": acct.Team}); err != nil {
		return acct, err
	}
	return acct, tx.Commit(ctx)
}

func (s *Service) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return s.accountBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Service) AccountByID(ctx context.Context, id string) (Account, error) {
	return s.accountBy(ctx, "id", id)
}

func (s *Service) accountBy(ctx context.Context, column, value string) (Account, error) {
	var acct Account
	err := s.db.QueryRow(ctx, `
		SELECT id, username, email, password_hash, team, role, balance, created_at
		FROM users.accounts
		WHERE `+column+` = $1
	`, value).Scan(&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash,
		&acct.Team, &acct.Role, &acct.Balance, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return acct, ErrAccountNotFound
	}
	return acct, err
}

// RecordLogin logs a successful authentication to the activity feed.
func (s *Service) RecordLogin(ctx context.Context, accountID string) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		s.log.Warn("login activity begin failed", "err", err)
		return
	}
	defer tx.Rollback(ctx)
	if err := appendActivityTx(ctx, tx, "login", accountID, nil); err != nil {
		s.log.Warn("login activity write failed", "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Warn("login activity commit failed", "err", err)
	}
}
