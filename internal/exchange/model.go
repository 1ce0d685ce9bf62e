package exchange

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	RoleTrader   = "trader"
	RoleTeamLead = "team-lead"
	RoleAdmin    = "admin"

	SideBuy  = "buy"
	SideSell = "sell"

	ChangeIncrease = "increase"
	ChangeDecrease = "decrease"
	ChangeSame     = "same"

	DistributeEqual = "equal"
	DistributeSet   = "set"
)

// MinStockPrice is the floor a card activation can push a price to.
var MinStockPrice = decimal.NewFromFloat(0.01)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrAccountNotFound    = errors.New("account not found")
	ErrStockNotFound      = errors.New("stock not found")
	ErrStockUnavailable   = errors.New("stock is not available for trading")
	ErrSymbolExists       = errors.New("stock with this symbol already exists")
	ErrEmailExists        = errors.New("account with this email already exists")
	ErrCardNotFound       = errors.New("trading card not found")
	ErrCardAlreadyActive  = errors.New("trading card is already active")
	ErrTeamEmpty          = errors.New("no members found in this team")
	ErrBuyingDisabled     = errors.New("buying is currently disabled")
	ErrSellingDisabled    = errors.New("selling is currently disabled")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrInsufficientShares = errors.New("insufficient stock quantity")
	ErrTxConflict         = errors.New("transaction conflict, please retry")
)

// InsufficientFundsError reports the shortfall of a rejected buy.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool { return target == ErrInsufficientFunds }

// InsufficientSharesError reports how many units the account actually holds.
type InsufficientSharesError struct {
	Requested int64
	Available int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient stock quantity: requested %d, available %d",
		e.Requested, e.Available)
}

func (e *InsufficientSharesError) Is(target error) bool { return target == ErrInsufficientShares }

var symbolRE = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(symbol) {
		return fmt.Errorf("%w: symbol must be 1-10 uppercase letters or digits", ErrInvalidInput)
	}
	return nil
}

func validRole(role string) bool {
	switch role {
	case RoleTrader, RoleTeamLead, RoleAdmin:
		return true
	}
	return false
}

func validChangeType(t string) bool {
	switch t {
	case ChangeIncrease, ChangeDecrease, ChangeSame:
		return true
	}
	return false
}

// WeightedAverageCost blends a new purchase into an existing holding:
// (oldAvg*oldQty + price*qty) / (oldQty+qty). Only buys move the average;
// sells leave it untouched.
func WeightedAverageCost(oldAvg decimal.Decimal, oldQty int64, price decimal.Decimal, qty int64) decimal.Decimal {
	totalQty := oldQty + qty
	if totalQty <= 0 {
		return decimal.Zero
	}
	invested := oldAvg.Mul(decimal.NewFromInt(oldQty)).
		Add(price.Mul(decimal.NewFromInt(qty)))
	return invested.Div(decimal.NewFromInt(totalQty))
}

// ApplyBuyToHolding folds a purchase into a position: a first buy opens the
// holding at the purchase price, a repeat buy blends the average cost.
func ApplyBuyToHolding(exists bool, oldQty int64, oldAvg decimal.Decimal, qty int64, price decimal.Decimal) (int64, decimal.Decimal) {
	if !exists {
		return qty, price
	}
	return oldQty + qty, WeightedAverageCost(oldAvg, oldQty, price, qty)
}

// ReduceHolding applies a sell of qty against a held position. remove is
// true when the position reaches exactly zero and the row should go away.
// An oversell is rejected with the available quantity and leaves the
// position untouched; average cost is never part of a sell.
func ReduceHolding(held, qty int64) (remaining int64, remove bool, err error) {
	if held < qty {
		return held, false, &InsufficientSharesError{Requested: qty, Available: held}
	}
	remaining = held - qty
	return remaining, remaining == 0, nil
}

// ApplyModifier computes a card modifier against a price. The result is
// clamped to MinStockPrice so a large decrease can never zero a stock out.
func ApplyModifier(price decimal.Decimal, changeType string, changePercent decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	next := price
	switch changeType {
	case ChangeIncrease:
		next = price.Mul(decimal.NewFromInt(1).Add(changePercent.Div(hundred)))
	case ChangeDecrease:
		next = price.Mul(decimal.NewFromInt(1).Sub(changePercent.Div(hundred)))
	}
	if next.LessThan(MinStockPrice) {
		return MinStockPrice
	}
	return next
}

// SplitAllocation is the per-member share of a team allocation.
func SplitAllocation(total decimal.Decimal, members int) decimal.Decimal {
	if members <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(members)))
}

// ProfitLossPercent is profit/invested*100, with the zero-invested
// convention fixed at exactly 0 rather than a division error.
func ProfitLossPercent(profit, invested decimal.Decimal) decimal.Decimal {
	if invested.IsZero() {
		return decimal.Zero
	}
	return profit.Div(invested).Mul(decimal.NewFromInt(100))
}

// clampLimit bounds a caller-supplied page size so a query parameter can
// never request an unbounded scan.
func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

// money rounds a ledger value to two decimals for response payloads.
// Ledger arithmetic itself is never rounded.
func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
