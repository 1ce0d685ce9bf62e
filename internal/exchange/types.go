package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the persisted user row. Balance stays decimal until it is
// rendered into a view.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Team         string
	Role         string
	Balance      decimal.Decimal
	CreatedAt    time.Time
}

func (a Account) View() AccountView {
	return AccountView{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Team:      a.Team,
		Role:      a.Role,
		Balance:   money(a.Balance),
		CreatedAt: a.CreatedAt,
	}
}

type AccountView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Team      string    `json:"team"`
	Role      string    `json:"role"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

type SignupInput struct {
	Username string
	Email    string
	Password string
	Team     string
	Role     string
}

type StockView struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CurrentPrice float64   `json:"currentPrice"`
	InitialPrice float64   `json:"initialPrice"`
	Available    bool      `json:"available"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateStockInput struct {
	Symbol      string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	CreatedBy   string
}

type TradeInput struct {
	AccountID string
	StockID   int64
	Quantity  int64
}

// TradeView is the populated trade record returned from a settlement and
// from the history feeds.
type TradeView struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	StockName    string    `json:"stockName"`
	Side         string    `json:"side"`
	Quantity     int64     `json:"quantity"`
	PricePerUnit float64   `json:"pricePerUnit"`
	TotalAmount  float64   `json:"totalAmount"`
	Team         string    `json:"team"`
	Username     string    `json:"username,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type BuyResult struct {
	Trade      TradeView    `json:"trade"`
	NewBalance float64      `json:"newBalance"`
	Portfolio  HoldingStamp `json:"portfolio"`
}

type HoldingStamp struct {
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
}

type SellResult struct {
	Trade             TradeView `json:"trade"`
	NewBalance        float64   `json:"newBalance"`
	RemainingQuantity int64     `json:"remainingQuantity"`
}

type PortfolioItem struct {
	Stock             StockView `json:"stock"`
	Quantity          int64     `json:"quantity"`
	AveragePrice      float64   `json:"averagePrice"`
	CurrentPrice      float64   `json:"currentPrice"`
	InvestedValue     float64   `json:"investedValue"`
	CurrentValue      float64   `json:"currentValue"`
	ProfitLoss        float64   `json:"profitLoss"`
	ProfitLossPercent float64   `json:"profitLossPercent"`
}

type PortfolioSummary struct {
	TotalInvested          float64 `json:"totalInvested"`
	TotalCurrent           float64 `json:"totalCurrent"`
	TotalProfitLoss        float64 `json:"totalProfitLoss"`
	TotalProfitLossPercent float64 `json:"totalProfitLossPercent"`
}

type PortfolioResult struct {
	Portfolio []PortfolioItem  `json:"portfolio"`
	Summary   PortfolioSummary `json:"summary"`
}

type CardModifierInput struct {
	StockID       int64
	ChangeType    string
	ChangePercent decimal.Decimal
}

type CreateCardInput struct {
	Name        string
	Description string
	CardType    string
	Modifiers   []CardModifierInput
	CreatedBy   string
}

type CardModifierView struct {
	StockID       int64   `json:"stockId"`
	StockSymbol   string  `json:"stockSymbol"`
	ChangeType    string  `json:"changeType"`
	ChangePercent float64 `json:"changePercent"`
}

type CardView struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	CardType    string             `json:"cardType"`
	Modifiers   []CardModifierView `json:"priceModifiers"`
	IsActive    bool               `json:"isActive"`
	ActivatedAt *time.Time         `json:"activatedAt,omitempty"`
	ActivatedBy string             `json:"activatedBy,omitempty"`
	CreatedBy   string             `json:"createdBy,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type PriceChange struct {
	Symbol        string  `json:"symbol"`
	OldPrice      float64 `json:"oldPrice"`
	NewPrice      float64 `json:"newPrice"`
	ChangeType    string  `json:"changeType"`
	ChangePercent float64 `json:"changePercent"`
}

type ActivateCardResult struct {
	CardName     string        `json:"cardName"`
	PriceChanges []PriceChange `json:"priceChanges"`
}

type AllocateInput struct {
	TeamName         string
	TotalAmount      decimal.Decimal
	DistributionType string
	ActorID          string
}

type AllocatedMember struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Balance   float64 `json:"balance"`
	Allocated float64 `json:"allocated"`
}

type AllocateResult struct {
	TeamName         string            `json:"teamName"`
	TotalAmount      float64           `json:"totalAmount"`
	DistributionType string            `json:"distributionType"`
	MembersUpdated   int               `json:"membersUpdated"`
	UpdatedMembers   []AllocatedMember `json:"updatedMembers"`
}

type TeamView struct {
	TeamName     string        `json:"teamName"`
	Members      []AccountView `json:"members"`
	TotalBalance float64       `json:"totalBalance"`
	MemberCount  int           `json:"memberCount"`
}

type TeamStat struct {
	TeamName     string  `json:"teamName"`
	MemberCount  int     `json:"memberCount"`
	TotalBalance float64 `json:"totalBalance"`
}

type DashboardStats struct {
	TotalUsers   int         `json:"totalUsers"`
	TotalStocks  int         `json:"totalStocks"`
	TotalTrades  int         `json:"totalTrades"`
	TotalTeams   int         `json:"totalTeams"`
	Teams        []TeamStat  `json:"teams"`
	RecentTrades []TradeView `json:"recentTrades"`
}

type TradingSettings struct {
	BuyEnabled  bool `json:"buyEnabled"`
	SellEnabled bool `json:"sellEnabled"`
}
