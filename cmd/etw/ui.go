package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aman-igu/event-trading-website/internal/exchange"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type accountPayload struct {
	User exchange.AccountView `json:"user"`
}

type stocksPayload struct {
	Stocks []exchange.StockView `json:"stocks"`
}

type stockPayload struct {
	Stock exchange.StockView `json:"stock"`
}

type tradesPayload struct {
	Trades []exchange.TradeView `json:"trades"`
}

type teamsPayload struct {
	Teams []exchange.TeamView `json:"teams"`
}

type cardsPayload struct {
	Cards []exchange.CardView `json:"cards"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.2f", min))
			continue
		}
		return v, nil
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func decodeInto[T any](raw map[string]any) (T, error) {
	var out T
	body, err := json.Marshal(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMoney(v float64) string {
	text := fmt.Sprintf("%.2f", v)
	if v > 0 {
		return success.Sprint("+" + text)
	}
	if v < 0 {
		return danger.Sprint(text)
	}
	return neutral.Sprint(text)
}

func renderAccount(raw map[string]any) error {
	p, err := decodeInto[accountPayload](raw)
	if err != nil {
		return err
	}
	u := p.User
	accent.Println("\n== ACCOUNT ==")
	fmt.Printf("Username: %s\n", u.Username)
	fmt.Printf("Email:    %s\n", u.Email)
	fmt.Printf("Team:     %s\n", u.Team)
	fmt.Printf("Role:     %s\n", u.Role)
	fmt.Printf("Balance:  %.2f\n", u.Balance)
	return nil
}

func renderStocksList(raw map[string]any) error {
	p, err := decodeInto[stocksPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== STOCKS ==")
	if len(p.Stocks) == 0 {
		printInfo("No stocks listed yet.")
		return nil
	}
	fmt.Printf("%-6s %-8s %-24s %12s %12s %-10s %s\n", "ID", "SYMBOL", "NAME", "PRICE", "INITIAL", "CATEGORY", "STATUS")
	for _, s := range p.Stocks {
		status := "open"
		if !s.Available {
			status = "delisted"
		}
		fmt.Printf("%-6d %-8s %-24s %12.2f %12.2f %-10s %s\n",
			s.ID, s.Symbol, trim(s.Name, 24), s.CurrentPrice, s.InitialPrice, s.Category, status)
	}
	return nil
}

func renderCreatedStock(raw map[string]any) error {
	p, err := decodeInto[stockPayload](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Listed %s (%s) at %.2f", p.Stock.Symbol, p.Stock.Name, p.Stock.CurrentPrice))
	return nil
}

func renderTradeResult(verb string, raw map[string]any) error {
	trade, err := decodeInto[struct {
		Trade      exchange.TradeView `json:"trade"`
		NewBalance float64            `json:"newBalance"`
	}](raw)
	if err != nil {
		return err
	}
	t := trade.Trade
	printSuccess(fmt.Sprintf("%s %d x %s @ %.2f (total %.2f)", verb, t.Quantity, t.Symbol, t.PricePerUnit, t.TotalAmount))
	fmt.Printf("New balance: %.2f\n", trade.NewBalance)
	return nil
}

func renderPortfolio(raw map[string]any) error {
	p, err := decodeInto[exchange.PortfolioResult](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PORTFOLIO ==")
	if len(p.Portfolio) == 0 {
		printInfo("No holdings yet.")
		return nil
	}
	fmt.Printf("%-8s %8s %10s %10s %12s %12s %12s %8s\n",
		"SYMBOL", "QTY", "AVG", "NOW", "INVESTED", "VALUE", "P/L", "P/L%")
	for _, item := range p.Portfolio {
		fmt.Printf("%-8s %8d %10.2f %10.2f %12.2f %12.2f %12s %7.2f%%\n",
			item.Stock.Symbol, item.Quantity, item.AveragePrice, item.CurrentPrice,
			item.InvestedValue, item.CurrentValue, colorizeMoney(item.ProfitLoss), item.ProfitLossPercent)
	}
	fmt.Println()
	fmt.Printf("Invested: %.2f  Value: %.2f  P/L: %s (%.2f%%)\n",
		p.Summary.TotalInvested, p.Summary.TotalCurrent,
		colorizeMoney(p.Summary.TotalProfitLoss), p.Summary.TotalProfitLossPercent)
	return nil
}

func renderTrades(raw map[string]any) error {
	p, err := decodeInto[tradesPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRADES ==")
	if len(p.Trades) == 0 {
		printInfo("No trades yet.")
		return nil
	}
	fmt.Printf("%-20s %-6s %-8s %8s %10s %12s %s\n", "WHEN", "SIDE", "SYMBOL", "QTY", "PRICE", "TOTAL", "WHO")
	for _, t := range p.Trades {
		fmt.Printf("%-20s %-6s %-8s %8d %10.2f %12.2f %s\n",
			t.CreatedAt.Local().Format("2006-01-02 15:04:05"), t.Side, t.Symbol,
			t.Quantity, t.PricePerUnit, t.TotalAmount, t.Username)
	}
	return nil
}

func renderTeams(raw map[string]any) error {
	p, err := decodeInto[teamsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TEAMS ==")
	for _, team := range p.Teams {
		fmt.Printf("\n%s (%d members, total %.2f)\n", team.TeamName, team.MemberCount, team.TotalBalance)
		for _, m := range team.Members {
			fmt.Printf("  %-20s %-10s %12.2f\n", m.Username, m.Role, m.Balance)
		}
	}
	return nil
}

func renderDashboard(raw map[string]any) error {
	d, err := decodeInto[exchange.DashboardStats](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== DASHBOARD ==")
	fmt.Printf("Users: %d  Teams: %d  Stocks: %d  Trades: %d\n",
		d.TotalUsers, d.TotalTeams, d.TotalStocks, d.TotalTrades)
	if len(d.Teams) > 0 {
		fmt.Println()
		accent.Println("Teams")
		for _, t := range d.Teams {
			fmt.Printf("  %-20s %3d members %12.2f\n", t.TeamName, t.MemberCount, t.TotalBalance)
		}
	}
	if len(d.RecentTrades) > 0 {
		fmt.Println()
		accent.Println("Recent trades")
		for _, t := range d.RecentTrades {
			fmt.Printf("  %-6s %-8s %6d @ %10.2f by %s\n", t.Side, t.Symbol, t.Quantity, t.PricePerUnit, t.Username)
		}
	}
	return nil
}

func renderAllocation(raw map[string]any) error {
	p, err := decodeInto[exchange.AllocateResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Allocated %.2f across %q (%s) to %d members",
		p.TotalAmount, p.TeamName, p.DistributionType, p.MembersUpdated))
	for _, m := range p.UpdatedMembers {
		fmt.Printf("  %-20s +%.2f -> %.2f\n", m.Username, m.Allocated, m.Balance)
	}
	return nil
}

func renderCards(raw map[string]any) error {
	p, err := decodeInto[cardsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRADING CARDS ==")
	if len(p.Cards) == 0 {
		printInfo("No cards created yet.")
		return nil
	}
	for _, c := range p.Cards {
		status := "inactive"
		if c.IsActive {
			status = "ACTIVE"
		}
		fmt.Printf("\n#%d %s [%s] (%s)\n", c.ID, c.Name, c.CardType, status)
		for _, m := range c.Modifiers {
			fmt.Printf("  %-8s %s %.2f%%\n", m.StockSymbol, m.ChangeType, m.ChangePercent)
		}
	}
	return nil
}

func renderActivation(raw map[string]any) error {
	p, err := decodeInto[exchange.ActivateCardResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Activated %q", p.CardName))
	for _, c := range p.PriceChanges {
		fmt.Printf("  %-8s %10.2f -> %10.2f (%s %.2f%%)\n",
			c.Symbol, c.OldPrice, c.NewPrice, c.ChangeType, c.ChangePercent)
	}
	return nil
}

func renderSettings(raw map[string]any) error {
	p, err := decodeInto[exchange.TradingSettings](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRADING SETTINGS ==")
	fmt.Printf("Buying:  %s\n", onOff(p.BuyEnabled))
	fmt.Printf("Selling: %s\n", onOff(p.SellEnabled))
	return nil
}

func onOff(v bool) string {
	if v {
		return success.Sprint("enabled")
	}
	return danger.Sprint("disabled")
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
