package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "github.com/aman-igu/event-trading-website/internal/cli"
	"github.com/aman-igu/event-trading-website/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "etw",
		Short:        "Event trading CLI client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newWhoamiCmd(&apiBase),
		newStocksCmd(&apiBase),
		newBuyCmd(&apiBase),
		newSellCmd(&apiBase),
		newPortfolioCmd(&apiBase),
		newHistoryCmd(&apiBase),
		newAdminCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func loadSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptRequired("Username")
			if err != nil {
				return err
			}
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			team, err := promptRequired("Team")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Signup(ctx, username, email, password, team, "")
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				Token:    out.Token,
				Email:    out.User.Email,
				UserID:   out.User.ID,
				Username: out.User.Username,
				Team:     out.User.Team,
				Role:     out.User.Role,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and save a session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			out, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				Token:    out.Token,
				Email:    out.User.Email,
				UserID:   out.User.ID,
				Username: out.User.Username,
				Team:     out.User.Team,
				Role:     out.User.Role,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Me(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderAccount(out)
		},
	}
}

func newStocksCmd(apiBase *string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "stocks",
		Short:   "List stocks on the market",
		Aliases: []string{"stock"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListStocks(ctx, sess.Token, all)
			if err != nil {
				return err
			}
			return renderStocksList(out)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include delisted stocks")
	return cmd
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy",
		Short: "Buy shares of a stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			stockID, err := promptInt64("Stock ID", 1)
			if err != nil {
				return err
			}
			qty, err := promptInt64("Shares to buy", 1)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Buy(ctx, sess.Token, stockID, qty)
			if err != nil {
				return err
			}
			return renderTradeResult("Bought", out)
		},
	}
}

func newSellCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sell",
		Short: "Sell shares of a stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			stockID, err := promptInt64("Stock ID", 1)
			if err != nil {
				return err
			}
			qty, err := promptInt64("Shares to sell", 1)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Sell(ctx, sess.Token, stockID, qty)
			if err != nil {
				return err
			}
			return renderTradeResult("Sold", out)
		},
	}
}

func newPortfolioCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show holdings and profit/loss",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Portfolio(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderPortfolio(out)
		},
	}
}

func newHistoryCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show your trade history",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).History(ctx, sess.Token, limit)
			if err != nil {
				return err
			}
			return renderTrades(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max trades to fetch")
	return cmd
}

func newAdminCmd(apiBase *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands",
	}
	admin.AddCommand(
		newAdminDashCmd(apiBase),
		newAdminTeamsCmd(apiBase),
		newAdminAllocateCmd(apiBase),
		newAdminStockCreateCmd(apiBase),
		newAdminCardsCmd(apiBase),
		newAdminCardActivateCmd(apiBase),
		newAdminSettingsCmd(apiBase),
	)
	return admin
}

func newAdminDashCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show the admin dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Dashboard(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderDashboard(out)
		},
	}
}

func newAdminTeamsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List teams with balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListTeams(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderTeams(out)
		},
	}
}

func newAdminAllocateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "allocate",
		Short: "Distribute money across a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			team, err := promptRequired("Team")
			if err != nil {
				return err
			}
			amount, err := promptFloat("Total amount", 0)
			if err != nil {
				return err
			}
			mode, err := promptChoice("Distribution", []string{"equal", "set"}, "set")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Allocate(ctx, sess.Token, team, amount, mode)
			if err != nil {
				return err
			}
			return renderAllocation(out)
		},
	}
}

func newAdminStockCreateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stock-create",
		Short: "List a new stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			symbol, err := promptRequired("Symbol")
			if err != nil {
				return err
			}
			name, err := promptRequired("Name")
			if err != nil {
				return err
			}
			description, err := promptOptional("Description")
			if err != nil {
				return err
			}
			price, err := promptFloat("Price", 0)
			if err != nil {
				return err
			}
			category, err := promptOptional("Category")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreateStock(ctx, sess.Token, symbol, name, description, price, category)
			if err != nil {
				return err
			}
			return renderCreatedStock(out)
		},
	}
}

func newAdminCardsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cards",
		Short: "List trading cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListCards(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderCards(out)
		},
	}
}

func newAdminCardActivateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "card-activate",
		Short: "Activate a trading card against the market",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			cardID, err := promptInt64("Card ID", 1)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ActivateCard(ctx, sess.Token, cardID)
			if err != nil {
				return err
			}
			return renderActivation(out)
		},
	}
}

func newAdminSettingsCmd(apiBase *string) *cobra.Command {
	var buy, sell string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Toggle buying and selling",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession()
			if err != nil {
				return err
			}
			buyFlag, err := parseToggle(buy)
			if err != nil {
				return err
			}
			sellFlag, err := parseToggle(sell)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			if buyFlag == nil && sellFlag == nil {
				out, err := client.TradingSettings(ctx, sess.Token)
				if err != nil {
					return err
				}
				return renderSettings(out)
			}
			out, err := client.UpdateSettings(ctx, sess.Token, buyFlag, sellFlag)
			if err != nil {
				return err
			}
			return renderSettings(out)
		},
	}
	cmd.Flags().StringVar(&buy, "buy", "", "enable or disable buying (on/off)")
	cmd.Flags().StringVar(&sell, "sell", "", "enable or disable selling (on/off)")
	return cmd
}

func parseToggle(v string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return nil, nil
	case "on", "true", "1":
		t := true
		return &t, nil
	case "off", "false", "0":
		f := false
		return &f, nil
	}
	return nil, fmt.Errorf("invalid toggle %q, want on or off", v)
}
