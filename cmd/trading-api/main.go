package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-igu/event-trading-website/internal/api"
	"github.com/aman-igu/event-trading-website/internal/auth"
	"github.com/aman-igu/event-trading-website/internal/config"
	"github.com/aman-igu/event-trading-website/internal/db"
	"github.com/aman-igu/event-trading-website/internal/exchange"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	exchangeSvc := exchange.NewService(pool, logger, exchange.TradingSettings{
		BuyEnabled:  cfg.DefaultBuy,
		SellEnabled: cfg.DefaultSell,
	})

	server := api.New(cfg, logger, tokens, exchangeSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("trading api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
