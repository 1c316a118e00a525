package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nova-trader/internal/broker"
	"nova-trader/internal/config"
	"nova-trader/internal/database"
	"nova-trader/internal/logger"
	"nova-trader/internal/marketdata"
	"nova-trader/internal/strategy"
	"nova-trader/internal/trader"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Trend-following paper trading bot",
		Long: `trader monitors market data, derives trend flip signals from an
ATR-scaled EMA channel and executes them against a simulated broker.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs", "Directory containing config.yml")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(backtestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger. Everything else hangs
// off these two.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("could not build logger: %w", err)
	}

	return &cfg, log, nil
}

func newStrategy(cfg *config.Config, log *zap.Logger) (strategy.Strategy, error) {
	return strategy.NewNovaStrategy(strategy.ParamsFromConfig(cfg.Strategy), log)
}

func newSimulator(cfg *config.Config, log *zap.Logger) *broker.Simulator {
	margin := broker.FlatFractionMargin{Fraction: cfg.Trading.MarginFraction}
	return broker.NewSimulator(cfg.Trading.InitialBalance, margin, log)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the live scanning loop against the paper broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			log.Info("Configuration loaded")

			db, err := database.NewDatabase(cfg.Database.DSN)
			if err != nil {
				log.Fatal("Failed to connect to database", zap.Error(err))
			}
			log.Info("Database connection successful and schema migrated.")

			market := marketdata.NewClient(&cfg.Market, log)
			if _, err := market.GetServerTime(); err != nil {
				log.Fatal("Failed to reach market data API", zap.Error(err))
			}
			log.Info("Market data API reachable.")

			strat, err := newStrategy(cfg, log)
			if err != nil {
				log.Fatal("Failed to build strategy", zap.Error(err))
			}

			sim := newSimulator(cfg, log)

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				sigchan := make(chan os.Signal, 1)
				signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
				<-sigchan
				log.Info("Shutdown signal received, gracefully shutting down...")
				cancel()
			}()

			engine := trader.NewEngine(log, cfg, market, db, strat, sim)

			apiServer := trader.NewAPIServer(engine, log)
			apiServer.Start()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := apiServer.Stop(shutdownCtx); err != nil {
					log.Error("API server shutdown failed", zap.Error(err))
				}
			}()

			engine.Run(ctx)

			log.Info("Bot has been shut down.")
			return nil
		},
	}
}

func backtestCmd() *cobra.Command {
	var symbol string
	var limit int

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through the strategy and simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			if symbol == "" {
				if len(cfg.Trading.Symbols) == 0 {
					return fmt.Errorf("no symbol given and none configured")
				}
				symbol = cfg.Trading.Symbols[0]
			}
			if limit <= 0 {
				limit = cfg.Trading.BarLimit
			}

			market := marketdata.NewClient(&cfg.Market, log)
			bars, err := market.GetBars(symbol, cfg.Trading.Interval, limit)
			if err != nil {
				return fmt.Errorf("could not fetch bars for %s: %w", symbol, err)
			}
			log.Info("Fetched historical bars",
				zap.String("symbol", symbol),
				zap.Int("count", len(bars)))

			strat, err := newStrategy(cfg, log)
			if err != nil {
				return err
			}
			signals, err := strat.Evaluate(bars)
			if err != nil {
				return fmt.Errorf("strategy evaluation failed: %w", err)
			}

			sim := newSimulator(cfg, log)
			if err := sim.Connect(); err != nil {
				return err
			}
			defer sim.Disconnect()

			// Signals are ordered by time, so a single cursor suffices.
			next := 0
			trades := 0
			for _, bar := range bars {
				for next < len(signals) && !signals[next].Timestamp.After(bar.Timestamp) {
					sig := signals[next]
					next++

					side := broker.SideBuy
					if sig.Type == strategy.SignalSell {
						side = broker.SideSell
					}
					res, err := sim.PlaceOrder(broker.OrderRequest{
						Symbol:         symbol,
						Side:           side,
						Quantity:       cfg.Trading.Quantity,
						Kind:           broker.OrderMarket,
						ReferencePrice: sig.EntryPrice,
					})
					if err != nil {
						log.Warn("Backtest order failed", zap.Error(err))
						continue
					}
					if res.Status == broker.StatusRejected {
						log.Warn("Backtest order rejected", zap.String("reason", res.Message))
						continue
					}
					trades++
				}

				if _, err := sim.ProcessBar(symbol, bar); err != nil {
					return fmt.Errorf("bar replay failed: %w", err)
				}
			}

			balance, err := sim.Balance()
			if err != nil {
				return err
			}

			fmt.Printf("Backtest %s (%s, %d bars)\n", symbol, cfg.Trading.Interval, len(bars))
			fmt.Printf("  Signals:         %d\n", len(signals))
			fmt.Printf("  Orders filled:   %d\n", trades)
			fmt.Printf("  Final cash:      %.2f\n", balance.Cash)
			fmt.Printf("  Portfolio value: %.2f\n", balance.PortfolioValue)
			fmt.Printf("  Realized PnL:    %.2f\n", balance.RealizedPnL)
			fmt.Printf("  Unrealized PnL:  %.2f\n", balance.UnrealizedPnL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Symbol to backtest (defaults to first configured symbol)")
	cmd.Flags().IntVarP(&limit, "bars", "n", 0, "Number of bars to fetch (defaults to trading.bar_limit)")

	return cmd
}
