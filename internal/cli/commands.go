package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tradeGate/config"
	"tradeGate/internal/adapters/binanceclient"
	"tradeGate/internal/adapters/csvfeed"
	"tradeGate/internal/adapters/logger"
	"tradeGate/internal/adapters/sqlite"
	"tradeGate/internal/analytics"
	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// state is shared by every subcommand; cfg is loaded once in PersistentPreRunE.
type state struct {
	cfg *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	st := &state{}

	rootCmd := &cobra.Command{
		Use:   "tradegate",
		Short: "TradeGate - rule-based trade decision and lifecycle engine",
		Long: `TradeGate evaluates multi-timeframe market data, decides whether a trade
should be taken, sizes it against the portfolio and tracks it until exit.
Every decision and lifecycle transition is written to an append-only audit log.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
				cfg.LogLevel = logger.ParseLevel(lvl)
			}
			st.cfg = cfg
			return nil
		},
	}

	rootCmd.AddCommand(newEvaluateCmd(st))
	rootCmd.AddCommand(newScanCmd(st))
	rootCmd.AddCommand(newReplayCmd(st))
	rootCmd.AddCommand(newAuditCmd(st))
	rootCmd.AddCommand(newPerformanceCmd(st))
	rootCmd.AddCommand(newFetchCmd(st))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (DEBUG, INFO, WARN, ERROR)")

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// newEvaluateCmd creates the evaluate command
func newEvaluateCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [SYMBOL]",
		Short: "Evaluate one symbol and print the decision",
		Long: `Evaluate a trade opportunity for a symbol on a higher and a lower timeframe.
Example: tradegate evaluate BTCUSDT --htf=1h --ltf=5m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			htf, _ := cmd.Flags().GetString("htf")
			ltf, _ := cmd.Flags().GetString("ltf")
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, st.cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			d := rt.engine.EvaluateTradeOpportunity(ctx, strings.ToUpper(args[0]), htf, ltf)
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}

	addTimeframeFlags(cmd)
	return cmd
}

// newScanCmd creates the scan command
func newScanCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [SYMBOL...]",
		Short: "Evaluate several symbols concurrently",
		Long: `Evaluate several symbols with bounded concurrency and print one line per decision.
Example: tradegate scan BTCUSDT ETHUSDT SOLUSDT --concurrency=2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			htf, _ := cmd.Flags().GetString("htf")
			ltf, _ := cmd.Flags().GetString("ltf")
			concurrency, _ := cmd.Flags().GetInt("concurrency")
			asJSON, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			symbols := make([]string, len(args))
			for i, s := range args {
				symbols[i] = strings.ToUpper(s)
			}

			rt, err := newRuntime(ctx, st.cfg, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			decisions := rt.engine.Scan(ctx, symbols, htf, ltf, concurrency)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), decisions)
			}
			return writeDecisionTable(cmd.OutOrStdout(), decisions)
		},
	}

	addTimeframeFlags(cmd)
	cmd.Flags().Int("concurrency", 4, "Maximum symbols evaluated at once")
	cmd.Flags().Bool("json", false, "Print decisions as JSON")
	return cmd
}

// newReplayCmd creates the replay command
func newReplayCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [SYMBOL]",
		Short: "Evaluate a symbol at a past time and walk the trade through later CSV data",
		Long: `Replay evaluates a symbol using only CSV klines closed at or before --at. When a
trade is accepted, the later lower-timeframe klines drive it through its lifecycle.
Example: tradegate replay BTCUSDT --at=2024-03-15T12:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			htf, _ := cmd.Flags().GetString("htf")
			ltf, _ := cmd.Flags().GetString("ltf")
			atStr, _ := cmd.Flags().GetString("at")
			fillBars, _ := cmd.Flags().GetInt("fill-bars")
			maxBars, _ := cmd.Flags().GetInt("bars")

			at, err := time.Parse(time.RFC3339, atStr)
			if err != nil {
				return fmt.Errorf("invalid --at %q: %w", atStr, err)
			}
			return runReplay(cmd.Context(), st.cfg, cmd.OutOrStdout(), replayParams{
				symbol:   strings.ToUpper(args[0]),
				htf:      htf,
				ltf:      ltf,
				at:       at.UTC(),
				fillBars: fillBars,
				maxBars:  maxBars,
			})
		},
	}

	addTimeframeFlags(cmd)
	cmd.Flags().String("at", "", "Evaluation time in RFC3339 format")
	cmd.Flags().Int("fill-bars", 3, "Bars a limit entry may wait before it is cancelled")
	cmd.Flags().Int("bars", 500, "Maximum later bars to walk")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

// newAuditCmd creates the audit command
func newAuditCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Long: `Show audit log entries, newest first, optionally filtered by symbol.
With --trade, show every entry of one trade in order plus its archived history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetInt("limit")
			tradeID, _ := cmd.Flags().GetString("trade")
			ctx := cmd.Context()

			repo, closeRepo, err := openRepository(st.cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			var entries []*domain.AuditEntry
			if tradeID != "" {
				entries, err = repo.FindByTrade(ctx, tradeID)
			} else {
				entries, err = repo.FindBySymbol(ctx, strings.ToUpper(symbol), limit)
			}
			if err != nil {
				return err
			}
			if err := writeAuditTable(cmd.OutOrStdout(), entries); err != nil {
				return err
			}
			if tradeID == "" {
				return nil
			}

			history, err := repo.FindHistory(ctx, tradeID)
			if err != nil {
				if errors.Is(err, ports.ErrNotFound) {
					return nil
				}
				return err
			}
			if len(history) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nArchived history:")
				return writeHistory(cmd.OutOrStdout(), history)
			}
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "Only show entries for this symbol")
	cmd.Flags().Int("limit", 50, "Maximum entries to show")
	cmd.Flags().String("trade", "", "Show the full trail of one trade id")
	return cmd
}

// newPerformanceCmd creates the performance command
func newPerformanceCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Summarize archived trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			repo, closeRepo, err := openRepository(st.cfg)
			if err != nil {
				return err
			}
			defer closeRepo()

			trades, err := repo.FindClosed(ctx, limit)
			if err != nil {
				return err
			}
			summary := analytics.Summarize(trades, st.cfg.InitialCapital)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			return writeSummary(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().Int("limit", 500, "Maximum archived trades to include")
	cmd.Flags().Bool("json", false, "Print the summary as JSON")
	return cmd
}

// newFetchCmd creates the fetch command
func newFetchCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [SYMBOL]",
		Short: "Download klines from Binance into CSV_DIR",
		Long: `Download historical futures klines and store them as CSV files usable by
DATA_SOURCE=csv and the replay command.
Example: tradegate fetch BTCUSDT --intervals=1h,5m --days=30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intervals, _ := cmd.Flags().GetStringSlice("intervals")
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			return runFetch(cmd.Context(), st.cfg, cmd.OutOrStdout(), strings.ToUpper(args[0]), intervals, days)
		},
	}

	cmd.Flags().StringSlice("intervals", []string{"1h", "5m"}, "Kline intervals to download")
	cmd.Flags().Int("days", 30, "Days of history to download")
	return cmd
}

func addTimeframeFlags(cmd *cobra.Command) {
	cmd.Flags().String("htf", "1h", "Higher timeframe")
	cmd.Flags().String("ltf", "5m", "Lower timeframe")
}

func openRepository(cfg *config.Config) (*sqlite.Repository, func(), error) {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			log.Error(context.Background(), err, "Error closing database repository")
		}
	}, nil
}

func runFetch(ctx context.Context, cfg *config.Config, out io.Writer, symbol string, intervals []string, days int) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Binance client: %w", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	for _, interval := range intervals {
		klines, err := client.GetKlinesRange(ctx, symbol, interval, start, end)
		if err != nil {
			return fmt.Errorf("fetch %s %s: %w", symbol, interval, err)
		}
		filename := filepath.Join(cfg.CSVDir, csvfeed.FileName(symbol, interval))
		if err := csvfeed.WriteKlines(klines, filename); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s: %d klines -> %s\n", symbol, interval, len(klines), filename)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeDecisionTable(w io.Writer, decisions []domain.Decision) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tACTION\tDIRECTION\tDETAIL")
	for _, d := range decisions {
		switch v := d.(type) {
		case *domain.TradeOrder:
			fmt.Fprintf(tw, "%s\tEXECUTE_TRADE\t%s\tentry=%.4f stop=%.4f qty=%d rr=%.2f\n",
				v.Signal.Symbol, v.Signal.Direction, v.EntryPrice, v.Stop.Price, v.Sizing.Quantity, v.Targets.RiskReward())
		case *domain.HoldResult:
			fmt.Fprintf(tw, "%s\tHOLD\t%s\t%s\n", v.Symbol, domain.Hold, v.Reason)
		}
	}
	return tw.Flush()
}

func writeAuditTable(w io.Writer, entries []*domain.AuditEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSYMBOL\tTRADE\tKIND\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Timestamp.UTC().Format(time.RFC3339), e.Symbol, e.TradeID, e.Kind, e.Detail)
	}
	return tw.Flush()
}

func writeHistory(w io.Writer, history []domain.StateChange) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range history {
		line := fmt.Sprintf("%s\t%s\t%s", c.Timestamp.UTC().Format(time.RFC3339), c.State, c.Note)
		if c.Quantity > 0 {
			line += fmt.Sprintf("\t%d @ %.4f (%s)", c.Quantity, c.Price, c.Exit)
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, s *analytics.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Trades:\t%d (%d won, %d lost, %d cancelled)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades, s.Cancelled)
	fmt.Fprintf(tw, "Win rate:\t%.2f%%\n", s.WinRate)
	fmt.Fprintf(tw, "Total P&L:\t%.2f\n", s.TotalPnL)
	fmt.Fprintf(tw, "Average P&L:\t%.2f (win %.2f, loss %.2f)\n", s.AveragePnL, s.AverageWin, s.AverageLoss)
	fmt.Fprintf(tw, "Profit factor:\t%.2f\n", s.ProfitFactor)
	fmt.Fprintf(tw, "Expectancy:\t%.2f\n", s.Expectancy)
	fmt.Fprintf(tw, "Max drawdown:\t%.2f%%\n", s.MaxDrawdown)
	fmt.Fprintf(tw, "Streaks:\t%d wins, %d losses\n", s.MaxConsecutiveWins, s.MaxConsecutiveLosses)
	fmt.Fprintf(tw, "Average duration:\t%s\n", s.AverageTradeDuration)
	for _, reason := range []domain.ExitReason{domain.ExitTarget, domain.ExitStopLoss, domain.ExitTrailStop} {
		fmt.Fprintf(tw, "Exits %s:\t%d\n", reason, s.ByExitReason[reason])
	}
	return tw.Flush()
}
