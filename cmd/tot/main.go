package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"tradingtot/internal/logger"
	"tradingtot/internal/trace"
	"tradingtot/internal/types"
)

type rootOptions struct {
	configPath    string
	showBrowser   bool
	noScreenshots bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}

	// os.Exit skips deferred calls
	stop()
	_ = trace.Shutdown(context.Background())
	os.Exit(exitCode(err))
}

// exitCode lets scripts tell a broker rejection apart from a client failure
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, types.ErrConfiguration):
		return 2
	case errors.Is(err, types.ErrBrokerOrder):
		return 3
	case errors.Is(err, types.ErrAuthentication):
		return 4
	case errors.Is(err, types.ErrInvariantViolation):
		return 5
	case errors.Is(err, types.ErrTickerNotFound):
		return 6
	case errors.Is(err, types.ErrUnsupportedAction):
		return 7
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tot",
		Short:         "Unofficial Trading212 equity client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "optional yaml config file")
	root.PersistentFlags().BoolVar(&opts.showBrowser, "show-browser", false, "run the login browser with a window")
	root.PersistentFlags().BoolVar(&opts.noScreenshots, "no-screenshots", false, "do not save login screenshots")

	root.AddCommand(
		loginCmd(opts),
		placeCmd(opts),
		cancelCmd(opts),
		statusCmd(opts),
		costsCmd(opts),
		positionsCmd(opts),
		positionCmd(opts),
		equityCmd(opts),
		priceCmd(opts),
		accountCmd(opts),
	)
	return root
}

// withApp loads config, builds the app and runs fn with it
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx, opts.configPath)
	if err != nil {
		return err
	}
	if opts.showBrowser {
		cfg.Login.ShowBrowser = true
	}
	if opts.noScreenshots {
		cfg.Login.NoScreenshots = true
	}

	a, err := initializeApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func parseOrderArgs(args []string) (types.Side, string, decimal.Decimal, error) {
	side, err := types.ParseSide(args[0])
	if err != nil {
		return "", "", decimal.Zero, err
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return "", "", decimal.Zero, fmt.Errorf("invalid amount %q: %w", args[2], err)
	}
	return side, args[1], amount, nil
}

func loginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate and cache the session credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if _, err := a.auth.Ensure(ctx); err != nil {
					return err
				}
				cred, _ := a.auth.Credential()
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"status":   "authenticated",
					"deviceId": cred.DeviceID,
				})
			})
		},
	}
}

func placeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "place BUY|SELL TICKER AMOUNT",
		Short: "Place a market value order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, ticker, amount, err := parseOrderArgs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				placed, err := a.broker.PlaceOrder(ctx, side, ticker, amount)
				if err != nil {
					return err
				}
				if err := a.journal.Placed(ticker, placed); err != nil {
					logger.Warn(ctx, "Failed to journal placed order", "order_id", placed.OrderID, "error", err)
				}
				return printJSON(cmd.OutOrStdout(), placed)
			})
		},
	}
}

func cancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an open order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				id := types.OrderID(args[0])
				ack, err := a.broker.CancelOrder(ctx, id)
				if err != nil {
					return err
				}
				if err := a.journal.Cancelled(id, ack); err != nil {
					logger.Warn(ctx, "Failed to journal cancellation", "order_id", id, "error", err)
				}
				return printJSON(cmd.OutOrStdout(), ack)
			})
		},
	}
}

func statusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status ORDER_ID",
		Short: "Resolve the status of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report, err := a.broker.Status(ctx, types.OrderID(args[0]))
				if err != nil {
					return err
				}
				if report.Status.Terminal() {
					if err := a.journal.Status(report); err != nil {
						logger.Warn(ctx, "Failed to journal order status", "order_id", report.OrderID, "error", err)
					}
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func costsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "costs BUY|SELL TICKER AMOUNT",
		Short: "Review the costs of a prospective order",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			side, ticker, amount, err := parseOrderArgs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				costs, err := a.broker.Costs(ctx, side, ticker, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), costs)
			})
		},
	}
}

func positionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "positions TICKER...",
		Short: "List open positions for tickers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				positions, err := a.broker.Positions(ctx, args)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), positions)
			})
		},
	}
}

func positionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position TICKER",
		Short: "Show the open position for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				position, err := a.broker.Position(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), position)
			})
		},
	}
}

func equityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "equity TICKER",
		Short: "Show instrument data for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				inst, err := a.broker.EquityData(ctx, args[0])
				if err != nil {
					return err
				}
				if inst.IsZero() {
					return printJSON(cmd.OutOrStdout(), map[string]any{})
				}
				return printJSON(cmd.OutOrStdout(), inst)
			})
		},
	}
}

func priceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "price TICKER",
		Short: "Show the latest ask price for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				quote, err := a.broker.AskPrice(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), quote)
			})
		},
	}
}

func accountCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show free cash and total account value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				details, err := a.broker.AccountDetails(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), details)
			})
		},
	}
}
