package trading212

import (
	"context"
	"strings"

	"tradingtot/internal/types"
)

// Positions returns the open positions whose ticker is one of tickers.
// Positions are fetched on every call since prices move.
func (c *Client) Positions(ctx context.Context, tickers []string) ([]types.Position, error) {
	summary, err := c.orders.Summary(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		wanted[strings.ToUpper(t)] = true
	}

	positions := make([]types.Position, 0, len(wanted))
	for _, p := range summary.Open.Items {
		if wanted[strings.ToUpper(p.Ticker())] {
			positions = append(positions, p)
		}
	}
	return positions, nil
}

// Position returns the open position for ticker, or nil when there is none.
func (c *Client) Position(ctx context.Context, ticker string) (*types.Position, error) {
	positions, err := c.Positions(ctx, []string{ticker})
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

// AccountDetails returns the cash free for stocks and the total account value.
func (c *Client) AccountDetails(ctx context.Context) (types.AccountDetails, error) {
	summary, err := c.orders.Summary(ctx)
	if err != nil {
		return types.AccountDetails{}, err
	}
	return types.AccountDetails{
		Cash:  summary.Cash.FreeForStocks,
		Total: summary.Cash.Total,
	}, nil
}
