package trading212

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"tradingtot/internal/types"
)

type deviationRequest struct {
	Ticker      string `json:"ticker"`
	UseAskPrice bool   `json:"useAskPrice"`
}

type deviationResult struct {
	Ticker   string      `json:"ticker"`
	Response types.Quote `json:"response"`
}

// EquityData returns the search hit for ticker. No match is a zero
// Instrument, not an error.
func (c *Client) EquityData(ctx context.Context, ticker string) (types.Instrument, error) {
	return c.resolver.Lookup(ctx, ticker)
}

// AskPrice returns the latest ask price data for ticker.
func (c *Client) AskPrice(ctx context.Context, ticker string) (types.Quote, error) {
	instrument, err := c.resolver.Resolve(ctx, ticker)
	if err != nil {
		return nil, err
	}

	resp, err := c.t.PUT(ctx, DeviationsPath, []deviationRequest{{Ticker: instrument, UseAskPrice: true}})
	if err != nil {
		return nil, fmt.Errorf("ask price request failed: %w", err)
	}

	// Any other shape means the broker did not recognise the ticker
	var results []deviationResult
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		return nil, fmt.Errorf("the ticker %s is invalid: %w", ticker, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("the ticker %s is invalid: %w", ticker, errors.New("empty price response"))
	}
	return results[0].Response, nil
}
