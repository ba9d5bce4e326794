package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"tradingtot/internal/types"
)

// Broker defines the operations the client exposes for one brokerage account
type Broker interface {
	// PlaceOrder validates and places a market value order and returns the
	// order the broker created for it, with its review costs attached
	PlaceOrder(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.PlacedOrder, error)

	// CancelOrder deletes an open order by id
	CancelOrder(ctx context.Context, orderID types.OrderID) (map[string]any, error)

	// Status resolves the current status of an order
	Status(ctx context.Context, orderID types.OrderID) (types.StatusReport, error)

	// Costs returns the broker's cost review for a prospective order
	Costs(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.Costs, error)

	// Positions returns open positions whose ticker is in tickers
	Positions(ctx context.Context, tickers []string) ([]types.Position, error)

	// Position returns the open position for one ticker, or nil
	Position(ctx context.Context, ticker string) (*types.Position, error)

	// EquityData returns the search hit for a ticker; a zero Instrument means no match
	EquityData(ctx context.Context, ticker string) (types.Instrument, error)

	// AskPrice returns the latest ask price data for a ticker
	AskPrice(ctx context.Context, ticker string) (types.Quote, error)

	// AccountDetails returns free cash and total account value
	AccountDetails(ctx context.Context) (types.AccountDetails, error)
}
