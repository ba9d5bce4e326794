package brokerobs

import (
	"context"

	"github.com/shopspring/decimal"

	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/trace"
	"tradingtot/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.PlacedOrder, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()
	trace.SetAttributes(span, "side", string(side), "ticker", ticker, "amount", amount.String())

	logger.InfoSkip(ctx, 1, "Placing order", "side", side, "ticker", ticker, "amount", amount)

	placed, err := ob.broker.PlaceOrder(ctx, side, ticker, amount)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err, "side", side, "ticker", ticker, "amount", amount)
		return types.PlacedOrder{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"ticker", ticker,
		"order_id", placed.OrderID,
		"instrument", placed.Code,
		"value", placed.Value,
	)
	return placed, nil
}

// CancelOrder cancels an order with observability
func (ob *observableBroker) CancelOrder(ctx context.Context, orderID types.OrderID) (map[string]any, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()
	trace.SetAttributes(span, "order_id", string(orderID))

	logger.InfoSkip(ctx, 1, "Cancelling order", "order_id", orderID)

	ack, err := ob.broker.CancelOrder(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel order", err, "order_id", orderID)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Order cancelled", "order_id", orderID)
	return ack, nil
}

// Status resolves order status with observability
func (ob *observableBroker) Status(ctx context.Context, orderID types.OrderID) (types.StatusReport, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Status")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Resolving order status", "order_id", orderID)

	report, err := ob.broker.Status(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to resolve order status", err, "order_id", orderID)
		return types.StatusReport{}, err
	}

	trace.SetAttributes(span, "order_id", string(orderID), "status", string(report.Status))
	logger.DebugSkip(ctx, 1, "Order status resolved", "order_id", orderID, "status", report.Status)
	return report, nil
}

// Costs fetches an order cost review with observability
func (ob *observableBroker) Costs(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.Costs, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Costs")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching order costs", "side", side, "ticker", ticker, "amount", amount)

	costs, err := ob.broker.Costs(ctx, side, ticker, amount)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order costs", err, "side", side, "ticker", ticker)
		return nil, err
	}
	return costs, nil
}

// Positions fetches positions with observability
func (ob *observableBroker) Positions(ctx context.Context, tickers []string) ([]types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Positions")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching positions", "tickers", tickers)

	positions, err := ob.broker.Positions(ctx, tickers)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err, "tickers", tickers)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Positions fetched successfully", "count", len(positions))
	return positions, nil
}

// Position fetches one position with observability
func (ob *observableBroker) Position(ctx context.Context, ticker string) (*types.Position, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Position")
	defer span.End()

	position, err := ob.broker.Position(ctx, ticker)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch position", err, "ticker", ticker)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Position fetched", "ticker", ticker, "found", position != nil)
	return position, nil
}

// EquityData looks up instrument data with observability
func (ob *observableBroker) EquityData(ctx context.Context, ticker string) (types.Instrument, error) {
	ctx, span := trace.StartSpan(ctx, "broker.EquityData")
	defer span.End()

	inst, err := ob.broker.EquityData(ctx, ticker)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch equity data", err, "ticker", ticker)
		return types.Instrument{}, err
	}

	logger.DebugSkip(ctx, 1, "Equity data fetched", "ticker", ticker, "instrument", inst.ObjectID, "found", !inst.IsZero())
	return inst, nil
}

// AskPrice fetches the ask price with observability
func (ob *observableBroker) AskPrice(ctx context.Context, ticker string) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.AskPrice")
	defer span.End()

	quote, err := ob.broker.AskPrice(ctx, ticker)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch ask price", err, "ticker", ticker)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Ask price fetched", "ticker", ticker)
	return quote, nil
}

// AccountDetails fetches account cash with observability
func (ob *observableBroker) AccountDetails(ctx context.Context) (types.AccountDetails, error) {
	ctx, span := trace.StartSpan(ctx, "broker.AccountDetails")
	defer span.End()

	details, err := ob.broker.AccountDetails(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account details", err)
		return types.AccountDetails{}, err
	}

	logger.DebugSkip(ctx, 1, "Account details fetched", "cash", details.Cash, "total", details.Total)
	return details, nil
}
