package trading212

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradingtot/internal/api"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

// PlaceOrder validates a market value order, places it and identifies the
// order the broker created for it.
func (c *Client) PlaceOrder(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.PlacedOrder, error) {
	op := logger.StartOperation(ctx, "order.place", "side", string(side), "ticker", ticker, "amount", amount.String())
	ctx = op.Context()

	placed, err := c.placeOrder(ctx, side, ticker, amount)
	if err != nil {
		op.EndWithError(err)
		return types.PlacedOrder{}, err
	}
	op.End("order_id", string(placed.OrderID))
	return placed, nil
}

func (c *Client) placeOrder(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.PlacedOrder, error) {
	req, err := c.orderRequest(ctx, side, ticker, amount)
	if err != nil {
		return types.PlacedOrder{}, err
	}

	if err := c.validate(ctx, req); err != nil {
		return types.PlacedOrder{}, err
	}

	order, err := c.submitAndMatch(ctx, req)
	if err != nil {
		return types.PlacedOrder{}, err
	}

	placed := types.PlacedOrder{Order: order, Side: side, PlacedAt: time.Now().UTC()}
	costs, err := c.review(ctx, req)
	if err != nil {
		// The order is live; losing the cost breakdown must not hide its id
		logger.ErrorWithErr(ctx, "Failed to fetch costs for placed order", err, "order_id", string(order.OrderID))
	} else {
		placed.Costs = costs
	}

	logger.Order(ctx, "placed", string(order.OrderID), order.Code, "side", string(side), "value", order.Value.String())
	return placed, nil
}

// orderRequest resolves the ticker and signs the amount for the side.
func (c *Client) orderRequest(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.OrderRequest, error) {
	value, err := side.Normalize(amount)
	if err != nil {
		return types.OrderRequest{}, err
	}
	instrument, err := c.resolver.Resolve(ctx, ticker)
	if err != nil {
		return types.OrderRequest{}, err
	}
	return types.OrderRequest{
		Currency:       c.currency,
		InstrumentCode: instrument,
		OrderType:      orderTypeMarket,
		Value:          value,
		TimeValidity:   timeGoodTillCancel,
	}, nil
}

// validate succeeds only on an empty response body. Anything else is the
// broker's rejection and is returned verbatim.
func (c *Client) validate(ctx context.Context, req types.OrderRequest) error {
	resp, err := c.t.Do(ctx, api.NewRequest(http.MethodPost, ValidatePath).WithBody(req).WithAnyStatus())
	if err != nil {
		return fmt.Errorf("order validation request failed: %w", err)
	}
	if !resp.Empty() {
		rejection := types.NewBrokerOrderError(resp.Body)
		logger.Warn(ctx, "Order rejected by validation", "instrument", req.InstrumentCode, "failure", string(rejection.Failure), "status", resp.StatusCode)
		return rejection
	}
	return nil
}

// submitAndMatch places the order inside the critical section and returns
// the one new order matching instrument and value.
func (c *Client) submitAndMatch(ctx context.Context, req types.OrderRequest) (types.Order, error) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	before, err := c.orders.FromSummary(ctx)
	if err != nil {
		return types.Order{}, err
	}

	resp, err := c.t.POST(ctx, ValueOrderPath, req)
	if err != nil {
		return types.Order{}, fmt.Errorf("order placement failed: %w", err)
	}

	after, err := c.orders.FromExecutionResponse(resp)
	if err != nil {
		return types.Order{}, err
	}

	return matchNewOrder(before, after, req)
}

// matchNewOrder picks the single order absent from before whose code and
// value equal the request. Zero or several candidates is an invariant
// violation; guessing could report someone else's order.
func matchNewOrder(before, after []types.Order, req types.OrderRequest) (types.Order, error) {
	known := orderIDs(before)

	var candidates []types.Order
	for _, o := range after {
		if known[o.OrderID] {
			continue
		}
		if o.Code == req.InstrumentCode && o.Value.Equal(req.Value) {
			candidates = append(candidates, o)
		}
	}

	if len(candidates) == 1 {
		return candidates[0], nil
	}

	ids := make([]string, len(candidates))
	for i, o := range candidates {
		ids[i] = string(o.OrderID)
	}
	return types.Order{}, &types.InvariantViolationError{
		Op:         "place order",
		Candidates: len(candidates),
		Detail: fmt.Sprintf("instrument=%s value=%s new_orders=%d candidates=[%s]",
			req.InstrumentCode, req.Value, len(after)-countKnown(after, known), strings.Join(ids, ",")),
	}
}

func countKnown(orders []types.Order, known map[types.OrderID]bool) int {
	n := 0
	for _, o := range orders {
		if known[o.OrderID] {
			n++
		}
	}
	return n
}

// CancelOrder deletes an open order. The broker treats repeats as no-ops.
func (c *Client) CancelOrder(ctx context.Context, orderID types.OrderID) (map[string]any, error) {
	resp, err := c.t.DELETE(ctx, cancelPath(string(orderID)))
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	ack := map[string]any{}
	if !resp.Empty() {
		if err := resp.ParseJSON(&ack); err != nil {
			return nil, err
		}
	}
	logger.Order(ctx, "cancelled", string(orderID), "")
	return ack, nil
}

// Costs returns the broker's cost review for a prospective order.
func (c *Client) Costs(ctx context.Context, side types.Side, ticker string, amount decimal.Decimal) (types.Costs, error) {
	req, err := c.orderRequest(ctx, side, ticker, amount)
	if err != nil {
		return nil, err
	}
	return c.review(ctx, req)
}

func (c *Client) review(ctx context.Context, req types.OrderRequest) (types.Costs, error) {
	resp, err := c.t.POST(ctx, ReviewPath, req)
	if err != nil {
		return nil, fmt.Errorf("order review failed: %w", err)
	}
	costs := types.Costs{}
	if err := resp.ParseJSON(&costs); err != nil {
		return nil, err
	}
	return costs, nil
}

// Status resolves an order's current status.
func (c *Client) Status(ctx context.Context, orderID types.OrderID) (types.StatusReport, error) {
	return c.status.Status(ctx, orderID)
}
