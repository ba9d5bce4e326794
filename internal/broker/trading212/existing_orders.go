package trading212

import (
	"context"
	"fmt"

	"tradingtot/internal/api"
	"tradingtot/internal/types"
)

// executionResponse is the part of the place-order response that lists the
// account's value orders after the submission.
type executionResponse struct {
	Account struct {
		EquityValueOrders []types.Order `json:"equityValueOrders"`
	} `json:"account"`
}

// ExistingOrders reads the account's open value orders, either from the
// summary endpoint or from a place-order response.
type ExistingOrders struct {
	t Transport
}

func NewExistingOrders(t Transport) *ExistingOrders {
	return &ExistingOrders{t: t}
}

// Summary fetches the account summary
func (h *ExistingOrders) Summary(ctx context.Context) (types.AccountSummary, error) {
	resp, err := h.t.POST(ctx, AccountSummaryPath, []any{})
	if err != nil {
		return types.AccountSummary{}, fmt.Errorf("failed to fetch account summary: %w", err)
	}
	var summary types.AccountSummary
	if err := resp.ParseJSON(&summary); err != nil {
		return types.AccountSummary{}, err
	}
	return summary, nil
}

// FromSummary returns the open value orders listed by the account summary
func (h *ExistingOrders) FromSummary(ctx context.Context) ([]types.Order, error) {
	summary, err := h.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return summary.ValueOrders.Items, nil
}

// FromExecutionResponse returns the value orders listed in a place-order response
func (h *ExistingOrders) FromExecutionResponse(resp *api.Response) ([]types.Order, error) {
	var exec executionResponse
	if err := resp.ParseJSON(&exec); err != nil {
		return nil, fmt.Errorf("unexpected place-order response: %w", err)
	}
	return exec.Account.EquityValueOrders, nil
}

func orderIDs(orders []types.Order) map[types.OrderID]bool {
	ids := make(map[types.OrderID]bool, len(orders))
	for _, o := range orders {
		ids[o.OrderID] = true
	}
	return ids
}
