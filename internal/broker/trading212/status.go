package trading212

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"tradingtot/internal/api"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

// MaxFillIDIncrement bounds the history probe. Fill ids have not been seen
// further than this from their order id.
const MaxFillIDIncrement = 50

// History report row tags.
const (
	keyDateExecuted  = "history.details.order.fill.date-executed.key"
	keyExchangeRate  = "history.details.order.exchange-rate.key"
	keyFillPrice     = "history.details.order.fill.price.key"
	keyFillQuantity  = "history.details.order.fill.quantity.key"
	fillSectionIndex = 2
)

type historyReport struct {
	Sections []historySection `json:"sections"`
}

type historySection struct {
	Rows []historyRow `json:"rows"`
}

type historyRow struct {
	Description struct {
		Key string `json:"key"`
	} `json:"description"`
	Value struct {
		Context json.RawMessage `json:"context"`
	} `json:"value"`
}

type rowContext struct {
	Amount   decimal.NullDecimal `json:"amount"`
	Quantity decimal.NullDecimal `json:"quantity"`
}

// present mirrors a truthiness check on the row context.
func (r historyRow) present() bool {
	ctx := bytes.TrimSpace(r.Value.Context)
	switch string(ctx) {
	case "", "null", "false", "0", `""`, "{}", "[]":
		return false
	}
	return true
}

func (r historyRow) context() rowContext {
	var rc rowContext
	_ = json.Unmarshal(r.Value.Context, &rc)
	return rc
}

// StatusResolver derives order status from the open-orders list and, once the
// order has left it, from the order history addressed by fill id. Terminal
// results are remembered so a status never moves out of a terminal state.
type StatusResolver struct {
	t      Transport
	orders *ExistingOrders

	mu       sync.RWMutex
	terminal map[types.OrderID]types.StatusReport
}

var _ interfaces.StatusResolver = (*StatusResolver)(nil)

func NewStatusResolver(t Transport, orders *ExistingOrders) *StatusResolver {
	return &StatusResolver{
		t:        t,
		orders:   orders,
		terminal: make(map[types.OrderID]types.StatusReport),
	}
}

func (r *StatusResolver) Status(ctx context.Context, orderID types.OrderID) (types.StatusReport, error) {
	r.mu.RLock()
	report, done := r.terminal[orderID]
	r.mu.RUnlock()
	if done {
		return report, nil
	}

	op := logger.StartOperation(ctx, "order.status", "order_id", string(orderID))
	ctx = op.Context()

	report, err := r.resolve(ctx, orderID)
	if err != nil {
		op.EndWithError(err)
		return types.StatusReport{}, err
	}
	op.End("status", string(report.Status))

	if report.Status.Terminal() {
		r.mu.Lock()
		if prev, ok := r.terminal[orderID]; ok {
			report = prev
		} else {
			r.terminal[orderID] = report
		}
		r.mu.Unlock()
	}
	logger.Order(ctx, "status", string(orderID), "", "status", string(report.Status))
	return report, nil
}

func (r *StatusResolver) resolve(ctx context.Context, orderID types.OrderID) (types.StatusReport, error) {
	open, err := r.orders.FromSummary(ctx)
	if err != nil {
		return types.StatusReport{}, err
	}
	if orderIDs(open)[orderID] {
		return types.StatusReport{OrderID: orderID, Status: types.StatusSubmitted}, nil
	}

	base, err := orderID.Int()
	if err != nil {
		return types.StatusReport{}, fmt.Errorf("order id %q is not numeric: %w", orderID, err)
	}

	body, found, err := r.probe(ctx, base)
	if err != nil {
		return types.StatusReport{}, err
	}
	if !found {
		// A rejected order and an unknown id look the same here
		logger.Debug(ctx, "No history record within probe bound", "order_id", string(orderID), "bound", MaxFillIDIncrement)
		return types.StatusReport{OrderID: orderID, Status: types.StatusRejected}, nil
	}

	var report historyReport
	if err := json.Unmarshal(body, &report); err != nil {
		return types.StatusReport{}, fmt.Errorf("failed to parse order history: %w", err)
	}
	return parseReport(ctx, orderID, report), nil
}

// probe walks fill ids from the order id upward until the history endpoint
// answers 200.
func (r *StatusResolver) probe(ctx context.Context, base int64) ([]byte, bool, error) {
	for offset := int64(0); offset < MaxFillIDIncrement; offset++ {
		req := api.NewRequest(http.MethodGet, historyPath(base+offset)).WithAnyStatus()
		resp, err := r.t.Do(ctx, req)
		if err != nil {
			return nil, false, fmt.Errorf("order history lookup failed: %w", err)
		}
		if resp.StatusCode == http.StatusOK {
			logger.Debug(ctx, "History record found", "fill_id", base+offset, "offset", offset)
			return resp.Body, true, nil
		}
	}
	return nil, false, nil
}

func parseReport(ctx context.Context, orderID types.OrderID, report historyReport) types.StatusReport {
	if len(report.Sections) == 0 {
		return types.StatusReport{OrderID: orderID, Status: types.StatusRejected}
	}

	rows := reportRows(report)

	var (
		executed     bool
		fillPrice    decimal.NullDecimal
		fillQuantity decimal.NullDecimal
		exchangeRate = decimal.NewFromInt(1)
	)
	for _, row := range rows {
		if !row.present() {
			continue
		}
		switch row.Description.Key {
		case keyDateExecuted:
			executed = true
		case keyExchangeRate:
			if q := row.context().Quantity; q.Valid && !q.Decimal.IsZero() {
				exchangeRate = q.Decimal
			}
		case keyFillPrice:
			fillPrice = row.context().Amount
		case keyFillQuantity:
			fillQuantity = row.context().Quantity
		}
	}

	if !fillPrice.Valid {
		return types.StatusReport{OrderID: orderID, Status: types.StatusCancelled}
	}
	if !executed {
		return types.StatusReport{OrderID: orderID, Status: types.StatusRejected}
	}

	if !fillQuantity.Valid || fillQuantity.Decimal.IsZero() {
		logger.Warn(ctx, "Could not extract the fill quantity", "order_id", string(orderID))
	}
	return types.StatusReport{
		OrderID:  orderID,
		Status:   types.StatusCompleted,
		Price:    decimal.NewNullDecimal(fillPrice.Decimal.Div(exchangeRate)),
		Quantity: fillQuantity,
	}
}

// reportRows reads the fill section when the report has one, otherwise
// every row in order.
func reportRows(report historyReport) []historyRow {
	if len(report.Sections) > fillSectionIndex {
		return report.Sections[fillSectionIndex].Rows
	}
	var rows []historyRow
	for _, s := range report.Sections {
		rows = append(rows, s.Rows...)
	}
	return rows
}
