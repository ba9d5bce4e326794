package trading212

import "fmt"

// Paths are relative to the environment host, https://{demo|live}.trading212.com.
const (
	ValidatePath       = "/rest/v1/equity/value-order/validate"
	ValueOrderPath     = "/rest/v1/equity/value-order"
	ReviewPath         = "/rest/v1/equity/value-order/review"
	DeviationsPath     = "/charting/v1/watchlist/batch/deviations"
	OrderHistoryPath   = "/rest/history/orders"
	AccountSummaryPath = "/rest/trading/v1/accounts/summary"
)

const (
	orderTypeMarket    = "MARKET"
	timeGoodTillCancel = "GOOD_TILL_CANCEL"
)

func cancelPath(orderID string) string {
	return fmt.Sprintf("%s/%s", ValueOrderPath, orderID)
}

func historyPath(fillID int64) string {
	return fmt.Sprintf("%s/%d", OrderHistoryPath, fillID)
}
