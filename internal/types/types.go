package types

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts BUY or SELL in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", &UnsupportedActionError{Action: s}
}

// Normalize signs amount for the side: BUY is positive, SELL is negative,
// whatever sign the caller supplied.
func (s Side) Normalize(amount decimal.Decimal) (decimal.Decimal, error) {
	switch s {
	case SideBuy:
		return amount.Abs(), nil
	case SideSell:
		return amount.Abs().Neg(), nil
	}
	return decimal.Zero, &UnsupportedActionError{Action: string(s)}
}

type Environment string

const (
	EnvDemo Environment = "demo"
	EnvLive Environment = "live"
)

func (e Environment) Valid() bool { return e == EnvDemo || e == EnvLive }

type OrderStatus string

const (
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Terminal() bool { return s != StatusSubmitted && s != "" }

// FailureType is a rejection code the broker embeds in a validation response.
type FailureType string

const (
	FailureInsufficientValueForStocksSell FailureType = "InsufficientValueForStocksSell"
	FailureValuePrecisionMismatch         FailureType = "ValuePrecisionMismatch"
)

var knownFailures = []FailureType{FailureInsufficientValueForStocksSell, FailureValuePrecisionMismatch}

// DetectFailure returns the first known failure code found in a rejection body.
func DetectFailure(body string) FailureType {
	for _, f := range knownFailures {
		if strings.Contains(body, string(f)) {
			return f
		}
	}
	return ""
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/102.0.5005.63 Safari/537.36"

// Credential is what a session is built from. It never changes once obtained.
type Credential struct {
	DeviceID   string `json:"deviceId"`
	LoginToken string `json:"loginToken"`
	UserAgent  string `json:"userAgent"`
}

// Complete reports whether the fields needed to build a session are present.
func (c Credential) Complete() bool {
	return c.DeviceID != "" && c.LoginToken != ""
}

type CredentialSource string

const (
	SourceCache   CredentialSource = "cache"
	SourceBrowser CredentialSource = "browser"
)

// OrderID is numeric on the wire for some endpoints and quoted for others.
type OrderID string

func (id *OrderID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	*id = OrderID(b)
	return nil
}

func (id OrderID) Int() (int64, error) { return strconv.ParseInt(string(id), 10, 64) }

// OrderRequest is the value-order payload shared by validate, place and review.
type OrderRequest struct {
	Currency       string          `json:"currency"`
	InstrumentCode string          `json:"instrumentCode"`
	OrderType      string          `json:"orderType"`
	Value          decimal.Decimal `json:"value"`
	TimeValidity   string          `json:"timeValidity"`
}

// MarshalJSON sends the value as a JSON number; the broker rejects quoted amounts.
func (r OrderRequest) MarshalJSON() ([]byte, error) {
	type wire struct {
		Currency       string      `json:"currency"`
		InstrumentCode string      `json:"instrumentCode"`
		OrderType      string      `json:"orderType"`
		Value          json.Number `json:"value"`
		TimeValidity   string      `json:"timeValidity"`
	}
	return json.Marshal(wire{
		Currency:       r.Currency,
		InstrumentCode: r.InstrumentCode,
		OrderType:      r.OrderType,
		Value:          json.Number(r.Value.String()),
		TimeValidity:   r.TimeValidity,
	})
}

// Order is a value order as listed by the account summary or the
// execution response.
type Order struct {
	OrderID      OrderID         `json:"orderId"`
	Type         string          `json:"type,omitempty"`
	Code         string          `json:"code"`
	Value        decimal.Decimal `json:"value"`
	FilledValue  decimal.Decimal `json:"filledValue"`
	Status       string          `json:"status,omitempty"`
	CurrencyCode string          `json:"currencyCode,omitempty"`
	Created      string          `json:"created,omitempty"`
	Frontend     string          `json:"frontend,omitempty"`
}

// Costs is the review endpoint payload, kept as the broker sends it.
type Costs map[string]any

type PlacedOrder struct {
	Order
	Side     Side      `json:"side"`
	PlacedAt time.Time `json:"placedAt"`
	Costs    Costs     `json:"cost,omitempty"`
}

// StatusReport is derived from server state on every query.
type StatusReport struct {
	OrderID  OrderID             `json:"orderId"`
	Status   OrderStatus         `json:"status"`
	Price    decimal.NullDecimal `json:"price"`
	Quantity decimal.NullDecimal `json:"quantity"`
}

type Position struct {
	PositionID            string              `json:"positionId"`
	HumanID               string              `json:"humanId"`
	Created               string              `json:"created"`
	AveragePrice          decimal.Decimal     `json:"averagePrice"`
	AveragePriceConverted decimal.Decimal     `json:"averagePriceConverted"`
	CurrentPrice          decimal.Decimal     `json:"currentPrice"`
	Value                 decimal.Decimal     `json:"value"`
	Investment            decimal.Decimal     `json:"investment"`
	Code                  string              `json:"code"`
	Margin                decimal.Decimal     `json:"margin"`
	Ppl                   decimal.Decimal     `json:"ppl"`
	Quantity              decimal.Decimal     `json:"quantity"`
	MaxBuy                *decimal.Decimal    `json:"maxBuy,omitempty"`
	MaxSell               *decimal.Decimal    `json:"maxSell,omitempty"`
	MaxOpenBuy            *decimal.Decimal    `json:"maxOpenBuy,omitempty"`
	MaxOpenSell           *decimal.Decimal    `json:"maxOpenSell,omitempty"`
	Frontend              string              `json:"frontend"`
	AutoInvestQuantity    decimal.Decimal     `json:"autoInvestQuantity"`
	FxPpl                 decimal.NullDecimal `json:"fxPpl"`
}

// Ticker is the display ticker part of the instrument code, e.g. MSFT for MSFT_US_EQ.
func (p Position) Ticker() string {
	ticker, _, _ := strings.Cut(p.Code, "_")
	return ticker
}

type Cash struct {
	Free          decimal.Decimal `json:"free"`
	Total         decimal.Decimal `json:"total"`
	FreeForStocks decimal.Decimal `json:"freeForStocks"`
	Ppl           decimal.Decimal `json:"ppl"`
	Result        decimal.Decimal `json:"result"`
	Dividend      decimal.Decimal `json:"dividend"`
	Invested      decimal.Decimal `json:"stockInvestment"`
}

// AccountSummary is the subset of the summary endpoint the client reads.
type AccountSummary struct {
	Cash Cash `json:"cash"`
	Open struct {
		UnfilteredCount int        `json:"unfilteredCount"`
		Items           []Position `json:"items"`
	} `json:"open"`
	ValueOrders struct {
		UnfilteredCount int     `json:"unfilteredCount"`
		Items           []Order `json:"items"`
	} `json:"valueOrders"`
}

type AccountDetails struct {
	Cash  decimal.Decimal `json:"cash"`
	Total decimal.Decimal `json:"total"`
}

// Instrument is a search hit describing a tradable equity.
type Instrument struct {
	ObjectID            string `json:"objectID"`
	Name                string `json:"name"`
	ShortName           string `json:"shortName"`
	ExchangeName        string `json:"exchangeName"`
	UIType              string `json:"uiType"`
	Category            string `json:"category"`
	CurrencyCode        string `json:"currencyCode"`
	ExchangeCountryCode string `json:"exchangeCountryCode"`
}

func (i Instrument) IsZero() bool { return i.ObjectID == "" }

// Quote is the per-ticker body of the price deviations endpoint.
type Quote map[string]any
