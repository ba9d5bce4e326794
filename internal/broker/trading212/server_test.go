package trading212

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"tradingtot/internal/api"
	"tradingtot/internal/types"
)

// clientTransport satisfies Transport with an unauthenticated client
type clientTransport struct {
	c *api.Client
}

func (t clientTransport) Do(ctx context.Context, req *api.Request) (*api.Response, error) {
	return t.c.Do(req.WithContext(ctx))
}

func (t clientTransport) GET(ctx context.Context, url string) (*api.Response, error) {
	return t.c.GET(ctx, url)
}

func (t clientTransport) POST(ctx context.Context, url string, body interface{}) (*api.Response, error) {
	return t.c.POST(ctx, url, body)
}

func (t clientTransport) PUT(ctx context.Context, url string, body interface{}) (*api.Response, error) {
	return t.c.PUT(ctx, url, body)
}

func (t clientTransport) DELETE(ctx context.Context, url string) (*api.Response, error) {
	return t.c.DELETE(ctx, url)
}

// staticResolver resolves from a fixed ticker table
type staticResolver map[string]string

func (r staticResolver) Resolve(ctx context.Context, ticker string) (string, error) {
	if id, ok := r[ticker]; ok {
		return id, nil
	}
	for _, id := range r {
		if id == ticker {
			return id, nil
		}
	}
	return "", &types.TickerNotFoundError{Ticker: ticker}
}

func (r staticResolver) Lookup(ctx context.Context, ticker string) (types.Instrument, error) {
	id, ok := r[ticker]
	if !ok {
		return types.Instrument{}, nil
	}
	return types.Instrument{ObjectID: id, ShortName: ticker, ExchangeName: "NASDAQ", UIType: "STOCK", Category: "EQUITY"}, nil
}

var testTickers = staticResolver{"MSFT": "MSFT_US_EQ", "AAPL": "AAPL_US_EQ"}

type serverOrder struct {
	OrderID int64           `json:"orderId"`
	Code    string          `json:"code"`
	Value   decimal.Decimal `json:"value"`
}

// brokerServer is an in-memory stand-in for the broker's web API
type brokerServer struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	nextID       int64
	open         []serverOrder
	positions    string
	cash         string
	validateResp string
	validateCode int
	validated    []types.OrderRequest
	placements   int
	summaries    int
	// twins makes each placement create a duplicate order
	twins bool
	// valueSkew is added to the stored value of each placed order
	valueSkew   decimal.Decimal
	reviewCode  int
	history     map[int64]string
	probed      []int64
	deviations  string
	cancelled   []string
	cancelReply string
}

func newBrokerServer(t *testing.T) *brokerServer {
	t.Helper()
	s := &brokerServer{
		t:          t,
		nextID:     1000,
		positions:  "[]",
		cash:       `{"free":0,"total":0,"freeForStocks":0}`,
		reviewCode: http.StatusOK,
		history:    make(map[int64]string),
		deviations: `[]`,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *brokerServer) client() *Client {
	return New(Params{
		Transport: clientTransport{api.NewClient(api.WithBaseURL(s.srv.URL))},
		Resolver:  testTickers,
	})
}

func (s *brokerServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	path := r.URL.Path

	switch {
	case r.Method == http.MethodPost && path == AccountSummaryPath:
		s.summaries++
		orders, _ := json.Marshal(s.open)
		w.Write([]byte(`{"cash":` + s.cash + `,"open":{"items":` + s.positions + `},"valueOrders":{"items":` + string(orders) + `}}`))

	case r.Method == http.MethodPost && path == ValidatePath:
		var req types.OrderRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.t.Errorf("Bad validate body %s: %v", body, err)
		}
		s.validated = append(s.validated, req)
		if s.validateCode != 0 {
			w.WriteHeader(s.validateCode)
		}
		w.Write([]byte(s.validateResp))

	case r.Method == http.MethodPost && path == ValueOrderPath:
		var req types.OrderRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.t.Errorf("Bad order body %s: %v", body, err)
		}
		s.placements++
		s.addOrder(req)
		if s.twins {
			s.addOrder(req)
		}
		orders, _ := json.Marshal(s.open)
		w.Write([]byte(`{"account":{"equityValueOrders":` + string(orders) + `}}`))

	case r.Method == http.MethodPost && path == ReviewPath:
		if s.reviewCode != http.StatusOK {
			w.WriteHeader(s.reviewCode)
			return
		}
		w.Write([]byte(`{"buyCosts":{"fxFee":0.15},"estimatedQuantity":0.02}`))

	case r.Method == http.MethodDelete && strings.HasPrefix(path, ValueOrderPath+"/"):
		id := strings.TrimPrefix(path, ValueOrderPath+"/")
		s.cancelled = append(s.cancelled, id)
		s.removeOrder(id)
		w.Write([]byte(s.cancelReply))

	case r.Method == http.MethodGet && strings.HasPrefix(path, OrderHistoryPath+"/"):
		id, err := strconv.ParseInt(strings.TrimPrefix(path, OrderHistoryPath+"/"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.probed = append(s.probed, id)
		report, ok := s.history[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(report))

	case r.Method == http.MethodPut && path == DeviationsPath:
		w.Write([]byte(s.deviations))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *brokerServer) addOrder(req types.OrderRequest) {
	s.open = append(s.open, serverOrder{OrderID: s.nextID, Code: req.InstrumentCode, Value: req.Value.Add(s.valueSkew)})
	s.nextID++
}

func (s *brokerServer) removeOrder(id string) {
	kept := s.open[:0]
	for _, o := range s.open {
		if strconv.FormatInt(o.OrderID, 10) != id {
			kept = append(kept, o)
		}
	}
	s.open = kept
}

func (s *brokerServer) setOpen(orders ...serverOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = orders
}

func (s *brokerServer) setHistory(fillID int64, report string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[fillID] = report
}

func (s *brokerServer) probedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.probed...)
}

func (s *brokerServer) counts() (validated, placements, summaries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.validated), s.placements, s.summaries
}
