package trading212

import (
	"context"
	"sync"

	"tradingtot/internal/api"
	"tradingtot/internal/interfaces"
)

// Transport is the authenticated request capability. Every call it makes
// goes out on a session that passed the authenticate probe.
type Transport interface {
	Do(ctx context.Context, req *api.Request) (*api.Response, error)
	GET(ctx context.Context, url string) (*api.Response, error)
	POST(ctx context.Context, url string, body interface{}) (*api.Response, error)
	PUT(ctx context.Context, url string, body interface{}) (*api.Response, error)
	DELETE(ctx context.Context, url string) (*api.Response, error)
}

type Params struct {
	Transport Transport
	Resolver  interfaces.TickerResolver
	// Status overrides the fill-id probing resolver
	Status   interfaces.StatusResolver
	Currency string
}

// Client is the Trading212 equity client for one account and one session.
type Client struct {
	t        Transport
	resolver interfaces.TickerResolver
	status   interfaces.StatusResolver
	orders   *ExistingOrders
	currency string

	// orderMu linearizes snapshot, place and match
	orderMu sync.Mutex
}

var _ interfaces.Broker = (*Client)(nil)

func New(p Params) *Client {
	c := &Client{
		t:        p.Transport,
		resolver: p.Resolver,
		status:   p.Status,
		orders:   NewExistingOrders(p.Transport),
		currency: p.Currency,
	}
	if c.currency == "" {
		c.currency = "GBP"
	}
	if c.status == nil {
		c.status = NewStatusResolver(p.Transport, c.orders)
	}
	return c
}
