package ticker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"tradingtot/internal/api"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

const (
	AlgoliaConfigPath = "/rest/algolia/v1/search/config/EN"
	searchIndex       = "instrument.ld4.EN"
	hitsPerPage       = 50
)

// SupportedExchanges are the only venues whose settlement and currency
// handling has been verified.
var SupportedExchanges = map[string]bool{"NASDAQ": true, "NYSE": true}

// Getter is the authenticated broker call the resolver needs
type Getter interface {
	GET(ctx context.Context, url string) (*api.Response, error)
}

type algoliaCredentials struct {
	ApplicationID string `json:"applicationId"`
	SearchAPIKey  string `json:"searchApiKey"`
}

type algoliaConfig struct {
	Credentials algoliaCredentials `json:"credentials"`
}

type searchResponse struct {
	Results []struct {
		Hits []types.Instrument `json:"hits"`
	} `json:"results"`
}

// Resolver maps display tickers to broker instrument ids through the broker's
// Algolia search index.
type Resolver struct {
	broker      Getter
	search      *api.Client
	environment types.Environment
	algoliaBase string
	retry       *api.RetryConfig
	mapper      *instrumentMapper

	mu    sync.Mutex
	creds *algoliaCredentials
}

var _ interfaces.TickerResolver = (*Resolver)(nil)

type Option func(*Resolver)

// WithAlgoliaBase overrides https://{appId}-dsn.algolia.net
func WithAlgoliaBase(base string) Option {
	return func(r *Resolver) { r.algoliaBase = strings.TrimRight(base, "/") }
}

// WithSearchClient sets the client used for search index calls
func WithSearchClient(c *api.Client) Option {
	return func(r *Resolver) { r.search = c }
}

// WithSearchRetry sets how index calls are retried on 5xx and network errors
func WithSearchRetry(cfg *api.RetryConfig) Option {
	return func(r *Resolver) { r.retry = cfg }
}

func NewResolver(broker Getter, env types.Environment, opts ...Option) *Resolver {
	r := &Resolver{
		broker:      broker,
		environment: env,
		retry:       api.DefaultRetryConfig(),
		mapper:      newInstrumentMapper(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.search == nil {
		r.search = api.NewClient(api.WithHeaders(api.BrowserHeaders(types.DefaultUserAgent)))
	}
	return r
}

// Resolve returns the instrument id for ticker. Tickers are case-insensitive;
// an id that was already resolved is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, ticker string) (string, error) {
	if _, ok := r.mapper.getTicker(ticker); ok {
		return ticker, nil
	}
	if id, ok := r.mapper.getID(strings.ToUpper(ticker)); ok {
		return id, nil
	}

	inst, err := r.Lookup(ctx, ticker)
	if err != nil {
		return "", err
	}
	if inst.IsZero() {
		return "", &types.TickerNotFoundError{Ticker: ticker}
	}
	return inst.ObjectID, nil
}

// Reverse returns the ticker an instrument id was resolved from
func (r *Resolver) Reverse(id string) (string, bool) {
	return r.mapper.getTicker(id)
}

// Lookup searches the index and returns the first supported equity whose
// short name is ticker. No match yields a zero Instrument and no error.
func (r *Resolver) Lookup(ctx context.Context, ticker string) (types.Instrument, error) {
	hits, err := r.searchHits(ctx, ticker)
	if err != nil {
		return types.Instrument{}, err
	}

	for _, hit := range hits {
		if matches(hit, ticker) {
			r.mapper.addMapping(strings.ToUpper(ticker), hit.ObjectID)
			logger.Debug(ctx, "Ticker resolved", "ticker", ticker, "instrument", hit.ObjectID, "exchange", hit.ExchangeName)
			return hit, nil
		}
	}

	logger.Debug(ctx, "No supported equity for ticker", "ticker", ticker, "hits", len(hits))
	return types.Instrument{}, nil
}

func matches(hit types.Instrument, ticker string) bool {
	return strings.ToUpper(hit.Category) == "EQUITY" &&
		hit.UIType == "STOCK" &&
		strings.EqualFold(hit.ShortName, ticker) &&
		SupportedExchanges[strings.ToUpper(hit.ExchangeName)]
}

func (r *Resolver) searchHits(ctx context.Context, ticker string) ([]types.Instrument, error) {
	creds, err := r.credentials(ctx)
	if err != nil {
		return nil, err
	}

	req := api.NewRequest(http.MethodPost, r.searchURL(creds)).
		WithContext(ctx).
		WithBody(searchPayload(r.environment, ticker, 0))
	resp, err := r.search.DoWithRetry(req, r.retry)
	if err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == 401 || httpErr.StatusCode == 403) {
			// Search keys rotate; fetch them again next time
			r.mu.Lock()
			r.creds = nil
			r.mu.Unlock()
		}
		return nil, fmt.Errorf("instrument search failed: %w", err)
	}

	var parsed searchResponse
	if err := resp.ParseJSON(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	return parsed.Results[0].Hits, nil
}

func (r *Resolver) credentials(ctx context.Context) (algoliaCredentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.creds != nil {
		return *r.creds, nil
	}

	resp, err := r.broker.GET(ctx, AlgoliaConfigPath)
	if err != nil {
		return algoliaCredentials{}, fmt.Errorf("failed to fetch search config: %w", err)
	}
	var cfg algoliaConfig
	if err := resp.ParseJSON(&cfg); err != nil {
		return algoliaCredentials{}, err
	}
	if cfg.Credentials.ApplicationID == "" || cfg.Credentials.SearchAPIKey == "" {
		return algoliaCredentials{}, errors.New("search config is missing credentials")
	}
	r.creds = &cfg.Credentials
	return cfg.Credentials, nil
}

func (r *Resolver) searchURL(creds algoliaCredentials) string {
	base := r.algoliaBase
	if base == "" {
		base = fmt.Sprintf("https://%s-dsn.algolia.net", creds.ApplicationID)
	}
	q := url.Values{}
	q.Set("x-algolia-api-key", creds.SearchAPIKey)
	q.Set("x-algolia-application-id", creds.ApplicationID)
	return base + "/1/indexes/*/queries?" + q.Encode()
}

// searchPayload mirrors the query the web client sends.
func searchPayload(env types.Environment, ticker string, page int) map[string]any {
	filters := fmt.Sprintf("(category:EQUITY) AND (state.%s.enabled:true) AND (state.%s.conditionalVisibility:false) AND (NOT dealerExclusions:AVUSUK)", env, env)
	params := url.Values{}
	params.Set("attributesToHighlight", `["name","shortName","exchangeName","uiType"]`)
	params.Set("attributesToRetrieve", `["name","shortName","exchangeName","uiType","exchangeCountryCode","currencyCode","category","workingScheduleId"]`)
	params.Set("filters", filters)
	params.Set("getRankingInfo", "true")
	params.Set("hitsPerPage", fmt.Sprint(hitsPerPage))
	params.Set("optionalFilters", "[]")
	params.Set("page", fmt.Sprint(page))
	params.Set("query", ticker)
	params.Set("sumOrFiltersScores", "true")
	params.Set("tagFilters", "")

	return map[string]any{
		"requests": []map[string]string{
			{"indexName": searchIndex, "params": params.Encode()},
		},
	}
}
