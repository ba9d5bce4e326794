package auth

import (
	"context"

	"tradingtot/internal/api"
)

// Transport is the authenticated capability every broker component holds
// instead of a raw client. Each call runs Ensure first, so every request goes
// out on a session that just passed the probe.
type Transport struct {
	auth *Authenticator
}

func NewTransport(auth *Authenticator) *Transport {
	return &Transport{auth: auth}
}

// Do executes req on an authenticated session
func (t *Transport) Do(ctx context.Context, req *api.Request) (*api.Response, error) {
	session, err := t.auth.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return session.Do(req.WithContext(ctx))
}

func (t *Transport) GET(ctx context.Context, url string) (*api.Response, error) {
	session, err := t.auth.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return session.GET(ctx, url)
}

func (t *Transport) POST(ctx context.Context, url string, body interface{}) (*api.Response, error) {
	session, err := t.auth.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return session.POST(ctx, url, body)
}

func (t *Transport) PUT(ctx context.Context, url string, body interface{}) (*api.Response, error) {
	session, err := t.auth.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return session.PUT(ctx, url, body)
}

func (t *Transport) DELETE(ctx context.Context, url string) (*api.Response, error) {
	session, err := t.auth.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return session.DELETE(ctx, url)
}
