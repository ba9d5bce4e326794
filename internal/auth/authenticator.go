package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"tradingtot/internal/api"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

const (
	MinAttempts     = 3
	MaxAttempts     = 5
	DefaultAttempts = MinAttempts
)

// Authenticator owns the client's single active session. It swaps the session
// wholesale whenever the current one stops passing the authenticate probe.
type Authenticator struct {
	baseURL    string
	attempts   int
	providers  []interfaces.CredentialProvider
	clientOpts []api.ClientOption

	mu      sync.Mutex
	session *api.Client
	cred    types.Credential
}

type AuthenticatorOption func(*Authenticator)

// WithAttempts sets the outer reauthentication budget
func WithAttempts(n int) AuthenticatorOption {
	return func(a *Authenticator) { a.attempts = n }
}

// WithSessionOptions are applied to every session client the authenticator builds
func WithSessionOptions(opts ...api.ClientOption) AuthenticatorOption {
	return func(a *Authenticator) { a.clientOpts = append(a.clientOpts, opts...) }
}

// NewAuthenticator creates an authenticator that asks providers for a
// credential in order. The cached provider goes first so the login driver
// only runs when nothing reusable is stored.
func NewAuthenticator(baseURL string, providers []interfaces.CredentialProvider, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		baseURL:   baseURL,
		attempts:  DefaultAttempts,
		providers: providers,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.attempts < 1 {
		a.attempts = DefaultAttempts
	}
	return a
}

// Credential returns the credential behind the active session, if any
func (a *Authenticator) Credential() (types.Credential, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cred, a.session != nil
}

// Ensure returns a session that passed the authenticate probe, logging in
// again when needed.
func (a *Authenticator) Ensure(ctx context.Context) (*api.Client, error) {
	a.mu.Lock()
	current := a.session
	a.mu.Unlock()

	if current != nil {
		err := probe(ctx, current)
		if err == nil {
			return current, nil
		}
		if !rejected(err) {
			// No verdict, so the session and the cache stay as they are
			return nil, fmt.Errorf("session probe: %w", err)
		}
		logger.Debug(ctx, "Session probe rejected", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Another caller may have reauthenticated while we were probing
	if a.session != nil && a.session != current {
		return a.session, nil
	}

	op := logger.StartOperation(ctx, "auth.ensure", "attempts", a.attempts)
	ctx = op.Context()

	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		session, cred, err := a.authenticate(ctx)
		if err == nil {
			a.session = session
			a.cred = cred
			op.End("attempt", attempt)
			return session, nil
		}
		var cfgErr *types.ConfigurationError
		if errors.As(err, &cfgErr) {
			op.EndWithError(err)
			return nil, err
		}
		var unreachable *unreachableError
		if errors.As(err, &unreachable) {
			op.EndWithError(err)
			return nil, err
		}
		if ctx.Err() != nil {
			op.EndWithError(ctx.Err())
			return nil, ctx.Err()
		}
		logger.Warn(ctx, "Authentication attempt failed", "attempt", attempt, "max_attempts", a.attempts, "error", err)
		lastErr = err
	}

	a.session = nil
	a.cred = types.Credential{}
	authErr := &types.AuthenticationError{Attempts: a.attempts, Err: lastErr}
	op.EndWithError(authErr)
	return nil, authErr
}

// authenticate runs one attempt: the first provider holding a credential
// supplies it, the credential is probed and its provider is told the result.
func (a *Authenticator) authenticate(ctx context.Context) (*api.Client, types.Credential, error) {
	for _, provider := range a.providers {
		source := string(provider.Source())

		cred, ok, err := provider.Credential(ctx)
		if err != nil {
			return nil, types.Credential{}, fmt.Errorf("%s credential: %w", source, err)
		}
		if !ok {
			logger.Debug(ctx, "No credential available", "source", source)
			continue
		}

		session := NewSession(a.baseURL, cred, a.clientOpts...)
		if err := probe(ctx, session); err != nil {
			if !rejected(err) {
				return nil, types.Credential{}, &unreachableError{source: source, err: err}
			}
			logger.Auth(ctx, source, "rejected", "error", err)
			if rerr := provider.Rejected(ctx, cred); rerr != nil {
				logger.ErrorWithErr(ctx, "Failed to discard rejected credential", rerr, "source", source)
			}
			return nil, types.Credential{}, fmt.Errorf("%s credential rejected: %w", source, err)
		}

		logger.Auth(ctx, source, "accepted")
		if err := provider.Accepted(ctx, cred); err != nil {
			// The session is usable even if it could not be persisted
			logger.ErrorWithErr(ctx, "Failed to persist credential", err, "source", source)
		}
		return session, cred, nil
	}
	return nil, types.Credential{}, errors.New("no credential provider yielded a credential")
}

// unreachableError means the probe got no answer from the server, so the
// credential was neither accepted nor rejected.
type unreachableError struct {
	source string
	err    error
}

func (e *unreachableError) Error() string {
	return fmt.Sprintf("%s credential not verified: %v", e.source, e.err)
}

func (e *unreachableError) Unwrap() error { return e.err }

// probe reports whether the session is authenticated. Only a 200 counts. A
// server answer other than 200 comes back as *api.HTTPError; anything else is
// a transport or context failure.
func probe(ctx context.Context, session *api.Client) error {
	resp, err := session.Do(api.NewRequest(http.MethodGet, AuthenticatePath).WithContext(ctx).WithAnyStatus())
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &api.HTTPError{StatusCode: resp.StatusCode, Method: http.MethodGet, URL: AuthenticatePath, Body: resp.Body}
	}
	return nil
}

// rejected reports whether a probe error is the server's verdict on the session
func rejected(err error) bool {
	var httpErr *api.HTTPError
	return errors.As(err, &httpErr)
}
