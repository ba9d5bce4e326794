package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

// CachedCredentialProvider offers the credential stored by an earlier
// successful login and forgets it once the server rejects it.
type CachedCredentialProvider struct {
	store interfaces.CredentialStore
}

var _ interfaces.CredentialProvider = (*CachedCredentialProvider)(nil)

func NewCachedCredentialProvider(store interfaces.CredentialStore) *CachedCredentialProvider {
	return &CachedCredentialProvider{store: store}
}

func (p *CachedCredentialProvider) Source() types.CredentialSource { return types.SourceCache }

func (p *CachedCredentialProvider) Credential(ctx context.Context) (types.Credential, bool, error) {
	return p.store.Read()
}

func (p *CachedCredentialProvider) Accepted(ctx context.Context, cred types.Credential) error {
	return nil
}

func (p *CachedCredentialProvider) Rejected(ctx context.Context, cred types.Credential) error {
	logger.Auth(ctx, string(types.SourceCache), "invalidated")
	return p.store.Delete()
}

// InteractiveLoginProvider drives a LoginDriver and persists what it yields
// once the server accepts it. Driver failures are retried with a fresh
// driver up to maxTries times.
type InteractiveLoginProvider struct {
	driver   interfaces.LoginDriver
	store    interfaces.CredentialStore
	email    string
	password string
	maxTries uint
	backOff  backoff.BackOff
}

var _ interfaces.CredentialProvider = (*InteractiveLoginProvider)(nil)

type InteractiveOption func(*InteractiveLoginProvider)

// WithLoginTries bounds the driver retry budget
func WithLoginTries(n uint) InteractiveOption {
	return func(p *InteractiveLoginProvider) { p.maxTries = n }
}

// WithLoginBackOff sets the wait policy between driver attempts
func WithLoginBackOff(b backoff.BackOff) InteractiveOption {
	return func(p *InteractiveLoginProvider) { p.backOff = b }
}

func NewInteractiveLoginProvider(driver interfaces.LoginDriver, store interfaces.CredentialStore, email, password string, opts ...InteractiveOption) *InteractiveLoginProvider {
	p := &InteractiveLoginProvider{
		driver:   driver,
		store:    store,
		email:    email,
		password: password,
		maxTries: 3,
		backOff:  backoff.NewConstantBackOff(2 * time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *InteractiveLoginProvider) Source() types.CredentialSource { return types.SourceBrowser }

func (p *InteractiveLoginProvider) Credential(ctx context.Context) (types.Credential, bool, error) {
	if p.email == "" || p.password == "" {
		return types.Credential{}, false, missingLoginError()
	}

	attempt := 0
	cred, err := backoff.Retry(ctx, func() (types.Credential, error) {
		attempt++
		cred, err := p.driver.Login(ctx, p.email, p.password)
		if err == nil && !cred.Complete() {
			err = fmt.Errorf("login returned an incomplete credential")
		}
		if err != nil {
			// Next attempt starts from a new browser
			if cerr := p.driver.Close(); cerr != nil {
				logger.Warn(ctx, "Failed to close login driver", "error", cerr)
			}
			return types.Credential{}, err
		}
		return cred, nil
	},
		backoff.WithBackOff(p.backOff),
		backoff.WithMaxTries(p.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Warn(ctx, "Retrying login attempt", "attempt", attempt, "error", err, "wait", wait)
		}),
	)
	if err != nil {
		return types.Credential{}, false, fmt.Errorf("login failed after %d attempts: %w", attempt, err)
	}
	return cred, true, nil
}

func (p *InteractiveLoginProvider) Accepted(ctx context.Context, cred types.Credential) error {
	logger.Auth(ctx, string(types.SourceBrowser), "persisted")
	return p.store.Write(cred)
}

func (p *InteractiveLoginProvider) Rejected(ctx context.Context, cred types.Credential) error {
	return nil
}

func missingLoginError() error {
	return &types.ConfigurationError{Field: "TRADINGTOT_EMAIL/TRADINGTOT_PASSWORD", Reason: "required for interactive login"}
}
