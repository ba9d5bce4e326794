package interfaces

import (
	"context"

	"tradingtot/internal/types"
)

// CredentialStore is a single-slot durable credential cache.
type CredentialStore interface {
	// Read returns ok=false when no usable credential is stored
	Read() (cred types.Credential, ok bool, err error)
	// Write overwrites the stored credential
	Write(cred types.Credential) error
	// Delete removes the stored credential; deleting nothing is not an error
	Delete() error
}

// LoginDriver logs a human-equivalent session into the broker site.
type LoginDriver interface {
	Login(ctx context.Context, email, password string) (types.Credential, error)
	Close() error
}

// CredentialProvider yields a credential candidate for the authenticator.
type CredentialProvider interface {
	// Credential returns ok=false when the provider has nothing to offer
	Credential(ctx context.Context) (cred types.Credential, ok bool, err error)
	// Source identifies the provider in logs and in the accept/reject callbacks
	Source() types.CredentialSource
	// Accepted is called after the credential passed the session probe
	Accepted(ctx context.Context, cred types.Credential) error
	// Rejected is called after the credential failed the session probe
	Rejected(ctx context.Context, cred types.Credential) error
}

// TickerResolver maps display tickers to broker instrument ids.
type TickerResolver interface {
	Resolve(ctx context.Context, ticker string) (string, error)
	Lookup(ctx context.Context, ticker string) (types.Instrument, error)
}

// StatusResolver derives an order's status from server state.
type StatusResolver interface {
	Status(ctx context.Context, orderID types.OrderID) (types.StatusReport, error)
}
