package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrAuthentication     = errors.New("authentication failed")
	ErrTickerNotFound     = errors.New("ticker not found")
	ErrBrokerOrder        = errors.New("order rejected by broker")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrUnsupportedAction  = errors.New("unsupported order action")
)

// ConfigurationError is fatal at startup and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// AuthenticationError means every reauthentication attempt was used up.
type AuthenticationError struct {
	Attempts int
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("authentication failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AuthenticationError) Unwrap() error        { return e.Err }
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

type TickerNotFoundError struct {
	Ticker string
}

func (e *TickerNotFoundError) Error() string {
	return fmt.Sprintf("no supported equity found for ticker %q", e.Ticker)
}

func (e *TickerNotFoundError) Is(target error) bool { return target == ErrTickerNotFound }

// BrokerOrderError carries the broker's rejection body verbatim.
type BrokerOrderError struct {
	Reason  string
	Failure FailureType
}

func NewBrokerOrderError(body []byte) *BrokerOrderError {
	reason := string(body)
	return &BrokerOrderError{Reason: reason, Failure: DetectFailure(reason)}
}

func (e *BrokerOrderError) Error() string {
	return fmt.Sprintf("the order was invalid. Reason: %s", e.Reason)
}

func (e *BrokerOrderError) Is(target error) bool { return target == ErrBrokerOrder }

// InvariantViolationError is raised when the placed order cannot be
// identified unambiguously. Candidates is the number of matching orders.
type InvariantViolationError struct {
	Op         string
	Candidates int
	Detail     string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %d candidate orders matched: %s", e.Op, e.Candidates, e.Detail)
}

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }

type UnsupportedActionError struct {
	Action string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("order action %q not supported", e.Action)
}

func (e *UnsupportedActionError) Is(target error) bool { return target == ErrUnsupportedAction }
