package shared

import (
	"errors"
	"fmt"
)

// Business errors. Repositories return typed errors that unwrap to these so callers
// and the HTTP layer can match with errors.Is.
var (
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrUserNotFound               = errors.New("user not found")
	ErrDuplicateRequest           = errors.New("duplicate request")
	ErrNoProviderAvailable        = errors.New("no provider available")
	ErrNotFound                   = errors.New("not found")
	ErrAlreadyTerminal            = errors.New("already in a terminal state")
	ErrExternalVerificationFailed = errors.New("external verification failed")
	ErrSelfTransfer               = errors.New("cannot transfer to yourself")
)

// ProviderError carries the failure of the last bill provider tried.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
