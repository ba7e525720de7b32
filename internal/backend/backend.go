package backend

import (
	"context"
	"errors"
	"fmt"
)

// Backend defines the interface that all worker adapters must implement.
type Backend interface {
	// Execute performs the task and returns its outcome. Implementations must
	// return promptly once ctx is done.
	Execute(ctx context.Context, req Request) (Outcome, error)
}

// New creates a new backend based on the provided configuration.
// This factory function switches on cfg.Type and returns the appropriate adapter.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case "simulated":
		return NewSimulatedAdapter(cfg), nil
	case "command":
		return NewCommandAdapter(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
