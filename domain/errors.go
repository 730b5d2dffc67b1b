package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// returned by a transport when a fetch for the same symbol is still pending.
	// the caller should skip the cycle, not retry.
	ErrFetchInFlight = errors.New("fetch already in flight")
	// push transport has not delivered anything for the symbol yet
	ErrSnapshotUnavailable = errors.New("snapshot is not available")
	// server answered 404 for the order
	ErrOrderNotFound = errors.New("order not found")
	// order id is not present in the local ledger
	ErrUnknownOrder       = errors.New("unknown order")
	ErrMarketViewNotFound = errors.New("market view not found")
)

// ValidationError is raised before anything leaves the process.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConnectivityError wraps a transport failure. It never mutates applied state.
type ConnectivityError struct {
	Source Source
	Op     string
	Err    error
}

func NewConnectivityError(source Source, op string, err error) *ConnectivityError {
	return &ConnectivityError{Source: source, Op: op, Err: err}
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s transport: %s: %v", e.Source, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

type StaleUpdateError struct {
	Symbol     string
	Generation uint64
	Reason     string
}

func (e *StaleUpdateError) Error() string {
	return fmt.Sprintf("stale update for %s (generation %d): %s", e.Symbol, e.Generation, e.Reason)
}

type InconsistentTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
	Reason  string
}

func (e *InconsistentTransitionError) Error() string {
	return fmt.Sprintf("order %s: inconsistent transition %s -> %s: %s", e.OrderID, e.From, e.To, e.Reason)
}

type CancelRejectedError struct {
	OrderID string
	Status  OrderStatus
	Reason  string
}

func (e *CancelRejectedError) Error() string {
	return fmt.Sprintf("cancel of order %s rejected (status %s): %s", e.OrderID, e.Status, e.Reason)
}

func IsErrValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsErrConnectivity(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

func IsErrStale(err error) bool {
	var target *StaleUpdateError
	return errors.As(err, &target)
}

func IsErrInconsistentTransition(err error) bool {
	var target *InconsistentTransitionError
	return errors.As(err, &target)
}

func IsErrCancelRejected(err error) bool {
	var target *CancelRejectedError
	return errors.As(err, &target)
}
