package reconciler

import (
	"errors"
	"fmt"
)

// Saga identifiers used in failure records.
const (
	sagaConfirmPurchase = "confirm_purchase"
	sagaBuyToken        = "buy_token"
)

// FatalError is an outcome that must not be retried automatically: the two
// ledgers are (or may be) inconsistent in a way only an operator can
// resolve. It carries full context for the manual-reconciliation queue.
type FatalError struct {
	Saga     string
	EntityId string
	Step     string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s saga for %s failed at step %s: %v", e.Saga, e.EntityId, e.Step, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error is a surfaced fatal saga outcome.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

type retryabler interface {
	Retryable() bool
}

// isRetryable classifies processor errors by their own Retryable hint.
// Errors without a hint default to retryable: within a bounded attempt
// budget, retrying an idempotency-guarded step is always safe, and the
// exhausted budget surfaces persistent failures anyway.
func isRetryable(err error) bool {
	var r retryabler
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
