// Package provider holds what the recharge and payment gateway clients share:
// the outcome classification and the error taxonomy callers switch on.
// Clients never touch wallets; they only classify.
package provider

import "errors"

var (
	// ErrProviderTransient covers network failures, timeouts and 5xx responses
	// that survived retries. The remote side may still have acted.
	ErrProviderTransient = errors.New("provider temporarily unavailable")
	// ErrProviderRejected means the provider explicitly refused the request.
	ErrProviderRejected = errors.New("provider rejected request")
	ErrBillNotAvailable = errors.New("bill not available")
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// IdempotencyHeader carries the request id generated before calling out, so
// the remote side can deduplicate retries.
const IdempotencyHeader = "Idempotency-Key"
