package marketplace

import "errors"

// Failure taxonomy for marketplace operations. Callers are expected to match
// with errors.Is; detail is carried in the wrapping message. All failures
// abort the whole call with no state change.
var (
	// ErrUnauthorized flags a caller that is not the seller, buyer or owner
	// the operation requires.
	ErrUnauthorized = errors.New("marketplace: unauthorized")
	// ErrState flags an operation that is invalid for the current listing or
	// order status, e.g. "active listing exists" or "too early to refund".
	ErrState = errors.New("marketplace: invalid state")
	// ErrValidation flags malformed inputs: non-positive price, escrow amount
	// mismatch, out-of-range challenge, zero addresses.
	ErrValidation = errors.New("marketplace: validation failed")
	// ErrNotFound flags an unknown artifact, listing or order.
	ErrNotFound = errors.New("marketplace: not found")
	// ErrProofInvalid flags a settlement proof the verifier rejected.
	ErrProofInvalid = errors.New("marketplace: proof rejected")
)
