package engine

import "errors"

// Engine failure taxonomy. Validation errors are rejected before any state is
// read; precondition failures reflect current state and are surfaced verbatim;
// ErrConflict means the transaction lost a race and the call is safe to retry.
var (
	// ErrValidation wraps malformed-input failures (negative amount, empty
	// capture set, bad listing type, out-of-range duration).
	ErrValidation = errors.New("invalid request")

	ErrListingNotFound  = errors.New("listing not found")
	ErrListingNotActive = errors.New("listing is not active")
	ErrWrongListingType = errors.New("operation does not apply to this listing type")
	ErrListingHasBids   = errors.New("auction with live bids cannot be canceled")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoActiveBid       = errors.New("no active bid")

	ErrSelfPurchase = errors.New("cannot purchase your own listing")
	ErrOwnListing   = errors.New("cannot bid or offer on your own listing")

	ErrOfferNotFound   = errors.New("trade offer not found")
	ErrOfferNotPending = errors.New("trade offer is not pending")
	ErrNotSeller       = errors.New("caller is not the listing seller")
	ErrNotOfferer      = errors.New("caller is not the offerer")

	ErrCaptureDisabled = errors.New("capture is reserved by another listing or offer")
	ErrCaptureNotOwned = errors.New("capture not owned by caller")

	// ErrConflict marks a transaction that lost a serialization race.
	// Retrying re-validates against current state, so callers may retry
	// transparently.
	ErrConflict = errors.New("concurrent transaction conflict")
)
