package errors

import "errors"

var (
	// ErrInvalidTimeRange indicates a cancellation or period boundary that
	// would precede an earlier anchor date. Always rejected, never corrected.
	ErrInvalidTimeRange = errors.New("requested date precedes the subscription's earliest billing period")

	// ErrSignatureVerificationFailed indicates a webhook payload that could
	// not be verified under either signing secret.
	ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")

	// ErrPaymentRejected indicates the processor synchronously declined a charge.
	ErrPaymentRejected = errors.New("payment rejected by processor")

	// ErrNotFound indicates a referenced subscription, session, or billing run
	// is absent or expired.
	ErrNotFound = errors.New("record not found")

	// ErrInvariantViolation indicates an attempted state change that the data
	// model forbids, e.g. closing an already-closed billing period. It points
	// at a concurrency bug and is never silently ignored.
	ErrInvariantViolation = errors.New("billing invariant violated")

	// ErrSubscriptionNotFound indicates that the specified subscription was not found
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSessionExpired indicates a purchase session past its TTL
	ErrSessionExpired = errors.New("purchase session expired")
)
