package domain

import "errors"

// Engine error taxonomy. Every user-visible failure wraps one of these;
// raw transport errors never escape the coordinator.
var (
	// ErrMalformedIdentifier: the opaque item id was not produced by the
	// identifier codec. Permanent, caller error.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrUnsupportedIntent: the search intent lacks a usable geographic
	// criterion. Permanent, caller error.
	ErrUnsupportedIntent = errors.New("unsupported intent")

	// ErrInvalidTransition: the requested event is not legal in the
	// transaction's current state. Permanent, ordering error.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrStateDivergence: the observed infra state cannot be reconciled
	// with the commerce state. The transaction is forced to FAILED;
	// never retried, never silently resolved.
	ErrStateDivergence = errors.New("state divergence")

	// ErrConcurrentModification: optimistic concurrency conflict; the
	// caller retries the whole operation from a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrTransportTimeout / ErrTransportUnavailable: transient infra
	// transport failures, retried with bounded backoff by the coordinator.
	ErrTransportTimeout     = errors.New("transport timeout")
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrPrematureBilling: billing requested before the transaction
	// reached COMPLETED. Permanent, programming/ordering error.
	ErrPrematureBilling = errors.New("premature billing")
)

// Transient reports whether an operation that failed with err may succeed
// on retry. StateDivergence and MalformedIdentifier are never transient.
func Transient(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrTransportTimeout) ||
		errors.Is(err, ErrTransportUnavailable)
}
