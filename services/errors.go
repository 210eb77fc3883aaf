package services

import "errors"

// Error taxonomy for the order/escrow lifecycle. Local failures (validation,
// stock) abort before any external call; ledger failures are surfaced to the
// caller and never retried automatically.
var (
	// ErrValidation indicates bad input, rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock indicates a reservation could not be taken.
	// No ledger call is attempted once this is raised.
	ErrInsufficientStock = errors.New("not enough stock available")

	// ErrLedgerUnavailable indicates no ledger connection is configured or
	// the node could not be reached.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrTransactionRejected indicates the ledger transaction failed to send
	// or reverted on-chain. Funds may or may not have moved; the wrapped
	// message carries the transaction hash when one exists.
	ErrTransactionRejected = errors.New("ledger transaction rejected")

	// ErrEventNotFound indicates a deposit was mined but its receipt carried
	// no decodable OrderPlaced log. The deposit cannot be tied to an escrow
	// entry and needs manual reconciliation.
	ErrEventNotFound = errors.New("order event not found in receipt")

	// ErrOrderNotFound indicates the escrow contract does not know the
	// given on-chain order identifier.
	ErrOrderNotFound = errors.New("order not found on ledger")

	// ErrMissingLedgerReference indicates an order row has no on-chain
	// order identifier and can never be settled on-chain. Permanent, as
	// opposed to transient ledger failures.
	ErrMissingLedgerReference = errors.New("order has no on-chain reference")

	// ErrOracleUnavailable indicates the price feed could not produce a
	// usable rate.
	ErrOracleUnavailable = errors.New("price oracle unavailable")

	// ErrOrderFinal indicates a mutation was attempted on an order already
	// in a terminal state (Delivered or Cancelled).
	ErrOrderFinal = errors.New("order is in a terminal state")

	// ErrDisputeNotFound indicates an unknown dispute ticket ID.
	ErrDisputeNotFound = errors.New("dispute not found")
)
