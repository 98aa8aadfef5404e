package limitorder

import "errors"

var (
	// ErrOrderNotFound indicates the requested order id was never allocated.
	ErrOrderNotFound = errors.New("limitorder: order not found")
	// ErrInsufficientDeposit indicates the escrowed amount does not cover the
	// minimum order size plus the execution fee.
	ErrInsufficientDeposit = errors.New("limitorder: insufficient deposit")
	// ErrInvalidExpiration indicates the expiration timestamp is not in the future.
	ErrInvalidExpiration = errors.New("limitorder: invalid expiration")
	// ErrNotOwner indicates the caller attempting a cancel is not the order owner.
	ErrNotOwner = errors.New("limitorder: caller is not order owner")
	// ErrNotAuthorized indicates the caller may not execute orders.
	ErrNotAuthorized = errors.New("limitorder: caller not authorized to execute")
	// ErrOrderNotActive indicates the order was already cancelled or settled.
	ErrOrderNotActive = errors.New("limitorder: order is not active")
	// ErrOrderExecuted indicates the order already settled through the router.
	ErrOrderExecuted = errors.New("limitorder: order already executed")
	// ErrOrderExpired indicates the execution deadline has passed.
	ErrOrderExpired = errors.New("limitorder: order has expired")
	// ErrPriceBelowTrigger indicates the attested price does not meet the trigger.
	ErrPriceBelowTrigger = errors.New("limitorder: price below trigger")
	// ErrExecutionReverted wraps a router call failure. The order stays active.
	ErrExecutionReverted = errors.New("limitorder: swap execution reverted")
)
