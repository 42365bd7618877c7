package entity

import "github.com/pkg/errors"

// Failure taxonomy shared across the engine. Callers distinguish classes
// with errors.Is; packages wrap these with operation context.
var (
	// ErrZeroAmount rejects zero-value transfers, deposits and allocations.
	ErrZeroAmount = errors.New("amount must be greater than zero")
	// ErrZeroAddress rejects the zero address anywhere an identifier is required.
	ErrZeroAddress = errors.New("zero address")
	// ErrNotOwner guards privileged operations.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrInsufficientBalance rejects transfers and burns exceeding the holder's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrReentrantCall rejects a nested call that reaches a guarded operation
	// while another guarded operation on the same instance is in progress.
	ErrReentrantCall = errors.New("reentrant call")
)
