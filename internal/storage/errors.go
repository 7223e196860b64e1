package storage

import "errors"

// Storage errors shared by all ledger and journal implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to create a record
	// whose key already exists. Accounts and states are created once.
	ErrDuplicateKey = errors.New("duplicate key: record already exists")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance is returned when a transfer or burn exceeds the source balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrMintMismatch is returned when a transfer moves funds between accounts of different mints.
	ErrMintMismatch = errors.New("mint mismatch")

	// ErrOverflow is returned when a credit would overflow the destination balance or mint supply.
	ErrOverflow = errors.New("amount overflow")
)
