package swap

import (
	"errors"
	"fmt"

	"sai-swap/internal/storage"
)

// Engine rejections. Every rejection leaves the ledger unchanged.
var (
	// ErrAlreadyInitialized is returned when a state (or one of its vaults) already exists.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrUnauthorized is returned when the signer is not allowed to perform the instruction.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidStateTransition is returned for redundant activation changes.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrAlreadyActive is returned by Activate on an active state.
	ErrAlreadyActive = fmt.Errorf("%w: already active", ErrInvalidStateTransition)

	// ErrAlreadyDeactivated is returned by Deactivate on an inactive state.
	ErrAlreadyDeactivated = fmt.Errorf("%w: already deactivated", ErrInvalidStateTransition)

	// ErrInactive is returned by Swap while the state is not active.
	ErrInactive = errors.New("swap is not active")

	// ErrInsufficientFunds is returned when a transfer leg exceeds its source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidPrice is returned for a zero price on a single-asset configuration.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrInvalidAccount is returned when a supplied account does not match the configuration.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrUnknownAsset is returned when the asset selector is not part of the configuration.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrStateNotFound is returned when the state record does not exist.
	ErrStateNotFound = errors.New("state not found")

	// ErrOverflow is returned when a credit would overflow a balance.
	ErrOverflow = errors.New("amount overflow")
)

// Error codes. Stable strings used by metrics and the API.
const (
	CodeOK                     = "ok"
	CodeAlreadyInitialized     = "AlreadyInitialized"
	CodeUnauthorized           = "Unauthorized"
	CodeAlreadyActive          = "AlreadyActive"
	CodeAlreadyDeactivated     = "AlreadyDeactivated"
	CodeInvalidStateTransition = "InvalidStateTransition"
	CodeInactive               = "Inactive"
	CodeInsufficientFunds      = "InsufficientFunds"
	CodeInvalidPrice           = "InvalidPrice"
	CodeInvalidAccount         = "InvalidAccount"
	CodeUnknownAsset           = "UnknownAsset"
	CodeStateNotFound          = "StateNotFound"
	CodeOverflow               = "Overflow"
	CodeInternal               = "Internal"
)

// Most specific first: ErrAlreadyActive must match before its parent.
var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInitialized, CodeAlreadyInitialized},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrAlreadyActive, CodeAlreadyActive},
	{ErrAlreadyDeactivated, CodeAlreadyDeactivated},
	{ErrInvalidStateTransition, CodeInvalidStateTransition},
	{ErrInactive, CodeInactive},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInvalidPrice, CodeInvalidPrice},
	{ErrInvalidAccount, CodeInvalidAccount},
	{ErrUnknownAsset, CodeUnknownAsset},
	{ErrStateNotFound, CodeStateNotFound},
	{ErrOverflow, CodeOverflow},
}

// Code classifies err into a stable error code. nil maps to CodeOK.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsRejection reports whether err is a deterministic engine rejection
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	code := Code(err)
	return code != CodeOK && code != CodeInternal
}

// translate maps storage errors raised inside a unit of work onto the taxonomy.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case IsRejection(err):
		return err
	case errors.Is(err, storage.ErrInsufficientBalance):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, what)
	case errors.Is(err, storage.ErrMintMismatch):
		return fmt.Errorf("%w: %s: mint mismatch", ErrInvalidAccount, what)
	case errors.Is(err, storage.ErrOverflow):
		return fmt.Errorf("%w: %s", ErrOverflow, what)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s: account not found", ErrInvalidAccount, what)
	case errors.Is(err, storage.ErrDuplicateKey):
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
