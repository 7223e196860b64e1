package storage

import (
	"context"

	"sai-swap/internal/domain"
)

// LedgerReader reads states, token accounts and mints.
type LedgerReader interface {
	// GetState retrieves a state record. Returns ErrNotFound if not exists.
	GetState(ctx context.Context, key domain.PublicKey) (*domain.State, error)

	// GetTokenAccount retrieves a token account. Returns ErrNotFound if not exists.
	GetTokenAccount(ctx context.Context, addr domain.PublicKey) (*domain.TokenAccount, error)

	// GetMint retrieves a mint. Returns ErrNotFound if not exists.
	GetMint(ctx context.Context, addr domain.PublicKey) (*domain.Mint, error)
}

// LedgerTx is the write side of one unit of work.
// Nothing written through a LedgerTx is visible outside it until the
// surrounding Ledger.Update returns nil.
type LedgerTx interface {
	LedgerReader

	// InsertState adds a state record. Returns ErrDuplicateKey if key exists.
	InsertState(ctx context.Context, s *domain.State) error

	// UpdateState overwrites a state record. Returns ErrNotFound if not exists.
	UpdateState(ctx context.Context, s *domain.State) error

	// InsertTokenAccount adds a token account. Returns ErrDuplicateKey if address exists.
	InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error

	// InsertMint adds a mint. Returns ErrDuplicateKey if address exists.
	InsertMint(ctx context.Context, m *domain.Mint) error

	// Transfer moves amount between two accounts of the same mint.
	// Returns ErrInsufficientBalance, ErrMintMismatch, ErrOverflow or ErrNotFound.
	Transfer(ctx context.Context, from, to domain.PublicKey, amount uint64) error

	// MintTo creates amount new units of mint into dest.
	MintTo(ctx context.Context, mint, dest domain.PublicKey, amount uint64) error
}

// Ledger provides atomic units of work over states and balances.
type Ledger interface {
	// Update runs fn in a single all-or-nothing unit of work.
	// If fn returns an error, none of its writes are applied.
	Update(ctx context.Context, fn func(tx LedgerTx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(r LedgerReader) error) error
}

// EventStore provides access to the append-only instruction journal.
type EventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.Event) error

	// GetByStateKey retrieves all events for a state, ordered by timestamp ASC.
	GetByStateKey(ctx context.Context, stateKey domain.PublicKey) ([]*domain.Event, error)

	// GetByTimeRange retrieves events for a state within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, stateKey domain.PublicKey, start, end int64) ([]*domain.Event, error)
}
