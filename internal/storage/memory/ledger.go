package memory

import (
	"context"
	"sync"
	"time"

	"sai-swap/internal/domain"
	"sai-swap/internal/storage"
)

// Ledger is an in-memory implementation of storage.Ledger.
// Update calls are serialized; each one stages its writes and applies them
// only when the callback succeeds.
type Ledger struct {
	mu       sync.RWMutex
	states   map[domain.PublicKey]*domain.State
	accounts map[domain.PublicKey]*domain.TokenAccount
	mints    map[domain.PublicKey]*domain.Mint
	now      func() time.Time
}

// NewLedger creates a new in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		states:   make(map[domain.PublicKey]*domain.State),
		accounts: make(map[domain.PublicKey]*domain.TokenAccount),
		mints:    make(map[domain.PublicKey]*domain.Mint),
		now:      time.Now,
	}
}

// Update runs fn in a single all-or-nothing unit of work.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{
		ledgerView: ledgerView{l: l},
		states:     make(map[domain.PublicKey]*domain.State),
		accounts:   make(map[domain.PublicKey]*domain.TokenAccount),
		mints:      make(map[domain.PublicKey]*domain.Mint),
	}
	tx.ledgerView.tx = tx

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Commit staged writes
	for k, s := range tx.states {
		l.states[k] = s
	}
	for k, a := range tx.accounts {
		l.accounts[k] = a
	}
	for k, m := range tx.mints {
		l.mints[k] = m
	}
	return nil
}

// View runs fn against the committed state.
func (l *Ledger) View(ctx context.Context, fn func(r storage.LedgerReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return fn(&ledgerView{l: l})
}

var _ storage.Ledger = (*Ledger)(nil)

// ledgerView reads staged records first (when inside a tx), then committed ones.
// All returned records are copies.
type ledgerView struct {
	l  *Ledger
	tx *ledgerTx
}

func (v *ledgerView) GetState(_ context.Context, key domain.PublicKey) (*domain.State, error) {
	if v.tx != nil {
		if s, ok := v.tx.states[key]; ok {
			return s.Clone(), nil
		}
	}
	s, ok := v.l.states[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.Clone(), nil
}

func (v *ledgerView) GetTokenAccount(_ context.Context, addr domain.PublicKey) (*domain.TokenAccount, error) {
	if v.tx != nil {
		if a, ok := v.tx.accounts[addr]; ok {
			accountCopy := *a
			return &accountCopy, nil
		}
	}
	a, ok := v.l.accounts[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	accountCopy := *a
	return &accountCopy, nil
}

func (v *ledgerView) GetMint(_ context.Context, addr domain.PublicKey) (*domain.Mint, error) {
	if v.tx != nil {
		if m, ok := v.tx.mints[addr]; ok {
			mintCopy := *m
			return &mintCopy, nil
		}
	}
	m, ok := v.l.mints[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	mintCopy := *m
	return &mintCopy, nil
}

// ledgerTx stages writes for one Update call.
type ledgerTx struct {
	ledgerView
	states   map[domain.PublicKey]*domain.State
	accounts map[domain.PublicKey]*domain.TokenAccount
	mints    map[domain.PublicKey]*domain.Mint
}

func (tx *ledgerTx) stateExists(key domain.PublicKey) bool {
	if _, ok := tx.states[key]; ok {
		return true
	}
	_, ok := tx.l.states[key]
	return ok
}

func (tx *ledgerTx) accountExists(addr domain.PublicKey) bool {
	if _, ok := tx.accounts[addr]; ok {
		return true
	}
	_, ok := tx.l.accounts[addr]
	return ok
}

func (tx *ledgerTx) mintExists(addr domain.PublicKey) bool {
	if _, ok := tx.mints[addr]; ok {
		return true
	}
	_, ok := tx.l.mints[addr]
	return ok
}

// InsertState adds a state record. Returns ErrDuplicateKey if key exists.
func (tx *ledgerTx) InsertState(_ context.Context, s *domain.State) error {
	if s == nil || s.Key.IsZero() {
		return storage.ErrInvalidInput
	}
	if tx.stateExists(s.Key) {
		return storage.ErrDuplicateKey
	}

	c := s.Clone()
	if c.CreatedAt == 0 {
		c.CreatedAt = tx.l.now().UnixMilli()
	}
	if c.UpdatedAt == 0 {
		c.UpdatedAt = c.CreatedAt
	}
	tx.states[s.Key] = c
	return nil
}

// UpdateState overwrites a state record. Returns ErrNotFound if not exists.
func (tx *ledgerTx) UpdateState(_ context.Context, s *domain.State) error {
	if s == nil || s.Key.IsZero() {
		return storage.ErrInvalidInput
	}
	if !tx.stateExists(s.Key) {
		return storage.ErrNotFound
	}

	c := s.Clone()
	c.UpdatedAt = tx.l.now().UnixMilli()
	tx.states[s.Key] = c
	return nil
}

// InsertTokenAccount adds a token account. Returns ErrDuplicateKey if address exists.
func (tx *ledgerTx) InsertTokenAccount(_ context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || a.Mint.IsZero() {
		return storage.ErrInvalidInput
	}
	if tx.accountExists(a.Address) {
		return storage.ErrDuplicateKey
	}
	if !tx.mintExists(a.Mint) {
		return storage.ErrNotFound
	}

	accountCopy := *a
	if accountCopy.CreatedAt == 0 {
		accountCopy.CreatedAt = tx.l.now().UnixMilli()
	}
	tx.accounts[a.Address] = &accountCopy
	return nil
}

// InsertMint adds a mint. Returns ErrDuplicateKey if address exists.
func (tx *ledgerTx) InsertMint(_ context.Context, m *domain.Mint) error {
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if tx.mintExists(m.Address) {
		return storage.ErrDuplicateKey
	}

	mintCopy := *m
	if mintCopy.CreatedAt == 0 {
		mintCopy.CreatedAt = tx.l.now().UnixMilli()
	}
	tx.mints[m.Address] = &mintCopy
	return nil
}

// Transfer moves amount between two accounts of the same mint.
func (tx *ledgerTx) Transfer(ctx context.Context, from, to domain.PublicKey, amount uint64) error {
	src, err := tx.GetTokenAccount(ctx, from)
	if err != nil {
		return err
	}
	dst, err := tx.GetTokenAccount(ctx, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return storage.ErrMintMismatch
	}

	// First pass: validate both legs
	newSrc, err := storage.CheckedSub(src.Amount, amount)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	newDst, err := storage.CheckedAdd(dst.Amount, amount)
	if err != nil {
		return err
	}

	// Second pass: stage
	src.Amount = newSrc
	dst.Amount = newDst
	tx.accounts[from] = src
	tx.accounts[to] = dst
	return nil
}

// MintTo creates amount new units of mint into dest.
func (tx *ledgerTx) MintTo(ctx context.Context, mint, dest domain.PublicKey, amount uint64) error {
	m, err := tx.GetMint(ctx, mint)
	if err != nil {
		return err
	}
	acct, err := tx.GetTokenAccount(ctx, dest)
	if err != nil {
		return err
	}
	if acct.Mint != mint {
		return storage.ErrMintMismatch
	}

	supply, err := storage.CheckedAdd(m.Supply, amount)
	if err != nil {
		return err
	}
	balance, err := storage.CheckedAdd(acct.Amount, amount)
	if err != nil {
		return err
	}

	m.Supply = supply
	acct.Amount = balance
	tx.mints[mint] = m
	tx.accounts[dest] = acct
	return nil
}

var _ storage.LedgerTx = (*ledgerTx)(nil)
