package postgres

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"sai-swap/internal/codec"
	"sai-swap/internal/domain"
	"sai-swap/internal/observability"
	"sai-swap/internal/storage"
)

// Ledger implements storage.Ledger using PostgreSQL.
// Each Update is one transaction; rows read inside it are locked FOR UPDATE
// so concurrent instructions on the same accounts serialize.
type Ledger struct {
	pool    *Pool
	metrics *observability.Metrics
	now     func() time.Time
}

// NewLedger creates a new Ledger. metrics may be nil.
func NewLedger(pool *Pool, metrics *observability.Metrics) *Ledger {
	return &Ledger{pool: pool, metrics: metrics, now: time.Now}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Update runs fn in a single transaction. Errors returned by fn roll back
// the transaction and are passed through unchanged.
func (l *Ledger) Update(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	start := time.Now()
	var dbErr error
	defer func() { l.metrics.RecordDBQuery("postgres", "update", time.Since(start), dbErr) }()

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		dbErr = err
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{ledgerView: ledgerView{q: tx, lock: true}, now: l.now}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		dbErr = err
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// View runs fn inside a read-only repeatable-read transaction.
func (l *Ledger) View(ctx context.Context, fn func(r storage.LedgerReader) error) error {
	start := time.Now()
	var dbErr error
	defer func() { l.metrics.RecordDBQuery("postgres", "view", time.Since(start), dbErr) }()

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		dbErr = err
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerView{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		dbErr = err
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ledgerView reads through a transaction. With lock set, every row read is locked.
type ledgerView struct {
	q    pgx.Tx
	lock bool
}

func (v *ledgerView) suffix() string {
	if v.lock {
		return " FOR UPDATE"
	}
	return ""
}

// GetState retrieves a state record. Returns ErrNotFound if not exists.
func (v *ledgerView) GetState(ctx context.Context, key domain.PublicKey) (*domain.State, error) {
	query := `
		SELECT data, created_at, updated_at
		FROM swap_states
		WHERE state_key = $1
	` + v.suffix()

	var (
		data                 []byte
		createdAt, updatedAt int64
	)
	err := v.q.QueryRow(ctx, query, key.String()).Scan(&data, &createdAt, &updatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get state: %w", err)
	}

	st, err := codec.DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("get state %s: %w", key, err)
	}
	st.Key = key
	st.CreatedAt = createdAt
	st.UpdatedAt = updatedAt
	return st, nil
}

// GetTokenAccount retrieves a token account. Returns ErrNotFound if not exists.
func (v *ledgerView) GetTokenAccount(ctx context.Context, addr domain.PublicKey) (*domain.TokenAccount, error) {
	query := `
		SELECT address, mint, owner, amount, created_at
		FROM token_accounts
		WHERE address = $1
	` + v.suffix()

	acct, err := scanAccount(v.q.QueryRow(ctx, query, addr.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token account: %w", err)
	}
	return acct, nil
}

// GetMint retrieves a mint. Returns ErrNotFound if not exists.
func (v *ledgerView) GetMint(ctx context.Context, addr domain.PublicKey) (*domain.Mint, error) {
	query := `
		SELECT address, decimals, supply, authority, created_at
		FROM token_mints
		WHERE address = $1
	` + v.suffix()

	var (
		m                  domain.Mint
		address, authority string
		decimals           int16
		supply, createdAt  int64
	)
	err := v.q.QueryRow(ctx, query, addr.String()).Scan(&address, &decimals, &supply, &authority, &createdAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mint: %w", err)
	}

	if m.Address, err = domain.ParsePublicKey(address); err != nil {
		return nil, fmt.Errorf("get mint: %w", err)
	}
	if m.Authority, err = domain.ParsePublicKey(authority); err != nil {
		return nil, fmt.Errorf("get mint: %w", err)
	}
	m.Decimals = uint8(decimals)
	m.Supply = uint64(supply)
	m.CreatedAt = createdAt
	return &m, nil
}

// ledgerTx is the write side of one transaction.
type ledgerTx struct {
	ledgerView
	now func() time.Time
}

var _ storage.LedgerTx = (*ledgerTx)(nil)

// InsertState adds a state record. Returns ErrDuplicateKey if key exists.
func (tx *ledgerTx) InsertState(ctx context.Context, s *domain.State) error {
	if s == nil || s.Key.IsZero() {
		return storage.ErrInvalidInput
	}
	data, err := codec.EncodeState(s)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	price, reverse, err := statePrices(s)
	if err != nil {
		return err
	}

	createdAt := s.CreatedAt
	if createdAt == 0 {
		createdAt = tx.now().UnixMilli()
	}
	updatedAt := s.UpdatedAt
	if updatedAt == 0 {
		updatedAt = createdAt
	}

	query := `
		INSERT INTO swap_states (
			state_key, variant, owner, active, price, reverse_price,
			proceeds_mint, proceeds_vault, data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = tx.q.Exec(ctx, query,
		s.Key.String(),
		int16(s.Variant),
		s.Owner.String(),
		s.Active,
		price,
		reverse,
		s.ProceedsMint.String(),
		s.ProceedsVault.String(),
		data,
		createdAt,
		updatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert state: %w", err)
	}
	return nil
}

// UpdateState overwrites a state record. Returns ErrNotFound if not exists.
func (tx *ledgerTx) UpdateState(ctx context.Context, s *domain.State) error {
	if s == nil || s.Key.IsZero() {
		return storage.ErrInvalidInput
	}
	data, err := codec.EncodeState(s)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	price, reverse, err := statePrices(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE swap_states
		SET active = $2, price = $3, reverse_price = $4, data = $5, updated_at = $6
		WHERE state_key = $1
	`

	tag, err := tx.q.Exec(ctx, query, s.Key.String(), s.Active, price, reverse, data, tx.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// InsertTokenAccount adds a token account. Returns ErrDuplicateKey if address exists.
func (tx *ledgerTx) InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || a.Mint.IsZero() {
		return storage.ErrInvalidInput
	}
	amount, err := toInt8(a.Amount)
	if err != nil {
		return err
	}
	if _, err := tx.GetMint(ctx, a.Mint); err != nil {
		return err
	}

	createdAt := a.CreatedAt
	if createdAt == 0 {
		createdAt = tx.now().UnixMilli()
	}

	query := `
		INSERT INTO token_accounts (address, mint, owner, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = tx.q.Exec(ctx, query, a.Address.String(), a.Mint.String(), a.Owner.String(), amount, createdAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isMissingReferenceError(err) {
			return fmt.Errorf("mint %s: %w", a.Mint, storage.ErrNotFound)
		}
		return fmt.Errorf("insert token account: %w", err)
	}
	return nil
}

// InsertMint adds a mint. Returns ErrDuplicateKey if address exists.
func (tx *ledgerTx) InsertMint(ctx context.Context, m *domain.Mint) error {
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	supply, err := toInt8(m.Supply)
	if err != nil {
		return err
	}

	createdAt := m.CreatedAt
	if createdAt == 0 {
		createdAt = tx.now().UnixMilli()
	}

	query := `
		INSERT INTO token_mints (address, decimals, supply, authority, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = tx.q.Exec(ctx, query, m.Address.String(), int16(m.Decimals), supply, m.Authority.String(), createdAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mint: %w", err)
	}
	return nil
}

// Transfer moves amount between two accounts of the same mint.
// Rows not yet held by the transaction are locked in address order.
// Engine instructions lock the state row first, and that lock is what
// serializes concurrent swaps on one configuration.
func (tx *ledgerTx) Transfer(ctx context.Context, from, to domain.PublicKey, amount uint64) error {
	locked, err := tx.lockAccounts(ctx, from, to)
	if err != nil {
		return err
	}
	src, dst := locked[from], locked[to]
	if src.Mint != dst.Mint {
		return storage.ErrMintMismatch
	}

	// Validate both legs before writing either
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

	if err := tx.setAmount(ctx, from, newSrc); err != nil {
		return err
	}
	return tx.setAmount(ctx, to, newDst)
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
	supplyDB, err := toInt8(supply)
	if err != nil {
		return err
	}

	if _, err := tx.q.Exec(ctx, `UPDATE token_mints SET supply = $2 WHERE address = $1`, mint.String(), supplyDB); err != nil {
		return fmt.Errorf("update mint supply: %w", err)
	}
	return tx.setAmount(ctx, dest, balance)
}

// lockAccounts locks and returns the given accounts. Returns ErrNotFound if any is missing.
func (tx *ledgerTx) lockAccounts(ctx context.Context, addrs ...domain.PublicKey) (map[domain.PublicKey]*domain.TokenAccount, error) {
	keys := make([]string, 0, len(addrs))
	for _, a := range addrs {
		keys = append(keys, a.String())
	}
	sort.Strings(keys)

	query := `
		SELECT address, mint, owner, amount, created_at
		FROM token_accounts
		WHERE address = ANY($1)
		ORDER BY address
		FOR UPDATE
	`

	rows, err := tx.q.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("lock token accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.PublicKey]*domain.TokenAccount, len(addrs))
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token account: %w", err)
		}
		out[acct.Address] = acct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token accounts: %w", err)
	}

	for _, a := range addrs {
		if _, ok := out[a]; !ok {
			return nil, storage.ErrNotFound
		}
	}
	return out, nil
}

func (tx *ledgerTx) setAmount(ctx context.Context, addr domain.PublicKey, amount uint64) error {
	v, err := toInt8(amount)
	if err != nil {
		return err
	}
	if _, err := tx.q.Exec(ctx, `UPDATE token_accounts SET amount = $2 WHERE address = $1`, addr.String(), v); err != nil {
		return fmt.Errorf("update token account %s: %w", addr, err)
	}
	return nil
}

// scanAccount scans one token_accounts row.
func scanAccount(row pgx.Row) (*domain.TokenAccount, error) {
	var (
		acct                 domain.TokenAccount
		address, mint, owner string
		amount, createdAt    int64
	)
	if err := row.Scan(&address, &mint, &owner, &amount, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if acct.Address, err = domain.ParsePublicKey(address); err != nil {
		return nil, err
	}
	if acct.Mint, err = domain.ParsePublicKey(mint); err != nil {
		return nil, err
	}
	if acct.Owner, err = domain.ParsePublicKey(owner); err != nil {
		return nil, err
	}
	acct.Amount = uint64(amount)
	acct.CreatedAt = createdAt
	return &acct, nil
}

// toInt8 converts an amount to the BIGINT column range.
func toInt8(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d exceeds column range", storage.ErrOverflow, v)
	}
	return int64(v), nil
}

func statePrices(s *domain.State) (int64, int64, error) {
	price, err := toInt8(s.Price)
	if err != nil {
		return 0, 0, err
	}
	reverse, err := toInt8(s.ReversePrice)
	if err != nil {
		return 0, 0, err
	}
	return price, reverse, nil
}
