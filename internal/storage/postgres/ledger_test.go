package postgres

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sai-swap/internal/domain"
	"sai-swap/internal/storage"
)

func key(b byte) domain.PublicKey {
	var k domain.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

var (
	mintA     = key(1)
	mintB     = key(2)
	authority = key(3)
	holder    = key(4)
	acctA1    = key(10)
	acctA2    = key(11)
	acctB1    = key(12)
)

// seedLedger creates two mints and three accounts, funding acctA1 with 100 units.
func seedLedger(t *testing.T, ctx context.Context, l *Ledger) {
	t.Helper()

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		for _, m := range []domain.PublicKey{mintA, mintB} {
			if err := tx.InsertMint(ctx, &domain.Mint{Address: m, Decimals: 6, Authority: authority}); err != nil {
				return err
			}
		}
		for addr, mint := range map[domain.PublicKey]domain.PublicKey{acctA1: mintA, acctA2: mintA, acctB1: mintB} {
			if err := tx.InsertTokenAccount(ctx, &domain.TokenAccount{Address: addr, Mint: mint, Owner: holder}); err != nil {
				return err
			}
		}
		return tx.MintTo(ctx, mintA, acctA1, 100)
	})
	require.NoError(t, err)
}

func balance(t *testing.T, ctx context.Context, l *Ledger, addr domain.PublicKey) uint64 {
	t.Helper()

	var amount uint64
	err := l.View(ctx, func(r storage.LedgerReader) error {
		acct, err := r.GetTokenAccount(ctx, addr)
		if err != nil {
			return err
		}
		amount = acct.Amount
		return nil
	})
	require.NoError(t, err)
	return amount
}

func testState(k domain.PublicKey) *domain.State {
	return &domain.State{
		Key:           k,
		Variant:       domain.VariantSingleAsset,
		Owner:         holder,
		Price:         15,
		ReversePrice:  10,
		ProceedsMint:  mintA,
		ProceedsVault: acctA2,
		ProceedsBump:  254,
		Vaults:        []domain.VaultRef{{Asset: domain.AssetToken, Mint: mintB, Address: acctB1, Bump: 255}},
	}
}

func TestLedger_MintAndTransfer(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	seedLedger(t, ctx, l)

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.Transfer(ctx, acctA1, acctA2, 40)
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(60), balance(t, ctx, l, acctA1))
	assert.Equal(t, uint64(40), balance(t, ctx, l, acctA2))

	err = l.View(ctx, func(r storage.LedgerReader) error {
		m, err := r.GetMint(ctx, mintA)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), m.Supply)
		assert.Equal(t, authority, m.Authority)
		assert.Equal(t, uint8(6), m.Decimals)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_RollbackOnError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	seedLedger(t, ctx, l)

	boom := errors.New("boom")
	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		if err := tx.Transfer(ctx, acctA1, acctA2, 30); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, uint64(100), balance(t, ctx, l, acctA1))
	assert.Zero(t, balance(t, ctx, l, acctA2))
}

func TestLedger_TransferErrors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	seedLedger(t, ctx, l)

	tests := []struct {
		name    string
		from    domain.PublicKey
		to      domain.PublicKey
		amount  uint64
		wantErr error
	}{
		{"insufficient balance", acctA1, acctA2, 101, storage.ErrInsufficientBalance},
		{"mint mismatch", acctA1, acctB1, 1, storage.ErrMintMismatch},
		{"missing source", key(99), acctA2, 1, storage.ErrNotFound},
		{"missing destination", acctA1, key(99), 1, storage.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Update(ctx, func(tx storage.LedgerTx) error {
				return tx.Transfer(ctx, tt.from, tt.to, tt.amount)
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, uint64(100), balance(t, ctx, l, acctA1))
}

func TestLedger_AmountBeyondColumnRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	seedLedger(t, ctx, l)

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.MintTo(ctx, mintA, acctA1, math.MaxInt64)
	})
	assert.ErrorIs(t, err, storage.ErrOverflow)
	assert.Equal(t, uint64(100), balance(t, ctx, l, acctA1))
}

func TestLedger_StateLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	seedLedger(t, ctx, l)

	st := testState(key(50))

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.InsertState(ctx, st)
	})
	require.NoError(t, err)

	err = l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.InsertState(ctx, st)
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = l.Update(ctx, func(tx storage.LedgerTx) error {
		got, err := tx.GetState(ctx, st.Key)
		if err != nil {
			return err
		}
		got.Active = true
		got.Price = 20
		return tx.UpdateState(ctx, got)
	})
	require.NoError(t, err)

	err = l.View(ctx, func(r storage.LedgerReader) error {
		got, err := r.GetState(ctx, st.Key)
		require.NoError(t, err)
		assert.True(t, got.Active)
		assert.Equal(t, uint64(20), got.Price)
		assert.Equal(t, uint64(10), got.ReversePrice)
		assert.Equal(t, st.Vaults, got.Vaults)
		assert.Equal(t, st.Owner, got.Owner)
		assert.NotZero(t, got.CreatedAt)
		assert.GreaterOrEqual(t, got.UpdatedAt, got.CreatedAt)
		return nil
	})
	require.NoError(t, err)

	err = l.View(ctx, func(r storage.LedgerReader) error {
		_, err := r.GetState(ctx, key(51))
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_ConcurrentTransfersSerialize(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	seedLedger(t, ctx, l)

	// 150 single-unit transfers race for 100 units.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Update(ctx, func(tx storage.LedgerTx) error {
				return tx.Transfer(ctx, acctA1, acctA2, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, storage.ErrInsufficientBalance) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, ok)
	assert.Equal(t, 50, fail)
	assert.Zero(t, balance(t, ctx, l, acctA1))
	assert.Equal(t, uint64(100), balance(t, ctx, l, acctA2))
}
