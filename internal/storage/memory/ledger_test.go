package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"sai-swap/internal/domain"
	"sai-swap/internal/storage"
)

func key(b byte) domain.PublicKey {
	var pk domain.PublicKey
	pk[0] = b
	pk[31] = b
	return pk
}

// seedLedger creates a mint and two accounts, funding the first with amount.
func seedLedger(t *testing.T, l *Ledger, amount uint64) (mint, a, b domain.PublicKey) {
	t.Helper()

	mint, a, b = key(1), key(2), key(3)
	err := l.Update(context.Background(), func(tx storage.LedgerTx) error {
		if err := tx.InsertMint(context.Background(), &domain.Mint{Address: mint, Decimals: 6}); err != nil {
			return err
		}
		if err := tx.InsertTokenAccount(context.Background(), &domain.TokenAccount{Address: a, Mint: mint, Owner: key(9)}); err != nil {
			return err
		}
		if err := tx.InsertTokenAccount(context.Background(), &domain.TokenAccount{Address: b, Mint: mint, Owner: key(8)}); err != nil {
			return err
		}
		return tx.MintTo(context.Background(), mint, a, amount)
	})
	if err != nil {
		t.Fatalf("seed ledger failed: %v", err)
	}
	return mint, a, b
}

func balance(t *testing.T, l *Ledger, addr domain.PublicKey) uint64 {
	t.Helper()

	var amount uint64
	err := l.View(context.Background(), func(r storage.LedgerReader) error {
		acct, err := r.GetTokenAccount(context.Background(), addr)
		if err != nil {
			return err
		}
		amount = acct.Amount
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	return amount
}

func TestLedger_TransferCommits(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	mint, a, b := seedLedger(t, l, 1000)

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.Transfer(ctx, a, b, 15)
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	if got := balance(t, l, a); got != 985 {
		t.Errorf("source balance: got %d, want 985", got)
	}
	if got := balance(t, l, b); got != 15 {
		t.Errorf("dest balance: got %d, want 15", got)
	}

	_ = l.View(ctx, func(r storage.LedgerReader) error {
		m, err := r.GetMint(ctx, mint)
		if err != nil {
			t.Fatalf("GetMint failed: %v", err)
		}
		if m.Supply != 1000 {
			t.Errorf("supply: got %d, want 1000", m.Supply)
		}
		return nil
	})
}

func TestLedger_RollbackOnError(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	_, a, b := seedLedger(t, l, 100)

	boom := errors.New("second leg failed")
	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		if err := tx.Transfer(ctx, a, b, 40); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	if got := balance(t, l, a); got != 100 {
		t.Errorf("source balance after rollback: got %d, want 100", got)
	}
	if got := balance(t, l, b); got != 0 {
		t.Errorf("dest balance after rollback: got %d, want 0", got)
	}
}

func TestLedger_StagedWritesVisibleInsideTx(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	_, a, b := seedLedger(t, l, 100)

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		if err := tx.Transfer(ctx, a, b, 60); err != nil {
			return err
		}
		// Second transfer must see the staged balance of 40.
		return tx.Transfer(ctx, a, b, 60)
	})
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	if got := balance(t, l, a); got != 100 {
		t.Errorf("source balance: got %d, want 100", got)
	}
}

func TestLedger_TransferErrors(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	_, a, b := seedLedger(t, l, 10)

	other := key(4)
	otherAcct := key(5)
	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		if err := tx.InsertMint(ctx, &domain.Mint{Address: other}); err != nil {
			return err
		}
		return tx.InsertTokenAccount(ctx, &domain.TokenAccount{Address: otherAcct, Mint: other})
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	tests := []struct {
		name    string
		from    domain.PublicKey
		to      domain.PublicKey
		amount  uint64
		wantErr error
	}{
		{"insufficient", a, b, 11, storage.ErrInsufficientBalance},
		{"mint mismatch", a, otherAcct, 1, storage.ErrMintMismatch},
		{"missing source", key(77), b, 1, storage.ErrNotFound},
		{"missing dest", a, key(78), 1, storage.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := l.Update(ctx, func(tx storage.LedgerTx) error {
				return tx.Transfer(ctx, tt.from, tt.to, tt.amount)
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLedger_MintToOverflow(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	mint, a, _ := seedLedger(t, l, math.MaxUint64)

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.MintTo(ctx, mint, a, 1)
	})
	if !errors.Is(err, storage.ErrOverflow) {
		t.Errorf("Expected ErrOverflow, got %v", err)
	}
}

func TestLedger_DuplicateInserts(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	mint, a, _ := seedLedger(t, l, 0)

	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.InsertMint(ctx, &domain.Mint{Address: mint})
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for mint, got %v", err)
	}

	err = l.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.InsertTokenAccount(ctx, &domain.TokenAccount{Address: a, Mint: mint})
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for account, got %v", err)
	}

	state := &domain.State{Key: key(20), Variant: domain.VariantSingleAsset, Owner: key(9)}
	if err := l.Update(ctx, func(tx storage.LedgerTx) error { return tx.InsertState(ctx, state) }); err != nil {
		t.Fatalf("InsertState failed: %v", err)
	}
	err = l.Update(ctx, func(tx storage.LedgerTx) error { return tx.InsertState(ctx, state) })
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for state, got %v", err)
	}
}

func TestLedger_StateIsCopied(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	state := &domain.State{
		Key:     key(20),
		Variant: domain.VariantSingleAsset,
		Owner:   key(9),
		Price:   15,
		Vaults:  []domain.VaultRef{{Asset: domain.AssetToken, Address: key(21)}},
	}
	if err := l.Update(ctx, func(tx storage.LedgerTx) error { return tx.InsertState(ctx, state) }); err != nil {
		t.Fatalf("InsertState failed: %v", err)
	}

	state.Price = 99
	state.Vaults[0].Address = key(22)

	_ = l.View(ctx, func(r storage.LedgerReader) error {
		got, err := r.GetState(ctx, key(20))
		if err != nil {
			t.Fatalf("GetState failed: %v", err)
		}
		if got.Price != 15 {
			t.Errorf("Price mutated through caller copy: %d", got.Price)
		}
		if got.Vaults[0].Address != key(21) {
			t.Errorf("Vault mutated through caller copy")
		}
		if got.CreatedAt == 0 || got.UpdatedAt == 0 {
			t.Errorf("timestamps not set")
		}
		return nil
	})
}

func TestLedger_CanceledContext(t *testing.T) {
	l := NewLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := l.Update(ctx, func(tx storage.LedgerTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Errorf("callback ran on canceled context")
	}
}
