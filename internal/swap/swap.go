package swap

import (
	"context"
	"fmt"
	"time"

	"sai-swap/internal/domain"
	"sai-swap/internal/storage"
)

// SwapParams names the accounts of one swap.
type SwapParams struct {
	State           domain.PublicKey
	Buyer           domain.PublicKey // signer
	Asset           domain.Asset     // ignored for single-asset configurations
	BuyerSettlement domain.PublicKey // pays Price in the proceeds mint
	BuyerTarget     domain.PublicKey // receives SwapUnits of the selected asset
}

// Swap charges the buyer the configured price into the proceeds vault and
// hands over one unit of the selected asset from its vault. Both legs commit
// together or not at all.
func (e *Engine) Swap(ctx context.Context, p SwapParams) (receipt *domain.Receipt, err error) {
	start := time.Now()
	defer func() { e.observe(InstrSwap, p.State, start, err) }()

	if err := requireSigner(p.Buyer); err != nil {
		return nil, err
	}

	var price uint64
	err = e.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := loadState(ctx, tx, p.State)
		if err != nil {
			return err
		}
		if !st.Active {
			return fmt.Errorf("%w: %s", ErrInactive, st.Key)
		}

		asset := p.Asset
		if st.Variant == domain.VariantSingleAsset {
			asset = domain.AssetToken
		}
		vault, ok := st.Vault(asset)
		if !ok {
			return fmt.Errorf("%w: %s in %s configuration", ErrUnknownAsset, asset, st.Variant)
		}

		payer, err := loadAccount(ctx, tx, p.BuyerSettlement, "buyer settlement account")
		if err != nil {
			return err
		}
		if err := requireAuthority(payer, p.Buyer); err != nil {
			return err
		}
		if payer.Mint != st.ProceedsMint {
			return fmt.Errorf("%w: settlement account mint %s, want %s", ErrInvalidAccount, payer.Mint, st.ProceedsMint)
		}

		target, err := loadAccount(ctx, tx, p.BuyerTarget, "buyer target account")
		if err != nil {
			return err
		}
		if target.Mint != vault.Mint {
			return fmt.Errorf("%w: target account mint %s, want %s", ErrInvalidAccount, target.Mint, vault.Mint)
		}
		if isVault(st, target.Address) {
			return fmt.Errorf("%w: target account is a vault", ErrInvalidAccount)
		}

		if payer.Amount < st.Price {
			return fmt.Errorf("%w: buyer balance %d below price %d", ErrInsufficientFunds, payer.Amount, st.Price)
		}

		vaultAcct, err := loadAccount(ctx, tx, vault.Address, vault.Asset.Label())
		if err != nil {
			return err
		}
		if vaultAcct.Amount < SwapUnits {
			return fmt.Errorf("%w: %s vault is empty", ErrInsufficientFunds, vault.Asset)
		}

		if err := tx.Transfer(ctx, payer.Address, st.ProceedsVault, st.Price); err != nil {
			return translate(err, "pay proceeds")
		}
		if err := tx.Transfer(ctx, vault.Address, target.Address, SwapUnits); err != nil {
			return translate(err, "release "+vault.Asset.String())
		}

		price = st.Price
		receipt, err = swapReceipt(ctx, tx, st, vault, payer.Address, target.Address)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordSwap(receipt.Asset.String(), receipt.Paid)
	e.emit(ctx, &domain.Event{
		StateKey: p.State,
		Kind:     domain.EventSwapped,
		Actor:    p.Buyer,
		Asset:    receipt.Asset.String(),
		Amount:   receipt.Paid,
		Price:    price,
	})
	return receipt, nil
}

func swapReceipt(ctx context.Context, r storage.LedgerReader, st *domain.State, vault domain.VaultRef, payer, target domain.PublicKey) (*domain.Receipt, error) {
	balances, err := readBalances(ctx, r, payer, vault.Address, st.ProceedsVault, target)
	if err != nil {
		return nil, err
	}
	return &domain.Receipt{
		StateKey:      st.Key,
		Asset:         vault.Asset,
		Paid:          st.Price,
		Received:      SwapUnits,
		SourceBalance: balances[0],
		VaultBalance:  balances[1],
		ProceedsTotal: balances[2],
		DestBalance:   balances[3],
	}, nil
}

// WithdrawParams names the accounts of a proceeds withdrawal.
type WithdrawParams struct {
	State       domain.PublicKey
	Signer      domain.PublicKey
	Destination domain.PublicKey
}

// WithdrawProceeds moves the entire proceeds vault balance to the destination.
// An empty proceeds vault is not an error: nothing moves and the receipt reports zero.
func (e *Engine) WithdrawProceeds(ctx context.Context, p WithdrawParams) (receipt *domain.Receipt, err error) {
	start := time.Now()
	defer func() { e.observe(InstrWithdrawProceeds, p.State, start, err) }()

	err = e.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := loadState(ctx, tx, p.State)
		if err != nil {
			return err
		}
		if err := requireOwner(st, p.Signer); err != nil {
			return err
		}

		dest, err := loadAccount(ctx, tx, p.Destination, "destination account")
		if err != nil {
			return err
		}
		if dest.Mint != st.ProceedsMint {
			return fmt.Errorf("%w: destination mint %s, want %s", ErrInvalidAccount, dest.Mint, st.ProceedsMint)
		}
		if isVault(st, dest.Address) {
			return fmt.Errorf("%w: destination is a vault", ErrInvalidAccount)
		}

		proceeds, err := loadAccount(ctx, tx, st.ProceedsVault, domain.LabelProceedsVault)
		if err != nil {
			return err
		}

		amount := proceeds.Amount
		if amount > 0 {
			if err := tx.Transfer(ctx, st.ProceedsVault, dest.Address, amount); err != nil {
				return translate(err, "withdraw proceeds")
			}
		}

		balances, err := readBalances(ctx, tx, st.ProceedsVault, dest.Address)
		if err != nil {
			return err
		}
		receipt = &domain.Receipt{
			StateKey:      st.Key,
			Paid:          amount,
			SourceBalance: balances[0],
			VaultBalance:  balances[0],
			ProceedsTotal: balances[0],
			DestBalance:   balances[1],
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RecordWithdrawal(receipt.Paid)
	e.emit(ctx, &domain.Event{
		StateKey: p.State,
		Kind:     domain.EventProceedsWithdrawn,
		Actor:    p.Signer,
		Amount:   receipt.Paid,
	})
	return receipt, nil
}

// isVault reports whether addr is one of the state's custodial vaults.
func isVault(st *domain.State, addr domain.PublicKey) bool {
	if addr == st.ProceedsVault {
		return true
	}
	for _, v := range st.Vaults {
		if v.Address == addr {
			return true
		}
	}
	return false
}

// readBalances returns the balances of addrs in order.
func readBalances(ctx context.Context, r storage.LedgerReader, addrs ...domain.PublicKey) ([]uint64, error) {
	out := make([]uint64, len(addrs))
	for i, addr := range addrs {
		acct, err := r.GetTokenAccount(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("read balance %s: %w", addr, err)
		}
		out[i] = acct.Amount
	}
	return out, nil
}
