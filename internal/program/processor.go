// Package program turns raw instructions (data, ordered accounts, signers)
// into engine calls. It owns account-list validation: every account the
// state record names must be passed at its expected position.
package program

import (
	"context"
	"errors"
	"fmt"

	"sai-swap/internal/codec"
	"sai-swap/internal/domain"
	"sai-swap/internal/swap"
)

// ErrInvalidInstruction is returned for instruction data that cannot be decoded.
var ErrInvalidInstruction = errors.New("invalid instruction")

// CodeInvalidInstruction is the error code of ErrInvalidInstruction.
const CodeInvalidInstruction = "InvalidInstruction"

// Instruction is one raw instruction as submitted by a client.
type Instruction struct {
	Data     []byte
	Accounts []domain.PublicKey
	Signers  []domain.PublicKey
}

// IsSigner reports whether key signed the instruction.
func (ix *Instruction) IsSigner(key domain.PublicKey) bool {
	for _, s := range ix.Signers {
		if s == key {
			return true
		}
	}
	return false
}

// Result is the outcome of an applied instruction.
type Result struct {
	Instruction string
	State       *domain.State
	Receipt     *domain.Receipt // swaps and withdrawals only
}

// Processor validates and dispatches raw instructions.
type Processor struct {
	engine  *swap.Engine
	deriver swap.Deriver
}

// NewProcessor creates a processor over engine. deriver must be the one the engine uses.
func NewProcessor(engine *swap.Engine, deriver swap.Deriver) *Processor {
	return &Processor{engine: engine, deriver: deriver}
}

// Code classifies err, extending swap.Code with decoding failures.
func Code(err error) string {
	if errors.Is(err, ErrInvalidInstruction) {
		return CodeInvalidInstruction
	}
	return swap.Code(err)
}

// Process decodes ix and applies it.
func (p *Processor) Process(ctx context.Context, ix *Instruction) (*Result, error) {
	decoded, err := codec.Decode(ix.Data)
	if errors.Is(err, codec.ErrUnknownAssetTag) {
		return nil, fmt.Errorf("%w: %v", swap.ErrUnknownAsset, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	accts, err := bind(decoded.Kind, ix.Accounts)
	if err != nil {
		return nil, err
	}

	res := &Result{Instruction: decoded.Kind.Name()}

	switch decoded.Kind {
	case codec.KindInitializeSwap, codec.KindInitializeTokenSwap:
		res.State, err = p.initialize(ctx, ix, decoded, accts)
		return res, err
	}

	st, err := p.engine.State(ctx, accts[accState])
	if err != nil {
		return nil, err
	}
	if v := decoded.Kind.Variant(); v != 0 && v != st.Variant {
		return nil, fmt.Errorf("%w: %s is not valid for a %s configuration", swap.ErrInvalidAccount, decoded.Kind, st.Variant)
	}

	switch decoded.Kind {
	case codec.KindUpdatePrice, codec.KindUpdatePrices:
		signer, err := signerAt(ix, accts, accOwner)
		if err != nil {
			return nil, err
		}
		prices := decoded.Prices()
		if decoded.Kind == codec.KindUpdatePrice {
			prices.ReversePrice = st.ReversePrice
		}
		res.State, err = p.engine.UpdatePrice(ctx, st.Key, signer, prices)
		return res, err

	case codec.KindActivate, codec.KindDeactivate:
		signer, err := signerAt(ix, accts, accOwner)
		if err != nil {
			return nil, err
		}
		if decoded.Kind == codec.KindActivate {
			res.State, err = p.engine.Activate(ctx, st.Key, signer)
		} else {
			res.State, err = p.engine.Deactivate(ctx, st.Key, signer)
		}
		return res, err

	case codec.KindSwap, codec.KindSwapToken:
		signer, err := signerAt(ix, accts, accBuyer)
		if err != nil {
			return nil, err
		}
		if err := checkVaults(st, accts); err != nil {
			return nil, err
		}
		res.Receipt, err = p.engine.Swap(ctx, swap.SwapParams{
			State:           st.Key,
			Buyer:           signer,
			Asset:           decoded.Asset,
			BuyerSettlement: accts[accBuyerOut],
			BuyerTarget:     accts[accBuyerIn],
		})
		return res, err

	case codec.KindWithdrawProceeds:
		signer, err := signerAt(ix, accts, accOwner)
		if err != nil {
			return nil, err
		}
		if err := checkVaults(st, accts); err != nil {
			return nil, err
		}
		res.Receipt, err = p.engine.WithdrawProceeds(ctx, swap.WithdrawParams{
			State:       st.Key,
			Signer:      signer,
			Destination: accts[accDestination],
		})
		return res, err
	}

	return nil, fmt.Errorf("%w: unhandled %s", ErrInvalidInstruction, decoded.Kind)
}

func (p *Processor) initialize(ctx context.Context, ix *Instruction, decoded codec.Instruction, accts accounts) (*domain.State, error) {
	owner, err := signerAt(ix, accts, accOwner)
	if err != nil {
		return nil, err
	}
	key := accts[accState]
	if !ix.IsSigner(key) {
		return nil, fmt.Errorf("%w: state account %s must sign its creation", swap.ErrUnauthorized, key)
	}

	variant := decoded.Kind.Variant()
	mints := make(map[domain.Asset]domain.PublicKey)
	for _, asset := range variant.Assets() {
		name := asset.Label()
		addr, _, err := p.deriver.VaultAddress(key, name)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", name, err)
		}
		if accts[name] != addr {
			return nil, fmt.Errorf("%w: %s is %s, want %s", swap.ErrInvalidAccount, name, accts[name], addr)
		}
		mints[asset] = accts[mintSlot(asset)]
	}

	proceeds, _, err := p.deriver.VaultAddress(key, domain.LabelProceedsVault)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", domain.LabelProceedsVault, err)
	}
	if accts[accProceedsVault] != proceeds {
		return nil, fmt.Errorf("%w: %s is %s, want %s", swap.ErrInvalidAccount, accProceedsVault, accts[accProceedsVault], proceeds)
	}

	return p.engine.Initialize(ctx, swap.InitializeParams{
		State:        key,
		Owner:        owner,
		Variant:      variant,
		Prices:       decoded.Prices(),
		AssetMints:   mints,
		ProceedsMint: accts[accProceedsMint],
	})
}

// signerAt returns the account at slot after checking that it signed.
func signerAt(ix *Instruction, accts accounts, slot string) (domain.PublicKey, error) {
	key := accts[slot]
	if !ix.IsSigner(key) {
		return domain.PublicKey{}, fmt.Errorf("%w: %s %s did not sign", swap.ErrUnauthorized, slot, key)
	}
	return key, nil
}

// checkVaults enforces that every vault slot in the list is the vault the state names.
func checkVaults(st *domain.State, accts accounts) error {
	if addr, ok := accts[accProceedsVault]; ok && addr != st.ProceedsVault {
		return fmt.Errorf("%w: %s is %s, want %s", swap.ErrInvalidAccount, accProceedsVault, addr, st.ProceedsVault)
	}
	for _, v := range st.Vaults {
		name := v.Asset.Label()
		addr, ok := accts[name]
		if !ok {
			continue
		}
		if addr != v.Address {
			return fmt.Errorf("%w: %s is %s, want %s", swap.ErrInvalidAccount, name, addr, v.Address)
		}
	}
	return nil
}
