package program

import (
	"fmt"

	"sai-swap/internal/codec"
	"sai-swap/internal/domain"
	"sai-swap/internal/swap"
)

func build(ix codec.Instruction, named accounts, signers ...domain.PublicKey) (*Instruction, error) {
	data, err := codec.Encode(ix)
	if err != nil {
		return nil, err
	}
	return &Instruction{
		Data:     data,
		Accounts: order(ix.Kind, named),
		Signers:  signers,
	}, nil
}

// NewInitialize builds the initialize instruction of p's variant.
// Vault addresses are derived with deriver.
func NewInitialize(deriver swap.Deriver, p swap.InitializeParams) (*Instruction, error) {
	kind := codec.KindInitializeSwap
	if p.Variant == domain.VariantSingleAsset {
		kind = codec.KindInitializeTokenSwap
	}

	named := accounts{
		accState:        p.State,
		accOwner:        p.Owner,
		accProceedsMint: p.ProceedsMint,
	}
	addr, _, err := deriver.VaultAddress(p.State, domain.LabelProceedsVault)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", domain.LabelProceedsVault, err)
	}
	named[accProceedsVault] = addr

	for _, asset := range p.Variant.Assets() {
		addr, _, err := deriver.VaultAddress(p.State, asset.Label())
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", asset.Label(), err)
		}
		named[asset.Label()] = addr
		named[mintSlot(asset)] = p.AssetMints[asset]
	}

	return build(codec.Instruction{
		Kind:         kind,
		Price:        p.Prices.Price,
		ReversePrice: p.Prices.ReversePrice,
	}, named, p.State, p.Owner)
}

// NewUpdatePrice builds a price update for st's variant.
func NewUpdatePrice(st *domain.State, signer domain.PublicKey, prices domain.Prices) (*Instruction, error) {
	ix := codec.Instruction{Kind: codec.KindUpdatePrice, Price: prices.Price}
	if st.Variant == domain.VariantSingleAsset {
		ix = codec.Instruction{Kind: codec.KindUpdatePrices, Price: prices.Price, ReversePrice: prices.ReversePrice}
	}
	return build(ix, accounts{accState: st.Key, accOwner: signer}, signer)
}

// NewActivate builds an activation.
func NewActivate(st *domain.State, signer domain.PublicKey) (*Instruction, error) {
	return build(codec.Instruction{Kind: codec.KindActivate}, accounts{accState: st.Key, accOwner: signer}, signer)
}

// NewDeactivate builds a deactivation.
func NewDeactivate(st *domain.State, signer domain.PublicKey) (*Instruction, error) {
	return build(codec.Instruction{Kind: codec.KindDeactivate}, accounts{accState: st.Key, accOwner: signer}, signer)
}

// NewSwap builds a swap for st's variant. asset is ignored for single-asset states.
func NewSwap(st *domain.State, buyer, settlement, target domain.PublicKey, asset domain.Asset) (*Instruction, error) {
	named := accounts{
		accState:         st.Key,
		accProceedsVault: st.ProceedsVault,
		accBuyerOut:      settlement,
		accBuyerIn:       target,
		accBuyer:         buyer,
	}
	for _, v := range st.Vaults {
		named[v.Asset.Label()] = v.Address
	}

	ix := codec.Instruction{Kind: codec.KindSwap, Asset: asset}
	if st.Variant == domain.VariantSingleAsset {
		ix = codec.Instruction{Kind: codec.KindSwapToken}
	}
	return build(ix, named, buyer)
}

// NewWithdrawProceeds builds a proceeds withdrawal into destination.
func NewWithdrawProceeds(st *domain.State, signer, destination domain.PublicKey) (*Instruction, error) {
	return build(codec.Instruction{Kind: codec.KindWithdrawProceeds}, accounts{
		accState:         st.Key,
		accProceedsVault: st.ProceedsVault,
		accDestination:   destination,
		accOwner:         signer,
	}, signer)
}
