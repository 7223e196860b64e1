package program

import (
	"fmt"

	"sai-swap/internal/codec"
	"sai-swap/internal/domain"
	"sai-swap/internal/swap"
)

// Account slot names.
const (
	accState         = "state"
	accOwner         = "owner"
	accBuyer         = "buyer"
	accBuyerOut      = "buyer_out" // pays the price
	accBuyerIn       = "buyer_in"  // receives the asset
	accDestination   = "destination"
	accProceedsVault = domain.LabelProceedsVault
	accProceedsMint  = "proceeds_mint"
	accOniMint       = "oni_mint"
	accMudMint       = "mud_mint"
	accUsturMint     = "ustur_mint"
	accMint          = "mint"
)

// layouts lists the expected accounts of each instruction, in order.
var layouts = map[codec.Kind][]string{
	codec.KindInitializeSwap: {
		accState, domain.LabelOniVault, domain.LabelMudVault, domain.LabelUsturVault, accProceedsVault,
		accOniMint, accMudMint, accUsturMint, accProceedsMint, accOwner,
	},
	codec.KindInitializeTokenSwap: {
		accState, domain.LabelTokenVault, accProceedsVault, accMint, accProceedsMint, accOwner,
	},
	codec.KindUpdatePrice:  {accState, accOwner},
	codec.KindUpdatePrices: {accState, accOwner},
	codec.KindActivate:     {accState, accOwner},
	codec.KindDeactivate:   {accState, accOwner},
	codec.KindSwap: {
		accState, accProceedsVault, domain.LabelOniVault, domain.LabelMudVault, domain.LabelUsturVault,
		accBuyerOut, accBuyerIn, accBuyer,
	},
	codec.KindSwapToken: {
		accState, accProceedsVault, domain.LabelTokenVault, accBuyerOut, accBuyerIn, accBuyer,
	},
	codec.KindWithdrawProceeds: {accState, accProceedsVault, accDestination, accOwner},
}

// Layout returns the ordered account slot names of kind.
func Layout(kind codec.Kind) []string {
	return append([]string(nil), layouts[kind]...)
}

type accounts map[string]domain.PublicKey

// bind names the positional accounts of an instruction.
func bind(kind codec.Kind, keys []domain.PublicKey) (accounts, error) {
	layout, ok := layouts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no account layout for %s", ErrInvalidInstruction, kind)
	}
	if len(keys) != len(layout) {
		return nil, fmt.Errorf("%w: %s takes %d accounts, got %d", swap.ErrInvalidAccount, kind, len(layout), len(keys))
	}

	out := make(accounts, len(layout))
	for i, name := range layout {
		out[name] = keys[i]
	}
	return out, nil
}

func mintSlot(a domain.Asset) string {
	switch a {
	case domain.AssetOni:
		return accOniMint
	case domain.AssetMud:
		return accMudMint
	case domain.AssetUstur:
		return accUsturMint
	default:
		return accMint
	}
}

// order lays out named accounts in the positional order of kind.
func order(kind codec.Kind, named accounts) []domain.PublicKey {
	layout := layouts[kind]
	out := make([]domain.PublicKey, len(layout))
	for i, name := range layout {
		out[i] = named[name]
	}
	return out
}
