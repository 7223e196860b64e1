package domain

import "fmt"

// Asset selects which tradable-asset vault a swap draws from.
type Asset uint8

// Multi-asset selectors. Their numeric values are the wire tags.
const (
	AssetOni Asset = iota
	AssetMud
	AssetUstur

	// AssetToken is the sole vault of a single-asset configuration.
	// It never appears on the wire.
	AssetToken
)

// Vault seed labels.
const (
	LabelOniVault      = "oni_vault"
	LabelMudVault      = "mud_vault"
	LabelUsturVault    = "ustur_vault"
	LabelTokenVault    = "vault"
	LabelProceedsVault = "proceeds_vault"
)

// String returns the lowercase asset name.
func (a Asset) String() string {
	switch a {
	case AssetOni:
		return "oni"
	case AssetMud:
		return "mud"
	case AssetUstur:
		return "ustur"
	case AssetToken:
		return "token"
	default:
		return fmt.Sprintf("asset(%d)", uint8(a))
	}
}

// Label returns the seed label used to derive the asset's vault address.
func (a Asset) Label() string {
	switch a {
	case AssetOni:
		return LabelOniVault
	case AssetMud:
		return LabelMudVault
	case AssetUstur:
		return LabelUsturVault
	case AssetToken:
		return LabelTokenVault
	default:
		return ""
	}
}

// IsWireTag reports whether a is a multi-asset selector that may appear in instruction data.
func (a Asset) IsWireTag() bool {
	return a <= AssetUstur
}

// ParseAssetName maps a lowercase name back to an Asset.
func ParseAssetName(name string) (Asset, bool) {
	switch name {
	case "oni":
		return AssetOni, true
	case "mud":
		return AssetMud, true
	case "ustur":
		return AssetUstur, true
	case "token":
		return AssetToken, true
	}
	return 0, false
}

// Variant distinguishes the two configuration shapes.
type Variant uint8

const (
	// VariantMultiAsset has three tradable vaults sharing one price.
	VariantMultiAsset Variant = iota + 1
	// VariantSingleAsset has one tradable vault with a forward and a reverse price.
	VariantSingleAsset
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantMultiAsset:
		return "multi_asset"
	case VariantSingleAsset:
		return "single_asset"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// IsValid checks if the variant is a known value.
func (v Variant) IsValid() bool {
	return v == VariantMultiAsset || v == VariantSingleAsset
}

// Assets lists the tradable assets of the variant in vault order.
func (v Variant) Assets() []Asset {
	switch v {
	case VariantMultiAsset:
		return []Asset{AssetOni, AssetMud, AssetUstur}
	case VariantSingleAsset:
		return []Asset{AssetToken}
	default:
		return nil
	}
}

// Supports reports whether a is one of the variant's tradable assets.
func (v Variant) Supports(a Asset) bool {
	for _, candidate := range v.Assets() {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseVariant maps a variant name back to a Variant. Short forms
// "multi" and "single" are accepted.
func ParseVariant(name string) (Variant, bool) {
	switch name {
	case "multi_asset", "multi":
		return VariantMultiAsset, true
	case "single_asset", "single":
		return VariantSingleAsset, true
	}
	return 0, false
}
