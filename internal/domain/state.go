package domain

// MaxVaults is the number of tradable-asset slots a State record can hold.
const MaxVaults = 3

// State is the configuration record of one swap.
// Corresponds to swap_states table in PostgreSQL.
type State struct {
	Key           PublicKey  // configuration identity
	Variant       Variant    // multi_asset | single_asset
	Owner         PublicKey  // set once at creation
	Active        bool       // gates Swap
	Price         uint64     // settlement units charged per swap
	ReversePrice  uint64     // single-asset reverse price, configuration data only
	ProceedsMint  PublicKey  // settlement asset
	ProceedsVault PublicKey  // derived from (proceeds_vault, Key)
	ProceedsBump  uint8      // derivation bump of ProceedsVault
	Vaults        []VaultRef // tradable-asset vaults in asset order
	CreatedAt     int64      // Unix timestamp in milliseconds
	UpdatedAt     int64      // Unix timestamp in milliseconds
}

// VaultRef points at a custodial vault holding one tradable asset.
type VaultRef struct {
	Asset   Asset
	Mint    PublicKey
	Address PublicKey
	Bump    uint8
}

// Vault returns the vault reference for asset a.
func (s *State) Vault(a Asset) (VaultRef, bool) {
	for _, v := range s.Vaults {
		if v.Asset == a {
			return v, true
		}
	}
	return VaultRef{}, false
}

// IsOwner reports whether id is the configuration owner.
func (s *State) IsOwner(id PublicKey) bool {
	return s.Owner == id
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Vaults = append([]VaultRef(nil), s.Vaults...)
	return &c
}

// Prices carries the mutable price fields of a state.
type Prices struct {
	Price        uint64
	ReversePrice uint64
}
