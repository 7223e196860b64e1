package domain

// TokenAccount is a balance account holding a single asset.
// Vaults are token accounts whose Owner is their own derived address.
// Corresponds to token_accounts table in PostgreSQL.
type TokenAccount struct {
	Address   PublicKey
	Mint      PublicKey
	Owner     PublicKey // authority allowed to move funds out
	Amount    uint64    // balance in base units
	CreatedAt int64     // Unix timestamp in milliseconds
}

// Mint describes a fungible asset type.
// Corresponds to token_mints table in PostgreSQL.
type Mint struct {
	Address   PublicKey
	Decimals  uint8
	Supply    uint64
	Authority PublicKey
	CreatedAt int64 // Unix timestamp in milliseconds
}

// VaultBalance is a read-side view of one vault.
type VaultBalance struct {
	Asset   Asset
	Label   string
	Address PublicKey
	Mint    PublicKey
	Amount  uint64
}
