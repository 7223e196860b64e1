package codec

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sai-swap/internal/domain"
)

func TestDiscriminator_MatchesGlobalNamespace(t *testing.T) {
	sum := sha256.Sum256([]byte("global:swap"))
	d := KindSwap.Discriminator()
	assert.Equal(t, sum[:8], d[:])

	seen := make(map[[DiscriminatorSize]byte]Kind)
	for k := range kindNames {
		d := k.Discriminator()
		other, dup := seen[d]
		require.False(t, dup, "%s collides with %s", k, other)
		seen[d] = k
	}
}

func TestKindNames_WireCompatibility(t *testing.T) {
	// Names of the deployed multi-asset program.
	for kind, name := range map[Kind]string{
		KindInitializeSwap:   "initialize_swap",
		KindUpdatePrice:      "update_price",
		KindActivate:         "active_sell",
		KindDeactivate:       "deactive_sell",
		KindSwap:             "swap",
		KindWithdrawProceeds: "withdraw_proceeds",
	} {
		sum := sha256.Sum256([]byte("global:" + name))
		disc := kind.Discriminator()
		assert.Equal(t, sum[:DiscriminatorSize], disc[:], name)
	}

	// The standalone token-swap program's lifecycle names are not accepted.
	for _, name := range []string{"start_sale", "stop_sale"} {
		sum := sha256.Sum256([]byte("global:" + name))
		_, err := Decode(sum[:DiscriminatorSize])
		assert.ErrorIs(t, err, ErrUnknownInstruction, name)
	}

	// Single-asset kinds have discriminators distinct from every multi-asset kind.
	seen := make(map[[DiscriminatorSize]byte]Kind)
	for kind := range kindNames {
		d := kind.Discriminator()
		prev, dup := seen[d]
		require.False(t, dup, "%v collides with %v", kind, prev)
		seen[d] = kind
	}
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name     string
		ix       Instruction
		wantSize int
	}{
		{"initialize_swap", Instruction{Kind: KindInitializeSwap, Price: 15_000_000}, 16},
		{"initialize_token_swap", Instruction{Kind: KindInitializeTokenSwap, Price: 15, ReversePrice: 10}, 24},
		{"update_price", Instruction{Kind: KindUpdatePrice, Price: 20_000_000}, 16},
		{"update_prices", Instruction{Kind: KindUpdatePrices, Price: 1, ReversePrice: 2}, 24},
		{"active_sell", Instruction{Kind: KindActivate}, 8},
		{"deactive_sell", Instruction{Kind: KindDeactivate}, 8},
		{"swap oni", Instruction{Kind: KindSwap, Asset: domain.AssetOni}, 9},
		{"swap ustur", Instruction{Kind: KindSwap, Asset: domain.AssetUstur}, 9},
		{"swap_token", Instruction{Kind: KindSwapToken, Asset: domain.AssetToken}, 8},
		{"withdraw_proceeds", Instruction{Kind: KindWithdrawProceeds}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.ix)
			require.NoError(t, err)
			assert.Len(t, data, tt.wantSize)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.ix, got)
		})
	}
}

func TestEncode_PriceIsLittleEndian(t *testing.T) {
	data := MustEncode(Instruction{Kind: KindUpdatePrice, Price: 0x0102})
	assert.Equal(t, []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0}, data[8:])
}

func TestDecode_Errors(t *testing.T) {
	swapDisc := KindSwap.Discriminator()
	priceDisc := KindUpdatePrice.Discriminator()
	activateDisc := KindActivate.Discriminator()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrShortData},
		{"short discriminator", []byte{1, 2, 3}, ErrShortData},
		{"unknown discriminator", []byte{0, 0, 0, 0, 0, 0, 0, 0}, ErrUnknownInstruction},
		{"missing price", append(priceDisc[:], 1, 2, 3), ErrShortData},
		{"trailing bytes", append(activateDisc[:], 0), ErrTrailingData},
		{"asset tag 3", append(swapDisc[:], 3), ErrUnknownAssetTag},
		{"asset tag 255", append(swapDisc[:], 255), ErrUnknownAssetTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestEncode_RejectsUnknownAsset(t *testing.T) {
	_, err := Encode(Instruction{Kind: KindSwap, Asset: domain.AssetToken})
	assert.True(t, errors.Is(err, ErrUnknownAssetTag))

	_, err = Encode(Instruction{Kind: 0})
	assert.True(t, errors.Is(err, ErrUnknownInstruction))
}

func TestKind_Variant(t *testing.T) {
	assert.Equal(t, domain.VariantMultiAsset, KindSwap.Variant())
	assert.Equal(t, domain.VariantSingleAsset, KindSwapToken.Variant())
	assert.Equal(t, domain.Variant(0), KindWithdrawProceeds.Variant())
}

func key(b byte) domain.PublicKey {
	var k domain.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func TestState_RoundTrip(t *testing.T) {
	st := &domain.State{
		Variant:       domain.VariantMultiAsset,
		Owner:         key(1),
		Active:        true,
		Price:         15_000_000,
		ProceedsMint:  key(2),
		ProceedsVault: key(3),
		ProceedsBump:  254,
		Vaults: []domain.VaultRef{
			{Asset: domain.AssetOni, Mint: key(4), Address: key(5), Bump: 255},
			{Asset: domain.AssetMud, Mint: key(6), Address: key(7), Bump: 253},
			{Asset: domain.AssetUstur, Mint: key(8), Address: key(9), Bump: 250},
		},
	}

	data, err := EncodeState(st)
	require.NoError(t, err)
	require.Len(t, data, StateSize)
	assert.Equal(t, 322, StateSize)
	assert.Equal(t, StateDiscriminator[:], data[:8])

	got, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestState_SingleAssetLeavesSlotsZero(t *testing.T) {
	st := &domain.State{
		Variant:      domain.VariantSingleAsset,
		Owner:        key(1),
		Price:        15,
		ReversePrice: 10,
		Vaults:       []domain.VaultRef{{Asset: domain.AssetToken, Mint: key(4), Address: key(5), Bump: 255}},
	}

	data, err := EncodeState(st)
	require.NoError(t, err)
	for _, b := range data[offVaults+vaultSlotSize:] {
		require.Zero(t, b)
	}

	got, err := DecodeState(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.ReversePrice)
	require.Len(t, got.Vaults, 1)
	assert.Equal(t, domain.AssetToken, got.Vaults[0].Asset)
}

func TestDecodeState_Errors(t *testing.T) {
	valid, err := EncodeState(&domain.State{Variant: domain.VariantMultiAsset})
	require.NoError(t, err)

	corrupt := func(f func(b []byte)) []byte {
		b := append([]byte(nil), valid...)
		f(b)
		return b
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"short", valid[:100], ErrCorruptState},
		{"discriminator", corrupt(func(b []byte) { b[0] ^= 0xff }), ErrBadDiscriminator},
		{"variant", corrupt(func(b []byte) { b[offVariant] = 7 }), ErrCorruptState},
		{"active flag", corrupt(func(b []byte) { b[offActive] = 2 }), ErrCorruptState},
		{"vault count", corrupt(func(b []byte) { b[offVaultCount] = 4 }), ErrCorruptState},
		{"foreign asset", corrupt(func(b []byte) {
			b[offVaultCount] = 1
			b[offVaults] = byte(domain.AssetToken)
		}), ErrCorruptState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(tt.data)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}
