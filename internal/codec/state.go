package codec

import (
	"encoding/binary"
	"fmt"

	"sai-swap/internal/domain"
)

// State record layout.
const (
	offVariant       = DiscriminatorSize
	offActive        = offVariant + 1
	offPrice         = offActive + 1
	offReversePrice  = offPrice + 8
	offOwner         = offReversePrice + 8
	offProceedsMint  = offOwner + 32
	offProceedsVault = offProceedsMint + 32
	offProceedsBump  = offProceedsVault + 32
	offVaultCount    = offProceedsBump + 1
	offVaults        = offVaultCount + 1

	vaultSlotSize = 1 + 32 + 32 + 1

	// StateSize is the fixed encoded size of a state record.
	StateSize = offVaults + domain.MaxVaults*vaultSlotSize
)

// StateDiscriminator prefixes every encoded state record.
var StateDiscriminator = discriminator("account:State")

// EncodeState serializes st into its fixed-size account layout.
// Key and timestamps are not part of the layout.
func EncodeState(st *domain.State) ([]byte, error) {
	if !st.Variant.IsValid() {
		return nil, fmt.Errorf("encode state: unknown variant %d", st.Variant)
	}
	if len(st.Vaults) > domain.MaxVaults {
		return nil, fmt.Errorf("encode state: %d vaults exceeds %d slots", len(st.Vaults), domain.MaxVaults)
	}

	buf := make([]byte, StateSize)
	copy(buf, StateDiscriminator[:])
	buf[offVariant] = byte(st.Variant)
	if st.Active {
		buf[offActive] = 1
	}
	binary.LittleEndian.PutUint64(buf[offPrice:], st.Price)
	binary.LittleEndian.PutUint64(buf[offReversePrice:], st.ReversePrice)
	copy(buf[offOwner:], st.Owner[:])
	copy(buf[offProceedsMint:], st.ProceedsMint[:])
	copy(buf[offProceedsVault:], st.ProceedsVault[:])
	buf[offProceedsBump] = st.ProceedsBump
	buf[offVaultCount] = byte(len(st.Vaults))

	for i, v := range st.Vaults {
		slot := buf[offVaults+i*vaultSlotSize:]
		slot[0] = byte(v.Asset)
		copy(slot[1:], v.Mint[:])
		copy(slot[33:], v.Address[:])
		slot[65] = v.Bump
	}
	return buf, nil
}

// DecodeState parses an encoded state record. The caller sets Key.
func DecodeState(data []byte) (*domain.State, error) {
	if len(data) != StateSize {
		return nil, fmt.Errorf("decode state: %w: %d bytes, want %d", ErrCorruptState, len(data), StateSize)
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != StateDiscriminator {
		return nil, fmt.Errorf("decode state: %w", ErrBadDiscriminator)
	}

	st := &domain.State{
		Variant:      domain.Variant(data[offVariant]),
		Price:        binary.LittleEndian.Uint64(data[offPrice:]),
		ReversePrice: binary.LittleEndian.Uint64(data[offReversePrice:]),
		ProceedsBump: data[offProceedsBump],
	}
	if !st.Variant.IsValid() {
		return nil, fmt.Errorf("decode state: %w: variant %d", ErrCorruptState, data[offVariant])
	}

	switch data[offActive] {
	case 0:
	case 1:
		st.Active = true
	default:
		return nil, fmt.Errorf("decode state: %w: active flag %d", ErrCorruptState, data[offActive])
	}

	copy(st.Owner[:], data[offOwner:])
	copy(st.ProceedsMint[:], data[offProceedsMint:])
	copy(st.ProceedsVault[:], data[offProceedsVault:])

	count := int(data[offVaultCount])
	if count > domain.MaxVaults {
		return nil, fmt.Errorf("decode state: %w: %d vaults", ErrCorruptState, count)
	}
	for i := 0; i < count; i++ {
		slot := data[offVaults+i*vaultSlotSize:]
		v := domain.VaultRef{
			Asset: domain.Asset(slot[0]),
			Bump:  slot[65],
		}
		if !st.Variant.Supports(v.Asset) {
			return nil, fmt.Errorf("decode state: %w: asset %d in %s record", ErrCorruptState, slot[0], st.Variant)
		}
		copy(v.Mint[:], slot[1:33])
		copy(v.Address[:], slot[33:65])
		st.Vaults = append(st.Vaults, v)
	}
	return st, nil
}
