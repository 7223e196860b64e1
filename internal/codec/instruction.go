// Package codec defines the binary layouts of swap instructions and of the
// persisted state record.
//
// Instruction data is an 8-byte discriminator, sha256("global:<name>")[:8],
// followed by little-endian arguments. The state record starts with
// sha256("account:State")[:8] and has a fixed size of StateSize bytes.
//
// The multi-asset instruction names match the deployed citizenship program,
// so its clients' instruction data decodes unchanged. The single-asset
// instructions use names of their own (initialize_token_swap, swap_token,
// update_prices); both variants share active_sell, deactive_sell and
// withdraw_proceeds. Data built for the standalone token-swap program, whose
// initialize_swap and swap collide with the multi-asset names and whose
// start_sale/stop_sale are not recognized, is not compatible.
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"sai-swap/internal/domain"
)

// DiscriminatorSize is the length of every instruction and account discriminator.
const DiscriminatorSize = 8

// Decoding errors.
var (
	ErrShortData          = errors.New("data too short")
	ErrTrailingData       = errors.New("unexpected trailing data")
	ErrUnknownInstruction = errors.New("unknown instruction discriminator")
	ErrUnknownAssetTag    = errors.New("unknown asset tag")
	ErrBadDiscriminator   = errors.New("account discriminator mismatch")
	ErrCorruptState       = errors.New("corrupt state record")
)

// Kind identifies an instruction.
type Kind uint8

const (
	KindInitializeSwap Kind = iota + 1
	KindInitializeTokenSwap
	KindUpdatePrice
	KindUpdatePrices
	KindActivate
	KindDeactivate
	KindSwap
	KindSwapToken
	KindWithdrawProceeds
)

var kindNames = map[Kind]string{
	KindInitializeSwap:      "initialize_swap",
	KindInitializeTokenSwap: "initialize_token_swap",
	KindUpdatePrice:         "update_price",
	KindUpdatePrices:        "update_prices",
	KindActivate:            "active_sell",
	KindDeactivate:          "deactive_sell",
	KindSwap:                "swap",
	KindSwapToken:           "swap_token",
	KindWithdrawProceeds:    "withdraw_proceeds",
}

// kindByDiscriminator is the reverse index used by Decode.
var kindByDiscriminator = func() map[[DiscriminatorSize]byte]Kind {
	m := make(map[[DiscriminatorSize]byte]Kind, len(kindNames))
	for k := range kindNames {
		m[k.Discriminator()] = k
	}
	return m
}()

// Name returns the wire name hashed into the discriminator.
func (k Kind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// String returns the wire name.
func (k Kind) String() string {
	return k.Name()
}

// IsValid checks if the kind is a known value.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// Discriminator returns sha256("global:<name>")[:8].
func (k Kind) Discriminator() [DiscriminatorSize]byte {
	return discriminator("global:" + k.Name())
}

// Variant returns the configuration variant an instruction is specific to.
// Instructions shared by both variants return 0.
func (k Kind) Variant() domain.Variant {
	switch k {
	case KindInitializeSwap, KindUpdatePrice, KindSwap:
		return domain.VariantMultiAsset
	case KindInitializeTokenSwap, KindUpdatePrices, KindSwapToken:
		return domain.VariantSingleAsset
	}
	return 0
}

func discriminator(preimage string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Instruction is a decoded instruction. Only the fields used by Kind are meaningful.
type Instruction struct {
	Kind         Kind
	Price        uint64
	ReversePrice uint64
	Asset        domain.Asset
}

// Prices returns the price arguments.
func (ix Instruction) Prices() domain.Prices {
	return domain.Prices{Price: ix.Price, ReversePrice: ix.ReversePrice}
}

// argsSize returns the encoded argument length for k.
func argsSize(k Kind) int {
	switch k {
	case KindInitializeSwap, KindUpdatePrice:
		return 8
	case KindInitializeTokenSwap, KindUpdatePrices:
		return 16
	case KindSwap:
		return 1
	}
	return 0
}

// Encode serializes ix.
func Encode(ix Instruction) ([]byte, error) {
	if !ix.Kind.IsValid() {
		return nil, fmt.Errorf("encode: %w: %d", ErrUnknownInstruction, ix.Kind)
	}

	d := ix.Kind.Discriminator()
	buf := make([]byte, 0, DiscriminatorSize+argsSize(ix.Kind))
	buf = append(buf, d[:]...)

	switch ix.Kind {
	case KindInitializeSwap, KindUpdatePrice:
		buf = binary.LittleEndian.AppendUint64(buf, ix.Price)
	case KindInitializeTokenSwap, KindUpdatePrices:
		buf = binary.LittleEndian.AppendUint64(buf, ix.Price)
		buf = binary.LittleEndian.AppendUint64(buf, ix.ReversePrice)
	case KindSwap:
		if !ix.Asset.IsWireTag() {
			return nil, fmt.Errorf("encode: %w: %d", ErrUnknownAssetTag, ix.Asset)
		}
		buf = append(buf, byte(ix.Asset))
	}
	return buf, nil
}

// MustEncode is Encode for statically valid instructions.
func MustEncode(ix Instruction) []byte {
	data, err := Encode(ix)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses instruction data.
func Decode(data []byte) (Instruction, error) {
	if len(data) < DiscriminatorSize {
		return Instruction{}, fmt.Errorf("decode: %w: %d bytes", ErrShortData, len(data))
	}

	var d [DiscriminatorSize]byte
	copy(d[:], data)
	kind, ok := kindByDiscriminator[d]
	if !ok {
		return Instruction{}, fmt.Errorf("decode: %w: %x", ErrUnknownInstruction, d)
	}

	args := data[DiscriminatorSize:]
	want := argsSize(kind)
	if len(args) < want {
		return Instruction{}, fmt.Errorf("decode %s: %w: %d argument bytes, want %d", kind, ErrShortData, len(args), want)
	}
	if len(args) > want {
		return Instruction{}, fmt.Errorf("decode %s: %w: %d argument bytes, want %d", kind, ErrTrailingData, len(args), want)
	}

	ix := Instruction{Kind: kind}
	switch kind {
	case KindInitializeSwap, KindUpdatePrice:
		ix.Price = binary.LittleEndian.Uint64(args)
	case KindInitializeTokenSwap, KindUpdatePrices:
		ix.Price = binary.LittleEndian.Uint64(args)
		ix.ReversePrice = binary.LittleEndian.Uint64(args[8:])
	case KindSwap:
		ix.Asset = domain.Asset(args[0])
		if !ix.Asset.IsWireTag() {
			return Instruction{}, fmt.Errorf("decode %s: %w: %d", kind, ErrUnknownAssetTag, args[0])
		}
	case KindSwapToken:
		ix.Asset = domain.AssetToken
	}
	return ix, nil
}
