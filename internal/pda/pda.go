// Package pda derives deterministic vault addresses from a program id and seeds.
//
// Addresses follow the Solana program-derived-address scheme:
// SHA256(seed_0 | ... | seed_n | bump | program_id | "ProgramDerivedAddress"),
// searching bumps from 255 down until the digest is not a valid ed25519 point.
// An off-curve address has no private key, so only the program can move its funds.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"sai-swap/internal/domain"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included.
	MaxSeeds = 16
	// MaxSeedLength is the maximum length of a single seed.
	MaxSeedLength = 32

	marker = "ProgramDerivedAddress"
)

var (
	// ErrOnCurve is returned when the seeds hash to a valid curve point.
	ErrOnCurve = errors.New("derived address is on the ed25519 curve")

	// ErrNoViableBump is returned when no bump in [0,255] yields an off-curve address.
	ErrNoViableBump = errors.New("unable to find a viable program address bump")

	// ErrSeeds is returned for too many or too long seeds.
	ErrSeeds = errors.New("invalid seeds")
)

// CreateProgramAddress hashes seeds with programID and rejects on-curve results.
func CreateProgramAddress(seeds [][]byte, programID domain.PublicKey) (domain.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return domain.PublicKey{}, fmt.Errorf("%w: %d seeds exceeds %d", ErrSeeds, len(seeds), MaxSeeds)
	}

	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return domain.PublicKey{}, fmt.Errorf("%w: seed %d has %d bytes", ErrSeeds, i, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(marker))

	var out domain.PublicKey
	copy(out[:], h.Sum(nil))

	if IsOnCurve(out[:]) {
		return domain.PublicKey{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress returns the first off-curve address, trying bumps 255..0.
func FindProgramAddress(seeds [][]byte, programID domain.PublicKey) (domain.PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return domain.PublicKey{}, 0, fmt.Errorf("%w: %d seeds leaves no room for bump", ErrSeeds, len(seeds))
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}

		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.PublicKey{}, 0, err
		}
	}

	return domain.PublicKey{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != domain.PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Deriver maps (state identity, label) to a vault address for one program.
type Deriver struct {
	ProgramID domain.PublicKey
}

// NewDeriver creates a Deriver bound to programID.
func NewDeriver(programID domain.PublicKey) *Deriver {
	return &Deriver{ProgramID: programID}
}

// VaultAddress derives the vault labelled label under state.
func (d *Deriver) VaultAddress(state domain.PublicKey, label string) (domain.PublicKey, uint8, error) {
	if label == "" {
		return domain.PublicKey{}, 0, fmt.Errorf("%w: empty label", ErrSeeds)
	}
	addr, bump, err := FindProgramAddress([][]byte{[]byte(label), state[:]}, d.ProgramID)
	if err != nil {
		return domain.PublicKey{}, 0, fmt.Errorf("derive %s for %s: %w", label, state, err)
	}
	return addr, bump, nil
}

// VerifyVaultAddress recomputes the address for (label, state, bump) and compares.
func (d *Deriver) VerifyVaultAddress(state domain.PublicKey, label string, bump uint8, addr domain.PublicKey) bool {
	got, err := CreateProgramAddress([][]byte{[]byte(label), state[:], {bump}}, d.ProgramID)
	if err != nil {
		return false
	}
	return got == addr
}
