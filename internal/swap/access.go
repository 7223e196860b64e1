package swap

import (
	"fmt"

	"sai-swap/internal/domain"
)

// requireSigner rejects instructions that carry no signer.
func requireSigner(signer domain.PublicKey) error {
	if signer.IsZero() {
		return fmt.Errorf("%w: missing signer", ErrUnauthorized)
	}
	return nil
}

// requireOwner rejects signers other than the state owner.
func requireOwner(st *domain.State, signer domain.PublicKey) error {
	if err := requireSigner(signer); err != nil {
		return err
	}
	if !st.IsOwner(signer) {
		return fmt.Errorf("%w: %s is not the owner of %s", ErrUnauthorized, signer, st.Key)
	}
	return nil
}

// requireAuthority rejects spending from an account the signer does not control.
func requireAuthority(acct *domain.TokenAccount, signer domain.PublicKey) error {
	if acct.Owner != signer {
		return fmt.Errorf("%w: %s is not the authority of %s", ErrUnauthorized, signer, acct.Address)
	}
	return nil
}

// validatePrices enforces the price rules of the variant.
// Single-asset configurations require both prices to be positive.
func validatePrices(v domain.Variant, p domain.Prices) error {
	if v == domain.VariantSingleAsset && (p.Price == 0 || p.ReversePrice == 0) {
		return fmt.Errorf("%w: prices must be positive", ErrInvalidPrice)
	}
	if v == domain.VariantMultiAsset && p.ReversePrice != 0 {
		return fmt.Errorf("%w: multi-asset configuration has no reverse price", ErrInvalidPrice)
	}
	return nil
}
