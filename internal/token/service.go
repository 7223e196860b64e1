// Package token provides mint and balance-account provisioning: the funding
// side the swap engine relies on but never calls itself.
package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"sai-swap/internal/domain"
	"sai-swap/internal/storage"
)

// ErrMintAuthority is returned when MintTo is signed by someone other than the mint authority.
var ErrMintAuthority = errors.New("signer is not the mint authority")

// Service creates mints and token accounts and issues supply.
type Service struct {
	ledger storage.Ledger
}

// NewService creates a token service over ledger.
func NewService(ledger storage.Ledger) *Service {
	return &Service{ledger: ledger}
}

// NewAddress returns the public key of a fresh ed25519 keypair.
func NewAddress() (domain.PublicKey, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("generate keypair: %w", err)
	}
	return domain.PublicKeyFromBytes(pub)
}

// CreateMint registers a new mint at addr.
func (s *Service) CreateMint(ctx context.Context, addr, authority domain.PublicKey, decimals uint8) (*domain.Mint, error) {
	m := &domain.Mint{
		Address:   addr,
		Decimals:  decimals,
		Authority: authority,
	}
	err := s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.InsertMint(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("create mint %s: %w", addr, err)
	}
	return m, nil
}

// CreateAccount opens a zero-balance account for mint controlled by owner.
func (s *Service) CreateAccount(ctx context.Context, addr, mint, owner domain.PublicKey) (*domain.TokenAccount, error) {
	a := &domain.TokenAccount{
		Address: addr,
		Mint:    mint,
		Owner:   owner,
	}
	err := s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		return tx.InsertTokenAccount(ctx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("create token account %s: %w", addr, err)
	}
	return a, nil
}

// MintTo issues amount units of mint into dest. authority must match the mint authority.
func (s *Service) MintTo(ctx context.Context, mint, dest, authority domain.PublicKey, amount uint64) error {
	err := s.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		m, err := tx.GetMint(ctx, mint)
		if err != nil {
			return err
		}
		if m.Authority != authority {
			return ErrMintAuthority
		}
		return tx.MintTo(ctx, mint, dest, amount)
	})
	if err != nil {
		return fmt.Errorf("mint %d of %s to %s: %w", amount, mint, dest, err)
	}
	return nil
}

// Account returns the token account at addr.
func (s *Service) Account(ctx context.Context, addr domain.PublicKey) (*domain.TokenAccount, error) {
	var acct *domain.TokenAccount
	err := s.ledger.View(ctx, func(r storage.LedgerReader) error {
		var err error
		acct, err = r.GetTokenAccount(ctx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Balance returns the amount held by addr.
func (s *Service) Balance(ctx context.Context, addr domain.PublicKey) (uint64, error) {
	acct, err := s.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}
