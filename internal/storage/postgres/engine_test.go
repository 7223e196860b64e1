package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sai-swap/internal/domain"
	"sai-swap/internal/pda"
	"sai-swap/internal/swap"
	"sai-swap/internal/token"
)

func newAddr(t *testing.T) domain.PublicKey {
	t.Helper()
	k, err := token.NewAddress()
	require.NoError(t, err)
	return k
}

func TestEngine_ConcurrentSwapsOnOneState(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool, nil)
	tokens := token.NewService(l)
	engine := swap.NewEngine(l, pda.NewDeriver(key(99)))

	mintAuth, owner, stateKey := newAddr(t), newAddr(t), newAddr(t)
	proceedsMint, assetMint := newAddr(t), newAddr(t)
	_, err := tokens.CreateMint(ctx, proceedsMint, mintAuth, 6)
	require.NoError(t, err)
	_, err = tokens.CreateMint(ctx, assetMint, mintAuth, 0)
	require.NoError(t, err)

	st, err := engine.Initialize(ctx, swap.InitializeParams{
		State:        stateKey,
		Owner:        owner,
		Variant:      domain.VariantSingleAsset,
		Prices:       domain.Prices{Price: 15, ReversePrice: 10},
		AssetMints:   map[domain.Asset]domain.PublicKey{domain.AssetToken: assetMint},
		ProceedsMint: proceedsMint,
	})
	require.NoError(t, err)
	vault := st.Vaults[0].Address
	require.NoError(t, tokens.MintTo(ctx, assetMint, vault, mintAuth, 5))
	_, err = engine.Activate(ctx, stateKey, owner)
	require.NoError(t, err)

	type buyer struct{ id, settlement, target domain.PublicKey }
	buyers := make([]buyer, 8)
	for i := range buyers {
		b := buyer{id: newAddr(t), settlement: newAddr(t), target: newAddr(t)}
		_, err := tokens.CreateAccount(ctx, b.settlement, proceedsMint, b.id)
		require.NoError(t, err)
		_, err = tokens.CreateAccount(ctx, b.target, assetMint, b.id)
		require.NoError(t, err)
		require.NoError(t, tokens.MintTo(ctx, proceedsMint, b.settlement, mintAuth, 15))
		buyers[i] = b
	}

	// Eight buyers race for five units; every loser must see InsufficientFunds,
	// never a deadlock or serialization failure.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
		other    []error
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(b buyer) {
			defer wg.Done()
			_, err := engine.Swap(ctx, swap.SwapParams{
				State:           stateKey,
				Buyer:           b.id,
				BuyerSettlement: b.settlement,
				BuyerTarget:     b.target,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, swap.ErrInsufficientFunds):
				fail++
			default:
				other = append(other, err)
			}
		}(b)
	}
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, fail)

	vaultBal, err := tokens.Balance(ctx, vault)
	require.NoError(t, err)
	assert.Zero(t, vaultBal)
	proceeds, err := tokens.Balance(ctx, st.ProceedsVault)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), proceeds)
}
