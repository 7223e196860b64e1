package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sai-swap/internal/api"
	"sai-swap/internal/domain"
	"sai-swap/internal/pda"
	"sai-swap/internal/program"
	"sai-swap/internal/storage/memory"
	"sai-swap/internal/swap"
	"sai-swap/internal/token"
)

var programID = domain.MustPublicKey("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")

func newKey(t *testing.T) domain.PublicKey {
	t.Helper()
	k, err := token.NewAddress()
	require.NoError(t, err)
	return k
}

// newServer runs an in-memory swapd API in dev mode.
func newServer(t *testing.T) (*httptest.Server, *api.Hub) {
	t.Helper()

	ledger := memory.NewLedger()
	events := memory.NewEventStore()
	hub := api.NewHub(64, nil)
	deriver := pda.NewDeriver(programID)
	engine := swap.NewEngine(ledger, deriver, swap.WithEventSink(api.NewJournal(events, hub)))

	srv := api.New(api.Config{
		Processor: program.NewProcessor(engine, deriver),
		Engine:    engine,
		Tokens:    token.NewService(ledger),
		Events:    events,
		Hub:       hub,
		DevMode:   true,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)
	return ts, hub
}

func TestHTTPClient_EndToEnd(t *testing.T) {
	ts, hub := newServer(t)
	ctx := context.Background()
	c := NewHTTPClient(ts.URL)

	authority, owner, state := newKey(t), newKey(t), newKey(t)
	proceedsMint, err := c.CreateMint(ctx, authority, 6)
	require.NoError(t, err)
	tokenMint, err := c.CreateMint(ctx, authority, 0)
	require.NoError(t, err)

	ix, err := program.NewInitialize(pda.NewDeriver(programID), swap.InitializeParams{
		State:        state,
		Owner:        owner,
		Variant:      domain.VariantSingleAsset,
		Prices:       domain.Prices{Price: 4, ReversePrice: 1},
		AssetMints:   map[domain.Asset]domain.PublicKey{domain.AssetToken: tokenMint},
		ProceedsMint: proceedsMint,
	})
	require.NoError(t, err)
	resp, err := c.Submit(ctx, ix)
	require.NoError(t, err)
	assert.Equal(t, "initialize_token_swap", resp.Instruction)

	stream, err := Subscribe(ctx, ts.URL, state, nil)
	require.NoError(t, err)
	defer stream.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	vaults, err := c.Vaults(ctx, state)
	require.NoError(t, err)
	require.Len(t, vaults, 2)
	_, err = c.MintTo(ctx, tokenMint, vaults[0].Address, authority, 10)
	require.NoError(t, err)

	st, err := resp.State.State()
	require.NoError(t, err)
	assert.Equal(t, vaults[1].Address, st.ProceedsVault)
	assert.Equal(t, vaults[0].Address, st.Vaults[0].Address)

	ix, err = program.NewActivate(st, owner)
	require.NoError(t, err)
	_, err = c.Submit(ctx, ix)
	require.NoError(t, err)

	buyer := newKey(t)
	pay, err := c.CreateAccount(ctx, proceedsMint, buyer)
	require.NoError(t, err)
	recv, err := c.CreateAccount(ctx, tokenMint, buyer)
	require.NoError(t, err)
	acct, err := c.MintTo(ctx, proceedsMint, pay, authority, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), acct.Amount)

	ix, err = program.NewSwap(st, buyer, pay, recv, domain.AssetToken)
	require.NoError(t, err)
	resp, err = c.Submit(ctx, ix)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), resp.Receipt.SourceBalance)

	got, err := c.Account(ctx, recv)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Amount)

	view, err := c.State(ctx, state)
	require.NoError(t, err)
	assert.True(t, view.Active)
	assert.Equal(t, uint64(1), view.ReversePrice)

	var kinds []string
	for len(kinds) < 2 {
		select {
		case ev := <-stream.Events():
			kinds = append(kinds, ev.Kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", kinds)
		}
	}
	assert.Equal(t, []string{"activated", "swapped"}, kinds)

	journal, err := c.Events(ctx, state)
	require.NoError(t, err)
	assert.Len(t, journal, 3)
}

func TestHTTPClient_Rejection(t *testing.T) {
	ts, _ := newServer(t)
	c := NewHTTPClient(ts.URL)

	_, err := c.State(context.Background(), newKey(t))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, swap.CodeStateNotFound, apiErr.Code)
}

func TestHTTPClient_RetriesReadsOnly(t *testing.T) {
	var gets, posts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if gets.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"amount":7}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(ts.URL, WithRetryDelay(time.Millisecond))

	acct, err := c.Account(context.Background(), newKey(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), acct.Amount)
	assert.Equal(t, int32(3), gets.Load())

	_, err = c.Submit(context.Background(), &program.Instruction{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, int32(1), posts.Load())
}

func TestStreamURL(t *testing.T) {
	state := newKey(t)

	got, err := StreamURL("https://swap.example/", state)
	require.NoError(t, err)
	assert.Equal(t, "wss://swap.example/v1/events/stream?state="+state.String(), got)

	got, err = StreamURL("http://localhost:8080", domain.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/v1/events/stream", got)

	_, err = StreamURL("ftp://x", state)
	assert.Error(t, err)
}

func TestStream_Reconnects(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	var conns atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := conns.Add(1)
		conn.WriteJSON(api.EventView{ID: string(rune('0' + n)), Kind: "activated"})
		if n == 1 {
			// Drop the first connection right away.
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	cfg := DefaultStreamConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	stream, err := Subscribe(context.Background(), ts.URL, domain.PublicKey{}, &cfg)
	require.NoError(t, err)

	var ids []string
	for len(ids) < 2 {
		select {
		case ev := <-stream.Events():
			ids = append(ids, ev.ID)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out, got %v", ids)
		}
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, uint64(1), stream.Reconnects())

	require.NoError(t, stream.Close())
	_, ok := <-stream.Events()
	assert.False(t, ok)
	assert.True(t, strings.HasPrefix(stream.endpoint, "ws://"))
}
