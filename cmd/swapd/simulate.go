package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sai-swap/internal/api"
	"sai-swap/internal/client"
	"sai-swap/internal/domain"
	"sai-swap/internal/pda"
	"sai-swap/internal/program"
	"sai-swap/internal/storage/memory"
	"sai-swap/internal/swap"
	"sai-swap/internal/token"
)

type simOptions struct {
	Swaps int
	Price uint64
	Fund  uint64 // units minted into each asset vault
}

var (
	simServer string
	simOpts   simOptions
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted multi-asset swap session",
	Long: `Creates mints, initializes a multi-asset configuration, funds its vaults,
activates it, runs a number of buyer swaps round-robin over the assets and
withdraws the proceeds. Without --server an in-memory server is started on a
loopback port; with --server the target must run in dev mode under the same
program_id.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simServer, "server", "", "base URL of a dev-mode swapd (default: in-process)")
	simulateCmd.Flags().IntVar(&simOpts.Swaps, "swaps", 3, "number of swaps")
	simulateCmd.Flags().Uint64Var(&simOpts.Price, "price", 15, "settlement units per swap")
	simulateCmd.Flags().Uint64Var(&simOpts.Fund, "fund", 100, "units minted into each asset vault")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, logCloser, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx := cmd.Context()
	deriver := pda.NewDeriver(cfg.Program())

	baseURL := simServer
	if baseURL == "" {
		url, shutdown, err := startLocalServer(deriver)
		if err != nil {
			return err
		}
		defer shutdown()
		baseURL = url
	}

	report, err := simulate(ctx, client.NewHTTPClient(baseURL), deriver, simOpts)
	if err != nil {
		return err
	}
	return report.Print(cmd.OutOrStdout())
}

// startLocalServer serves an in-memory dev-mode API on a loopback port.
func startLocalServer(deriver *pda.Deriver) (string, func(), error) {
	ledger := memory.NewLedger()
	events := memory.NewEventStore()
	hub := api.NewHub(64, nil)
	engine := swap.NewEngine(ledger, deriver, swap.WithEventSink(api.NewJournal(events, hub)))

	srv := api.New(api.Config{
		Processor: program.NewProcessor(engine, deriver),
		Engine:    engine,
		Tokens:    token.NewService(ledger),
		Events:    events,
		Hub:       hub,
		DevMode:   true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen: %w", err)
	}
	httpServer := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go httpServer.Serve(ln)

	shutdown := func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String(), shutdown, nil
}

type swapLine struct {
	Buyer   domain.PublicKey
	Receipt api.ReceiptView
}

type simReport struct {
	State     domain.PublicKey
	Swaps     []swapLine
	Withdrawn uint64
	Vaults    []api.VaultView
	Events    int
}

// simulate drives one configuration through its whole lifecycle over c.
func simulate(ctx context.Context, c *client.HTTPClient, deriver *pda.Deriver, opts simOptions) (*simReport, error) {
	if opts.Swaps < 0 {
		return nil, errors.New("swaps must not be negative")
	}

	var keys [3]domain.PublicKey
	for i := range keys {
		k, err := token.NewAddress()
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	authority, owner, stateKey := keys[0], keys[1], keys[2]

	proceedsMint, err := c.CreateMint(ctx, authority, 6)
	if err != nil {
		return nil, fmt.Errorf("create proceeds mint: %w", err)
	}
	assetMints := make(map[domain.Asset]domain.PublicKey)
	for _, a := range domain.VariantMultiAsset.Assets() {
		m, err := c.CreateMint(ctx, authority, 0)
		if err != nil {
			return nil, fmt.Errorf("create %s mint: %w", a, err)
		}
		assetMints[a] = m
	}

	ix, err := program.NewInitialize(deriver, swap.InitializeParams{
		State:        stateKey,
		Owner:        owner,
		Variant:      domain.VariantMultiAsset,
		Prices:       domain.Prices{Price: opts.Price},
		AssetMints:   assetMints,
		ProceedsMint: proceedsMint,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.Submit(ctx, ix)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	st, err := resp.State.State()
	if err != nil {
		return nil, err
	}

	for _, v := range st.Vaults {
		if _, err := c.MintTo(ctx, v.Mint, v.Address, authority, opts.Fund); err != nil {
			return nil, fmt.Errorf("fund %s: %w", v.Asset.Label(), err)
		}
	}

	if err := submit(ctx, c, "activate", func() (*program.Instruction, error) {
		return program.NewActivate(st, owner)
	}); err != nil {
		return nil, err
	}

	report := &simReport{State: stateKey}
	assets := domain.VariantMultiAsset.Assets()
	for i := 0; i < opts.Swaps; i++ {
		asset := assets[i%len(assets)]
		line, err := buy(ctx, c, st, authority, asset, opts.Price)
		if err != nil {
			return nil, fmt.Errorf("swap %d: %w", i+1, err)
		}
		report.Swaps = append(report.Swaps, *line)
	}

	dest, err := c.CreateAccount(ctx, proceedsMint, owner)
	if err != nil {
		return nil, err
	}
	ix, err = program.NewWithdrawProceeds(st, owner, dest)
	if err != nil {
		return nil, err
	}
	resp, err = c.Submit(ctx, ix)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	report.Withdrawn = resp.Receipt.Paid

	if err := submit(ctx, c, "deactivate", func() (*program.Instruction, error) {
		return program.NewDeactivate(st, owner)
	}); err != nil {
		return nil, err
	}

	if report.Vaults, err = c.Vaults(ctx, stateKey); err != nil {
		return nil, err
	}
	events, err := c.Events(ctx, stateKey)
	if err != nil {
		return nil, err
	}
	report.Events = len(events)
	return report, nil
}

func submit(ctx context.Context, c *client.HTTPClient, what string, build func() (*program.Instruction, error)) error {
	ix, err := build()
	if err != nil {
		return err
	}
	if _, err := c.Submit(ctx, ix); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// buy funds a fresh buyer with exactly one swap's worth and swaps for asset.
func buy(ctx context.Context, c *client.HTTPClient, st *domain.State, authority domain.PublicKey, asset domain.Asset, price uint64) (*swapLine, error) {
	buyer, err := token.NewAddress()
	if err != nil {
		return nil, err
	}
	vault, _ := st.Vault(asset)

	settlement, err := c.CreateAccount(ctx, st.ProceedsMint, buyer)
	if err != nil {
		return nil, err
	}
	target, err := c.CreateAccount(ctx, vault.Mint, buyer)
	if err != nil {
		return nil, err
	}
	if price > 0 {
		if _, err := c.MintTo(ctx, st.ProceedsMint, settlement, authority, price); err != nil {
			return nil, err
		}
	}

	ix, err := program.NewSwap(st, buyer, settlement, target, asset)
	if err != nil {
		return nil, err
	}
	resp, err := c.Submit(ctx, ix)
	if err != nil {
		return nil, err
	}
	return &swapLine{Buyer: buyer, Receipt: *resp.Receipt}, nil
}

// Print writes a human-readable summary.
func (r *simReport) Print(w io.Writer) error {
	fmt.Fprintf(w, "state %s\n\n", r.State)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBUYER\tASSET\tPAID\tVAULT LEFT\tPROCEEDS")
	for i, s := range r.Swaps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			i+1, s.Buyer, s.Receipt.Asset, s.Receipt.Paid, s.Receipt.VaultBalance, s.Receipt.ProceedsTotal)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nwithdrawn %d\n\n", r.Withdrawn)

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VAULT\tADDRESS\tBALANCE")
	for _, v := range r.Vaults {
		var amount uint64
		if v.Amount != nil {
			amount = *v.Amount
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", v.Label, v.Address, amount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d events journaled\n", r.Events)
	return nil
}
