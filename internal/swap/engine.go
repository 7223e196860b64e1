// Package swap implements the custodial swap engine: a state record that
// governs a set of asset vaults and a proceeds vault, and the instructions
// that price, toggle, trade against and drain them.
//
// The engine holds no locks. Each instruction runs inside one
// storage.Ledger unit of work, so its transfer legs either all apply or
// none do, and every rejection leaves the ledger unchanged.
package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"sai-swap/internal/domain"
	"sai-swap/internal/observability"
	"sai-swap/internal/storage"
)

const logModule = "swap"

// Instruction names, shared with metrics and the wire codec.
const (
	InstrInitialize       = "initialize"
	InstrUpdatePrice      = "update_price"
	InstrActivate         = "activate"
	InstrDeactivate       = "deactivate"
	InstrSwap             = "swap"
	InstrWithdrawProceeds = "withdraw_proceeds"
)

// SwapUnits is the number of base units of the selected asset a buyer receives per swap.
const SwapUnits uint64 = 1

// Deriver maps (state identity, label) to a deterministic vault address.
type Deriver interface {
	VaultAddress(state domain.PublicKey, label string) (domain.PublicKey, uint8, error)
}

// EventSink receives an event for every applied instruction.
type EventSink interface {
	Insert(ctx context.Context, e *domain.Event) error
}

// Engine executes swap instructions against a ledger.
type Engine struct {
	ledger  storage.Ledger
	deriver Deriver
	events  EventSink
	metrics *observability.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventSink journals applied instructions to sink.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.events = sink }
}

// WithMetrics records instruction outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over ledger, deriving vault addresses with deriver.
func NewEngine(ledger storage.Ledger, deriver Deriver, opts ...Option) *Engine {
	e := &Engine{
		ledger:  ledger,
		deriver: deriver,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitializeParams describes a new swap configuration.
type InitializeParams struct {
	State        domain.PublicKey
	Owner        domain.PublicKey
	Variant      domain.Variant
	Prices       domain.Prices
	AssetMints   map[domain.Asset]domain.PublicKey
	ProceedsMint domain.PublicKey
}

// Initialize creates the state record and provisions its vaults at zero balance.
func (e *Engine) Initialize(ctx context.Context, p InitializeParams) (st *domain.State, err error) {
	start := time.Now()
	defer func() { e.observe(InstrInitialize, p.State, start, err) }()

	if err := requireSigner(p.Owner); err != nil {
		return nil, err
	}
	if p.State.IsZero() {
		return nil, fmt.Errorf("%w: missing state key", ErrInvalidAccount)
	}
	if !p.Variant.IsValid() {
		return nil, fmt.Errorf("%w: unknown variant %d", ErrInvalidAccount, p.Variant)
	}
	if err := validatePrices(p.Variant, p.Prices); err != nil {
		return nil, err
	}

	st, err = e.newState(p)
	if err != nil {
		return nil, err
	}

	err = e.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		if _, err := tx.GetState(ctx, st.Key); err == nil {
			return fmt.Errorf("%w: state %s", ErrAlreadyInitialized, st.Key)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get state: %w", err)
		}

		if err := provisionVault(ctx, tx, st.ProceedsVault, st.ProceedsMint, "proceeds vault"); err != nil {
			return err
		}
		for _, v := range st.Vaults {
			if err := provisionVault(ctx, tx, v.Address, v.Mint, v.Asset.Label()); err != nil {
				return err
			}
		}

		if err := tx.InsertState(ctx, st); err != nil {
			return translate(err, "insert state")
		}

		created, err := tx.GetState(ctx, st.Key)
		if err != nil {
			return fmt.Errorf("reload state: %w", err)
		}
		st = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, &domain.Event{
		StateKey: st.Key,
		Kind:     domain.EventInitialized,
		Actor:    p.Owner,
		Price:    st.Price,
	})
	return st, nil
}

// newState derives every vault address and assembles the record.
func (e *Engine) newState(p InitializeParams) (*domain.State, error) {
	st := &domain.State{
		Key:          p.State,
		Variant:      p.Variant,
		Owner:        p.Owner,
		Active:       false,
		Price:        p.Prices.Price,
		ReversePrice: p.Prices.ReversePrice,
		ProceedsMint: p.ProceedsMint,
	}
	if p.ProceedsMint.IsZero() {
		return nil, fmt.Errorf("%w: missing proceeds mint", ErrInvalidAccount)
	}

	addr, bump, err := e.deriver.VaultAddress(p.State, domain.LabelProceedsVault)
	if err != nil {
		return nil, fmt.Errorf("derive proceeds vault: %w", err)
	}
	st.ProceedsVault, st.ProceedsBump = addr, bump

	for _, asset := range p.Variant.Assets() {
		mint, ok := p.AssetMints[asset]
		if !ok || mint.IsZero() {
			return nil, fmt.Errorf("%w: missing mint for %s", ErrInvalidAccount, asset)
		}

		addr, bump, err := e.deriver.VaultAddress(p.State, asset.Label())
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", asset.Label(), err)
		}
		st.Vaults = append(st.Vaults, domain.VaultRef{
			Asset:   asset,
			Mint:    mint,
			Address: addr,
			Bump:    bump,
		})
	}

	for asset := range p.AssetMints {
		if !p.Variant.Supports(asset) {
			return nil, fmt.Errorf("%w: %s is not tradable in a %s configuration", ErrUnknownAsset, asset, p.Variant)
		}
	}

	return st, nil
}

// provisionVault creates a custodial token account that owns itself.
func provisionVault(ctx context.Context, tx storage.LedgerTx, addr, mint domain.PublicKey, what string) error {
	if _, err := tx.GetMint(ctx, mint); err != nil {
		return translate(err, what+" mint")
	}
	err := tx.InsertTokenAccount(ctx, &domain.TokenAccount{
		Address: addr,
		Mint:    mint,
		Owner:   addr,
	})
	return translate(err, what)
}

// UpdatePrice overwrites the price fields. Allowed whether or not the state is active.
func (e *Engine) UpdatePrice(ctx context.Context, key, signer domain.PublicKey, prices domain.Prices) (st *domain.State, err error) {
	start := time.Now()
	defer func() { e.observe(InstrUpdatePrice, key, start, err) }()

	st, err = e.mutateState(ctx, key, func(s *domain.State) error {
		if err := requireOwner(s, signer); err != nil {
			return err
		}
		if err := validatePrices(s.Variant, prices); err != nil {
			return err
		}
		s.Price = prices.Price
		s.ReversePrice = prices.ReversePrice
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, &domain.Event{
		StateKey: key,
		Kind:     domain.EventPriceUpdated,
		Actor:    signer,
		Price:    st.Price,
	})
	return st, nil
}

// Activate enables swaps. A second Activate is rejected with ErrAlreadyActive.
func (e *Engine) Activate(ctx context.Context, key, signer domain.PublicKey) (st *domain.State, err error) {
	start := time.Now()
	defer func() { e.observe(InstrActivate, key, start, err) }()

	st, err = e.mutateState(ctx, key, func(s *domain.State) error {
		if err := requireOwner(s, signer); err != nil {
			return err
		}
		if s.Active {
			return ErrAlreadyActive
		}
		s.Active = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, &domain.Event{StateKey: key, Kind: domain.EventActivated, Actor: signer, Price: st.Price})
	return st, nil
}

// Deactivate disables swaps. Deactivating an inactive state is rejected with ErrAlreadyDeactivated.
func (e *Engine) Deactivate(ctx context.Context, key, signer domain.PublicKey) (st *domain.State, err error) {
	start := time.Now()
	defer func() { e.observe(InstrDeactivate, key, start, err) }()

	st, err = e.mutateState(ctx, key, func(s *domain.State) error {
		if err := requireOwner(s, signer); err != nil {
			return err
		}
		if !s.Active {
			return ErrAlreadyDeactivated
		}
		s.Active = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, &domain.Event{StateKey: key, Kind: domain.EventDeactivated, Actor: signer, Price: st.Price})
	return st, nil
}

// mutateState loads a state, applies fn and writes it back in one unit of work.
func (e *Engine) mutateState(ctx context.Context, key domain.PublicKey, fn func(s *domain.State) error) (*domain.State, error) {
	var out *domain.State

	err := e.ledger.Update(ctx, func(tx storage.LedgerTx) error {
		st, err := loadState(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		if err := tx.UpdateState(ctx, st); err != nil {
			return translate(err, "update state")
		}
		out, err = tx.GetState(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// loadState reads a state record, mapping absence to ErrStateNotFound.
func loadState(ctx context.Context, r storage.LedgerReader, key domain.PublicKey) (*domain.State, error) {
	st, err := r.GetState(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return st, nil
}

// loadAccount reads a token account, mapping absence to ErrInvalidAccount.
func loadAccount(ctx context.Context, r storage.LedgerReader, addr domain.PublicKey, what string) (*domain.TokenAccount, error) {
	acct, err := r.GetTokenAccount(ctx, addr)
	if err != nil {
		return nil, translate(err, what)
	}
	return acct, nil
}

// State returns the state record for key.
func (e *Engine) State(ctx context.Context, key domain.PublicKey) (*domain.State, error) {
	var st *domain.State
	err := e.ledger.View(ctx, func(r storage.LedgerReader) error {
		var err error
		st, err = loadState(ctx, r, key)
		return err
	})
	return st, err
}

// Vaults returns the current balance of every vault of a state, proceeds vault last.
func (e *Engine) Vaults(ctx context.Context, key domain.PublicKey) ([]domain.VaultBalance, error) {
	var out []domain.VaultBalance

	err := e.ledger.View(ctx, func(r storage.LedgerReader) error {
		st, err := loadState(ctx, r, key)
		if err != nil {
			return err
		}

		for _, v := range st.Vaults {
			acct, err := loadAccount(ctx, r, v.Address, v.Asset.Label())
			if err != nil {
				return err
			}
			out = append(out, domain.VaultBalance{
				Asset:   v.Asset,
				Label:   v.Asset.Label(),
				Address: v.Address,
				Mint:    v.Mint,
				Amount:  acct.Amount,
			})
		}

		proceeds, err := loadAccount(ctx, r, st.ProceedsVault, domain.LabelProceedsVault)
		if err != nil {
			return err
		}
		out = append(out, domain.VaultBalance{
			Label:   domain.LabelProceedsVault,
			Address: st.ProceedsVault,
			Mint:    st.ProceedsMint,
			Amount:  proceeds.Amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// observe logs and records the outcome of one instruction.
func (e *Engine) observe(instruction string, key domain.PublicKey, start time.Time, err error) {
	code := Code(err)
	e.metrics.RecordInstruction(instruction, code, time.Since(start))

	fields := log.Fields{"module": logModule, "instruction": instruction, "state": key.String(), "code": code}
	switch {
	case err == nil:
		log.WithFields(fields).Debug("instruction applied")
	case IsRejection(err):
		log.WithFields(fields).WithError(err).Info("instruction rejected")
	default:
		log.WithFields(fields).WithError(err).Error("instruction failed")
	}
}

// emit journals an applied instruction. The instruction is already committed,
// so a journal failure is logged and counted but not returned.
func (e *Engine) emit(ctx context.Context, ev *domain.Event) {
	if e.events == nil {
		return
	}

	ev.EventID = newEventID()
	ev.TimestampMs = e.now().UnixMilli()

	err := e.events.Insert(ctx, ev)
	e.metrics.RecordJournal(err)
	if err != nil {
		log.WithFields(log.Fields{"module": logModule, "state": ev.StateKey.String(), "kind": ev.Kind}).
			WithError(err).Warn("failed to journal event")
	}
}

// newEventID returns a time-ordered UUID so journal ids sort by creation.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
