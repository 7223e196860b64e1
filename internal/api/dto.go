package api

import (
	"encoding/base64"
	"fmt"

	"sai-swap/internal/domain"
	"sai-swap/internal/program"
)

// InstructionRequest is the body of POST /v1/instructions.
type InstructionRequest struct {
	Data     string   `json:"data"` // base64
	Accounts []string `json:"accounts"`
	Signers  []string `json:"signers"`
}

// NewInstructionRequest encodes ix for the wire.
func NewInstructionRequest(ix *program.Instruction) InstructionRequest {
	req := InstructionRequest{
		Data:     base64.StdEncoding.EncodeToString(ix.Data),
		Accounts: make([]string, len(ix.Accounts)),
		Signers:  make([]string, len(ix.Signers)),
	}
	for i, a := range ix.Accounts {
		req.Accounts[i] = a.String()
	}
	for i, s := range ix.Signers {
		req.Signers[i] = s.String()
	}
	return req
}

// Instruction decodes the request.
func (r InstructionRequest) Instruction() (*program.Instruction, error) {
	data, err := base64.StdEncoding.DecodeString(r.Data)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}
	accounts, err := parseKeys("accounts", r.Accounts)
	if err != nil {
		return nil, err
	}
	signers, err := parseKeys("signers", r.Signers)
	if err != nil {
		return nil, err
	}
	return &program.Instruction{Data: data, Accounts: accounts, Signers: signers}, nil
}

func parseKeys(field string, in []string) ([]domain.PublicKey, error) {
	out := make([]domain.PublicKey, len(in))
	for i, s := range in {
		pk, err := domain.ParsePublicKey(s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		out[i] = pk
	}
	return out, nil
}

// InstructionResponse is the result of an applied instruction.
type InstructionResponse struct {
	Instruction string       `json:"instruction"`
	State       *StateView   `json:"state,omitempty"`
	Receipt     *ReceiptView `json:"receipt,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateView is the JSON form of a state record.
type StateView struct {
	Key           domain.PublicKey `json:"key"`
	Variant       string           `json:"variant"`
	Owner         domain.PublicKey `json:"owner"`
	Active        bool             `json:"active"`
	Price         uint64           `json:"price"`
	ReversePrice  uint64           `json:"reverse_price"`
	ProceedsMint  domain.PublicKey `json:"proceeds_mint"`
	ProceedsVault domain.PublicKey `json:"proceeds_vault"`
	Vaults        []VaultView      `json:"vaults"`
	CreatedAt     int64            `json:"created_at"`
	UpdatedAt     int64            `json:"updated_at"`
}

// VaultView is one tradable-asset vault. Amount is only set by the vaults endpoint.
type VaultView struct {
	Asset   string           `json:"asset,omitempty"` // empty for the proceeds vault
	Label   string           `json:"label"`
	Address domain.PublicKey `json:"address"`
	Mint    domain.PublicKey `json:"mint"`
	Amount  *uint64          `json:"amount,omitempty"`
}

// ReceiptView reports the balances a swap or withdrawal touched.
type ReceiptView struct {
	Asset         string `json:"asset,omitempty"`
	Paid          uint64 `json:"paid"`
	Received      uint64 `json:"received"`
	SourceBalance uint64 `json:"source_balance"`
	VaultBalance  uint64 `json:"vault_balance"`
	ProceedsTotal uint64 `json:"proceeds_total"`
	DestBalance   uint64 `json:"dest_balance"`
}

// AccountView is a token account.
type AccountView struct {
	Address domain.PublicKey `json:"address"`
	Mint    domain.PublicKey `json:"mint"`
	Owner   domain.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// EventView is one journal entry, as served by the events endpoint and the stream.
type EventView struct {
	ID          string           `json:"id"`
	StateKey    domain.PublicKey `json:"state_key"`
	Kind        string           `json:"kind"`
	Actor       domain.PublicKey `json:"actor"`
	Asset       string           `json:"asset,omitempty"`
	Amount      uint64           `json:"amount"`
	Price       uint64           `json:"price"`
	TimestampMs int64            `json:"timestamp_ms"`
}

// CreateMintRequest is the body of POST /v1/dev/mints. Address is generated when empty.
type CreateMintRequest struct {
	Address   string `json:"address,omitempty"`
	Authority string `json:"authority"`
	Decimals  uint8  `json:"decimals"`
}

// CreateAccountRequest is the body of POST /v1/dev/accounts. Address is generated when empty.
type CreateAccountRequest struct {
	Address string `json:"address,omitempty"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
}

// MintToRequest is the body of POST /v1/dev/mint-to.
type MintToRequest struct {
	Mint        string `json:"mint"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Amount      uint64 `json:"amount"`
}

// AddressResponse returns the address of a created mint or account.
type AddressResponse struct {
	Address domain.PublicKey `json:"address"`
}

func newStateView(st *domain.State) *StateView {
	if st == nil {
		return nil
	}
	v := &StateView{
		Key:           st.Key,
		Variant:       st.Variant.String(),
		Owner:         st.Owner,
		Active:        st.Active,
		Price:         st.Price,
		ReversePrice:  st.ReversePrice,
		ProceedsMint:  st.ProceedsMint,
		ProceedsVault: st.ProceedsVault,
		Vaults:        make([]VaultView, 0, len(st.Vaults)),
		CreatedAt:     st.CreatedAt,
		UpdatedAt:     st.UpdatedAt,
	}
	for _, ref := range st.Vaults {
		v.Vaults = append(v.Vaults, VaultView{
			Asset:   ref.Asset.String(),
			Label:   ref.Asset.Label(),
			Address: ref.Address,
			Mint:    ref.Mint,
		})
	}
	return v
}

func newReceiptView(r *domain.Receipt) *ReceiptView {
	if r == nil {
		return nil
	}
	v := &ReceiptView{
		Paid:          r.Paid,
		Received:      r.Received,
		SourceBalance: r.SourceBalance,
		VaultBalance:  r.VaultBalance,
		ProceedsTotal: r.ProceedsTotal,
		DestBalance:   r.DestBalance,
	}
	if r.Received > 0 {
		v.Asset = r.Asset.String()
	}
	return v
}

func newVaultViews(balances []domain.VaultBalance) []VaultView {
	out := make([]VaultView, len(balances))
	for i, b := range balances {
		amount := b.Amount
		asset := b.Asset.String()
		if b.Label == domain.LabelProceedsVault {
			asset = ""
		}
		out[i] = VaultView{
			Asset:   asset,
			Label:   b.Label,
			Address: b.Address,
			Mint:    b.Mint,
			Amount:  &amount,
		}
	}
	return out
}

func newAccountView(a *domain.TokenAccount) AccountView {
	return AccountView{Address: a.Address, Mint: a.Mint, Owner: a.Owner, Amount: a.Amount}
}

func newEventView(e *domain.Event) EventView {
	return EventView{
		ID:          e.EventID,
		StateKey:    e.StateKey,
		Kind:        e.Kind.String(),
		Actor:       e.Actor,
		Asset:       e.Asset,
		Amount:      e.Amount,
		Price:       e.Price,
		TimestampMs: e.TimestampMs,
	}
}

// State converts the view back to a state record so clients can build
// instructions against it.
func (v *StateView) State() (*domain.State, error) {
	variant, ok := domain.ParseVariant(v.Variant)
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", v.Variant)
	}
	st := &domain.State{
		Key:           v.Key,
		Variant:       variant,
		Owner:         v.Owner,
		Active:        v.Active,
		Price:         v.Price,
		ReversePrice:  v.ReversePrice,
		ProceedsMint:  v.ProceedsMint,
		ProceedsVault: v.ProceedsVault,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
	for _, vault := range v.Vaults {
		asset, ok := domain.ParseAssetName(vault.Asset)
		if !ok {
			return nil, fmt.Errorf("unknown asset %q", vault.Asset)
		}
		st.Vaults = append(st.Vaults, domain.VaultRef{Asset: asset, Mint: vault.Mint, Address: vault.Address})
	}
	return st, nil
}
