package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"sai-swap/internal/domain"
	"sai-swap/internal/token"
)

const maxBodyBytes = 64 << 10

// SubmitInstruction applies one raw instruction.
func (s *Server) SubmitInstruction(w http.ResponseWriter, r *http.Request) {
	var req InstructionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ix, err := req.Instruction()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	res, err := s.processor.Process(r.Context(), ix)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, InstructionResponse{
		Instruction: res.Instruction,
		State:       newStateView(res.State),
		Receipt:     newReceiptView(res.Receipt),
	})
}

// GetState returns a state record.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.engine.State(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(st))
}

// GetVaults returns the balance of every vault of a state, proceeds vault last.
func (s *Server) GetVaults(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}
	balances, err := s.engine.Vaults(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVaultViews(balances))
}

// GetEvents returns the journal of a state. Optional from/to (unix ms, inclusive)
// narrow the range.
func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r, "key")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var events []*domain.Event
	if q := r.URL.Query(); q.Has("from") || q.Has("to") {
		var from, to int64
		if from, err = queryInt(r, "from", 0); err == nil {
			to, err = queryInt(r, "to", math.MaxInt64)
		}
		if err == nil {
			events, err = s.events.GetByTimeRange(r.Context(), key, from, to)
		}
	} else {
		events, err = s.events.GetByStateKey(r.Context(), key)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]EventView, len(events))
	for i, e := range events {
		out[i] = newEventView(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAccount returns a token account.
func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathKey(r, "address")
	if err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := s.tokens.Account(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(acct))
}

// CreateMint registers a mint. Dev mode only.
func (s *Server) CreateMint(w http.ResponseWriter, r *http.Request) {
	var req CreateMintRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := addressOrNew(req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	authority, err := parseField("authority", req.Authority)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := s.tokens.CreateMint(r.Context(), addr, authority, req.Decimals); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddressResponse{Address: addr})
}

// CreateAccount opens a token account. Dev mode only.
func (s *Server) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := addressOrNew(req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mint, err := parseField("mint", req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner, err := parseField("owner", req.Owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := s.tokens.CreateAccount(r.Context(), addr, mint, owner); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddressResponse{Address: addr})
}

// MintTo issues supply into an account. Dev mode only.
func (s *Server) MintTo(w http.ResponseWriter, r *http.Request) {
	var req MintToRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mint, err := parseField("mint", req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dest, err := parseField("destination", req.Destination)
	if err != nil {
		writeError(w, r, err)
		return
	}
	authority, err := parseField("authority", req.Authority)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.tokens.MintTo(r.Context(), mint, dest, authority, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	acct, err := s.tokens.Account(r.Context(), dest)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(acct))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func pathKey(r *http.Request, param string) (domain.PublicKey, error) {
	return parseField(param, chi.URLParam(r, param))
}

func parseField(name, value string) (domain.PublicKey, error) {
	pk, err := domain.ParsePublicKey(value)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return pk, nil
}

func addressOrNew(value string) (domain.PublicKey, error) {
	if value == "" {
		return token.NewAddress()
	}
	return parseField("address", value)
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return v, nil
}
