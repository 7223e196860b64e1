package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"sai-swap/internal/program"
	"sai-swap/internal/storage"
	"sai-swap/internal/swap"
	"sai-swap/internal/token"
)

// API-only error codes.
const (
	CodeBadRequest    = "BadRequest"
	CodeNotFound      = "NotFound"
	CodeAlreadyExists = "AlreadyExists"
)

var errBadRequest = errors.New("bad request")

// classify maps err to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, token.ErrMintAuthority):
		return http.StatusForbidden, swap.CodeUnauthorized
	}

	code := program.Code(err)
	switch code {
	case program.CodeInvalidInstruction, swap.CodeInvalidAccount, swap.CodeUnknownAsset,
		swap.CodeInvalidPrice, swap.CodeOverflow:
		return http.StatusBadRequest, code
	case swap.CodeUnauthorized:
		return http.StatusForbidden, code
	case swap.CodeStateNotFound:
		return http.StatusNotFound, code
	case swap.CodeAlreadyInitialized, swap.CodeAlreadyActive, swap.CodeAlreadyDeactivated,
		swap.CodeInvalidStateTransition, swap.CodeInactive, swap.CodeInsufficientFunds:
		return http.StatusConflict, code
	}

	// Raw storage errors only reach here from reads and dev endpoints.
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, storage.ErrInsufficientBalance):
		return http.StatusConflict, swap.CodeInsufficientFunds
	case errors.Is(err, storage.ErrMintMismatch), errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, swap.CodeInvalidAccount
	case errors.Is(err, storage.ErrOverflow):
		return http.StatusBadRequest, swap.CodeOverflow
	}
	return http.StatusInternalServerError, swap.CodeInternal
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.WithFields(log.Fields{"module": logModule, "path": r.URL.Path}).WithError(err).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("module", logModule).WithError(err).Debug("write response")
	}
}
