package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/ironwallet/wallet"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	var rl *wallet.RateLimitError
	switch {
	case wallet.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrUnknownAction):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &rl):
		writeRateLimited(w, rl.RetryAfter, err.Error())
	case errors.Is(err, wallet.ErrInvalidPassword):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, wallet.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, wallet.ErrLocked):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, wallet.ErrWalletNotFound),
		errors.Is(err, wallet.ErrAccountNotFound),
		errors.Is(err, wallet.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, wallet.ErrWalletExists),
		errors.Is(err, wallet.ErrLastAccount):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wallet.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
