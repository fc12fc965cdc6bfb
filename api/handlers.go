package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jmcleod/ironwallet/protocol"
	"github.com/jmcleod/ironwallet/wallet"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports that the server is up. It says nothing about the wallet so
// unauthenticated callers learn nothing about its state.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// External dispatches a page request. The origin comes from the header
// checked by requireOrigin; an origin field in the body is ignored. Wallet
// level failures are reported in the result with status 200, the same way
// a page sees them.
func (a *API) External(w http.ResponseWriter, r *http.Request) {
	var req protocol.ExternalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Origin = originFromContext(r.Context())

	writeJSON(w, http.StatusOK, a.core.HandleExternal(r.Context(), req))
}

// Internal dispatches a wallet UI action. Requests that cannot be decoded
// into a known action are rejected at the HTTP layer; everything else is
// answered with an InternalResult and status 200.
func (a *API) Internal(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req, err := wallet.DecodeInternal(raw)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.core.HandleInternal(r.Context(), req))
}
