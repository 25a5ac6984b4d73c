package httputil

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/goccy/go-json"
)

// Upstream failures and timeouts carry internal call chains, so clients get these instead.
const (
	msgUpstreamUnavailable = "Restaurant search is temporarily unavailable, please try again later"
	msgTimeout             = "Looking up restaurant details took too long, please try again"
)

type ErrorResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatusFor maps an error to the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNoNearbyResults),
		errors.Is(err, apperr.ErrInsufficientResults),
		errors.Is(err, apperr.ErrInvalidParticipants),
		errors.Is(err, apperr.ErrInvalidWinner):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrEnrichmentTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, apperr.ErrExternalAPI):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single place handler errors become responses. Unmapped errors, upstream
// failures and timeouts are logged and reported without detail.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	log := logging.Ctx(r.Context())

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteError(w, status, http.StatusText(status))
		return
	}

	switch status {
	case http.StatusServiceUnavailable:
		log.Warn().Err(err).Int("status", status).Msg("upstream unavailable")
		WriteError(w, status, msgUpstreamUnavailable)
	case http.StatusRequestTimeout:
		log.Warn().Err(err).Int("status", status).Msg("request timed out")
		WriteError(w, status, msgTimeout)
	default:
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
		WriteError(w, status, err.Error())
	}
}

func BadRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ev := logging.Ctx(r.Context()).Warn().Str("reason", msg)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("bad request")
	WriteError(w, http.StatusBadRequest, msg)
}
