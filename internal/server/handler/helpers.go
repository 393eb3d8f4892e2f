package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a sentinel error onto an HTTP status and sends it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

// errorStatus maps domain sentinels onto HTTP status codes. Anything
// unrecognized is a 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrMarketNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOutcome),
		errors.Is(err, domain.ErrInvalidCloseTime):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrMarketAlreadyResolved),
		errors.Is(err, domain.ErrMarketNotYetClosed),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrNoWinnings):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrLockHeld):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts pagination and time-range parameters from the query
// string. Defaults: limit=50 (max 500), offset=0. since/until accept Unix
// seconds.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	opts := domain.ListOpts{Limit: limit, Offset: offset}
	if v := q.Get("since"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts := time.Unix(sec, 0).UTC()
			opts.Since = &ts
		}
	}
	if v := q.Get("until"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts := time.Unix(sec, 0).UTC()
			opts.Until = &ts
		}
	}
	return opts
}

// pathMarketID parses the {id} path parameter as a market id.
func pathMarketID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid market id")
	}
	return id, nil
}

// callerAddress resolves the acting wallet address: the X-Caller-Address
// header first, then the user query parameter.
func callerAddress(r *http.Request) string {
	if addr := r.Header.Get("X-Caller-Address"); addr != "" {
		return addr
	}
	return r.URL.Query().Get("user")
}
