package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PayoutService defines the claims surface the handler needs.
type PayoutService interface {
	Claimable(ctx context.Context, marketID int64, user string) (int64, error)
	Claim(ctx context.Context, marketID int64, user string) (domain.PayoutEvent, error)
	ByMarket(ctx context.Context, marketID int64) ([]domain.Payout, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.UserTotals, error)
}

// PayoutHandler serves claim and leaderboard HTTP endpoints.
type PayoutHandler struct {
	payouts PayoutService
	logger  *slog.Logger
}

// NewPayoutHandler creates a PayoutHandler.
func NewPayoutHandler(payouts PayoutService, logger *slog.Logger) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, logger: logger}
}

// GetClaimable previews the payout a user could claim, without claiming.
// GET /api/markets/{id}/claimable?user=0x...
func (h *PayoutHandler) GetClaimable(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := callerAddress(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "caller address is required")
		return
	}

	amount, err := h.payouts.Claimable(r.Context(), id, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": id,
		"user":     user,
		"amount":   amount,
	})
}

// Claim pays out the caller's winning stake on a resolved market.
// POST /api/markets/{id}/claims
func (h *PayoutHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := callerAddress(r)
	if user == "" {
		writeError(w, http.StatusBadRequest, "caller address is required")
		return
	}

	ev, err := h.payouts.Claim(r.Context(), id, user)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// ListPayouts returns completed claims for a market in claim order.
// GET /api/markets/{id}/payouts
func (h *PayoutHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payouts, err := h.payouts.ByMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payouts": payouts})
}

// Leaderboard returns the top users by total claimed.
// GET /api/leaderboard?limit=20
func (h *PayoutHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	totals, err := h.payouts.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": totals})
}
