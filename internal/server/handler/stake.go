package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// StakeService defines the staking surface the handler needs.
type StakeService interface {
	Place(ctx context.Context, user string, marketID int64, outcome domain.Outcome, amount int64) (domain.StakeEvent, error)
	ByMarket(ctx context.Context, marketID int64) ([]domain.Stake, error)
	ByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Stake, error)
	UserStake(ctx context.Context, marketID int64, user string, outcome domain.Outcome) (int64, error)
}

// StakeHandler serves staking HTTP endpoints.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{stakes: stakes, logger: logger}
}

type placeStakeRequest struct {
	Outcome *domain.Outcome `json:"outcome"`
	Amount  int64           `json:"amount"` // micro-tokens
}

// PlaceStake stakes tokens on one side of a market.
// POST /api/markets/{id}/stakes
func (h *StakeHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
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

	var req placeStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}

	ev, err := h.stakes.Place(r.Context(), user, id, *req.Outcome, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// ListMarketStakes returns every non-zero stake balance on a market.
// GET /api/markets/{id}/stakes
func (h *StakeHandler) ListMarketStakes(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stakes, err := h.stakes.ByMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stakes": stakes})
}

// GetUserStake returns one user's balance on a single side of a market.
// GET /api/markets/{id}/stakes/{user}?outcome=1
func (h *StakeHandler) GetUserStake(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := r.PathValue("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user address")
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("outcome"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome query parameter is required")
		return
	}
	outcome := domain.Outcome(n)

	amount, err := h.stakes.UserStake(r.Context(), id, user, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketId": id,
		"user":     user,
		"outcome":  outcome,
		"amount":   amount,
	})
}

// ListUserStakes returns a user's stake balances across markets.
// GET /api/users/{user}/stakes
func (h *StakeHandler) ListUserStakes(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user address")
		return
	}

	stakes, err := h.stakes.ByUser(r.Context(), user, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list user stakes failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stakes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stakes": stakes})
}
