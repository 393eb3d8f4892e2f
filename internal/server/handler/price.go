package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// PriceService defines the pricing surface the handler needs.
type PriceService interface {
	Current(ctx context.Context, marketID int64) (domain.Prices, error)
	History(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.PricePoint, error)
}

// PriceHandler serves implied prices and the price timeline.
type PriceHandler struct {
	prices PriceService
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceService) *PriceHandler {
	return &PriceHandler{prices: prices}
}

// GetPrices returns the current implied price pair in cents.
// GET /api/markets/{id}/prices
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.prices.Current(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":      id,
		"yesPriceCents": p.YesCents,
		"noPriceCents":  p.NoCents,
	})
}

// GetHistory returns the price timeline for a market, oldest first.
// GET /api/markets/{id}/history?limit=100&since=1700000000
func (h *PriceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.prices.History(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": points})
}
