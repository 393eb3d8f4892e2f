package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, caller, question, marketType, oracleURL string, closeTime time.Time) (domain.Market, error)
	Resolve(ctx context.Context, caller string, marketID int64, winner domain.Outcome, evidenceRef string) (domain.ResolvedEvent, error)
	Info(ctx context.Context, marketID int64) (domain.MarketInfo, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) int64
}

// SeedService triggers liquidity seeding for a market.
type SeedService interface {
	Seed(ctx context.Context, marketID int64, funder string, amount int64) error
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	seeds   SeedService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. seeds may be nil when seeding is
// not configured.
func NewMarketHandler(markets MarketService, seeds SeedService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		seeds:   seeds,
		logger:  logger,
	}
}

type createMarketRequest struct {
	Question   string `json:"question"`
	MarketType string `json:"marketType"`
	OracleURL  string `json:"oracleUrl"`
	CloseTime  int64  `json:"closeTime"`  // Unix seconds
	SeedAmount int64  `json:"seedAmount"` // micro-tokens per side, 0 skips seeding
}

type resolveMarketRequest struct {
	WinningOutcome *domain.Outcome `json:"winningOutcome"`
	EvidenceRef    string          `json:"evidenceRef"`
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination, newest first.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   h.markets.Count(r.Context()),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns the read-model snapshot of a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.markets.Info(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// CreateMarket opens a new market and optionally seeds both pools.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	caller := callerAddress(r)
	m, err := h.markets.Create(r.Context(), caller, req.Question, req.MarketType,
		req.OracleURL, time.Unix(req.CloseTime, 0).UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.SeedAmount > 0 && h.seeds != nil {
		if err := h.seeds.Seed(r.Context(), m.ID, caller, req.SeedAmount); err != nil {
			// The market exists; report the partial state instead of failing
			// the creation. The seeding flow resumes on retry.
			h.logger.ErrorContext(r.Context(), "seeding after create failed",
				slog.Int64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusAccepted, map[string]any{
				"market":    m,
				"seedError": err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"market": m})
}

// ResolveMarket settles a closed market to its winning outcome.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WinningOutcome == nil {
		writeError(w, http.StatusBadRequest, "winningOutcome is required")
		return
	}

	ev, err := h.markets.Resolve(r.Context(), callerAddress(r), id, *req.WinningOutcome, req.EvidenceRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// SeedMarket retries the liquidity seeding flow for a market.
// POST /api/markets/{id}/seed
func (h *MarketHandler) SeedMarket(w http.ResponseWriter, r *http.Request) {
	if h.seeds == nil {
		writeError(w, http.StatusNotImplemented, "seeding is not configured")
		return
	}

	id, err := pathMarketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Funder string `json:"funder"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount < 0 {
		writeError(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	// Zero amount or empty funder fall back to the configured defaults.
	if err := h.seeds.Seed(r.Context(), id, req.Funder, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"})
}
