package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakehouse/internal/domain"
)

type stubMarkets struct {
	market     domain.MarketInfo
	marketErr  error
	resolveErr error
	created    []string
}

func (s *stubMarkets) Create(_ context.Context, caller, question, marketType, oracleURL string, closeTime time.Time) (domain.Market, error) {
	s.created = append(s.created, question)
	return domain.Market{ID: 1, Question: question, CloseTime: closeTime}, nil
}

func (s *stubMarkets) Resolve(context.Context, string, int64, domain.Outcome, string) (domain.ResolvedEvent, error) {
	if s.resolveErr != nil {
		return domain.ResolvedEvent{}, s.resolveErr
	}
	return domain.ResolvedEvent{MarketID: 1, WinningOutcome: domain.OutcomeYes}, nil
}

func (s *stubMarkets) Info(context.Context, int64) (domain.MarketInfo, error) {
	return s.market, s.marketErr
}

func (s *stubMarkets) List(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return []domain.Market{{ID: 1}}, nil
}

func (s *stubMarkets) Count(context.Context) int64 { return 1 }

type stubStakes struct {
	placeErr error
	lastUser string
	balance  int64
}

func (s *stubStakes) Place(_ context.Context, user string, marketID int64, outcome domain.Outcome, amount int64) (domain.StakeEvent, error) {
	if s.placeErr != nil {
		return domain.StakeEvent{}, s.placeErr
	}
	s.lastUser = user
	return domain.StakeEvent{MarketID: marketID, User: user, Outcome: outcome, Amount: amount, YesCents: 60, NoCents: 40}, nil
}

func (s *stubStakes) ByMarket(context.Context, int64) ([]domain.Stake, error) { return nil, nil }

func (s *stubStakes) ByUser(context.Context, string, domain.ListOpts) ([]domain.Stake, error) {
	return nil, nil
}

func (s *stubStakes) UserStake(_ context.Context, _ int64, user string, _ domain.Outcome) (int64, error) {
	s.lastUser = user
	return s.balance, nil
}

type stubPayouts struct {
	claimErr  error
	claimable int64
}

func (s *stubPayouts) Claimable(context.Context, int64, string) (int64, error) {
	return s.claimable, nil
}

func (s *stubPayouts) Claim(_ context.Context, marketID int64, user string) (domain.PayoutEvent, error) {
	if s.claimErr != nil {
		return domain.PayoutEvent{}, s.claimErr
	}
	return domain.PayoutEvent{MarketID: marketID, User: user, Amount: s.claimable}, nil
}

func (s *stubPayouts) ByMarket(context.Context, int64) ([]domain.Payout, error) { return nil, nil }

func (s *stubPayouts) Leaderboard(context.Context, int) ([]domain.UserTotals, error) {
	return []domain.UserTotals{{User: "0xalice", TotalClaimed: 10}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serve runs a request through a mux so Go's path parameters are populated.
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPlaceStakeCreated(t *testing.T) {
	stakes := &stubStakes{}
	h := NewStakeHandler(stakes, testLogger())

	body := strings.NewReader(`{"outcome":1,"amount":2000000}`)
	req := httptest.NewRequest(http.MethodPost, "/api/markets/7/stakes", body)
	req.Header.Set("X-Caller-Address", "0xAlice")

	rec := serve("POST /api/markets/{id}/stakes", h.PlaceStake, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ev domain.StakeEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, int64(7), ev.MarketID)
	assert.Equal(t, int64(60), ev.YesCents)
	assert.Equal(t, "0xAlice", stakes.lastUser)
}

func TestPlaceStakeValidation(t *testing.T) {
	h := NewStakeHandler(&stubStakes{}, testLogger())

	// Missing caller.
	req := httptest.NewRequest(http.MethodPost, "/api/markets/7/stakes", strings.NewReader(`{"outcome":1,"amount":1}`))
	rec := serve("POST /api/markets/{id}/stakes", h.PlaceStake, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing outcome.
	req = httptest.NewRequest(http.MethodPost, "/api/markets/7/stakes", strings.NewReader(`{"amount":1}`))
	req.Header.Set("X-Caller-Address", "0xAlice")
	rec = serve("POST /api/markets/{id}/stakes", h.PlaceStake, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bad market id.
	req = httptest.NewRequest(http.MethodPost, "/api/markets/zero/stakes", strings.NewReader(`{"outcome":1,"amount":1}`))
	req.Header.Set("X-Caller-Address", "0xAlice")
	rec = serve("POST /api/markets/{id}/stakes", h.PlaceStake, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceStakeDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrMarketClosed, http.StatusConflict},
		{domain.ErrInsufficientLiquidity, http.StatusConflict},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrMarketNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		h := NewStakeHandler(&stubStakes{placeErr: tc.err}, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/api/markets/7/stakes", strings.NewReader(`{"outcome":0,"amount":1000000}`))
		req.Header.Set("X-Caller-Address", "0xBob")
		rec := serve("POST /api/markets/{id}/stakes", h.PlaceStake, req)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}

func TestGetUserStake(t *testing.T) {
	stakes := &stubStakes{balance: 750_000}
	h := NewStakeHandler(stakes, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7/stakes/0xAlice?outcome=1", nil)
	rec := serve("GET /api/markets/{id}/stakes/{user}", h.GetUserStake, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(750_000), resp["amount"])
	assert.Equal(t, "0xAlice", stakes.lastUser)
}

func TestGetUserStakeRequiresOutcome(t *testing.T) {
	h := NewStakeHandler(&stubStakes{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/markets/7/stakes/0xAlice", nil)
	rec := serve("GET /api/markets/{id}/stakes/{user}", h.GetUserStake, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMarketNotFound(t *testing.T) {
	h := NewMarketHandler(&stubMarkets{marketErr: domain.ErrMarketNotFound}, nil, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/markets/99", nil)
	rec := serve("GET /api/markets/{id}", h.GetMarket, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMarket(t *testing.T) {
	markets := &stubMarkets{}
	h := NewMarketHandler(markets, nil, testLogger())

	body := strings.NewReader(`{"question":"Will it ship?","closeTime":1700003600}`)
	req := httptest.NewRequest(http.MethodPost, "/api/markets", body)
	req.Header.Set("X-Caller-Address", "0xOwner")

	rec := serve("POST /api/markets", h.CreateMarket, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"Will it ship?"}, markets.created)
}

func TestResolveRequiresOutcome(t *testing.T) {
	h := NewMarketHandler(&stubMarkets{}, nil, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/markets/1/resolve", strings.NewReader(`{}`))
	rec := serve("POST /api/markets/{id}/resolve", h.ResolveMarket, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveUnauthorized(t *testing.T) {
	h := NewMarketHandler(&stubMarkets{resolveErr: domain.ErrUnauthorized}, nil, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/markets/1/resolve", strings.NewReader(`{"winningOutcome":1}`))
	rec := serve("POST /api/markets/{id}/resolve", h.ResolveMarket, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClaimConflictOnSecondAttempt(t *testing.T) {
	h := NewPayoutHandler(&stubPayouts{claimErr: domain.ErrNoWinnings}, testLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/markets/1/claims?user=0xAlice", nil)
	rec := serve("POST /api/markets/{id}/claims", h.Claim, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaimableEndpoint(t *testing.T) {
	h := NewPayoutHandler(&stubPayouts{claimable: 500_000}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/markets/1/claimable?user=0xAlice", nil)
	rec := serve("GET /api/markets/{id}/claimable", h.GetClaimable, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(500_000), resp["amount"])
}
