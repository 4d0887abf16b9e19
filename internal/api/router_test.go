package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wqlab/screener/internal/api/handlers"
	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/feed"
	"github.com/wqlab/screener/pkg/logger"
)

// stubEngine serves canned state to the handlers.
type stubEngine struct {
	results []contracts.ScreeningResult
	records []contracts.RebalanceRecord
	pf      *contracts.Portfolio
}

func (s *stubEngine) Results() []contracts.ScreeningResult { return s.results }
func (s *stubEngine) Records() []contracts.RebalanceRecord { return s.records }

func (s *stubEngine) PortfolioSnapshot() contracts.PortfolioSnapshot { return s.pf.Snapshot() }

func newTestRouter(engine *stubEngine, book *feed.PriceBook) http.Handler {
	h := handlers.NewEngineHandler(engine, book, logger.NewNop())
	return NewRouter(h, logger.NewNop())
}

func seededEngine() *stubEngine {
	day := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	pf := contracts.NewPortfolio(1_000_000)
	pf.Positions["600001"] = &contracts.Position{
		Code: "600001", Shares: 800, AvgCost: 12.5, MarketValue: 10_400,
	}
	pf.Cash -= 10_000
	pf.Revalue()

	engine := &stubEngine{pf: pf}
	for i := 0; i < 3; i++ {
		engine.results = append(engine.results, contracts.ScreeningResult{
			Date:         day.AddDate(0, 0, i),
			UniverseSize: 3000 + i,
			Candidates:   []contracts.Candidate{{Code: "600001", Score: 5}},
		})
		engine.records = append(engine.records, contracts.RebalanceRecord{
			Date:          day.AddDate(0, 0, i),
			SelectedCodes: []string{"600001"},
		})
	}
	return engine
}

func doGet(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	rec, body := doGet(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetResults_Limit(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	rec, body := doGet(t, router, "/api/v1/screening/results?limit=2")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])

	results := body["results"].([]interface{})
	last := results[1].(map[string]interface{})
	assert.Equal(t, float64(3002), last["universe_size"])
}

func TestGetLatestResult(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	rec, body := doGet(t, router, "/api/v1/screening/results/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3002), body["universe_size"])
}

func TestGetLatestResult_Empty(t *testing.T) {
	router := newTestRouter(&stubEngine{pf: contracts.NewPortfolio(0)}, nil)

	rec, _ := doGet(t, router, "/api/v1/screening/results/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRecords(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	rec, body := doGet(t, router, "/api/v1/rebalance/records")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["count"])
}

func TestGetPortfolio(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	rec, body := doGet(t, router, "/api/v1/portfolio")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1_000_400, body["total_value"].(float64), 1e-6)

	positions := body["positions"].([]interface{})
	require.Len(t, positions, 1)
}

func TestGetQuotes(t *testing.T) {
	book := feed.NewPriceBook()
	book.Update(feed.Quote{Code: "600001", Price: 13.1, Time: time.Now()})

	router := newTestRouter(seededEngine(), book)

	rec, body := doGet(t, router, "/api/v1/quotes")
	assert.Equal(t, http.StatusOK, rec.Code)
	quotes := body["quotes"].(map[string]interface{})
	assert.Equal(t, 13.1, quotes["600001"])
}

func TestGetQuotes_NoStream(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	rec, _ := doGet(t, router, "/api/v1/quotes")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownMethodRejected(t *testing.T) {
	router := newTestRouter(seededEngine(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/portfolio", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
