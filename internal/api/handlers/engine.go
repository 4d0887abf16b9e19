package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/feed"
	"github.com/wqlab/screener/pkg/logger"
)

// EngineView is the read surface the handlers need from the engine.
// Every method must be safe to call while jobs mutate the portfolio.
type EngineView interface {
	Results() []contracts.ScreeningResult
	Records() []contracts.RebalanceRecord
	PortfolioSnapshot() contracts.PortfolioSnapshot
}

// EngineHandler serves the engine's screening results, rebalance records
// and the simulated portfolio over HTTP.
type EngineHandler struct {
	engine EngineView
	book   *feed.PriceBook // nil when no live stream is attached
	logger *logger.Logger
}

// NewEngineHandler creates the handler. book may be nil.
func NewEngineHandler(engine EngineView, book *feed.PriceBook, log *logger.Logger) *EngineHandler {
	return &EngineHandler{
		engine: engine,
		book:   book,
		logger: log,
	}
}

// GetResults returns screening results, newest last.
// GET /api/v1/screening/results?limit=N
func (h *EngineHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results := h.engine.Results()

	if limit := queryInt(r, "limit"); limit > 0 && limit < len(results) {
		results = results[len(results)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

// GetLatestResult returns the most recent screening result.
// GET /api/v1/screening/results/latest
func (h *EngineHandler) GetLatestResult(w http.ResponseWriter, r *http.Request) {
	results := h.engine.Results()
	if len(results) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no screening results yet",
		})
		return
	}

	writeJSON(w, http.StatusOK, results[len(results)-1])
}

// GetRecords returns the rebalance audit log, newest last.
// GET /api/v1/rebalance/records?limit=N
func (h *EngineHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	records := h.engine.Records()

	if limit := queryInt(r, "limit"); limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// GetPortfolio returns the current portfolio snapshot.
// GET /api/v1/portfolio
func (h *EngineHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.PortfolioSnapshot())
}

// GetQuotes returns the live price book.
// GET /api/v1/quotes
func (h *EngineHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	if h.book == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no live quote stream attached",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":  h.book.AsOf(),
		"quotes": h.book.Snapshot(),
	})
}

func queryInt(r *http.Request, key string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
