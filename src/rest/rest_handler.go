package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/logger"
	"feed-relay/src/lookup"
	"feed-relay/src/relay"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------
// APIHandler exposes the relay control surface over HTTP. All mutations are
// POST with a JSON body; reads are GET with query parameters.
// -----------------------------------------------------------------------------

// APIHandler routes REST requests to the relay and the lookup client.
type APIHandler struct {
	name   string
	config *config.Config
	logger *logger.Logger

	relay  *relay.Relay
	lookup *lookup.Client
}

// -----------------------------------------------------------------------------

// NewAPIHandler creates the REST handler bound to a running relay.
func NewAPIHandler(config *config.Config, log *logger.Logger, r *relay.Relay, lk *lookup.Client) *APIHandler {
	return &APIHandler{
		name:   "RestAPI",
		config: config,
		logger: log,
		relay:  r,
		lookup: lk,
	}
}

// -----------------------------------------------------------------------------

// Router builds the route table.
func (h *APIHandler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/rest/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/rest/datasource/add", h.AddDataSource).Methods(http.MethodPost)
	router.HandleFunc("/rest/datasource/remove", h.RemoveDataSource).Methods(http.MethodPost)
	router.HandleFunc("/rest/datasource/start", h.StartDataSource).Methods(http.MethodPost)
	router.HandleFunc("/rest/datasource/stop", h.StopDataSource).Methods(http.MethodPost)
	router.HandleFunc("/rest/datasource/status", h.GetDataSourceStatus).Methods(http.MethodGet)
	router.HandleFunc("/rest/datasource/list", h.ListDataSources).Methods(http.MethodGet)
	router.HandleFunc("/rest/symbols/add", h.AddSymbols).Methods(http.MethodPost)
	router.HandleFunc("/rest/symbols/add/all", h.AddSymbolsAll).Methods(http.MethodPost)
	router.HandleFunc("/rest/symbols/remove", h.RemoveSymbols).Methods(http.MethodPost)
	router.HandleFunc("/rest/symbols/remove/all", h.RemoveSymbolsAll).Methods(http.MethodPost)
	router.HandleFunc("/rest/symbols/refresh", h.RefreshSymbols).Methods(http.MethodPost)

	if h.lookup != nil {
		router.HandleFunc("/rest/lookup/symbols", h.SearchSymbols).Methods(http.MethodGet)
		router.HandleFunc("/rest/lookup/markets", h.ListMarkets).Methods(http.MethodGet)
		router.HandleFunc("/rest/lookup/security-types", h.ListSecurityTypes).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

// -----------------------------------------------------------------------------
// Request / response shapes
// -----------------------------------------------------------------------------

type sourceRequest struct {
	Name string `json:"name"`
}

type symbolsRequest struct {
	Name    string   `json:"name,omitempty"`
	Symbols []string `json:"symbols"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthCheck reports relay and feed health. Returns 503 when the feed is
// down or the admin heartbeat is stale so load balancers can act on it.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	healthy := h.relay.Healthy()

	response := map[string]interface{}{
		"healthy": healthy,
		"sources": h.relay.ListDataSources(),
	}
	if stats := h.relay.FeedStats(); stats != nil {
		response["feed"] = stats
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, response)
}

// -----------------------------------------------------------------------------

// AddDataSource instantiates and starts a source declared in config.
func (h *APIHandler) AddDataSource(w http.ResponseWriter, r *http.Request) {
	h.sourceOp(w, r, h.relay.AddDataSource)
}

// RemoveDataSource stops and drops a running source.
func (h *APIHandler) RemoveDataSource(w http.ResponseWriter, r *http.Request) {
	h.sourceOp(w, r, h.relay.RemoveDataSource)
}

// StartDataSource connects an existing source.
func (h *APIHandler) StartDataSource(w http.ResponseWriter, r *http.Request) {
	h.sourceOp(w, r, h.relay.StartDataSource)
}

// StopDataSource disconnects a source without removing it.
func (h *APIHandler) StopDataSource(w http.ResponseWriter, r *http.Request) {
	h.sourceOp(w, r, h.relay.StopDataSource)
}

// -----------------------------------------------------------------------------

// GetDataSourceStatus reports connection state and symbols for one source.
func (h *APIHandler) GetDataSourceStatus(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing name parameter"))
		return
	}

	status, err := h.relay.GetDataSourceStatus(name)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// -----------------------------------------------------------------------------

// ListDataSources lists the names of all running sources.
func (h *APIHandler) ListDataSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": h.relay.ListDataSources(),
	})
}

// -----------------------------------------------------------------------------

// AddSymbols subscribes symbols on one source.
func (h *APIHandler) AddSymbols(w http.ResponseWriter, r *http.Request) {
	h.symbolsOp(w, r, true, h.relay.SubscribeSource)
}

// RemoveSymbols unsubscribes symbols on one source.
func (h *APIHandler) RemoveSymbols(w http.ResponseWriter, r *http.Request) {
	h.symbolsOp(w, r, true, h.relay.UnSubscribeSource)
}

// AddSymbolsAll subscribes symbols on every running source.
func (h *APIHandler) AddSymbolsAll(w http.ResponseWriter, r *http.Request) {
	h.symbolsOp(w, r, false, func(_ string, symbols []string) error {
		return h.relay.SubscribeAllSources(symbols)
	})
}

// RemoveSymbolsAll unsubscribes symbols on every running source.
func (h *APIHandler) RemoveSymbolsAll(w http.ResponseWriter, r *http.Request) {
	h.symbolsOp(w, r, false, func(_ string, symbols []string) error {
		return h.relay.UnSubscribeAllSources(symbols)
	})
}

// RefreshSymbols forces one source to resend the current summary rows.
// An empty symbols list refreshes every active watch on the source.
func (h *APIHandler) RefreshSymbols(w http.ResponseWriter, r *http.Request) {
	var req symbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing source name"))
		return
	}

	if err := h.relay.RefreshSource(req.Name, req.Symbols); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// -----------------------------------------------------------------------------

// SearchSymbols proxies a symbol search to the lookup port.
func (h *APIHandler) SearchSymbols(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := lookup.SymbolFilter{
		Search:         q.Get("search"),
		Field:          q.Get("field"),
		ListedMarketID: q.Get("market"),
		SecurityTypeID: q.Get("security_type"),
		SymbolRoot:     q.Get("root"),
	}

	ctx, cancel := h.lookupContext(r)
	defer cancel()

	symbols, err := h.lookup.SearchSymbols(ctx, filter)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

// -----------------------------------------------------------------------------

// ListMarkets proxies the listed-markets query to the lookup port.
func (h *APIHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.lookupContext(r)
	defer cancel()

	markets, err := h.lookup.MarketTypes(ctx)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"markets": markets})
}

// -----------------------------------------------------------------------------

// ListSecurityTypes proxies the security-types query to the lookup port.
func (h *APIHandler) ListSecurityTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.lookupContext(r)
	defer cancel()

	types, err := h.lookup.SecurityTypes(ctx)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"security_types": types})
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

func (h *APIHandler) sourceOp(w http.ResponseWriter, r *http.Request, op func(string) error) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing source name"))
		return
	}

	if err := op(req.Name); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// -----------------------------------------------------------------------------

func (h *APIHandler) symbolsOp(w http.ResponseWriter, r *http.Request, needName bool, op func(string, []string) error) {
	var req symbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if needName && req.Name == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing source name"))
		return
	}
	if len(req.Symbols) == 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing symbols"))
		return
	}

	if err := op(req.Name, req.Symbols); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// -----------------------------------------------------------------------------

func (h *APIHandler) lookupContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := time.Duration(h.config.Lookup.TimeoutSeconds+5) * time.Second
	return context.WithTimeout(r.Context(), timeout)
}

// -----------------------------------------------------------------------------

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("%s : failed to encode response: %v", h.name, err)
	}
}

// -----------------------------------------------------------------------------

func (h *APIHandler) writeError(w http.ResponseWriter, code int, err error) {
	h.logger.Warning("%s : request failed: %v", h.name, err)
	h.writeJSON(w, code, statusResponse{Status: "error", Error: err.Error()})
}
