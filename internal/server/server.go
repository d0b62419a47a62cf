// Package server exposes the HTTP and WebSocket API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tokenradar/internal/domain"
	"tokenradar/internal/feeds"
	"tokenradar/internal/monitor"
	"tokenradar/internal/observability"
	"tokenradar/internal/scanner"
	"tokenradar/internal/scheduler"
	"tokenradar/internal/storage"
	"tokenradar/internal/trading"
	"tokenradar/internal/validator"
)

// defaultListLimit bounds unpaginated listing requests.
const defaultListLimit = 50

// Server wires the HTTP surface over the application services.
type Server struct {
	scanner   *scanner.Scanner
	monitor   *monitor.Monitor
	trading   *trading.Service
	scheduler *scheduler.Scheduler
	cache     storage.TokenCache
	positions storage.PositionStore
	favorites storage.FavoriteStore
	hub       *Hub
	logger    zerolog.Logger

	http *http.Server
}

// Deps collects the services the server exposes.
type Deps struct {
	Scanner   *scanner.Scanner
	Monitor   *monitor.Monitor
	Trading   *trading.Service
	Scheduler *scheduler.Scheduler
	Cache     storage.TokenCache
	Positions storage.PositionStore
	Favorites storage.FavoriteStore
	Hub       *Hub
	Logger    zerolog.Logger
}

// New builds the server and its router.
func New(addr string, d Deps) *Server {
	s := &Server{
		scanner:   d.Scanner,
		monitor:   d.Monitor,
		trading:   d.Trading,
		scheduler: d.Scheduler,
		cache:     d.Cache,
		positions: d.Positions,
		favorites: d.Favorites,
		hub:       d.Hub,
		logger:    d.Logger,
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/scan/start", s.handleScanStart).Methods(http.MethodPost)
	r.HandleFunc("/scan/progress", s.handleScanProgress).Methods(http.MethodGet)
	r.HandleFunc("/scan/stats", s.handleScanStats).Methods(http.MethodGet)
	r.HandleFunc("/scanned-tokens", s.handleScannedTokens).Methods(http.MethodGet)
	r.HandleFunc("/analyze-token", s.handleAnalyzeToken).Methods(http.MethodPost)

	r.HandleFunc("/trading/analyze", s.handleTradingAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/trading/execute", s.handleTradingExecute).Methods(http.MethodPost)

	r.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	r.HandleFunc("/positions/{id}/close", s.handlePositionClose).Methods(http.MethodPost)

	r.HandleFunc("/favorites", s.handleFavoritesList).Methods(http.MethodGet)
	r.HandleFunc("/favorites", s.handleFavoriteAdd).Methods(http.MethodPost)
	r.HandleFunc("/favorites/{chain}/{address}", s.handleFavoriteRemove).Methods(http.MethodDelete)

	r.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{name}/pause", s.handleJobPause).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{name}/resume", s.handleJobResume).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{name}/run", s.handleJobRun).Methods(http.MethodPost)

	if s.hub != nil {
		r.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)
	}
	return r
}

// Start runs the listener until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	scanID, err := s.scanner.Start(r.Context())
	if errors.Is(err, scanner.ErrScanInFlight) {
		writeError(w, http.StatusConflict, "scan already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": scanID})
}

func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scanner.Progress())
}

func (s *Server) handleScanStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{"scanner": s.scanner.Stats()}
	if s.monitor != nil {
		stats["monitor"] = s.monitor.Stats()
	}
	if cacheStats, err := s.cache.Stats(r.Context()); err == nil {
		stats["cache"] = cacheStats
		observability.UpdateCacheEntries(cacheStats.Live)
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleScannedTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := queryInt(q.Get("limit"), defaultListLimit)
	if limit < 1 || limit > 200 {
		writeError(w, http.StatusBadRequest, "limit must be within [1, 200]")
		return
	}
	offset := queryInt(q.Get("offset"), 0)
	if offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	var f storage.TokenFilter
	if raw := q.Get("chain"); raw != "" {
		chain, ok := domain.NormalizeChain(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported chain "+raw)
			return
		}
		f.Chain = chain
	}
	f.SafeOnly = q.Get("safe_only") == "true"

	tokens, total, err := s.cache.List(r.Context(), limit, offset, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": tokens,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type tokenRequest struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

func (s *Server) decodeTokenRequest(w http.ResponseWriter, r *http.Request) (string, domain.Chain, bool) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", "", false
	}
	chain, ok := domain.NormalizeChain(req.Chain)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain "+req.Chain)
		return "", "", false
	}
	if !feeds.ValidAddress(chain, req.Address) {
		writeError(w, http.StatusBadRequest, "invalid address for chain "+string(chain))
		return "", "", false
	}
	return req.Address, chain, true
}

func (s *Server) handleAnalyzeToken(w http.ResponseWriter, r *http.Request) {
	address, chain, ok := s.decodeTokenRequest(w, r)
	if !ok {
		return
	}

	record, err := s.scanner.AnalyzeToken(r.Context(), chain, address)
	if feeds.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "token has no pairs on "+string(chain))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type analyzeRequest struct {
	tokenRequest
	Profile validator.UserProfile `json:"user_profile"`
}

func (s *Server) handleTradingAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chain, ok := domain.NormalizeChain(req.Chain)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain "+req.Chain)
		return
	}

	validated, err := s.trading.Analyze(r.Context(), req.Address, chain, req.Profile)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "token not scanned")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if validated.Status == domain.ValidationError {
		// Scored but unvalidated: the LLM was unreachable.
		status = http.StatusServiceUnavailable
	}
	observability.RecordSignal(string(validated.Signal.Action))
	observability.RecordValidation(string(validated.Status))
	writeJSON(w, status, validated)
}

type executeRequest struct {
	tokenRequest
	UserID      string                `json:"user_id"`
	AmountUSD   float64               `json:"amount_usd"`
	SlippagePct float64               `json:"slippage_pct"`
	Profile     validator.UserProfile `json:"user_profile"`
}

func (s *Server) handleTradingExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chain, ok := domain.NormalizeChain(req.Chain)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain "+req.Chain)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.AmountUSD < 0 || req.SlippagePct < 0 || req.SlippagePct > 100 {
		writeError(w, http.StatusBadRequest, "invalid amount or slippage")
		return
	}

	position, validated, err := s.trading.Execute(r.Context(), trading.ExecuteRequest{
		Address:     req.Address,
		Chain:       chain,
		UserID:      req.UserID,
		AmountUSD:   req.AmountUSD,
		SlippagePct: req.SlippagePct,
		Profile:     req.Profile,
	})

	switch {
	case err == nil:
		observability.RecordTrade(string(chain), "buy")
		writeJSON(w, http.StatusCreated, map[string]any{
			"position":  position,
			"validated": validated,
		})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "token not scanned")
	case errors.Is(err, trading.ErrEmergencyStop),
		errors.Is(err, trading.ErrLimitExceeded),
		errors.Is(err, trading.ErrNotExecutable):
		// Pre-trade checks failed.
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     err.Error(),
			"validated": validated,
		})
	default:
		observability.RecordTradeFailure()
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		userID = "default"
	}
	status := domain.PositionStatus(q.Get("status"))

	positions, err := s.positions.GetByUser(r.Context(), userID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	open := 0
	for _, p := range positions {
		if p.IsOpen() {
			open++
		}
	}
	observability.UpdateOpenPositions(open)
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions, "total": len(positions)})
}

func (s *Server) handlePositionClose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := s.monitor.Close(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "position not found")
	case errors.Is(err, storage.ErrPositionClosed):
		writeError(w, http.StatusConflict, "position already closed")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		observability.RecordPositionClosed(domain.ExitReasonManual)
		writeJSON(w, http.StatusOK, p)
	}
}

type favoriteRequest struct {
	tokenRequest
	UserID string `json:"user_id"`
	Symbol string `json:"symbol"`
}

func (s *Server) handleFavoritesList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	favs, err := s.favorites.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favs, "total": len(favs)})
}

func (s *Server) handleFavoriteAdd(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chain, ok := domain.NormalizeChain(req.Chain)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain "+req.Chain)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}

	f := &domain.Favorite{
		ID:      uuid.NewString(),
		UserID:  req.UserID,
		Address: req.Address,
		Chain:   chain,
		Symbol:  req.Symbol,
		AddedAt: time.Now().UTC(),
	}
	err := s.favorites.Add(r.Context(), f)
	if errors.Is(err, storage.ErrDuplicateKey) {
		writeError(w, http.StatusConflict, "already a favorite")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleFavoriteRemove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain, ok := domain.NormalizeChain(vars["chain"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported chain "+vars["chain"])
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}

	err := s.favorites.Remove(r.Context(), userID, vars["address"], chain)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "favorite not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.scheduler.List()})
}

func (s *Server) handleJobPause(w http.ResponseWriter, r *http.Request) {
	s.jobOp(w, r, s.scheduler.Pause)
}

func (s *Server) handleJobResume(w http.ResponseWriter, r *http.Request) {
	s.jobOp(w, r, s.scheduler.Resume)
}

func (s *Server) handleJobRun(w http.ResponseWriter, r *http.Request) {
	s.jobOp(w, r, s.scheduler.RunNow)
}

func (s *Server) jobOp(w http.ResponseWriter, r *http.Request, op func(string) error) {
	name := mux.Vars(r)["name"]
	if err := op(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "ok"})
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
