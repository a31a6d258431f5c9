// Package web exposes the dynamics report and character registration
// over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"abyssrun/internal/characters"
	"abyssrun/internal/esi"
	"abyssrun/internal/market"
	"abyssrun/internal/metrics"
	"abyssrun/internal/report"

	"golang.org/x/oauth2"
)

// OrderBooks hands out the latest complete market book; satisfied by
// *market.Refresher.
type OrderBooks interface {
	Current() *market.Book
}

// Server wires the HTTP surface.
type Server struct {
	router   *mux.Router
	reports  *report.Builder
	registry *characters.Registry
	api      *esi.Client
	metrics  *metrics.Metrics
	books    OrderBooks
	log      zerolog.Logger

	// onRegister is invoked after a character is verified, typically to
	// kick off its resolution saga.
	onRegister func(esi.CharacterID)
}

// New builds the server and its routes.
func New(reports *report.Builder, registry *characters.Registry, api *esi.Client, m *metrics.Metrics, books OrderBooks, onRegister func(esi.CharacterID), log zerolog.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		reports:    reports,
		registry:   registry,
		api:        api,
		metrics:    m,
		books:      books,
		log:        log,
		onRegister: onRegister,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.instrument)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/my/dynamics", s.handleDynamics).Methods(http.MethodGet)
	s.router.HandleFunc("/characters", s.handleListCharacters).Methods(http.MethodGet)
	s.router.HandleFunc("/characters", s.handleRegisterCharacter).Methods(http.MethodPost)
	s.router.HandleFunc("/auth/start", s.handleAuthStart).Methods(http.MethodGet)
	s.router.HandleFunc("/market/{region:[0-9]+}/{type:[0-9]+}", s.handleMarket).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.RequestDuration.
				WithLabelValues(r.URL.Path, strconv.Itoa(sw.status)).
				Observe(elapsed.Seconds())
		}
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", sw.status).Dur("elapsed", elapsed).Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDynamics(w http.ResponseWriter, _ *http.Request) {
	rep := s.reports.Build()
	if s.metrics != nil {
		s.metrics.ReportBuilds.Inc()
		s.metrics.ReportWarnings.Add(float64(len(rep.Warnings)))
	}
	writeJSON(w, http.StatusOK, rep)
}

type characterInfo struct {
	ID   esi.CharacterID `json:"id"`
	Name string          `json:"name"`
}

func (s *Server) handleListCharacters(w http.ResponseWriter, _ *http.Request) {
	all := s.registry.All()
	out := make([]characterInfo, 0, len(all))
	for _, c := range all {
		out = append(out, characterInfo{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

type registerRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *Server) handleRegisterCharacter(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "access_token is required")
		return
	}
	c, err := s.registry.Verify(r.Context(), s.api, &oauth2.Token{AccessToken: req.AccessToken})
	if err != nil {
		s.log.Warn().Err(err).Msg("character verification failed")
		writeError(w, http.StatusUnauthorized, "token verification failed")
		return
	}
	s.log.Info().Int64("character_id", int64(c.ID)).Str("name", c.Name).Msg("character registered")
	if s.onRegister != nil {
		s.onRegister(c.ID)
	}
	writeJSON(w, http.StatusCreated, characterInfo{ID: c.ID, Name: c.Name})
}

type orderBookResponse struct {
	Buy  []esi.MarketOrder `json:"buy"`
	Sell []esi.MarketOrder `json:"sell"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	if s.books == nil {
		writeError(w, http.StatusServiceUnavailable, "market data unavailable")
		return
	}
	vars := mux.Vars(r)
	region, err := strconv.ParseInt(vars["region"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	typeID, err := strconv.ParseInt(vars["type"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid type id")
		return
	}
	buy, sell := s.books.Current().Orders(esi.RegionID(region), esi.TypeID(typeID))
	if buy == nil {
		buy = []esi.MarketOrder{}
	}
	if sell == nil {
		sell = []esi.MarketOrder{}
	}
	writeJSON(w, http.StatusOK, orderBookResponse{Buy: buy, Sell: sell})
}

// handleAuthStart is a placeholder for the interactive authorization
// flow. Registration currently takes a raw token via POST /characters.
func (s *Server) handleAuthStart(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "interactive authorization is not configured; POST /characters with an access token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "status": "error"})
}
