// Package httpapi exposes the control API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/vibebox/internal/app/notification"
	"github.com/osa030/vibebox/internal/app/orchestrator"
	"github.com/osa030/vibebox/internal/domain/prefs"
	"github.com/osa030/vibebox/internal/infra/history"
)

// Metrics
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vibebox",
	Name:      "http_requests_total",
	Help:      "Total HTTP requests by method and status",
}, []string{"method", "code"})

// Controller is the subset of the orchestrator the API drives.
type Controller interface {
	Generate(ctx context.Context) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	PlayPause(ctx context.Context) error
	SetPreferences(ctx context.Context, p prefs.Preferences) error
	Status() orchestrator.Status
}

// HistoryReader reads the played-track log.
type HistoryReader interface {
	Recent(ctx context.Context, n int) ([]history.Entry, error)
}

// CreditsProvider reports the remaining generation credits.
type CreditsProvider interface {
	Credits(ctx context.Context) (int64, error)
}

// Server serves the control API, the event stream and metrics.
type Server struct {
	ctrl       Controller
	historyLog HistoryReader
	credits    CreditsProvider
	notifier   *notification.Manager
	httpServer *http.Server
}

// NewServer builds the server. historyLog and credits may be nil, the
// corresponding endpoints then report 503.
func NewServer(addr string, ctrl Controller, historyLog HistoryReader, credits CreditsProvider, notifier *notification.Manager) *Server {
	s := &Server{
		ctrl:       ctrl,
		historyLog: historyLog,
		credits:    credits,
		notifier:   notifier,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.newRouter(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(countRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Post("/command/{name}", s.handleCommand)
		r.Put("/preferences", s.handlePutPreferences)
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/credits", s.handleCredits)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("http api listening. addr=%v", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http api failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var err error
	switch name := chi.URLParam(r, "name"); name {
	case "generate":
		err = s.ctrl.Generate(r.Context())
	case "back":
		err = s.ctrl.Back(r.Context())
	case "forward":
		err = s.ctrl.Forward(r.Context())
	case "playpause":
		err = s.ctrl.PlayPause(r.Context())
	default:
		writeError(w, http.StatusNotFound, errors.Newf("unknown command %q", name))
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var p prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid preferences body"))
		return
	}
	if err := s.ctrl.SetPreferences(r.Context(), p); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.historyLog == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is not configured"))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, errors.Newf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	entries, err := s.historyLog.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	if s.credits == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("credits are not configured"))
		return
	}
	n, err := s.credits.Credits(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"credits": n})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("failed to write response. err=%v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
