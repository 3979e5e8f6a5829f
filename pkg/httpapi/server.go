// Package httpapi serves metrics and debug views of a running host.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vnykmshr/tickflow/pkg/host"
	"github.com/vnykmshr/tickflow/pkg/logx"
	"github.com/vnykmshr/tickflow/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Backend is the view of a host the server exposes. *host.Host implements it.
type Backend interface {
	Epoch() uint64
	Report() telemetry.Report
	Plugins() []host.PluginInfo
	AreaChanged() int
}

// Config holds server configuration.
type Config struct {
	Addr    string
	Backend Backend

	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger logx.Logger
}

// Server is the observability HTTP server.
type Server struct {
	addr    string
	backend Backend
	log     logx.Logger
	router  chi.Router
}

// New builds the router. It does not listen until ListenAndServe.
func New(cfg Config) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		addr:    cfg.Addr,
		backend: cfg.Backend,
		log:     cfg.Logger.With(logx.String("component", "httpapi")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLog)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed on "+r.URL.Path)
	})

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/debug", func(r chi.Router) {
		r.Get("/workers", s.workers)
		r.Get("/caches", s.caches)
		r.Get("/plugins", s.plugins)
		r.Post("/area", s.areaChanged)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"epoch":  s.backend.Epoch(),
	})
}

func (s *Server) workers(w http.ResponseWriter, _ *http.Request) {
	r := s.backend.Report()
	writeJSON(w, http.StatusOK, map[string]any{
		"epoch":   r.Epoch,
		"workers": r.Workers,
	})
}

type cacheView struct {
	Name        string  `json:"name"`
	Count       int     `json:"count"`
	SourceReads uint64  `json:"source_reads"`
	CacheReads  uint64  `json:"cache_reads"`
	Evictions   uint64  `json:"evictions"`
	Coeff       float64 `json:"coeff"`
}

func (s *Server) caches(w http.ResponseWriter, _ *http.Request) {
	r := s.backend.Report()
	views := make([]cacheView, len(r.Caches))
	for i, c := range r.Caches {
		views[i] = cacheView{
			Name:        c.Name,
			Count:       c.Count,
			SourceReads: c.SourceReads,
			CacheReads:  c.CacheReads,
			Evictions:   c.Evictions,
			Coeff:       c.Coeff(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"epoch":  r.Epoch,
		"caches": views,
	})
}

func (s *Server) plugins(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": s.backend.Plugins()})
}

func (s *Server) areaChanged(w http.ResponseWriter, _ *http.Request) {
	dropped := s.backend.AreaChanged()
	writeJSON(w, http.StatusOK, map[string]any{"dropped": dropped})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				s.log.Error("handler panic",
					logx.String("path", r.URL.Path),
					logx.String("request_id", middleware.GetReqID(r.Context())),
					logx.Any("panic", p),
				)
				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("elapsed", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = msg
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
