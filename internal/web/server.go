package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/metrics"
	"github.com/hpungsan/heritage/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates and configures the HTTP server for the JSON API and public archive.
func NewServer(svc *ops.Service, version, bind string, port int) (*http.Server, error) {
	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static sub-FS: %w", err)
	}

	metrics.Register()

	h := &Handlers{
		svc:      svc,
		renderer: NewRenderer(templateSub, version, svc.Log),
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           newHandler(h, svc, staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func newHandler(h *Handlers, svc *ops.Service, staticSub fs.FS) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/whoami", h.HandleWhoAmI)
	api.HandleFunc("POST /api/capsules", h.HandleCreate)
	api.HandleFunc("POST /api/capsules/purchase", h.HandlePurchase)
	api.HandleFunc("GET /api/capsules/public", h.HandlePublic)
	api.HandleFunc("GET /api/capsules/{id}", h.HandleGet)
	api.HandleFunc("GET /api/tokens/mine", h.HandleMyTokens)
	api.HandleFunc("GET /api/tokens/{id}", h.HandleToken)
	api.HandleFunc("POST /api/tokens/{id}/transfer", h.HandleTransferToken)
	api.HandleFunc("GET /api/purchases", h.HandlePurchases)
	api.HandleFunc("GET /api/price", h.HandlePrice)
	api.HandleFunc("GET /api/ledger", h.HandleLedgerInfo)
	api.HandleFunc("GET /api/balance", h.HandleBalance)
	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		renderAPIError(w, notFoundRoute(r))
	})

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/archive", http.StatusFound)
	})
	mux.HandleFunc("GET /archive", h.HandleArchive)
	mux.HandleFunc("GET /archive/{id}", h.HandleArchiveCapsule)
	mux.Handle("/api/", identityMiddleware(svc.Config.JWTSecret, api))

	mux.Handle("GET /metrics", promhttp.Handler())

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return requestLogger(svc.Log, securityHeaders(mux))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger records request duration and logs one debug line per request.
// The Authorization header is never logged.
func requestLogger(log *zap.Logger, next http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		metrics.HTTPRequestDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("heritage server running", zap.String("addr", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
