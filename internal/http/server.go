// Package http serves the read-only receipt pages.
package http

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"kvitto/internal/cache"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/middleware/ratelimit"
	"kvitto/internal/middleware/security"
	"kvitto/internal/middleware/trace"
	"kvitto/internal/render"
	appweb "kvitto/web"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Reports is what the pages read. Satisfied by *services.ReportService.
type Reports interface {
	Groups(ctx context.Context, sender string) ([]core.Group, error)
	Detail(ctx context.Context, key string) (core.ReceiptDetail, error)
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Sender string
	Logger *applog.Logger
	// Checks run on /readyz in addition to the template check.
	Checks []Check
	// CacheStats reports the in-memory group cache on /metrics.
	CacheStats func() cache.Stats
	RateLimit  ratelimit.Config
}

type Server struct {
	http.Server
	pages      *render.Pages
	reports    Reports
	sender     string
	checks     []Check
	cacheStats func() cache.Stats
	logger     *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	startTime    time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, reports Reports, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	pages, err := render.NewPages()
	if err != nil {
		return nil, err
	}

	detector := security.NewDetector(logger)
	s := &Server{
		pages:            pages,
		reports:          reports,
		sender:           opts.Sender,
		checks:           opts.Checks,
		cacheStats:       opts.CacheStats,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit, logger),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		startTime:        time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /receipt/{key}", s.handleReceipt)
	mux.HandleFunc("GET /chart", s.handleChart)
	mux.HandleFunc("GET /chart/data", s.handleChartData)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, err
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/",
		security.StaticAssetMiddleware(3600)(http.FileServer(http.FS(static)))))

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(detector.ExtractClientIP)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
