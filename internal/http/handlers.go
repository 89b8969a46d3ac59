package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"kvitto/internal/cache"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/render"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	groups, err := s.reports.Groups(r.Context(), s.sender)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.writePage(w, r, func(w io.Writer) error {
		return s.pages.Index(w, render.NewIndexView(s.sender, groups))
	})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	d, err := s.reports.Detail(r.Context(), key)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.writePage(w, r, func(w io.Writer) error {
		return s.pages.Detail(w, render.NewDetailView(d))
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	groups, err := s.reports.Groups(r.Context(), s.sender)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.writePage(w, r, func(w io.Writer) error {
		return s.pages.ChartPage(w, render.ServeChart, render.Chart(groups))
	})
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	groups, err := s.reports.Groups(r.Context(), s.sender)
	if err != nil {
		status := statusFor(err)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		s.logFailure(r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, render.Chart(groups))
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleReady runs every registered readiness probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{"templates": "ok"}
	for _, c := range s.checks {
		if err := c.Probe(ctx); err != nil {
			checks[c.Name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	var cacheStats cache.Stats
	if s.cacheStats != nil {
		cacheStats = s.cacheStats()
	}

	metric(w, "http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric(w, "group_cache_entries", "gauge", "Aggregated results held in memory", int64(cacheStats.Entries))
	metric(w, "group_cache_hits_total", "counter", "Report requests served from memory", cacheStats.Hits)
	metric(w, "group_cache_misses_total", "counter", "Report requests that re-read the cache", cacheStats.Misses)
	metric(w, "rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric(w, "active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric(w, "suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric(w, "uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.startTime).Seconds()))
}

func metric(w http.ResponseWriter, name, kind, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, v)
}

// statusFor maps cache and aggregation errors to a response status.
func statusFor(err error) int {
	if errors.Is(err, core.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// serveError renders a readable error page instead of failing the request
// silently.
func (s *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusNotFound {
		msg = "Nothing cached here yet. Run `kvitto fetch` first. (" + msg + ")"
	}
	s.logFailure(r, status, err)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if rerr := s.pages.Error(w, status, msg); rerr != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Error page rendering failed",
			applog.FieldError, rerr)
	}
}

func (s *Server) logFailure(r *http.Request, status int, err error) {
	logger := applog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldStatusCode, status)
		return
	}
	logger.WarnContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldStatusCode, status)
}
