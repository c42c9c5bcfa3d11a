// Package server provides the HTTP API for submitting and tracking feedback jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jonathan/doc-feedback/internal/config"
	"github.com/jonathan/doc-feedback/internal/observability"
	"github.com/jonathan/doc-feedback/internal/pipeline"
	"github.com/jonathan/doc-feedback/internal/server/middleware"
	"github.com/jonathan/doc-feedback/internal/server/ratelimit"
	"github.com/jonathan/doc-feedback/internal/types"
)

// defaultEventInterval is how often the event stream re-reads a job
const defaultEventInterval = time.Second

// JobService is the part of pipeline.Service the handlers use
type JobService interface {
	Create(ctx context.Context, in pipeline.CreateJobInput) (*types.FeedbackJob, error)
	StatusFor(ctx context.Context, jobID, requesterID uuid.UUID) (*pipeline.JobView, error)
	Retry(ctx context.Context, jobID, requesterID uuid.UUID) (*types.FeedbackJob, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]pipeline.JobView, error)
}

// Options configures a Server
type Options struct {
	Server    config.ServerConfig
	RateLimit config.RateLimitConfig
	Auth      config.AuthConfig
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	jobs            JobService
	jwt             *JWTService
	rateLimiter     *ratelimit.Limiter
	trustedProxies  []*net.IPNet
	allowedOrigins  map[string]bool
	allowAnyOrigin  bool
	shutdownTimeout time.Duration
	eventInterval   time.Duration
	log             *zap.SugaredLogger
}

// New creates a server for jobs
func New(jobs JobService, opts Options) (*Server, error) {
	jwtService, err := NewJWTService(opts.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	proxies, err := parseCIDRs(opts.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		jobs:            jobs,
		jwt:             jwtService,
		rateLimiter:     ratelimit.NewLimiter(ratelimit.NewConfig(opts.RateLimit.Enabled, opts.RateLimit.CreatePerMinute, opts.RateLimit.ReadPerMinute)),
		trustedProxies:  proxies,
		allowedOrigins:  make(map[string]bool),
		shutdownTimeout: opts.Server.ShutdownTimeout,
		eventInterval:   defaultEventInterval,
		log:             zap.S().Named("http"),
	}
	for _, origin := range opts.Server.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			s.allowAnyOrigin = true
		} else if origin != "" {
			s.allowedOrigins[origin] = true
		}
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout, // zero keeps event streams open
		IdleTimeout:  opts.Server.IdleTimeout,
	}
	return s, nil
}

// Handler builds the routed and wrapped handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	auth := middleware.AuthMiddleware(s.jwt.AsTokenValidator())
	mux.Handle("POST /feedback/jobs", auth(http.HandlerFunc(s.handleCreateFeedbackJob)))
	mux.Handle("GET /feedback/jobs", auth(http.HandlerFunc(s.handleListFeedbackJobs)))
	mux.Handle("GET /feedback/jobs/{id}", auth(http.HandlerFunc(s.handleGetFeedbackJob)))
	mux.Handle("GET /feedback/jobs/{id}/events", auth(http.HandlerFunc(s.handleFeedbackJobEvents)))
	mux.Handle("POST /feedback/jobs/{id}/retry", auth(http.HandlerFunc(s.handleRetryFeedbackJob)))

	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Infow("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	defer s.rateLimiter.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Infow("server stopped")
	return nil
}

// withCORS adds CORS headers for allowed origins
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case s.allowAnyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && s.allowedOrigins[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exceed their per-route budget
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request and records its metrics
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		observability.ObserveHTTPRequest(r.Method, route, rec.status, elapsed)
		s.log.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
			"remote", r.RemoteAddr)
	})
}

// statusRecorder captures the response status and keeps streaming working
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnw("failed to encode response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// handleError maps err to a status code and writes it
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.errorResponse(w, status, errorMessage(err, status))
}

// clientID is the remote IP, or the first X-Forwarded-For hop when the peer is a trusted proxy
func (s *Server) clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" && s.trusted(ip) {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	return ip
}

func (s *Server) trusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range s.trustedProxies {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func parseCIDRs(values []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	retryAfter := int(info.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	s.log.Warnw("rate limit exceeded", "path", r.URL.Path, "limit", info.Limit)
	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded, please try again later",
		"limit":       info.Limit,
		"retry_after": retryAfter,
	})
}
