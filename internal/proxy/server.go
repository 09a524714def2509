// Package proxy implements the HTTP proxy server.
package proxy

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jedarden/clasp-cascade/internal/cascade"
	"github.com/jedarden/clasp-cascade/internal/config"
	"github.com/jedarden/clasp-cascade/internal/logging"
	"github.com/jedarden/clasp-cascade/internal/transformer"
)

// Server represents the CLASP proxy server.
type Server struct {
	cfg         *config.Config
	handler     *Handler
	server      *http.Server
	rateLimiter *RateLimiter
	authConfig  *AuthConfig
	version     string
	shutdownCh  chan struct{} // Channel to signal goroutines to stop
}

// NewServer creates a new proxy server.
func NewServer(cfg *config.Config) (*Server, error) {
	return NewServerWithVersion(cfg, "unknown")
}

// NewServerWithVersion creates a new proxy server with version info.
func NewServerWithVersion(cfg *config.Config, version string) (*Server, error) {
	executor, err := buildExecutor(cfg)
	if err != nil {
		return nil, fmt.Errorf("building cascade executor: %w", err)
	}

	handler := NewHandler(cfg, executor)
	handler.SetVersion(version)

	s := &Server{
		cfg:        cfg,
		handler:    handler,
		version:    version,
		shutdownCh: make(chan struct{}),
	}

	if cfg.RateLimitEnabled {
		s.rateLimiter = NewRateLimiterFromRPS(cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst)
		s.handler.SetRateLimiter(s.rateLimiter)
	}

	if cfg.AuthEnabled {
		s.authConfig = &AuthConfig{
			Enabled:               true,
			APIKey:                cfg.AuthAPIKey,
			AllowAnonymousHealth:  cfg.AuthAllowAnonymousHealth,
			AllowAnonymousMetrics: cfg.AuthAllowAnonymousMetrics,
		}
	}

	return s, nil
}

// buildExecutor turns config.Config.Tiers into cascade.TierConfig entries
// and wires up a shared *http.Client Invoker and transformer.Registry, per
// spec §4.1/§4.7. This is the one place ConfigModel's static tier list
// becomes the live Executor every HTTP surface dispatches through.
func buildExecutor(cfg *config.Config) (*cascade.Executor, error) {
	registry := transformer.NewRegistry()

	tiers := make([]cascade.TierConfig, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		chain := make(transformer.Chain, 0, len(t.Transformers))
		for _, spec := range t.Transformers {
			chain = append(chain, transformer.Entry{Name: spec.Name, Params: transformer.Params(spec.Params)})
		}
		tiers = append(tiers, cascade.TierConfig{
			Label:             t.RouteLabel(),
			ProviderName:      t.Provider,
			Model:             t.Model,
			Dialect:           t.ProtocolDialect(),
			BaseURL:           t.BaseURL,
			APIKey:            t.APIKey(),
			AuthHeader:        t.AuthHeader,
			MaxRetries:        t.Retry.MaxRetries,
			BaseBackoffMillis: t.Retry.BaseBackoffMillis,
			BackoffMultiplier: t.Retry.BackoffMultiplier,
			MaxBackoffMillis:  t.Retry.MaxBackoffMillis,
			Transformers:      chain,
		})
	}

	timeout := time.Duration(cfg.HTTPClientTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return cascade.New(tiers, client, registry, cfg.BaselineMillis, cfg.IgnoreDirectRouting), nil
}

// Start starts the proxy server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handler.HandleRoot)
	mux.HandleFunc("/health", s.handler.HandleHealth)
	mux.HandleFunc("/metrics", s.handler.HandleMetrics)
	mux.Handle("/metrics/prometheus", s.handler.PrometheusHandler())
	mux.HandleFunc("/costs", s.handler.HandleCosts)

	mux.HandleFunc("/v1/messages", s.handler.HandleMessages)
	mux.HandleFunc("/v1/chat/completions", s.handler.HandleChatCompletions)
	mux.HandleFunc("/v1/responses", s.handler.HandleResponses)
	mux.HandleFunc("/v1/presets", s.handler.HandlePresets)
	mux.HandleFunc("/v1/models", s.handler.HandleModels)
	mux.HandleFunc("/v1/latencies", s.handler.HandleLatencies)
	mux.HandleFunc("/v1/usage", s.handler.HandleUsage)

	// Go 1.22+ ServeMux wildcard pattern: {name} is captured via
	// r.PathValue in the handler that HandlePreset's closure wraps.
	mux.HandleFunc("/preset/{name}/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		s.handler.HandlePreset(r.PathValue("name"))(w, r)
	})

	var handler http.Handler = mux

	if s.rateLimiter != nil {
		handler = RateLimitMiddleware(s.rateLimiter)(handler)
		log.Printf("[CLASP] Rate limiting enabled: %.2f req/s (burst: %d)", s.cfg.RateLimitRequestsPerSec, s.cfg.RateLimitBurst)
	} else {
		log.Printf("[CLASP] Warning: Rate limiting is disabled. Set CLASP_RATE_LIMIT=true for production use.")
	}

	if s.authConfig != nil && s.authConfig.Enabled {
		handler = AuthMiddleware(s.authConfig)(handler)
		log.Printf("[CLASP] Authentication enabled (anonymous health: %v, anonymous metrics: %v)",
			s.authConfig.AllowAnonymousHealth, s.authConfig.AllowAnonymousMetrics)
	} else {
		log.Printf("[CLASP] Warning: Authentication is disabled. Set CLASP_AUTH=true for production use.")
	}

	handler = loggingMiddleware(handler)

	port := s.cfg.Port
	if !isPortAvailable(port) {
		log.Printf("[CLASP] Port %d is in use, finding available port...", port)
		newPort, err := findAvailablePort(port)
		if err != nil {
			return fmt.Errorf("failed to find available port: %w", err)
		}
		port = newPort
		s.cfg.Port = port
		log.Printf("[CLASP] Using port %d instead", port)
	}

	logging.SetSessionPort(port)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // long timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Logger().Info("starting cascade proxy",
			zap.Int("port", port),
			zap.Int("tiers", len(s.handler.executor.Tiers)),
			zap.String("anthropic_base_url", fmt.Sprintf("http://localhost:%d", port)),
		)
		log.Printf("[CLASP] Starting cascade proxy on port %d", port)
		log.Printf("[CLASP] Tiers: %d configured", len(s.handler.executor.Tiers))
		log.Printf("[CLASP] Set ANTHROPIC_BASE_URL=http://localhost:%d to use with Claude Code", port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Printf("[CLASP] Received signal %v, shutting down...", sig)
		return s.Shutdown()
	}
}

// isPortAvailable checks if a port is available for binding.
func isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// findAvailablePort finds an available port starting from the given port.
// It tries the next 100 ports before giving up.
func findAvailablePort(startPort int) (int, error) {
	for port := startPort + 1; port <= startPort+100; port++ {
		if isPortAvailable(port) {
			return port, nil
		}
	}
	ln, err := net.Listen("tcp", ":0") //nolint:gosec // G102: binding to all interfaces is intentional for port discovery
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected address type")
	}
	return tcpAddr.Port, nil
}

// GetPort returns the actual port the server is running on.
func (s *Server) GetPort() int {
	return s.cfg.Port
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	close(s.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	log.Printf("[CLASP] Server stopped")
	return nil
}

// GetHandler returns the handler for testing and metrics access.
func (s *Server) GetHandler() *Handler {
	return s.handler
}

// loggingMiddleware logs incoming requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		duration := time.Since(start)
		log.Printf("[CLASP] %s %s %d %v", r.Method, r.URL.Path, lrw.statusCode, duration)
		logging.Logger().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", lrw.statusCode),
			zap.Duration("duration", duration),
		)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
