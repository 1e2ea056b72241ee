// Package server exposes the application over HTTP: the generative text
// proxy used by the legal draft form, the chat proxy, a JSON API over every
// dashboard operation, and the static front-end.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harvey-licitacoes/harvey/internal/app"
	"github.com/harvey-licitacoes/harvey/internal/llm"
)

// Options controls the HTTP server behavior.
type Options struct {
	// Bind address, e.g. "127.0.0.1:3000"
	Bind string
	// Token for Authorization: Bearer <token> on /api/ routes. Empty disables auth.
	Token string
	// RPS is max requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// MaxBodyBytes caps request body size; defaults to 10 MiB.
	MaxBodyBytes int64
	// StaticDir is served at /. Empty disables static files.
	StaticDir string
	// OpenAIBaseURL is the OpenAI-compatible base URL used when a chat request
	// carries its own API key. Empty means the OpenAI default.
	OpenAIBaseURL string
	Logger        *log.Logger
}

// Server serves the Harvey HTTP interface.
type Server struct {
	srv     *http.Server
	opts    Options
	app     *app.App
	limiter *simpleLimiter
	logger  *log.Logger
	handler http.Handler
	started int32

	// newChatGenerator builds the per-request generator for /api/chat.
	newChatGenerator func(cfg llm.ProviderConfig) (llm.Generator, error)
}

// New constructs the server around a.
func New(a *app.App, opts Options) (*Server, error) {
	if a == nil {
		return nil, errors.New("server: app is required")
	}
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:3000"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024 // 10 MiB
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[serve] ", log.LstdFlags)
	}
	if opts.StaticDir != "" {
		if st, err := os.Stat(opts.StaticDir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("static dir %s is not a directory", opts.StaticDir)
		}
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}
	s := &Server{
		opts:    opts,
		app:     a,
		limiter: lim,
		logger:  logger,
	}
	s.newChatGenerator = func(cfg llm.ProviderConfig) (llm.Generator, error) {
		return llm.Build(cfg, logger)
	}

	mux := http.NewServeMux()
	s.routes(mux)
	if opts.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticDir)))
	}
	s.handler = s.middleware(mux)

	s.srv = &http.Server{
		Addr:         opts.Bind,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: llm.DefaultTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler { return s.handler }

// Start starts the HTTP server concurrently and attaches to ctx for shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.logger.Printf("Harvey listening on http://%s, static=%q rps=%d burst=%d auth=%v",
		s.opts.Bind, s.opts.StaticDir, s.opts.RPS, s.opts.Burst, s.opts.Token != "")

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		if s.limiter != nil {
			s.limiter.Close()
		}
	}()
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// middleware assigns request ids, enforces auth and rate limits on /api/
// routes, caps bodies and logs every request.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if strings.HasPrefix(r.URL.Path, "/api/") {
			if s.opts.Token != "" {
				auth := r.Header.Get("Authorization")
				if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != s.opts.Token {
					w.Header().Set("WWW-Authenticate", `Bearer realm="harvey"`)
					writeJSON(rec, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
					s.logRequest(r, id, rec.status, start)
					return
				}
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(r.Context()); err != nil {
					writeJSON(rec, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
					s.logRequest(r, id, rec.status, start)
					return
				}
			}
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(rec, r.Body, s.opts.MaxBodyBytes)
		}
		next.ServeHTTP(rec, r)
		s.logRequest(r, id, rec.status, start)
	})
}

func (s *Server) logRequest(r *http.Request, id string, status int, start time.Time) {
	s.logger.Printf("%s %s status=%d id=%s remote=%s dur=%s",
		r.Method, r.URL.Path, status, id, remoteIP(r.RemoteAddr), time.Since(start).String())
}

// simpleLimiter is a minimal token bucket limiter
type simpleLimiter struct {
	tokens chan struct{}
	stop   chan struct{}
}

func newSimpleLimiter(rps, burst int) *simpleLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rps
	}
	l := &simpleLimiter{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}
	go func() {
		interval := time.Second / time.Duration(rps)
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
				}
			case <-l.stop:
				return
			}
		}
	}()
	return l
}

// Wait takes a token, giving up after a short grace period.
func (l *simpleLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return errors.New("limiter stopped")
	case <-l.tokens:
		return nil
	}
}

func (l *simpleLimiter) Close() {
	if l == nil {
		return
	}
	close(l.stop)
}

// remoteIP extracts ip from host:port
func remoteIP(addr string) string {
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}
