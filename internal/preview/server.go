package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/browser"

	"sitegen/internal/domain"
	"sitegen/internal/logging"
)

const defaultAddr = "127.0.0.1:0"

var ErrNotStarted = errors.New("preview server not started")

// ResultSource supplies the HTML currently being previewed.
type ResultSource interface {
	Result() (domain.GenerationResult, bool)
}

// Opener launches a URL in the user's browser.
type Opener func(url string) error

// Server serves the current generation result on a loopback address.
type Server struct {
	source ResultSource
	logger *slog.Logger
	opener Opener
	router chi.Router

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

func NewServer(source ResultSource, logger *slog.Logger) *Server {
	s := &Server{
		source: source,
		logger: logging.OrDiscard(logger),
		opener: browser.OpenURL,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthz)
	r.Get("/", s.serveResult)
	r.Get("/preview", s.serveResult)
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	if strings.TrimSpace(addr) == "" {
		addr = defaultAddr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("preview server stopped", "error", err)
		}
	}()
	s.logger.Info("preview server listening", "addr", ln.Addr().String())
	return nil
}

// URL is the preview page address, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String() + "/preview"
}

// Open shows the current result in the browser.
func (s *Server) Open() error {
	u := s.URL()
	if u == "" {
		return ErrNotStarted
	}
	if _, ok := s.source.Result(); !ok {
		return domain.Validation("no generated website to preview")
	}
	return s.OpenURL(u)
}

// OpenURL opens any URL in the browser, e.g. a saved site's shareable link.
func (s *Server) OpenURL(u string) error {
	if strings.TrimSpace(u) == "" {
		return domain.Validation("url is required")
	}
	if err := s.opener(u); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	s.logger.Info("opened browser", "url", u)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) serveResult(w http.ResponseWriter, _ *http.Request) {
	result, ok := s.source.Result()
	if !ok {
		http.Error(w, "no website generated yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(result.HTML))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("preview request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
