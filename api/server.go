package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/phantom/lib/ingest"
	"github.com/ValentinKolb/phantom/lib/snapshot"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("api")

// Config holds the HTTP settings of the API server.
type Config struct {
	Endpoint       string        // listen address, e.g. ":8000"
	RequestTimeout time.Duration // deadline for the work done by one request (0 = none)
	MaxBodyBytes   int64         // largest accepted write payload
	LogRequests    bool          // log every request at debug level
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Endpoint:       ":8000",
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
}

// Server exposes the snapshot cache and the ingestion pipeline over HTTP.
type Server struct {
	config   Config
	cache    *snapshot.Cache
	pipeline *ingest.Pipeline
	ready    atomic.Bool

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewServer creates the API server. It reports unhealthy until MarkReady
// is called.
func NewServer(config Config, cache *snapshot.Cache, pipeline *ingest.Pipeline) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Server{config: config, cache: cache, pipeline: pipeline}
}

// MarkReady flips the health endpoint to healthy. It is called once startup
// reconciliation has run, whatever its outcome.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Handler returns the routed handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /game-data/{$}", s.handleGetSnapshot)
	s.route(mux, "GET /game-data", s.handleGetSnapshot)
	s.route(mux, "POST /game-data/{$}", s.handleIngest)
	s.route(mux, "POST /game-data", s.handleIngest)
	s.route(mux, "GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	return mux
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	h = s.withTimeout(h)
	h = withMetrics(pattern, h)
	if s.config.LogRequests {
		h = loggerMiddleware(h)
	}
	mux.HandleFunc(pattern, h)
}

// ListenAndServe blocks until the server is shut down. It returns nil after
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.config.Endpoint)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = server
	s.mu.Unlock()

	Logger.Infof("API listening on %s", ln.Addr())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
