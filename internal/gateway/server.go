package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slashbot/slashbot/internal/observability"
	"github.com/slashbot/slashbot/internal/registry"
)

// HealthFunc reports the host's health document, injected by the kernel
// so the gateway never depends on it.
type HealthFunc func(ctx context.Context) (any, error)

// Options configure the gateway server.
type Options struct {
	Host      string
	Port      int
	AuthToken string

	Methods *MethodRegistry
	Routes  *registry.RouteRegistry
	Health  HealthFunc

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Server is the local RPC gateway.
type Server struct {
	opts   Options
	logger *slog.Logger
	http   *http.Server
	ln     net.Listener
}

// rpcRequest is the /rpc request envelope.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcOK struct {
	OK     bool `json:"ok"`
	Result any  `json:"result"`
}

type rpcFail struct {
	OK    bool   `json:"ok"`
	Error *Error `json:"error"`
}

// NewServer builds the gateway. The server does not listen until Start.
func NewServer(opts Options) (*Server, error) {
	if opts.AuthToken == "" {
		return nil, fmt.Errorf("gateway auth token is required")
	}
	if opts.Methods == nil {
		opts.Methods = NewMethodRegistry()
	}
	if opts.Routes == nil {
		opts.Routes = registry.NewRouteRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		opts:   opts,
		logger: logger.With("component", "gateway"),
	}
	s.http = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", addr, err)
	}
	s.ln = ln

	s.logger.Info("gateway listening", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway serve", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/rpc", s.requireAuth(s.handleRPC))
	mux.HandleFunc("/", s.handleRouted)
	return mux
}

// authorized does a constant-time bearer token comparison.
func (s *Server) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.opts.AuthToken)) == 1
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, rpcFail{Error: &Error{
				Code:    "UNAUTHORIZED",
				Message: "missing or invalid bearer token",
			}})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	doc, err := s.opts.Health(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleRPC dispatches one method call. Dispatched calls always answer
// HTTP 200; success or failure lives in the envelope.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, rpcFail{Error: NewError(CodeInvalidRequest, "rpc requires POST")})
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, rpcFail{Error: NewError(CodeInvalidRequest, "malformed request body: %v", err)})
		return
	}
	if req.Method == "" {
		writeJSON(w, http.StatusOK, rpcFail{Error: NewError(CodeInvalidRequest, "method is required")})
		return
	}

	method, ok := s.opts.Methods.Get(req.Method)
	if !ok {
		writeJSON(w, http.StatusOK, rpcFail{Error: NewError(CodeMethodNotFound, "unknown method %q", req.Method)})
		return
	}

	start := time.Now()
	result, err := method(r.Context(), req.Params)
	if s.opts.Metrics != nil {
		s.opts.Metrics.GatewayRequests.WithLabelValues(req.Method, outcomeLabel(err)).Inc()
	}
	s.logger.Debug("rpc dispatched",
		"method", req.Method,
		"elapsed", time.Since(start),
		"ok", err == nil)

	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = NewError(CodeInternal, "%s", err.Error())
		}
		writeJSON(w, http.StatusOK, rpcFail{Error: rpcErr})
		return
	}
	writeJSON(w, http.StatusOK, rpcOK{OK: true, Result: result})
}

// handleRouted serves plugin-mounted routes. Unknown paths answer 404
// before any auth check.
func (s *Server) handleRouted(w http.ResponseWriter, r *http.Request) {
	route, ok := s.opts.Routes.Get(r.Method, r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !route.Public && !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, rpcFail{Error: &Error{
			Code:    "UNAUTHORIZED",
			Message: "missing or invalid bearer token",
		}})
		return
	}
	route.Handler.ServeHTTP(w, r)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
