// Package proxy exposes the run's model backend to judge subprocesses
// over a local authenticated HTTP side-channel, so externally authored
// judges never hold provider credentials. Calls count against a per-run
// budget.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/arbiterlabs/arbiter/internal/provider"
	"github.com/arbiterlabs/arbiter/pkg/types"
)

// Env var names judge subprocesses read to find the proxy.
const (
	EnvProxyURL   = "ARBITER_PROXY_URL"
	EnvProxyToken = "ARBITER_PROXY_TOKEN"
)

// Config configures a proxy Server.
type Config struct {
	// Targets maps selectable target names to backends. DefaultTarget
	// names the one used when a request does not pick.
	Targets       map[string]provider.Backend
	DefaultTarget string
	Token         string
	MaxCalls      int
	Addr          string // listen address, defaults to 127.0.0.1:0
	Logger        *slog.Logger
}

// Server is the target-proxy HTTP server.
type Server struct {
	targets       map[string]provider.Backend
	defaultTarget string
	token         string
	maxCalls      int
	logger        *slog.Logger

	// calls is the one piece of state judge subprocesses mutate
	// concurrently; the budget only holds if reservation is atomic.
	mu    sync.Mutex
	calls int

	httpSrv  *http.Server
	listener net.Listener
}

// New creates a proxy server. It does not listen until Start.
func New(cfg Config) (*Server, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("proxy: at least one target is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("proxy: Token is required")
	}
	defaultTarget := cfg.DefaultTarget
	if defaultTarget == "" {
		for name := range cfg.Targets {
			defaultTarget = name
			break
		}
	}
	if _, ok := cfg.Targets[defaultTarget]; !ok {
		return nil, fmt.Errorf("proxy: default target %q not in Targets", defaultTarget)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		targets:       cfg.Targets,
		defaultTarget: defaultTarget,
		token:         cfg.Token,
		maxCalls:      cfg.MaxCalls,
		logger:        logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", s.auth(s.handleInvoke))
	mux.HandleFunc("POST /invokeBatch", s.auth(s.handleInvokeBatch))
	mux.HandleFunc("GET /info", s.auth(s.handleInfo))

	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	s.httpSrv = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}
	return s, nil
}

// Start begins listening. URL is valid after Start returns.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("proxy listen: %w", err)
	}
	s.listener = ln
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("proxy server error", "err", err)
		}
	}()
	s.logger.Info("target proxy listening", "addr", ln.Addr().String())
	return nil
}

// URL returns the base URL judges should use.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "http://" + s.listener.Addr().String()
}

// Token returns the bearer token judges must present.
func (s *Server) Token() string { return s.token }

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// CallCount returns how many calls have been charged against the budget.
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// reserve atomically charges n calls against the budget. A maxCalls of 0
// disables the budget.
func (s *Server) reserve(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxCalls > 0 && s.calls+n > s.maxCalls {
		return fmt.Errorf("proxy call budget exceeded: %d/%d", s.calls, s.maxCalls)
	}
	s.calls += n
	return nil
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token != s.token {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

// invokeRequest is one proxied model call. Target selects an alternate
// backend; empty means the default.
type invokeRequest struct {
	Target   string          `json:"target,omitempty"`
	CaseID   string          `json:"case_id,omitempty"`
	Messages []types.Message `json:"messages"`
}

type invokeResponse struct {
	CaseID         string          `json:"case_id,omitempty"`
	Text           string          `json:"text"`
	OutputMessages []types.Message `json:"output_messages,omitempty"`
}

type batchRequest struct {
	Target   string          `json:"target,omitempty"`
	Requests []invokeRequest `json:"requests"`
}

type batchResponse struct {
	Responses map[string]invokeResponse `json:"responses"`
}

type infoResponse struct {
	Target    string   `json:"target"`
	MaxCalls  int      `json:"max_calls"`
	CallCount int      `json:"call_count"`
	Targets   []string `json:"targets"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	backend, err := s.target(req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.reserve(1); err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	resp, err := backend.Invoke(r.Context(), &provider.Request{
		CaseID:   req.CaseID,
		Messages: req.Messages,
	})
	if err != nil {
		s.logger.Error("proxied invoke failed", "target", backend.Name(), "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, invokeResponse{
		CaseID:         resp.CaseID,
		Text:           resp.Text,
		OutputMessages: resp.OutputMessages,
	})
}

func (s *Server) handleInvokeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests are required")
		return
	}

	backend, err := s.target(req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.reserve(len(req.Requests)); err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	out := batchResponse{Responses: make(map[string]invokeResponse, len(req.Requests))}
	for i := range req.Requests {
		sub := &req.Requests[i]
		key := sub.CaseID
		if key == "" {
			key = fmt.Sprintf("request-%d", i)
		}
		resp, err := backend.Invoke(r.Context(), &provider.Request{
			CaseID:   sub.CaseID,
			Messages: sub.Messages,
		})
		if err != nil {
			s.logger.Error("proxied batch invoke failed", "target", backend.Name(), "case", key, "err", err)
			out.Responses[key] = invokeResponse{CaseID: sub.CaseID, Text: ""}
			continue
		}
		out.Responses[key] = invokeResponse{
			CaseID:         resp.CaseID,
			Text:           resp.Text,
			OutputMessages: resp.OutputMessages,
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	sort.Strings(names)

	writeJSON(w, http.StatusOK, infoResponse{
		Target:    s.defaultTarget,
		MaxCalls:  s.maxCalls,
		CallCount: s.CallCount(),
		Targets:   names,
	})
}

func (s *Server) target(name string) (provider.Backend, error) {
	if name == "" {
		name = s.defaultTarget
	}
	backend, ok := s.targets[name]
	if !ok {
		return nil, fmt.Errorf("unknown target: %s", name)
	}
	return backend, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
