// Package server exposes the conversation pipeline over HTTP: a JSON chat
// endpoint, a WebSocket endpoint for multi-turn sessions, health probes and
// Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convoke-ai/convoke/internal/health"
	"github.com/convoke-ai/convoke/internal/observe"
	"github.com/convoke-ai/convoke/internal/pipeline"
	"github.com/convoke-ai/convoke/pkg/provider/llm"
	"github.com/convoke-ai/convoke/pkg/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownGrace     = 15 * time.Second
)

// Server serves the pipeline over HTTP.
type Server struct {
	addr    string
	tlsCert string
	tlsKey  string
	pipe    *pipeline.Pipeline
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger
	httpSrv *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithTLS serves HTTPS with the given certificate pair.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.tlsCert = certFile
		s.tlsKey = keyFile
	}
}

// WithMetrics attaches request metrics and enables the /metrics endpoint.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth attaches readiness and liveness probes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// New builds a Server around the pipeline. The server does not listen until
// Start is called.
func New(addr string, pipe *pipeline.Pipeline, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		addr: addr,
		pipe: pipe,
		log:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           observe.Middleware(s.metrics)(s.routes()),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/chat/ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

// Handler returns the fully assembled HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start listens and serves until Shutdown is called or the listener fails.
// It blocks; run it in its own goroutine.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.addr, "tls", s.tlsCert != "")
	var err error
	if s.tlsCert != "" {
		err = s.httpSrv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: %w", err)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// chatRequest is the wire form of one chat turn.
type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`

	// History, when present, overrides the server-side conversation window
	// for clients that manage their own transcripts.
	History []types.Message `json:"history,omitempty"`

	Debug bool `json:"debug,omitempty"`
}

// chatResponse is the wire form of the pipeline's reply.
type chatResponse struct {
	Reply          string                  `json:"reply"`
	Outcome        string                  `json:"outcome"`
	Decision       pipeline.Decision       `json:"decision"`
	Interpretation pipeline.Interpretation `json:"interpretation"`
	Usage          llm.Usage               `json:"usage"`
	Ledger         []pipeline.CallRecord   `json:"ledger,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	resp, err := s.serve(r.Context(), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, status, err)
		return
	}

	// Marshal before the status line goes out; a late encoding failure must
	// not truncate a 200 response.
	body, err := json.Marshal(resp)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("encode response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.log.Debug("failed to write response", "error", err)
	}
}

// serve runs one chat turn through the pipeline and maps the result onto the
// wire response. Shared by the HTTP and WebSocket endpoints.
func (s *Server) serve(ctx context.Context, req chatRequest) (*chatResponse, error) {
	resp, err := s.pipe.Handle(ctx, pipeline.Request{
		ConversationID: req.ConversationID,
		AgentID:        req.AgentID,
		UserID:         req.UserID,
		UserMessage:    req.Message,
		History:        req.History,
		Debug:          req.Debug,
	})
	if err != nil {
		return nil, err
	}
	out := &chatResponse{
		Reply:          resp.ReplyText,
		Outcome:        string(resp.Outcome),
		Decision:       resp.Decision,
		Interpretation: resp.Interpretation,
		Usage:          resp.Usage,
		Ledger:         resp.Ledger,
	}
	s.dropUnserializableLedger(out)
	return out, nil
}

// dropUnserializableLedger removes the debug ledger when it cannot be
// marshalled. Ledger records carry raw model and tool payloads, which are
// arbitrary values; a record that won't serialize costs the diagnostics,
// never the reply.
func (s *Server) dropUnserializableLedger(resp *chatResponse) {
	if resp.Ledger == nil {
		return
	}
	if _, err := json.Marshal(resp.Ledger); err != nil {
		s.log.Warn("debug ledger failed to serialize, omitting it", "error", err)
		resp.Ledger = nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Warn("request rejected", "status", status, "error", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
