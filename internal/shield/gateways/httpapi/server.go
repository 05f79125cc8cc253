// Package httpapi exposes the message contract over local HTTP. It handles
// all protocol concerns so the dispatcher only ever sees wire types.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/gateways/dispatch/wire"
)

// MessageHandler processes one decoded request. The transport never inspects
// the payload beyond the envelope.
type MessageHandler interface {
	Handle(ctx context.Context, req wire.Request) wire.Response
}

// Server is the HTTP transport for the message contract.
type Server struct {
	addr    string
	handler MessageHandler
	logger  log.Logger

	mu       sync.Mutex
	running  bool
	srv      *http.Server
	listener net.Listener
}

// NewServer creates an HTTP transport bound to addr.
func NewServer(addr string, handler MessageHandler, logger log.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logger,
	}
}

// Start binds the listener and begins serving in its own goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("http transport already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind http listener on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/message", s.handleMessage)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.listener = listener
	s.running = true

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err.Error()}, "HTTP transport terminated")
		}
	}()

	s.logger.Info(map[string]any{
		"transport": "http",
		"address":   listener.Addr().String(),
	}, "Message transport started")
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(shutdownCtx)
	s.running = false

	s.logger.Info(map[string]any{
		"transport": "http",
		"address":   s.addr,
	}, "Message transport stopped")
	return err
}

// Address returns the bound address, useful when addr requested port 0.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req wire.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, wire.Response{
			OK:        false,
			ErrorKind: wire.ErrorKindInvalidInput,
			Error:     fmt.Sprintf("malformed request: %v", err),
		})
		return
	}

	resp := s.handler.Handle(r.Context(), req)
	writeJSON(w, statusFor(resp), resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the response envelope to an HTTP status. Clients are
// expected to branch on the envelope; the status is a convenience.
func statusFor(resp wire.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch resp.ErrorKind {
	case wire.ErrorKindInvalidInput:
		return http.StatusBadRequest
	case wire.ErrorKindAuthRequired:
		return http.StatusUnauthorized
	case wire.ErrorKindWrongCredential:
		return http.StatusForbidden
	case wire.ErrorKindLocked:
		return http.StatusTooManyRequests
	case wire.ErrorKindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
