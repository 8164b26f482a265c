// Package server exposes the assistant over a local HTTP gateway.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/perchbot/perch/internal/agent/assistant"
	"github.com/perchbot/perch/internal/db"
	"github.com/perchbot/perch/internal/logging"
)

// historyLimit caps how many stored messages feed one request; the
// budget builder trims further from there.
const historyLimit = 50

// Agent is the slice of the assistant the gateway needs. Satisfied by
// *assistant.Assistant.
type Agent interface {
	Process(ctx context.Context, req *assistant.Request) (*assistant.Result, error)
	ProcessStream(ctx context.Context, req *assistant.Request, onDelta func(string)) (*assistant.Result, error)
}

// Server wires the gateway handlers over the assistant and the store.
type Server struct {
	agent Agent
	store *db.Store
}

// NewServer creates a gateway server.
func NewServer(agent Agent, store *db.Store) *Server {
	return &Server{agent: agent, store: store}
}

// Router builds the chi router with all gateway routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)
		r.Get("/chats", s.handleListChats)
		r.Get("/chats/{chatID}/messages", s.handleChatMessages)
		r.Delete("/chats/{chatID}", s.handleDeleteChat)
		r.Get("/usage", s.handleUsage)
	})

	return r
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := checkAddrAvailable(addr); err != nil {
		return fmt.Errorf("address %s is already in use", addr)
	}

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.Router(),
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("gateway listening on http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func checkAddrAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
