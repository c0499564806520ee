// Package api exposes the JSON and SSE HTTP surface: chat CRUD, turn
// submission, streaming turns, replayed views, and health probes.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amacdonaldai/gen-bionic/internal/chat"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/session"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

// Store is the chat metadata surface the handlers need. *session.Store
// satisfies it.
type Store interface {
	CreateChat(ctx context.Context, ownerID, title string) (*session.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*session.Chat, error)
	ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*session.Chat, error)
	DeleteChat(ctx context.Context, id uuid.UUID) error
}

// TurnRunner drives turns and replay. *chat.Engine satisfies it.
type TurnRunner interface {
	SubmitTurn(ctx context.Context, req chat.TurnRequest) (*chat.TurnResult, error)
	Replay(ctx context.Context, chatID uuid.UUID) ([]view.Node, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger log.Logger
	Store  Store
	Engine TurnRunner

	// Pool is optional; when present /ready reports pool connectivity.
	Pool *pgxpool.Pool
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api: server requires a store")
	}
	if cfg.Engine == nil {
		return nil, errors.New("api: server requires a turn engine")
	}
	if cfg.Logger == nil {
		return nil, errors.New("api: server requires a logger")
	}

	ch := &chatHandler{store: cfg.Store, engine: cfg.Engine, logger: cfg.Logger}
	hh := &healthHandler{pool: cfg.Pool}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", hh.health)
	mux.HandleFunc("GET /api/v1/ready", hh.ready)

	mux.HandleFunc("POST /api/v1/chats", ch.create)
	mux.HandleFunc("GET /api/v1/chats", ch.list)
	mux.HandleFunc("GET /api/v1/chats/{id}", ch.get)
	mux.HandleFunc("GET /api/v1/chats/{id}/views", ch.views)
	mux.HandleFunc("DELETE /api/v1/chats/{id}", ch.delete)

	mux.HandleFunc("POST /api/v1/chats/{id}/turns", ch.submitTurn)
	mux.HandleFunc("POST /api/v1/chats/{id}/turns/stream", ch.streamTurn)

	var handler http.Handler = mux
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	return &Server{handler: handler}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
