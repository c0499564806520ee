package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/amacdonaldai/gen-bionic/internal/chat"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/session"
)

const (
	// maxTurnBodySize limits turn request bodies. Attachments are
	// base64-encoded inline, so this bounds upload size too.
	maxTurnBodySize = 10 << 20

	defaultListLimit = 50
	maxListLimit     = 200
)

type chatHandler struct {
	store  Store
	engine TurnRunner
	logger log.Logger
}

type createChatRequest struct {
	Title string `json:"title,omitempty"`
}

func (h *chatHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	c, err := h.store.CreateChat(r.Context(), ownerID(r), req.Title)
	if err != nil {
		h.logger.Error("creating chat", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *chatHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	chats, err := h.store.ListChats(r.Context(), ownerID(r), limit, offset)
	if err != nil {
		h.logger.Error("listing chats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *chatHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathChatID(w, r)
	if !ok {
		return
	}

	c, err := h.store.GetChat(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "loading chat")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// views returns the full conversation rebuilt as renderable view nodes.
func (h *chatHandler) views(w http.ResponseWriter, r *http.Request) {
	id, ok := pathChatID(w, r)
	if !ok {
		return
	}

	nodes, err := h.engine.Replay(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "replaying chat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"views": nodes})
}

func (h *chatHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathChatID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteChat(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "deleting chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *chatHandler) writeStoreError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, session.ErrChatNotFound) {
		writeError(w, http.StatusNotFound, "chat_not_found", "chat not found")
		return
	}
	h.logger.Error(action, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// turnError maps engine failures to HTTP status and error code.
func turnError(err error) (int, string, string) {
	switch {
	case errors.Is(err, session.ErrChatNotFound):
		return http.StatusNotFound, "chat_not_found", "chat not found"
	case errors.Is(err, chat.ErrEmptyTurn):
		return http.StatusBadRequest, "empty_turn", "turn must contain text, images, or files"
	case errors.Is(err, chat.ErrModelCall):
		return http.StatusBadGateway, "model_error", "language model call failed"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func pathChatID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_chat_id", "chat ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// ownerID identifies the caller. Single-tenant deployments can omit the
// header and share the default owner.
func ownerID(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return "default"
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
