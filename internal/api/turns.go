package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/amacdonaldai/gen-bionic/internal/chat"
	"github.com/amacdonaldai/gen-bionic/internal/log"
	"github.com/amacdonaldai/gen-bionic/internal/view"
)

// SSE event names sent by the streaming turn endpoint.
const (
	EventChunk = "chunk"
	EventView  = "view"
	EventDone  = "done"
	EventError = "error"
)

// ChunkPayload carries one response text delta.
type ChunkPayload struct {
	Text string `json:"text"`
}

// DonePayload closes a streamed turn with the settled result.
type DonePayload struct {
	User     view.Node `json:"user"`
	Final    view.Node `json:"final"`
	Degraded bool      `json:"degraded,omitempty"`
}

// ErrorPayload reports a turn failure over the event stream.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type turnRequest struct {
	Text    string           `json:"text,omitempty"`
	Model   string           `json:"model,omitempty"`
	Images  [][]byte         `json:"images,omitempty"`
	Files   []turnAttachment `json:"files,omitempty"`
	Tabular []turnTabular    `json:"tabular,omitempty"`
}

type turnAttachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type turnTabular struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (h *chatHandler) decodeTurn(w http.ResponseWriter, r *http.Request) (chat.TurnRequest, bool) {
	id, ok := pathChatID(w, r)
	if !ok {
		return chat.TurnRequest{}, false
	}

	var body turnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBodySize)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return chat.TurnRequest{}, false
	}

	req := chat.TurnRequest{
		ChatID: id,
		Text:   body.Text,
		Model:  body.Model,
		Images: body.Images,
	}
	for _, f := range body.Files {
		req.Files = append(req.Files, chat.FileAttachment{
			Name:     f.Name,
			MIMEType: f.MIMEType,
			Data:     f.Data,
		})
	}
	for _, tab := range body.Tabular {
		req.Tabular = append(req.Tabular, chat.TabularAttachment{Name: tab.Name, Text: tab.Text})
	}
	return req, true
}

// submitTurn runs a full turn and returns the settled result as JSON.
// Intermediate views and text deltas are not delivered; clients that
// want them use the streaming endpoint.
func (h *chatHandler) submitTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTurn(w, r)
	if !ok {
		return
	}

	res, err := h.engine.SubmitTurn(r.Context(), req)
	if err != nil {
		status, code, msg := turnError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("submitting turn", "error", err, "chat_id", req.ChatID)
		}
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, DonePayload{
		User:     res.User,
		Final:    res.Final,
		Degraded: res.Degraded,
	})
}

// streamTurn runs a turn over Server-Sent Events: "view" events for
// loading indicators and terminal tool views, "chunk" events for text
// deltas, then a single "done" or "error" event.
func (h *chatHandler) streamTurn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTurn(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emitter := &sseEmitter{w: w, flusher: flusher, logger: h.logger}
	req.Views = emitter
	req.Stream = emitter.chunk

	res, err := h.engine.SubmitTurn(r.Context(), req)
	if err != nil {
		_, code, msg := turnError(err)
		h.logger.Warn("streamed turn failed", "error", err, "chat_id", req.ChatID)
		emitter.event(EventError, ErrorPayload{Code: code, Message: msg})
		return
	}

	emitter.event(EventDone, DonePayload{
		User:     res.User,
		Final:    res.Final,
		Degraded: res.Degraded,
	})
}

// sseEmitter serializes SSE writes. Text deltas arrive from the stream
// drain goroutine while view nodes arrive from the turn goroutine, so
// every write holds the mutex.
type sseEmitter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	logger  log.Logger
}

// EmitView delivers a live view node to the client.
func (e *sseEmitter) EmitView(_ context.Context, node view.Node) {
	e.event(EventView, node)
}

func (e *sseEmitter) chunk(_ context.Context, delta string) error {
	e.event(EventChunk, ChunkPayload{Text: delta})
	return nil
}

func (e *sseEmitter) event(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		e.logger.Debug("encoding SSE event", "event", name, "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		// Write failures mean the client went away.
		e.logger.Debug("writing SSE event", "event", name, "error", err)
		return
	}
	e.flusher.Flush()
}
