// Package server exposes the workflow engine over HTTP: an SSE streaming
// chat endpoint, a blocking variant, a health probe and an administrative
// config reload.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhisuan/graphchat/config"
	"github.com/zhisuan/graphchat/graph"
	"github.com/zhisuan/graphchat/log"
	"github.com/zhisuan/graphchat/store"
	"github.com/zhisuan/graphchat/workflow"
)

// Server wires the engine and its collaborators into HTTP handlers.
type Server struct {
	engine   *workflow.Engine
	cfg      *config.Holder
	sessions store.SessionStore // optional; nil disables history persistence
	logger   log.Logger
}

func New(engine *workflow.Engine, cfg *config.Holder, sessions store.SessionStore) *Server {
	return &Server{
		engine:   engine,
		cfg:      cfg,
		sessions: sessions,
		logger:   log.GetDefaultLogger(),
	}
}

// Router builds the route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/chat/blocking", s.handleChatBlocking)
	r.Get("/healthz", s.handleHealth)
	r.Post("/admin/config/reload", s.handleConfigReload)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.cfg.Reload(); err != nil {
		s.logger.Error("config reload failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.logger.Info("configuration reloaded")
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}

// handleChat streams workflow events as server-sent events. The first
// frame acknowledges the connection before any node runs.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	st, proc, ok := s.prepare(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	em := proc.Emitter()
	writeSSE(w, em.NewEvent(graph.KindNodeStarted, map[string]any{
		"node":    "connection",
		"message": "连接已建立，正在处理数据...",
	}))
	flusher.Flush()

	for ev := range proc.Process(r.Context()) {
		writeSSE(w, ev)
		flusher.Flush()
	}

	s.persistTurn(r.Context(), st, proc.State())
}

// handleChatBlocking drains the stream server-side and returns one JSON
// answer.
func (s *Server) handleChatBlocking(w http.ResponseWriter, r *http.Request) {
	st, proc, ok := s.prepare(w, r)
	if !ok {
		return
	}

	answer, errs := workflow.Collect(proc.Process(r.Context()))
	s.persistTurn(r.Context(), st, proc.State())

	resp := map[string]any{
		"answer":        answer,
		"conversion_id": proc.Emitter().ConversionID(),
	}
	if sid := proc.Emitter().SessionID(); sid != "" {
		resp["session_id"] = sid
	}
	if len(errs) > 0 {
		resp["errors"] = errs
	}
	writeJSON(w, http.StatusOK, resp)
}

// prepare decodes the request, merges stored history and selects the
// workflow. On failure it has already written the error response.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (graph.State, *graph.Processor, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("请求体不是合法的JSON: %v", err)})
		return nil, nil, false
	}

	st := graph.State(body)
	s.mergeStoredHistory(r.Context(), st)

	proc, err := s.engine.Select(st)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return nil, nil, false
	}
	return st, proc, true
}

// mergeStoredHistory loads persisted turns for the session when the
// request did not carry its own conversation_history.
func (s *Server) mergeStoredHistory(ctx context.Context, st graph.State) {
	if s.sessions == nil || st.Has(workflow.KeyHistory) {
		return
	}
	sessionID := st.GetString(workflow.KeySessionID)
	if sessionID == "" {
		return
	}

	stored, err := s.sessions.History(ctx, sessionID, s.cfg.Get().SessionHistoryLimit)
	if err != nil {
		s.logger.Warn("load session history %s: %v", sessionID, err)
		return
	}
	if len(stored) == 0 {
		return
	}
	history := make([]any, 0, len(stored))
	for _, msg := range stored {
		history = append(history, map[string]any{"role": msg.Role, "content": msg.Content})
	}
	st[workflow.KeyHistory] = history
}

// persistTurn appends the finished exchange to the session store.
func (s *Server) persistTurn(ctx context.Context, request, result graph.State) {
	if s.sessions == nil {
		return
	}
	sessionID := request.GetString(workflow.KeySessionID)
	answer := result.GetString(workflow.KeyFinalAnswer)
	if sessionID == "" || answer == "" {
		return
	}

	// The request context may already be done when the client hung up.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if query := request.GetString(workflow.KeySysQuery); query != "" {
		if err := s.sessions.Append(ctx, sessionID, store.Message{Role: "user", Content: query}); err != nil {
			s.logger.Warn("persist user turn %s: %v", sessionID, err)
			return
		}
	}
	if err := s.sessions.Append(ctx, sessionID, store.Message{Role: "assistant", Content: answer}); err != nil {
		s.logger.Warn("persist assistant turn %s: %v", sessionID, err)
	}
}

func writeSSE(w http.ResponseWriter, ev graph.Event) {
	wire, err := ev.Wire()
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", wire.Event, wire.Data)
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
