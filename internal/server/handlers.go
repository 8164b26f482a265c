package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/perchbot/perch/internal/agent/ai"
	"github.com/perchbot/perch/internal/agent/assistant"
	"github.com/perchbot/perch/internal/db"
	"github.com/perchbot/perch/internal/httputil"
	"github.com/perchbot/perch/internal/logging"
)

// ChatRequest is the wire format of POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	ChatID      string          `json:"chat_id,omitempty"`
	Message     string          `json:"message"`
	Attachments []ai.Attachment `json:"attachments,omitempty"`
}

// ChatResponse is the buffered reply.
type ChatResponse struct {
	ChatID     string   `json:"chat_id"`
	Text       string   `json:"text"`
	UsedTools  bool     `json:"used_tools,omitempty"`
	SwitchedTo string   `json:"switched_to,omitempty"`
	Usage      ai.Usage `json:"usage"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.Message == "" {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "message is required")
		return
	}

	chatID, history, err := s.loadHistory(r.Context(), req.ChatID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}

	res, err := s.agent.Process(r.Context(), &assistant.Request{
		Message:     req.Message,
		History:     history,
		Attachments: req.Attachments,
	})
	if err != nil {
		httputil.ErrorWithCode(w, http.StatusBadGateway, err.Error())
		return
	}

	s.persistExchange(r.Context(), chatID, &req, res.Text)
	httputil.OkJSON(w, buildResponse(chatID, res))
}

// handleChatStream relays deltas over SSE, then a final done event
// carrying the same payload the buffered endpoint returns.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.Message == "" {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.ErrorWithCode(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	chatID, history, err := s.loadHistory(r.Context(), req.ChatID)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	res, err := s.agent.ProcessStream(r.Context(), &assistant.Request{
		Message:     req.Message,
		History:     history,
		Attachments: req.Attachments,
	}, func(delta string) {
		writeSSE(w, "delta", map[string]string{"text": delta})
		flusher.Flush()
	})
	if err != nil {
		writeSSE(w, "error", map[string]string{"message": err.Error()})
		flusher.Flush()
		return
	}

	s.persistExchange(r.Context(), chatID, &req, res.Text)
	writeSSE(w, "done", buildResponse(chatID, res))
	flusher.Flush()
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats(r.Context())
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, chats)
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	chatID := httputil.PathVar(r, "chatID")
	limit := httputil.QueryInt(r, "limit", historyLimit)

	msgs, err := s.store.RecentMessages(r.Context(), chatID, limit)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, msgs)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := httputil.PathVar(r, "chatID")
	if err := s.store.DeleteChat(r.Context(), chatID); err != nil {
		httputil.NotFound(w, fmt.Sprintf("chat %s not found", chatID))
		return
	}
	httputil.OkJSON(w, map[string]string{"status": "deleted"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	days := httputil.QueryInt(r, "days", 30)
	since := time.Now().AddDate(0, 0, -days)

	totals, err := s.store.UsageSummary(r.Context(), since)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, totals)
}

// loadHistory resolves the chat id (minting one for a new chat) and
// loads the recent stored turns for it.
func (s *Server) loadHistory(ctx context.Context, chatID string) (string, []ai.Turn, error) {
	if chatID == "" {
		return uuid.NewString(), nil, nil
	}

	msgs, err := s.store.RecentMessages(ctx, chatID, historyLimit)
	if err != nil {
		return "", nil, fmt.Errorf("load history: %w", err)
	}

	turns := make([]ai.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = ai.Turn{Role: m.Role, Text: m.Content, AttachmentName: m.AttachmentName}
	}
	return chatID, turns, nil
}

// persistExchange stores the user turn and the assistant reply. Only
// successful exchanges enter history, so failed calls never pollute
// the next request's context.
func (s *Server) persistExchange(ctx context.Context, chatID string, req *ChatRequest, replyText string) {
	title := req.Message
	if len(title) > 80 {
		title = title[:80]
	}
	if err := s.store.EnsureChat(ctx, chatID, title); err != nil {
		logging.Warnf("ensure chat %s: %v", chatID, err)
		return
	}

	userMsg := db.ChatMessage{ChatID: chatID, Role: "user", Content: req.Message}
	if len(req.Attachments) > 0 {
		userMsg.AttachmentName = req.Attachments[0].FileName
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		logging.Warnf("store user message: %v", err)
	}
	if err := s.store.AppendMessage(ctx, db.ChatMessage{ChatID: chatID, Role: "assistant", Content: replyText}); err != nil {
		logging.Warnf("store assistant message: %v", err)
	}
}

func buildResponse(chatID string, res *assistant.Result) ChatResponse {
	out := ChatResponse{
		ChatID:    chatID,
		Text:      res.Text,
		UsedTools: res.UsedTools,
		Usage:     res.Usage,
	}
	if res.SwitchedTo != nil {
		out.SwitchedTo = res.SwitchedTo.Name + "/" + res.SwitchedTo.Model
	}
	return out
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
