package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sinadarvi/quest/internal/agent/core"
	"github.com/sinadarvi/quest/internal/store"
	"github.com/sinadarvi/quest/internal/telemetry"
)

// DefaultChatTimeout bounds one streamed chat request end to end, including
// any research flow it triggers.
const DefaultChatTimeout = 300 * time.Second

// ChatHandler serves the streamed chat endpoint.
type ChatHandler struct {
	Registry     *core.Registry
	DefaultRoute string // {provider}:{model} used when the request has no override
	Toolbox      *core.Toolbox
	Store        *store.Store
	Cache        *store.ReplayCache
	Telemetry    *telemetry.Telemetry
	Timeout      time.Duration
	Logger       *log.Logger
}

func (h *ChatHandler) Register(g *echo.Group, secret []byte) {
	g.POST("", func(c echo.Context) error { return h.handle(c) }, optionalAuth(secret))
}

// optionalAuth attaches user identity when a valid token is present but lets
// anonymous requests through; anonymous chats are simply not persisted.
func optionalAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if extractToken(c) == "" {
				return next(c)
			}
			return withAuth(next, secret)(c)
		}
	}
}

// sseSink streams text chunks and annotations as server-sent events while
// recording them for persistence and replay. Writes are serialized: tool
// goroutines may annotate concurrently with streamed text.
type sseSink struct {
	mu      sync.Mutex
	resp    *echo.Response
	text    strings.Builder
	annots  []core.Annotation
	dropped bool // set once a write fails; later events are discarded
}

func newSSESink(c echo.Context) *sseSink {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()
	return &sseSink{resp: resp}
}

func (s *sseSink) writeEvent(event string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return
	}
	b, err := json.Marshal(data)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(s.resp, "event: %s\ndata: %s\n\n", event, b); err != nil {
		s.dropped = true
		return
	}
	s.resp.Flush()
}

func (s *sseSink) Text(chunk string) {
	s.mu.Lock()
	s.text.WriteString(chunk)
	s.mu.Unlock()
	s.writeEvent("text", chunk)
}

func (s *sseSink) Annotate(a core.Annotation) {
	s.mu.Lock()
	s.annots = append(s.annots, a)
	s.mu.Unlock()
	s.writeEvent("annotation", a)
}

// replayPayload is the cached rendering of one completed extreme-group turn.
type replayPayload struct {
	Annotations []core.Annotation `json:"annotations"`
	Text        string            `json:"text"`
}

func (h *ChatHandler) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return DefaultChatTimeout
}

func (h *ChatHandler) handle(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages is required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		return echo.NewHTTPError(http.StatusBadRequest, "last message must be from the user")
	}

	route := req.Model
	if route == "" {
		route = h.DefaultRoute
	}
	provider, model, err := h.Registry.Resolve(route)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	group := core.ParseGroup(req.Group)

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout())
	defer cancel()

	sink := newSSESink(c)

	// a repeated research question replays from cache without a model call
	if group == core.GroupExtreme {
		if payload, ok := h.Cache.Get(ctx, last.Content, string(group)); ok {
			var cached replayPayload
			if err := json.Unmarshal(payload, &cached); err == nil {
				h.Logger.Printf("replaying cached research for %q", last.Content)
				for _, a := range cached.Annotations {
					sink.Annotate(a)
				}
				sink.Text(cached.Text)
				sink.writeEvent("done", ChatCreatedResponse{})
				return nil
			}
		}
	}

	tools, systemPrompt := h.Toolbox.ToolsFor(group, sink)
	messages := make([]core.Message, 0, len(req.Messages)+1)
	messages = append(messages, core.Message{Role: "system", Content: systemPrompt})
	for _, m := range req.Messages {
		messages = append(messages, core.Message{Role: m.Role, Content: m.Content})
	}

	loop := core.NewLoop(provider, model, tools, h.Telemetry, h.Logger)
	history, err := loop.Run(ctx, messages, sink)
	if err != nil {
		// the stream is already committed; surface the failure in-band
		h.Logger.Printf("chat turn failed: %v", err)
		sink.writeEvent("error", HTTPError{Error: err.Error()})
		return nil
	}

	finalText := sink.text.String()
	if group == core.GroupExtreme && finalText != "" {
		if payload, err := json.Marshal(replayPayload{Annotations: sink.annots, Text: finalText}); err == nil {
			h.Cache.Set(ctx, last.Content, string(group), payload)
		}
	}

	done := ChatCreatedResponse{}
	if chatID, err := h.persist(c, req, group, history); err != nil {
		h.Logger.Printf("persist chat: %v", err)
	} else {
		done.ChatID = chatID
	}
	sink.writeEvent("done", done)
	return nil
}

// persist saves the full turn for authenticated users. Anonymous sessions and
// serverless deployments without Postgres skip persistence silently.
func (h *ChatHandler) persist(c echo.Context, req ChatRequest, group core.Group, history []core.Message) (string, error) {
	if h.Store == nil {
		return "", nil
	}
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return "", nil
	}

	var visible []ChatMessage
	for _, m := range history {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Role == "assistant" && m.Content == "" {
			continue // tool-call-only turns
		}
		visible = append(visible, ChatMessage{Role: m.Role, Content: m.Content})
	}
	payload, err := json.Marshal(visible)
	if err != nil {
		return "", err
	}

	ctx := c.Request().Context()
	if req.ID != "" {
		if err := h.Store.UpdateChat(ctx, req.ID, userID, payload); err != nil {
			return "", err
		}
		return req.ID, nil
	}
	title := chatTitle(req.Messages)
	return h.Store.SaveChat(ctx, userID, title, string(group), payload)
}

func chatTitle(messages []ChatMessage) string {
	const max = 80
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		t := strings.TrimSpace(m.Content)
		if len(t) > max {
			return t[:max]
		}
		if t != "" {
			return t
		}
	}
	return "New chat"
}
