package core

import (
	"context"
	"encoding/json"
)

// Message is one chat turn in provider-neutral form. Tool results are
// represented as role "tool" messages carrying the originating call id.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDef describes a tool to the model: name, purpose, and a JSON schema
// for its arguments.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// StreamDelta is one increment of a streamed model response. Text and tool
// call fragments arrive interleaved; Done closes the turn with usage totals.
type StreamDelta struct {
	Text      string
	ToolCalls []ToolCall // complete calls, delivered once fully accumulated
	Done      bool

	InputTokens  int64
	OutputTokens int64
}

// ModelInfo contains metadata about a configured model.
type ModelInfo struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	MaxTokens       int      `json:"max_tokens"`
	CostPer1KInput  float64  `json:"cost_per_1k_input"`
	CostPer1KOutput float64  `json:"cost_per_1k_output"`
	Capabilities    []string `json:"capabilities"`
	Description     string   `json:"description"`
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature *float64
	MaxTokens   int
	JSONMode    bool // ask the provider for a JSON object response
}

// LLMProvider abstracts a chat-completion backend.
type LLMProvider interface {
	// Generate runs a single non-streamed completion over the messages.
	Generate(ctx context.Context, messages []Message, model string, opts GenerateOptions) (string, int64, int64, error)
	// ChatStream runs one completion with tool definitions attached, pushing
	// deltas to onDelta as they arrive. It returns the assistant message
	// (text plus any tool calls) once the turn completes.
	ChatStream(ctx context.Context, messages []Message, tools []ToolDef, model string, opts GenerateOptions, onDelta func(StreamDelta)) (Message, error)
	GetAvailableModels() []string
	GetModelInfo(model string) (ModelInfo, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// Tool is an executable capability exposed to the agent loop. Execute returns
// a JSON-serializable value that is fed back to the model verbatim.
type Tool interface {
	Def() ToolDef
	Execute(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// Annotation is an out-of-band event surfaced to the chat client alongside
// streamed text (research progress, fetched documents, weather cards).
type Annotation struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TurnSink receives the streamed output of one agent turn.
type TurnSink interface {
	Text(s string)
	Annotate(a Annotation)
}
