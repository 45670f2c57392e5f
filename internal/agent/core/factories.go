package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/sinadarvi/quest/config"
)

// Registry holds the configured providers and resolves "{provider}:{model}"
// routing keys to a provider plus its model key.
type Registry struct {
	providers map[string]LLMProvider
}

// NewRegistry creates every configured provider.
func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	providers := make(map[string]LLMProvider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		switch pc.Type {
		case "openai":
			providers[name] = NewOpenAIProvider(pc)
		case "anthropic":
			providers[name] = NewAnthropicProvider(pc)
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", pc.Type)
		}
	}
	return &Registry{providers: providers}, nil
}

// Resolve splits a "{provider}:{model}" routing key.
func (r *Registry) Resolve(route string) (LLMProvider, string, error) {
	name, model, ok := strings.Cut(route, ":")
	if !ok {
		return nil, "", fmt.Errorf("invalid model route %q, want provider:model", route)
	}
	p, exists := r.providers[name]
	if !exists {
		return nil, "", fmt.Errorf("provider %q not configured", name)
	}
	if _, err := p.GetModelInfo(model); err != nil {
		return nil, "", fmt.Errorf("route %q: %w", route, err)
	}
	return p, model, nil
}

// Providers lists configured provider names, sorted for stable output.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAIProvider implements LLMProvider against the OpenAI chat API.
type OpenAIProvider struct {
	config    config.LLMProvider
	models    map[string]ModelInfo
	rawModels map[string]config.LLMModel
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	provider := &OpenAIProvider{
		config:    cfg,
		models:    make(map[string]ModelInfo),
		rawModels: cfg.Models,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
	for key, model := range cfg.Models {
		provider.models[key] = ModelInfo{
			Name:            model.Name,
			Provider:        "openai",
			MaxTokens:       model.MaxTokens,
			CostPer1KInput:  model.CostPer1K,
			CostPer1KOutput: model.CostPer1KOutput,
			Description:     fmt.Sprintf("OpenAI %s model", model.Name),
		}
	}
	return provider
}

func (p *OpenAIProvider) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (p *OpenAIProvider) baseURL() string {
	if p.config.BaseURL != "" {
		return p.config.BaseURL
	}
	return "https://api.openai.com/v1"
}

// wire types for the chat completions API
type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

func toOpenAIMessages(messages []Message) []oaMessage {
	out := make([]oaMessage, 0, len(messages))
	for _, m := range messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			otc := oaToolCall{ID: tc.ID, Type: "function"}
			otc.Function.Name = tc.Name
			otc.Function.Arguments = string(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []ToolDef) []oaTool {
	out := make([]oaTool, 0, len(tools))
	for _, t := range tools {
		ot := oaTool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		out = append(out, ot)
	}
	return out
}

func (p *OpenAIProvider) modelFor(model string) (config.LLMModel, string, error) {
	m, ok := p.rawModels[model]
	if !ok {
		return config.LLMModel{}, "", fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	return m, apiModel, nil
}

// Generate runs one non-streamed completion.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, model string, opts GenerateOptions) (string, int64, int64, error) {
	apiKey := p.apiKey()
	if apiKey == "" {
		return "", 0, 0, fmt.Errorf("OpenAI API key not configured")
	}
	m, apiModel, err := p.modelFor(model)
	if err != nil {
		return "", 0, 0, err
	}

	payload := map[string]interface{}{
		"model":    apiModel,
		"messages": toOpenAIMessages(messages),
	}
	temperature := m.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if temperature != 0 {
		payload["temperature"] = temperature
	}
	maxTokens := m.MaxTokens
	if opts.MaxTokens != 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens != 0 {
		payload["max_tokens"] = maxTokens
	}
	if opts.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", 0, 0, fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no choices")
	}
	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), nil
}

// ChatStream runs one streamed completion with tools attached. Tool call
// fragments are accumulated per choice index and delivered as complete calls
// only when the stream closes, since argument JSON arrives in pieces.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDef, model string, opts GenerateOptions, onDelta func(StreamDelta)) (Message, error) {
	apiKey := p.apiKey()
	if apiKey == "" {
		return Message{}, fmt.Errorf("OpenAI API key not configured")
	}
	m, apiModel, err := p.modelFor(model)
	if err != nil {
		return Message{}, err
	}

	payload := map[string]interface{}{
		"model":          apiModel,
		"messages":       toOpenAIMessages(messages),
		"stream":         true,
		"stream_options": map[string]bool{"include_usage": true},
	}
	if len(tools) > 0 {
		payload["tools"] = toOpenAITools(tools)
	}
	if m.Temperature != 0 {
		payload["temperature"] = m.Temperature
	}
	if opts.Temperature != nil {
		payload["temperature"] = *opts.Temperature
	}
	if m.MaxTokens != 0 {
		payload["max_tokens"] = m.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return Message{}, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Message{}, fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, string(b))
	}

	type partialCall struct {
		id   string
		name string
		args strings.Builder
	}
	var (
		text     strings.Builder
		partials = map[int]*partialCall{}
		order    []int
		inTok    int64
		outTok   int64
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content   string `json:"content"`
					ToolCalls []struct {
						Index    int    `json:"index"`
						ID       string `json:"id"`
						Function struct {
							Name      string `json:"name"`
							Arguments string `json:"arguments"`
						} `json:"function"`
					} `json:"tool_calls"`
				} `json:"delta"`
			} `json:"choices"`
			Usage *struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue // tolerate keepalive noise
		}
		if chunk.Usage != nil {
			inTok = int64(chunk.Usage.PromptTokens)
			outTok = int64(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(StreamDelta{Text: delta.Content})
			}
		}
		for _, tc := range delta.ToolCalls {
			pc, ok := partials[tc.Index]
			if !ok {
				pc = &partialCall{}
				partials[tc.Index] = pc
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				pc.id = tc.ID
			}
			if tc.Function.Name != "" {
				pc.name = tc.Function.Name
			}
			pc.args.WriteString(tc.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		return Message{}, fmt.Errorf("stream read: %w", err)
	}

	msg := Message{Role: "assistant", Content: text.String()}
	sort.Ints(order)
	for _, idx := range order {
		pc := partials[idx]
		args := pc.args.String()
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: pc.id, Name: pc.name, Arguments: json.RawMessage(args)})
	}
	if onDelta != nil {
		onDelta(StreamDelta{Done: true, ToolCalls: msg.ToolCalls, InputTokens: inTok, OutputTokens: outTok})
	}
	return msg, nil
}

// GetAvailableModels returns configured model keys.
func (p *OpenAIProvider) GetAvailableModels() []string {
	var models []string
	for name := range p.models {
		models = append(models, name)
	}
	sort.Strings(models)
	return models
}

// GetModelInfo returns information about a specific model.
func (p *OpenAIProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, exists := p.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost calculates the cost for a given number of tokens.
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}
	return float64(inputTokens)/1000.0*info.CostPer1KInput + float64(outputTokens)/1000.0*info.CostPer1KOutput
}

// AnthropicProvider implements LLMProvider against the Anthropic messages
// API. Responses are not streamed from the backend; ChatStream delivers the
// full turn as a single delta so callers see a uniform interface.
type AnthropicProvider struct {
	config config.LLMProvider
	models map[string]ModelInfo
	client *http.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg config.LLMProvider) *AnthropicProvider {
	provider := &AnthropicProvider{
		config: cfg,
		models: make(map[string]ModelInfo),
		client: &http.Client{Timeout: cfg.Timeout},
	}
	for key, model := range cfg.Models {
		provider.models[key] = ModelInfo{
			Name:            model.Name,
			Provider:        "anthropic",
			MaxTokens:       model.MaxTokens,
			CostPer1KInput:  model.CostPer1K,
			CostPer1KOutput: model.CostPer1KOutput,
			Description:     fmt.Sprintf("Anthropic %s model", model.Name),
		}
	}
	return provider
}

func (p *AnthropicProvider) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

func (p *AnthropicProvider) baseURL() string {
	if p.config.BaseURL != "" {
		return p.config.BaseURL
	}
	return "https://api.anthropic.com/v1"
}

type anthropicContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// tool_result fields
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

func (p *AnthropicProvider) call(ctx context.Context, messages []Message, tools []ToolDef, model string, opts GenerateOptions) (Message, int64, int64, error) {
	apiKey := p.apiKey()
	if apiKey == "" {
		return Message{}, 0, 0, fmt.Errorf("Anthropic API key not configured")
	}
	m, ok := p.config.Models[model]
	if !ok {
		return Message{}, 0, 0, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	var system string
	type amMessage struct {
		Role    string             `json:"role"`
		Content []anthropicContent `json:"content"`
	}
	var amMessages []amMessage
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		case "tool":
			amMessages = append(amMessages, amMessage{Role: "user", Content: []anthropicContent{{
				Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content,
			}}})
		case "assistant":
			content := []anthropicContent{}
			if msg.Content != "" {
				content = append(content, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropicContent{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			amMessages = append(amMessages, amMessage{Role: "assistant", Content: content})
		default:
			amMessages = append(amMessages, amMessage{Role: "user", Content: []anthropicContent{{Type: "text", Text: msg.Content}}})
		}
	}

	maxTokens := m.MaxTokens
	if opts.MaxTokens != 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	payload := map[string]interface{}{
		"model":      apiModel,
		"max_tokens": maxTokens,
		"messages":   amMessages,
	}
	if system != "" {
		payload["system"] = system
	}
	if opts.Temperature != nil {
		payload["temperature"] = *opts.Temperature
	} else if m.Temperature != 0 {
		payload["temperature"] = m.Temperature
	}
	if len(tools) > 0 {
		type amTool struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"input_schema"`
		}
		var amTools []amTool
		for _, t := range tools {
			amTools = append(amTools, amTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
		}
		payload["tools"] = amTools
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, 0, 0, fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL()+"/messages", bytes.NewBuffer(body))
	if err != nil {
		return Message{}, 0, 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(req)
	if err != nil {
		return Message{}, 0, 0, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Message{}, 0, 0, fmt.Errorf("Anthropic status %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Content []anthropicContent `json:"content"`
		Usage   struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Message{}, 0, 0, fmt.Errorf("decode: %w", err)
	}

	msg := Message{Role: "assistant"}
	for _, c := range out.Content {
		switch c.Type {
		case "text":
			msg.Content += c.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Input})
		}
	}
	return msg, int64(out.Usage.InputTokens), int64(out.Usage.OutputTokens), nil
}

// Generate runs one completion, returning text and token counts.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, model string, opts GenerateOptions) (string, int64, int64, error) {
	msg, inTok, outTok, err := p.call(ctx, messages, nil, model, opts)
	if err != nil {
		return "", 0, 0, err
	}
	return msg.Content, inTok, outTok, nil
}

// ChatStream satisfies the streaming interface with a single terminal delta.
func (p *AnthropicProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDef, model string, opts GenerateOptions, onDelta func(StreamDelta)) (Message, error) {
	msg, inTok, outTok, err := p.call(ctx, messages, tools, model, opts)
	if err != nil {
		return Message{}, err
	}
	if onDelta != nil {
		if msg.Content != "" {
			onDelta(StreamDelta{Text: msg.Content})
		}
		onDelta(StreamDelta{Done: true, ToolCalls: msg.ToolCalls, InputTokens: inTok, OutputTokens: outTok})
	}
	return msg, nil
}

// GetAvailableModels returns configured model keys.
func (p *AnthropicProvider) GetAvailableModels() []string {
	var models []string
	for name := range p.models {
		models = append(models, name)
	}
	sort.Strings(models)
	return models
}

// GetModelInfo returns information about a specific model.
func (p *AnthropicProvider) GetModelInfo(model string) (ModelInfo, error) {
	info, exists := p.models[model]
	if !exists {
		return ModelInfo{}, fmt.Errorf("model not found: %s", model)
	}
	return info, nil
}

// CalculateCost calculates the cost for a given number of tokens.
func (p *AnthropicProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	info, err := p.GetModelInfo(model)
	if err != nil {
		return 0.0
	}
	return float64(inputTokens)/1000.0*info.CostPer1KInput + float64(outputTokens)/1000.0*info.CostPer1KOutput
}
