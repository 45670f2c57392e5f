package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// scriptedProvider replays a fixed sequence of assistant messages.
type scriptedProvider struct {
	turns []Message
	calls int
}

func (p *scriptedProvider) Generate(context.Context, []Message, string, GenerateOptions) (string, int64, int64, error) {
	return "", 0, 0, errors.New("not used")
}

func (p *scriptedProvider) ChatStream(_ context.Context, _ []Message, _ []ToolDef, _ string, _ GenerateOptions, onDelta func(StreamDelta)) (Message, error) {
	if p.calls >= len(p.turns) {
		return Message{}, errors.New("script exhausted")
	}
	msg := p.turns[p.calls]
	p.calls++
	if onDelta != nil {
		if msg.Content != "" {
			onDelta(StreamDelta{Text: msg.Content})
		}
		onDelta(StreamDelta{Done: true, ToolCalls: msg.ToolCalls, InputTokens: 10, OutputTokens: 5})
	}
	return msg, nil
}

func (p *scriptedProvider) GetAvailableModels() []string { return []string{"fast"} }
func (p *scriptedProvider) GetModelInfo(string) (ModelInfo, error) {
	return ModelInfo{Name: "fast", Provider: "test"}, nil
}
func (p *scriptedProvider) CalculateCost(int64, int64, string) float64 { return 0 }

type echoTool struct {
	name string
	err  error
	seen []string
}

func (t *echoTool) Def() ToolDef {
	return ToolDef{Name: t.name, Description: "echo", Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (t *echoTool) Execute(_ context.Context, args json.RawMessage) (interface{}, error) {
	t.seen = append(t.seen, string(args))
	if t.err != nil {
		return nil, t.err
	}
	return map[string]string{"echo": string(args)}, nil
}

type captureSink struct {
	text        strings.Builder
	annotations []Annotation
}

func (c *captureSink) Text(s string)         { c.text.WriteString(s) }
func (c *captureSink) Annotate(a Annotation) { c.annotations = append(c.annotations, a) }

func TestLoopToolRoundTrip(t *testing.T) {
	tool := &echoTool{name: "lookup"}
	provider := &scriptedProvider{turns: []Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{"q":"go"}`)}}},
		{Role: "assistant", Content: "the answer"},
	}}
	loop := NewLoop(provider, "fast", []Tool{tool}, nil, nil)
	sink := &captureSink{}

	msgs, err := loop.Run(context.Background(), []Message{{Role: "user", Content: "hi"}}, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.text.String() != "the answer" {
		t.Fatalf("streamed text = %q", sink.text.String())
	}
	if len(tool.seen) != 1 || tool.seen[0] != `{"q":"go"}` {
		t.Fatalf("tool saw %v", tool.seen)
	}

	// history: user, assistant(tool call), tool result, assistant(text)
	if len(msgs) != 4 {
		t.Fatalf("history length = %d", len(msgs))
	}
	toolMsg := msgs[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "c1" {
		t.Fatalf("tool message wrong: %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, "echo") {
		t.Fatalf("tool result not forwarded: %s", toolMsg.Content)
	}
}

func TestLoopToolErrorFedBack(t *testing.T) {
	tool := &echoTool{name: "lookup", err: errors.New("backend down")}
	provider := &scriptedProvider{turns: []Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{}`)}}},
		{Role: "assistant", Content: "could not look that up"},
	}}
	loop := NewLoop(provider, "fast", []Tool{tool}, nil, nil)

	msgs, err := loop.Run(context.Background(), []Message{{Role: "user", Content: "hi"}}, &captureSink{})
	if err != nil {
		t.Fatalf("tool failure must not abort the turn: %v", err)
	}
	if !strings.Contains(msgs[2].Content, "backend down") {
		t.Fatalf("error not surfaced to model: %s", msgs[2].Content)
	}
}

func TestLoopUnknownToolFedBack(t *testing.T) {
	provider := &scriptedProvider{turns: []Message{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "c1", Name: "nope", Arguments: json.RawMessage(`{}`)}}},
		{Role: "assistant", Content: "ok"},
	}}
	loop := NewLoop(provider, "fast", nil, nil, nil)

	msgs, err := loop.Run(context.Background(), []Message{{Role: "user", Content: "hi"}}, &captureSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(msgs[2].Content, "unknown tool") {
		t.Fatalf("unknown tool not reported: %s", msgs[2].Content)
	}
}

func TestLoopStepBudget(t *testing.T) {
	// the model keeps asking for tools; the loop must stop at the budget
	var turns []Message
	for i := 0; i < MaxAgentSteps+3; i++ {
		turns = append(turns, Message{Role: "assistant", ToolCalls: []ToolCall{
			{ID: fmt.Sprintf("c%d", i), Name: "lookup", Arguments: json.RawMessage(`{}`)},
		}})
	}
	tool := &echoTool{name: "lookup"}
	provider := &scriptedProvider{turns: turns}
	loop := NewLoop(provider, "fast", []Tool{tool}, nil, nil)

	if _, err := loop.Run(context.Background(), []Message{{Role: "user", Content: "hi"}}, &captureSink{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if provider.calls > MaxAgentSteps {
		t.Fatalf("provider called %d times, budget is %d", provider.calls, MaxAgentSteps)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{`Here you go: {"a":{"b":"}"}} trailing`, `{"a":{"b":"}"}}`, true},
		{`no object here`, "", false},
		{`{"a":`, "", false},
	}
	for _, c := range cases {
		got, err := ExtractJSON(c.in)
		if c.ok && (err != nil || string(got) != c.want) {
			t.Fatalf("ExtractJSON(%q) = %q, %v", c.in, got, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("ExtractJSON(%q) should fail", c.in)
		}
	}
}

func TestParseGroupDefaults(t *testing.T) {
	if ParseGroup("extreme") != GroupExtreme {
		t.Fatalf("extreme not recognized")
	}
	if ParseGroup("bogus") != GroupWeb {
		t.Fatalf("unknown group must default to web")
	}
}
