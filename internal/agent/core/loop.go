package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/sinadarvi/quest/internal/telemetry"
)

// MaxAgentSteps bounds the model-tool round trips in one turn. The loop
// always finishes with a plain completion once the budget is spent, so a
// misbehaving model cannot spin forever.
const MaxAgentSteps = 5

// Loop drives one chat turn: stream a completion, execute any requested
// tools, feed the results back, repeat until the model answers in text.
type Loop struct {
	provider  LLMProvider
	model     string
	tools     map[string]Tool
	defs      []ToolDef
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewLoop builds an agent loop over a provider, model key, and tool set.
func NewLoop(provider LLMProvider, model string, tools []Tool, tele *telemetry.Telemetry, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	}
	l := &Loop{
		provider:  provider,
		model:     model,
		tools:     make(map[string]Tool, len(tools)),
		telemetry: tele,
		logger:    logger,
	}
	for _, t := range tools {
		def := t.Def()
		l.tools[def.Name] = t
		l.defs = append(l.defs, def)
	}
	return l
}

// Run executes the loop, streaming text to sink and returning the full
// message history including assistant and tool messages appended this turn.
func (l *Loop) Run(ctx context.Context, messages []Message, sink TurnSink) ([]Message, error) {
	for step := 0; step < MaxAgentSteps; step++ {
		defs := l.defs
		if step == MaxAgentSteps-1 {
			// last step: force a text answer
			defs = nil
		}

		var inTok, outTok int64
		msg, err := l.provider.ChatStream(ctx, messages, defs, l.model, GenerateOptions{}, func(d StreamDelta) {
			if d.Text != "" && sink != nil {
				sink.Text(d.Text)
			}
			if d.Done {
				inTok, outTok = d.InputTokens, d.OutputTokens
			}
		})
		if err != nil {
			return messages, fmt.Errorf("agent step %d: %w", step, err)
		}
		if l.telemetry != nil {
			info, _ := l.provider.GetModelInfo(l.model)
			l.telemetry.RecordLLMUsage(info.Provider, l.model, inTok, outTok, l.provider.CalculateCost(inTok, outTok, l.model))
		}
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			return messages, nil
		}

		for _, tc := range msg.ToolCalls {
			messages = append(messages, l.executeCall(ctx, tc, sink))
		}
	}
	return messages, nil
}

// executeCall runs one tool and renders its outcome as a tool message. Tool
// failures do not abort the turn; the error text goes back to the model so
// it can recover or explain.
func (l *Loop) executeCall(ctx context.Context, tc ToolCall, sink TurnSink) Message {
	tool, ok := l.tools[tc.Name]
	if !ok {
		l.telemetry.RecordToolCall(tc.Name, false)
		return toolMessage(tc, map[string]string{"error": fmt.Sprintf("unknown tool %q", tc.Name)})
	}

	l.logger.Printf("tool call: %s %s", tc.Name, compactArgs(tc.Arguments))
	result, err := tool.Execute(ctx, tc.Arguments)
	if err != nil {
		l.telemetry.RecordToolCall(tc.Name, false)
		l.logger.Printf("tool %s failed: %v", tc.Name, err)
		return toolMessage(tc, map[string]string{"error": err.Error()})
	}
	l.telemetry.RecordToolCall(tc.Name, true)
	return toolMessage(tc, result)
}

func toolMessage(tc ToolCall, result interface{}) Message {
	b, err := json.Marshal(result)
	if err != nil {
		b = []byte(fmt.Sprintf(`{"error":"marshal tool result: %s"}`, err))
	}
	return Message{Role: "tool", ToolCallID: tc.ID, Name: tc.Name, Content: string(b)}
}

func compactArgs(raw json.RawMessage) string {
	const max = 200
	s := string(raw)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
