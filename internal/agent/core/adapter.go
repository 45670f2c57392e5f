package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sinadarvi/quest/config"
	"github.com/sinadarvi/quest/internal/research"
	"github.com/sinadarvi/quest/internal/telemetry"
)

// ObjectAdapter routes the research engine's structured-generation calls to
// the configured model per task and strips any prose the model wraps around
// the JSON object.
type ObjectAdapter struct {
	registry  *Registry
	routing   config.LLMRoutingConfig
	telemetry *telemetry.Telemetry
}

// NewObjectAdapter builds the adapter used by the research engine.
func NewObjectAdapter(registry *Registry, routing config.LLMRoutingConfig, tele *telemetry.Telemetry) *ObjectAdapter {
	return &ObjectAdapter{registry: registry, routing: routing, telemetry: tele}
}

func (a *ObjectAdapter) routeFor(task research.Task) string {
	var route string
	switch task {
	case research.TaskPlanning:
		route = a.routing.Planning
	case research.TaskAnalysis:
		route = a.routing.Analysis
	case research.TaskSynthesis:
		route = a.routing.Synthesis
	}
	if route == "" {
		route = a.routing.Fallback
	}
	return route
}

// GenerateObject implements research.ObjectGenerator.
func (a *ObjectAdapter) GenerateObject(ctx context.Context, task research.Task, prompt string) (json.RawMessage, error) {
	route := a.routeFor(task)
	if route == "" {
		return nil, fmt.Errorf("no model routed for task %s", task)
	}
	provider, model, err := a.registry.Resolve(route)
	if err != nil {
		return nil, err
	}

	messages := []Message{
		{Role: "system", Content: "You are a precise research assistant. Respond with a single JSON object and nothing else."},
		{Role: "user", Content: prompt},
	}
	text, inTok, outTok, err := provider.Generate(ctx, messages, model, GenerateOptions{JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", task, err)
	}
	if a.telemetry != nil {
		info, _ := provider.GetModelInfo(model)
		a.telemetry.RecordLLMUsage(info.Provider, model, inTok, outTok, provider.CalculateCost(inTok, outTok, model))
	}

	obj, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", task, err)
	}
	return obj, nil
}

// ExtractJSON pulls the first balanced JSON object out of model output,
// tolerating markdown fences and surrounding prose.
func ExtractJSON(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if fenced, ok := strings.CutPrefix(s, "```json"); ok {
		s = fenced
	} else if fenced, ok := strings.CutPrefix(s, "```"); ok {
		s = fenced
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in model output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if !json.Valid([]byte(candidate)) {
						return nil, fmt.Errorf("model output is not valid JSON")
					}
					return json.RawMessage(candidate), nil
				}
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in model output")
}
