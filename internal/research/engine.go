package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sinadarvi/quest/internal/telemetry"
)

// Result count requested for each gap-filling search.
const gapSearchResults = 5

// Engine drives one research request: plan generation, sequential execution
// of search and analysis steps, gap detection, an optional second pass, and
// final synthesis. All state is request-scoped; a fresh call shares nothing
// with previous runs.
type Engine struct {
	llm       ObjectGenerator
	search    SearchExecutor
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewEngine creates a research engine.
func NewEngine(llm ObjectGenerator, search SearchExecutor, tele *telemetry.Telemetry, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags)
	}
	return &Engine{llm: llm, search: search, telemetry: tele, logger: logger}
}

// Run executes the full research flow for a topic. Steps run sequentially:
// progress emission must preserve a strict order, and analysis steps depend
// on results accumulated by earlier search steps. Any generation or search
// failure propagates immediately; there is no retry and no partial-result
// salvage. Progress events already emitted remain visible to the caller.
func (e *Engine) Run(ctx context.Context, topic string, depth Depth, sink Sink) (*Result, error) {
	start := time.Now()
	e.logger.Printf("starting %s research: %s", depth, topic)

	e.emit(sink, Event{
		ID: "research-plan", Type: EventPlan, Status: StatusRunning,
		Title: "Research Plan", Message: "Creating research plan...",
	})

	plan, err := e.generatePlan(ctx, topic)
	if err != nil {
		e.recordRun(depth, 0, start, false)
		return nil, err
	}

	searchSteps, analysisSteps := ExpandPlan(plan)
	// one extra virtual step for the gap analysis; synthesis is added only
	// when the second pass actually triggers
	totalSteps := len(searchSteps) + len(analysisSteps) + 1
	completed := 0

	e.emit(sink, Event{
		ID: "research-plan", Type: EventPlan, Status: StatusCompleted, Overwrite: true,
		Title: "Research Plan", Message: "Research plan ready", Plan: &plan, TotalSteps: totalSteps,
	})

	var results []SearchResult
	for _, st := range searchSteps {
		found, err := e.runSearchStep(ctx, st, depth, sink, &completed, totalSteps)
		if err != nil {
			e.recordRun(depth, completed, start, false)
			return nil, err
		}
		results = append(results, found...)
	}

	var analyses []AnalysisResult
	for _, st := range analysisSteps {
		ar, err := e.runAnalysisStep(ctx, st, results, sink, &completed, totalSteps)
		if err != nil {
			e.recordRun(depth, completed, start, false)
			return nil, err
		}
		analyses = append(analyses, ar)
	}

	gaps, err := e.runGapAnalysis(ctx, topic, results, analyses, sink, &completed, totalSteps)
	if err != nil {
		e.recordRun(depth, completed, start, false)
		return nil, err
	}

	var synth *Synthesis
	var additionalQueries []string
	if depth == DepthAdvanced && len(gaps.KnowledgeGaps) > 0 {
		for _, g := range gaps.KnowledgeGaps {
			additionalQueries = append(additionalQueries, g.AdditionalQueries...)
		}
		if err := e.runSecondPass(ctx, plan, additionalQueries, len(searchSteps), depth, sink, &completed, &totalSteps, &results); err != nil {
			e.recordRun(depth, completed, start, false)
			return nil, err
		}

		synth, err = e.runSynthesis(ctx, topic, results, gaps, additionalQueries, sink, completed, totalSteps)
		if err != nil {
			e.recordRun(depth, completed, start, false)
			return nil, err
		}
		completed = totalSteps
	}

	e.emit(sink, Event{
		ID: "research-progress", Type: EventProgress, Status: StatusCompleted, Overwrite: true,
		CompletedSteps: totalSteps, TotalSteps: totalSteps, IsComplete: true,
	})

	e.recordRun(depth, totalSteps, start, true)
	e.logger.Printf("research completed in %v (%d steps)", time.Since(start), totalSteps)

	return &Result{
		Topic:             topic,
		Depth:             depth,
		Plan:              plan,
		Results:           results,
		Analyses:          analyses,
		GapAnalysis:       &gaps,
		Synthesis:         synth,
		AdditionalQueries: additionalQueries,
		CompletedSteps:    totalSteps,
		TotalSteps:        totalSteps,
		ProcessingTime:    time.Since(start),
	}, nil
}

// generatePlan calls structured generation and validates the plan against its
// schema. The prompt suggests a soft total of 20 items; the actual totals are
// derived from whatever plan comes back.
func (e *Engine) generatePlan(ctx context.Context, topic string) (Plan, error) {
	raw, err := e.llm.GenerateObject(ctx, TaskPlanning, planPrompt(topic))
	if err != nil {
		return Plan{}, fmt.Errorf("plan generation failed: %w", err)
	}
	var plan Plan
	if err := decodeValidated(schemaPlan, raw, &plan); err != nil {
		return Plan{}, fmt.Errorf("plan generation failed: %w", err)
	}
	return plan, nil
}

// WebSearchSize returns the requested result count for a web search step.
// The inverse priority-to-count mapping is intentional behavioral parity:
// lower-priority broad queries get deeper result sets.
func WebSearchSize(priority int) int {
	return min(6-priority, 10)
}

// AcademicSearchSize returns the requested result count for an academic step.
func AcademicSearchSize(priority int) int {
	return min(6-priority, 5)
}

func (e *Engine) runSearchStep(ctx context.Context, st Step, depth Depth, sink Sink, completed *int, totalSteps int) ([]SearchResult, error) {
	evType := EventWeb
	title := "Searching the web"
	if st.Kind == StepAcademic {
		evType = EventAcademic
		title = "Searching academic sources"
	}
	e.emit(sink, Event{
		ID: st.ID, Type: evType, Status: StatusRunning,
		Title: title, Query: st.Query.Query, Message: "Searching...",
	})

	var (
		found []SearchResult
		err   error
	)
	if st.Kind == StepAcademic {
		found, err = e.search.SearchAcademic(ctx, st.Query.Query, AcademicSearchSize(st.Query.Priority))
	} else {
		found, err = e.search.SearchWeb(ctx, st.Query.Query, depth, WebSearchSize(st.Query.Priority))
	}
	if err != nil {
		return nil, fmt.Errorf("search step %s failed: %w", st.ID, err)
	}

	*completed++
	e.emit(sink, Event{
		ID: st.ID, Type: evType, Status: StatusCompleted, Overwrite: true,
		Title: title, Query: st.Query.Query, Results: found,
		Message:        fmt.Sprintf("Found %d results", len(found)),
		CompletedSteps: *completed, TotalSteps: totalSteps,
	})
	return found, nil
}

func (e *Engine) runAnalysisStep(ctx context.Context, st Step, results []SearchResult, sink Sink, completed *int, totalSteps int) (AnalysisResult, error) {
	e.emit(sink, Event{
		ID: st.ID, Type: EventAnalysis, Status: StatusRunning,
		Title: "Analyzing results", AnalysisType: st.Analysis.Type,
		Message: fmt.Sprintf("Analyzing %s...", st.Analysis.Type),
	})

	raw, err := e.llm.GenerateObject(ctx, TaskAnalysis, analysisPrompt(st.Analysis, results))
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis step %s failed: %w", st.ID, err)
	}
	var ar AnalysisResult
	if err := decodeValidated(schemaAnalysis, raw, &ar); err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis step %s failed: %w", st.ID, err)
	}
	ar.Type = st.Analysis.Type

	*completed++
	e.emit(sink, Event{
		ID: st.ID, Type: EventAnalysis, Status: StatusCompleted, Overwrite: true,
		Title: "Analyzing results", AnalysisType: st.Analysis.Type, Findings: ar.Findings,
		CompletedSteps: *completed, TotalSteps: totalSteps,
	})
	return ar, nil
}

// runGapAnalysis always runs, at both depths. Limitations are remapped into
// the finding shape used by analyses with confidence (6-severity)/5. The raw
// value is kept even when it goes negative for severity > 6.
func (e *Engine) runGapAnalysis(ctx context.Context, topic string, results []SearchResult, analyses []AnalysisResult, sink Sink, completed *int, totalSteps int) (GapAnalysis, error) {
	e.emit(sink, Event{
		ID: "gap-analysis", Type: EventAnalysis, Status: StatusRunning,
		Title: "Research Gaps and Limitations", AnalysisType: "gaps",
		Message: "Analyzing research gaps and limitations...",
	})

	raw, err := e.llm.GenerateObject(ctx, TaskAnalysis, gapPrompt(topic, results, analyses))
	if err != nil {
		return GapAnalysis{}, fmt.Errorf("gap analysis failed: %w", err)
	}
	var gaps GapAnalysis
	if err := decodeValidated(schemaGap, raw, &gaps); err != nil {
		return GapAnalysis{}, fmt.Errorf("gap analysis failed: %w", err)
	}

	findings := make([]Finding, 0, len(gaps.Limitations))
	for _, l := range gaps.Limitations {
		findings = append(findings, Finding{
			Insight:    l.Description,
			Evidence:   strings.Join(l.PotentialSolutions, "; "),
			Confidence: float64(6-l.Severity) / 5,
		})
	}

	*completed++
	e.emit(sink, Event{
		ID: "gap-analysis", Type: EventAnalysis, Status: StatusCompleted, Overwrite: true,
		Title: "Research Gaps and Limitations", AnalysisType: "gaps",
		Findings: findings, GapAnalysis: &gaps,
		CompletedSteps: *completed, TotalSteps: totalSteps,
	})
	return gaps, nil
}

// runSecondPass issues one additional web search per gap query (plus an
// academic companion when the plan covered academic sources via a "both"
// query), appending results to the shared accumulator. Ids continue the
// first-pass search counter so they never collide with first-pass steps.
func (e *Engine) runSecondPass(ctx context.Context, plan Plan, queries []string, firstPassSearches int, depth Depth, sink Sink, completed *int, totalSteps *int, results *[]SearchResult) error {
	withAcademic := false
	for _, q := range plan.SearchQueries {
		if q.Source == SourceBoth {
			withAcademic = true
			break
		}
	}

	searches := len(queries)
	if withAcademic {
		searches *= 2
	}
	// extend the budget: gap searches plus the synthesis virtual step
	*totalSteps += searches + 1

	counter := firstPassSearches
	for _, q := range queries {
		id := fmt.Sprintf("gap-search-%d", counter)
		counter++
		e.emit(sink, Event{
			ID: id, Type: EventWeb, Status: StatusRunning,
			Title: "Filling knowledge gaps", Query: q, Message: "Searching...",
		})
		found, err := e.search.SearchWeb(ctx, q, depth, gapSearchResults)
		if err != nil {
			return fmt.Errorf("gap search %s failed: %w", id, err)
		}
		*results = append(*results, found...)
		*completed++
		e.emit(sink, Event{
			ID: id, Type: EventWeb, Status: StatusCompleted, Overwrite: true,
			Title: "Filling knowledge gaps", Query: q, Results: found,
			Message:        fmt.Sprintf("Found %d results", len(found)),
			CompletedSteps: *completed, TotalSteps: *totalSteps,
		})

		if !withAcademic {
			continue
		}
		id = fmt.Sprintf("gap-search-academic-%d", counter)
		counter++
		e.emit(sink, Event{
			ID: id, Type: EventAcademic, Status: StatusRunning,
			Title: "Filling knowledge gaps", Query: q, Message: "Searching...",
		})
		found, err = e.search.SearchAcademic(ctx, q, gapSearchResults)
		if err != nil {
			return fmt.Errorf("gap search %s failed: %w", id, err)
		}
		*results = append(*results, found...)
		*completed++
		e.emit(sink, Event{
			ID: id, Type: EventAcademic, Status: StatusCompleted, Overwrite: true,
			Title: "Filling knowledge gaps", Query: q, Results: found,
			Message:        fmt.Sprintf("Found %d results", len(found)),
			CompletedSteps: *completed, TotalSteps: *totalSteps,
		})
	}
	return nil
}

func (e *Engine) runSynthesis(ctx context.Context, topic string, results []SearchResult, gaps GapAnalysis, additionalQueries []string, sink Sink, completed, totalSteps int) (*Synthesis, error) {
	e.emit(sink, Event{
		ID: "final-synthesis", Type: EventAnalysis, Status: StatusRunning,
		Title: "Final Research Synthesis", AnalysisType: "synthesis",
		Message: "Synthesizing research findings...",
	})

	raw, err := e.llm.GenerateObject(ctx, TaskSynthesis, synthesisPrompt(topic, results, &gaps, additionalQueries))
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	var synth Synthesis
	if err := decodeValidated(schemaSynthesis, raw, &synth); err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	findings := make([]Finding, 0, len(synth.KeyFindings))
	for _, kf := range synth.KeyFindings {
		findings = append(findings, Finding{
			Insight:    kf.Finding,
			Evidence:   strings.Join(kf.SupportingEvidence, "; "),
			Confidence: kf.Confidence,
		})
	}

	e.emit(sink, Event{
		ID: "final-synthesis", Type: EventAnalysis, Status: StatusCompleted, Overwrite: true,
		Title: "Final Research Synthesis", AnalysisType: "synthesis",
		Findings: findings, Synthesis: &synth,
		CompletedSteps: completed, TotalSteps: totalSteps,
	})
	return &synth, nil
}

func (e *Engine) recordRun(depth Depth, steps int, start time.Time, success bool) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.RecordResearchRun(string(depth), steps, time.Since(start), success)
}

// ResultJSON renders the aggregate result for the agent loop's tool message.
func (r *Result) ResultJSON() (json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal research result: %w", err)
	}
	return b, nil
}
