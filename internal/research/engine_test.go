package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// scriptedGenerator returns canned JSON per task, in order for repeated
// calls of the same task.
type scriptedGenerator struct {
	planJSON      string
	analysisJSONs []string
	gapJSON       string
	synthesisJSON string

	analysisCalls int
	failTask      Task
}

func (g *scriptedGenerator) GenerateObject(_ context.Context, task Task, _ string) (json.RawMessage, error) {
	if task == g.failTask {
		return nil, errors.New("model unavailable")
	}
	switch task {
	case TaskPlanning:
		return json.RawMessage(g.planJSON), nil
	case TaskAnalysis:
		// gap analysis reuses the analysis route; the prompt decides which.
		// The script drains per-step analyses first, then serves the gap
		// payload.
		if g.analysisCalls < len(g.analysisJSONs) {
			out := g.analysisJSONs[g.analysisCalls]
			g.analysisCalls++
			return json.RawMessage(out), nil
		}
		return json.RawMessage(g.gapJSON), nil
	case TaskSynthesis:
		return json.RawMessage(g.synthesisJSON), nil
	}
	return nil, fmt.Errorf("unknown task %q", task)
}

type searchCall struct {
	kind       string
	query      string
	maxResults int
}

type recordingSearcher struct {
	calls   []searchCall
	perCall int // results returned per call
	failAt  int // 1-based call index to fail at, 0 = never
}

func (s *recordingSearcher) result(kind, query string, i int) SearchResult {
	return SearchResult{Source: kind, Title: fmt.Sprintf("%s result %d", query, i), URL: "https://example.com", Content: "body"}
}

func (s *recordingSearcher) SearchWeb(_ context.Context, query string, _ Depth, maxResults int) ([]SearchResult, error) {
	s.calls = append(s.calls, searchCall{kind: "web", query: query, maxResults: maxResults})
	if s.failAt != 0 && len(s.calls) == s.failAt {
		return nil, errors.New("provider down")
	}
	out := make([]SearchResult, s.perCall)
	for i := range out {
		out[i] = s.result("web", query, i)
	}
	return out, nil
}

func (s *recordingSearcher) SearchAcademic(_ context.Context, query string, maxResults int) ([]SearchResult, error) {
	s.calls = append(s.calls, searchCall{kind: "academic", query: query, maxResults: maxResults})
	if s.failAt != 0 && len(s.calls) == s.failAt {
		return nil, errors.New("provider down")
	}
	out := make([]SearchResult, s.perCall)
	for i := range out {
		out[i] = s.result("academic", query, i)
	}
	return out, nil
}

type collectorSink struct {
	events []Event
}

func (c *collectorSink) Emit(ev Event) { c.events = append(c.events, ev) }

func (c *collectorSink) byID(id string) []Event {
	var out []Event
	for _, ev := range c.events {
		if ev.ID == id {
			out = append(out, ev)
		}
	}
	return out
}

const validAnalysisJSON = `{"findings":[{"insight":"i1","evidence":"e1","confidence":0.8}],"implications":["imp"],"limitations":["lim"]}`

const validSynthesisJSON = `{"key_findings":[{"finding":"f1","confidence":0.9,"supporting_evidence":["s1","s2"]}],"remaining_uncertainties":["u1"]}`

func gapJSONWith(gaps int, severity int) string {
	var kg []string
	for i := 0; i < gaps; i++ {
		kg = append(kg, fmt.Sprintf(`{"topic":"t%d","reason":"r%d","additional_queries":["gap query %d"]}`, i, i, i))
	}
	return fmt.Sprintf(`{"limitations":[{"type":"coverage","description":"thin coverage","severity":%d,"potential_solutions":["widen scope"]}],"knowledge_gaps":[%s],"recommended_followup":[{"action":"a","rationale":"r","priority":3}]}`,
		severity, strings.Join(kg, ","))
}

func basicPlanJSON() string {
	return `{
		"search_queries": [
			{"query": "alpha", "rationale": "r", "source": "web", "priority": 1},
			{"query": "beta", "rationale": "r", "source": "web", "priority": 5}
		],
		"required_analyses": [
			{"type": "trends", "description": "d", "importance": 4}
		]
	}`
}

func TestRunBasicFlow(t *testing.T) {
	gen := &scriptedGenerator{
		planJSON:      basicPlanJSON(),
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(2, 4), // gaps exist but depth is basic
	}
	search := &recordingSearcher{perCall: 2}
	sink := &collectorSink{}
	eng := NewEngine(gen, search, nil, nil)

	res, err := eng.Run(context.Background(), "test topic", DepthBasic, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 2 searches + 1 analysis + gap analysis
	if res.TotalSteps != 4 {
		t.Fatalf("TotalSteps = %d, want 4", res.TotalSteps)
	}
	if res.CompletedSteps != res.TotalSteps {
		t.Fatalf("CompletedSteps = %d, want %d", res.CompletedSteps, res.TotalSteps)
	}
	if res.Synthesis != nil {
		t.Fatalf("basic run must not synthesize")
	}
	if res.GapAnalysis == nil || len(res.GapAnalysis.KnowledgeGaps) != 2 {
		t.Fatalf("gap analysis missing or wrong: %+v", res.GapAnalysis)
	}
	if len(res.Results) != 4 {
		t.Fatalf("Results = %d, want 4", len(res.Results))
	}

	// priority 1 requests min(6-1,10)=5, priority 5 requests min(6-5,10)=1
	if search.calls[0].maxResults != 5 || search.calls[1].maxResults != 1 {
		t.Fatalf("result sizing wrong: %+v", search.calls)
	}

	final := sink.events[len(sink.events)-1]
	if final.ID != "research-progress" || !final.IsComplete {
		t.Fatalf("last event must be the completion marker, got %+v", final)
	}
	if final.CompletedSteps != 4 || final.TotalSteps != 4 {
		t.Fatalf("final counters = %d/%d, want 4/4", final.CompletedSteps, final.TotalSteps)
	}
	for _, id := range []string{"research-plan", "search-web-0", "search-web-1", "analysis-0", "gap-analysis"} {
		evs := sink.byID(id)
		if len(evs) != 2 {
			t.Fatalf("step %s: %d events, want running+completed", id, len(evs))
		}
		if evs[0].Status != StatusRunning || evs[1].Status != StatusCompleted {
			t.Fatalf("step %s: statuses %v %v", id, evs[0].Status, evs[1].Status)
		}
		if !evs[1].Overwrite {
			t.Fatalf("step %s: completed event must overwrite", id)
		}
	}
}

func TestRunAdvancedSecondPass(t *testing.T) {
	// one "both" query expands to two search steps and turns on academic
	// companions for the gap pass
	plan := `{
		"search_queries": [
			{"query": "alpha", "rationale": "r", "source": "both", "priority": 3}
		],
		"required_analyses": [
			{"type": "trends", "description": "d", "importance": 4}
		]
	}`
	gen := &scriptedGenerator{
		planJSON:      plan,
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(2, 4),
		synthesisJSON: validSynthesisJSON,
	}
	search := &recordingSearcher{perCall: 1}
	sink := &collectorSink{}
	eng := NewEngine(gen, search, nil, nil)

	res, err := eng.Run(context.Background(), "test topic", DepthAdvanced, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// first pass: 2 searches (both expansion) + 1 analysis + gap analysis = 4
	// second pass: 2 gap queries * 2 sources + synthesis = 5
	if res.TotalSteps != 9 {
		t.Fatalf("TotalSteps = %d, want 9", res.TotalSteps)
	}
	if res.CompletedSteps != 9 {
		t.Fatalf("CompletedSteps = %d, want 9", res.CompletedSteps)
	}
	if res.Synthesis == nil || len(res.Synthesis.KeyFindings) != 1 {
		t.Fatalf("synthesis missing: %+v", res.Synthesis)
	}
	if len(res.AdditionalQueries) != 2 {
		t.Fatalf("AdditionalQueries = %v", res.AdditionalQueries)
	}

	// both-expansion shares the position index
	if len(sink.byID("search-web-0")) != 2 || len(sink.byID("search-academic-0")) != 2 {
		t.Fatalf("both expansion ids missing")
	}

	// gap step ids continue the first-pass counter (2 searches ran first)
	for _, id := range []string{"gap-search-2", "gap-search-academic-3", "gap-search-4", "gap-search-academic-5"} {
		if len(sink.byID(id)) != 2 {
			t.Fatalf("gap step %s missing events", id)
		}
	}

	// gap searches use a fixed result budget
	for _, c := range search.calls[2:] {
		if c.maxResults != gapSearchResults {
			t.Fatalf("gap search requested %d results, want %d", c.maxResults, gapSearchResults)
		}
	}

	// the synthesis completion lands one step short of the total; the final
	// marker closes the gap
	synthDone := sink.byID("final-synthesis")[1]
	if synthDone.CompletedSteps != res.TotalSteps-1 {
		t.Fatalf("synthesis completed at %d, want %d", synthDone.CompletedSteps, res.TotalSteps-1)
	}
	final := sink.events[len(sink.events)-1]
	if final.ID != "research-progress" || final.CompletedSteps != 9 || !final.IsComplete {
		t.Fatalf("final event wrong: %+v", final)
	}
}

func TestRunAdvancedNoGapsSkipsSecondPass(t *testing.T) {
	gen := &scriptedGenerator{
		planJSON:      basicPlanJSON(),
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(0, 4),
	}
	search := &recordingSearcher{perCall: 1}
	sink := &collectorSink{}
	eng := NewEngine(gen, search, nil, nil)

	res, err := eng.Run(context.Background(), "t", DepthAdvanced, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Synthesis != nil {
		t.Fatalf("no gaps must mean no synthesis")
	}
	if res.TotalSteps != 4 {
		t.Fatalf("TotalSteps = %d, want 4", res.TotalSteps)
	}
	if len(sink.byID("final-synthesis")) != 0 {
		t.Fatalf("synthesis events emitted without gaps")
	}
}

func TestRunSearchFailurePropagates(t *testing.T) {
	gen := &scriptedGenerator{
		planJSON:      basicPlanJSON(),
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(1, 4),
	}
	search := &recordingSearcher{perCall: 1, failAt: 2}
	sink := &collectorSink{}
	eng := NewEngine(gen, search, nil, nil)

	_, err := eng.Run(context.Background(), "t", DepthBasic, sink)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "search-web-1") {
		t.Fatalf("error should name the failing step: %v", err)
	}

	// the first step finished and stays visible; the failing step never
	// completed and nothing after it ran
	first := sink.byID("search-web-0")
	if len(first) != 2 || first[1].Status != StatusCompleted {
		t.Fatalf("first step events wrong: %+v", first)
	}
	second := sink.byID("search-web-1")
	if len(second) != 1 || second[0].Status != StatusRunning {
		t.Fatalf("failed step must only have the running event: %+v", second)
	}
	if len(sink.byID("analysis-0")) != 0 || len(sink.byID("gap-analysis")) != 0 {
		t.Fatalf("steps after the failure must not run")
	}
}

func TestRunPlanGenerationFailure(t *testing.T) {
	gen := &scriptedGenerator{failTask: TaskPlanning}
	sink := &collectorSink{}
	eng := NewEngine(gen, &recordingSearcher{perCall: 1}, nil, nil)

	_, err := eng.Run(context.Background(), "t", DepthBasic, sink)
	if err == nil || !strings.Contains(err.Error(), "plan generation failed") {
		t.Fatalf("err = %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Status != StatusRunning {
		t.Fatalf("only the plan running event should exist: %+v", sink.events)
	}
}

func TestRunInvalidPlanRejected(t *testing.T) {
	gen := &scriptedGenerator{planJSON: `{"search_queries": []}`}
	eng := NewEngine(gen, &recordingSearcher{perCall: 1}, nil, nil)

	if _, err := eng.Run(context.Background(), "t", DepthBasic, &collectorSink{}); err == nil {
		t.Fatalf("schema-invalid plan must fail the run")
	}
}

func TestGapLimitationConfidence(t *testing.T) {
	// severity 8 maps to (6-8)/5 = -0.4 and is kept as-is
	gen := &scriptedGenerator{
		planJSON:      basicPlanJSON(),
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(0, 8),
	}
	sink := &collectorSink{}
	eng := NewEngine(gen, &recordingSearcher{perCall: 1}, nil, nil)

	if _, err := eng.Run(context.Background(), "t", DepthBasic, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}
	done := sink.byID("gap-analysis")[1]
	if len(done.Findings) != 1 {
		t.Fatalf("findings = %+v", done.Findings)
	}
	if got := done.Findings[0].Confidence; got != -0.4 {
		t.Fatalf("confidence = %v, want -0.4", got)
	}
}

func TestRunCountersMonotonic(t *testing.T) {
	gen := &scriptedGenerator{
		planJSON:      basicPlanJSON(),
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(1, 4),
		synthesisJSON: validSynthesisJSON,
	}
	sink := &collectorSink{}
	eng := NewEngine(gen, &recordingSearcher{perCall: 1}, nil, nil)

	if _, err := eng.Run(context.Background(), "t", DepthAdvanced, sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lastCompleted, lastTotal := 0, 0
	for _, ev := range sink.events {
		if ev.CompletedSteps == 0 && ev.TotalSteps == 0 {
			continue
		}
		if ev.CompletedSteps < lastCompleted {
			t.Fatalf("completedSteps regressed at %s: %d < %d", ev.ID, ev.CompletedSteps, lastCompleted)
		}
		if ev.TotalSteps < lastTotal {
			t.Fatalf("totalSteps regressed at %s: %d < %d", ev.ID, ev.TotalSteps, lastTotal)
		}
		lastCompleted, lastTotal = ev.CompletedSteps, ev.TotalSteps
	}
}

func TestRunPanickingSinkDoesNotAbort(t *testing.T) {
	gen := &scriptedGenerator{
		planJSON:      basicPlanJSON(),
		analysisJSONs: []string{validAnalysisJSON},
		gapJSON:       gapJSONWith(0, 4),
	}
	eng := NewEngine(gen, &recordingSearcher{perCall: 1}, nil, nil)

	sink := SinkFunc(func(Event) { panic("client went away") })
	res, err := eng.Run(context.Background(), "t", DepthBasic, sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CompletedSteps != res.TotalSteps {
		t.Fatalf("run did not complete: %d/%d", res.CompletedSteps, res.TotalSteps)
	}
}

func TestExpandPlanIDs(t *testing.T) {
	plan := Plan{SearchQueries: []SearchQuery{
		{Query: "a", Source: SourceWeb, Priority: 1},
		{Query: "b", Source: SourceBoth, Priority: 2},
		{Query: "c", Source: SourceAcademic, Priority: 3},
	}, RequiredAnalyses: []PlannedAnalysis{{Type: "x"}, {Type: "y"}}}

	search, analysis := ExpandPlan(plan)
	wantIDs := []string{"search-web-0", "search-web-1", "search-academic-1", "search-academic-2"}
	if len(search) != len(wantIDs) {
		t.Fatalf("search steps = %d, want %d", len(search), len(wantIDs))
	}
	for i, id := range wantIDs {
		if search[i].ID != id {
			t.Fatalf("step %d id = %s, want %s", i, search[i].ID, id)
		}
	}
	if analysis[0].ID != "analysis-0" || analysis[1].ID != "analysis-1" {
		t.Fatalf("analysis ids wrong: %+v", analysis)
	}
}

func TestSearchSizing(t *testing.T) {
	webWant := map[int]int{1: 5, 2: 4, 3: 3, 4: 2, 5: 1}
	for p, want := range webWant {
		if got := WebSearchSize(p); got != want {
			t.Fatalf("WebSearchSize(%d) = %d, want %d", p, got, want)
		}
	}
	for p := 1; p <= 5; p++ {
		if got := AcademicSearchSize(p); got != min(6-p, 5) {
			t.Fatalf("AcademicSearchSize(%d) = %d", p, got)
		}
	}
}
