package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sinadarvi/quest/internal/research"
	"github.com/sinadarvi/quest/tools/academic"
	"github.com/sinadarvi/quest/tools/movies"
	"github.com/sinadarvi/quest/tools/weather"
	"github.com/sinadarvi/quest/tools/webfetch"
	"github.com/sinadarvi/quest/tools/websearch"
	searchmodels "github.com/sinadarvi/quest/tools/websearch/models"
)

// reasonSearchTool runs the full research flow. Progress events are surfaced
// to the chat client as annotations while the flow runs; the aggregate result
// goes back to the model as the tool output.
type reasonSearchTool struct {
	engine *research.Engine
	sink   TurnSink
}

// NewReasonSearchTool wires the research engine to a chat turn's sink.
func NewReasonSearchTool(engine *research.Engine, sink TurnSink) Tool {
	return &reasonSearchTool{engine: engine, sink: sink}
}

func (t *reasonSearchTool) Def() ToolDef {
	return ToolDef{
		Name:        "reason_search",
		Description: "Perform a multi-step research flow on a topic: plan searches, execute them against web and academic sources, analyze results, detect gaps, and synthesize. Use for questions needing deep, cited research.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["topic"],
			"properties": {
				"topic": {"type": "string", "description": "The research topic or question"},
				"depth": {"enum": ["basic", "advanced"], "description": "basic for a single pass, advanced to fill knowledge gaps with a second pass"}
			}
		}`),
	}
}

func (t *reasonSearchTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Topic string `json:"topic"`
		Depth string `json:"depth"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("reason_search args: %w", err)
	}
	if in.Topic == "" {
		return nil, fmt.Errorf("reason_search: topic is required")
	}

	sink := research.NopSink
	if t.sink != nil {
		sink = research.SinkFunc(func(ev research.Event) {
			t.sink.Annotate(Annotation{Type: "research_update", Data: ev})
		})
	}
	res, err := t.engine.Run(ctx, in.Topic, research.ParseDepth(in.Depth), sink)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// webSearchTool fans multiple queries out in parallel and keeps per-query
// result order stable.
type webSearchTool struct {
	searcher websearch.WebSearcher
	sink     TurnSink
}

// NewWebSearchTool builds the plain multi-query search tool.
func NewWebSearchTool(searcher websearch.WebSearcher, sink TurnSink) Tool {
	return &webSearchTool{searcher: searcher, sink: sink}
}

func (t *webSearchTool) Def() ToolDef {
	return ToolDef{
		Name:        "web_search",
		Description: "Search the web for up to date information. Accepts several queries at once; issue specific queries rather than one broad one.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["queries"],
			"properties": {
				"queries": {"type": "array", "items": {"type": "string"}, "maxItems": 5},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10}
			}
		}`),
	}
}

type webSearchHit struct {
	Query   string                `json:"query"`
	Results []searchmodels.Result `json:"results"`
	Images  []string              `json:"images,omitempty"`
}

func (t *webSearchTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Queries    []string `json:"queries"`
		MaxResults int      `json:"max_results"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("web_search args: %w", err)
	}
	if len(in.Queries) == 0 {
		return nil, fmt.Errorf("web_search: queries is required")
	}
	if in.MaxResults <= 0 || in.MaxResults > 10 {
		in.MaxResults = 5
	}

	hits := make([]webSearchHit, len(in.Queries))
	errs := make([]error, len(in.Queries))
	var wg sync.WaitGroup
	for i, q := range in.Queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			resp, err := t.searcher.Search(ctx, searchmodels.Query{Text: q, MaxResults: in.MaxResults})
			if err != nil {
				errs[i] = fmt.Errorf("query %q: %w", q, err)
				return
			}
			hits[i] = webSearchHit{Query: q, Results: resp.Results, Images: resp.Images}
		}(i, q)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	if t.sink != nil {
		t.sink.Annotate(Annotation{Type: "search_results", Data: hits})
	}
	return map[string]interface{}{"searches": hits}, nil
}

// academicSearchTool queries the scholarly index directly, without the full
// research flow around it.
type academicSearchTool struct {
	searcher academic.AcademicSearcher
	sink     TurnSink
}

// NewAcademicSearchTool builds the paper-search tool.
func NewAcademicSearchTool(searcher academic.AcademicSearcher, sink TurnSink) Tool {
	return &academicSearchTool{searcher: searcher, sink: sink}
}

func (t *academicSearchTool) Def() ToolDef {
	return ToolDef{
		Name:        "academic_search",
		Description: "Search academic papers and research publications for a query.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["query"],
			"properties": {
				"query": {"type": "string"},
				"max_results": {"type": "integer", "minimum": 1, "maximum": 10}
			}
		}`),
	}
}

func (t *academicSearchTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("academic_search args: %w", err)
	}
	if in.Query == "" {
		return nil, fmt.Errorf("academic_search: query is required")
	}
	if in.MaxResults <= 0 || in.MaxResults > 10 {
		in.MaxResults = 5
	}
	papers, err := t.searcher.Search(ctx, in.Query, in.MaxResults)
	if err != nil {
		return nil, err
	}
	if t.sink != nil {
		t.sink.Annotate(Annotation{Type: "academic_results", Data: papers})
	}
	return map[string]interface{}{"papers": papers}, nil
}

// retrieveTool fetches a URL and extracts readable article text.
type retrieveTool struct {
	fetcher *webfetch.Fetcher
	sink    TurnSink
}

// NewRetrieveTool builds the page-retrieval tool.
func NewRetrieveTool(fetcher *webfetch.Fetcher, sink TurnSink) Tool {
	return &retrieveTool{fetcher: fetcher, sink: sink}
}

func (t *retrieveTool) Def() ToolDef {
	return ToolDef{
		Name:        "retrieve",
		Description: "Fetch a specific URL and return its readable text content. Use when the user provides a link or a search result needs to be read in full.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["url"],
			"properties": {"url": {"type": "string", "description": "Absolute http(s) URL"}}
		}`),
	}
}

func (t *retrieveTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("retrieve args: %w", err)
	}
	if in.URL == "" {
		return nil, fmt.Errorf("retrieve: url is required")
	}
	res, err := t.fetcher.Exec(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	if t.sink != nil {
		t.sink.Annotate(Annotation{Type: "retrieved_page", Data: map[string]string{"url": res.URL, "title": res.Title}})
	}
	return res, nil
}

// weatherTool proxies the forecast API.
type weatherTool struct {
	client *weather.Client
}

// NewWeatherTool builds the forecast tool.
func NewWeatherTool(client *weather.Client) Tool {
	return &weatherTool{client: client}
}

func (t *weatherTool) Def() ToolDef {
	return ToolDef{
		Name:        "get_weather_data",
		Description: "Get the current weather and forecast for a location by coordinates.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["latitude", "longitude"],
			"properties": {
				"latitude": {"type": "number"},
				"longitude": {"type": "number"}
			}
		}`),
	}
}

func (t *weatherTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("get_weather_data args: %w", err)
	}
	return t.client.Forecast(ctx, in.Latitude, in.Longitude)
}

// movieTool looks up movie and TV metadata.
type movieTool struct {
	client *movies.Client
}

// NewMovieTool builds the movie/TV lookup tool.
func NewMovieTool(client *movies.Client) Tool {
	return &movieTool{client: client}
}

func (t *movieTool) Def() ToolDef {
	return ToolDef{
		Name:        "movie_or_tv_search",
		Description: "Look up a movie or TV show by title and return its metadata.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["query"],
			"properties": {"query": {"type": "string"}}
		}`),
	}
}

func (t *movieTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("movie_or_tv_search args: %w", err)
	}
	if in.Query == "" {
		return nil, fmt.Errorf("movie_or_tv_search: query is required")
	}
	return t.client.Search(ctx, in.Query)
}
