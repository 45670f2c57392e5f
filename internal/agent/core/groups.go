package core

import (
	"fmt"
	"time"

	"github.com/sinadarvi/quest/internal/research"
	"github.com/sinadarvi/quest/tools/academic"
	"github.com/sinadarvi/quest/tools/movies"
	"github.com/sinadarvi/quest/tools/webfetch"
	"github.com/sinadarvi/quest/tools/weather"
	"github.com/sinadarvi/quest/tools/websearch"
)

// Group selects which tools a chat turn may use and which system prompt
// frames the conversation.
type Group string

const (
	GroupChat     Group = "chat"     // no tools, plain conversation
	GroupWeb      Group = "web"      // web search and page retrieval
	GroupAcademic Group = "academic" // scholarly search
	GroupExtreme  Group = "extreme"  // full research flow
	GroupWeather  Group = "weather"
	GroupMovie    Group = "movie"
)

// ParseGroup maps a client-supplied group name, defaulting to web.
func ParseGroup(s string) Group {
	switch Group(s) {
	case GroupChat, GroupWeb, GroupAcademic, GroupExtreme, GroupWeather, GroupMovie:
		return Group(s)
	default:
		return GroupWeb
	}
}

// Toolbox holds the shared tool dependencies; per-turn tool instances are
// built from it so each carries the turn's annotation sink.
type Toolbox struct {
	Engine   *research.Engine
	Web      websearch.WebSearcher
	Academic academic.AcademicSearcher
	Fetcher  *webfetch.Fetcher
	Weather  *weather.Client
	Movies   *movies.Client
}

// ToolsFor returns the tool set and system prompt for a group. Groups whose
// backing provider is not configured degrade to plain chat rather than
// failing the request.
func (tb *Toolbox) ToolsFor(group Group, sink TurnSink) ([]Tool, string) {
	today := time.Now().Format("Monday, January 2, 2006")
	base := fmt.Sprintf("You are Quest, a helpful research assistant. Today is %s. Answer in clear markdown and cite sources with inline links when tools provide them.", today)

	switch group {
	case GroupExtreme:
		if tb.Engine == nil {
			return nil, base
		}
		tools := []Tool{NewReasonSearchTool(tb.Engine, sink)}
		if tb.Fetcher != nil {
			tools = append(tools, NewRetrieveTool(tb.Fetcher, sink))
		}
		return tools, base + " For substantive questions, run the reason_search tool once with a well-phrased topic, then write a thorough answer grounded in its findings. Do not repeat the research for the same topic."
	case GroupWeb:
		if tb.Web == nil {
			return nil, base
		}
		tools := []Tool{NewWebSearchTool(tb.Web, sink)}
		if tb.Fetcher != nil {
			tools = append(tools, NewRetrieveTool(tb.Fetcher, sink))
		}
		return tools, base + " Search the web before answering questions about current events or facts you are unsure of."
	case GroupAcademic:
		if tb.Academic == nil {
			return nil, base
		}
		tools := []Tool{NewAcademicSearchTool(tb.Academic, sink)}
		if tb.Fetcher != nil {
			tools = append(tools, NewRetrieveTool(tb.Fetcher, sink))
		}
		return tools, base + " Ground answers in academic_search results and cite the papers you rely on."
	case GroupWeather:
		if tb.Weather == nil {
			return nil, base
		}
		return []Tool{NewWeatherTool(tb.Weather)}, base + " Use get_weather_data for any weather question; resolve place names to coordinates yourself."
	case GroupMovie:
		if tb.Movies == nil {
			return nil, base
		}
		return []Tool{NewMovieTool(tb.Movies)}, base + " Use movie_or_tv_search to ground answers about films and shows."
	default:
		return nil, base
	}
}
