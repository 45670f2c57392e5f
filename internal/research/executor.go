package research

import (
	"context"
	"fmt"

	"github.com/sinadarvi/quest/tools/academic"
	"github.com/sinadarvi/quest/tools/websearch"
	wsmodels "github.com/sinadarvi/quest/tools/websearch/models"
)

// Executor is the provider-backed SearchExecutor. It normalizes
// provider-specific result shapes into SearchResult records; missing optional
// fields default to empty strings rather than failing.
type Executor struct {
	Web      websearch.WebSearcher
	Academic academic.AcademicSearcher
}

func (x *Executor) SearchWeb(ctx context.Context, query string, depth Depth, maxResults int) ([]SearchResult, error) {
	resp, err := x.Web.Search(ctx, wsmodels.Query{
		Text:       query,
		Depth:      string(depth),
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("web search %q: %w", query, err)
	}
	out := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, SearchResult{Source: "web", Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return out, nil
}

func (x *Executor) SearchAcademic(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if x.Academic == nil {
		return nil, fmt.Errorf("academic search %q: no provider configured", query)
	}
	papers, err := x.Academic.Search(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("academic search %q: %w", query, err)
	}
	out := make([]SearchResult, 0, len(papers))
	for _, p := range papers {
		out = append(out, SearchResult{Source: "academic", Title: p.Title, URL: p.URL, Content: p.Summary})
	}
	return out, nil
}
