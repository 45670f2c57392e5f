package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sinadarvi/quest/tools/websearch/models"
)

type Search struct {
	ApiKey  string
	BaseURL string // defaults to the public API endpoint
}

func (s Search) Search(ctx context.Context, q models.Query) (models.Response, error) {
	// https://docs.tavily.com/docs/rest-api/api-reference
	depth := q.Depth
	if depth != "advanced" {
		depth = "basic"
	}
	payload := map[string]any{
		"query":          q.Text,
		"search_depth":   depth,
		"max_results":    q.MaxResults,
		"include_images": true,
	}
	if q.Topic != "" {
		payload["topic"] = q.Topic
	}
	if q.Days > 0 {
		payload["days"] = q.Days
	}
	body, _ := json.Marshal(payload)
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/search", strings.NewReader(string(body)))
	if err != nil {
		return models.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.ApiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.Response{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.Response{}, fmt.Errorf("tavily status %d", resp.StatusCode)
	}
	var raw struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
		Images []json.RawMessage `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.Response{}, err
	}
	out := models.Response{}
	for i, r := range raw.Results {
		if q.MaxResults > 0 && i >= q.MaxResults {
			break
		}
		out.Results = append(out.Results, models.Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	// images arrive either as bare URL strings or {url, description} objects
	for _, img := range raw.Images {
		var u string
		if err := json.Unmarshal(img, &u); err == nil && u != "" {
			out.Images = append(out.Images, u)
			continue
		}
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(img, &obj); err == nil && obj.URL != "" {
			out.Images = append(out.Images, obj.URL)
		}
	}
	return out, nil
}
