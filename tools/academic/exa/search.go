package exa

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sinadarvi/quest/tools/academic/models"
)

type Search struct {
	ApiKey string
}

func (s Search) Search(ctx context.Context, query string, numResults int) ([]models.Paper, error) {
	// https://docs.exa.ai/reference/search
	payload := map[string]any{
		"query":      query,
		"numResults": numResults,
		"category":   "research paper",
		"type":       "auto",
		"contents":   map[string]any{"summary": map[string]any{}},
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.exa.ai/search", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.ApiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exa status %d", resp.StatusCode)
	}
	var raw struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Summary string `json:"summary"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var out []models.Paper
	for i, r := range raw.Results {
		if numResults > 0 && i >= numResults {
			break
		}
		out = append(out, models.Paper{Title: r.Title, URL: r.URL, Summary: r.Summary})
	}
	return out, nil
}
