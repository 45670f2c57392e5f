package movies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Client is a thin pass-through to the TMDB API.
type Client struct {
	Token string // TMDB v4 read access token
}

func (c Client) Search(ctx context.Context, query string) (map[string]any, error) {
	// https://developer.themoviedb.org/reference/search-multi
	u := "https://api.themoviedb.org/3/search/multi?query=" + url.QueryEscape(query) + "&include_adult=false"
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb status %d", resp.StatusCode)
	}
	var raw struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if len(raw.Results) == 0 {
		return nil, nil
	}
	return raw.Results[0], nil
}
