package models

// Result is one ranked web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Response is a normalized provider response.
type Response struct {
	Results []Result `json:"results"`
	Images  []string `json:"images,omitempty"`
}

// Query carries the provider-agnostic search parameters.
type Query struct {
	Text       string
	Depth      string // basic or advanced
	MaxResults int
	Topic      string // general or news
	Days       int    // recency window for news topics, 0 = unbounded
}
