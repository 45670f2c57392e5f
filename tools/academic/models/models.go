package models

// Paper is one academic search hit.
type Paper struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}
