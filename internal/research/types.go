package research

import (
	"fmt"
	"time"
)

// Depth selects single-pass or gap-filling research.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

// ParseDepth maps a free-form string onto a known depth, defaulting to basic.
func ParseDepth(s string) Depth {
	if s == string(DepthAdvanced) {
		return DepthAdvanced
	}
	return DepthBasic
}

// QuerySource tags which providers a planned query should hit.
type QuerySource string

const (
	SourceWeb      QuerySource = "web"
	SourceAcademic QuerySource = "academic"
	SourceBoth     QuerySource = "both"
)

// Plan size bounds enforced by the generation schema.
const (
	MaxSearchQueries = 12
	MaxAnalyses      = 8
)

// SearchQuery is one planned search.
type SearchQuery struct {
	Query     string      `json:"query"`
	Rationale string      `json:"rationale"`
	Source    QuerySource `json:"source"`
	Priority  int         `json:"priority"` // 1-5
}

// PlannedAnalysis is one planned analysis pass over accumulated results.
type PlannedAnalysis struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Importance  int    `json:"importance"` // 1-5
}

// Plan is the immutable output of plan generation.
type Plan struct {
	SearchQueries    []SearchQuery     `json:"search_queries"`
	RequiredAnalyses []PlannedAnalysis `json:"required_analyses"`
}

// StepKind discriminates the executable step variants.
type StepKind string

const (
	StepWeb      StepKind = "web"
	StepAcademic StepKind = "academic"
	StepAnalysis StepKind = "analysis"
)

// Step is one unit of scheduled work derived from the plan. Identifiers are
// deterministic so progress events referencing the same id are understood as
// in-place updates rather than new steps.
type Step struct {
	ID       string
	Kind     StepKind
	Query    SearchQuery     // set for search steps
	Analysis PlannedAnalysis // set for analysis steps
}

// ExpandPlan turns a plan into concrete search and analysis steps. A query
// with source "both" expands into two independent steps sharing the query
// text and position index.
func ExpandPlan(plan Plan) (searchSteps, analysisSteps []Step) {
	for i, q := range plan.SearchQueries {
		if q.Source == SourceWeb || q.Source == SourceBoth {
			searchSteps = append(searchSteps, Step{ID: fmt.Sprintf("search-web-%d", i), Kind: StepWeb, Query: q})
		}
		if q.Source == SourceAcademic || q.Source == SourceBoth {
			searchSteps = append(searchSteps, Step{ID: fmt.Sprintf("search-academic-%d", i), Kind: StepAcademic, Query: q})
		}
	}
	for i, a := range plan.RequiredAnalyses {
		analysisSteps = append(analysisSteps, Step{ID: fmt.Sprintf("analysis-%d", i), Kind: StepAnalysis, Analysis: a})
	}
	return searchSteps, analysisSteps
}

// SearchResult is the normalized output of one search step.
type SearchResult struct {
	Source  string `json:"source"` // web or academic
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Finding is one analyzed insight with model-declared confidence.
type Finding struct {
	Insight    string  `json:"insight"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is the structured output of one analysis step.
type AnalysisResult struct {
	Type         string    `json:"type"`
	Findings     []Finding `json:"findings"`
	Implications []string  `json:"implications"`
	Limitations  []string  `json:"limitations"`
}

// Limitation is a weakness of the first research pass.
type Limitation struct {
	Type               string   `json:"type"`
	Description        string   `json:"description"`
	Severity           int      `json:"severity"` // 2-10
	PotentialSolutions []string `json:"potential_solutions"`
}

// KnowledgeGap is an under-covered area with follow-up queries.
type KnowledgeGap struct {
	Topic             string   `json:"topic"`
	Reason            string   `json:"reason"`
	AdditionalQueries []string `json:"additional_queries"`
}

// Followup is a recommended next action.
type Followup struct {
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
	Priority  int    `json:"priority"` // 2-10
}

// GapAnalysis is the structured output of the gap-detection call.
type GapAnalysis struct {
	Limitations         []Limitation   `json:"limitations"`
	KnowledgeGaps       []KnowledgeGap `json:"knowledge_gaps"`
	RecommendedFollowup []Followup     `json:"recommended_followup"`
}

// KeyFinding is one consolidated finding of the final synthesis.
type KeyFinding struct {
	Finding            string   `json:"finding"`
	Confidence         float64  `json:"confidence"`
	SupportingEvidence []string `json:"supporting_evidence"`
}

// Synthesis is the final consolidation across all passes.
type Synthesis struct {
	KeyFindings            []KeyFinding `json:"key_findings"`
	RemainingUncertainties []string     `json:"remaining_uncertainties"`
}

// Result is the aggregate returned to the caller once all passes complete.
// Everything here lives only for the duration of one request.
type Result struct {
	Topic             string           `json:"topic"`
	Depth             Depth            `json:"depth"`
	Plan              Plan             `json:"plan"`
	Results           []SearchResult   `json:"results"`
	Analyses          []AnalysisResult `json:"analyses"`
	GapAnalysis       *GapAnalysis     `json:"gap_analysis,omitempty"`
	Synthesis         *Synthesis       `json:"synthesis,omitempty"`
	AdditionalQueries []string         `json:"additional_queries,omitempty"`
	CompletedSteps    int              `json:"completed_steps"`
	TotalSteps        int              `json:"total_steps"`
	ProcessingTime    time.Duration    `json:"processing_time"`
}
