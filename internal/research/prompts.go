package research

import (
	"fmt"
	"strings"
)

const maxPromptResultChars = 600

func planPrompt(topic string) string {
	return fmt.Sprintf(`You are a research planner. Create a focused research plan for the topic below.

TOPIC: %s

PLANNING REQUIREMENTS:
1. Plan searches across web and academic sources; tag each query with a source: "web", "academic", or "both".
2. Assign each query a priority from 1 (most important) to 5 (least important) and a one-line rationale.
3. Plan the analyses needed to interpret the results, each with a type, description, and importance from 1 to 5.
4. Keep the total number of planned items at 20 or fewer.

OUTPUT FORMAT (JSON):
{
  "search_queries": [
    {"query": "...", "rationale": "...", "source": "web|academic|both", "priority": 1}
  ],
  "required_analyses": [
    {"type": "...", "description": "...", "importance": 1}
  ]
}

Respond ONLY with valid JSON. No more than 12 search queries and 8 analyses.`, topic)
}

func analysisPrompt(analysis PlannedAnalysis, results []SearchResult) string {
	return fmt.Sprintf(`You are a research analyst. Perform the following analysis over the collected search results.

ANALYSIS TYPE: %s
DESCRIPTION: %s

SEARCH RESULTS:
%s

OUTPUT FORMAT (JSON):
{
  "findings": [
    {"insight": "...", "evidence": "...", "confidence": 0.0}
  ],
  "implications": ["..."],
  "limitations": ["..."]
}

Confidence is your own estimate between 0 and 1. Respond ONLY with valid JSON.`,
		analysis.Type, analysis.Description, formatResults(results))
}

func gapPrompt(topic string, results []SearchResult, analyses []AnalysisResult) string {
	var sb strings.Builder
	for _, a := range analyses {
		fmt.Fprintf(&sb, "- %s: %d findings", a.Type, len(a.Findings))
		if len(a.Limitations) > 0 {
			fmt.Fprintf(&sb, "; limitations: %s", strings.Join(a.Limitations, "; "))
		}
		sb.WriteString("\n")
	}
	return fmt.Sprintf(`You are reviewing a completed research pass for remaining weaknesses.

TOPIC: %s

ANALYSES PERFORMED:
%s
SEARCH RESULTS:
%s

Identify the limitations of the research so far, the knowledge gaps that remain, and recommended follow-up actions.

OUTPUT FORMAT (JSON):
{
  "limitations": [
    {"type": "...", "description": "...", "severity": 2, "potential_solutions": ["..."]}
  ],
  "knowledge_gaps": [
    {"topic": "...", "reason": "...", "additional_queries": ["..."]}
  ],
  "recommended_followup": [
    {"action": "...", "rationale": "...", "priority": 2}
  ]
}

Severity and priority range from 2 to 10. Respond ONLY with valid JSON; all three arrays are required (they may be empty).`,
		topic, sb.String(), formatResults(results))
}

func synthesisPrompt(topic string, results []SearchResult, gaps *GapAnalysis, additionalQueries []string) string {
	var gapBlock strings.Builder
	if gaps != nil {
		for _, g := range gaps.KnowledgeGaps {
			fmt.Fprintf(&gapBlock, "- %s: %s\n", g.Topic, g.Reason)
		}
	}
	return fmt.Sprintf(`You are consolidating a multi-pass research effort into final findings.

TOPIC: %s

KNOWLEDGE GAPS ADDRESSED IN THE SECOND PASS:
%s
ADDITIONAL QUERIES RUN: %s

ALL SEARCH RESULTS:
%s

OUTPUT FORMAT (JSON):
{
  "key_findings": [
    {"finding": "...", "confidence": 0.0, "supporting_evidence": ["..."]}
  ],
  "remaining_uncertainties": ["..."]
}

Confidence is between 0 and 1. Respond ONLY with valid JSON.`,
		topic, gapBlock.String(), strings.Join(additionalQueries, "; "), formatResults(results))
}

// formatResults renders accumulated results for prompt inclusion, trimming
// each entry so large result sets stay within model context.
func formatResults(results []SearchResult) string {
	var sb strings.Builder
	for i, r := range results {
		content := r.Content
		if runes := []rune(content); len(runes) > maxPromptResultChars {
			content = string(runes[:maxPromptResultChars]) + "…"
		}
		fmt.Fprintf(&sb, "[%d] (%s) %s - %s\n%s\n\n", i+1, r.Source, r.Title, r.URL, content)
	}
	if sb.Len() == 0 {
		return "(no results)\n"
	}
	return sb.String()
}
