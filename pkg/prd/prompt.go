package prd

import (
	"strings"

	"prdgen/pkg/domain"
)

// promptSchema is the literal instruction block appended to every prompt. It
// spells out the exact JSON shape the model must return, including the allowed
// risk enums, and forbids markdown fences or prose around the JSON.
const promptSchema = `CRITICAL: You must respond with ONLY valid JSON matching this exact schema. Do not include any markdown formatting, backticks, or explanatory text.

{
  "productRequirements": {
    "overview": "Clear 2-3 sentence product overview",
    "goals": ["Goal 1", "Goal 2", "Goal 3"],
    "successMetrics": ["Metric 1", "Metric 2", "Metric 3"]
  },
  "userStories": [
    {
      "role": "User role",
      "action": "What they want to do",
      "benefit": "Why they want to do it",
      "acceptanceCriteria": ["Criterion 1", "Criterion 2"]
    }
  ],
  "risks": [
    {
      "category": "Technical|Market|Operational|Financial",
      "description": "Risk description",
      "likelihood": "Low|Medium|High",
      "impact": "Low|Medium|High",
      "mitigation": "How to address this risk"
    }
  ],
  "mvpScope": {
    "inScope": ["Feature 1", "Feature 2"],
    "outOfScope": ["Feature to defer", "Another to defer"],
    "timeline": "Estimated timeline for MVP",
    "assumptions": ["Assumption 1", "Assumption 2"]
  }
}

Generate 5-8 user stories, 4-6 risks, and be specific about MVP scope.`

// BuildPrompt renders the user prompt for one generation. It embeds the idea
// and target market verbatim and only includes the constraint/context sections
// when they are non-empty. The output is a plain string; it is never validated.
func BuildPrompt(input domain.GenerationInput) string {
	var sb strings.Builder
	sb.WriteString("You are a senior product manager creating a comprehensive Product Requirements Document (PRD).\n\n")
	sb.WriteString("Generate a structured PRD based on the following information:\n\n")
	sb.WriteString("PRODUCT IDEA:\n")
	sb.WriteString(input.Idea)
	sb.WriteString("\n\nTARGET MARKET:\n")
	sb.WriteString(input.TargetMarket)
	sb.WriteString("\n\n")
	if strings.TrimSpace(input.Constraints) != "" {
		sb.WriteString("CONSTRAINTS:\n")
		sb.WriteString(input.Constraints)
		sb.WriteString("\n\n")
	}
	if strings.TrimSpace(input.AdditionalContext) != "" {
		sb.WriteString("ADDITIONAL CONTEXT:\n")
		sb.WriteString(input.AdditionalContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString(promptSchema)
	return sb.String()
}
