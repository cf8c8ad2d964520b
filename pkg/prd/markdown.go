package prd

import (
	"fmt"
	"strings"

	"prdgen/pkg/domain"
)

// Markdown renders a generated PRD as a standalone markdown document. Section
// order is fixed: Overview, Goals, Success Metrics, User Stories, Risk
// Analysis, MVP Scope, Input Summary. Pure formatting, no validation.
func Markdown(doc domain.PRDDocument, input domain.GenerationInput) string {
	var sb strings.Builder
	sb.WriteString("# Product Requirements Document\n\n")

	sb.WriteString("## Product Overview\n")
	sb.WriteString(doc.ProductRequirements.Overview)
	sb.WriteString("\n\n## Goals\n")
	writeBullets(&sb, doc.ProductRequirements.Goals)

	sb.WriteString("\n## Success Metrics\n")
	writeBullets(&sb, doc.ProductRequirements.SuccessMetrics)

	sb.WriteString("\n## User Stories\n")
	for i, story := range doc.UserStories {
		fmt.Fprintf(&sb, "\n### User Story %d\n", i+1)
		fmt.Fprintf(&sb, "**As a** %s  \n", story.Role)
		fmt.Fprintf(&sb, "**I want to** %s  \n", story.Action)
		fmt.Fprintf(&sb, "**So that** %s\n\n", story.Benefit)
		sb.WriteString("**Acceptance Criteria:**\n")
		writeBullets(&sb, story.AcceptanceCriteria)
	}

	sb.WriteString("\n## Risk Analysis\n")
	for i, risk := range doc.Risks {
		fmt.Fprintf(&sb, "\n### Risk %d: %s\n", i+1, risk.Category)
		fmt.Fprintf(&sb, "**Description:** %s  \n", risk.Description)
		fmt.Fprintf(&sb, "**Likelihood:** %s  \n", risk.Likelihood)
		fmt.Fprintf(&sb, "**Impact:** %s  \n", risk.Impact)
		fmt.Fprintf(&sb, "**Mitigation:** %s\n", risk.Mitigation)
	}

	sb.WriteString("\n## MVP Scope\n\n### In Scope\n")
	writeBullets(&sb, doc.MVPScope.InScope)
	sb.WriteString("\n### Out of Scope\n")
	writeBullets(&sb, doc.MVPScope.OutOfScope)
	sb.WriteString("\n### Timeline\n")
	sb.WriteString(doc.MVPScope.Timeline)
	sb.WriteString("\n\n### Assumptions\n")
	writeBullets(&sb, doc.MVPScope.Assumptions)

	sb.WriteString("\n---\n\n## Input Summary\n\n")
	fmt.Fprintf(&sb, "**Product Idea:** %s\n\n", input.Idea)
	fmt.Fprintf(&sb, "**Target Market:** %s\n", input.TargetMarket)
	if strings.TrimSpace(input.Constraints) != "" {
		fmt.Fprintf(&sb, "\n**Constraints:** %s\n", input.Constraints)
	}
	if strings.TrimSpace(input.AdditionalContext) != "" {
		fmt.Fprintf(&sb, "\n**Additional Context:** %s\n", input.AdditionalContext)
	}
	return sb.String()
}

func writeBullets(sb *strings.Builder, items []string) {
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}
