package prd

import (
	"strings"
	"testing"

	"prdgen/pkg/domain"
)

func TestBuildPromptEmbedsInputVerbatim(t *testing.T) {
	input := domain.GenerationInput{
		Idea:         "A time-tracking app for freelancers",
		TargetMarket: "solo freelancers",
	}
	prompt := BuildPrompt(input)
	if !strings.Contains(prompt, input.Idea) {
		t.Fatalf("prompt missing idea")
	}
	if !strings.Contains(prompt, input.TargetMarket) {
		t.Fatalf("prompt missing target market")
	}
	if !strings.Contains(prompt, `"productRequirements"`) {
		t.Fatalf("prompt missing schema block")
	}
	if !strings.Contains(prompt, "Technical|Market|Operational|Financial") {
		t.Fatalf("prompt missing risk category enums")
	}
	if !strings.Contains(prompt, "ONLY valid JSON") {
		t.Fatalf("prompt missing JSON-only directive")
	}
}

func TestBuildPromptOptionalSections(t *testing.T) {
	base := domain.GenerationInput{Idea: "idea", TargetMarket: "market"}

	prompt := BuildPrompt(base)
	if strings.Contains(prompt, "CONSTRAINTS") {
		t.Fatalf("empty constraints should omit CONSTRAINTS section")
	}
	if strings.Contains(prompt, "ADDITIONAL CONTEXT") {
		t.Fatalf("empty context should omit ADDITIONAL CONTEXT section")
	}

	withSections := base
	withSections.Constraints = "must run offline"
	withSections.AdditionalContext = "competitor X exists"
	prompt = BuildPrompt(withSections)
	if !strings.Contains(prompt, "CONSTRAINTS:\nmust run offline") {
		t.Fatalf("constraints section missing or reworded")
	}
	if !strings.Contains(prompt, "ADDITIONAL CONTEXT:\ncompetitor X exists") {
		t.Fatalf("context section missing or reworded")
	}
}

func TestBuildPromptDeterministic(t *testing.T) {
	input := domain.GenerationInput{Idea: "idea", TargetMarket: "market", Constraints: "c"}
	if BuildPrompt(input) != BuildPrompt(input) {
		t.Fatalf("prompt builder must be deterministic")
	}
}
