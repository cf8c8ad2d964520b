package prd

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"prdgen/pkg/domain"
)

func sampleDocument() domain.PRDDocument {
	return domain.PRDDocument{
		ProductRequirements: domain.ProductRequirements{
			Overview:       "A time tracker for freelancers.",
			Goals:          []string{"Track billable hours", "Simplify invoicing"},
			SuccessMetrics: []string{"Weekly active users", "Invoices generated"},
		},
		UserStories: []domain.UserStory{
			{
				Role:               "freelancer",
				Action:             "start a timer per client",
				Benefit:            "bill accurately",
				AcceptanceCriteria: []string{"timer persists across restarts"},
			},
		},
		Risks: []domain.Risk{
			{
				Category:    "Market",
				Description: "crowded space",
				Likelihood:  "High",
				Impact:      "Medium",
				Mitigation:  "focus on a niche",
			},
		},
		MVPScope: domain.MVPScope{
			InScope:     []string{"timers", "invoices"},
			OutOfScope:  []string{"payroll"},
			Timeline:    "6 weeks",
			Assumptions: []string{"solo users only"},
		},
	}
}

func mustJSON(t *testing.T, doc domain.PRDDocument) string {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	return string(raw)
}

func TestExtractRoundTrip(t *testing.T) {
	doc := sampleDocument()
	body := mustJSON(t, doc)

	cases := map[string]string{
		"bare":         body,
		"fenced":       "```json\n" + body + "\n```",
		"leading":      "Here is the PRD you asked for:\n\n" + body,
		"trailing":     body + "\n\nLet me know if you want changes.",
		"prose_fenced": "Sure! Here it is:\n```json\n" + body + "\n```\nHope that helps.",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Extract(raw)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if !reflect.DeepEqual(got, doc) {
				t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, doc)
			}
		})
	}
}

func TestExtractBracesInsideStrings(t *testing.T) {
	doc := sampleDocument()
	doc.ProductRequirements.Overview = "Supports {templated} notes with } and { characters."
	raw := "noise " + mustJSON(t, doc) + " noise"
	got, err := Extract(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got.ProductRequirements.Overview != doc.ProductRequirements.Overview {
		t.Fatalf("overview mangled: %q", got.ProductRequirements.Overview)
	}
}

func TestExtractFailures(t *testing.T) {
	cases := map[string]struct {
		raw    string
		reason string
	}{
		"no_object":    {raw: "the model refused to answer", reason: "no JSON object"},
		"unterminated": {raw: `{"productRequirements": `, reason: "no JSON object"},
		"malformed":    {raw: `{"productRequirements": }`, reason: "malformed JSON"},
		"missing_key": {
			raw:    `{"productRequirements": {}, "userStories": [], "risks": []}`,
			reason: `missing required key "mvpScope"`,
		},
		"null_key": {
			raw:    `{"productRequirements": {}, "userStories": [], "risks": null, "mvpScope": {}}`,
			reason: `missing required key "risks"`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(tc.raw)
			if err == nil {
				t.Fatalf("expected extraction failure")
			}
			var extractErr *ExtractionError
			if !errors.As(err, &extractErr) {
				t.Fatalf("expected *ExtractionError, got %T", err)
			}
			if !strings.Contains(extractErr.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", extractErr.Reason, tc.reason)
			}
			if extractErr.Raw != tc.raw {
				t.Fatalf("raw text not preserved for diagnostics")
			}
		})
	}
}

func TestExtractKeepsMalformedNestedFields(t *testing.T) {
	// Nested shape is not deep-validated: unexpected values inside sections
	// must not fail extraction outright, only genuinely unusable documents do.
	raw := `{"productRequirements": {"overview": "x", "goals": null, "successMetrics": []},
		"userStories": [], "risks": [], "mvpScope": {"inScope": [], "outOfScope": [], "timeline": "", "assumptions": []}}`
	doc, err := Extract(raw)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.ProductRequirements.Goals != nil {
		t.Fatalf("expected nil goals to pass through")
	}
}
