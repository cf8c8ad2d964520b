package prd

import (
	"encoding/json"
	"fmt"

	"prdgen/pkg/domain"
)

// ExtractionError reports why model output could not be turned into a
// PRDDocument. Raw carries the unparsed text for diagnostic logging; it must
// never be shown to the end user.
type ExtractionError struct {
	Reason string
	Raw    string
}

func (e *ExtractionError) Error() string {
	return "invalid model output: " + e.Reason
}

var requiredKeys = []string{"productRequirements", "userStories", "risks", "mvpScope"}

// Extract isolates the first JSON object embedded in raw model text and
// validates it as a PRDDocument. The model may wrap the JSON in code fences or
// surround it with prose; everything outside the first balanced {...} span is
// discarded. Only the presence of the four top-level sections is checked:
// nested shapes are passed through untouched and downstream consumers must
// tolerate malformed fields.
func Extract(raw string) (domain.PRDDocument, error) {
	span, ok := jsonSpan(raw)
	if !ok {
		return domain.PRDDocument{}, &ExtractionError{Reason: "no JSON object found", Raw: raw}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &top); err != nil {
		return domain.PRDDocument{}, &ExtractionError{Reason: "malformed JSON: " + err.Error(), Raw: raw}
	}
	for _, key := range requiredKeys {
		value, ok := top[key]
		if !ok || isJSONNull(value) {
			return domain.PRDDocument{}, &ExtractionError{Reason: fmt.Sprintf("missing required key %q", key), Raw: raw}
		}
	}

	var doc domain.PRDDocument
	if err := json.Unmarshal([]byte(span), &doc); err != nil {
		return domain.PRDDocument{}, &ExtractionError{Reason: "unexpected document shape: " + err.Error(), Raw: raw}
	}
	return doc, nil
}

// jsonSpan returns the first '{'-to-matching-'}' span in text. Brace depth is
// tracked outside JSON string literals so braces inside values do not
// terminate the span early.
func jsonSpan(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
