package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema is the canonical shape every backend response must match:
// a non-empty cumulative summary plus the character names seen in the window.
const responseSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "characters": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "required": ["summary", "characters"],
  "additionalProperties": false
}`

var (
	compiledSchema     *jsonschema.Schema
	compileSchemaOnce  sync.Once
	compileSchemaError error
)

func responseValidator() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("response.json", strings.NewReader(responseSchema)); err != nil {
			compileSchemaError = fmt.Errorf("load response schema: %w", err)
			return
		}
		compiledSchema, compileSchemaError = compiler.Compile("response.json")
	})
	return compiledSchema, compileSchemaError
}

// parseResult extracts and validates the structured payload from raw model
// output. Markdown code fences and surrounding prose are tolerated; anything
// that does not validate against the schema is a malformed response.
func parseResult(op, content string) (*Result, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, Malformed(op, err)
	}

	schema, err := responseValidator()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, Malformed(op, fmt.Errorf("decode response: %w", err))
	}
	if err := schema.Validate(doc); err != nil {
		return nil, Malformed(op, fmt.Errorf("response does not match schema: %w", err))
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, Malformed(op, fmt.Errorf("decode validated response: %w", err))
	}

	cleaned := res.Characters[:0]
	for _, name := range res.Characters {
		if name = strings.TrimSpace(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	res.Characters = cleaned
	res.Summary = strings.TrimSpace(res.Summary)
	if res.Summary == "" {
		return nil, Malformed(op, fmt.Errorf("empty summary after trimming"))
	}
	return &res, nil
}

// extractJSON recovers a JSON object from model output, stripping code
// fences and leading or trailing commentary.
func extractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response body")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			candidates = append(candidates, content[start:end+1])
		}
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("normalize response: %w", mErr)
			}
			return normalized, nil
		}
	}
	return nil, fmt.Errorf("no parseable JSON in response")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
