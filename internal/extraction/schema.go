package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema constrains model output to the analyzed-document shape
var documentSchema = map[string]any{
	"type":     "object",
	"required": []string{"docType", "fields"},
	"properties": map[string]any{
		"docType":    map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"fields": map[string]any{
			"type": "object",
			"additionalProperties": map[string]any{
				"type":     "object",
				"required": []string{"type"},
				"properties": map[string]any{
					"type":       map[string]any{"type": "string"},
					"content":    map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number"},
				},
			},
		},
	},
}

func compileDocumentSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(documentSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("document.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("document.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// parseDocumentJSON extracts the JSON object from model text, checks it against
// schema and wraps it as a single-document analysis result
func parseDocumentJSON(text string, schema *jsonschema.Schema) (*AnalysisResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, errors.New("no JSON object found in response")
	}
	raw := []byte(text[start : end+1])

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}

	var doc AnalyzedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &AnalysisResult{Documents: []*AnalyzedDocument{&doc}}, nil
}
