package api

import (
	"fmt"

	"github.com/mchmarny/churnscore/pkg/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "churn-records.json"

// recordsSchema builds the JSON schema of a scoring request for the
// artifact: an array of objects whose numeric inputs are numbers and whose
// categorical inputs are scalars. Presence is checked separately so that
// missing columns can be reported by name.
func recordsSchema(a *model.Artifact) (*jsonschema.Schema, error) {
	props := make(map[string]any, len(a.NumCols)+len(a.CatCols))
	for _, c := range a.NumCols {
		props[c] = map[string]any{"type": "number"}
	}
	for _, c := range a.CatCols {
		props[c] = map[string]any{"type": []any{"string", "number", "boolean"}}
	}

	doc := map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "array",
		"items": map[string]any{
			"type":       "object",
			"properties": props,
		},
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile records schema: %w", err)
	}
	return s, nil
}
