package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/analysis"
)

func TestStrictStripsValidationKeywords(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{"type": "number", "minimum": 1.0, "maximum": 10.0},
			"name":  map[string]any{"type": "string", "minLength": 1, "pattern": "^x"},
		},
	}

	out := analysis.Strict(schema)

	props := out["properties"].(map[string]any)
	score := props["score"].(map[string]any)
	assert.NotContains(t, score, "minimum")
	assert.NotContains(t, score, "maximum")
	name := props["name"].(map[string]any)
	assert.NotContains(t, name, "minLength")
	assert.NotContains(t, name, "pattern")
}

func TestStrictRequiresEveryProperty(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "string"},
			"b": map[string]any{"type": "boolean"},
		},
	}

	out := analysis.Strict(schema)

	assert.Equal(t, false, out["additionalProperties"])
	required, ok := out["required"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"a", "b"}, required)
}

func TestStrictRecursesIntoNestedSchemas(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"n": map[string]any{"type": "number", "minimum": 0.0},
					},
				},
			},
		},
	}

	out := analysis.Strict(schema)

	inner := out["properties"].(map[string]any)["items"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, inner["additionalProperties"])
	assert.Equal(t, []string{"n"}, inner["required"].([]string))
	assert.NotContains(t, inner["properties"].(map[string]any)["n"].(map[string]any), "minimum")
}

func TestStrictResultSchemaIsFullyStrict(t *testing.T) {
	var walk func(t *testing.T, schema map[string]any)
	walk = func(t *testing.T, schema map[string]any) {
		t.Helper()

		for _, kw := range []string{"minimum", "maximum", "minItems", "maxItems", "pattern", "format"} {
			assert.NotContains(t, schema, kw)
		}
		if typ, ok := schema["type"].(string); ok && typ == "object" {
			assert.Equal(t, false, schema["additionalProperties"])
			props, ok := schema["properties"].(map[string]any)
			require.True(t, ok)
			required, ok := schema["required"].([]string)
			require.True(t, ok)
			assert.Len(t, required, len(props))
			for _, sub := range props {
				if m, ok := sub.(map[string]any); ok {
					walk(t, m)
				}
			}
		}
		if items, ok := schema["items"].(map[string]any); ok {
			walk(t, items)
		}
	}

	walk(t, analysis.StrictResultSchema())
}

func TestResultSchemaKeepsValidationHints(t *testing.T) {
	schema := analysis.ResultSchema()
	sentiment := schema["properties"].(map[string]any)["sentiment"].(map[string]any)
	polarity := sentiment["properties"].(map[string]any)["polarity"].(map[string]any)
	assert.Equal(t, -10.0, polarity["minimum"])
	assert.Equal(t, 10.0, polarity["maximum"])
}
