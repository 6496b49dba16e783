package analysis

// The response schema sent with every chat request. Built programmatically
// from the output contract, then post-processed to satisfy the provider's
// strict mode: validation-only keywords are stripped, every object gets
// additionalProperties=false, and every property becomes required.

// validationKeywords are JSON-schema keywords strict mode rejects.
var validationKeywords = []string{
	"minLength", "maxLength", "pattern",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum",
	"minItems", "maxItems", "uniqueItems",
	"format", "multipleOf", "default", "title",
}

// ResultSchema returns the JSON schema of the analysis output contract,
// including the numeric-range and length hints strict mode later removes.
func ResultSchema() map[string]any {
	return obj(map[string]any{
		"sentiment": obj(map[string]any{
			"polarity":  num(-10, 10),
			"intensity": num(1, 10),
			"tone":      enum(Tones),
		}),
		"framing": obj(map[string]any{
			"angle":          str(),
			"narrative_type": enum(NarrativeTypes),
		}),
		"entities": arr(obj(map[string]any{
			"name":             str(),
			"name_normalized":  str(),
			"type":             enum(EntityTypes),
			"role":             enum(EntityRoles),
			"sentiment_toward": num(-10, 10),
		})),
		"events": arr(obj(map[string]any{
			"topic_normalized":     str(),
			"name_normalized":      str(),
			"sub_event_normalized": nullable(str()),
			"tags":                 arr(str()),
			"type":                 enum(EventTypes),
			"is_main":              boolean(),
			"event_time":           nullable(map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`}),
			"article_type":         enum(ArticleTypes),
			"temporal_cues":        arr(str()),
		})),
		"entity_relations": arr(obj(map[string]any{
			"source": str(),
			"target": str(),
			"type":   enum(EntityRelationTypes),
		})),
		"event_relations": arr(obj(map[string]any{
			"entity": str(),
			"event":  str(),
			"type":   enum(EventRelationTypes),
		})),
		"signals": obj(map[string]any{
			"is_exclusive": boolean(),
			"is_opinion":   boolean(),
			"has_update":   boolean(),
			"key_claims": map[string]any{
				"type":     "array",
				"items":    str(),
				"maxItems": maxKeyClaims,
			},
			"virality_score": num(1, 10),
		}),
		"category_normalized": enum(Categories),
	})
}

// StrictResultSchema returns the output schema post-processed for strict
// structured output.
func StrictResultSchema() map[string]any {
	return Strict(ResultSchema())
}

// Strict rewrites a schema in place for strict mode and returns it: all
// validation-only keywords removed, additionalProperties pinned to false,
// every property required. Nested schemas under properties, items, $defs,
// anyOf, allOf, and oneOf are rewritten too.
func Strict(schema map[string]any) map[string]any {
	for _, kw := range validationKeywords {
		delete(schema, kw)
	}

	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name, sub := range props {
				required = append(required, name)
				if m, ok := sub.(map[string]any); ok {
					Strict(m)
				}
			}
			schema["required"] = required
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		Strict(items)
	}
	if defs, ok := schema["$defs"].(map[string]any); ok {
		for _, sub := range defs {
			if m, ok := sub.(map[string]any); ok {
				Strict(m)
			}
		}
	}
	for _, key := range []string{"anyOf", "allOf", "oneOf"} {
		if variants, ok := schema[key].([]any); ok {
			for _, sub := range variants {
				if m, ok := sub.(map[string]any); ok {
					Strict(m)
				}
			}
		}
	}

	return schema
}

func obj(props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props}
}

func arr(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func str() map[string]any {
	return map[string]any{"type": "string"}
}

func boolean() map[string]any {
	return map[string]any{"type": "boolean"}
}

func num(lo, hi float64) map[string]any {
	return map[string]any{"type": "number", "minimum": lo, "maximum": hi}
}

func enum(values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func nullable(schema map[string]any) map[string]any {
	if t, ok := schema["type"].(string); ok {
		schema["type"] = []any{t, "null"}
	}
	return schema
}
