package ai

import (
	"encoding/json"
	"strings"
)

// Flavor is the function-calling JSON Schema dialect a backend accepts
type Flavor int

const (
	FlavorOpenAI Flavor = iota
	FlavorGemini
	FlavorAnthropic
)

func (f Flavor) String() string {
	switch f {
	case FlavorGemini:
		return "gemini"
	case FlavorAnthropic:
		return "anthropic"
	default:
		return "openai"
	}
}

// DetectFlavor infers the flavor from an API base URL
func DetectFlavor(baseURL string) Flavor {
	switch {
	case strings.Contains(baseURL, "generativelanguage.googleapis"):
		return FlavorGemini
	case strings.Contains(baseURL, "anthropic"):
		return FlavorAnthropic
	default:
		return FlavorOpenAI
	}
}

// keywords Gemini rejects anywhere in a schema
var geminiForbidden = []string{"default", "$schema", "additionalProperties", "title", "examples"}

// AdaptSchema rewrites a parameter schema in place for the given flavor and returns it
func AdaptSchema(flavor Flavor, schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	switch flavor {
	case FlavorGemini:
		stripGemini(schema)
	case FlavorOpenAI:
		if _, ok := schema["type"]; !ok {
			schema["type"] = "object"
		}
	}
	return schema
}

func stripGemini(node map[string]any) {
	for _, key := range geminiForbidden {
		delete(node, key)
	}

	if _, ok := node["format"]; ok {
		if t, _ := node["type"].(string); t != "string" {
			delete(node, "format")
		}
	}

	for _, composite := range []string{"anyOf", "oneOf"} {
		variants, ok := node[composite].([]any)
		if !ok {
			continue
		}
		delete(node, composite)
		if len(variants) == 0 {
			continue
		}
		if first, ok := variants[0].(map[string]any); ok {
			for k, v := range first {
				node[k] = v
			}
			// the merged variant may itself carry forbidden keys
			for _, key := range geminiForbidden {
				delete(node, key)
			}
		}
	}

	if props, ok := node["properties"].(map[string]any); ok {
		for _, v := range props {
			if child, ok := v.(map[string]any); ok {
				stripGemini(child)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		stripGemini(items)
	}
}

// AdaptTools returns copies of defs with schemas adapted for flavor.
// OpenAI-style definitions also get strict=false when unset.
func AdaptTools(flavor Flavor, defs []ToolDefinition) []ToolDefinition {
	if len(defs) == 0 {
		return defs
	}
	out := make([]ToolDefinition, 0, len(defs))
	for _, def := range defs {
		adapted := def
		if flavor != FlavorAnthropic {
			schema := AdaptSchema(flavor, schemaMap(def.InputSchema))
			if data, err := json.Marshal(schema); err == nil {
				adapted.InputSchema = data
			}
		}
		if flavor == FlavorOpenAI && adapted.Strict == nil {
			strict := false
			adapted.Strict = &strict
		}
		out = append(out, adapted)
	}
	return out
}
