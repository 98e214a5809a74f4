package tools

// Schema helpers for building JSON Schema definitions.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// RangeProperty creates a number property bounded to [lo, hi].
func RangeProperty(description string, lo, hi float64) map[string]any {
	return map[string]any{
		"type":        "number",
		"description": description,
		"minimum":     lo,
		"maximum":     hi,
	}
}

// ArrayProperty creates an array property with the given item type.
func ArrayProperty(description string, itemType map[string]any) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       itemType,
	}
}

// WithWordLimit appends a hard word ceiling to a string property's description.
func WithWordLimit(property map[string]any, maxWords int) map[string]any {
	result := make(map[string]any, len(property)+1)
	for k, v := range property {
		result[k] = v
	}
	desc, _ := result["description"].(string)
	result["description"] = desc + " " + wordLimitNote(maxWords)
	return result
}
