package tools

import (
	"fmt"
	"slices"
	"sort"
)

// Validate checks params against schema: required keys present, no
// undeclared keys, JSON types match and enum values are allowed.
func Validate(schema Schema, params map[string]any) error {
	for _, name := range schema.Parameters.Required {
		value, ok := params[name]
		if !ok || value == nil {
			return fmt.Errorf("missing required parameter %q", name)
		}
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, declared := schema.Parameters.Properties[key]
		if !declared {
			return fmt.Errorf("unexpected parameter %q", key)
		}
		value := params[key]
		if value == nil {
			continue
		}
		if !matchesType(prop.Type, value) {
			return fmt.Errorf("parameter %q must be of type %s", key, prop.Type)
		}
		if len(prop.Enum) > 0 {
			str, ok := value.(string)
			if !ok || !slices.Contains(prop.Enum, str) {
				return fmt.Errorf("parameter %q must be one of %v", key, prop.Enum)
			}
		}
	}
	return nil
}

func matchesType(t ParamType, value any) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		_, ok := value.(map[string]any)
		return ok
	case "":
		return true
	default:
		return false
	}
}
