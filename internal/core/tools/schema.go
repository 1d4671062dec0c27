package tools

import (
	"context"
	"encoding/json"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// AccessLevel tags a tool for external exposure. Authorization is decided by
// the caller's access list; MCP clients without an explicit list only see
// AccessAll tools.
type AccessLevel string

const (
	AccessAll        AccessLevel = "all"
	AccessRestricted AccessLevel = "restricted"
)

type Param struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}

type Parameters struct {
	Type       string           `json:"type"`
	Properties map[string]Param `json:"properties"`
	Required   []string         `json:"required"`
}

// Schema is the JSON document shown to the model and to MCP clients.
type Schema struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// NewSchema builds an object schema; required must name keys of props.
func NewSchema(name, description string, props map[string]Param, required ...string) Schema {
	if props == nil {
		props = map[string]Param{}
	}
	if required == nil {
		required = []string{}
	}
	return Schema{
		Name:        name,
		Description: description,
		Parameters: Parameters{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// ParametersJSON renders the parameters object alone, as MCP expects it.
func (s Schema) ParametersJSON() json.RawMessage {
	raw, err := json.Marshal(s.Parameters)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return raw
}

// Tool is an invocable capability. Execute receives parameters that already
// passed schema validation.
type Tool interface {
	Schema() Schema
	Access() AccessLevel
	Execute(ctx context.Context, params map[string]any) (any, error)
}
