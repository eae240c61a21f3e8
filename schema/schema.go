// Package schema describes the structure of JSON objects, primarily tool
// input parameters.
package schema

// Schema describes the structure of a JSON object.
type Schema struct {
	Type                 string               `json:"type"`
	Properties           map[string]*Property `json:"properties"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty"`
}

// Property of a schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// AsMap converts the schema to a generic map, the shape expected by SDKs that
// accept tool parameters as map[string]any.
func (s *Schema) AsMap() map[string]any {
	if s == nil {
		return nil
	}
	m := map[string]any{"type": s.Type}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.asMap()
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = toAnySlice(s.Required)
	}
	if s.AdditionalProperties != nil {
		m["additionalProperties"] = *s.AdditionalProperties
	}
	return m
}

func (p *Property) asMap() map[string]any {
	m := map[string]any{"type": p.Type}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		m["enum"] = toAnySlice(p.Enum)
	}
	if p.Items != nil {
		m["items"] = p.Items.asMap()
	}
	if len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		for name, sub := range p.Properties {
			props[name] = sub.asMap()
		}
		m["properties"] = props
	}
	if len(p.Required) > 0 {
		m["required"] = toAnySlice(p.Required)
	}
	return m
}

// FromMap builds a Schema from a generic map, the shape in which MCP servers
// advertise tool input schemas. Unknown keys are dropped.
func FromMap(m map[string]any) *Schema {
	if m == nil {
		return nil
	}
	s := &Schema{Type: stringValue(m["type"])}
	if s.Type == "" {
		s.Type = "object"
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*Property, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = propertyFromMap(pm)
			}
		}
	}
	s.Required = stringSlice(m["required"])
	if ap, ok := m["additionalProperties"].(bool); ok {
		s.AdditionalProperties = &ap
	}
	return s
}

func propertyFromMap(m map[string]any) *Property {
	p := &Property{
		Type:        stringValue(m["type"]),
		Description: stringValue(m["description"]),
		Enum:        stringSlice(m["enum"]),
		Required:    stringSlice(m["required"]),
	}
	if items, ok := m["items"].(map[string]any); ok {
		p.Items = propertyFromMap(items)
	}
	if props, ok := m["properties"].(map[string]any); ok {
		p.Properties = make(map[string]*Property, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				p.Properties[name] = propertyFromMap(pm)
			}
		}
	}
	return p
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		var out []string
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
