package registry

import (
	"github.com/effective-security/toolgate/pkg/llmutils"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Schema renders the descriptor's parameter list as a JSON Schema object.
// Properties keep the declaration order from the discovery response.
func (d *ToolDescriptor) Schema() *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	var required []string

	for _, p := range d.Parameters {
		kind := p.Type
		if kind == "" {
			kind = KindString
		}
		ps := &jsonschema.Schema{
			Type:        string(kind),
			Description: p.Description,
		}
		for _, e := range p.Enum {
			ps.Enum = append(ps.Enum, e)
		}
		if p.Default != nil {
			ps.Default = p.Default
		}
		props.Set(p.Name, ps)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// SchemaJSON returns the parameter schema as indented JSON,
// suitable for prompt instructions.
func (d *ToolDescriptor) SchemaJSON() string {
	return llmutils.JSONIndent(llmutils.ToJSON(d.Schema()))
}
