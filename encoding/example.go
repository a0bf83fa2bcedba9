package encoding

import (
	"github.com/brianvoe/gofakeit/v7"
	"github.com/effective-security/toolgate/registry"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ExampleArgs renders a plausible argument map for a tool, in declaration
// order. Declared defaults and enums win over fakes so the example stays
// within the tool's contract.
func ExampleArgs(d *registry.ToolDescriptor) *orderedmap.OrderedMap[string, any] {
	args := orderedmap.New[string, any]()
	for _, p := range d.Parameters {
		args.Set(p.Name, exampleValue(&p))
	}
	return args
}

func exampleValue(p *registry.Parameter) any {
	if p.Default != nil {
		return p.Default
	}
	if len(p.Enum) > 0 {
		return p.Enum[0]
	}
	switch p.Type {
	case registry.KindNumber:
		return gofakeit.Number(1, 100)
	case registry.KindBoolean:
		return gofakeit.Bool()
	case registry.KindObject:
		return map[string]any{}
	case registry.KindArray:
		return []any{}
	default:
		return gofakeit.Word()
	}
}
