package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/registry"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ValidateArgs checks the supplied arguments against the tool's declared
// parameters: required parameters present, value types matching the
// declared kind, enum membership. Argument names match declarations
// case-insensitively. Arguments without a matching declaration pass
// through untouched; the server owns their interpretation.
func ValidateArgs(desc *registry.ToolDescriptor, args *orderedmap.OrderedMap[string, any]) error {
	for i := range desc.Parameters {
		p := &desc.Parameters[i]
		v, ok := lookupArg(args, p.Name)
		if !ok || v == nil {
			if p.Required {
				return errors.Newf("missing required parameter %q", p.Name)
			}
			continue
		}
		if !kindMatches(p.Type, v) {
			return errors.Newf("parameter %q: expected %s, got %T", p.Name, p.Type, v)
		}
		if len(p.Enum) > 0 && !enumHas(p.Enum, v) {
			return errors.Newf("parameter %q: value %v is not one of [%s]",
				p.Name, v, strings.Join(p.Enum, ", "))
		}
	}
	return nil
}

func lookupArg(args *orderedmap.OrderedMap[string, any], name string) (any, bool) {
	if args == nil {
		return nil, false
	}
	if v, ok := args.Get(name); ok {
		return v, true
	}
	for pair := args.Oldest(); pair != nil; pair = pair.Next() {
		if strings.EqualFold(pair.Key, name) {
			return pair.Value, true
		}
	}
	return nil, false
}

func kindMatches(k registry.Kind, v any) bool {
	switch k {
	case registry.KindString:
		_, ok := v.(string)
		return ok
	case registry.KindNumber:
		switch v.(type) {
		case float64, float32, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, json.Number:
			return true
		}
		return false
	case registry.KindBoolean:
		_, ok := v.(bool)
		return ok
	case registry.KindObject:
		switch v.(type) {
		case map[string]any, *orderedmap.OrderedMap[string, any]:
			return true
		}
		return false
	case registry.KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func enumHas(enum []string, v any) bool {
	s, ok := v.(string)
	if !ok {
		s = stringifyArg(v)
	}
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

func stringifyArg(v any) string {
	bs, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.Trim(string(bs), `"`)
}
