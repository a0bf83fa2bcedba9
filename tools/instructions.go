package tools

import (
	"strings"

	"github.com/effective-security/toolgate/encoding"
	"github.com/effective-security/toolgate/pkg/llmutils"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/wire"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Instructions renders the system-prompt block that declares the given
// tools to the model: a name and description digest, then an example
// invocation envelope built from the first tool's declared parameters.
// An empty descriptor list yields an empty string.
func Instructions(descs ...*registry.ToolDescriptor) string {
	if len(descs) == 0 {
		return ""
	}
	list := make([]ITool, 0, len(descs))
	for _, d := range descs {
		// metadata only, the caller is never invoked here
		list = append(list, NewRemote(d, nil))
	}

	params := orderedmap.New[string, any]()
	params.Set("name", descs[0].Name)
	params.Set("parameters", encoding.ExampleArgs(descs[0]))
	example := wire.NewRequest(1, wire.MethodExecuteTool, params)

	var sb strings.Builder
	sb.WriteString("You may request the following tools:\n")
	sb.WriteString(GetDescriptions(list...))
	sb.WriteString("\nTo invoke a tool, reply with a JSON-RPC envelope like:\n")
	sb.WriteString(llmutils.BackticksJSON(llmutils.ToJSONIndent(example)))
	sb.WriteString("\nUse the exact tool and parameter names as declared.")
	return sb.String()
}
