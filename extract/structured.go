package extract

import (
	"encoding/json"

	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/wire"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StructuredStrategy recognizes delimited JSON-RPC envelopes carrying
// method "execute_tool", fenced or plain. Envelopes naming a tool
// absent from the registry are ignored.
type StructuredStrategy struct{}

// Name implements Strategy.
func (StructuredStrategy) Name() string { return "structured" }

// Extract implements Strategy.
func (StructuredStrategy) Extract(text string, reg *registry.Registry) []Call {
	var calls []Call
	for _, block := range jsonBlocks(text) {
		doc := gjson.Parse(block)
		if doc.Get("method").String() != wire.MethodExecuteTool {
			continue
		}
		params := doc.Get("params")
		desc, _, ok := reg.Find(params.Get("name").String())
		if !ok {
			continue
		}
		calls = append(calls, Call{Tool: desc.Name, Args: envelopeArgs(params)})
	}
	return calls
}

// envelopeArgs reads params.parameters, or params.arguments for models
// speaking that dialect, preserving key order.
func envelopeArgs(params gjson.Result) *orderedmap.OrderedMap[string, any] {
	args := orderedmap.New[string, any]()
	obj := params.Get("parameters")
	if !obj.IsObject() {
		obj = params.Get("arguments")
	}
	if obj.IsObject() {
		obj.ForEach(func(k, v gjson.Result) bool {
			args.Set(k.String(), v.Value())
			return true
		})
	}
	return args
}

// jsonBlocks returns every balanced JSON object embedded in the text.
// Fenced blocks need no special handling: the braces are in the text
// either way. A recognized block is skipped over so its nested objects
// are not reported twice.
func jsonBlocks(text string) []string {
	var blocks []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			continue
		}
		block := text[i : end+1]
		if json.Valid([]byte(block)) {
			blocks = append(blocks, block)
			i = end
		}
	}
	return blocks
}

// matchBrace finds the closing brace of the object opening at start,
// honoring JSON strings and escapes.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
