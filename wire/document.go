package wire

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/pkg/llmutils"
	"github.com/effective-security/toolgate/registry"
	"github.com/tidwall/gjson"
)

// ExtractDocument attempts to parse an accumulated output buffer as one
// JSON document. Servers often emit log noise around the JSON, so the
// buffer is trimmed to its outermost braces first. A parse failure means
// the document is still incomplete, not an error: the caller keeps
// accumulating. A complete document that is not an envelope (an array or
// scalar) yields an empty Response, which probers treat as an implicit
// "try next candidate".
func ExtractDocument(buf []byte) (*Response, bool) {
	cleaned := llmutils.CleanJSON(buf)
	if len(bytes.TrimSpace(cleaned)) == 0 {
		return nil, false
	}
	if !json.Valid(cleaned) {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(cleaned, &resp); err != nil {
		return &Response{}, true
	}
	return &resp, true
}

// DecodeToolList decodes a `result.tools` document into descriptors.
// The second return reports whether the result is list-shaped at all;
// a false value means the document is something else and the caller
// should move on. A list-shaped document that cannot be decoded is a
// malformed response.
//
// Two descriptor dialects appear in the wild: an explicit `parameters`
// array, and a JSON Schema `inputSchema` object. Both are normalized
// into the ordered Parameter list, preserving document order.
func DecodeToolList(result json.RawMessage) ([]registry.ToolDescriptor, bool, error) {
	toolsVal := gjson.GetBytes(result, "tools")
	if !toolsVal.Exists() || !toolsVal.IsArray() {
		return nil, false, nil
	}

	var tools []registry.ToolDescriptor
	var decodeErr error
	toolsVal.ForEach(func(_, tool gjson.Result) bool {
		name := tool.Get("name").String()
		if name == "" {
			decodeErr = errors.New("tool descriptor missing name")
			return false
		}
		desc := registry.ToolDescriptor{
			Name:        name,
			Description: tool.Get("description").String(),
		}
		if params := tool.Get("parameters"); params.IsArray() {
			desc.Parameters = decodeParameterList(params)
		} else if schema := tool.Get("inputSchema"); schema.IsObject() {
			desc.Parameters = decodeInputSchema(schema)
		}
		tools = append(tools, desc)
		return true
	})
	if decodeErr != nil {
		return nil, true, decodeErr
	}
	return tools, true, nil
}

// decodeParameterList decodes the explicit array dialect:
// [{name, type, description, required, enum, default}, ...]
func decodeParameterList(params gjson.Result) []registry.Parameter {
	var out []registry.Parameter
	params.ForEach(func(_, p gjson.Result) bool {
		param := registry.Parameter{
			Name:        p.Get("name").String(),
			Type:        normalizeKind(p.Get("type").String()),
			Description: p.Get("description").String(),
			Required:    p.Get("required").Bool(),
		}
		if enum := p.Get("enum"); enum.IsArray() {
			enum.ForEach(func(_, e gjson.Result) bool {
				param.Enum = append(param.Enum, e.String())
				return true
			})
		}
		if def := p.Get("default"); def.Exists() {
			param.Default = def.Value()
		}
		if param.Name != "" {
			out = append(out, param)
		}
		return true
	})
	return out
}

// decodeInputSchema decodes the JSON Schema dialect:
// {type:"object", properties:{...}, required:[...]}.
// gjson iterates properties in document order, which keeps the declared
// parameter order intact.
func decodeInputSchema(schema gjson.Result) []registry.Parameter {
	required := map[string]bool{}
	if req := schema.Get("required"); req.IsArray() {
		req.ForEach(func(_, r gjson.Result) bool {
			required[r.String()] = true
			return true
		})
	}

	var out []registry.Parameter
	schema.Get("properties").ForEach(func(key, prop gjson.Result) bool {
		param := registry.Parameter{
			Name:        key.String(),
			Type:        normalizeKind(prop.Get("type").String()),
			Description: prop.Get("description").String(),
			Required:    required[key.String()],
		}
		if enum := prop.Get("enum"); enum.IsArray() {
			enum.ForEach(func(_, e gjson.Result) bool {
				param.Enum = append(param.Enum, e.String())
				return true
			})
		}
		if def := prop.Get("default"); def.Exists() {
			param.Default = def.Value()
		}
		out = append(out, param)
		return true
	})
	return out
}

func normalizeKind(t string) registry.Kind {
	switch strings.ToLower(t) {
	case "number", "integer", "float", "double":
		return registry.KindNumber
	case "boolean", "bool":
		return registry.KindBoolean
	case "object":
		return registry.KindObject
	case "array":
		return registry.KindArray
	case "", "string":
		return registry.KindString
	default:
		return registry.KindString
	}
}

// ContentBlock is one unit of a tool-call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallResult is the decoded result of a tools/call request.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// DecodeCallResult decodes a tools/call result document.
func DecodeCallResult(result json.RawMessage) (*CallResult, error) {
	var res CallResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, errors.Wrap(err, "failed to decode call result")
	}
	return &res, nil
}

// Text flattens the textual content blocks, one per line.
func (r *CallResult) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	if len(parts) == 0 {
		return "(no output)"
	}
	return strings.Join(parts, "\n")
}

// ToolCallEnvelope is the delimited tool-call form embedded in LLM reply
// text: { jsonrpc, id, method: "execute_tool", params: { name, parameters } }.
type ToolCallEnvelope struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  ToolCallParams `json:"params"`
}

// ToolCallParams carries the requested tool name and its arguments.
// Some emitters use `arguments` instead of `parameters`; both are accepted.
type ToolCallParams struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

// Args returns the argument map regardless of which field carried it.
func (p *ToolCallParams) Args() map[string]any {
	if len(p.Parameters) > 0 {
		return p.Parameters
	}
	return p.Arguments
}
