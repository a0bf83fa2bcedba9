package tools

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolgate/chatmodel"
	"github.com/effective-security/toolgate/encoding"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/toolgate/transport"
	"github.com/effective-security/toolgate/wire"
)

// Remote adapts a discovered tool descriptor and its server's transport
// into an ITool, so a discovered remote tool and a locally registered
// tool are invoked identically.
type Remote struct {
	desc   *registry.ToolDescriptor
	caller transport.Caller
}

// NewRemote wraps a discovered descriptor and a caller for its owning server.
func NewRemote(desc *registry.ToolDescriptor, caller transport.Caller) *Remote {
	return &Remote{desc: desc, caller: caller}
}

var _ ITool = (*Remote)(nil)

// Name returns the discovered tool name.
func (t *Remote) Name() string {
	return t.desc.Name
}

// Description returns the discovered tool description.
func (t *Remote) Description() string {
	return t.desc.Description
}

// Parameters returns the discovered parameter descriptors, in the order
// the server declared them.
func (t *Remote) Parameters() any {
	return t.desc.Parameters
}

// Call decodes the JSON input, fills declared defaults for missing
// parameters, and issues tools/call against the owning server.
// A result the server marks isError comes back as an error.
func (t *Remote) Call(ctx context.Context, input string) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(input) != "" {
		if err := encoding.DecodeString(input, &args); err != nil {
			return "", errors.WithMessage(chatmodel.ErrFailedUnmarshalInput, err.Error())
		}
	}
	for name, def := range t.desc.Defaults() {
		if _, ok := lookupArg(args, name); !ok {
			args[name] = def
		}
	}

	raw, err := t.caller.Call(ctx, wire.MethodToolsCall, &wire.CallParams{
		Name:      t.desc.Name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.WithMessagef(err, "failed to call tool %s", t.desc.Name)
	}
	res, err := wire.DecodeCallResult(raw)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", errors.Newf("tool %s reported an error: %s", t.desc.Name, res.Text())
	}
	return res.Text(), nil
}

// lookupArg matches argument names the way descriptors do,
// case-insensitively.
func lookupArg(args map[string]any, name string) (any, bool) {
	if v, ok := args[name]; ok {
		return v, true
	}
	for k, v := range args {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}
