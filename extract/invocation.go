package extract

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/toolgate/encoding"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Status is the lifecycle state of a pending invocation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// PendingInvocation is one tool call recovered from reply text,
// waiting to be dispatched.
type PendingInvocation struct {
	ID       string
	ToolName string
	// Args preserves the key order in which arguments were extracted.
	Args *orderedmap.OrderedMap[string, any]
	// Fingerprint identifies the call for caching and coalescing;
	// see Fingerprint.
	Fingerprint string
	Status      Status
}

// NewPendingInvocation builds an invocation in the pending state with
// its fingerprint computed from the tool name and arguments.
func NewPendingInvocation(tool string, args *orderedmap.OrderedMap[string, any]) *PendingInvocation {
	if args == nil {
		args = orderedmap.New[string, any]()
	}
	return &PendingInvocation{
		ID:          uuid.NewString(),
		ToolName:    tool,
		Args:        args,
		Fingerprint: Fingerprint(tool, args),
		Status:      StatusPending,
	}
}

// Fingerprint is the deterministic identity of a tool call: a hash of
// the lower-cased tool name and the canonical JSON of its arguments.
// Key order and formatting of the arguments do not affect the result.
func Fingerprint(tool string, args *orderedmap.OrderedMap[string, any]) string {
	canonical := "{}"
	if args != nil && args.Len() > 0 {
		if bs, err := encoding.Canonical(args); err == nil {
			canonical = string(bs)
		}
	}
	sum := xxhash.Sum64String(strings.ToLower(tool) + ":" + canonical)
	return strconv.FormatUint(sum, 10)
}
