package extract

import (
	"context"

	"github.com/effective-security/toolgate/pkg/metricskey"
	"github.com/effective-security/toolgate/registry"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolgate", "extract")

// Call is one raw recognition produced by a strategy, before
// deduplication and fingerprinting.
type Call struct {
	Tool string
	Args *orderedmap.OrderedMap[string, any]
}

// Strategy is one tier of the recognition cascade. Implementations are
// stateless and safe for concurrent use.
type Strategy interface {
	// Name identifies the tier in logs and metrics.
	Name() string
	// Extract returns the calls this tier recognizes in the reply
	// text, restricted to tools present in the registry.
	Extract(text string, reg *registry.Registry) []Call
}

// Extractor runs the recognition tiers in a fixed priority order.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor returns an extractor with the standard cascade:
// structured envelopes, positional calls, "Using tool:" phrases,
// domain intents.
func NewExtractor() *Extractor {
	return &Extractor{
		strategies: []Strategy{
			StructuredStrategy{},
			PositionalStrategy{},
			PhraseStrategy{},
			DomainStrategy{},
		},
	}
}

// Extract recovers pending invocations from reply text. The first tier
// that recognizes anything is used exclusively; calls with the same
// fingerprint collapse to one. Unrecognized or malformed text yields
// an empty result, never an error.
func (e *Extractor) Extract(ctx context.Context, text string, reg *registry.Registry) []*PendingInvocation {
	if text == "" || reg == nil {
		return nil
	}
	for _, s := range e.strategies {
		calls := s.Extract(text, reg)
		if len(calls) == 0 {
			continue
		}
		seen := make(map[string]bool, len(calls))
		res := make([]*PendingInvocation, 0, len(calls))
		for _, c := range calls {
			inv := NewPendingInvocation(c.Tool, c.Args)
			if seen[inv.Fingerprint] {
				continue
			}
			seen[inv.Fingerprint] = true
			res = append(res, inv)
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"tier", s.Name(),
			"invocations", len(res),
		)
		metricskey.StatsInvocationsExtracted.IncrCounter(float64(len(res)), s.Name())
		return res
	}
	return nil
}
