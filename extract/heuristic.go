package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/effective-security/toolgate/registry"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// PositionalStrategy recognizes bare function-call text such as
// `get_weather("Paris")` or `calculate(2+2)`. The single captured
// value is mapped onto a parameter name inferred from the tool's
// declaration or naming convention; a written key, if any, is ignored.
// Multi-argument calls are left for PhraseStrategy.
type PositionalStrategy struct{}

var positionalPattern = regexp.MustCompile(
	`\b([A-Za-z_]\w*)\s*\(\s*(?:[A-Za-z_]\w*\s*=\s*)?(?:"([^"]*)"|'([^']*)'|([^()={},\n]*?))\s*\)`,
)

// Name implements Strategy.
func (PositionalStrategy) Name() string { return "positional" }

// Extract implements Strategy.
func (PositionalStrategy) Extract(text string, reg *registry.Registry) []Call {
	var calls []Call
	for _, m := range positionalPattern.FindAllStringSubmatch(text, -1) {
		desc, _, ok := reg.Find(m[1])
		if !ok {
			continue
		}
		args := orderedmap.New[string, any]()
		switch {
		case m[2] != "":
			args.Set(inferParamName(desc), m[2])
		case m[3] != "":
			args.Set(inferParamName(desc), m[3])
		default:
			if v := strings.TrimSpace(m[4]); v != "" {
				args.Set(inferParamName(desc), parseScalar(v))
			}
		}
		calls = append(calls, Call{Tool: desc.Name, Args: args})
	}
	return calls
}

// PhraseStrategy recognizes the explicit announcement form
// `Using tool: name(key=value, key2="value two")`. Pairs are split on
// commas, keys keep their written names, quotes around values are
// stripped.
type PhraseStrategy struct{}

var phrasePattern = regexp.MustCompile(
	`(?i)\busing\s+tool:?\s*([A-Za-z_]\w*)\s*\(([^)]*)\)`,
)

// Name implements Strategy.
func (PhraseStrategy) Name() string { return "phrase" }

// Extract implements Strategy.
func (PhraseStrategy) Extract(text string, reg *registry.Registry) []Call {
	var calls []Call
	for _, m := range phrasePattern.FindAllStringSubmatch(text, -1) {
		desc, _, ok := reg.Find(m[1])
		if !ok {
			continue
		}
		args := orderedmap.New[string, any]()
		for _, pair := range strings.Split(m[2], ",") {
			k, v, found := strings.Cut(pair, "=")
			if !found {
				continue
			}
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			v = strings.TrimSpace(v)
			if unquoted, wasQuoted := stripQuotes(v); wasQuoted {
				args.Set(k, unquoted)
			} else if v != "" {
				args.Set(k, parseScalar(v))
			}
		}
		calls = append(calls, Call{Tool: desc.Name, Args: args})
	}
	return calls
}

// DomainStrategy covers a small fixed set of natural-language intents.
// An intent fires only when the registry holds a tool matching it and
// the extracted value is non-empty.
type DomainStrategy struct{}

var (
	weatherIntent    = regexp.MustCompile(`(?i)\bweather\s+(?:in|for|at)\s+([^.,;!?\n]+)`)
	arithmeticIntent = regexp.MustCompile(`\d+(?:\.\d+)?(?:\s*[-+*/]\s*\d+(?:\.\d+)?)+`)
)

// Name implements Strategy.
func (DomainStrategy) Name() string { return "domain" }

// Extract implements Strategy.
func (DomainStrategy) Extract(text string, reg *registry.Registry) []Call {
	var calls []Call
	if m := weatherIntent.FindStringSubmatch(text); m != nil {
		if desc, ok := findByKeyword(reg, "weather", "forecast"); ok {
			place := strings.Trim(strings.TrimSpace(m[1]), `"'`)
			if place != "" {
				args := orderedmap.New[string, any]()
				args.Set(inferParamName(desc), place)
				calls = append(calls, Call{Tool: desc.Name, Args: args})
			}
		}
	}
	if expr := strings.TrimSpace(arithmeticIntent.FindString(text)); expr != "" {
		if desc, ok := findByKeyword(reg, "calc", "math"); ok {
			args := orderedmap.New[string, any]()
			args.Set(inferParamName(desc), expr)
			calls = append(calls, Call{Tool: desc.Name, Args: args})
		}
	}
	return calls
}

// inferParamName picks the argument name for a single extracted value:
// a conventional name the tool declares, its first required parameter,
// its first declared parameter, or a convention derived from the tool
// name when the declaration is empty.
func inferParamName(d *registry.ToolDescriptor) string {
	for _, conventional := range []string{"location", "expression", "query", "input"} {
		if p, ok := d.Param(conventional); ok {
			return p.Name
		}
	}
	for i := range d.Parameters {
		if d.Parameters[i].Required {
			return d.Parameters[i].Name
		}
	}
	if len(d.Parameters) > 0 {
		return d.Parameters[0].Name
	}
	name := strings.ToLower(d.Name)
	switch {
	case strings.Contains(name, "weather") || strings.Contains(name, "forecast"):
		return "location"
	case strings.Contains(name, "calc") || strings.Contains(name, "math"):
		return "expression"
	case strings.Contains(name, "search"):
		return "query"
	}
	return "input"
}

// findByKeyword locates a registered tool whose name contains one of
// the keywords. Keywords are tried in priority order against the
// sorted name list, so the choice is deterministic.
func findByKeyword(reg *registry.Registry, keywords ...string) (*registry.ToolDescriptor, bool) {
	names := reg.Names()
	for _, kw := range keywords {
		for _, name := range names {
			if !strings.Contains(strings.ToLower(name), kw) {
				continue
			}
			if desc, _, ok := reg.Find(name); ok {
				return desc, true
			}
		}
	}
	return nil, false
}

// stripQuotes removes one layer of matching single or double quotes.
func stripQuotes(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}

// parseScalar reads an unquoted value: numbers and booleans take their
// JSON types, everything else stays text.
func parseScalar(s string) any {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return s
}
