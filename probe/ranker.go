package probe

import (
	"net/url"
	"strings"
)

// baselineCandidates is the fixed list of naming conventions for "list the
// available tools", ordered from the canonical form through casing variants
// to generic discovery aliases.
var baselineCandidates = []string{
	"tools/list",
	"listTools",
	"list_tools",
	"ListTools",
	"tools",
	"list",
	"rpc.discover",
}

// wellKnownAliases maps a normalized namespace hint to a server-specific
// listing alias that is tried before everything else.
var wellKnownAliases = map[string]string{
	"weather":    "weather/get_tools",
	"calculator": "calculator/get_tools",
	"search":     "search/get_tools",
}

// Ranker produces the ordered candidate method list for a discovery attempt.
// Ranking is deterministic and performs no I/O.
type Ranker struct {
	aliases map[string]string
}

// NewRanker returns a Ranker with the built-in well-known aliases merged
// with extra. Keys in extra are normalized the same way hints are, so
// "Weather-API" and "weather_api" address the same entry.
func NewRanker(extra map[string]string) *Ranker {
	aliases := make(map[string]string, len(wellKnownAliases)+len(extra))
	for k, v := range wellKnownAliases {
		aliases[k] = v
	}
	for k, v := range extra {
		if ns := NormalizeHint(k); ns != "" && v != "" {
			aliases[ns] = v
		}
	}
	return &Ranker{aliases: aliases}
}

// Rank returns the ordered, de-duplicated candidate methods for the given
// identity hint. An empty hint yields the baseline list unchanged.
func (r *Ranker) Rank(hint string) []string {
	out := make([]string, 0, len(baselineCandidates)+4)
	seen := make(map[string]bool, len(baselineCandidates)+4)
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}

	if ns := NormalizeHint(hint); ns != "" {
		if alias, ok := r.aliases[ns]; ok {
			add(alias)
		}
		add(ns + "/tools/list")
		add(ns + "/listTools")
		add(ns + "/list_tools")
	}
	for _, m := range baselineCandidates {
		add(m)
	}
	return out
}

// NormalizeHint lowers the hint and collapses every run of characters that
// are not letters or digits into a single underscore.
func NormalizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	var b strings.Builder
	pendingSep := false
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// HintFromURL derives an identity hint from the last non-empty path segment
// of rawURL. It returns an empty string when the URL has no usable path.
func HintFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" {
			return s
		}
	}
	return ""
}
