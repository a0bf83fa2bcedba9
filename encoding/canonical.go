package encoding

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Canonical returns the canonical JSON encoding of a value: object keys
// sorted at every depth, no insignificant whitespace. Two argument maps
// that differ only in key order or formatting canonicalize identically,
// which is what makes invocation fingerprints stable.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode value")
	}
	return CanonicalBytes(raw)
}

// CanonicalBytes rewrites a JSON document in canonical form.
func CanonicalBytes(raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, errors.New("invalid JSON document")
	}
	return canonicalValue(gjson.ParseBytes(raw)), nil
}

func canonicalValue(v gjson.Result) []byte {
	switch {
	case v.IsObject():
		type entry struct {
			key string
			val gjson.Result
		}
		var entries []entry
		v.ForEach(func(k, val gjson.Result) bool {
			entries = append(entries, entry{key: k.String(), val: val})
			return true
		})
		// Stable sort keeps source order among duplicate keys, so the
		// last occurrence wins, matching decode semantics.
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].key < entries[j].key
		})
		out := []byte(`{}`)
		for _, e := range entries {
			out, _ = sjson.SetRawBytes(out, escapePath(e.key), canonicalValue(e.val))
		}
		return out
	case v.IsArray():
		out := []byte(`[]`)
		v.ForEach(func(_, el gjson.Result) bool {
			out, _ = sjson.SetRawBytes(out, "-1", canonicalValue(el))
			return true
		})
		return out
	default:
		return []byte(v.Raw)
	}
}

// escapePath guards sjson path metacharacters in object keys.
func escapePath(key string) string {
	if !strings.ContainsAny(key, `.*?|#@:\`) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', ':', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
