package encoding_test

import (
	"testing"

	"github.com/effective-security/toolgate/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CanonicalBytes(t *testing.T) {
	a, err := encoding.CanonicalBytes([]byte(`{"location": "Paris", "units": "metric"}`))
	require.NoError(t, err)
	b, err := encoding.CanonicalBytes([]byte(`{
		"units": "metric",
		"location": "Paris"
	}`))
	require.NoError(t, err)

	assert.Equal(t, `{"location":"Paris","units":"metric"}`, string(a))
	assert.Equal(t, a, b, "key order and whitespace must not affect the canonical form")
}

func Test_CanonicalBytes_Nested(t *testing.T) {
	out, err := encoding.CanonicalBytes([]byte(`{"z": {"d": 4, "c": [3, {"b": 2, "a": 1}]}, "y": true}`))
	require.NoError(t, err)
	assert.Equal(t, `{"y":true,"z":{"c":[3,{"a":1,"b":2}],"d":4}}`, string(out),
		"objects sort at every depth; arrays keep their order")
}

func Test_CanonicalBytes_EdgeShapes(t *testing.T) {
	out, err := encoding.CanonicalBytes([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(out))

	out, err = encoding.CanonicalBytes([]byte(`[2, 1]`))
	require.NoError(t, err)
	assert.Equal(t, `[2,1]`, string(out))

	out, err = encoding.CanonicalBytes([]byte(`"plain"`))
	require.NoError(t, err)
	assert.Equal(t, `"plain"`, string(out))

	// Dotted keys stay literal keys.
	out, err = encoding.CanonicalBytes([]byte(`{"a.b": 1, "a": 2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"a.b":1}`, string(out))

	// Duplicate keys collapse to the last occurrence.
	out, err = encoding.CanonicalBytes([]byte(`{"x":1,"x":2}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":2}`, string(out))

	_, err = encoding.CanonicalBytes([]byte(`{"x":`))
	require.Error(t, err)
}

func Test_Canonical(t *testing.T) {
	out, err := encoding.Canonical(map[string]any{
		"state":    "CA",
		"severity": "severe",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"severity":"severe","state":"CA"}`, string(out))

	_, err = encoding.Canonical(func() {})
	require.Error(t, err)
}
