package dispatch_test

import (
	"testing"

	"github.com/effective-security/toolgate/dispatch"
	"github.com/effective-security/toolgate/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func forecastDescriptor() *registry.ToolDescriptor {
	return &registry.ToolDescriptor{
		Name: "get_forecast",
		Parameters: []registry.Parameter{
			{Name: "location", Type: registry.KindString, Required: true},
			{Name: "days", Type: registry.KindNumber},
			{Name: "detailed", Type: registry.KindBoolean},
			{Name: "units", Type: registry.KindString, Enum: []string{"celsius", "fahrenheit"}},
			{Name: "filters", Type: registry.KindObject},
			{Name: "fields", Type: registry.KindArray},
		},
	}
}

func args(kv ...any) *orderedmap.OrderedMap[string, any] {
	m := orderedmap.New[string, any]()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1])
	}
	return m
}

func Test_ValidateArgs(t *testing.T) {
	desc := forecastDescriptor()

	tcases := []struct {
		name string
		args *orderedmap.OrderedMap[string, any]
		err  string
	}{
		{
			name: "all valid",
			args: args("location", "Boston", "days", float64(3), "detailed", true, "units", "celsius"),
		},
		{
			name: "required only",
			args: args("location", "Boston"),
		},
		{
			name: "case-insensitive names",
			args: args("Location", "Boston"),
		},
		{
			name: "missing required",
			args: args("days", float64(3)),
			err:  `missing required parameter "location"`,
		},
		{
			name: "nil required",
			args: args("location", nil),
			err:  `missing required parameter "location"`,
		},
		{
			name: "wrong string type",
			args: args("location", float64(42)),
			err:  `parameter "location": expected string`,
		},
		{
			name: "wrong number type",
			args: args("location", "Boston", "days", "three"),
			err:  `parameter "days": expected number`,
		},
		{
			name: "wrong boolean type",
			args: args("location", "Boston", "detailed", "yes"),
			err:  `parameter "detailed": expected boolean`,
		},
		{
			name: "wrong object type",
			args: args("location", "Boston", "filters", "none"),
			err:  `parameter "filters": expected object`,
		},
		{
			name: "wrong array type",
			args: args("location", "Boston", "fields", "temp"),
			err:  `parameter "fields": expected array`,
		},
		{
			name: "enum mismatch",
			args: args("location", "Boston", "units", "kelvin"),
			err:  `parameter "units": value kelvin is not one of [celsius, fahrenheit]`,
		},
		{
			name: "object value accepted",
			args: args("location", "Boston", "filters", map[string]any{"wind": true}),
		},
		{
			name: "array value accepted",
			args: args("location", "Boston", "fields", []any{"temp"}),
		},
		{
			name: "integer accepted as number",
			args: args("location", "Boston", "days", 3),
		},
		{
			name: "undeclared args pass through",
			args: args("location", "Boston", "verbose", true),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := dispatch.ValidateArgs(desc, tc.args)
			if tc.err == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.err)
			}
		})
	}
}

func Test_ValidateArgs_NilArgs(t *testing.T) {
	desc := forecastDescriptor()
	err := dispatch.ValidateArgs(desc, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required parameter")

	err = dispatch.ValidateArgs(&registry.ToolDescriptor{Name: "ping"}, nil)
	assert.NoError(t, err)
}
