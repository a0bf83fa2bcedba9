package extract_test

import (
	"context"
	"strings"
	"testing"

	"github.com/effective-security/toolgate/extract"
	"github.com/effective-security/toolgate/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()

	weather := &registry.Server{
		ID:      "weather",
		Kind:    registry.TransportStream,
		Command: "uv",
		Args:    []string{"run", "weather_server.py"},
	}
	err := reg.Register(weather, []registry.ToolDescriptor{
		{
			Name:        "get_alerts",
			Description: "Active weather alerts for a US state",
			Parameters: []registry.Parameter{
				{Name: "state", Type: registry.KindString, Required: true},
				{Name: "severity", Type: registry.KindString, Enum: []string{"minor", "severe"}},
			},
		},
		{
			Name:        "get_forecast",
			Description: "Forecast for a coordinate pair",
			Parameters: []registry.Parameter{
				{Name: "latitude", Type: registry.KindNumber, Required: true},
				{Name: "longitude", Type: registry.KindNumber, Required: true},
				{Name: "units", Type: registry.KindString, Default: "metric"},
			},
		},
		{
			Name:        "get_weather",
			Description: "Current conditions for a place",
			Parameters: []registry.Parameter{
				{Name: "location", Type: registry.KindString, Required: true},
			},
		},
	})
	require.NoError(t, err)

	calc := &registry.Server{
		ID:   "calc",
		Kind: registry.TransportHTTP,
		URL:  "http://127.0.0.1:8931/rpc",
	}
	err = reg.Register(calc, []registry.ToolDescriptor{
		{
			Name:        "calculate",
			Description: "Evaluate an arithmetic expression",
			Parameters: []registry.Parameter{
				{Name: "expression", Type: registry.KindString, Required: true},
			},
		},
		{
			Name:        "ping",
			Description: "Liveness check",
		},
	})
	require.NoError(t, err)
	return reg
}

func argKeys(inv *extract.PendingInvocation) []string {
	var keys []string
	for pair := inv.Args.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func argValue(t *testing.T, inv *extract.PendingInvocation, key string) any {
	t.Helper()
	v, ok := inv.Args.Get(key)
	require.True(t, ok, "argument %q not extracted", key)
	return v
}

func Test_Extract_StructuredWins(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	// The reply carries recognizable material for every tier; only the
	// envelope may be acted on.
	text := "I'll look up the alerts now.\n" +
		"```json\n" +
		`{"jsonrpc":"2.0","id":7,"method":"execute_tool","params":{"name":"get_alerts","parameters":{"state":"CA","severity":"severe"}}}` + "\n" +
		"```\n" +
		"If that fails I could try get_weather(\"Paris\") instead,\n" +
		"or Using tool: calculate(expression=2+2),\n" +
		"or just look up the weather in Rome.\n"

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 1)

	inv := invs[0]
	assert.Equal(t, "get_alerts", inv.ToolName)
	assert.Equal(t, extract.StatusPending, inv.Status)
	assert.NotEmpty(t, inv.ID)
	assert.NotEmpty(t, inv.Fingerprint)
	assert.Equal(t, []string{"state", "severity"}, argKeys(inv))
	assert.Equal(t, "CA", argValue(t, inv, "state"))
	assert.Equal(t, "severe", argValue(t, inv, "severity"))
}

func Test_Extract_StructuredDuplicatesCollapse(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := strings.Join([]string{
		"First:",
		`{"jsonrpc":"2.0","id":1,"method":"execute_tool","params":{"name":"calculate","parameters":{"expression":"2+2"}}}`,
		"and once more to be sure:",
		`{"jsonrpc":"2.0","id":2,"method":"execute_tool","params":{"name":"calculate","parameters":{"expression":"2+2"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"execute_tool","params":{"name":"calculate","parameters":{"expression":"3*3"}}}`,
	}, "\n")

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 2)
	assert.Equal(t, "2+2", argValue(t, invs[0], "expression"))
	assert.Equal(t, "3*3", argValue(t, invs[1], "expression"))
	assert.NotEqual(t, invs[0].Fingerprint, invs[1].Fingerprint)
}

func Test_Extract_StructuredKeyOrderIrrelevant(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"execute_tool","params":{"name":"get_alerts","parameters":{"state":"CA","severity":"severe"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"execute_tool","params":{"name":"get_alerts","parameters":{"severity":"severe","state":"CA"}}}`,
	}, "\n")

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 1)
	assert.Equal(t, "get_alerts", invs[0].ToolName)
}

func Test_Extract_StructuredUnknownToolFallsThrough(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := `{"jsonrpc":"2.0","id":1,"method":"execute_tool","params":{"name":"send_email","parameters":{"to":"ops"}}}` +
		"\nNo mail tool here, falling back to get_weather(\"Oslo\")."

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 1)
	assert.Equal(t, "get_weather", invs[0].ToolName)
	assert.Equal(t, "Oslo", argValue(t, invs[0], "location"))
}

func Test_Extract_StructuredArgumentsDialect(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := "Plain, no fences: " +
		`{"jsonrpc":"2.0","id":"a1","method":"execute_tool","params":{"name":"get_forecast","arguments":{"latitude":48.85,"longitude":2.35}}}`

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 1)
	assert.Equal(t, "get_forecast", invs[0].ToolName)
	assert.Equal(t, []string{"latitude", "longitude"}, argKeys(invs[0]))
	assert.Equal(t, 48.85, argValue(t, invs[0], "latitude"))
	assert.Equal(t, 2.35, argValue(t, invs[0], "longitude"))
}

func Test_Extract_Positional(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := `Let me call get_weather("Paris, France") and also Calculate(2 + 2), but helper(5) is not a tool.`

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 2)

	assert.Equal(t, "get_weather", invs[0].ToolName)
	assert.Equal(t, "Paris, France", argValue(t, invs[0], "location"))

	assert.Equal(t, "calculate", invs[1].ToolName, "registry name wins over the written case")
	assert.Equal(t, "2 + 2", argValue(t, invs[1], "expression"))
}

func Test_Extract_PositionalWrittenKeyIgnored(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	invs := ex.Extract(context.Background(), `Try get_weather(city="Berlin").`, reg)
	require.Len(t, invs, 1)
	assert.Equal(t, []string{"location"}, argKeys(invs[0]))
	assert.Equal(t, "Berlin", argValue(t, invs[0], "location"))
}

func Test_Extract_PositionalEmptyParens(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	invs := ex.Extract(context.Background(), "Let me ping() the server first.", reg)
	require.Len(t, invs, 1)
	assert.Equal(t, "ping", invs[0].ToolName)
	assert.Equal(t, 0, invs[0].Args.Len())
	assert.Equal(t, extract.Fingerprint("ping", nil), invs[0].Fingerprint)
}

func Test_Extract_Phrase(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := `Using tool: get_forecast(latitude=48.85, longitude=2.35, units="metric")`

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 1)

	inv := invs[0]
	assert.Equal(t, "get_forecast", inv.ToolName)
	assert.Equal(t, []string{"latitude", "longitude", "units"}, argKeys(inv))
	assert.Equal(t, 48.85, argValue(t, inv, "latitude"))
	assert.Equal(t, 2.35, argValue(t, inv, "longitude"))
	assert.Equal(t, "metric", argValue(t, inv, "units"))
}

func Test_Extract_PhraseQuoteStripping(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := "using tool: get_alerts(state='CA', severity='severe')"

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 1)
	assert.Equal(t, "get_alerts", invs[0].ToolName)
	assert.Equal(t, "CA", argValue(t, invs[0], "state"))
	assert.Equal(t, "severe", argValue(t, invs[0], "severity"))
}

func Test_Extract_PhraseUnknownTool(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	invs := ex.Extract(context.Background(), "Using tool: send_email(to=ops, body=hello)", reg)
	assert.Empty(t, invs)
}

func Test_Extract_Domain(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	text := "I'll work out 32 * 7 + 4 after checking the weather in San Francisco."

	invs := ex.Extract(context.Background(), text, reg)
	require.Len(t, invs, 2)

	assert.Equal(t, "get_weather", invs[0].ToolName)
	assert.Equal(t, "San Francisco", argValue(t, invs[0], "location"))

	assert.Equal(t, "calculate", invs[1].ToolName)
	assert.Equal(t, "32 * 7 + 4", argValue(t, invs[1], "expression"))
}

func Test_Extract_DomainWeatherQuestion(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	invs := ex.Extract(context.Background(), "What's the weather in San Francisco?", reg)
	require.Len(t, invs, 1)
	assert.Equal(t, "get_weather", invs[0].ToolName)
	assert.Equal(t, "San Francisco", argValue(t, invs[0], "location"))
}

func Test_Extract_DomainRequiresMatchingTool(t *testing.T) {
	reg := registry.New()
	err := reg.Register(&registry.Server{
		ID:   "files",
		Kind: registry.TransportHTTP,
		URL:  "http://127.0.0.1:9000/rpc",
	}, []registry.ToolDescriptor{
		{Name: "list_files", Parameters: []registry.Parameter{{Name: "path", Type: registry.KindString}}},
	})
	require.NoError(t, err)

	ex := extract.NewExtractor()
	invs := ex.Extract(context.Background(), "What's the weather in Paris?", reg)
	assert.Empty(t, invs)
}

func Test_Extract_DomainEmptyValueDoesNotFire(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	invs := ex.Extract(context.Background(), `I cannot tell the weather in ''.`, reg)
	assert.Empty(t, invs)
}

func Test_Extract_NoMatch(t *testing.T) {
	reg := newTestRegistry(t)
	ex := extract.NewExtractor()

	for _, text := range []string{
		"",
		"The forecast service is unavailable today, sorry.",
		"```json\n{\"jsonrpc\":\"2.0\",\"method\":\"execute_tool\",\"params\":{\"name\":\"get_alerts\"",
		"{not json at all}",
		"x = f(3)",
	} {
		assert.Empty(t, ex.Extract(context.Background(), text, reg), "text: %q", text)
	}
}

func Test_Extract_StrategiesIndependent(t *testing.T) {
	reg := newTestRegistry(t)

	// The cascade enforces priority; each tier on its own still
	// recognizes its form regardless of what else is in the text.
	text := `{"jsonrpc":"2.0","id":1,"method":"execute_tool","params":{"name":"get_alerts","parameters":{"state":"CA"}}}` +
		"\nget_weather(\"Oslo\") or Using tool: calculate(expression=2+2)"

	structured := extract.StructuredStrategy{}.Extract(text, reg)
	require.Len(t, structured, 1)
	assert.Equal(t, "get_alerts", structured[0].Tool)

	positional := extract.PositionalStrategy{}.Extract(text, reg)
	require.Len(t, positional, 2)
	assert.Equal(t, "get_weather", positional[0].Tool)
	assert.Equal(t, "calculate", positional[1].Tool)

	phrase := extract.PhraseStrategy{}.Extract(text, reg)
	require.Len(t, phrase, 1)
	assert.Equal(t, "calculate", phrase[0].Tool)
}

func Test_Fingerprint(t *testing.T) {
	a := orderedmap.New[string, any]()
	a.Set("state", "CA")
	a.Set("severity", "severe")

	b := orderedmap.New[string, any]()
	b.Set("severity", "severe")
	b.Set("state", "CA")

	assert.Equal(t, extract.Fingerprint("get_alerts", a), extract.Fingerprint("get_alerts", b),
		"argument order must not change the fingerprint")
	assert.Equal(t, extract.Fingerprint("GET_ALERTS", a), extract.Fingerprint("get_alerts", a),
		"tool name case must not change the fingerprint")

	c := orderedmap.New[string, any]()
	c.Set("state", "CA")
	c.Set("severity", "minor")
	assert.NotEqual(t, extract.Fingerprint("get_alerts", a), extract.Fingerprint("get_alerts", c))

	assert.Equal(t, extract.Fingerprint("ping", nil), extract.Fingerprint("ping", orderedmap.New[string, any]()))
	assert.NotEqual(t, extract.Fingerprint("ping", nil), extract.Fingerprint("pong", nil))
}

func Test_NewPendingInvocation(t *testing.T) {
	inv := extract.NewPendingInvocation("ping", nil)
	require.NotNil(t, inv.Args)
	assert.Equal(t, 0, inv.Args.Len())
	assert.Equal(t, extract.StatusPending, inv.Status)

	other := extract.NewPendingInvocation("ping", nil)
	assert.NotEqual(t, inv.ID, other.ID)
	assert.Equal(t, inv.Fingerprint, other.Fingerprint)
}
