package probe_test

import (
	"testing"

	"github.com/effective-security/toolgate/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Rank_Baseline(t *testing.T) {
	r := probe.NewRanker(nil)

	got := r.Rank("")
	exp := []string{
		"tools/list",
		"listTools",
		"list_tools",
		"ListTools",
		"tools",
		"list",
		"rpc.discover",
	}
	assert.Equal(t, exp, got)

	// Ranking is deterministic.
	assert.Equal(t, got, r.Rank(""))
}

func Test_Rank_Hint(t *testing.T) {
	r := probe.NewRanker(nil)

	got := r.Rank("files")
	require.Greater(t, len(got), 7)
	assert.Equal(t, "files/tools/list", got[0])
	assert.Equal(t, "files/listTools", got[1])
	assert.Equal(t, "files/list_tools", got[2])
	assert.Equal(t, "tools/list", got[3])

	// No duplicates.
	seen := map[string]int{}
	for _, m := range got {
		seen[m]++
	}
	for m, n := range seen {
		assert.Equal(t, 1, n, "duplicate candidate: %s", m)
	}
}

func Test_Rank_WellKnownAlias(t *testing.T) {
	r := probe.NewRanker(nil)

	got := r.Rank("weather")
	require.NotEmpty(t, got)
	assert.Equal(t, "weather/get_tools", got[0])
	assert.Equal(t, "weather/tools/list", got[1])

	// Hints normalize before alias lookup.
	got = r.Rank("Weather-Server")
	assert.Equal(t, "weather_server/tools/list", got[0])
}

func Test_Rank_ExtraAliases(t *testing.T) {
	r := probe.NewRanker(map[string]string{
		"Currency-API": "currency/rates.list",
	})

	got := r.Rank("currency_api")
	require.NotEmpty(t, got)
	assert.Equal(t, "currency/rates.list", got[0])

	// An extra alias equal to a baseline entry collapses to one candidate.
	r = probe.NewRanker(map[string]string{"files": "tools/list"})
	got = r.Rank("files")
	count := 0
	for _, m := range got {
		if m == "tools/list" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func Test_NormalizeHint(t *testing.T) {
	tcases := []struct {
		in  string
		exp string
	}{
		{"weather", "weather"},
		{"Weather-API", "weather_api"},
		{" My.Server ", "my_server"},
		{"a//b", "a_b"},
		{"UPPER_case9", "upper_case9"},
		{"---", ""},
		{"", ""},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, probe.NormalizeHint(tc.in), "input: %q", tc.in)
	}
}

func Test_HintFromURL(t *testing.T) {
	tcases := []struct {
		in  string
		exp string
	}{
		{"http://localhost:8080/api/weather", "weather"},
		{"http://localhost:8080/api/weather/", "weather"},
		{"https://example.com", ""},
		{"https://example.com/", ""},
		{"://bad url", ""},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, probe.HintFromURL(tc.in), "input: %q", tc.in)
	}
}
