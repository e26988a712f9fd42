package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// To regenerate golden files, run:
//
//	go test ./internal/harness -run TestScenarios_Golden -update
func TestScenarios_Golden(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)

	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(f)
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestMarshalSnapshot_KeepsMarkupReadable(t *testing.T) {
	result := NewResult()
	result.addEvent(TraceEvent{Op: OpPush, Outcome: OutcomeOK, Result: map[string]any{"markup": "<p>a & b</p>"}})
	result.Final = FinalState{External: "<p>a & b</p>", SurfaceMarkup: "<p>a & b</p>", SurfaceWrites: 1}

	data, err := MarshalSnapshot("snap", result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"markup": "<p>a & b</p>"`)
	assert.NotContains(t, string(data), `\u003c`)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))
}
