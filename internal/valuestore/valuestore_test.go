package valuestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutputsAndOutputs(t *testing.T) {
	s := New()
	s.SetOutputs("node-a", map[string]any{"result": 42})

	out, ok := s.Outputs("node-a")
	require.True(t, ok)
	assert.Equal(t, 42, out["result"])

	_, ok = s.Outputs("node-missing")
	assert.False(t, ok)
}

func TestInjectInputAndInjectedInputs(t *testing.T) {
	s := New()
	s.InjectInput("node-b", "config_value", "hello")

	injected, ok := s.InjectedInputs("node-b")
	require.True(t, ok)
	assert.Equal(t, "hello", injected["config_value"])
}

func TestPublicResultsFiltersInjectedInputBuckets(t *testing.T) {
	s := New()
	s.SetOutputs("node-a", map[string]any{"result": 1})
	s.InjectInput("node-b", "x", 2)

	public := s.PublicResults()
	_, hasA := public["node-a"]
	_, hasInjected := public[InjectedInputsKey("node-b")]

	assert.True(t, hasA)
	assert.False(t, hasInjected)
}

func TestSwapAndRestoreGiveFrameIsolation(t *testing.T) {
	s := New()
	s.SetOutputs("node-a", map[string]any{"v": "outer"})

	parent := s.Swap()
	// inside the swapped (child) frame, the outer value must not be visible
	_, ok := s.Outputs("node-a")
	assert.False(t, ok)

	s.SetOutputs("node-a", map[string]any{"v": "inner"})
	inner, _ := s.Outputs("node-a")
	assert.Equal(t, "inner", inner["v"])

	s.Restore(parent)
	outer, ok := s.Outputs("node-a")
	require.True(t, ok)
	assert.Equal(t, "outer", outer["v"])
}

func TestInjectedInputsKeyNamespacesByNodeID(t *testing.T) {
	assert.Equal(t, "__input__node-1", InjectedInputsKey("node-1"))
	assert.NotEqual(t, InjectedInputsKey("node-1"), InjectedInputsKey("node-2"))
}
