package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/pipelinecore/internal/domain/composite"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/valuestore"
)

type fakeDirectCaller struct {
	outputs map[string]any
	err     error
}

func (f *fakeDirectCaller) ExecuteDirect(pluginID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error) {
	return f.outputs, nil, f.err
}

type fakeRegistryCaller struct{}

func (f *fakeRegistryCaller) Execute(ctx context.Context, instanceID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error) {
	return map[string]any{"complete": true}, nil, nil
}

type fakeCompositeLoader struct {
	defs map[string]composite.Definition
}

func (f *fakeCompositeLoader) Get(ctx context.Context, compositeID string) (composite.Definition, error) {
	d, ok := f.defs[compositeID]
	if !ok {
		return composite.Definition{}, assertNotFoundErr{compositeID}
	}
	return d, nil
}

type assertNotFoundErr struct{ id string }

func (e assertNotFoundErr) Error() string { return "not found: " + e.id }

func newTestExecutor(direct *fakeDirectCaller, composites CompositeLoader) *Executor {
	return New(&fakeRegistryCaller{}, direct, composites, nil, nil)
}

func TestCollectInputsPrecedenceEdgesWinOverInjectedOverConfig(t *testing.T) {
	store := valuestore.New()
	sg := pipeline.Subgraph{
		Nodes: []pipeline.Node{
			{ID: "producer"},
			{ID: "target", Config: map[string]any{"x": "from-config"}},
		},
		Edges: []pipeline.Edge{
			{Source: "producer", SourceHandle: "out", Target: "target", TargetHandle: "x"},
		},
	}
	pc := Context{PipelineID: "p1", Subgraph: sg, Store: store}

	store.InjectInput("target", "x", "from-injected")
	inputs := CollectInputs(pc, sg.Nodes[1])
	assert.Equal(t, "from-injected", inputs["x"], "injected input should override config default")

	store.SetOutputs("producer", map[string]any{"out": "from-edge"})
	inputs = CollectInputs(pc, sg.Nodes[1])
	assert.Equal(t, "from-edge", inputs["x"], "edge value should win over injected input")
}

func TestCollectInputsFallsBackToConfigWhenNothingElseSet(t *testing.T) {
	store := valuestore.New()
	node := pipeline.Node{ID: "n", Config: map[string]any{"x": "default"}}
	pc := Context{PipelineID: "p1", Subgraph: pipeline.Subgraph{Nodes: []pipeline.Node{node}}, Store: store}

	inputs := CollectInputs(pc, node)
	assert.Equal(t, "default", inputs["x"])
}

func TestExecuteLogicDelayUsesDurationSecFormula(t *testing.T) {
	ctx := context.Background()
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	out, err := exec.executeLogicFunction(ctx, "delay", map[string]any{"duration_ms": 0.0})
	require.NoError(t, err)
	assert.Equal(t, true, out["complete"])
}

func TestExecuteLogicBranch(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	out, err := exec.executeLogicFunction(context.Background(), "branch", map[string]any{"condition": true})
	require.NoError(t, err)
	assert.Equal(t, true, out["true"])
	assert.Equal(t, false, out["false"])
}

func TestExecuteLogicSetVariable(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	out, err := exec.executeLogicFunction(context.Background(), "set_variable", map[string]any{"value": 42})
	require.NoError(t, err)
	assert.Equal(t, 42, out["value"])
}

func TestExecuteLogicPrintEmitsMessage(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	out, err := exec.executeLogicFunction(context.Background(), "print", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, true, out["complete"])
}

func TestAsBoolFalsyStringSet(t *testing.T) {
	for _, v := range []string{"false", "False", "FALSE", "0", "no", "NO", ""} {
		assert.False(t, asBool(v), "expected %q to be falsy", v)
	}
	for _, v := range []string{"true", "1", "yes", "anything"} {
		assert.True(t, asBool(v), "expected %q to be truthy", v)
	}
	assert.False(t, asBool(nil))
	assert.True(t, asBool(123))
}

func TestExecuteNodeUnknownNodeReturnsError(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	store := valuestore.New()
	pc := Context{PipelineID: "p1", Subgraph: pipeline.Subgraph{}, Store: store}

	err := exec.ExecuteNode(context.Background(), pc, "missing", 0)
	require.Error(t, err)
}

func TestExecuteForLoopCompletionIndexFormula(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{outputs: map[string]any{}}, nil)
	store := valuestore.New()
	node := pipeline.Node{ID: "loop", Type: pipeline.NodeForLoop, Config: map[string]any{"count": 3}}
	sg := pipeline.Subgraph{Nodes: []pipeline.Node{node}}
	pc := Context{PipelineID: "p1", Subgraph: sg, Store: store}

	out, err := exec.executeForLoop(context.Background(), pc, node, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out["index"]) // count-1 when count>0
	assert.Equal(t, 3, out["iterations_completed"])
}

func TestExecuteForLoopZeroCountIndexFormula(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	store := valuestore.New()
	node := pipeline.Node{ID: "loop", Type: pipeline.NodeForLoop, Config: map[string]any{"count": 0}}
	sg := pipeline.Subgraph{Nodes: []pipeline.Node{node}}
	pc := Context{PipelineID: "p1", Subgraph: sg, Store: store}

	out, err := exec.executeForLoop(context.Background(), pc, node, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out["index"])
}

func TestExecuteForLoopClampsToMaxIterations(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	store := valuestore.New()
	node := pipeline.Node{ID: "loop", Type: pipeline.NodeForLoop, Config: map[string]any{"count": MaxLoopIterations + 500}}
	sg := pipeline.Subgraph{Nodes: []pipeline.Node{node}}
	pc := Context{PipelineID: "p1", Subgraph: sg, Store: store}

	out, err := exec.executeForLoop(context.Background(), pc, node, 0)
	require.NoError(t, err)
	assert.Equal(t, MaxLoopIterations, out["iterations_completed"])
}

func TestExecuteWhileLoopCompletionIndexFormula(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	store := valuestore.New()
	node := pipeline.Node{ID: "loop", Type: pipeline.NodeWhileLoop, Config: map[string]any{"condition": false}}
	sg := pipeline.Subgraph{Nodes: []pipeline.Node{node}}
	pc := Context{PipelineID: "p1", Subgraph: sg, Store: store}

	// condition false from the start: zero iterations run, index clamps to 0.
	out, err := exec.executeWhileLoop(context.Background(), pc, node, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, out["index"])
	assert.Equal(t, 0, out["iterations_completed"])
}

func TestExecuteCompositeRejectsDepthExceedingMax(t *testing.T) {
	exec := newTestExecutor(&fakeDirectCaller{}, nil)
	store := valuestore.New()
	node := pipeline.Node{
		ID:   "c1",
		Type: pipeline.NodeComposite,
		Subgraph: &pipeline.Subgraph{
			Nodes: []pipeline.Node{{ID: "inner", Type: pipeline.NodeFunction, PluginID: "logic", FunctionID: "print"}},
		},
	}
	pc := Context{PipelineID: "p1", Subgraph: pipeline.Subgraph{Nodes: []pipeline.Node{node}}, Store: store}

	_, err := exec.executeComposite(context.Background(), pc, node, MaxCompositeDepth)
	require.Error(t, err)
}

func TestExecuteCompositeResolvesViaLoaderByID(t *testing.T) {
	defs := map[string]composite.Definition{
		"sub1": {
			CompositeID: "sub1",
			Subgraph: pipeline.Subgraph{
				Nodes: []pipeline.Node{{ID: "n1", Type: pipeline.NodeFunction, PluginID: "logic", FunctionID: "print"}},
			},
			Outputs: []composite.OutputMapping{{Name: "ok", MapsFrom: "n1.complete"}},
		},
	}
	exec := newTestExecutor(&fakeDirectCaller{}, &fakeCompositeLoader{defs: defs})
	store := valuestore.New()
	node := pipeline.Node{ID: "c1", Type: pipeline.NodeComposite, CompositeID: "sub1"}
	pc := Context{PipelineID: "p1", Subgraph: pipeline.Subgraph{Nodes: []pipeline.Node{node}}, Store: store}

	out, err := exec.executeComposite(context.Background(), pc, node, 0)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestExecuteCompositeFrameIsolationRestoresParentStore(t *testing.T) {
	store := valuestore.New()
	store.SetOutputs("outer", map[string]any{"v": "outer-value"})

	defs := map[string]composite.Definition{
		"sub1": {
			CompositeID: "sub1",
			Subgraph: pipeline.Subgraph{
				Nodes: []pipeline.Node{{ID: "outer", Type: pipeline.NodeFunction, PluginID: "logic", FunctionID: "print"}},
			},
		},
	}
	exec := newTestExecutor(&fakeDirectCaller{}, &fakeCompositeLoader{defs: defs})
	node := pipeline.Node{ID: "c1", Type: pipeline.NodeComposite, CompositeID: "sub1"}
	pc := Context{PipelineID: "p1", Subgraph: pipeline.Subgraph{Nodes: []pipeline.Node{node}}, Store: store}

	_, err := exec.executeComposite(context.Background(), pc, node, 0)
	require.NoError(t, err)

	outer, ok := store.Outputs("outer")
	require.True(t, ok)
	assert.Equal(t, "outer-value", outer["v"], "parent frame's pre-existing node output must survive composite execution")
}
