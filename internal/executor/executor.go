// Package executor runs individual pipeline nodes: function dispatch
// (logic builtins, stateless plugin calls, device registry calls),
// composite subgraph execution, and bounded for/while loops. Grounded on
// execution_engine.py's _execute_node family of methods.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/domain/composite"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/graph"
	"github.com/nodeforge/pipelinecore/internal/logging"
	"github.com/nodeforge/pipelinecore/internal/valuestore"
)

// MaxLoopIterations bounds both for-loop and while-loop execution
// (spec.md Invariant 5). A package constant; Executor has no per-instance
// override.
const MaxLoopIterations = 1000

// MaxCompositeDepth bounds composite nesting (spec.md Invariant 2).
const MaxCompositeDepth = 5

// DirectFunctionCaller runs a plugin function without a live device
// instance (stateless path) — implemented by internal/catalog.Catalog.
type DirectFunctionCaller interface {
	ExecuteDirect(pluginID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error)
}

// RegistryCaller runs a function against a live device instance —
// implemented by internal/registry.Registry.
type RegistryCaller interface {
	Execute(ctx context.Context, instanceID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error)
}

// CompositeLoader resolves a composite definition by id when a composite
// node references one instead of embedding its subgraph.
type CompositeLoader interface {
	Get(ctx context.Context, compositeID string) (composite.Definition, error)
}

// Executor runs one node at a time against a shared value Store, following
// the same dispatch and recursion structure as execution_engine.py's
// _execute_node / _execute_composite_node / _execute_for_loop_node /
// _execute_while_loop_node.
type Executor struct {
	registry   RegistryCaller
	direct     DirectFunctionCaller
	composites CompositeLoader
	bus        *eventbus.Bus
	log        *logging.Logger
}

// New creates an Executor. composites may be nil if the caller only ever
// embeds subgraphs inline on composite nodes.
func New(registry RegistryCaller, direct DirectFunctionCaller, composites CompositeLoader, bus *eventbus.Bus, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.NewDefault("executor")
	}
	return &Executor{registry: registry, direct: direct, composites: composites, bus: bus, log: log}
}

// Context carries the pieces an executing node needs to reach siblings:
// the enclosing subgraph (for edge lookups), the value store, and
// identifying strings for event payloads.
type Context struct {
	PipelineID string
	Subgraph   pipeline.Subgraph
	Store      *valuestore.Store
}

func findNode(sg pipeline.Subgraph, nodeID string) (pipeline.Node, bool) {
	for _, n := range sg.Nodes {
		if n.ID == nodeID {
			return n, true
		}
	}
	return pipeline.Node{}, false
}

// ExecuteNode dispatches node to its type-specific executor and records its
// outputs into pc.Store. depth tracks composite nesting for MaxCompositeDepth.
func (e *Executor) ExecuteNode(ctx context.Context, pc Context, nodeID string, depth int) error {
	node, ok := findNode(pc.Subgraph, nodeID)
	if !ok {
		return apperrors.NodeExecution(nodeID, "unknown", "node not found in pipeline definition", nil)
	}

	var (
		result map[string]any
		err    error
	)

	switch node.Type {
	case pipeline.NodeFunction:
		result, err = e.executeFunction(ctx, pc, node)
	case pipeline.NodeComposite:
		result, err = e.executeComposite(ctx, pc, node, depth)
	case pipeline.NodeForLoop:
		result, err = e.executeForLoop(ctx, pc, node, depth)
	case pipeline.NodeWhileLoop:
		result, err = e.executeWhileLoop(ctx, pc, node, depth)
	default:
		return apperrors.Validation(fmt.Sprintf("unknown node type %q for node %q", node.Type, nodeID))
	}

	if err != nil {
		return apperrors.NodeExecution(nodeID, label(node), "node execution failed", err)
	}

	pc.Store.SetOutputs(nodeID, result)
	return nil
}

func label(n pipeline.Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// CollectInputs overlays node config defaults, then composite-injected
// __input__ values, then connected edges (edges win on conflict) —
// preserving the precedence of execution_engine.py's _collect_inputs, and
// SPEC_FULL.md §6's explicit decision to keep that precedence as-is.
func CollectInputs(pc Context, node pipeline.Node) map[string]any {
	inputs := make(map[string]any, len(node.Config))
	for k, v := range node.Config {
		inputs[k] = v
	}

	if injected, ok := pc.Store.InjectedInputs(node.ID); ok {
		for k, v := range injected {
			inputs[k] = v
		}
	}

	for _, edge := range pc.Subgraph.Edges {
		if edge.Target != node.ID {
			continue
		}
		sourceOutputs, ok := pc.Store.Outputs(edge.Source)
		if !ok {
			continue
		}
		if v, ok := sourceOutputs[edge.SourceHandle]; ok {
			inputs[edge.TargetHandle] = v
		}
	}

	return inputs
}

func (e *Executor) executeFunction(ctx context.Context, pc Context, node pipeline.Node) (map[string]any, error) {
	inputs := CollectInputs(pc, node)

	if node.PluginID == "logic" {
		return e.executeLogicFunction(ctx, node.FunctionID, inputs)
	}

	if node.DeviceInstance == "" {
		outputs, logs, err := e.direct.ExecuteDirect(node.PluginID, node.FunctionID, inputs)
		e.emitLogs(ctx, pc.PipelineID, node, logs)
		return outputs, err
	}

	outputs, logs, err := e.registry.Execute(ctx, node.DeviceInstance, node.FunctionID, inputs)
	e.emitLogs(ctx, pc.PipelineID, node, logs)
	return outputs, err
}

func (e *Executor) emitLogs(ctx context.Context, pipelineID string, node pipeline.Node, logs []device.LogEntry) {
	if e.bus == nil {
		return
	}
	for _, l := range logs {
		e.bus.Publish(ctx, pipeline.NodeLogPayload{
			PipelineID: pipelineID,
			NodeID:     node.ID,
			Label:      label(node),
			Timestamp:  time.Now(),
			Message:    l.Message,
			Level:      l.Level,
		})
	}
}

// executeLogicFunction implements the logic plugin's builtin functions,
// preserving the exact numeric formula duration_sec = duration_ms/1000.0
// from execution_engine.py._execute_logic_function.
func (e *Executor) executeLogicFunction(ctx context.Context, functionID string, inputs map[string]any) (map[string]any, error) {
	switch functionID {
	case "delay":
		durationMs := asFloat(inputs["duration_ms"], 1000)
		durationSec := durationMs / 1000.0
		select {
		case <-time.After(time.Duration(durationSec * float64(time.Second))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]any{"complete": true}, nil

	case "branch":
		condition := asBool(inputs["condition"])
		return map[string]any{"true": condition, "false": !condition}, nil

	case "print":
		message := fmt.Sprintf("%v", inputs["message"])
		fmt.Println("[Pipeline Print]", message)
		e.log.WithField("node_type", "print").Info(message)
		return map[string]any{"complete": true}, nil

	case "set_variable":
		return map[string]any{"complete": true, "value": inputs["value"]}, nil

	default:
		return map[string]any{"complete": true}, nil
	}
}

func asFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// asBool mirrors execution_engine.py's while-loop condition coercion: a
// string is falsy only if, case-insensitively, it is "false", "0", "no",
// or empty; numeric zero, nil and empty arrays/objects are falsy, and any
// other value is truthy.
func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(b) {
		case "false", "0", "no", "":
			return false
		default:
			return true
		}
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case []any:
		return len(b) > 0
	case map[string]any:
		return len(b) > 0
	case nil:
		return false
	default:
		return true
	}
}

func (e *Executor) executeComposite(ctx context.Context, pc Context, node pipeline.Node, depth int) (map[string]any, error) {
	if depth >= MaxCompositeDepth {
		return nil, apperrors.New(apperrors.CodeInvalidState,
			fmt.Sprintf("maximum composite nesting depth (%d) exceeded", MaxCompositeDepth), 400)
	}

	def, err := e.resolveComposite(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(def.Subgraph.Nodes) == 0 {
		e.log.WithField("node_id", node.ID).Warn("composite has empty subgraph")
		return map[string]any{}, nil
	}

	externalInputs := CollectInputs(pc, node)

	parent := pc.Store.Swap()
	defer pc.Store.Restore(parent)

	for _, im := range def.Inputs {
		targetNodeID, targetPin, ok := splitMapping(im.MapsTo)
		if !ok {
			continue
		}
		if v, ok := externalInputs[im.Name]; ok {
			pc.Store.InjectInput(targetNodeID, targetPin, v)
		}
	}

	sub := Context{
		PipelineID: fmt.Sprintf("%s.%s", pc.PipelineID, node.ID),
		Subgraph:   def.Subgraph,
		Store:      pc.Store,
	}

	g := graph.Build(def.Subgraph)
	if !g.IsDAG() {
		cycles := g.Cycles()
		cycle := []string{}
		if len(cycles) > 0 {
			cycle = cycles[0]
		}
		return nil, apperrors.CircularDependency(cycle, cycles)
	}

	for _, subNodeID := range g.TopologicalOrder() {
		if err := e.ExecuteNode(ctx, sub, subNodeID, depth+1); err != nil {
			return nil, err
		}
	}

	outputs := make(map[string]any, len(def.Outputs))
	for _, om := range def.Outputs {
		sourceNodeID, sourcePin, ok := splitMapping(om.MapsFrom)
		if !ok {
			continue
		}
		if sourceOutputs, ok := pc.Store.Outputs(sourceNodeID); ok {
			if v, ok := sourceOutputs[sourcePin]; ok {
				outputs[om.Name] = v
			}
		}
	}
	return outputs, nil
}

func splitMapping(s string) (node, pin string, ok bool) {
	idx := strings.Index(s, ".")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

func (e *Executor) resolveComposite(ctx context.Context, node pipeline.Node) (composite.Definition, error) {
	if node.Subgraph != nil {
		return composite.Definition{Subgraph: *node.Subgraph}, nil
	}
	if e.composites == nil || node.CompositeID == "" {
		return composite.Definition{}, apperrors.NotFound("composite", node.CompositeID)
	}
	return e.composites.Get(ctx, node.CompositeID)
}

// executeForLoop runs the loop body count times in sequence, preserving the
// completion-record formula index: count-1 if count > 0 else 0.
func (e *Executor) executeForLoop(ctx context.Context, pc Context, node pipeline.Node, depth int) (map[string]any, error) {
	inputs := CollectInputs(pc, node)
	count := asInt(inputs["count"], 1)
	if count > MaxLoopIterations {
		e.log.WithField("node_id", node.ID).Warnf("for loop count %d exceeds maximum %d, limiting", count, MaxLoopIterations)
		count = MaxLoopIterations
	}

	bodyNodes := loopBodyTargets(pc.Subgraph, node.ID)

	for i := 0; i < count; i++ {
		pc.Store.SetOutputs(node.ID, map[string]any{
			"loop_body": true,
			"index":     i,
			"iteration": i + 1,
			"total":     count,
		})

		iter := i + 1
		e.emitIterationEvent(ctx, pc.PipelineID, node, "for_loop", iter, &count)

		for _, bodyNodeID := range bodyNodes {
			if err := e.executeLoopBody(ctx, pc, bodyNodeID, depth); err != nil {
				return nil, err
			}
		}
	}

	index := 0
	if count > 0 {
		index = count - 1
	}
	return map[string]any{
		"loop_body":           false,
		"index":                index,
		"complete":             true,
		"iterations_completed": count,
	}, nil
}

// executeWhileLoop re-evaluates condition before every iteration, preserving
// the completion-record formula index: max(0, iteration-1).
func (e *Executor) executeWhileLoop(ctx context.Context, pc Context, node pipeline.Node, depth int) (map[string]any, error) {
	maxIterations := MaxLoopIterations
	if v, ok := node.Config["max_iterations"]; ok {
		maxIterations = asInt(v, MaxLoopIterations)
	}

	bodyNodes := loopBodyTargets(pc.Subgraph, node.ID)
	iteration := 0

	for iteration < maxIterations {
		inputs := CollectInputs(pc, node)
		condition, ok := inputs["condition"]
		if !ok {
			condition = true
		}
		if !asBool(condition) {
			break
		}

		pc.Store.SetOutputs(node.ID, map[string]any{
			"loop_body": true,
			"index":     iteration,
			"iteration": iteration + 1,
		})

		e.emitIterationEvent(ctx, pc.PipelineID, node, "while_loop", iteration+1, nil)

		for _, bodyNodeID := range bodyNodes {
			if err := e.executeLoopBody(ctx, pc, bodyNodeID, depth); err != nil {
				return nil, err
			}
		}

		iteration++
	}

	if iteration >= maxIterations {
		e.log.WithField("node_id", node.ID).Warnf("while loop reached max iterations (%d)", maxIterations)
	}

	index := iteration - 1
	if index < 0 {
		index = 0
	}
	return map[string]any{
		"loop_body":            false,
		"index":                index,
		"complete":             true,
		"iterations_completed": iteration,
	}, nil
}

func (e *Executor) emitIterationEvent(ctx context.Context, pipelineID string, node pipeline.Node, nodeType string, iteration int, total *int) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, pipeline.NodeExecutingPayload{
		PipelineID:      pipelineID,
		NodeID:          node.ID,
		Label:           label(node),
		NodeType:        nodeType,
		Timestamp:       time.Now(),
		Iteration:       &iteration,
		TotalIterations: total,
	})
}

func loopBodyTargets(sg pipeline.Subgraph, loopNodeID string) []string {
	var out []string
	for _, e := range sg.Edges {
		if e.Source == loopNodeID && e.SourceHandle == "loop_body" {
			out = append(out, e.Target)
		}
	}
	return out
}

// executeLoopBody runs a breadth-first traversal starting at startNodeID,
// following output edges to downstream nodes, but treats other control-flow
// nodes (nested for_loop/while_loop) as traversal boundaries rather than
// descending into them — ported from execution_engine.py._execute_loop_body.
func (e *Executor) executeLoopBody(ctx context.Context, pc Context, startNodeID string, depth int) error {
	visited := make(map[string]bool)
	queue := []string{startNodeID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		if err := e.ExecuteNode(ctx, pc, current, depth+1); err != nil {
			return err
		}

		for _, edge := range pc.Subgraph.Edges {
			if edge.Source != current {
				continue
			}
			targetNode, ok := findNode(pc.Subgraph, edge.Target)
			if ok && (targetNode.Type == pipeline.NodeForLoop || targetNode.Type == pipeline.NodeWhileLoop) {
				continue
			}
			if !visited[edge.Target] {
				queue = append(queue, edge.Target)
			}
		}
	}
	return nil
}

// NewPipelineContext constructs the top-level execution context for a
// fresh pipeline run.
func NewPipelineContext(pipelineID string, sg pipeline.Subgraph, store *valuestore.Store) Context {
	return Context{PipelineID: pipelineID, Subgraph: sg, Store: store}
}
