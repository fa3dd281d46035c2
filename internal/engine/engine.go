// Package engine orchestrates a full pipeline run: builds the execution
// graph, rejects cycles, groups nodes into parallel levels, and runs each
// level concurrently while publishing lifecycle events — grounded on
// execution_engine.py's execute_pipeline.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/executor"
	"github.com/nodeforge/pipelinecore/internal/graph"
	"github.com/nodeforge/pipelinecore/internal/logging"
	"github.com/nodeforge/pipelinecore/internal/valuestore"
)

// Engine runs pipeline.Definition values to completion.
type Engine struct {
	exec *executor.Executor
	bus  *eventbus.Bus
	log  *logging.Logger
}

// New creates an Engine. exec performs per-node dispatch; bus receives
// lifecycle events (may be nil to disable event publication, e.g. in unit
// tests that only care about the returned Result).
func New(exec *executor.Executor, bus *eventbus.Bus, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.NewDefault("engine")
	}
	return &Engine{exec: exec, bus: bus, log: log}
}

// Execute runs def to completion, level by level, and returns the
// aggregate Result. It never returns a Go error for a pipeline-internal
// failure — like execute_pipeline, failures are reported inside the
// returned Result (Success=false, Error set) so callers always get a
// complete execution record. A non-nil error return is reserved for
// structural problems caught before any node runs (e.g. a cyclic graph).
func (e *Engine) Execute(ctx context.Context, def pipeline.Definition) (pipeline.Result, error) {
	sg := pipeline.Subgraph{Nodes: def.Nodes, Edges: def.Edges}
	g := graph.Build(sg)

	if !g.IsDAG() {
		cycles := g.Cycles()
		cycle := []string{}
		if len(cycles) > 0 {
			cycle = cycles[0]
		}
		return pipeline.Result{}, apperrors.CircularDependency(cycle, cycles)
	}

	order := g.TopologicalOrder()
	levels := g.Levels(order)

	store := valuestore.New()
	pc := executor.NewPipelineContext(def.PipelineID, sg, store)

	start := time.Now()
	e.publish(ctx, pipeline.PipelineStartedPayload{
		PipelineID:   def.PipelineID,
		PipelineName: def.Name,
		Timestamp:    start,
		NodeCount:    len(order),
	})

	nodesExecuted := 0
	for _, levelNodes := range levels {
		for _, nodeID := range levelNodes {
			n, _ := findNode(sg, nodeID)
			e.publish(ctx, pipeline.NodeExecutingPayload{
				PipelineID: def.PipelineID,
				NodeID:     nodeID,
				Label:      nodeLabel(n, nodeID),
				NodeType:   string(n.Type),
				Timestamp:  time.Now(),
			})
		}

		levelStart := time.Now()
		if err := e.runLevel(ctx, pc, levelNodes); err != nil {
			execTime := time.Since(start).Seconds()
			e.publishFailure(ctx, def.PipelineID, err)
			return pipeline.Result{
				Success:       false,
				PipelineID:    def.PipelineID,
				ExecutionTime: execTime,
				NodesExecuted: nodesExecuted,
				Results:       store.PublicResults(),
				Error:         err.Error(),
			}, nil
		}
		levelTime := time.Since(levelStart).Seconds()

		for _, nodeID := range levelNodes {
			n, _ := findNode(sg, nodeID)
			outputs, _ := store.Outputs(nodeID)
			e.publish(ctx, pipeline.NodeCompletedPayload{
				PipelineID:    def.PipelineID,
				NodeID:        nodeID,
				Label:         nodeLabel(n, nodeID),
				Timestamp:     time.Now(),
				Outputs:       outputs,
				ExecutionTime: levelTime,
			})
		}

		nodesExecuted += len(levelNodes)
	}

	execTime := time.Since(start).Seconds()
	e.publish(ctx, pipeline.PipelineCompletedPayload{
		PipelineID:    def.PipelineID,
		Timestamp:     time.Now(),
		Success:       true,
		ExecutionTime: execTime,
		NodesExecuted: nodesExecuted,
	})

	return pipeline.Result{
		Success:       true,
		PipelineID:    def.PipelineID,
		ExecutionTime: execTime,
		NodesExecuted: nodesExecuted,
		Results:       store.PublicResults(),
	}, nil
}

// runLevel executes every node in a level concurrently and aborts the whole
// pipeline on the first node failure, matching execute_pipeline's
// asyncio.gather semantics (one failing task fails the gather).
//
// TODO: a continue-on-error policy (report partial level failures instead
// of aborting) is a natural follow-up once callers need it; runLevel is the
// seam where that branch would go.
func (e *Engine) runLevel(ctx context.Context, pc executor.Context, nodeIDs []string) error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	wg.Add(len(nodeIDs))
	for _, nodeID := range nodeIDs {
		go func(nodeID string) {
			defer wg.Done()
			if err := e.exec.ExecuteNode(ctx, pc, nodeID, 0); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(nodeID)
	}
	wg.Wait()

	return firstErr
}

func (e *Engine) publish(ctx context.Context, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, payload)
}

func (e *Engine) publishFailure(ctx context.Context, pipelineID string, err error) {
	errType := "PipelineExecutionError"
	if svcErr, ok := err.(*apperrors.ServiceError); ok {
		errType = string(svcErr.Code)
	}
	e.publish(ctx, pipeline.PipelineErrorPayload{
		PipelineID:   pipelineID,
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
		ErrorType:    &errType,
	})
}

func findNode(sg pipeline.Subgraph, nodeID string) (pipeline.Node, bool) {
	for _, n := range sg.Nodes {
		if n.ID == nodeID {
			return n, true
		}
	}
	return pipeline.Node{}, false
}

func nodeLabel(n pipeline.Node, fallback string) string {
	if n.Label != "" {
		return n.Label
	}
	return fallback
}
