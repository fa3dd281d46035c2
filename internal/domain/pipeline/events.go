package pipeline

import "time"

// EventType identifies the concrete shape of an Event's Payload.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline_started"
	EventNodeExecuting     EventType = "node_executing"
	EventNodeCompleted     EventType = "node_completed"
	EventNodeLog           EventType = "node_log"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventPipelineError     EventType = "pipeline_error"
	EventDeviceConnected   EventType = "device_connected"
	EventDeviceDisconnected EventType = "device_disconnected"
	EventDeviceError       EventType = "device_error"
)

// Event pairs an EventType with its payload. The bus does not use it: it
// dispatches bare payloads by their concrete Go type (see internal/eventbus),
// and the WebSocket hub wraps each payload in its own {type, payload}
// envelope (see internal/httpapi).
type Event struct {
	Type    EventType
	Payload any
}

// PipelineStartedPayload — spec.md §6.
type PipelineStartedPayload struct {
	PipelineID   string    `json:"pipeline_id"`
	PipelineName string    `json:"pipeline_name"`
	Timestamp    time.Time `json:"timestamp"`
	NodeCount    int       `json:"node_count"`
}

// NodeExecutingPayload — spec.md §6. Iteration/Total are only set for loop
// node iterations.
type NodeExecutingPayload struct {
	PipelineID      string    `json:"pipeline_id"`
	NodeID          string    `json:"node_id"`
	Label           string    `json:"label"`
	NodeType        string    `json:"node_type"`
	FunctionID      *string   `json:"function_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Iteration       *int      `json:"iteration,omitempty"`
	TotalIterations *int      `json:"total_iterations,omitempty"`
}

// NodeCompletedPayload — spec.md §6.
type NodeCompletedPayload struct {
	PipelineID    string         `json:"pipeline_id"`
	NodeID        string         `json:"node_id"`
	Label         string         `json:"label"`
	Timestamp     time.Time      `json:"timestamp"`
	Outputs       map[string]any `json:"outputs"`
	ExecutionTime float64        `json:"execution_time"`
}

// NodeLogPayload is the supplemented log-forwarding event (SPEC_FULL §4.1).
type NodeLogPayload struct {
	PipelineID string    `json:"pipeline_id"`
	NodeID     string    `json:"node_id"`
	Label      string    `json:"label"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	Level      string    `json:"level"`
}

// PipelineCompletedPayload — spec.md §6.
type PipelineCompletedPayload struct {
	PipelineID    string    `json:"pipeline_id"`
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	ExecutionTime float64   `json:"execution_time"`
	NodesExecuted int       `json:"nodes_executed"`
}

// PipelineErrorPayload — spec.md §6.
type PipelineErrorPayload struct {
	PipelineID   string    `json:"pipeline_id"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorMessage string    `json:"error_message"`
	NodeID       *string   `json:"node_id,omitempty"`
	ErrorType    *string   `json:"error_type,omitempty"`
}

// DeviceConnectedPayload — spec.md §6.
type DeviceConnectedPayload struct {
	DeviceID  string    `json:"device_id"`
	PluginID  string    `json:"plugin_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// DeviceDisconnectedPayload — spec.md §6.
type DeviceDisconnectedPayload struct {
	DeviceID  string    `json:"device_id"`
	PluginID  string    `json:"plugin_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// DeviceErrorPayload — spec.md §6.
type DeviceErrorPayload struct {
	DeviceID     string    `json:"device_id"`
	PluginID     string    `json:"plugin_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorMessage string    `json:"error_message"`
}
