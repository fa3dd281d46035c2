// Package device defines the plugin/device/function capability model.
// Concrete drivers live outside this package — it only fixes the uniform
// shape the engine needs to talk to any device.
package device

import "context"

// ValueType is the closed set of types a function input/output may declare.
type ValueType string

const (
	TypeNumber  ValueType = "number"
	TypeString  ValueType = "string"
	TypeBoolean ValueType = "boolean"
	TypeArray   ValueType = "array"
	TypeObject  ValueType = "object"
	TypeTrigger ValueType = "trigger"
	TypeAny     ValueType = "any"
)

// InputSpec describes one declared function input.
type InputSpec struct {
	Type     ValueType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
}

// FunctionDescriptor describes one function a plugin's device exposes.
type FunctionDescriptor struct {
	ID      string               `json:"id"`
	Name    string               `json:"name"`
	Inputs  map[string]InputSpec `json:"inputs"`
	Outputs []string             `json:"outputs"`
	// Stateless functions may run via the catalog's direct invocation path
	// without a persistent device instance (spec.md §4.2).
	Stateless bool `json:"stateless"`
}

// PluginDescriptor is the immutable metadata for one discovered plugin.
type PluginDescriptor struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Version         string               `json:"version"`
	Author          string               `json:"author"`
	Category        string               `json:"category"`
	Color           string               `json:"color"`
	DeviceClass     string               `json:"device_class"`
	ConnectionTypes []string             `json:"connection_types"`
	Functions       []FunctionDescriptor `json:"functions"`
}

// Status is a device instance's connection lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Instance is one live occurrence of a plugin's device.
type Instance struct {
	InstanceID string         `json:"instance_id"`
	PluginID   string         `json:"plugin_id"`
	Config     map[string]any `json:"config"`
	Status     Status         `json:"status"`
	LastError  string         `json:"last_error,omitempty"`
}

// Device is the uniform capability a plugin's device must implement.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (bool, error)
	IsConnected() bool
	Status() Status
	LastError() string
}

// LogEntry is one log line a Function emitted during Execute, surfaced by
// the direct/stateless invocation path as a node_log event.
type LogEntry struct {
	Level   string
	Message string
}

// Function is one invocable unit bound to a Device instance. A fresh
// Function is constructed per call (spec.md §4.2).
type Function interface {
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
	Logs() []LogEntry
}

// DeviceFactory constructs a Device from an instance id and raw config.
type DeviceFactory func(instanceID string, config map[string]any) Device

// FunctionFactory constructs a Function bound to a Device.
type FunctionFactory func(dev Device) Function
