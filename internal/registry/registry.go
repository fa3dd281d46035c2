// Package registry implements the Device Registry (spec.md §4.2): the
// lifecycle manager for live device instances, grounded on
// device_manager.py's DeviceManager.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

// DeviceFactory resolves a device.Device for a plugin id — implemented by
// internal/catalog.Catalog.NewDevice.
type DeviceFactory interface {
	NewDevice(pluginID, instanceID string, config map[string]any) (device.Device, error)
	FunctionTable(pluginID string) (map[string]device.FunctionFactory, error)
}

type entry struct {
	instance device.Instance
	pluginID string
	dev      device.Device
}

// Registry tracks every live device instance and dispatches function calls
// against them.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	catalog  DeviceFactory
	bus      *eventbus.Bus
	log      *logging.Logger
}

// New creates a Registry backed by catalog for constructor resolution.
func New(catalog DeviceFactory, bus *eventbus.Bus, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewDefault("registry")
	}
	return &Registry{
		entries: make(map[string]*entry),
		catalog: catalog,
		bus:     bus,
		log:     log,
	}
}

// Create instantiates a new device instance and leaves it in
// StatusDisconnected, unless config["auto_connect"] is truthy — matching
// device_manager.py's create_device_instance, which connects immediately
// when the caller asks for it. A failed auto-connect leaves the instance
// registered with StatusError rather than rejecting the create.
func (r *Registry) Create(instanceID, pluginID string, config map[string]any) (device.Instance, error) {
	r.mu.Lock()

	if _, exists := r.entries[instanceID]; exists {
		r.mu.Unlock()
		return device.Instance{}, apperrors.AlreadyExists("device instance", instanceID)
	}

	dev, err := r.catalog.NewDevice(pluginID, instanceID, config)
	if err != nil {
		r.mu.Unlock()
		return device.Instance{}, err
	}

	inst := device.Instance{
		InstanceID: instanceID,
		PluginID:   pluginID,
		Config:     config,
		Status:     device.StatusDisconnected,
	}
	r.entries[instanceID] = &entry{instance: inst, pluginID: pluginID, dev: dev}
	r.mu.Unlock()

	r.log.WithField("instance_id", instanceID).WithField("plugin_id", pluginID).Info("created device instance")

	if autoConnect(config) {
		if err := r.Connect(context.Background(), instanceID); err != nil {
			r.log.WithField("instance_id", instanceID).Warnf("auto_connect failed: %v", err)
		}
	}

	return r.Get(instanceID)
}

// autoConnect reports whether config requests immediate connection on
// create, matching device_manager.py's config.get("auto_connect", False).
func autoConnect(config map[string]any) bool {
	v, ok := config["auto_connect"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Remove disconnects (best-effort) and deletes instanceID.
func (r *Registry) Remove(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	e, ok := r.entries[instanceID]
	if !ok {
		r.mu.Unlock()
		return apperrors.NotFound("device instance", instanceID)
	}
	delete(r.entries, instanceID)
	r.mu.Unlock()

	if e.dev.IsConnected() {
		if err := e.dev.Disconnect(ctx); err != nil {
			r.log.WithField("instance_id", instanceID).Warnf("disconnect during remove failed: %v", err)
		}
	}
	r.log.WithField("instance_id", instanceID).Info("removed device instance")
	return nil
}

// Get returns the current Instance record for instanceID.
func (r *Registry) Get(instanceID string) (device.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[instanceID]
	if !ok {
		return device.Instance{}, apperrors.NotFound("device instance", instanceID)
	}
	return r.snapshot(e), nil
}

// List returns every tracked instance.
func (r *Registry) List() []device.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]device.Instance, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, r.snapshot(e))
	}
	return out
}

func (r *Registry) snapshot(e *entry) device.Instance {
	return device.Instance{
		InstanceID: e.instance.InstanceID,
		PluginID:   e.instance.PluginID,
		Config:     e.instance.Config,
		Status:     e.dev.Status(),
		LastError:  e.dev.LastError(),
	}
}

// Connect transitions instanceID to StatusConnected, publishing
// EventDeviceConnected on success and EventDeviceError on failure.
func (r *Registry) Connect(ctx context.Context, instanceID string) error {
	e, err := r.lookup(instanceID)
	if err != nil {
		return err
	}
	if err := e.dev.Connect(ctx); err != nil {
		r.publishError(ctx, instanceID, e.pluginID, err)
		return apperrors.DeviceConnection(instanceID, "connect failed", err)
	}
	r.publishConnected(ctx, instanceID, e.pluginID)
	return nil
}

// Disconnect transitions instanceID to StatusDisconnected.
func (r *Registry) Disconnect(ctx context.Context, instanceID string) error {
	e, err := r.lookup(instanceID)
	if err != nil {
		return err
	}
	if err := e.dev.Disconnect(ctx); err != nil {
		r.publishError(ctx, instanceID, e.pluginID, err)
		return apperrors.DeviceConnection(instanceID, "disconnect failed", err)
	}
	r.publishDisconnected(ctx, instanceID, e.pluginID, "requested")
	return nil
}

// ConnectAll connects every tracked instance, collecting per-instance errors
// without aborting the batch — device_manager.py's connect_all_devices.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	return r.forEach(ctx, r.Connect)
}

// DisconnectAll disconnects every tracked instance.
func (r *Registry) DisconnectAll(ctx context.Context) map[string]error {
	return r.forEach(ctx, r.Disconnect)
}

func (r *Registry) forEach(ctx context.Context, op func(context.Context, string) error) map[string]error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	results := make(map[string]error, len(ids))
	for _, id := range ids {
		results[id] = op(ctx, id)
	}
	return results
}

// HealthCheckAll runs HealthCheck against every connected instance and logs
// a warning for any that report unhealthy; it does not change any
// instance's status. Instances that are not connected report false.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]bool {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	results := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.dev.IsConnected() {
			results[e.instance.InstanceID] = false
			continue
		}
		ok, err := e.dev.HealthCheck(ctx)
		if err != nil || !ok {
			r.log.WithField("instance_id", e.instance.InstanceID).Warn("health check failed")
		}
		results[e.instance.InstanceID] = ok && err == nil
	}
	return results
}

// Execute invokes functionID against instanceID's device, requiring the
// device to already be connected (spec.md §4.2).
func (r *Registry) Execute(ctx context.Context, instanceID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error) {
	e, err := r.lookup(instanceID)
	if err != nil {
		return nil, nil, err
	}
	if !e.dev.IsConnected() {
		return nil, nil, apperrors.DeviceConnection(instanceID, "device is not connected", nil)
	}

	table, err := r.catalog.FunctionTable(e.pluginID)
	if err != nil {
		return nil, nil, err
	}
	fac, ok := table[functionID]
	if !ok {
		return nil, nil, apperrors.DeviceFunction(instanceID, functionID, "function not registered for plugin", nil)
	}

	fn := fac(e.dev)
	outputs, execErr := fn.Execute(ctx, inputs)
	logs := fn.Logs()

	if execErr != nil {
		return nil, logs, apperrors.DeviceFunction(instanceID, functionID, "function execution failed", execErr)
	}
	return outputs, logs, nil
}

func (r *Registry) lookup(instanceID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[instanceID]
	if !ok {
		return nil, apperrors.NotFound("device instance", instanceID)
	}
	return e, nil
}

func (r *Registry) publishConnected(ctx context.Context, instanceID, pluginID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, pipeline.DeviceConnectedPayload{
		DeviceID:  instanceID,
		PluginID:  pluginID,
		Timestamp: time.Now(),
		Status:    string(device.StatusConnected),
	})
}

func (r *Registry) publishDisconnected(ctx context.Context, instanceID, pluginID, reason string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, pipeline.DeviceDisconnectedPayload{
		DeviceID:  instanceID,
		PluginID:  pluginID,
		Timestamp: time.Now(),
		Reason:    reason,
	})
}

func (r *Registry) publishError(ctx context.Context, instanceID, pluginID string, err error) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(ctx, pipeline.DeviceErrorPayload{
		DeviceID:     instanceID,
		PluginID:     pluginID,
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
	})
}
