// Package mockservo is the demo device plugin (spec.md §8 scenario S1),
// translated from the mock_servo example plugin in the reference
// implementation: a single-axis servo simulator exposing home/move/
// get_position functions.
package mockservo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nodeforge/pipelinecore/internal/catalog"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
)

// PluginID is the id this plugin registers itself under.
const PluginID = "mock_servo"

// RegisterInto binds this plugin's device and function constructors into c.
// cmd/pipelined/main.go calls this once per plugin during wiring, before the
// Catalog discovers plugin.yaml metadata from disk — the Go-native
// substitute for the reference loader's dynamic import (see internal/catalog's
// package doc).
func RegisterInto(c *catalog.Catalog) {
	c.Register(PluginID, catalog.Registration{
		DeviceFactory: newDevice,
		FunctionFactories: map[string]device.FunctionFactory{
			"home":         newHomeFunction,
			"move":         newMoveFunction,
			"get_position": newGetPositionFunction,
		},
	})
}

// Device simulates a single-axis servo motor.
type Device struct {
	mu sync.Mutex

	instanceID  string
	axis        int
	maxPosition float64

	status       device.Status
	lastError    string
	position     float64
	velocity     float64
	homed        bool
}

func newDevice(instanceID string, config map[string]any) device.Device {
	axis := 0
	if v, ok := config["axis"].(int); ok {
		axis = v
	}
	maxPosition := 1000.0
	if v, ok := config["max_position"].(float64); ok {
		maxPosition = v
	}
	return &Device{
		instanceID:  instanceID,
		axis:        axis,
		maxPosition: maxPosition,
		status:      device.StatusDisconnected,
	}
}

func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	d.status = device.StatusConnecting
	d.mu.Unlock()

	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	d.status = device.StatusConnected
	d.mu.Unlock()
	return nil
}

func (d *Device) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = device.StatusDisconnected
	return nil
}

func (d *Device) HealthCheck(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status == device.StatusConnected, nil
}

func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status == device.StatusConnected
}

func (d *Device) Status() device.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Device) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastError
}

func (d *Device) homeAxis(ctx context.Context) (float64, error) {
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = 0
	d.velocity = 0
	d.homed = true
	return d.position, nil
}

func (d *Device) moveToPosition(ctx context.Context, position, speed float64) (float64, error) {
	d.mu.Lock()
	max := d.maxPosition
	current := d.position
	d.mu.Unlock()

	if position < 0 || position > max {
		return 0, fmt.Errorf("position %.2f out of range [0, %.2f]", position, max)
	}

	distance := position - current
	if distance < 0 {
		distance = -distance
	}
	moveTime := 100 * time.Millisecond
	if speed > 0 {
		moveTime = time.Duration(distance/speed*float64(time.Second))
		if moveTime > 200*time.Millisecond {
			moveTime = 200 * time.Millisecond
		}
	}

	select {
	case <-time.After(moveTime):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = position
	d.velocity = 0
	return d.position, nil
}

func (d *Device) readPosition() (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, d.velocity
}
