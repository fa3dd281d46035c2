package mockservo

import (
	"context"
	"errors"
	"fmt"

	"github.com/nodeforge/pipelinecore/internal/domain/device"
)

// logBuffer collects log lines a function emits during Execute, surfaced
// afterward via Logs() — mirrors BaseFunction's get_logs() in the
// reference implementation.
type logBuffer struct {
	entries []device.LogEntry
}

func (b *logBuffer) log(level, format string, args ...any) {
	b.entries = append(b.entries, device.LogEntry{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (b *logBuffer) Logs() []device.LogEntry { return b.entries }

// homeFunction homes the servo axis.
type homeFunction struct {
	logBuffer
	dev *Device
}

func newHomeFunction(dev device.Device) device.Function {
	d, _ := dev.(*Device)
	return &homeFunction{dev: d}
}

func (f *homeFunction) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if f.dev == nil || !f.dev.IsConnected() {
		return nil, errors.New("device not connected")
	}
	position, err := f.dev.homeAxis(ctx)
	if err != nil {
		return nil, err
	}
	f.log("info", "homed axis %d to position %.2f", f.dev.axis, position)
	return map[string]any{"complete": true, "position": position}, nil
}

// moveFunction moves the servo to a target position.
type moveFunction struct {
	logBuffer
	dev *Device
}

func newMoveFunction(dev device.Device) device.Function {
	d, _ := dev.(*Device)
	return &moveFunction{dev: d}
}

func (f *moveFunction) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if f.dev == nil || !f.dev.IsConnected() {
		return nil, errors.New("device not connected")
	}

	position, ok := inputs["position"].(float64)
	if !ok {
		return nil, errors.New("move: 'position' input is required and must be a number")
	}
	speed := 100.0
	if v, ok := inputs["speed"].(float64); ok {
		speed = v
	}

	result, err := f.dev.moveToPosition(ctx, position, speed)
	if err != nil {
		return nil, err
	}
	f.log("info", "moved to position %.2f at speed %.2f", result, speed)
	return map[string]any{"complete": true, "position": result}, nil
}

// getPositionFunction reads the servo's current position and velocity.
type getPositionFunction struct {
	logBuffer
	dev *Device
}

func newGetPositionFunction(dev device.Device) device.Function {
	d, _ := dev.(*Device)
	return &getPositionFunction{dev: d}
}

func (f *getPositionFunction) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if f.dev == nil || !f.dev.IsConnected() {
		return nil, errors.New("device not connected")
	}
	position, velocity := f.dev.readPosition()
	return map[string]any{"position": position, "velocity": velocity}, nil
}
