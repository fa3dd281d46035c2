package mockservo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/pipelinecore/internal/catalog"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
)

func TestRegisterIntoBindsDeviceAndFunctionConstructors(t *testing.T) {
	// The catalog only loads plugins it has discovered, so place this
	// plugin's metadata under PluginID in the scanned directory first.
	root := t.TempDir()
	meta, err := os.ReadFile("plugin.yaml")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, PluginID), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, PluginID, "plugin.yaml"), meta, 0o644))

	c := catalog.New(root, nil)
	RegisterInto(c)
	_, err = c.Discover()
	require.NoError(t, err)

	dev, err := c.NewDevice(PluginID, "inst1", map[string]any{"axis": 1})
	require.NoError(t, err)
	require.NotNil(t, dev)
}

func TestHomeFunctionRequiresConnectedDevice(t *testing.T) {
	dev := newDevice("inst1", nil)
	fn := newHomeFunction(dev)

	_, err := fn.Execute(context.Background(), nil)
	assert.Error(t, err)
}

func TestHomeFunctionSucceedsWhenConnected(t *testing.T) {
	dev := newDevice("inst1", nil)
	require.NoError(t, dev.(*Device).Connect(context.Background()))

	fn := newHomeFunction(dev)
	out, err := fn.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["complete"])
	assert.Equal(t, 0.0, out["position"])
	assert.NotEmpty(t, fn.Logs())
}

func TestMoveFunctionValidatesPositionInput(t *testing.T) {
	dev := newDevice("inst1", nil)
	require.NoError(t, dev.(*Device).Connect(context.Background()))
	fn := newMoveFunction(dev)

	_, err := fn.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestMoveFunctionRejectsOutOfRangePosition(t *testing.T) {
	dev := newDevice("inst1", map[string]any{"max_position": 100.0})
	require.NoError(t, dev.(*Device).Connect(context.Background()))
	fn := newMoveFunction(dev)

	_, err := fn.Execute(context.Background(), map[string]any{"position": 500.0})
	assert.Error(t, err)
}

func TestMoveFunctionMovesWithinRange(t *testing.T) {
	dev := newDevice("inst1", map[string]any{"max_position": 1000.0})
	require.NoError(t, dev.(*Device).Connect(context.Background()))
	fn := newMoveFunction(dev)

	out, err := fn.Execute(context.Background(), map[string]any{"position": 50.0, "speed": 1000.0})
	require.NoError(t, err)
	assert.Equal(t, 50.0, out["position"])
}

func TestGetPositionFunctionReadsCurrentState(t *testing.T) {
	dev := newDevice("inst1", nil)
	require.NoError(t, dev.(*Device).Connect(context.Background()))
	fn := newGetPositionFunction(dev)

	out, err := fn.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, out["position"])
	assert.Equal(t, 0.0, out["velocity"])
}

func TestDeviceLifecycleTransitions(t *testing.T) {
	dev := newDevice("inst1", nil).(*Device)
	assert.False(t, dev.IsConnected())
	assert.Equal(t, device.StatusDisconnected, dev.Status())

	require.NoError(t, dev.Connect(context.Background()))
	assert.True(t, dev.IsConnected())

	ok, err := dev.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, dev.Disconnect(context.Background()))
	assert.False(t, dev.IsConnected())
}
