package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/pipelinecore/internal/domain/device"
)

const pluginYAMLFixture = `
plugin:
  name: Test Plugin
  version: "1.0.0"
  category: testing

device:
  class: TestDevice
  connection_types:
    - simulated

functions:
  - id: do_thing
    name: Do Thing
    outputs:
      - complete
`

func writeFixturePlugin(t *testing.T, root, pluginID string) {
	t.Helper()
	dir := filepath.Join(root, pluginID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(pluginYAMLFixture), 0o644))
}

type stubDevice struct{ connected bool }

func (d *stubDevice) Connect(ctx context.Context) error    { d.connected = true; return nil }
func (d *stubDevice) Disconnect(ctx context.Context) error { d.connected = false; return nil }
func (d *stubDevice) HealthCheck(ctx context.Context) (bool, error) { return d.connected, nil }
func (d *stubDevice) IsConnected() bool                    { return d.connected }
func (d *stubDevice) Status() device.Status                { return device.StatusConnected }
func (d *stubDevice) LastError() string                    { return "" }

type stubFunction struct{}

func (f *stubFunction) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return map[string]any{"complete": true}, nil
}
func (f *stubFunction) Logs() []device.LogEntry { return nil }

func TestDiscoverSkipsUnderscorePrefixedAndInvalidDirs(t *testing.T) {
	root := t.TempDir()
	writeFixturePlugin(t, root, "good_plugin")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_hidden"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "no_metadata"), 0o755))

	c := New(root, nil)
	descs, err := c.Discover()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "good_plugin", descs[0].ID)
	assert.Equal(t, "Test Plugin", descs[0].Name)
}

func TestDiscoverOnMissingDirReturnsEmpty(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	descs, err := c.Discover()
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestLoadResolvesRegisteredConstructors(t *testing.T) {
	root := t.TempDir()
	writeFixturePlugin(t, root, "good_plugin")

	c := New(root, nil)
	c.Register("good_plugin", Registration{
		DeviceFactory: func(instanceID string, config map[string]any) device.Device { return &stubDevice{} },
		FunctionFactories: map[string]device.FunctionFactory{
			"do_thing": func(dev device.Device) device.Function { return &stubFunction{} },
		},
	})
	_, err := c.Discover()
	require.NoError(t, err)

	require.NoError(t, c.Load("good_plugin"))

	table, err := c.FunctionTable("good_plugin")
	require.NoError(t, err)
	assert.Contains(t, table, "do_thing")
}

func TestLoadFailsWithoutRegisteredDeviceConstructor(t *testing.T) {
	root := t.TempDir()
	writeFixturePlugin(t, root, "unregistered_plugin")

	c := New(root, nil)
	_, err := c.Discover()
	require.NoError(t, err)

	err = c.Load("unregistered_plugin")
	assert.Error(t, err)
}

func TestExecuteDirectRunsAndDiscardsEphemeralDevice(t *testing.T) {
	root := t.TempDir()
	writeFixturePlugin(t, root, "good_plugin")

	c := New(root, nil)
	c.Register("good_plugin", Registration{
		DeviceFactory: func(instanceID string, config map[string]any) device.Device { return &stubDevice{connected: true} },
		FunctionFactories: map[string]device.FunctionFactory{
			"do_thing": func(dev device.Device) device.Function { return &stubFunction{} },
		},
	})
	_, err := c.Discover()
	require.NoError(t, err)

	outputs, logs, err := c.ExecuteDirect("good_plugin", "do_thing", nil)
	require.NoError(t, err)
	assert.Nil(t, logs)
	assert.Equal(t, true, outputs["complete"])
}

func TestExecuteDirectUnknownFunctionReturnsNoopCompletion(t *testing.T) {
	root := t.TempDir()
	writeFixturePlugin(t, root, "good_plugin")

	c := New(root, nil)
	c.Register("good_plugin", Registration{
		DeviceFactory:     func(instanceID string, config map[string]any) device.Device { return &stubDevice{} },
		FunctionFactories: map[string]device.FunctionFactory{},
	})
	_, err := c.Discover()
	require.NoError(t, err)

	outputs, _, err := c.ExecuteDirect("good_plugin", "missing_function", nil)
	require.NoError(t, err)
	assert.Equal(t, true, outputs["complete"])
}

func TestToClassNamePreservesSnakeToPascalFunctionRule(t *testing.T) {
	assert.Equal(t, "GetPositionFunction", ToClassName("get_position"))
	assert.Equal(t, "HomeFunction", ToClassName("home"))
	assert.Equal(t, "MoveFunction", ToClassName("move"))
}

func TestReloadDropsCachedConstructorsBeforeReloading(t *testing.T) {
	root := t.TempDir()
	writeFixturePlugin(t, root, "good_plugin")

	c := New(root, nil)
	c.Register("good_plugin", Registration{
		DeviceFactory: func(instanceID string, config map[string]any) device.Device { return &stubDevice{} },
		FunctionFactories: map[string]device.FunctionFactory{
			"do_thing": func(dev device.Device) device.Function { return &stubFunction{} },
		},
	})
	_, err := c.Discover()
	require.NoError(t, err)
	require.NoError(t, c.Load("good_plugin"))

	require.NoError(t, c.Reload("good_plugin"))
	table, err := c.FunctionTable("good_plugin")
	require.NoError(t, err)
	assert.Contains(t, table, "do_thing")
}
