// Package catalog implements the Plugin Catalog (spec.md §4.3).
//
// Python's reference implementation loads device/function classes by
// importing arbitrary .py files from a plugin directory at runtime. Go has
// no equivalent for loading arbitrary on-disk packages as code, so this
// catalog splits the concern in two: plugin.yaml metadata is still
// discovered from disk (preserving the directory-scan mechanics and the
// required-files validation), but the device/function constructors are
// resolved against a compile-time registry that plugin packages populate
// by calling Register explicitly during application wiring (cmd/pipelined/main.go
// calls each plugin's RegisterInto once, before Discover runs).
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
	"github.com/nodeforge/pipelinecore/internal/logging"
)

// metadataFile mirrors plugin_loader.py's _validate_plugin: a plugin
// directory must carry metadata plus a registered Go package providing the
// device and function constructors (the conceptual equivalent of
// device.py/functions.py).
const metadataFile = "plugin.yaml"

// pluginYAML is the on-disk shape of plugin.yaml.
type pluginYAML struct {
	Plugin struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Author      string `yaml:"author"`
		Description string `yaml:"description"`
		Category    string `yaml:"category"`
		Color       string `yaml:"color"`
	} `yaml:"plugin"`
	Device struct {
		Class           string   `yaml:"class"`
		ConnectionTypes []string `yaml:"connection_types"`
	} `yaml:"device"`
	Functions []struct {
		ID        string                      `yaml:"id"`
		Name      string                      `yaml:"name"`
		Outputs   []string                    `yaml:"outputs"`
		Stateless bool                        `yaml:"stateless"`
		Inputs    map[string]device.InputSpec `yaml:"inputs"`
	} `yaml:"functions"`
}

// Registration is what a plugin package supplies via Register — the Go
// analogue of plugin_loader.py resolving device.py/functions.py.
type Registration struct {
	DeviceFactory    device.DeviceFactory
	FunctionFactories map[string]device.FunctionFactory // keyed by function id
}

type discovered struct {
	descriptor device.PluginDescriptor
	path       string
}

type loaded struct {
	deviceFactory     device.DeviceFactory
	functionFactories map[string]device.FunctionFactory
}

// Catalog discovers plugin metadata from a directory and resolves
// constructors from the compile-time registry. Thread-safe against
// concurrent discover/load/reload.
type Catalog struct {
	mu          sync.RWMutex
	pluginDir   string
	discovered  map[string]discovered
	loaded      map[string]loaded
	registry    map[string]Registration
	log         *logging.Logger
}

// New creates a Catalog rooted at pluginDir.
func New(pluginDir string, log *logging.Logger) *Catalog {
	if log == nil {
		log = logging.NewDefault("catalog")
	}
	return &Catalog{
		pluginDir:  pluginDir,
		discovered: make(map[string]discovered),
		loaded:     make(map[string]loaded),
		registry:   make(map[string]Registration),
		log:        log,
	}
}

// Register binds pluginID's constructors into the compile-time registry.
// Plugin packages expose a RegisterInto(*Catalog) function that callers
// invoke during wiring rather than self-registering via init().
func (c *Catalog) Register(pluginID string, reg Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry[pluginID] = reg
}

// Discover scans pluginDir for subdirectories (skipping ones starting with
// "_"), validating each has plugin.yaml, and caches the parsed descriptor.
func (c *Catalog) Discover() ([]device.PluginDescriptor, error) {
	entries, err := os.ReadDir(c.pluginDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.PluginLoad("", "failed to read plugin directory", err)
	}

	var out []device.PluginDescriptor
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		pluginPath := filepath.Join(c.pluginDir, e.Name())
		metaPath := filepath.Join(pluginPath, metadataFile)
		data, err := os.ReadFile(metaPath)
		if err != nil {
			c.log.WithField("plugin_id", e.Name()).Warnf("plugin missing %s, skipping", metadataFile)
			continue
		}

		var raw pluginYAML
		if err := yaml.Unmarshal(data, &raw); err != nil {
			c.log.WithField("plugin_id", e.Name()).Warnf("invalid plugin metadata: %v", err)
			continue
		}

		desc := toDescriptor(e.Name(), raw)
		c.discovered[e.Name()] = discovered{descriptor: desc, path: pluginPath}
		out = append(out, desc)
		c.log.WithField("plugin_id", e.Name()).Info("discovered plugin")
	}

	return out, nil
}

func toDescriptor(id string, raw pluginYAML) device.PluginDescriptor {
	desc := device.PluginDescriptor{
		ID:              id,
		Name:            raw.Plugin.Name,
		Version:         raw.Plugin.Version,
		Author:          raw.Plugin.Author,
		Category:        raw.Plugin.Category,
		Color:           raw.Plugin.Color,
		DeviceClass:     raw.Device.Class,
		ConnectionTypes: raw.Device.ConnectionTypes,
	}
	if desc.Name == "" {
		desc.Name = id
	}
	if desc.Version == "" {
		desc.Version = "1.0.0"
	}
	for _, f := range raw.Functions {
		desc.Functions = append(desc.Functions, device.FunctionDescriptor{
			ID:        f.ID,
			Name:      f.Name,
			Inputs:    f.Inputs,
			Outputs:   f.Outputs,
			Stateless: f.Stateless,
		})
	}
	return desc
}

// ToClassName converts a snake_case function id to the PascalCase+"Function"
// name used to resolve the constructor, kept verbatim from
// plugin_loader.py._to_class_name (spec.md Design Notes: "keep the
// transformation rule verbatim for compatibility"). The registry here is
// keyed by function id directly, not by this derived name, but the rule is
// preserved as ToClassName for callers (e.g. diagnostics, docs generation)
// that need the Python-compatible label.
func ToClassName(funcID string) string {
	words := strings.Split(funcID, "_")
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	b.WriteString("Function")
	return b.String()
}

// Load materializes the device constructor and, for each declared function,
// resolves its constructor from the registry. Missing function constructors
// are warned on, not fatal (spec.md §4.3).
func (c *Catalog) Load(pluginID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(pluginID)
}

func (c *Catalog) loadLocked(pluginID string) error {
	desc, ok := c.discovered[pluginID]
	if !ok {
		return apperrors.NotFound("plugin", pluginID)
	}
	reg, ok := c.registry[pluginID]
	if !ok || reg.DeviceFactory == nil {
		return apperrors.PluginLoad(pluginID, "no registered device constructor for plugin", nil)
	}

	funcs := make(map[string]device.FunctionFactory, len(desc.descriptor.Functions))
	for _, fd := range desc.descriptor.Functions {
		fac, ok := reg.FunctionFactories[fd.ID]
		if !ok {
			c.log.WithField("plugin_id", pluginID).WithField("function_id", fd.ID).
				Warn("function constructor not found, skipping")
			continue
		}
		funcs[fd.ID] = fac
	}

	c.loaded[pluginID] = loaded{deviceFactory: reg.DeviceFactory, functionFactories: funcs}
	c.log.WithField("plugin_id", pluginID).Infof("loaded plugin with %d functions", len(funcs))
	return nil
}

// Reload discards any cached constructors and reloads from the registry.
func (c *Catalog) Reload(pluginID string) error {
	c.mu.Lock()
	delete(c.loaded, pluginID)
	c.mu.Unlock()
	return c.Load(pluginID)
}

// Unload drops the cached constructors for pluginID.
func (c *Catalog) Unload(pluginID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loaded, pluginID)
}

// EnsureLoaded loads pluginID if it hasn't been loaded yet.
func (c *Catalog) EnsureLoaded(pluginID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.loaded[pluginID]; ok {
		return nil
	}
	return c.loadLocked(pluginID)
}

// Descriptor returns the discovered descriptor for pluginID.
func (c *Catalog) Descriptor(pluginID string) (device.PluginDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.discovered[pluginID]
	return d.descriptor, ok
}

// Descriptors returns every discovered plugin descriptor.
func (c *Catalog) Descriptors() []device.PluginDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]device.PluginDescriptor, 0, len(c.discovered))
	for _, d := range c.discovered {
		out = append(out, d.descriptor)
	}
	return out
}

// NewDevice constructs a fresh Device for instanceID using the loaded
// plugin's device constructor.
func (c *Catalog) NewDevice(pluginID, instanceID string, config map[string]any) (device.Device, error) {
	c.mu.RLock()
	l, ok := c.loaded[pluginID]
	c.mu.RUnlock()
	if !ok {
		if err := c.EnsureLoaded(pluginID); err != nil {
			return nil, err
		}
		c.mu.RLock()
		l = c.loaded[pluginID]
		c.mu.RUnlock()
	}
	if l.deviceFactory == nil {
		return nil, apperrors.PluginLoad(pluginID, "plugin has no device constructor", nil)
	}
	return l.deviceFactory(instanceID, config), nil
}

// FunctionTable returns the loaded function constructors for pluginID.
func (c *Catalog) FunctionTable(pluginID string) (map[string]device.FunctionFactory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.loaded[pluginID]
	if !ok {
		return nil, apperrors.NotFound("plugin", pluginID)
	}
	return l.functionFactories, nil
}

// ExecuteDirect runs functionID against a temporary device instance with
// empty config, collects any emitted logs, and discards the device —
// spec.md §4.2's "direct (stateless) invocation path".
func (c *Catalog) ExecuteDirect(pluginID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error) {
	if err := c.EnsureLoaded(pluginID); err != nil {
		return nil, nil, err
	}
	c.mu.RLock()
	l := c.loaded[pluginID]
	c.mu.RUnlock()

	fac, ok := l.functionFactories[functionID]
	if !ok {
		c.log.WithField("plugin_id", pluginID).WithField("function_id", functionID).
			Warn("function not found in plugin, returning noop completion")
		return map[string]any{"complete": true}, nil, nil
	}

	tempDevice := l.deviceFactory(pluginID+"-ephemeral", map[string]any{})
	fn := fac(tempDevice)

	outputs, err := fn.Execute(context.Background(), inputs)
	logs := fn.Logs()
	if err != nil {
		return nil, logs, apperrors.DeviceFunction("", functionID, "stateless function execution failed", err)
	}
	return outputs, logs, nil
}
