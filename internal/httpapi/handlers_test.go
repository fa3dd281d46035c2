package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/pipelinecore/internal/catalog"
	"github.com/nodeforge/pipelinecore/internal/domain/device"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/engine"
	"github.com/nodeforge/pipelinecore/internal/eventbus"
	"github.com/nodeforge/pipelinecore/internal/executor"
	"github.com/nodeforge/pipelinecore/internal/registry"
	"github.com/nodeforge/pipelinecore/internal/storage"
)

type noopDirectCaller struct{}

func (noopDirectCaller) ExecuteDirect(pluginID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error) {
	return map[string]any{"complete": true}, nil, nil
}

type noopRegistryCaller struct{}

func (noopRegistryCaller) Execute(ctx context.Context, instanceID, functionID string, inputs map[string]any) (map[string]any, []device.LogEntry, error) {
	return map[string]any{"complete": true}, nil, nil
}

func newTestServer(t *testing.T) (*Server, storage.PipelineRepository) {
	t.Helper()
	bus := eventbus.New(nil)
	cat := catalog.New(t.TempDir(), nil)
	reg := registry.New(&fakeDeviceFactory{}, bus, nil)
	exec := executor.New(noopRegistryCaller{}, noopDirectCaller{}, nil, bus, nil)
	eng := engine.New(exec, bus, nil)
	pipelines := storage.NewPipelineMemoryRepository()
	composites := storage.NewCompositeMemoryRepository()

	srv := NewServer(Deps{
		Addr:           ":0",
		Engine:         eng,
		Registry:       reg,
		Catalog:        cat,
		Pipelines:      pipelines,
		Composites:     composites,
		Bus:            bus,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})
	return srv, pipelines
}

type fakeDeviceFactory struct{}

func (fakeDeviceFactory) NewDevice(pluginID, instanceID string, config map[string]any) (device.Device, error) {
	return nil, nil
}
func (fakeDeviceFactory) FunctionTable(pluginID string) (map[string]device.FunctionFactory, error) {
	return nil, nil
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndGetPipeline(t *testing.T) {
	srv, _ := newTestServer(t)

	def := pipeline.Definition{PipelineID: "p1", Name: "Demo"}
	body, err := json.Marshal(def)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/pipelines", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/pipelines/p1", nil)
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Demo", got.Name)
}

func TestCreatePipelineWithoutIDGetsOneAssigned(t *testing.T) {
	srv, _ := newTestServer(t)
	def := pipeline.Definition{Name: "No ID Given"}
	body, err := json.Marshal(def)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/pipelines", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got pipeline.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.PipelineID)
}

func TestGetMissingPipelineReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/pipelines/missing", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecutePipelineEndToEnd(t *testing.T) {
	srv, pipelines := newTestServer(t)
	def := pipeline.Definition{
		PipelineID: "p1",
		Name:       "Demo",
		Nodes:      []pipeline.Node{{ID: "a", Type: pipeline.NodeFunction, PluginID: "logic", FunctionID: "print"}},
	}
	require.NoError(t, pipelines.Save(context.Background(), def))

	req := httptest.NewRequest(http.MethodPost, "/api/pipelines/p1/execute", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
}
