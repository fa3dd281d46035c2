package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nodeforge/pipelinecore/internal/apperrors"
	"github.com/nodeforge/pipelinecore/internal/catalog"
	"github.com/nodeforge/pipelinecore/internal/domain/composite"
	"github.com/nodeforge/pipelinecore/internal/domain/pipeline"
	"github.com/nodeforge/pipelinecore/internal/engine"
	"github.com/nodeforge/pipelinecore/internal/logging"
	"github.com/nodeforge/pipelinecore/internal/metrics"
	"github.com/nodeforge/pipelinecore/internal/registry"
	"github.com/nodeforge/pipelinecore/internal/storage"
)

type handlers struct {
	engine     *engine.Engine
	registry   *registry.Registry
	catalog    *catalog.Catalog
	pipelines  storage.PipelineRepository
	composites storage.CompositeRepository
	metrics    *metrics.Metrics
	log        *logging.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- pipelines ---

func (h *handlers) listPipelines(w http.ResponseWriter, r *http.Request) {
	list, err := h.pipelines.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) createPipeline(w http.ResponseWriter, r *http.Request) {
	var def pipeline.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, apperrors.Validation("invalid pipeline payload"))
		return
	}
	if def.PipelineID == "" {
		def.PipelineID = uuid.NewString()
	}
	if err := h.pipelines.Save(r.Context(), def); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (h *handlers) getPipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := h.pipelines.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *handlers) deletePipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := h.pipelines.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.NotFound("pipeline", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) executePipeline(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := h.pipelines.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PipelinesInFlight.Inc()
		defer h.metrics.PipelinesInFlight.Dec()
	}

	result, err := h.engine.Execute(r.Context(), def)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.metrics != nil {
		outcome := "true"
		if !result.Success {
			outcome = "false"
		}
		h.metrics.PipelinesExecutedTotal.WithLabelValues(outcome).Inc()
		h.metrics.PipelineDuration.WithLabelValues(id).Observe(result.ExecutionTime)
	}

	writeJSON(w, http.StatusOK, result)
}

// --- composites ---

func (h *handlers) listComposites(w http.ResponseWriter, r *http.Request) {
	list, err := h.composites.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) createComposite(w http.ResponseWriter, r *http.Request) {
	var def composite.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, apperrors.Validation("invalid composite payload"))
		return
	}
	if def.CompositeID == "" {
		def.CompositeID = uuid.NewString()
	}
	if err := storage.CheckSelfReference(r.Context(), h.composites, def); err != nil {
		writeError(w, err)
		return
	}
	if err := h.composites.Save(r.Context(), def); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (h *handlers) getComposite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := h.composites.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *handlers) deleteComposite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := h.composites.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.NotFound("composite", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- devices ---

type createDeviceRequest struct {
	InstanceID string         `json:"instance_id"`
	PluginID   string         `json:"plugin_id"`
	Config     map[string]any `json:"config"`
}

func (h *handlers) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

func (h *handlers) createDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Validation("invalid device payload"))
		return
	}
	if req.InstanceID == "" {
		req.InstanceID = uuid.NewString()
	}
	inst, err := h.registry.Create(req.InstanceID, req.PluginID, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (h *handlers) removeDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) connectDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Connect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	inst, _ := h.registry.Get(id)
	writeJSON(w, http.StatusOK, inst)
}

func (h *handlers) disconnectDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Disconnect(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	inst, _ := h.registry.Get(id)
	writeJSON(w, http.StatusOK, inst)
}

func (h *handlers) executeDeviceFunction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, functionID := vars["id"], vars["function_id"]

	var inputs map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
			writeError(w, apperrors.Validation("invalid function inputs payload"))
			return
		}
	}

	outputs, _, err := h.registry.Execute(r.Context(), id, functionID, inputs)
	if err != nil {
		if h.metrics != nil {
			h.metrics.DeviceFunctionErrors.WithLabelValues("", functionID).Inc()
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

// --- plugins ---

func (h *handlers) listPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.Descriptors())
}

func (h *handlers) reloadPlugin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.catalog.Reload(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	if svcErr, ok := err.(*apperrors.ServiceError); ok {
		writeJSON(w, svcErr.HTTPStatus, map[string]any{
			"error":   svcErr.Code,
			"message": svcErr.Message,
			"details": svcErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":   "internal_error",
		"message": err.Error(),
	})
}
