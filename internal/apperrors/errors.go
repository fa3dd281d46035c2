// Package apperrors provides unified, typed error handling for pipelinecore.
package apperrors

import (
	"fmt"
	"net/http"
)

// Code identifies the error family, matching the taxonomy in spec.md §7.
type Code string

const (
	CodeValidation         Code = "VALIDATION"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeInvalidState       Code = "INVALID_STATE"
	CodePipelineExecution  Code = "PIPELINE_EXECUTION"
	CodeNodeExecution      Code = "NODE_EXECUTION"
	CodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	CodeDeviceConnection   Code = "DEVICE_CONNECTION"
	CodeDeviceFunction     Code = "DEVICE_FUNCTION"
	CodePluginLoad         Code = "PLUGIN_LOAD"
	CodePluginConfig       Code = "PLUGIN_CONFIG"
	CodeRepositorySave     Code = "REPOSITORY_SAVE"
	CodeRepositoryDelete   Code = "REPOSITORY_DELETE"
)

// ServiceError is the structured error every pipelinecore component returns.
type ServiceError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError without a wrapped cause.
func New(code Code, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a ServiceError around an existing cause.
func Wrap(code Code, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Constructors for the taxonomy in spec.md §7, each carrying the HTTP status
// from §6's mapping table.

func Validation(message string) *ServiceError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, fmt.Sprintf("%s %q not found", resource, id), http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(CodeAlreadyExists, fmt.Sprintf("%s %q already exists", resource, id), http.StatusConflict).
		WithDetails("resource", resource).WithDetails("id", id)
}

func InvalidState(message string) *ServiceError {
	return New(CodeInvalidState, message, http.StatusBadRequest)
}

func PipelineExecution(pipelineID, message string, cause error) *ServiceError {
	return Wrap(CodePipelineExecution, message, http.StatusInternalServerError, cause).
		WithDetails("pipeline_id", pipelineID)
}

func NodeExecution(nodeID, label, message string, cause error) *ServiceError {
	return Wrap(CodeNodeExecution, message, http.StatusInternalServerError, cause).
		WithDetails("node_id", nodeID).WithDetails("label", label)
}

func CircularDependency(cycle []string, allCycles [][]string) *ServiceError {
	return New(CodeCircularDependency, "circular dependency detected in pipeline graph", http.StatusBadRequest).
		WithDetails("cycle", cycle).WithDetails("all_cycles", allCycles)
}

func DeviceConnection(instanceID, message string, cause error) *ServiceError {
	return Wrap(CodeDeviceConnection, message, http.StatusServiceUnavailable, cause).
		WithDetails("instance_id", instanceID)
}

func DeviceFunction(instanceID, functionID, message string, cause error) *ServiceError {
	return Wrap(CodeDeviceFunction, message, http.StatusInternalServerError, cause).
		WithDetails("instance_id", instanceID).WithDetails("function_id", functionID)
}

func PluginLoad(pluginID, message string, cause error) *ServiceError {
	return Wrap(CodePluginLoad, message, http.StatusInternalServerError, cause).
		WithDetails("plugin_id", pluginID)
}

func PluginConfig(pluginID, message string) *ServiceError {
	return New(CodePluginConfig, message, http.StatusBadRequest).
		WithDetails("plugin_id", pluginID)
}

func RepositorySave(resource, id string, cause error) *ServiceError {
	return Wrap(CodeRepositorySave, fmt.Sprintf("failed to save %s %q", resource, id), http.StatusInternalServerError, cause)
}

func RepositoryDelete(resource, id string, cause error) *ServiceError {
	return Wrap(CodeRepositoryDelete, fmt.Sprintf("failed to delete %s %q", resource, id), http.StatusInternalServerError, cause)
}
