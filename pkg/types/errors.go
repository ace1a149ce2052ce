package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
)

// ErrorCode is the machine-checkable error vocabulary shared by every endpoint.
type ErrorCode string

const (
	CodeMissingField         ErrorCode = "missing-required-field"
	CodeMissingCredentials   ErrorCode = "missing-credentials"
	CodeBackendMisconfigured ErrorCode = "backend-misconfigured"
	CodeProviderError        ErrorCode = "provider-error"
	CodeInternalError        ErrorCode = "internal-error"
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a validation error naming the offending fields.
func NewValidationError(message string, fields ...string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

// ConfigurationError reports absent credentials or backend settings.
// Missing names the exact settings that need to be provided.
type ConfigurationError struct {
	Code    ErrorCode
	Profile string
	Message string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Profile != "" {
		return fmt.Sprintf("backend profile %q is missing %s", e.Profile, strings.Join(e.Missing, ", "))
	}
	return "missing configuration: " + strings.Join(e.Missing, ", ")
}

// ProviderError wraps a failure returned by the remote session provider.
type ProviderError struct {
	Err        error
	Op         string
	Message    string
	StatusCode int
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProvisionError reports a session that was created but is unusable.
type ProvisionError struct {
	SessionID string
	Message   string
}

func (e *ProvisionError) Error() string {
	if e.SessionID == "" {
		return e.Message
	}
	return fmt.Sprintf("session %s: %s", e.SessionID, e.Message)
}

// ToolExecutionError reports a single failed tool call. It is surfaced to
// the model as data and never aborts a run.
type ToolExecutionError struct {
	Err  error
	Tool string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// OrchestratorFault is any unexpected failure inside the agent loop.
type OrchestratorFault struct {
	Err   error
	Stack string
}

func (e *OrchestratorFault) Error() string {
	return fmt.Sprintf("agent run failed: %v", e.Err)
}

func (e *OrchestratorFault) Unwrap() error { return e.Err }

// NewFaultFromPanic converts a recovered panic value into a fault.
func NewFaultFromPanic(recovered interface{}) *OrchestratorFault {
	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}
	return &OrchestratorFault{Err: err, Stack: string(debug.Stack())}
}

// CodeOf classifies err into the shared vocabulary.
func CodeOf(err error) ErrorCode {
	var validationErr *ValidationError
	var configErr *ConfigurationError
	var providerErr *ProviderError
	var provisionErr *ProvisionError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return CodeMissingField
	case errors.As(err, &configErr):
		if configErr.Code != "" {
			return configErr.Code
		}
		return CodeMissingCredentials
	case errors.As(err, &providerErr), errors.As(err, &provisionErr):
		return CodeProviderError
	default:
		return CodeInternalError
	}
}

// HTTPStatus maps err to the status code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeMissingField, CodeMissingCredentials, CodeBackendMisconfigured:
		return http.StatusBadRequest
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// ErrorInfo is the normalized wire form of an error.
type ErrorInfo struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// NewErrorInfo normalizes err into {name, message, stack}.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	info := &ErrorInfo{Name: errorName(err), Message: err.Error()}
	var fault *OrchestratorFault
	if errors.As(err, &fault) {
		info.Stack = fault.Stack
	}
	return info
}

// UnmarshalJSON accepts both the object form and a bare message string.
func (e *ErrorInfo) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Name = "Error"
		e.Message = msg
		return nil
	}
	type plain ErrorInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = ErrorInfo(p)
	return nil
}

func errorName(err error) string {
	var validationErr *ValidationError
	var configErr *ConfigurationError
	var providerErr *ProviderError
	var provisionErr *ProvisionError
	var toolErr *ToolExecutionError
	var fault *OrchestratorFault

	switch {
	case errors.As(err, &toolErr):
		return "ToolExecutionError"
	case errors.As(err, &fault):
		return "OrchestratorFault"
	case errors.As(err, &validationErr):
		return "ValidationError"
	case errors.As(err, &configErr):
		return "ConfigurationError"
	case errors.As(err, &providerErr):
		return "ProviderError"
	case errors.As(err, &provisionErr):
		return "ProvisionError"
	default:
		return "Error"
	}
}
