// Package errors implements the two error classes this system distinguishes:
// usage errors in the configuration tree API (programmer bugs, terminate
// the process, see internal/configtree's Tree.panicUsage) and build errors
// (structured, bubble up, abort the build, modeled by BuildError below).
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// BuildError is a standardized build-time error: which component and
// operation failed, which rule was violated, and how severe it is.
type BuildError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Severity   Severity               `json:"severity"`
}

// Severity levels for build errors.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Error kinds. Only InternalInconsistency suggests a bug in
// the resolver itself; all others are user-facing configuration mistakes.
const (
	CodePluginNotFound          = "PLUGIN_NOT_FOUND"
	CodePluginLoadFailed        = "PLUGIN_LOAD_FAILED"
	CodeDescriptorInvalid       = "DESCRIPTOR_INVALID"
	CodeWiringParseError        = "WIRING_PARSE_ERROR"
	CodeUnknownModuleID         = "UNKNOWN_MODULE_ID"
	CodeDuplicateProducerClause = "DUPLICATE_PRODUCER_CLAUSE"
	CodeUnknownStream           = "UNKNOWN_STREAM"
	CodeCardinalityMismatch     = "CARDINALITY_MISMATCH"
	CodeInvalidAfterModule      = "INVALID_AFTER_MODULE"
	CodeIntraStreamCycle        = "INTRA_STREAM_CYCLE"
	CodeCrossStreamCycle        = "CROSS_STREAM_CYCLE"
	CodeDeadInputModule         = "DEAD_INPUT_MODULE"
	CodeInternalInconsistency   = "INTERNAL_INCONSISTENCY"

	// CodeConfigInvalid tags bootstrap AppConfig validation failures, not a
	// build error but reuses the same structured-error shape.
	CodeConfigInvalid = "CONFIG_INVALID"
)

// ConfigError creates a high-severity error for a bootstrap AppConfig
// validation failure. operation names the field or section being checked.
func ConfigError(operation, message string) *BuildError {
	return NewHigh(CodeConfigInvalid, "config", operation, message)
}

// New creates a build error with medium severity.
func New(code, component, operation, message string) *BuildError {
	_, file, line, _ := runtime.Caller(1)
	return &BuildError{
		Code:       code,
		Message:    message,
		Component:  component,
		Operation:  operation,
		StackTrace: fmt.Sprintf("%s:%d", file, line),
		Metadata:   make(map[string]interface{}),
		Timestamp:  time.Now(),
		Severity:   SeverityMedium,
	}
}

// NewCritical creates a build error tagged SeverityCritical, reserved for
// CodeInternalInconsistency.
func NewCritical(code, component, operation, message string) *BuildError {
	err := New(code, component, operation, message)
	err.Severity = SeverityCritical
	return err
}

// NewHigh creates a build error tagged SeverityHigh. It is used for
// cross-stream cycles and bootstrap config failures; the other user-facing
// error kinds are built with New and carry SeverityMedium.
func NewHigh(code, component, operation, message string) *BuildError {
	err := New(code, component, operation, message)
	err.Severity = SeverityHigh
	return err
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Wrap attaches a cause error and returns the receiver for chaining.
func (e *BuildError) Wrap(cause error) *BuildError {
	e.Cause = cause
	return e
}

// WithMetadata attaches a key/value pair of structured context, e.g. the
// offending module name or stream key, and returns the receiver for
// chaining.
func (e *BuildError) WithMetadata(key string, value interface{}) *BuildError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsCritical reports whether this error suggests a bug in the resolver
// itself rather than a user configuration mistake.
func (e *BuildError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// ToMap converts the error to a map suitable for structured logging.
func (e *BuildError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code":      e.Code,
		"error_message":   e.Message,
		"error_component": e.Component,
		"error_operation": e.Operation,
		"error_severity":  string(e.Severity),
		"error_timestamp": e.Timestamp,
	}
	if e.Cause != nil {
		result["error_cause"] = e.Cause.Error()
	}
	for k, v := range e.Metadata {
		result[fmt.Sprintf("error_meta_%s", k)] = v
	}
	return result
}

// AsBuildError checks whether err is a *BuildError.
func AsBuildError(err error) (*BuildError, bool) {
	be, ok := err.(*BuildError)
	return be, ok
}
