package galaxy

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned when a component is used after its Dispose
// method ran. It always indicates a caller bug, so it is returned
// synchronously rather than reported through a sink.
var ErrDisposed = errors.New("galaxy: component disposed")

// ErrorSink receives errors that occur on an asynchronous path, where a
// return value cannot reach the caller. Sinks must be cheap and must not
// call back into the reporting component.
//
// A nil sink is valid and discards everything.
type ErrorSink func(error)

// Report forwards err to the sink if both are non-nil.
func (s ErrorSink) Report(err error) {
	if s != nil && err != nil {
		s(err)
	}
}

// ConfigError describes an invalid timeline or component configuration.
// It is a programmer error: it is returned synchronously from Initialize,
// never deferred to Play.
type ConfigError struct {
	// Field names the offending configuration field.
	Field string

	// Reason describes the violated constraint.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("galaxy: invalid config: %s: %s", e.Field, e.Reason)
}

// GPUInitError indicates that GPU context creation failed. It is fatal:
// the loading sequence cannot run, and the orchestrator offers a manual
// stub handoff instead of retrying.
type GPUInitError struct {
	Err error
}

func (e *GPUInitError) Error() string {
	return fmt.Sprintf("galaxy: GPU context creation failed: %v", e.Err)
}

func (e *GPUInitError) Unwrap() error { return e.Err }

// AssetLoadError indicates that the essential asset load pass failed.
// It is recoverable: the orchestrator rolls back its begin latch so the
// caller may retry the whole sequence.
type AssetLoadError struct {
	// Asset names the asset being loaded when the failure occurred,
	// when known.
	Asset string

	Err error
}

func (e *AssetLoadError) Error() string {
	if e.Asset == "" {
		return fmt.Sprintf("galaxy: asset load failed: %v", e.Err)
	}
	return fmt.Sprintf("galaxy: asset load failed: %s: %v", e.Asset, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// AnimationError indicates that the particle explosion animation failed.
// It is recoverable: the orchestrator substitutes a shape-valid stub
// particle state and still completes the handoff, so downstream code is
// never left waiting.
type AnimationError struct {
	// Stage names the animation stage that failed.
	Stage string

	Err error
}

func (e *AnimationError) Error() string {
	return fmt.Sprintf("galaxy: animation failed during %s: %v", e.Stage, e.Err)
}

func (e *AnimationError) Unwrap() error { return e.Err }

// Recoverable reports whether the loading sequence can continue (possibly
// degraded) after err. Only GPU context creation failures are fatal;
// configuration and disposal errors are caller bugs and are not
// classified here.
func Recoverable(err error) bool {
	var gpuErr *GPUInitError
	return !errors.As(err, &gpuErr)
}
