// Package runtime abstracts the inference engine a slot binds a model into.
package runtime

import "context"

// InferenceRuntime is the per-slot engine surface the coordinator drives.
// Implementations must be safe for use from a single goroutine at a time;
// the coordinator serializes slot operations.
type InferenceRuntime interface {
	IsModelLoaded() bool
	// LoadedModelPath returns the path of the resident model, or "" when
	// nothing is loaded.
	LoadedModelPath() string
	// Load binds the model at path. companionPath carries the vision
	// projector when the model has one, "" otherwise.
	Load(ctx context.Context, path, companionPath string) error
	Unload(ctx context.Context) error
}

// Options configures the llama-backed runtime.
type Options struct {
	ContextSize int
	Threads     int
}

// unavailableError signals the engine is not compiled into this binary.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an engine-missing error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing inference engine.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
