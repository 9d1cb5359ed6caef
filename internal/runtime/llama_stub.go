//go:build !llama

package runtime

import "context"

// This stub keeps default builds CGO-free. The real engine lives in
// llama.go behind the 'llama' build tag.

// Llama is the no-CGO stand-in; Load fails fast.
type Llama struct {
	opts Options
}

// NewLlama returns the stub runtime.
func NewLlama(opts Options) *Llama { return &Llama{opts: opts} }

func (r *Llama) IsModelLoaded() bool { return false }

func (r *Llama) LoadedModelPath() string { return "" }

func (r *Llama) Load(ctx context.Context, path, companionPath string) error {
	return ErrUnavailable("llama support not built (missing 'llama' build tag)")
}

func (r *Llama) Unload(ctx context.Context) error { return nil }
