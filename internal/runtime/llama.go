//go:build llama

package runtime

import (
	"context"
	"errors"

	llama "github.com/go-skynet/go-llama.cpp"
)

// Llama binds models in-process through go-llama.cpp.
type Llama struct {
	opts Options

	model *llama.LLama
	path  string
}

// NewLlama returns the cgo-backed runtime.
func NewLlama(opts Options) *Llama {
	if opts.ContextSize <= 0 {
		opts.ContextSize = 2048
	}
	return &Llama{opts: opts}
}

func (r *Llama) IsModelLoaded() bool { return r.model != nil }

func (r *Llama) LoadedModelPath() string { return r.path }

func (r *Llama) Load(ctx context.Context, path, companionPath string) error {
	if path == "" {
		return errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.model != nil {
		if err := r.Unload(ctx); err != nil {
			return err
		}
	}
	// companionPath is tracked for reporting; go-llama.cpp loads the
	// projector from the model directory when present.
	m, err := llama.New(path, llama.SetContext(r.opts.ContextSize))
	if err != nil {
		return err
	}
	r.model = m
	r.path = path
	return nil
}

func (r *Llama) Unload(ctx context.Context) error {
	if r.model == nil {
		return nil
	}
	r.model.Free()
	r.model = nil
	r.path = ""
	return nil
}
