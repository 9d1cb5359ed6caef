package runtime

import (
	"context"
	"sync"
)

// Fake is an in-memory runtime for tests. Error injection via LoadErr and
// UnloadErr; every call is recorded.
type Fake struct {
	mu        sync.Mutex
	path      string
	companion string

	LoadErr   error
	UnloadErr error

	Loads   []string
	Unloads int
}

// NewFake returns an empty fake runtime.
func NewFake() *Fake { return &Fake{} }

func (f *Fake) IsModelLoaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path != ""
}

func (f *Fake) LoadedModelPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

// CompanionPath reports the projector bound with the current model.
func (f *Fake) CompanionPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.companion
}

func (f *Fake) Load(ctx context.Context, path, companionPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.path = path
	f.companion = companionPath
	f.Loads = append(f.Loads, path)
	return nil
}

func (f *Fake) Unload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Unloads++
	if f.UnloadErr != nil {
		return f.UnloadErr
	}
	f.path = ""
	f.companion = ""
	return nil
}

// SetLoaded primes residency without going through Load, for sync tests.
func (f *Fake) SetLoaded(path, companionPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.path = path
	f.companion = companionPath
}
