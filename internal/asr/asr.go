// Package asr implements ASRProvider (C4): the transcribe/score capability
// set the matcher drives, plus a singleton registry keyed by
// (backend, model, device) so heavy backends are loaded at most once per
// process.
package asr

import (
	"context"
	"fmt"
	"sync"

	"mkvmatch/internal/model"
)

// Provider is the capability set an ASR backend exposes to the matcher.
type Provider interface {
	// Load prepares the backend (model download, process warmup, …). It is
	// idempotent and safe to call multiple times.
	Load(ctx context.Context) error
	// Transcribe converts a WAV file to a Transcript. On failure it returns
	// an empty Transcript rather than propagating — the matcher treats an
	// empty Text as "segment unusable".
	Transcribe(ctx context.Context, audioPath string) model.Transcript
	// Score compares a normalized transcript against a normalized reference
	// slice, returning a value in [0,1], monotone in similarity.
	Score(transcript, reference string) float64
}

// Key identifies a cached backend instance.
type Key struct {
	Backend string
	Model   string
	Device  string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Backend, k.Model, k.Device)
}

// Registry is a mutex-guarded, process-wide cache of loaded providers,
// keyed by (backend, model, device) so two videos sharing a backend never
// pay the load cost twice.
type Registry struct {
	mu        sync.Mutex
	providers map[Key]Provider
	loadOnce  map[Key]*sync.Once
	loadErr   map[Key]error
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Key]Provider),
		loadOnce:  make(map[Key]*sync.Once),
		loadErr:   make(map[Key]error),
	}
}

// GetOrLoad returns the provider for key, constructing it via factory and
// loading it exactly once if it is not already cached.
func (r *Registry) GetOrLoad(ctx context.Context, key Key, factory func() Provider) (Provider, error) {
	r.mu.Lock()
	provider, ok := r.providers[key]
	if !ok {
		provider = factory()
		r.providers[key] = provider
		r.loadOnce[key] = &sync.Once{}
	}
	once := r.loadOnce[key]
	r.mu.Unlock()

	once.Do(func() {
		loadErr := provider.Load(ctx)
		r.mu.Lock()
		r.loadErr[key] = loadErr
		r.mu.Unlock()
	})

	r.mu.Lock()
	err := r.loadErr[key]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// DefaultRegistry is the process-wide singleton registry.
var DefaultRegistry = NewRegistry()
