package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/soelive/internal/report"
	"github.com/MrWong99/soelive/pkg/audio"
	"github.com/MrWong99/soelive/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	s2s      map[string]func(ProviderEntry) (s2s.Provider, error)
	audio    map[string]func(ProviderEntry) (audio.Platform, error)
	refiners map[string]func(ProviderEntry) (report.Refiner, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		s2s:      make(map[string]func(ProviderEntry) (s2s.Provider, error)),
		audio:    make(map[string]func(ProviderEntry) (audio.Platform, error)),
		refiners: make(map[string]func(ProviderEntry) (report.Refiner, error)),
	}
}

// RegisterS2S registers an S2S provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterS2S(name string, factory func(ProviderEntry) (s2s.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s2s[name] = factory
}

// RegisterAudio registers an audio platform factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Platform, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterRefiner registers a report refiner factory under name.
func (r *Registry) RegisterRefiner(name string, factory func(ProviderEntry) (report.Refiner, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refiners[name] = factory
}

// CreateS2S instantiates an S2S provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateS2S(entry ProviderEntry) (s2s.Provider, error) {
	return create(r, r.s2s, "s2s", entry)
}

// CreateAudio instantiates an audio platform using the factory registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Platform, error) {
	return create(r, r.audio, "audio", entry)
}

// CreateRefiner instantiates a refiner using the factory registered under entry.Name.
func (r *Registry) CreateRefiner(entry ProviderEntry) (report.Refiner, error) {
	return create(r, r.refiners, "refiner", entry)
}

// Names returns the sorted names registered for kind ("s2s", "audio" or
// "refiner").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "s2s":
		names = keys(r.s2s)
	case "audio":
		names = keys(r.audio)
	case "refiner":
		names = keys(r.refiners)
	}
	slices.Sort(names)
	return names
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
