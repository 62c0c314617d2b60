package tool

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// LoadedTool is a descriptor bound to its implementation.
type LoadedTool struct {
	Descriptor Descriptor
	Handler    Handler
}

type registration struct {
	desc    Descriptor
	factory Factory
}

// Registry is a directory of tool descriptors with lazily bound handlers.
// Discovery never runs a factory; Load runs it once per name and caches the
// result until Reset.
type Registry struct {
	log zerolog.Logger

	mu      sync.RWMutex
	order   []string
	entries map[string]registration
	loaded  map[string]*LoadedTool

	group singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:     log.With().Str("component", "registry").Logger(),
		entries: make(map[string]registration),
		loaded:  make(map[string]*LoadedTool),
	}
}

// Register adds a tool. Names are unique for the registry lifetime.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if desc.IsZero() {
		return fmt.Errorf("%w: descriptor is empty", ErrInvalidDescriptor)
	}
	if factory == nil {
		return fmt.Errorf("%w: tool %s has no factory", ErrInvalidDescriptor, desc.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.Name()]; exists {
		return fmt.Errorf("%w: tool %s already registered", ErrInvalidDescriptor, desc.Name())
	}
	r.entries[desc.Name()] = registration{desc: desc, factory: factory}
	r.order = append(r.order, desc.Name())
	return nil
}

// MustRegister is Register for static tool tables.
func (r *Registry) MustRegister(desc Descriptor, factory Factory) {
	if err := r.Register(desc, factory); err != nil {
		panic(err)
	}
}

// Discover returns descriptors in registration order. An empty category
// selects every tool.
func (r *Registry) Discover(category string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		desc := r.entries[name].desc
		if category != "" && desc.Category() != category {
			continue
		}
		out = append(out, desc)
	}
	return out
}

// Search matches query case-insensitively against names and descriptions.
func (r *Registry) Search(query string) []Descriptor {
	needle := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0)
	for _, name := range r.order {
		desc := r.entries[name].desc
		if strings.Contains(strings.ToLower(desc.Name()), needle) ||
			strings.Contains(strings.ToLower(desc.Description()), needle) {
			out = append(out, desc)
		}
	}
	return out
}

// Metadata returns the descriptor for name without loading it.
func (r *Registry) Metadata(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return entry.desc, nil
}

// Load binds the tool's implementation on first use and returns the cached
// binding afterwards. Concurrent first loads of one name share a single
// factory call.
func (r *Registry) Load(name string) (*LoadedTool, error) {
	r.mu.RLock()
	entry, known := r.entries[name]
	cached := r.loaded[name]
	r.mu.RUnlock()

	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if cached != nil {
		return cached, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		r.mu.RLock()
		existing := r.loaded[name]
		r.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		started := time.Now()
		handler, err := runFactory(entry.factory)
		if err != nil {
			r.log.Warn().Str("tool", name).Err(err).Msg("load failed")
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailure, name, err)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if existing := r.loaded[name]; existing != nil {
			return existing, nil
		}
		lt := &LoadedTool{Descriptor: entry.desc, Handler: handler}
		r.loaded[name] = lt
		r.log.Debug().Str("tool", name).Dur("took", time.Since(started)).Msg("tool loaded")
		return lt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*LoadedTool), nil
}

func runFactory(factory Factory) (h Handler, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			h, err = nil, fmt.Errorf("factory panicked: %v", rec)
		}
	}()
	h, err = factory()
	if err == nil && h == nil {
		err = fmt.Errorf("factory returned no handler")
	}
	return h, err
}

// Loaded lists the names currently bound, sorted.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Categories lists the distinct categories in first-registration order.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, name := range r.order {
		c := r.entries[name].desc.Category()
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Reset drops every cached binding. Registrations are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.loaded)
}
