package states

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"sync"
)

var ownerKindPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`)

// Registry is the source of truth for model configuration and callbacks.
// It is safe for concurrent use; the lock is held only while maps are read or
// written, never while callback actions run.
type Registry struct {
	mu sync.RWMutex

	kinds  map[OwnerKind]struct{} // empty means any well-formed kind is accepted
	models map[OwnerKind]*ModelConfig

	callbacks map[string]*Callback
	order     []string
	nextID    int
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithOwnerKinds restricts ConfigureModel to the given owner kinds.
func WithOwnerKinds(kinds ...OwnerKind) RegistryOption {
	return func(r *Registry) {
		for _, k := range kinds {
			r.kinds[k] = struct{}{}
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		kinds:     make(map[OwnerKind]struct{}),
		models:    make(map[OwnerKind]*ModelConfig),
		callbacks: make(map[string]*Callback),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidOwnerKind reports whether kind may be configured in this registry.
func (r *Registry) ValidOwnerKind(kind OwnerKind) bool {
	if !ownerKindPattern.MatchString(string(kind)) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.kinds) == 0 {
		return true
	}
	_, ok := r.kinds[kind]
	return ok
}

// ConfigureModel builds a fresh ModelConfig for kind and, if it is valid,
// replaces any previous configuration of that kind in one step. On error the
// previous configuration is left untouched.
func (r *Registry) ConfigureModel(kind OwnerKind, build func(*ModelConfig)) error {
	if !r.ValidOwnerKind(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidOwnerType, kind)
	}
	if build == nil {
		return fmt.Errorf("%w: builder is required", ErrInvalidConfiguration)
	}

	m := newModelConfig(kind)
	build(m)
	if err := m.validate(); err != nil {
		return err
	}
	frozen := m.freeze()

	r.mu.Lock()
	r.models[kind] = frozen
	r.mu.Unlock()
	return nil
}

// MustConfigureModel is like ConfigureModel but panics on error.
func (r *Registry) MustConfigureModel(kind OwnerKind, build func(*ModelConfig)) {
	if err := r.ConfigureModel(kind, build); err != nil {
		panic(fmt.Sprintf("states: %v", err))
	}
}

// OwnerKinds returns the configured owner kinds, sorted.
func (r *Registry) OwnerKinds() []OwnerKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]OwnerKind, 0, len(r.models))
	for k := range r.models {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func (r *Registry) lookup(kind OwnerKind, stateType string) (StateTypeConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[kind]
	if !ok {
		return StateTypeConfig{}, false
	}
	cfg, ok := m.types[stateType]
	return cfg, ok
}

// StateTypeConfig returns a copy of the configuration of stateType under kind.
func (r *Registry) StateTypeConfig(kind OwnerKind, stateType string) (StateTypeConfig, bool) {
	cfg, ok := r.lookup(kind, stateType)
	if !ok {
		return StateTypeConfig{}, false
	}
	return cfg.clone(), true
}

// StatusAllowed reports whether status is configured for stateType under kind.
func (r *Registry) StatusAllowed(kind OwnerKind, stateType, status string) bool {
	cfg, ok := r.lookup(kind, stateType)
	return ok && cfg.Allows(status)
}

// StateTypeKnown reports whether stateType is configured under kind.
func (r *Registry) StateTypeKnown(kind OwnerKind, stateType string) bool {
	_, ok := r.lookup(kind, stateType)
	return ok
}

// LimitFor returns the cardinality limit, if one is configured.
func (r *Registry) LimitFor(kind OwnerKind, stateType string) (int, bool) {
	cfg, ok := r.lookup(kind, stateType)
	if !ok || !cfg.HasLimit() {
		return 0, false
	}
	return cfg.Limit, true
}

// MetadataSchemaFor returns the metadata schema, if one is configured.
func (r *Registry) MetadataSchemaFor(kind OwnerKind, stateType string) (*Schema, bool) {
	cfg, ok := r.lookup(kind, stateType)
	if !ok || cfg.Schema == nil {
		return nil, false
	}
	return cfg.Schema, true
}

// StateTypes returns the state types of kind in declaration order.
func (r *Registry) StateTypes(kind OwnerKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[kind]
	if !ok {
		return nil
	}
	return slices.Clone(m.order)
}

// Statuses returns the allowed statuses of stateType under kind.
func (r *Registry) Statuses(kind OwnerKind, stateType string) []string {
	cfg, ok := r.lookup(kind, stateType)
	if !ok {
		return nil
	}
	return slices.Clone(cfg.Statuses)
}

// On registers a callback for stateType. Without WithID a synthetic id
// ("callback_N") is generated.
func (r *Registry) On(stateType string, action Action, opts ...CallbackOption) (*Callback, error) {
	cb, err := newCallback(stateType, action, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb.id == "" {
		r.nextID++
		cb.id = "callback_" + strconv.Itoa(r.nextID)
	}
	if _, exists := r.callbacks[cb.id]; !exists {
		r.order = append(r.order, cb.id)
	}
	r.callbacks[cb.id] = cb
	return cb, nil
}

// MustOn is like On but panics on error.
func (r *Registry) MustOn(stateType string, action Action, opts ...CallbackOption) *Callback {
	cb, err := r.On(stateType, action, opts...)
	if err != nil {
		panic(fmt.Sprintf("states: %v", err))
	}
	return cb
}

// Off removes the callback registered under id. It reports whether one was removed.
func (r *Registry) Off(id string) bool {
	id = NormalizeCallbackID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.callbacks[id]; !ok {
		return false
	}
	r.removeLocked(id)
	return true
}

// Remove removes every callback equal to cb (see Callback.Equal) and returns
// how many were removed. Capturing closures are only equal to themselves, so
// of several callbacks built from one function literal only cb goes.
func (r *Registry) Remove(cb *Callback) int {
	if cb == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, id := range slices.Clone(r.order) {
		if r.callbacks[id].Equal(cb) {
			r.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Callback returns the callback registered under id.
func (r *Registry) Callback(id string) (*Callback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.callbacks[NormalizeCallbackID(id)]
	return cb, ok
}

// Callbacks returns all registered callbacks in registration order.
func (r *Registry) Callbacks() []*Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Callback, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.callbacks[id])
	}
	return out
}

// MatchingCallbacks returns the live callbacks matching rec, in registration order.
func (r *Registry) MatchingCallbacks(rec *Record) []*Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Callback
	for _, id := range r.order {
		cb := r.callbacks[id]
		if !cb.Expired() && cb.Matches(rec) {
			out = append(out, cb)
		}
	}
	return out
}

// ClearCallbacks removes every callback and keeps the model configuration.
func (r *Registry) ClearCallbacks() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = make(map[string]*Callback)
	r.order = nil
}

// Reset drops all model configuration and callbacks.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[OwnerKind]*ModelConfig)
	r.callbacks = make(map[string]*Callback)
	r.order = nil
	r.nextID = 0
}

// evict removes cb if it is still the callback registered under its id.
// A newer callback registered under the same id is left alone.
func (r *Registry) evict(cb *Callback) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.callbacks[cb.id]; !ok || current != cb {
		return false
	}
	r.removeLocked(cb.id)
	return true
}

func (r *Registry) removeLocked(id string) {
	delete(r.callbacks, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}
