package states

import (
	"errors"
	"fmt"
	"slices"
)

// StateTypeConfig describes one state type of one owner kind.
// It is immutable once registered; the registry hands out copies.
type StateTypeConfig struct {
	name      string
	schemaErr error

	// Statuses is the ordered set of allowed statuses. Must not be empty.
	Statuses []string
	// Limit caps the number of records of this type per owner. Zero means unbounded.
	Limit int
	// Schema validates non-empty metadata when set.
	Schema *Schema
}

// Name returns the state type name.
func (c StateTypeConfig) Name() string {
	return c.name
}

// Allows reports whether status is one of the configured statuses.
func (c StateTypeConfig) Allows(status string) bool {
	return slices.Contains(c.Statuses, status)
}

// HasLimit reports whether a cardinality limit is configured.
func (c StateTypeConfig) HasLimit() bool {
	return c.Limit > 0
}

// SetSchema compiles doc and assigns it as the metadata schema. The schema is
// strict unless Lenient is passed (see CompileSchema).
// Compilation errors are reported by ConfigureModel.
func (c *StateTypeConfig) SetSchema(doc any, opts ...SchemaOption) {
	s, err := CompileSchema(doc, opts...)
	if err != nil {
		c.Schema = nil
		c.schemaErr = err
		return
	}
	c.Schema = s
	c.schemaErr = nil
}

func (c StateTypeConfig) clone() StateTypeConfig {
	out := c
	out.Statuses = dedupe(c.Statuses)
	return out
}

func (c StateTypeConfig) validate() error {
	var errs []error
	if c.name == "" {
		errs = append(errs, errors.New("state type name is required"))
	}
	if len(c.Statuses) == 0 {
		errs = append(errs, fmt.Errorf("state type %q: at least one status is required", c.name))
	}
	for _, s := range c.Statuses {
		if s == "" {
			errs = append(errs, fmt.Errorf("state type %q: status cannot be empty", c.name))
			break
		}
	}
	if c.Limit < 0 {
		errs = append(errs, fmt.Errorf("state type %q: limit must be positive, got %d", c.name, c.Limit))
	}
	if c.schemaErr != nil {
		errs = append(errs, fmt.Errorf("state type %q: %w", c.name, c.schemaErr))
	}
	return errors.Join(errs...)
}

// ModelConfig holds the state types of one owner kind, in declaration order.
type ModelConfig struct {
	kind  OwnerKind
	order []string
	types map[string]StateTypeConfig
}

func newModelConfig(kind OwnerKind) *ModelConfig {
	return &ModelConfig{
		kind:  kind,
		types: make(map[string]StateTypeConfig),
	}
}

// OwnerKind returns the owner kind being configured.
func (m *ModelConfig) OwnerKind() OwnerKind {
	return m.kind
}

// StateType declares a state type. The optional builder mutates its config.
// Declaring the same name twice replaces the earlier declaration.
func (m *ModelConfig) StateType(name string, build ...func(*StateTypeConfig)) {
	cfg := StateTypeConfig{name: name}
	for _, fn := range build {
		if fn != nil {
			fn(&cfg)
		}
	}

	if _, exists := m.types[name]; !exists {
		m.order = append(m.order, name)
	}
	m.types[name] = cfg
}

// StateTypes returns the declared state type names in declaration order.
func (m *ModelConfig) StateTypes() []string {
	return slices.Clone(m.order)
}

// Lookup returns the config of a declared state type.
func (m *ModelConfig) Lookup(name string) (StateTypeConfig, bool) {
	cfg, ok := m.types[name]
	if !ok {
		return StateTypeConfig{}, false
	}
	return cfg.clone(), true
}

func (m *ModelConfig) validate() error {
	var errs []error
	for _, name := range m.order {
		if err := m.types[name].validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: owner kind %q: %w", ErrInvalidConfiguration, m.kind, errors.Join(errs...))
}

// freeze copies the config so later builder mutations cannot leak into the registry.
func (m *ModelConfig) freeze() *ModelConfig {
	out := newModelConfig(m.kind)
	for _, name := range m.order {
		out.order = append(out.order, name)
		out.types[name] = m.types[name].clone()
	}
	return out
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
