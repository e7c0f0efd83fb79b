package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/metastates/pkg/states"
)

// Definitions describes owner kinds and their state types, usually loaded
// from a YAML file:
//
//	owner_kinds: [user, company]
//	models:
//	  - owner: user
//	    states:
//	      - type: kyc
//	        statuses: [pending, completed, rejected]
//	        limit: 2
//	        metadata_schema:
//	          type: object
//	          properties:
//	            name: {type: string}
//	        strict_schema: true # every property required, no extras
type Definitions struct {
	// OwnerKinds restricts the registry to these kinds when non-empty.
	OwnerKinds []string          `yaml:"owner_kinds"`
	Models     []ModelDefinition `yaml:"models"`
}

// ModelDefinition lists the state types of one owner kind.
type ModelDefinition struct {
	Owner  string            `yaml:"owner"`
	States []StateDefinition `yaml:"states"`
}

// StateDefinition describes one state type.
type StateDefinition struct {
	Type     string   `yaml:"type"`
	Statuses []string `yaml:"statuses"`
	Limit    int      `yaml:"limit"`

	// MetadataSchema is a JSON Schema written as YAML, or as a JSON string.
	MetadataSchema any `yaml:"metadata_schema"`
	// StrictSchema set to false compiles the schema as written.
	StrictSchema *bool `yaml:"strict_schema"`
}

// LoadDefinitions reads and parses a definitions file.
func LoadDefinitions(path string) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrReadDefinitions, err)
	}
	defer f.Close()
	return ParseDefinitions(f)
}

// ParseDefinitions parses definitions from r.
func ParseDefinitions(r io.Reader) (*Definitions, error) {
	var defs Definitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: document is empty", ErrInvalidDefinitions)
		}
		return nil, errors.Join(ErrInvalidDefinitions, err)
	}
	if len(defs.Models) == 0 {
		return nil, fmt.Errorf("%w: no models defined", ErrInvalidDefinitions)
	}
	return &defs, nil
}

// NewRegistry builds a registry holding every model of d.
func (d *Definitions) NewRegistry() (*states.Registry, error) {
	var opts []states.RegistryOption
	if len(d.OwnerKinds) > 0 {
		kinds := make([]states.OwnerKind, 0, len(d.OwnerKinds))
		for _, k := range d.OwnerKinds {
			kinds = append(kinds, states.OwnerKind(k))
		}
		opts = append(opts, states.WithOwnerKinds(kinds...))
	}

	reg := states.NewRegistry(opts...)
	if err := d.Apply(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Apply configures each model on reg. Every owner kind is replaced in one
// step; all models are attempted and their errors joined.
func (d *Definitions) Apply(reg *states.Registry) error {
	var errs []error
	for _, m := range d.Models {
		err := reg.ConfigureModel(states.OwnerKind(m.Owner), func(mc *states.ModelConfig) {
			for _, sd := range m.States {
				mc.StateType(sd.Type, sd.configure)
			}
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("model %q: %w", m.Owner, err))
		}
	}
	return errors.Join(errs...)
}

func (sd StateDefinition) configure(c *states.StateTypeConfig) {
	c.Statuses = append([]string(nil), sd.Statuses...)
	c.Limit = sd.Limit
	if sd.MetadataSchema != nil {
		var opts []states.SchemaOption
		if sd.StrictSchema != nil && !*sd.StrictSchema {
			opts = append(opts, states.Lenient())
		}
		c.SetSchema(sd.MetadataSchema, opts...)
	}
}
