package states

import (
	"context"
	"errors"
	"fmt"
)

// Operation tells the pipeline which kind of write is being validated.
type Operation int

const (
	OpCreate Operation = iota
	OpUpdate
)

func (op Operation) String() string {
	if op == OpUpdate {
		return "update"
	}
	return "create"
}

// Rule names, reported in ValidationError.Rule.
const (
	RuleStatusConfigured    = "status_is_configured"
	RuleStateTypeConfigured = "state_type_is_configured"
	RuleLimitNotExceeded    = "state_limit_not_exceeded"
	RuleMetadataSchema      = "metadata_conforms_to_schema"
	RuleOwnerExists         = "owner_exists"
)

// Rule is one check of the pipeline. Check returns a non-nil *ValidationError
// when the candidate is rejected, or an error when the check itself could not
// run (for example the store is unreachable).
type Rule struct {
	Name  string
	Check func(ctx context.Context, rec *Record, op Operation) (*ValidationError, error)
}

// Pipeline runs every rule against a candidate record and collects all failures.
type Pipeline struct {
	registry *Registry
	store    Store
	resolver OwnerResolver
	rules    []Rule
}

// NewPipeline builds the standard rule set. The owner_exists rule is added
// only when resolver is non-nil.
func NewPipeline(registry *Registry, store Store, resolver OwnerResolver) *Pipeline {
	p := &Pipeline{registry: registry, store: store, resolver: resolver}
	p.rules = []Rule{
		{Name: RuleStatusConfigured, Check: p.statusIsConfigured},
		{Name: RuleStateTypeConfigured, Check: p.stateTypeIsConfigured},
		{Name: RuleLimitNotExceeded, Check: p.limitNotExceeded},
		{Name: RuleMetadataSchema, Check: p.metadataConformsToSchema},
	}
	if resolver != nil {
		p.rules = append(p.rules, Rule{Name: RuleOwnerExists, Check: p.ownerExists})
	}
	return p
}

// Rules returns the names of the rules in evaluation order.
func (p *Pipeline) Rules() []string {
	names := make([]string, 0, len(p.rules))
	for _, r := range p.rules {
		names = append(names, r.Name)
	}
	return names
}

// Validate returns nil, a ValidationErrors listing every failed rule, or the
// first error a rule could not recover from.
func (p *Pipeline) Validate(ctx context.Context, rec *Record, op Operation) error {
	var failures ValidationErrors
	for _, rule := range p.rules {
		verr, err := rule.Check(ctx, rec, op)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if verr != nil {
			if verr.Rule == "" {
				verr.Rule = rule.Name
			}
			failures = append(failures, verr)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return failures
}

func (p *Pipeline) statusIsConfigured(_ context.Context, rec *Record, _ Operation) (*ValidationError, error) {
	if p.registry.StatusAllowed(rec.Owner.Kind, rec.StateType, rec.Status) {
		return nil, nil
	}
	return &ValidationError{
		Field:   "status",
		Message: "is not configured",
		Err:     ErrInvalidStatus,
	}, nil
}

func (p *Pipeline) stateTypeIsConfigured(_ context.Context, rec *Record, _ Operation) (*ValidationError, error) {
	if p.registry.StateTypeKnown(rec.Owner.Kind, rec.StateType) {
		return nil, nil
	}
	return &ValidationError{
		Field:   "state_type",
		Message: "is not configured",
		Err:     ErrUnknownStateType,
	}, nil
}

func (p *Pipeline) limitNotExceeded(ctx context.Context, rec *Record, op Operation) (*ValidationError, error) {
	if op != OpCreate {
		return nil, nil
	}
	limit, ok := p.registry.LimitFor(rec.Owner.Kind, rec.StateType)
	if !ok {
		return nil, nil
	}

	count, err := p.store.Count(ctx, rec.Owner, rec.StateType)
	if err != nil {
		return nil, err
	}
	if count < limit {
		return nil, nil
	}
	return limitError(rec.StateType, limit), nil
}

func (p *Pipeline) metadataConformsToSchema(_ context.Context, rec *Record, _ Operation) (*ValidationError, error) {
	if len(rec.Metadata) == 0 {
		return nil, nil
	}
	schema, ok := p.registry.MetadataSchemaFor(rec.Owner.Kind, rec.StateType)
	if !ok {
		return nil, nil
	}

	err := schema.Validate(rec.Metadata)
	if err == nil {
		return nil, nil
	}
	var sv *SchemaViolationError
	if !errors.As(err, &sv) {
		return nil, err
	}
	return &ValidationError{
		Field:   "metadata",
		Message: "does not conform to schema: " + sv.Detail,
		Err:     ErrSchemaViolation,
	}, nil
}

func (p *Pipeline) ownerExists(ctx context.Context, rec *Record, _ Operation) (*ValidationError, error) {
	_, err := p.resolver.Resolve(ctx, rec.Owner)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, ErrOwnerNotFound):
		return &ValidationError{
			Field:   "owner",
			Message: fmt.Sprintf("%s does not exist", rec.Owner),
			Err:     ErrOwnerNotFound,
		}, nil
	default:
		return nil, err
	}
}

// limitError is shared by the pipeline and by writes that lose the race
// against a concurrent insert.
func limitError(stateType string, limit int) *ValidationError {
	return &ValidationError{
		Rule:    RuleLimitNotExceeded,
		Field:   "base",
		Message: fmt.Sprintf("maximum number of %s states (%d) reached", stateType, limit),
		Err:     ErrLimitExceeded,
	}
}
