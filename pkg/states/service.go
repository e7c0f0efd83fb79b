package states

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/metastates/pkg/logger"
	"github.com/dmitrymomot/metastates/pkg/metrics"
)

// CompletedStatus is the status checked by Service.Completed.
const CompletedStatus = "completed"

// Service is the write and query entry point. Every write goes through the
// validation pipeline; committed status changes are handed to the dispatcher.
type Service struct {
	registry   *Registry
	store      Store
	resolver   OwnerResolver
	pipeline   *Pipeline
	dispatcher *Dispatcher

	logger   *slog.Logger
	recorder metrics.Recorder
	now      func() time.Time
	newID    func() string
}

// NewService wires a registry and a store together.
func NewService(registry *Registry, store Store, opts ...ServiceOption) (*Service, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if store == nil {
		return nil, ErrNilStore
	}

	s := &Service{
		registry: registry,
		store:    store,
		logger:   logger.Discard(),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pipeline = NewPipeline(registry, store, s.resolver)
	s.dispatcher = NewDispatcher(registry, s.logger, s.recorder)
	return s, nil
}

// MustNewService is like NewService but panics on error.
func MustNewService(registry *Registry, store Store, opts ...ServiceOption) *Service {
	s, err := NewService(registry, store, opts...)
	if err != nil {
		panic(fmt.Sprintf("states: %v", err))
	}
	return s
}

// Registry returns the registry the service validates against.
func (s *Service) Registry() *Registry { return s.registry }

// Pipeline exposes the validation pipeline, e.g. to dry-run a candidate record.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// AddState validates and persists a new record for owner, then dispatches the
// callbacks matching its status.
//
// A ValidationErrors error means nothing was written. A *DispatchError means
// the record was committed and is returned alongside the error.
func (s *Service) AddState(ctx context.Context, owner Owner, stateType string, opts ...StateOption) (*Record, error) {
	if owner.Kind == "" || owner.ID == "" {
		return nil, fmt.Errorf("%w: owner reference %q is incomplete", ErrInvalidOwnerType, owner)
	}

	o := stateOptions{status: DefaultStatus}
	for _, opt := range opts {
		opt(&o)
	}

	md, err := NormalizeMetadata(o.metadata)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	rec := &Record{
		ID:            s.newID(),
		Discriminator: o.discriminator,
		Owner:         owner,
		StateType:     stateType,
		Status:        o.status,
		Metadata:      md,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.validate(ctx, rec, OpCreate); err != nil {
		return nil, err
	}

	limit, _ := s.registry.LimitFor(owner.Kind, stateType)
	if err := s.store.Create(ctx, rec, limit); err != nil {
		if errors.Is(err, ErrLimitExceeded) {
			verr := ValidationErrors{limitError(stateType, limit)}
			s.rejected(ctx, rec, verr)
			return nil, verr
		}
		return nil, fmt.Errorf("create state: %w", err)
	}

	s.recorder.IncStateCreated(string(owner.Kind), stateType, rec.Status)
	s.logger.InfoContext(ctx, "state added",
		logger.StateID(rec.ID),
		logger.OwnerKind(owner.Kind),
		logger.OwnerID(owner.ID),
		logger.StateType(stateType),
		logger.Status(rec.Status),
	)

	return rec, s.dispatcher.Dispatch(ctx, rec)
}

// UpdateStatus changes the status of an existing record. Callbacks run only
// when the persisted status actually changed.
func (s *Service) UpdateStatus(ctx context.Context, id, status string, opts ...UpdateOption) (*Record, error) {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status && o.completedAt == nil {
		return current, nil
	}

	candidate := current.Clone()
	candidate.Status = status
	if err := s.validate(ctx, candidate, OpUpdate); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, id, StatusUpdate{
		Status:      status,
		CompletedAt: o.completedAt,
		UpdatedAt:   s.timestamp(),
	})
	if err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}

	if updated.PreviousStatus == updated.Status {
		return updated, nil
	}

	s.recorder.IncTransition(updated.StateType, updated.PreviousStatus, updated.Status)
	s.logger.InfoContext(ctx, "state status changed",
		logger.StateID(updated.ID),
		logger.OwnerKind(updated.Owner.Kind),
		logger.OwnerID(updated.Owner.ID),
		logger.StateType(updated.StateType),
		logger.PreviousStatus(updated.PreviousStatus),
		logger.Status(updated.Status),
	)

	return updated, s.dispatcher.Dispatch(ctx, updated)
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.store.Get(ctx, id)
}

// Current returns the most recent record of stateType for owner, or
// ErrRecordNotFound.
func (s *Service) Current(ctx context.Context, owner Owner, stateType string) (*Record, error) {
	recs, err := s.store.List(ctx, Query{Owner: owner, StateType: stateType, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrRecordNotFound
	}
	return recs[0], nil
}

// States returns every record of stateType for owner, newest first.
func (s *Service) States(ctx context.Context, owner Owner, stateType string) ([]*Record, error) {
	return s.store.List(ctx, Query{Owner: owner, StateType: stateType})
}

// History returns every record of owner across all state types, newest first.
func (s *Service) History(ctx context.Context, owner Owner) ([]*Record, error) {
	return s.store.List(ctx, Query{Owner: owner})
}

// HasStatus reports whether the current record of stateType holds status.
func (s *Service) HasStatus(ctx context.Context, owner Owner, stateType, status string) (bool, error) {
	rec, err := s.Current(ctx, owner, stateType)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.HasStatus(status), nil
}

// Completed reports whether any record of stateType ever reached CompletedStatus.
func (s *Service) Completed(ctx context.Context, owner Owner, stateType string) (bool, error) {
	recs, err := s.store.List(ctx, Query{Owner: owner, StateType: stateType, Status: CompletedStatus, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// DeleteOwner removes the whole state history of owner. Call it when the
// owning entity is destroyed.
func (s *Service) DeleteOwner(ctx context.Context, owner Owner) (int, error) {
	n, err := s.store.DeleteOwner(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("delete owner states: %w", err)
	}
	s.logger.InfoContext(ctx, "owner states deleted",
		logger.OwnerKind(owner.Kind),
		logger.OwnerID(owner.ID),
		slog.Int("count", n),
	)
	return n, nil
}

// ResolveOwner loads the entity behind the owner of rec through the
// configured OwnerResolver.
func (s *Service) ResolveOwner(ctx context.Context, rec *Record) (any, error) {
	if s.resolver == nil {
		return nil, fmt.Errorf("%w: no owner resolver configured", ErrOwnerNotFound)
	}
	return s.resolver.Resolve(ctx, rec.Owner)
}

func (s *Service) validate(ctx context.Context, rec *Record, op Operation) error {
	err := s.pipeline.Validate(ctx, rec, op)
	if err == nil {
		return nil
	}
	if verr := ExtractValidationErrors(err); verr != nil {
		s.rejected(ctx, rec, verr)
		return verr
	}
	return fmt.Errorf("validate state: %w", err)
}

func (s *Service) rejected(ctx context.Context, rec *Record, verr ValidationErrors) {
	for _, rule := range verr.Rules() {
		s.recorder.IncValidationFailure(rec.StateType, rule)
	}
	s.logger.DebugContext(ctx, "state rejected",
		logger.OwnerKind(rec.Owner.Kind),
		logger.OwnerID(rec.Owner.ID),
		logger.StateType(rec.StateType),
		logger.Status(rec.Status),
		logger.Rules(verr.Rules()),
		logger.Error(verr),
	)
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
