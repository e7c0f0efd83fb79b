package states

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/metastates/pkg/logger"
	"github.com/dmitrymomot/metastates/pkg/metrics"
)

// Dispatcher runs the callbacks matching a committed status change.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewDispatcher creates a dispatcher over registry. Nil log and recorder
// fall back to a discard logger and metrics.NoopRecorder.
func NewDispatcher(registry *Registry, log *slog.Logger, recorder metrics.Recorder) *Dispatcher {
	if log == nil {
		log = logger.Discard()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Dispatcher{registry: registry, logger: log, recorder: recorder}
}

// Dispatch snapshots the callbacks matching rec, runs each one in registration
// order and then evicts the ones that reached their execution cap. A failing
// action does not stop the others; all failures come back as one *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *Record) error {
	matched := d.registry.MatchingCallbacks(rec)
	if len(matched) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		d.recorder.ObserveDispatchDuration(rec.StateType, elapsed)
		d.logger.DebugContext(ctx, "callbacks dispatched",
			logger.StateID(rec.ID),
			logger.StateType(rec.StateType),
			slog.Int("callbacks", len(matched)),
			logger.Duration(elapsed),
		)
	}()

	var failures []*CallbackError
	for _, cb := range matched {
		err := cb.call(ctx, rec.Clone())
		switch {
		case err == nil:
			d.recorder.IncCallbackResult(rec.StateType, metrics.OutcomeSuccess)
		case errors.Is(err, errCallbackExhausted):
			d.recorder.IncCallbackResult(rec.StateType, metrics.OutcomeSkipped)
			d.logger.DebugContext(ctx, "callback skipped, no executions left",
				logger.CallbackID(cb.ID()),
				logger.StateID(rec.ID),
			)
		default:
			d.recorder.IncCallbackResult(rec.StateType, metrics.OutcomeFailure)
			d.logger.ErrorContext(ctx, "callback failed",
				logger.CallbackID(cb.ID()),
				logger.StateID(rec.ID),
				logger.StateType(rec.StateType),
				logger.Status(rec.Status),
				logger.Error(err),
			)
			failures = append(failures, &CallbackError{
				CallbackID: cb.ID(),
				StateType:  rec.StateType,
				Err:        err,
			})
		}
	}

	d.evictExpired(ctx, matched)

	if len(failures) > 0 {
		return &DispatchError{RecordID: rec.ID, Errors: failures}
	}
	return nil
}

func (d *Dispatcher) evictExpired(ctx context.Context, callbacks []*Callback) {
	for _, cb := range callbacks {
		if !cb.Expired() {
			continue
		}
		if d.registry.evict(cb) {
			d.recorder.IncCallbackEvicted(cb.StateType())
			d.logger.InfoContext(ctx, "callback reached its execution limit and was removed",
				logger.CallbackID(cb.ID()),
				logger.StateType(cb.StateType()),
			)
		}
	}
}
