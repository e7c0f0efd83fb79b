package states

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/metastates/pkg/metrics"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for rejections, transitions and callback
// failures. Nil is ignored.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. Nil is ignored.
func WithRecorder(r metrics.Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the record id generator (UUIDv4 by default).
func WithIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithOwnerResolver enables the owner_exists rule and Service.ResolveOwner.
func WithOwnerResolver(r OwnerResolver) ServiceOption {
	return func(s *Service) {
		s.resolver = r
	}
}

// StateOption configures a record created by AddState.
type StateOption func(*stateOptions)

type stateOptions struct {
	status        string
	metadata      map[string]any
	discriminator string
}

// WithStatus sets the initial status. Defaults to DefaultStatus.
func WithStatus(status string) StateOption {
	return func(o *stateOptions) { o.status = status }
}

// WithMetadata sets the record metadata.
func WithMetadata(md map[string]any) StateOption {
	return func(o *stateOptions) { o.metadata = md }
}

// WithDiscriminator tags the record with a sub-type name.
func WithDiscriminator(name string) StateOption {
	return func(o *stateOptions) { o.discriminator = name }
}

// UpdateOption configures UpdateStatus.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	completedAt *time.Time
}

// WithCompletedAt stamps completed_at on the record.
func WithCompletedAt(t time.Time) UpdateOption {
	return func(o *updateOptions) {
		t = t.UTC().Truncate(time.Microsecond)
		o.completedAt = &t
	}
}
