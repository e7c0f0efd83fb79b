package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/metastates/pkg/logger"
	"github.com/dmitrymomot/metastates/pkg/states"
)

// Publisher is the subset of *nats.Conn used by Notifier.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Event is the payload published for one transition.
type Event struct {
	ID             string          `json:"id"`
	OwnerKind      string          `json:"owner_kind"`
	OwnerID        string          `json:"owner_id"`
	StateType      string          `json:"state_type"`
	Discriminator  string          `json:"discriminator,omitempty"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	Metadata       states.Metadata `json:"metadata"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewEvent builds the event for rec.
func NewEvent(rec *states.Record) Event {
	md := rec.Metadata
	if md == nil {
		md = states.Metadata{}
	}
	return Event{
		ID:             rec.ID,
		OwnerKind:      string(rec.Owner.Kind),
		OwnerID:        rec.Owner.ID,
		StateType:      rec.StateType,
		Discriminator:  rec.Discriminator,
		Status:         rec.Status,
		PreviousStatus: rec.PreviousStatus,
		Metadata:       md,
		CompletedAt:    rec.CompletedAt,
		OccurredAt:     rec.UpdatedAt,
	}
}

// Notifier publishes transition events.
type Notifier struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSubjectPrefix sets the first subject token. Defaults to "metastates".
func WithSubjectPrefix(prefix string) Option {
	return func(n *Notifier) {
		if prefix = strings.Trim(prefix, "."); prefix != "" {
			n.prefix = prefix
		}
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.logger = log
		}
	}
}

// New creates a Notifier on top of pub, typically a *nats.Conn.
func New(pub Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		pub:    pub,
		prefix: "metastates",
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subject returns the subject rec is published on.
func (n *Notifier) Subject(rec *states.Record) string {
	return strings.Join([]string{
		n.prefix,
		subjectToken(string(rec.Owner.Kind)),
		subjectToken(rec.StateType),
		subjectToken(rec.Status),
	}, ".")
}

// Publish sends the event of rec.
func (n *Notifier) Publish(ctx context.Context, rec *states.Record) error {
	if n.pub == nil {
		return ErrNilPublisher
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NewEvent(rec))
	if err != nil {
		return errors.Join(ErrPublish, err)
	}

	subject := n.Subject(rec)
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.ErrorContext(ctx, "transition event not published",
			slog.String("subject", subject),
			logger.StateID(rec.ID),
			logger.Error(err),
		)
		return errors.Join(ErrPublish, err)
	}

	n.logger.DebugContext(ctx, "transition event published",
		slog.String("subject", subject),
		logger.StateID(rec.ID),
		logger.Status(rec.Status),
	)
	return nil
}

// Action adapts Publish to a callback action.
func (n *Notifier) Action() states.Action {
	return n.Publish
}

// subjectToken replaces characters NATS reserves in subject tokens.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
