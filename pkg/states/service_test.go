package states_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/metastates/pkg/states"
)

var (
	alice = states.Owner{Kind: "user", ID: "alice"}
	bob   = states.Owner{Kind: "user", ID: "bob"}
)

const kycSchema = `{
	"type": "object",
	"required": ["name", "age"],
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer", "minimum": 18}
	}
}`

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestService(t *testing.T, opts ...states.ServiceOption) (*states.Service, *states.Registry) {
	t.Helper()

	reg := states.NewRegistry()
	reg.MustConfigureModel("user", func(m *states.ModelConfig) {
		m.StateType("kyc", func(c *states.StateTypeConfig) {
			c.Statuses = []string{"pending", "completed", "rejected"}
			c.Limit = 2
		})
		m.StateType("onboarding", func(c *states.StateTypeConfig) {
			c.Statuses = []string{"pending", "in_progress", "completed"}
		})
		m.StateType("identity", func(c *states.StateTypeConfig) {
			c.Statuses = []string{"pending", "verified"}
			c.SetSchema(kycSchema)
		})
	})

	opts = append([]states.ServiceOption{states.WithClock(tickingClock())}, opts...)
	svc, err := states.NewService(reg, states.NewMemoryStore(), opts...)
	require.NoError(t, err)
	return svc, reg
}

func TestNewService(t *testing.T) {
	t.Parallel()

	_, err := states.NewService(nil, states.NewMemoryStore())
	assert.ErrorIs(t, err, states.ErrNilRegistry)

	_, err = states.NewService(states.NewRegistry(), nil)
	assert.ErrorIs(t, err, states.ErrNilStore)

	assert.Panics(t, func() { states.MustNewService(nil, nil) })
}

func TestService_AddState_Statuses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, status := range []string{"pending", "in_progress", "completed"} {
		t.Run("allowed "+status, func(t *testing.T) {
			svc, _ := newTestService(t)
			rec, err := svc.AddState(ctx, alice, "onboarding", states.WithStatus(status))
			require.NoError(t, err)
			assert.Equal(t, status, rec.Status)
		})
	}

	t.Run("status outside the vocabulary", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "onboarding", states.WithStatus("archived"))
		require.ErrorIs(t, err, states.ErrInvalidStatus)

		verr := states.ExtractValidationErrors(err)
		require.Len(t, verr, 1)
		assert.Equal(t, states.RuleStatusConfigured, verr[0].Rule)
		assert.True(t, verr.Has("status"))
		assert.Equal(t, "status is not configured", verr[0].Error())

		recs, err := svc.History(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, recs, "rejected write must not be persisted")
	})

	t.Run("default status is pending", func(t *testing.T) {
		svc, _ := newTestService(t)
		rec, err := svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)
		assert.Equal(t, states.DefaultStatus, rec.Status)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, states.Metadata{}, rec.Metadata)
	})

	t.Run("unknown state type reports every failure", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "billing", states.WithStatus("open"))
		require.Error(t, err)
		assert.ErrorIs(t, err, states.ErrInvalidStatus)
		assert.ErrorIs(t, err, states.ErrUnknownStateType)
		assert.Equal(t,
			[]string{states.RuleStatusConfigured, states.RuleStateTypeConfigured},
			states.ExtractValidationErrors(err).Rules(),
		)
	})

	t.Run("unconfigured owner kind", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, states.Owner{Kind: "company", ID: "acme"}, "kyc")
		assert.ErrorIs(t, err, states.ErrUnknownStateType)
	})

	t.Run("incomplete owner", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, states.Owner{Kind: "user"}, "kyc")
		assert.ErrorIs(t, err, states.ErrInvalidOwnerType)
		assert.False(t, states.IsValidationError(err))
	})
}

func TestService_AddState_Limit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.AddState(ctx, alice, "kyc", states.WithStatus("pending"))
	require.NoError(t, err)
	_, err = svc.AddState(ctx, alice, "kyc", states.WithStatus("pending"))
	require.NoError(t, err)

	_, err = svc.AddState(ctx, alice, "kyc", states.WithStatus("pending"))
	require.ErrorIs(t, err, states.ErrLimitExceeded)
	assert.Contains(t, err.Error(), "kyc")
	assert.Contains(t, err.Error(), "2")
	assert.Contains(t, err.Error(), "maximum number of kyc states (2) reached")

	// limit is per owner instance
	for range 2 {
		_, err = svc.AddState(ctx, bob, "kyc")
		require.NoError(t, err)
	}
	_, err = svc.AddState(ctx, bob, "kyc")
	require.ErrorIs(t, err, states.ErrLimitExceeded)

	// and per state type
	_, err = svc.AddState(ctx, alice, "onboarding")
	require.NoError(t, err)

	recs, err := svc.States(ctx, alice, "kyc")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

// racingStore hides existing records from the pipeline count, as if another
// writer inserted between the count and the insert.
type racingStore struct {
	*states.MemoryStore
}

func (racingStore) Count(context.Context, states.Owner, string) (int, error) {
	return 0, nil
}

func TestService_AddState_LimitRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reg := states.NewRegistry()
	reg.MustConfigureModel("user", func(m *states.ModelConfig) {
		m.StateType("kyc", func(c *states.StateTypeConfig) {
			c.Statuses = []string{"pending"}
			c.Limit = 1
		})
	})
	svc := states.MustNewService(reg, racingStore{states.NewMemoryStore()})

	_, err := svc.AddState(ctx, alice, "kyc")
	require.NoError(t, err)

	_, err = svc.AddState(ctx, alice, "kyc")
	require.ErrorIs(t, err, states.ErrLimitExceeded)
	verr := states.ExtractValidationErrors(err)
	require.Len(t, verr, 1)
	assert.Equal(t, states.RuleLimitNotExceeded, verr[0].Rule)
}

func TestService_AddState_ConcurrentLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddState(ctx, alice, "kyc"); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, states.ErrLimitExceeded)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), ok.Load())
}

func TestService_MetadataSchema(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects non conforming metadata", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "identity", states.WithMetadata(map[string]any{"age": 17}))
		require.ErrorIs(t, err, states.ErrSchemaViolation)

		verr := states.ExtractValidationErrors(err)
		require.Len(t, verr, 1)
		assert.Equal(t, "metadata", verr[0].Field)
		assert.Contains(t, verr[0].Message, "does not conform to schema")
	})

	t.Run("accepts conforming metadata", func(t *testing.T) {
		svc, _ := newTestService(t)
		rec, err := svc.AddState(ctx, alice, "identity", states.WithMetadata(map[string]any{"name": "A", "age": 25}))
		require.NoError(t, err)
		assert.Equal(t, "A", rec.Metadata["name"])
		assert.Equal(t, json.Number("25"), rec.Metadata["age"])
	})

	t.Run("rejects undeclared properties", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "identity",
			states.WithMetadata(map[string]any{"name": "A", "age": 25, "extra": true}),
		)
		require.ErrorIs(t, err, states.ErrSchemaViolation)
		assert.Equal(t, []string{states.RuleMetadataSchema}, states.ExtractValidationErrors(err).Rules())
	})

	t.Run("every declared property is required", func(t *testing.T) {
		reg := states.NewRegistry()
		reg.MustConfigureModel("user", func(m *states.ModelConfig) {
			m.StateType("profile", func(c *states.StateTypeConfig) {
				c.Statuses = []string{"pending"}
				c.SetSchema(`{"type": "object", "properties": {"name": {"type": "string"}, "bio": {"type": "string"}}}`)
			})
			m.StateType("notes", func(c *states.StateTypeConfig) {
				c.Statuses = []string{"pending"}
				c.SetSchema(`{"type": "object", "properties": {"name": {"type": "string"}}}`, states.Lenient())
			})
		})
		svc := states.MustNewService(reg, states.NewMemoryStore())

		_, err := svc.AddState(ctx, alice, "profile", states.WithMetadata(map[string]any{"name": "A"}))
		require.ErrorIs(t, err, states.ErrSchemaViolation)

		_, err = svc.AddState(ctx, alice, "profile", states.WithMetadata(map[string]any{"name": "A", "bio": "b"}))
		require.NoError(t, err)

		_, err = svc.AddState(ctx, alice, "notes", states.WithMetadata(map[string]any{"other": 1}))
		require.NoError(t, err)
	})

	t.Run("empty metadata skips the schema", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "identity")
		require.NoError(t, err)
	})

	t.Run("schema failure is collected with other failures", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "identity",
			states.WithStatus("archived"),
			states.WithMetadata(map[string]any{"age": 3}),
		)
		assert.Equal(t,
			[]string{states.RuleStatusConfigured, states.RuleMetadataSchema},
			states.ExtractValidationErrors(err).Rules(),
		)
	})

	t.Run("unserializable metadata", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddState(ctx, alice, "kyc", states.WithMetadata(map[string]any{"ch": make(chan int)}))
		require.Error(t, err)
		assert.False(t, states.IsValidationError(err))
	})
}

func TestService_MetadataRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	md := map[string]any{
		"string": "value",
		"int":    42,
		"float":  3.25,
		"bool":   false,
		"null":   nil,
		"list":   []any{1, "two", map[string]any{"three": 3.0}},
		"nested": map[string]any{"deep": map[string]any{"ok": true}},
	}
	rec, err := svc.AddState(ctx, alice, "onboarding", states.WithMetadata(md))
	require.NoError(t, err)

	loaded, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Metadata, loaded.Metadata)

	want, err := json.Marshal(md)
	require.NoError(t, err)
	got, err := json.Marshal(loaded.Metadata)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestService_Callbacks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("to condition fires once on completion", func(t *testing.T) {
		svc, reg := newTestService(t)

		var flag atomic.Int32
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			flag.Add(1)
			return nil
		}, states.To("completed"))

		rec, err := svc.AddState(ctx, alice, "kyc", states.WithStatus("pending"))
		require.NoError(t, err)
		assert.Zero(t, flag.Load())

		_, err = svc.UpdateStatus(ctx, rec.ID, "completed")
		require.NoError(t, err)
		assert.Equal(t, int32(1), flag.Load())

		other, err := svc.AddState(ctx, alice, "onboarding")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, other.ID, "completed")
		require.NoError(t, err)
		assert.Equal(t, int32(1), flag.Load(), "other state type must not trigger")
	})

	t.Run("first insert with a matching status fires", func(t *testing.T) {
		svc, reg := newTestService(t)

		var got *states.Record
		reg.MustOn("kyc", func(_ context.Context, rec *states.Record) error {
			got = rec
			return nil
		}, states.To("completed"))

		rec, err := svc.AddState(ctx, alice, "kyc", states.WithStatus("completed"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rec.ID, got.ID)
		assert.Empty(t, got.PreviousStatus)
	})

	t.Run("from condition sees the previous status", func(t *testing.T) {
		svc, reg := newTestService(t)

		var transitions []string
		reg.MustOn("onboarding", func(_ context.Context, rec *states.Record) error {
			transitions = append(transitions, rec.PreviousStatus+"->"+rec.Status)
			return nil
		}, states.From("pending"))

		rec, err := svc.AddState(ctx, alice, "onboarding")
		require.NoError(t, err)
		assert.Empty(t, transitions, "from never matches a first insert")

		_, err = svc.UpdateStatus(ctx, rec.ID, "in_progress")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, rec.ID, "completed")
		require.NoError(t, err)

		assert.Equal(t, []string{"pending->in_progress"}, transitions)
	})

	t.Run("times caps executions and evicts", func(t *testing.T) {
		svc, reg := newTestService(t)

		var calls atomic.Int32
		cb := reg.MustOn("onboarding", func(context.Context, *states.Record) error {
			calls.Add(1)
			return nil
		}, states.To("completed"), states.Times(2), states.WithID("twice"))

		for range 3 {
			rec, err := svc.AddState(ctx, alice, "onboarding")
			require.NoError(t, err)
			_, err = svc.UpdateStatus(ctx, rec.ID, "completed")
			require.NoError(t, err)
		}

		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 2, cb.Executions())
		assert.True(t, cb.Expired())
		_, ok := reg.Callback("twice")
		assert.False(t, ok)
	})

	t.Run("without times fires indefinitely", func(t *testing.T) {
		svc, reg := newTestService(t)

		var calls atomic.Int32
		reg.MustOn("onboarding", func(context.Context, *states.Record) error {
			calls.Add(1)
			return nil
		})

		for range 5 {
			_, err := svc.AddState(ctx, alice, "onboarding")
			require.NoError(t, err)
		}
		assert.Equal(t, int32(5), calls.Load())
		assert.Len(t, reg.Callbacks(), 1)
	})

	t.Run("times holds under concurrent dispatch", func(t *testing.T) {
		svc, reg := newTestService(t)

		var calls atomic.Int32
		reg.MustOn("onboarding", func(context.Context, *states.Record) error {
			calls.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}, states.Times(3))

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				owner := states.Owner{Kind: "user", ID: string(rune('a' + i))}
				_, err := svc.AddState(ctx, owner, "onboarding")
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(3), calls.Load())
		assert.Empty(t, reg.Callbacks())
	})

	t.Run("off removes exactly one callback", func(t *testing.T) {
		svc, reg := newTestService(t)

		var custom, other atomic.Int32
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			custom.Add(1)
			return nil
		}, states.WithID("custom"))
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			other.Add(1)
			return nil
		})

		reg.Off("custom")

		_, err := svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)
		assert.Zero(t, custom.Load())
		assert.Equal(t, int32(1), other.Load())
	})

	t.Run("failures are isolated and aggregated", func(t *testing.T) {
		svc, reg := newTestService(t)

		errBoom := errors.New("boom")
		var order []string
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			order = append(order, "first")
			return errBoom
		}, states.WithID("first"))
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			order = append(order, "second")
			panic("kaboom")
		}, states.WithID("second"))
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			order = append(order, "third")
			return nil
		}, states.WithID("third"))

		rec, err := svc.AddState(ctx, alice, "kyc")
		require.Error(t, err)
		require.NotNil(t, rec, "the write is committed despite callback failures")

		assert.Equal(t, []string{"first", "second", "third"}, order)
		assert.True(t, states.IsDispatchError(err))
		assert.False(t, states.IsValidationError(err))
		assert.ErrorIs(t, err, states.ErrCallbackAction)
		assert.ErrorIs(t, err, errBoom)

		var de *states.DispatchError
		require.ErrorAs(t, err, &de)
		require.Len(t, de.Errors, 2)
		assert.Equal(t, "first", de.Errors[0].CallbackID)
		assert.Equal(t, "second", de.Errors[1].CallbackID)
		assert.Contains(t, de.Errors[1].Error(), "kaboom")

		_, err = svc.Get(ctx, rec.ID)
		assert.NoError(t, err)
	})

	t.Run("failed executions do not count toward times", func(t *testing.T) {
		svc, reg := newTestService(t)

		var attempts atomic.Int32
		cb := reg.MustOn("onboarding", func(context.Context, *states.Record) error {
			if attempts.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		}, states.Times(1))

		_, err := svc.AddState(ctx, alice, "onboarding")
		require.Error(t, err)
		assert.Zero(t, cb.Executions())
		assert.Len(t, reg.Callbacks(), 1)

		_, err = svc.AddState(ctx, alice, "onboarding")
		require.NoError(t, err)
		assert.Empty(t, reg.Callbacks())
	})

	t.Run("callbacks receive a copy", func(t *testing.T) {
		svc, reg := newTestService(t)

		reg.MustOn("onboarding", func(_ context.Context, rec *states.Record) error {
			rec.Status = "tampered"
			rec.Metadata["x"] = "tampered"
			return nil
		})

		rec, err := svc.AddState(ctx, alice, "onboarding", states.WithMetadata(map[string]any{"x": "y"}))
		require.NoError(t, err)
		assert.Equal(t, "pending", rec.Status)
		assert.Equal(t, "y", rec.Metadata["x"])
	})
}

func TestService_UpdateStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects unconfigured status", func(t *testing.T) {
		svc, _ := newTestService(t)
		rec, err := svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, rec.ID, "archived")
		require.ErrorIs(t, err, states.ErrInvalidStatus)

		loaded, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "pending", loaded.Status)
	})

	t.Run("limit is not checked on update", func(t *testing.T) {
		svc, _ := newTestService(t)
		first, err := svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)
		_, err = svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, first.ID, "completed")
		assert.NoError(t, err)
	})

	t.Run("same status does not dispatch", func(t *testing.T) {
		svc, reg := newTestService(t)
		var calls atomic.Int32
		reg.MustOn("kyc", func(context.Context, *states.Record) error {
			calls.Add(1)
			return nil
		}, states.To("pending"))

		rec, err := svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)
		require.Equal(t, int32(1), calls.Load())

		_, err = svc.UpdateStatus(ctx, rec.ID, "pending")
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("completed at", func(t *testing.T) {
		svc, _ := newTestService(t)
		rec, err := svc.AddState(ctx, alice, "kyc")
		require.NoError(t, err)

		at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		updated, err := svc.UpdateStatus(ctx, rec.ID, "completed", states.WithCompletedAt(at))
		require.NoError(t, err)
		assert.Equal(t, "pending", updated.PreviousStatus)
		require.NotNil(t, updated.CompletedAt)
		assert.True(t, at.Equal(*updated.CompletedAt))
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	})

	t.Run("unknown record", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.UpdateStatus(ctx, "missing", "completed")
		assert.ErrorIs(t, err, states.ErrRecordNotFound)
	})
}

func TestService_Queries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Current(ctx, alice, "kyc")
	require.ErrorIs(t, err, states.ErrRecordNotFound)

	has, err := svc.HasStatus(ctx, alice, "kyc", "pending")
	require.NoError(t, err)
	assert.False(t, has)

	first, err := svc.AddState(ctx, alice, "kyc")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, first.ID, "completed")
	require.NoError(t, err)
	second, err := svc.AddState(ctx, alice, "kyc", states.WithStatus("rejected"), states.WithDiscriminator("manual_review"))
	require.NoError(t, err)
	onboarding, err := svc.AddState(ctx, alice, "onboarding")
	require.NoError(t, err)
	_, err = svc.AddState(ctx, bob, "kyc")
	require.NoError(t, err)

	current, err := svc.Current(ctx, alice, "kyc")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, "manual_review", current.Discriminator)
	assert.True(t, current.Is("kyc", "rejected"))

	kyc, err := svc.States(ctx, alice, "kyc")
	require.NoError(t, err)
	require.Len(t, kyc, 2)
	assert.Equal(t, second.ID, kyc[0].ID)
	assert.Equal(t, first.ID, kyc[1].ID)

	history, err := svc.History(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, onboarding.ID, history[0].ID)

	has, err = svc.HasStatus(ctx, alice, "kyc", "rejected")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = svc.HasStatus(ctx, alice, "kyc", "completed")
	require.NoError(t, err)
	assert.False(t, has, "only the current record counts")

	done, err := svc.Completed(ctx, alice, "kyc")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = svc.Completed(ctx, bob, "kyc")
	require.NoError(t, err)
	assert.False(t, done)

	n, err := svc.DeleteOwner(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	history, err = svc.History(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestService_OwnerResolver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	errDB := errors.New("db down")
	resolver := states.OwnerResolverFunc(func(_ context.Context, o states.Owner) (any, error) {
		switch o.ID {
		case "alice":
			return map[string]string{"name": "Alice"}, nil
		case "broken":
			return nil, errDB
		default:
			return nil, states.ErrOwnerNotFound
		}
	})
	svc, _ := newTestService(t, states.WithOwnerResolver(resolver))

	assert.Contains(t, svc.Pipeline().Rules(), states.RuleOwnerExists)

	rec, err := svc.AddState(ctx, alice, "kyc")
	require.NoError(t, err)

	owner, err := svc.ResolveOwner(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "Alice"}, owner)

	_, err = svc.AddState(ctx, states.Owner{Kind: "user", ID: "ghost"}, "kyc")
	require.ErrorIs(t, err, states.ErrOwnerNotFound)
	assert.True(t, states.ExtractValidationErrors(err).Has("owner"))

	_, err = svc.AddState(ctx, states.Owner{Kind: "user", ID: "broken"}, "kyc")
	require.ErrorIs(t, err, errDB)
	assert.False(t, states.IsValidationError(err))

	plain, _ := newTestService(t)
	assert.NotContains(t, plain.Pipeline().Rules(), states.RuleOwnerExists)
	_, err = plain.ResolveOwner(ctx, rec)
	assert.ErrorIs(t, err, states.ErrOwnerNotFound)
}
