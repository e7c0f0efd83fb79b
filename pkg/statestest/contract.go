package statestest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/metastates/pkg/states"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) states.Store

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)

// NewRecord builds a record ready for Store.Create. Metadata is normalized the
// same way the state service does it.
func NewRecord(t *testing.T, owner states.Owner, stateType, status string, createdAt time.Time, md map[string]any) *states.Record {
	t.Helper()

	norm, err := states.NormalizeMetadata(md)
	require.NoError(t, err)

	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	return &states.Record{
		ID:        uuid.NewString(),
		Owner:     owner,
		StateType: stateType,
		Status:    status,
		Metadata:  norm,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// RunStoreContract runs the shared store behaviour checks.
func RunStoreContract(t *testing.T, newStore Factory) {
	t.Helper()

	alice := states.Owner{Kind: "user", ID: "alice"}
	bob := states.Owner{Kind: "user", ID: "bob"}
	acme := states.Owner{Kind: "company", ID: "alice"}

	t.Run("create and get round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		md := map[string]any{
			"name":    "Alice",
			"age":     25,
			"score":   12.5,
			"active":  true,
			"missing": nil,
			"exp":     json.Number("1e2"),
			"decimal": json.Number("0.10"),
			"tags":    []any{"a", "b", 3},
			"address": map[string]any{
				"city": "Berlin",
				"geo":  map[string]any{"lat": 52.52, "lng": 13.405},
			},
		}
		rec := NewRecord(t, alice, "kyc", "pending", baseTime, md)
		rec.Discriminator = "document_check"
		require.NoError(t, store.Create(ctx, rec, 0))

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)

		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "document_check", got.Discriminator)
		assert.Equal(t, alice, got.Owner)
		assert.Equal(t, "kyc", got.StateType)
		assert.Equal(t, "pending", got.Status)
		assert.Equal(t, rec.Metadata, got.Metadata)
		assert.Equal(t, json.Number("1e2"), got.Metadata["exp"], "numbers keep their literal form")
		assert.Equal(t, json.Number("0.10"), got.Metadata["decimal"])
		assert.Nil(t, got.CompletedAt)
		assert.Empty(t, got.PreviousStatus)
		assertSameTime(t, rec.CreatedAt, got.CreatedAt)
		assertSameTime(t, rec.UpdatedAt, got.UpdatedAt)
	})

	t.Run("empty metadata reads back as empty object", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord(t, alice, "kyc", "pending", baseTime, nil)
		require.NoError(t, store.Create(ctx, rec, 0))

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Metadata)
		assert.Empty(t, got.Metadata)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord(t, alice, "kyc", "pending", baseTime, map[string]any{"k": "v"})
		require.NoError(t, store.Create(ctx, rec, 0))
		rec.Metadata["k"] = "changed"

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		got.Metadata["k"] = "mutated"

		again, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "v", again.Metadata["k"])
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, states.ErrRecordNotFound)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord(t, alice, "kyc", "pending", baseTime, nil)
		require.NoError(t, store.Create(ctx, rec, 0))
		assert.Error(t, store.Create(ctx, rec, 0))
	})

	t.Run("limit is enforced per owner and state type", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := range 2 {
			rec := NewRecord(t, alice, "kyc", "pending", baseTime.Add(time.Duration(i)*time.Second), nil)
			require.NoError(t, store.Create(ctx, rec, 2))
		}

		err := store.Create(ctx, NewRecord(t, alice, "kyc", "pending", baseTime, nil), 2)
		assert.ErrorIs(t, err, states.ErrLimitExceeded)

		// other owner, other kind with the same id, other state type are independent
		require.NoError(t, store.Create(ctx, NewRecord(t, bob, "kyc", "pending", baseTime, nil), 2))
		require.NoError(t, store.Create(ctx, NewRecord(t, acme, "kyc", "pending", baseTime, nil), 2))
		require.NoError(t, store.Create(ctx, NewRecord(t, alice, "onboarding", "pending", baseTime, nil), 2))

		n, err := store.Count(ctx, alice, "kyc")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("zero limit is unbounded", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := range 5 {
			rec := NewRecord(t, alice, "kyc", "pending", baseTime.Add(time.Duration(i)*time.Second), nil)
			require.NoError(t, store.Create(ctx, rec, 0))
		}
		n, err := store.Count(ctx, alice, "kyc")
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("concurrent creates never exceed the limit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const (
			workers = 8
			limit   = 3
		)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := range workers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := NewRecord(t, alice, "kyc", "pending", baseTime.Add(time.Duration(i)*time.Millisecond), nil)
				if err := store.Create(ctx, rec, limit); err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, limit, succeeded)
		n, err := store.Count(ctx, alice, "kyc")
		require.NoError(t, err)
		assert.Equal(t, limit, n)
	})

	t.Run("update status reports previous status", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := NewRecord(t, alice, "kyc", "pending", baseTime, map[string]any{"k": "v"})
		require.NoError(t, store.Create(ctx, rec, 0))

		completedAt := baseTime.Add(time.Hour)
		updatedAt := baseTime.Add(time.Hour)
		updated, err := store.UpdateStatus(ctx, rec.ID, states.StatusUpdate{
			Status:      "completed",
			CompletedAt: &completedAt,
			UpdatedAt:   updatedAt,
		})
		require.NoError(t, err)
		assert.Equal(t, "completed", updated.Status)
		assert.Equal(t, "pending", updated.PreviousStatus)
		require.NotNil(t, updated.CompletedAt)
		assertSameTime(t, completedAt, *updated.CompletedAt)
		assertSameTime(t, updatedAt, updated.UpdatedAt)
		assertSameTime(t, rec.CreatedAt, updated.CreatedAt)
		assert.Equal(t, rec.Metadata, updated.Metadata)

		got, err := store.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "completed", got.Status)
		assert.Empty(t, got.PreviousStatus)
		require.NotNil(t, got.CompletedAt)

		again, err := store.UpdateStatus(ctx, rec.ID, states.StatusUpdate{Status: "rejected", UpdatedAt: updatedAt})
		require.NoError(t, err)
		assert.Equal(t, "completed", again.PreviousStatus)
		require.NotNil(t, again.CompletedAt, "completed_at is kept when not provided")
	})

	t.Run("update unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.UpdateStatus(context.Background(), uuid.NewString(), states.StatusUpdate{
			Status:    "completed",
			UpdatedAt: baseTime,
		})
		assert.ErrorIs(t, err, states.ErrRecordNotFound)
	})

	t.Run("list is scoped and newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := NewRecord(t, alice, "kyc", "pending", baseTime, nil)
		second := NewRecord(t, alice, "kyc", "completed", baseTime.Add(time.Minute), nil)
		third := NewRecord(t, alice, "onboarding", "pending", baseTime.Add(2*time.Minute), nil)
		foreign := NewRecord(t, bob, "kyc", "pending", baseTime.Add(3*time.Minute), nil)
		sameID := NewRecord(t, acme, "kyc", "pending", baseTime.Add(4*time.Minute), nil)
		for _, rec := range []*states.Record{first, second, third, foreign, sameID} {
			require.NoError(t, store.Create(ctx, rec, 0))
		}

		all, err := store.List(ctx, states.Query{Owner: alice})
		require.NoError(t, err)
		assert.Equal(t, []string{third.ID, second.ID, first.ID}, ids(all))

		kyc, err := store.List(ctx, states.Query{Owner: alice, StateType: "kyc"})
		require.NoError(t, err)
		assert.Equal(t, []string{second.ID, first.ID}, ids(kyc))

		pending, err := store.List(ctx, states.Query{Owner: alice, StateType: "kyc", Status: "pending"})
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID}, ids(pending))

		latest, err := store.List(ctx, states.Query{Owner: alice, StateType: "kyc", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{second.ID}, ids(latest))

		none, err := store.List(ctx, states.Query{Owner: states.Owner{Kind: "user", ID: "nobody"}})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete owner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := range 3 {
			rec := NewRecord(t, alice, "kyc", "pending", baseTime.Add(time.Duration(i)*time.Second), nil)
			require.NoError(t, store.Create(ctx, rec, 0))
		}
		kept := NewRecord(t, bob, "kyc", "pending", baseTime, nil)
		require.NoError(t, store.Create(ctx, kept, 0))

		n, err := store.DeleteOwner(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		left, err := store.List(ctx, states.Query{Owner: alice})
		require.NoError(t, err)
		assert.Empty(t, left)

		_, err = store.Get(ctx, kept.ID)
		assert.NoError(t, err)

		n, err = store.DeleteOwner(ctx, alice)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func ids(recs []*states.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func assertSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}
