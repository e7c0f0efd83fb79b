package states_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/metastates/pkg/states"
)

func TestNormalizeMetadata(t *testing.T) {
	t.Parallel()

	md, err := states.NormalizeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, states.Metadata{}, md)

	md, err = states.NormalizeMetadata(map[string]any{
		"n":    7,
		"f":    1.5,
		"list": []string{"a"},
		"obj":  struct{ A int }{A: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, json.Number("7"), md["n"])
	assert.Equal(t, json.Number("1.5"), md["f"])
	assert.Equal(t, []any{"a"}, md["list"])
	assert.Equal(t, map[string]any{"A": json.Number("1")}, md["obj"])

	md, err = states.DecodeMetadata([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, md)

	md, err = states.DecodeMetadata([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, md)

	_, err = states.DecodeMetadata([]byte("[1]"))
	assert.Error(t, err)
}

func TestRecord(t *testing.T) {
	t.Parallel()

	completed := time.Now()
	rec := &states.Record{
		ID:             "r1",
		Discriminator:  "manual",
		Owner:          states.Owner{Kind: "user", ID: "42"},
		StateType:      "kyc",
		Status:         "completed",
		PreviousStatus: "pending",
		Metadata:       states.Metadata{"nested": map[string]any{"k": "v"}, "list": []any{1}},
		CompletedAt:    &completed,
	}

	t.Run("attributes", func(t *testing.T) {
		cases := map[string]any{
			"id":              "r1",
			"discriminator":   "manual",
			"type":            "manual",
			"owner_kind":      "user",
			"stateable_type":  "user",
			"owner_id":        "42",
			"stateable_id":    "42",
			"state_type":      "kyc",
			"status":          "completed",
			"previous_status": "pending",
			"metadata.list":   []any{1},
		}
		for key, want := range cases {
			got, ok := rec.Attribute(key)
			assert.True(t, ok, key)
			assert.Equal(t, want, got, key)
		}
		_, ok := rec.Attribute("metadata.absent")
		assert.False(t, ok)
		_, ok = rec.Attribute("unknown")
		assert.False(t, ok)
	})

	t.Run("predicates", func(t *testing.T) {
		assert.True(t, rec.HasStatus("completed"))
		assert.False(t, rec.HasStatus("pending"))
		assert.True(t, rec.Is("kyc", "completed"))
		assert.False(t, rec.Is("onboarding", "completed"))

		var nilRec *states.Record
		assert.False(t, nilRec.HasStatus("completed"))
		assert.Nil(t, nilRec.Clone())
	})

	t.Run("clone is deep", func(t *testing.T) {
		c := rec.Clone()
		c.Metadata["nested"].(map[string]any)["k"] = "changed"
		c.Metadata["list"].([]any)[0] = 2
		*c.CompletedAt = completed.Add(time.Hour)

		assert.Equal(t, "v", rec.Metadata["nested"].(map[string]any)["k"])
		assert.Equal(t, 1, rec.Metadata["list"].([]any)[0])
		assert.True(t, completed.Equal(*rec.CompletedAt))
	})

	t.Run("owner", func(t *testing.T) {
		assert.Equal(t, "user:42", rec.Owner.String())
		assert.False(t, rec.Owner.IsZero())
		assert.True(t, states.Owner{}.IsZero())
	})
}
