package states

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// DefaultStatus is assigned by AddState when no status is given.
const DefaultStatus = "pending"

// OwnerKind names a type of stateable entity, e.g. "user" or "company".
type OwnerKind string

// Owner is a tagged reference to the entity a state belongs to.
// The store does not enforce referential integrity across kinds.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// String formats the owner as kind:id.
func (o Owner) String() string {
	return string(o.Kind) + ":" + o.ID
}

// IsZero reports whether the owner reference is empty.
func (o Owner) IsZero() bool {
	return o.Kind == "" && o.ID == ""
}

// OwnerResolver loads the entity behind an Owner reference.
// Resolve returns ErrOwnerNotFound when the entity does not exist.
type OwnerResolver interface {
	Resolve(ctx context.Context, owner Owner) (any, error)
}

// OwnerResolverFunc adapts a function to OwnerResolver.
type OwnerResolverFunc func(ctx context.Context, owner Owner) (any, error)

func (f OwnerResolverFunc) Resolve(ctx context.Context, owner Owner) (any, error) {
	return f(ctx, owner)
}

// Metadata is the structured document attached to a state record.
type Metadata map[string]any

// NormalizeMetadata converts any JSON-serializable map into the canonical
// decoded form (nested map[string]any, []any, json.Number, string, bool, nil)
// that every Store returns after a reload. A nil input yields an empty map.
func NormalizeMetadata(in map[string]any) (Metadata, error) {
	if len(in) == 0 {
		return Metadata{}, nil
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return DecodeMetadata(raw)
}

// DecodeMetadata decodes a stored JSON document, keeping numbers as json.Number
// so integers and decimals survive a round trip unchanged.
func DecodeMetadata(raw []byte) (Metadata, error) {
	md := Metadata{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return md, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if md == nil {
		md = Metadata{}
	}
	return md, nil
}

// Record is one entry of an owner's state history.
type Record struct {
	ID            string     `json:"id"`
	Discriminator string     `json:"discriminator,omitempty"`
	Owner         Owner      `json:"owner"`
	StateType     string     `json:"state_type"`
	Status        string     `json:"status"`
	Metadata      Metadata   `json:"metadata"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// PreviousStatus is the status persisted before the write that produced
	// this value. It is empty on a first insert and is never stored.
	PreviousStatus string `json:"-"`
}

// HasStatus reports whether the record currently holds status.
func (r *Record) HasStatus(status string) bool {
	return r != nil && r.Status == status
}

// Is reports whether the record is of stateType and holds status.
func (r *Record) Is(stateType, status string) bool {
	return r != nil && r.StateType == stateType && r.Status == status
}

// Attribute reads a record column by name. Keys prefixed with "metadata."
// read a top-level metadata entry.
func (r *Record) Attribute(key string) (any, bool) {
	switch key {
	case "id":
		return r.ID, true
	case "discriminator", "type":
		return r.Discriminator, true
	case "owner_kind", "stateable_type":
		return string(r.Owner.Kind), true
	case "owner_id", "stateable_id":
		return r.Owner.ID, true
	case "state_type":
		return r.StateType, true
	case "status":
		return r.Status, true
	case "previous_status":
		return r.PreviousStatus, true
	}

	if name, ok := strings.CutPrefix(key, "metadata."); ok {
		v, found := r.Metadata[name]
		return v, found
	}
	return nil, false
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Metadata = cloneValue(map[string]any(r.Metadata)).(map[string]any)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Query selects records of one owner. Empty fields match everything.
// Results are ordered newest first.
type Query struct {
	Owner     Owner
	StateType string
	Status    string
	Limit     int
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any{}
		}
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case Metadata:
		return cloneValue(map[string]any(val))
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return val
	}
}

// valuesEqual compares a condition value with a record attribute. Numbers
// compare by their decimal representation so json.Number(18) equals 18.
func valuesEqual(expected, actual any) bool {
	if reflect.DeepEqual(expected, actual) {
		return true
	}
	en, eok := numberString(expected)
	an, aok := numberString(actual)
	if eok && aok {
		return en == an
	}
	return false
}

func numberString(v any) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		return n.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(n), true
	case float32, float64:
		return fmt.Sprint(n), true
	}
	return "", false
}
