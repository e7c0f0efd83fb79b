// Package redisstore implements states.Store on Redis.
//
// Each record is a JSON string under "<prefix>:state:<id>". An owner's
// records are indexed in a sorted set scored by creation time, and a plain set
// per owner and state type backs Count. Create and UpdateStatus use
// WATCH/MULTI/EXEC, retrying when a concurrent writer touches the watched keys,
// so the limit check and the insert are one atomic step.
package redisstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/metastates/pkg/states"
)

var (
	ErrDuplicateID       = errors.New("redisstore: duplicate record id")
	ErrTooMuchContention = errors.New("redisstore: transaction retries exhausted")
)

// Store is a Redis-backed states.Store.
type Store struct {
	client     backend.UniversalClient
	prefix     string
	maxRetries int
}

var _ states.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. Defaults to "metastates".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic transaction retries. Defaults to 100.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func New(client backend.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:     client,
		prefix:     "metastates",
		maxRetries: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type storedRecord struct {
	ID            string          `json:"id"`
	Discriminator string          `json:"discriminator,omitempty"`
	OwnerKind     string          `json:"owner_kind"`
	OwnerID       string          `json:"owner_id"`
	StateType     string          `json:"state_type"`
	Status        string          `json:"status"`
	Metadata      json.RawMessage `json:"metadata"`
	CompletedAt   *int64          `json:"completed_at,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
	Seq           int64           `json:"seq"`
}

func (s *Store) Create(ctx context.Context, rec *states.Record, limit int) error {
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if rec.Metadata == nil {
		md = []byte("{}")
	}

	seq, err := s.client.Incr(ctx, s.key("seq")).Result()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	stored := storedRecord{
		ID:            rec.ID,
		Discriminator: rec.Discriminator,
		OwnerKind:     string(rec.Owner.Kind),
		OwnerID:       rec.Owner.ID,
		StateType:     rec.StateType,
		Status:        rec.Status,
		Metadata:      md,
		CompletedAt:   micros(rec.CompletedAt),
		CreatedAt:     rec.CreatedAt.UnixMicro(),
		UpdatedAt:     rec.UpdatedAt.UnixMicro(),
		Seq:           seq,
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	recKey := s.recordKey(rec.ID)
	typeKey := s.typeKey(rec.Owner, rec.StateType)
	ownerKey := s.ownerKey(rec.Owner)

	return s.watch(ctx, func(tx *backend.Tx) error {
		exists, err := tx.Exists(ctx, recKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}

		if limit > 0 {
			n, err := tx.SCard(ctx, typeKey).Result()
			if err != nil {
				return err
			}
			if int(n) >= limit {
				return states.ErrLimitExceeded
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, recKey, payload, 0)
			pipe.SAdd(ctx, typeKey, rec.ID)
			pipe.ZAdd(ctx, ownerKey, backend.Z{Score: float64(stored.CreatedAt), Member: rec.ID})
			return nil
		})
		return err
	}, recKey, typeKey)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, upd states.StatusUpdate) (*states.Record, error) {
	recKey := s.recordKey(id)

	var out *states.Record
	err := s.watch(ctx, func(tx *backend.Tx) error {
		raw, err := tx.Get(ctx, recKey).Bytes()
		if errors.Is(err, backend.Nil) {
			return states.ErrRecordNotFound
		}
		if err != nil {
			return err
		}

		var stored storedRecord
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}
		prev := stored.Status
		stored.Status = upd.Status
		stored.UpdatedAt = upd.UpdatedAt.UnixMicro()
		if upd.CompletedAt != nil {
			stored.CompletedAt = micros(upd.CompletedAt)
		}

		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, recKey, payload, 0)
			return nil
		}); err != nil {
			return err
		}

		rec, err := stored.record()
		if err != nil {
			return err
		}
		rec.PreviousStatus = prev
		out = rec
		return nil
	}, recKey)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*states.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, states.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return stored.record()
}

func (s *Store) Count(ctx context.Context, owner states.Owner, stateType string) (int, error) {
	n, err := s.client.SCard(ctx, s.typeKey(owner, stateType)).Result()
	if err != nil {
		return 0, fmt.Errorf("count states: %w", err)
	}
	return int(n), nil
}

func (s *Store) List(ctx context.Context, q states.Query) ([]*states.Record, error) {
	stored, err := s.ownerRecords(ctx, q.Owner)
	if err != nil {
		return nil, err
	}

	matched := make([]storedRecord, 0, len(stored))
	for _, r := range stored {
		if q.StateType != "" && r.StateType != q.StateType {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		matched = append(matched, r)
	}

	slices.SortFunc(matched, func(a, b storedRecord) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*states.Record, 0, len(matched))
	for _, r := range matched {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) DeleteOwner(ctx context.Context, owner states.Owner) (int, error) {
	ownerKey := s.ownerKey(owner)

	var deleted int
	err := s.watch(ctx, func(tx *backend.Tx) error {
		stored, err := s.ownerRecordsWith(ctx, tx, owner)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			for _, r := range stored {
				pipe.Del(ctx, s.recordKey(r.ID))
				pipe.Del(ctx, s.typeKey(owner, r.StateType))
			}
			pipe.Del(ctx, ownerKey)
			return nil
		})
		deleted = len(stored)
		return err
	}, ownerKey)
	if err != nil {
		return 0, fmt.Errorf("delete owner states: %w", err)
	}
	return deleted, nil
}

func (s *Store) ownerRecords(ctx context.Context, owner states.Owner) ([]storedRecord, error) {
	return s.ownerRecordsWith(ctx, s.client, owner)
}

// indexReader is satisfied by both the client and a *backend.Tx.
type indexReader interface {
	ZRange(ctx context.Context, key string, start, stop int64) *backend.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *backend.SliceCmd
}

func (s *Store) ownerRecordsWith(ctx context.Context, c indexReader, owner states.Owner) ([]storedRecord, error) {
	ids, err := c.ZRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list owner index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.recordKey(id))
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}

	out := make([]storedRecord, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r storedRecord
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// watch runs fn in an optimistic transaction over keys, retrying while
// another client modifies them.
func (s *Store) watch(ctx context.Context, fn func(tx *backend.Tx) error, keys ...string) error {
	for range s.maxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTooMuchContention
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store) recordKey(id string) string {
	return s.key("state", url.QueryEscape(id))
}

func (s *Store) ownerKey(owner states.Owner) string {
	return s.key("owner", url.QueryEscape(string(owner.Kind)), url.QueryEscape(owner.ID))
}

func (s *Store) typeKey(owner states.Owner, stateType string) string {
	return s.key("owner", url.QueryEscape(string(owner.Kind)), url.QueryEscape(owner.ID), "type", url.QueryEscape(stateType))
}

func (r storedRecord) record() (*states.Record, error) {
	md, err := states.DecodeMetadata(r.Metadata)
	if err != nil {
		return nil, err
	}
	rec := &states.Record{
		ID:            r.ID,
		Discriminator: r.Discriminator,
		Owner:         states.Owner{Kind: states.OwnerKind(r.OwnerKind), ID: r.OwnerID},
		StateType:     r.StateType,
		Status:        r.Status,
		Metadata:      md,
		CreatedAt:     time.UnixMicro(r.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMicro(r.UpdatedAt).UTC(),
	}
	if r.CompletedAt != nil {
		t := time.UnixMicro(*r.CompletedAt).UTC()
		rec.CompletedAt = &t
	}
	return rec, nil
}

func micros(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMicro()
	return &v
}
