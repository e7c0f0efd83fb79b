package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/metastates/pkg/pg"
	"github.com/dmitrymomot/metastates/pkg/states"
)

// ErrDuplicateID is returned when a record id already exists.
var ErrDuplicateID = errors.New("pgstore: duplicate record id")

const columns = `id, discriminator, state_type, status, metadata, stateable_type, stateable_id, completed_at, created_at, updated_at`

// Store is a Postgres-backed states.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ states.Store = (*Store)(nil)

// New returns a store on top of pool. Run pg.Migrate first.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, rec *states.Record, limit int) error {
	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if rec.Metadata == nil {
		md = []byte("{}")
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if limit > 0 {
			if _, err := tx.Exec(ctx,
				`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
				lockKey(rec.Owner, rec.StateType),
			); err != nil {
				return fmt.Errorf("acquire limit lock: %w", err)
			}

			n, err := count(ctx, tx, rec.Owner, rec.StateType)
			if err != nil {
				return err
			}
			if n >= limit {
				return states.ErrLimitExceeded
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO metastates_states (`+columns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, rec.Discriminator, rec.StateType, rec.Status, string(md),
			string(rec.Owner.Kind), rec.Owner.ID, rec.CompletedAt, rec.CreatedAt, rec.UpdatedAt,
		)
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
		if err != nil {
			return fmt.Errorf("insert state: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateStatus(ctx context.Context, id string, upd states.StatusUpdate) (*states.Record, error) {
	row := s.pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, status FROM metastates_states WHERE id = $1 FOR UPDATE
		)
		UPDATE metastates_states AS s
		   SET status = $2,
		       completed_at = COALESCE($3::timestamptz, s.completed_at),
		       updated_at = $4
		  FROM prev
		 WHERE s.id = prev.id
		RETURNING prev.status, s.id, s.discriminator, s.state_type, s.status, s.metadata,
		          s.stateable_type, s.stateable_id, s.completed_at, s.created_at, s.updated_at`,
		id, upd.Status, upd.CompletedAt, upd.UpdatedAt,
	)

	var prev string
	rec, err := scanRecord(row, &prev)
	if pg.IsNotFoundError(err) {
		return nil, states.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}
	rec.PreviousStatus = prev
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (*states.Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM metastates_states WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if pg.IsNotFoundError(err) {
		return nil, states.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return rec, nil
}

func (s *Store) Count(ctx context.Context, owner states.Owner, stateType string) (int, error) {
	return count(ctx, s.pool, owner, stateType)
}

func (s *Store) List(ctx context.Context, q states.Query) ([]*states.Record, error) {
	var (
		where = []string{"stateable_type = $1", "stateable_id = $2"}
		args  = []any{string(q.Owner.Kind), q.Owner.ID}
	)
	if q.StateType != "" {
		args = append(args, q.StateType)
		where = append(where, fmt.Sprintf("state_type = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + columns + ` FROM metastates_states WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, seq DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	out := make([]*states.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteOwner(ctx context.Context, owner states.Owner) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM metastates_states WHERE stateable_type = $1 AND stateable_id = $2`,
		string(owner.Kind), owner.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete owner states: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func count(ctx context.Context, q querier, owner states.Owner, stateType string) (int, error) {
	var n int
	err := q.QueryRow(ctx,
		`SELECT count(*) FROM metastates_states
		  WHERE stateable_type = $1 AND stateable_id = $2 AND state_type = $3`,
		string(owner.Kind), owner.ID, stateType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count states: %w", err)
	}
	return n, nil
}

func lockKey(owner states.Owner, stateType string) string {
	return "metastates:" + owner.String() + ":" + stateType
}

// scanRecord reads the columns list, optionally preceded by extra destinations.
func scanRecord(row pgx.Row, extra ...any) (*states.Record, error) {
	var (
		rec       states.Record
		kind      string
		md        []byte
		completed *time.Time
	)
	dest := append(extra,
		&rec.ID, &rec.Discriminator, &rec.StateType, &rec.Status, &md,
		&kind, &rec.Owner.ID, &completed, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	meta, err := states.DecodeMetadata(md)
	if err != nil {
		return nil, err
	}
	rec.Metadata = meta
	rec.Owner.Kind = states.OwnerKind(kind)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if completed != nil {
		t := completed.UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}
