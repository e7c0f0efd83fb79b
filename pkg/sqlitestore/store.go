// Package sqlitestore implements states.Store on SQLite through the pure-Go
// modernc.org/sqlite driver.
//
// Writes are serialized by a store-level mutex and run in a transaction, so
// the limit check and the insert form one atomic step for every writer using
// the same *Store. Processes sharing one database file should open it with
// "?_txlock=immediate" so that SQLite itself serializes the transactions.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dmitrymomot/metastates/pkg/states"
)

// ErrDuplicateID is returned when a record id already exists.
var ErrDuplicateID = errors.New("sqlitestore: duplicate record id")

const columns = `id, discriminator, state_type, status, metadata, stateable_type, stateable_id, completed_at, created_at, updated_at`

// Store is a SQLite-backed states.Store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ states.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS metastates_states (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		id             TEXT NOT NULL UNIQUE,
		discriminator  TEXT NOT NULL DEFAULT '',
		state_type     TEXT NOT NULL,
		status         TEXT NOT NULL,
		metadata       TEXT NOT NULL DEFAULT '{}',
		stateable_type TEXT NOT NULL,
		stateable_id   TEXT NOT NULL,
		completed_at   INTEGER,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_metastates_stateable ON metastates_states(stateable_type, stateable_id);
	CREATE INDEX IF NOT EXISTS idx_metastates_id_type ON metastates_states(stateable_id, state_type);
	CREATE INDEX IF NOT EXISTS idx_metastates_id_type_status ON metastates_states(stateable_id, state_type, status);
	CREATE INDEX IF NOT EXISTS idx_metastates_id_type_created ON metastates_states(stateable_id, state_type, created_at);
	CREATE INDEX IF NOT EXISTS idx_metastates_id_type_status_created ON metastates_states(stateable_id, state_type, status, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Create(ctx context.Context, rec *states.Record, limit int) error {
	md, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if limit > 0 {
		n, err := count(ctx, tx, rec.Owner, rec.StateType)
		if err != nil {
			return err
		}
		if n >= limit {
			return states.ErrLimitExceeded
		}
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT count(*) FROM metastates_states WHERE id = ?`, rec.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO metastates_states (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Discriminator, rec.StateType, rec.Status, md,
		string(rec.Owner.Kind), rec.Owner.ID, toMicros(rec.CompletedAt), rec.CreatedAt.UnixMicro(), rec.UpdatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("insert state: %w", err)
	}
	return tx.Commit()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, upd states.StatusUpdate) (*states.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM metastates_states WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, states.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE metastates_states SET status = ?, completed_at = COALESCE(?, completed_at), updated_at = ? WHERE id = ?`,
		upd.Status, toMicros(upd.CompletedAt), upd.UpdatedAt.UnixMicro(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	rec.PreviousStatus = rec.Status
	rec.Status = upd.Status
	rec.UpdatedAt = upd.UpdatedAt.UTC().Truncate(time.Microsecond)
	if upd.CompletedAt != nil {
		t := upd.CompletedAt.UTC().Truncate(time.Microsecond)
		rec.CompletedAt = &t
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, id string) (*states.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM metastates_states WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, states.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return rec, nil
}

func (s *Store) Count(ctx context.Context, owner states.Owner, stateType string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return count(ctx, s.db, owner, stateType)
}

func (s *Store) List(ctx context.Context, q states.Query) ([]*states.Record, error) {
	var (
		where = []string{"stateable_type = ?", "stateable_id = ?"}
		args  = []any{string(q.Owner.Kind), q.Owner.ID}
	)
	if q.StateType != "" {
		where = append(where, "state_type = ?")
		args = append(args, q.StateType)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	query := `SELECT ` + columns + ` FROM metastates_states WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, seq DESC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
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
	return out, rows.Err()
}

func (s *Store) DeleteOwner(ctx context.Context, owner states.Owner) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metastates_states WHERE stateable_type = ? AND stateable_id = ?`,
		string(owner.Kind), owner.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete owner states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func count(ctx context.Context, q queryRower, owner states.Owner, stateType string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT count(*) FROM metastates_states WHERE stateable_type = ? AND stateable_id = ? AND state_type = ?`,
		string(owner.Kind), owner.ID, stateType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count states: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*states.Record, error) {
	var (
		rec                  states.Record
		kind, md             string
		completed            sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.Discriminator, &rec.StateType, &rec.Status, &md,
		&kind, &rec.Owner.ID, &completed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	meta, err := states.DecodeMetadata([]byte(md))
	if err != nil {
		return nil, err
	}
	rec.Metadata = meta
	rec.Owner.Kind = states.OwnerKind(kind)
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	rec.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if completed.Valid {
		t := time.UnixMicro(completed.Int64).UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func encodeMetadata(md states.Metadata) (string, error) {
	if md == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func toMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMicro()
}
