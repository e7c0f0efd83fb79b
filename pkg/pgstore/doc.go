// Package pgstore implements states.Store on Postgres using pgx/v5.
//
// The schema is created by pg.Migrate. Create runs the limit check and the
// insert in one transaction holding a transaction-scoped advisory lock keyed
// by owner and state type, so concurrent writers for the same owner are
// serialized while unrelated owners proceed in parallel.
package pgstore
