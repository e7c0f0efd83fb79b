// Package pg bootstraps the Postgres side of metastates on top of pgx/v5.
//
// Config is populated from PG_* environment variables (see the struct tags).
// Connect opens a *pgxpool.Pool, retrying while the database comes up, and
// Migrate applies the embedded goose migrations that create the
// metastates_states table and its indexes:
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//		return err
//	}
//
// IsDuplicateKeyError, IsSerializationError and IsNotFoundError classify
// errors returned by pgx.
package pg
