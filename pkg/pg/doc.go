// Package pg bootstraps PostgreSQL access over github.com/jackc/pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config (populated from PG_* environment
// variables) with bounded, context-aware retries. Migrate runs goose
// migrations from an fs.FS, typically an embed.FS exported by the package that
// owns the schema:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, notifications.Migrations, notifications.MigrationsDir, cfg, log); err != nil {
//		return err
//	}
//
// IsNotFoundError and IsDuplicateKeyError classify pgx errors.
package pg
