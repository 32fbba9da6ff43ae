// Package migrations embeds the schema so the service can apply it on start.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/libs/db"
)

//go:embed *.sql
var files embed.FS

// Versions lists the embedded migrations in apply order.
func Versions() ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			versions = append(versions, strings.TrimSuffix(e.Name(), ".sql"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Apply runs every migration not yet recorded in schema_migrations, each in its own
// transaction. It returns the versions it applied.
func Apply(ctx context.Context, pool *db.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, err
	}
	versions, err := Versions()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, v := range versions {
		var exists bool
		if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, v).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			continue
		}
		sql, err := files.ReadFile(v + ".sql")
		if err != nil {
			return applied, err
		}
		err = pool.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, v)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", v, err)
		}
		applied = append(applied, v)
	}
	return applied, nil
}
