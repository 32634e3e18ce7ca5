// Package schema owns the database schema of the app.
package schema

import (
	"context"
	_ "embed"

	kpool "github.com/guojinxiang/ndvi-time-series/pkg/conn/db/postgres/pool"
	xe "github.com/guojinxiang/ndvi-time-series/pkg/errors"
)

//go:embed schema.sql
var ddl string

// Apply brings the database up to the current schema. All statements are
// idempotent, so Apply may run on every startup.
func Apply(ctx context.Context, pool kpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return xe.WrapWithNote(err, "applying the database schema")
	}
	return nil
}
