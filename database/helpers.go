package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables if they are missing.
func (db *Database) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (db *Database) rollbackOrCommit(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logger.Error("transaction rollback failed", zap.Error(rbErr), zap.NamedError("cause", *err))
		} else {
			db.logger.Warn("transaction rolled back", zap.Error(*err))
		}
		return
	}
	if cmErr := tx.Commit(ctx); cmErr != nil {
		*err = fmt.Errorf("commit failed: %w", cmErr)
		db.logger.Error("transaction commit failed", zap.Error(cmErr))
	}
}

// pruneDistros removes every address in remove from every list. It reports whether
// anything changed. The input is not modified.
func pruneDistros(distros Distros, remove map[string]struct{}) (Distros, bool) {
	changed := false
	out := make(Distros, len(distros))
	for name, members := range distros {
		kept := make([]string, 0, len(members))
		for _, m := range members {
			if _, drop := remove[m]; drop {
				changed = true
				continue
			}
			kept = append(kept, m)
		}
		out[name] = kept
	}
	return out, changed
}
