package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"f0oster/adsweep/disable"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check: Database records disable outcomes.
var _ disable.AuditRecorder = (*Database)(nil)

type Database struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	logger.Info("connected to postgres", zap.String("host", poolCfg.ConnConfig.Host), zap.String("database", poolCfg.ConnConfig.Database))
	return &Database{pool: pool, logger: logger}, nil
}

func (db *Database) Close() {
	db.pool.Close()
}

// PutDistributionList creates or replaces the lists for an account.
func (db *Database) PutDistributionList(ctx context.Context, rec DistributionListRecord) error {
	raw, err := json.Marshal(rec.EmailDistros)
	if err != nil {
		return fmt.Errorf("encode distros for %s: %w", rec.AccountName, err)
	}
	if _, err := db.pool.Exec(ctx, UpsertDistributionList, rec.AccountName, raw); err != nil {
		return fmt.Errorf("upsert distribution list %s: %w", rec.AccountName, err)
	}
	return nil
}

// PruneEmails removes each address from every distribution list in one
// transaction and returns how many accounts' lists changed.
func (db *Database) PruneEmails(ctx context.Context, emails []string) (updated int, err error) {
	remove := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e != "" {
			remove[e] = struct{}{}
		}
	}
	if len(remove) == 0 {
		return 0, nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer db.rollbackOrCommit(ctx, tx, &err)

	rows, err := tx.Query(ctx, SelectDistributionListsForUpdate)
	if err != nil {
		return 0, fmt.Errorf("select distribution lists: %w", err)
	}
	var records []DistributionListRecord
	for rows.Next() {
		var rec DistributionListRecord
		var raw []byte
		if err = rows.Scan(&rec.AccountName, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan distribution list: %w", err)
		}
		if err = json.Unmarshal(raw, &rec.EmailDistros); err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode distros for %s: %w", rec.AccountName, err)
		}
		records = append(records, rec)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("read distribution lists: %w", err)
	}

	for _, rec := range records {
		pruned, changed := pruneDistros(rec.EmailDistros, remove)
		if !changed {
			continue
		}
		var raw []byte
		raw, err = json.Marshal(pruned)
		if err != nil {
			return 0, fmt.Errorf("encode distros for %s: %w", rec.AccountName, err)
		}
		if _, err = tx.Exec(ctx, UpdateDistributionList, rec.AccountName, raw); err != nil {
			return 0, fmt.Errorf("update distribution list %s: %w", rec.AccountName, err)
		}
		db.logger.Info("pruned distribution lists", zap.String("account_name", rec.AccountName))
		updated++
	}

	return updated, nil
}

// RecordDisable appends a disable outcome to the audit table.
func (db *Database) RecordDisable(ctx context.Context, outcome disable.Outcome) error {
	var errText *string
	if outcome.Err != nil {
		s := outcome.Err.Error()
		errText = &s
	}
	at := outcome.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.pool.Exec(ctx, InsertDisableAudit,
		uuid.New(), outcome.DN, outcome.Actor, outcome.Marker, outcome.Disabled, errText, at)
	if err != nil {
		return fmt.Errorf("insert disable audit for %s: %w", outcome.DN, err)
	}
	return nil
}
