// Package sqldb implements the ledger driver on database/sql for sqlite,
// postgres and mysql.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"docmind/internal/store"
)

// DB is a store.Driver over one SQL connection pool.
type DB struct {
	db      *sql.DB
	dialect dialect
}

var _ store.Driver = (*DB)(nil)

// Open connects using the named driver (sqlite, postgres or mysql).
func Open(driver, dsn string) (*DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if driver == "mysql" {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// rows-affected must count matched rows for conditional updates
		cfg.ClientFoundRows = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY and keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	return &DB{db: db, dialect: d}, nil
}

func (d *DB) EnsureTables(ctx context.Context) error {
	for _, s := range d.dialect.schema {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure %s tables: %w", d.dialect.name, err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) UpsertAccount(ctx context.Context, upsert *store.UpsertAccount) (*store.Account, error) {
	if _, err := d.db.ExecContext(ctx, d.dialect.upsert,
		upsert.ID, upsert.Tier, upsert.AIResetTs, upsert.NowTs, upsert.NowTs,
	); err != nil {
		return nil, err
	}
	account, err := d.GetAccount(ctx, &store.FindAccount{ID: upsert.ID})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (d *DB) GetAccount(ctx context.Context, find *store.FindAccount) (*store.Account, error) {
	query := `SELECT id, tier, ai_used, ai_reset_ts, storage_used_mb, created_ts, updated_ts
	          FROM account WHERE id = ` + d.dialect.placeholder(1)
	a := &store.Account{}
	err := d.db.QueryRowContext(ctx, query, find.ID).
		Scan(&a.ID, &a.Tier, &a.AIUsed, &a.AIResetTs, &a.StorageUsedMB, &a.CreatedTs, &a.UpdatedTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DB) ResetAIUsage(ctx context.Context, reset *store.ResetAIUsage) (bool, error) {
	p := d.dialect.placeholders(1, 4)
	stmt := fmt.Sprintf(
		`UPDATE account SET ai_used = 0, ai_reset_ts = %s, updated_ts = %s
		 WHERE id = %s AND ai_reset_ts = %s`,
		p[0], p[1], p[2], p[3],
	)
	res, err := d.db.ExecContext(ctx, stmt, reset.NextResetTs, reset.NowTs, reset.ID, reset.ExpectedResetTs)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (d *DB) IncrementUsage(ctx context.Context, inc *store.IncrementUsage) (bool, error) {
	column, err := usageColumn(inc.Kind)
	if err != nil {
		return false, err
	}
	units, now, id := d.dialect.placeholder(1), d.dialect.placeholder(2), d.dialect.placeholder(3)
	args := []any{inc.Units, inc.NowTs, inc.ID}
	unitsAgain := units
	if !d.dialect.numbered {
		args = append(args, inc.Units)
	}
	limit := d.dialect.placeholder(len(args) + 1)
	args = append(args, inc.Limit)

	stmt := fmt.Sprintf(
		`UPDATE account SET %[1]s = %[1]s + %[2]s, updated_ts = %[3]s
		 WHERE id = %[4]s AND %[1]s + %[5]s <= %[6]s`,
		column, units, now, id, unitsAgain, limit,
	)
	res, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (d *DB) CreateUsageEvent(ctx context.Context, create *store.UsageEvent) (*store.UsageEvent, error) {
	stmt := fmt.Sprintf(
		`INSERT INTO usage_event (id, account_id, category, prompt_tokens, completion_tokens,
		   total_tokens, quota_units, status, latency_ms, created_ts)
		 VALUES (%s)`,
		strings.Join(d.dialect.placeholders(1, 10), ", "),
	)
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.AccountID, create.Category, create.PromptTokens, create.CompletionTokens,
		create.TotalTokens, create.QuotaUnits, create.Status, create.LatencyMs, create.CreatedTs,
	); err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListUsageEvents(ctx context.Context, find *store.FindUsageEvent) ([]*store.UsageEvent, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.AccountID; v != nil {
		where, args = append(where, "account_id = "+d.dialect.placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.FromTs; v != nil {
		where, args = append(where, "created_ts >= "+d.dialect.placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ToTs; v != nil {
		where, args = append(where, "created_ts < "+d.dialect.placeholder(len(args)+1)), append(args, *v)
	}
	query := fmt.Sprintf(
		`SELECT id, account_id, category, prompt_tokens, completion_tokens, total_tokens,
		   quota_units, status, latency_ms, created_ts
		 FROM usage_event WHERE %s ORDER BY created_ts ASC, id ASC`,
		strings.Join(where, " AND "),
	)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*store.UsageEvent
	for rows.Next() {
		e := &store.UsageEvent{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Category, &e.PromptTokens, &e.CompletionTokens,
			&e.TotalTokens, &e.QuotaUnits, &e.Status, &e.LatencyMs, &e.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func usageColumn(kind store.UsageKind) (string, error) {
	switch kind {
	case store.UsageKindAI:
		return "ai_used", nil
	case store.UsageKindStorage:
		return "storage_used_mb", nil
	default:
		return "", fmt.Errorf("unknown usage kind %q", kind)
	}
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
