package sqldb

import (
	"fmt"
	"strconv"
)

type dialect struct {
	name string
	// dollar placeholders ($1, $2) instead of ?.
	numbered bool
	schema   []string
	upsert   string
}

func (d dialect) placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// placeholders renders n consecutive placeholders starting at from.
func (d dialect) placeholders(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.placeholder(from + i)
	}
	return out
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS account (
			id              TEXT    NOT NULL PRIMARY KEY,
			tier            TEXT    NOT NULL,
			ai_used         INTEGER NOT NULL DEFAULT 0,
			ai_reset_ts     BIGINT  NOT NULL,
			storage_used_mb INTEGER NOT NULL DEFAULT 0,
			created_ts      BIGINT  NOT NULL,
			updated_ts      BIGINT  NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_event (
			id                TEXT    NOT NULL PRIMARY KEY,
			account_id        TEXT    NOT NULL,
			category          TEXT    NOT NULL,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			quota_units       INTEGER NOT NULL DEFAULT 0,
			status            TEXT    NOT NULL,
			latency_ms        BIGINT  NOT NULL DEFAULT 0,
			created_ts        BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_event_account_ts ON usage_event(account_id, created_ts)`,
	},
	upsert: `INSERT INTO account (id, tier, ai_reset_ts, created_ts, updated_ts)
	         VALUES (?, ?, ?, ?, ?)
	         ON CONFLICT(id) DO UPDATE SET tier = excluded.tier, updated_ts = excluded.updated_ts`,
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS account (
			id              TEXT    PRIMARY KEY,
			tier            TEXT    NOT NULL,
			ai_used         INTEGER NOT NULL DEFAULT 0,
			ai_reset_ts     BIGINT  NOT NULL,
			storage_used_mb INTEGER NOT NULL DEFAULT 0,
			created_ts      BIGINT  NOT NULL,
			updated_ts      BIGINT  NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_event (
			id                TEXT    PRIMARY KEY,
			account_id        TEXT    NOT NULL,
			category          TEXT    NOT NULL,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens      INTEGER NOT NULL DEFAULT 0,
			quota_units       INTEGER NOT NULL DEFAULT 0,
			status            TEXT    NOT NULL,
			latency_ms        BIGINT  NOT NULL DEFAULT 0,
			created_ts        BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_event_account_ts ON usage_event(account_id, created_ts)`,
	},
	upsert: `INSERT INTO account (id, tier, ai_reset_ts, created_ts, updated_ts)
	         VALUES ($1, $2, $3, $4, $5)
	         ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier, updated_ts = EXCLUDED.updated_ts`,
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS account (
			id              VARCHAR(191) NOT NULL PRIMARY KEY,
			tier            VARCHAR(32)  NOT NULL,
			ai_used         INT          NOT NULL DEFAULT 0,
			ai_reset_ts     BIGINT       NOT NULL,
			storage_used_mb INT          NOT NULL DEFAULT 0,
			created_ts      BIGINT       NOT NULL,
			updated_ts      BIGINT       NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS usage_event (
			id                VARCHAR(64)  NOT NULL PRIMARY KEY,
			account_id        VARCHAR(191) NOT NULL,
			category          VARCHAR(32)  NOT NULL,
			prompt_tokens     INT          NOT NULL DEFAULT 0,
			completion_tokens INT          NOT NULL DEFAULT 0,
			total_tokens      INT          NOT NULL DEFAULT 0,
			quota_units       INT          NOT NULL DEFAULT 0,
			status            VARCHAR(16)  NOT NULL,
			latency_ms        BIGINT       NOT NULL DEFAULT 0,
			created_ts        BIGINT       NOT NULL,
			INDEX idx_usage_event_account_ts (account_id, created_ts)
		)`,
	},
	upsert: `INSERT INTO account (id, tier, ai_reset_ts, created_ts, updated_ts)
	         VALUES (?, ?, ?, ?, ?)
	         ON DUPLICATE KEY UPDATE tier = VALUES(tier), updated_ts = VALUES(updated_ts)`,
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return sqliteDialect, nil
	case "postgres":
		return postgresDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}
