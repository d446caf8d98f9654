package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the engine's storage layout. Applied idempotently at startup and
// by the integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS ref_users (
    id                  BIGSERIAL PRIMARY KEY,
    username            TEXT NOT NULL,
    code                TEXT NOT NULL,
    first_name          TEXT NOT NULL DEFAULT '',
    last_name           TEXT NOT NULL DEFAULT '',
    phone               TEXT NOT NULL DEFAULT '',
    messaging_id        TEXT NOT NULL DEFAULT '',
    referred_by_user_id BIGINT REFERENCES ref_users (id),
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT ref_users_username_key UNIQUE (username),
    CONSTRAINT ref_users_code_key UNIQUE (code),
    CONSTRAINT ref_users_no_self_referral CHECK (referred_by_user_id IS NULL OR referred_by_user_id <> id)
);

CREATE TABLE IF NOT EXISTS referrals (
    id               BIGSERIAL PRIMARY KEY,
    referrer_user_id BIGINT NOT NULL REFERENCES ref_users (id),
    referred_user_id BIGINT NOT NULL REFERENCES ref_users (id),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT referrals_pair_key UNIQUE (referrer_user_id, referred_user_id)
);

CREATE TABLE IF NOT EXISTS reserved_accounts (
    id               BIGSERIAL PRIMARY KEY,
    username         TEXT NOT NULL UNIQUE,
    currency         TEXT NOT NULL DEFAULT '',
    is_assigned      BOOLEAN NOT NULL DEFAULT FALSE,
    assigned_user_id BIGINT REFERENCES ref_users (id),
    assigned_at      TIMESTAMPTZ,
    notes            TEXT NOT NULL DEFAULT '',
    CONSTRAINT reserved_accounts_assignment_check CHECK (is_assigned = (assigned_user_id IS NOT NULL))
);

CREATE TABLE IF NOT EXISTS blacklist (
    id         BIGSERIAL PRIMARY KEY,
    kind       TEXT NOT NULL,
    value      TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ref_users_phone        ON ref_users (phone);
CREATE INDEX IF NOT EXISTS idx_ref_users_messaging_id ON ref_users (messaging_id);
CREATE INDEX IF NOT EXISTS idx_reserved_currency      ON reserved_accounts (currency, is_assigned);
CREATE INDEX IF NOT EXISTS idx_blacklist_kind_value   ON blacklist (kind, value) WHERE active;
`

// EnsureSchema applies the schema. Safe to run on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
