package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the pullpay store.
var Migrations = migrate.NewGroup("pullpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_pullpay_products",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_products (
    id             BIGSERIAL PRIMARY KEY,
    owner          TEXT NOT NULL,
    token          TEXT NOT NULL,
    cost           NUMERIC(78,0) NOT NULL CHECK (cost > 0),
    period_seconds BIGINT NOT NULL CHECK (period_seconds > 0),
    balance        NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (balance >= 0),
    metadata_ref   TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pullpay_products_owner ON pullpay_products (owner);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_products`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pullpay_subscriptions",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_subscriptions (
    id             TEXT PRIMARY KEY,
    product_id     BIGINT NOT NULL REFERENCES pullpay_products (id),
    subscriber     TEXT NOT NULL,
    email          TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'pending',
    seq            BIGSERIAL,
    next_charge_at TIMESTAMPTZ NOT NULL,
    failures       INT NOT NULL DEFAULT 0,
    ended_at       TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_subs_billable
    ON pullpay_subscriptions (product_id, subscriber)
    WHERE status IN ('pending', 'active');
CREATE INDEX IF NOT EXISTS idx_pullpay_subs_product_seq ON pullpay_subscriptions (product_id, seq);
CREATE INDEX IF NOT EXISTS idx_pullpay_subs_due ON pullpay_subscriptions (product_id, next_charge_at)
    WHERE status IN ('pending', 'active');
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pullpay_charges",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_charges (
    id              TEXT PRIMARY KEY,
    product_id      BIGINT NOT NULL REFERENCES pullpay_products (id),
    subscription_id TEXT NOT NULL REFERENCES pullpay_subscriptions (id),
    subscriber      TEXT NOT NULL,
    amount          NUMERIC(78,0) NOT NULL,
    token           TEXT NOT NULL,
    charged_at      TIMESTAMPTZ NOT NULL,
    email           TEXT NOT NULL DEFAULT '',
    tx_ref          TEXT NOT NULL DEFAULT '',
    run_id          TEXT NOT NULL DEFAULT '',
    recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_charges_slot ON pullpay_charges (subscription_id, charged_at);
CREATE INDEX IF NOT EXISTS idx_pullpay_charges_product ON pullpay_charges (product_id, charged_at, subscriber);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_charges`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_pullpay_withdrawals",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_withdrawals (
    id         TEXT PRIMARY KEY,
    product_id BIGINT NOT NULL REFERENCES pullpay_products (id),
    owner      TEXT NOT NULL,
    amount     NUMERIC(78,0) NOT NULL CHECK (amount > 0),
    tx_ref     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pullpay_withdrawals_product ON pullpay_withdrawals (product_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS pullpay_withdrawals`)
				return err
			},
		},
	)
}
