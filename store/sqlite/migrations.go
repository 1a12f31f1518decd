package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// chargeConflictMessage is raised by the charge insert trigger.
const chargeConflictMessage = "pullpay: charge slot conflict"

// Migrations is the grove migration group for the pullpay store (SQLite).
var Migrations = migrate.NewGroup("pullpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_pullpay_products",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS pullpay_products (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    owner          TEXT NOT NULL,
    token          TEXT NOT NULL,
    cost           TEXT NOT NULL,
    period_seconds INTEGER NOT NULL CHECK (period_seconds > 0),
    metadata_ref   TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
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
    product_id     INTEGER NOT NULL REFERENCES pullpay_products (id),
    subscriber     TEXT NOT NULL,
    email          TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'pending',
    seq            INTEGER NOT NULL,
    next_charge_at INTEGER NOT NULL,
    failures       INTEGER NOT NULL DEFAULT 0,
    ended_at       INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_subs_billable
    ON pullpay_subscriptions (product_id, subscriber)
    WHERE status IN ('pending', 'active');
CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_subs_seq ON pullpay_subscriptions (seq);
CREATE INDEX IF NOT EXISTS idx_pullpay_subs_product_seq ON pullpay_subscriptions (product_id, seq);
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
    product_id      INTEGER NOT NULL REFERENCES pullpay_products (id),
    subscription_id TEXT NOT NULL REFERENCES pullpay_subscriptions (id),
    subscriber      TEXT NOT NULL,
    amount          TEXT NOT NULL,
    token           TEXT NOT NULL,
    charged_at      INTEGER NOT NULL,
    email           TEXT NOT NULL DEFAULT '',
    tx_ref          TEXT NOT NULL DEFAULT '',
    run_id          TEXT NOT NULL DEFAULT '',
    recorded_at     INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_pullpay_charges_slot ON pullpay_charges (subscription_id, charged_at);
CREATE INDEX IF NOT EXISTS idx_pullpay_charges_product ON pullpay_charges (product_id, charged_at, subscriber);

CREATE TRIGGER IF NOT EXISTS trg_pullpay_charges_slot
BEFORE INSERT ON pullpay_charges
BEGIN
    SELECT RAISE(ABORT, '` + chargeConflictMessage + `')
    WHERE NOT EXISTS (
        SELECT 1 FROM pullpay_subscriptions
        WHERE id = NEW.subscription_id
          AND product_id = NEW.product_id
          AND next_charge_at = NEW.charged_at
          AND status IN ('pending', 'active')
    );
END;

CREATE TRIGGER IF NOT EXISTS trg_pullpay_charges_advance
AFTER INSERT ON pullpay_charges
BEGIN
    UPDATE pullpay_subscriptions
    SET next_charge_at = next_charge_at + (SELECT period_seconds FROM pullpay_products WHERE id = NEW.product_id),
        failures = 0,
        status = 'active',
        updated_at = NEW.recorded_at
    WHERE id = NEW.subscription_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS trg_pullpay_charges_advance;
DROP TRIGGER IF EXISTS trg_pullpay_charges_slot;
DROP TABLE IF EXISTS pullpay_charges;
`)
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
    product_id INTEGER NOT NULL REFERENCES pullpay_products (id),
    owner      TEXT NOT NULL,
    amount     TEXT NOT NULL,
    tx_ref     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
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
