package sqlite

// schema mirrors the PostgreSQL migrations. Money is stored in integer
// cents, odds in micro-units, timestamps in unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS markets (
	id                TEXT PRIMARY KEY,
	question          TEXT    NOT NULL,
	total_pool_cents  INTEGER NOT NULL DEFAULT 0 CHECK (total_pool_cents >= 0),
	status            TEXT    NOT NULL DEFAULT 'OPEN'
	                  CHECK (status IN ('OPEN', 'RESOLVED', 'CANCELED')),
	resolution_result TEXT,
	ends_at           INTEGER NOT NULL,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL,
	settled_at        INTEGER
);

CREATE INDEX IF NOT EXISTS idx_markets_status_created ON markets (status, created_at);
CREATE INDEX IF NOT EXISTS idx_markets_settled_at ON markets (settled_at);

CREATE TABLE IF NOT EXISTS market_outcomes (
	market_id  TEXT    NOT NULL REFERENCES markets (id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	name       TEXT    NOT NULL,
	pool_cents INTEGER NOT NULL DEFAULT 0 CHECK (pool_cents >= 0),
	PRIMARY KEY (market_id, name),
	UNIQUE (market_id, position)
);

CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	name          TEXT    NOT NULL,
	balance_cents INTEGER NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bets (
	id                     TEXT PRIMARY KEY,
	market_id              TEXT    NOT NULL,
	account_id             TEXT    NOT NULL REFERENCES accounts (id),
	side                   TEXT    NOT NULL,
	amount_cents           INTEGER NOT NULL CHECK (amount_cents > 0),
	odds_micros            INTEGER NOT NULL CHECK (odds_micros > 0),
	potential_payout_cents INTEGER NOT NULL,
	status                 TEXT    NOT NULL DEFAULT 'ACTIVE'
	                       CHECK (status IN ('ACTIVE', 'WON', 'LOST', 'CASHED_OUT', 'REFUNDED')),
	payout_cents           INTEGER NOT NULL DEFAULT 0 CHECK (payout_cents >= 0),
	placed_at              INTEGER NOT NULL,
	settled_at             INTEGER,
	FOREIGN KEY (market_id, side) REFERENCES market_outcomes (market_id, name)
);

CREATE INDEX IF NOT EXISTS idx_bets_market_status ON bets (market_id, status);
CREATE INDEX IF NOT EXISTS idx_bets_account_placed ON bets (account_id, placed_at);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id                  TEXT PRIMARY KEY,
	account_id          TEXT    NOT NULL REFERENCES accounts (id),
	kind                TEXT    NOT NULL,
	amount_cents        INTEGER NOT NULL,
	balance_after_cents INTEGER NOT NULL,
	market_id           TEXT,
	bet_id              TEXT,
	description         TEXT    NOT NULL DEFAULT '',
	created_at          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_account_created ON ledger_entries (account_id, created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event      TEXT    NOT NULL,
	market_id  TEXT,
	detail     TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_market ON audit_log (market_id, created_at);
`
