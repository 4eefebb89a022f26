package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS wallet_users (
	id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT wallet_users_id_nonempty CHECK (length(id) > 0),
	CONSTRAINT wallet_users_address_nonempty CHECK (length(wallet_address) > 0)
);
`
