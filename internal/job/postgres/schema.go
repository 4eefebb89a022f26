package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	company_name TEXT NOT NULL,
	position TEXT NOT NULL,
	job_description TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	primary_tag TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	apply_url TEXT NOT NULL,
	logo TEXT,
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT jobs_id_nonempty CHECK (length(id) > 0),
	CONSTRAINT jobs_company_nonempty CHECK (length(company_name) > 0),
	CONSTRAINT jobs_position_nonempty CHECK (length(position) > 0),
	CONSTRAINT jobs_apply_url_nonempty CHECK (length(apply_url) > 0),
	CONSTRAINT jobs_user_id_nonempty CHECK (length(user_id) > 0)
);

CREATE INDEX IF NOT EXISTS jobs_user_id_idx ON jobs (user_id);
CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC);
`
