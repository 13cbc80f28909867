package store

// Tables are created idempotently on open. Array columns hold JSON text so
// both dialects share one query set.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS search_profiles (
		id                    TEXT PRIMARY KEY,
		user_id               TEXT NOT NULL,
		name                  TEXT NOT NULL,
		keywords              TEXT NOT NULL,
		location              TEXT NOT NULL,
		radius_km             INTEGER NOT NULL DEFAULT 20,
		employment_types      TEXT NOT NULL DEFAULT '[]',
		salary_min            INTEGER,
		salary_max            INTEGER,
		boards                TEXT NOT NULL,
		qualifications        TEXT NOT NULL DEFAULT '',
		preferences           TEXT NOT NULL DEFAULT '',
		is_active             BOOLEAN NOT NULL DEFAULT 1,
		scrape_interval_hours INTEGER NOT NULL DEFAULT 48,
		last_scraped_at       DATETIME,
		created_at            DATETIME NOT NULL,
		updated_at            DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS search_profiles_user_id_idx ON search_profiles (user_id)`,
	`CREATE TABLE IF NOT EXISTS job_listings (
		id              TEXT PRIMARY KEY,
		external_id     TEXT NOT NULL,
		source_board    TEXT NOT NULL,
		source_url      TEXT NOT NULL UNIQUE,
		title           TEXT NOT NULL,
		company         TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		location_raw    TEXT NOT NULL DEFAULT '',
		salary_display  TEXT NOT NULL DEFAULT '',
		salary_min      REAL,
		salary_max      REAL,
		salary_type     TEXT NOT NULL DEFAULT '',
		employment_type TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL DEFAULT '',
		date_posted     DATETIME,
		expires_at      DATETIME,
		content_hash    TEXT NOT NULL,
		date_scraped    DATETIME NOT NULL,
		created_at      DATETIME NOT NULL,
		updated_at      DATETIME NOT NULL,
		UNIQUE (source_board, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS job_listings_content_hash_idx ON job_listings (content_hash)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id                TEXT PRIMARY KEY,
		board             TEXT NOT NULL,
		search_profile_id TEXT NOT NULL,
		status            TEXT NOT NULL,
		jobs_found        INTEGER NOT NULL DEFAULT 0,
		jobs_new          INTEGER NOT NULL DEFAULT 0,
		jobs_updated      INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT NOT NULL DEFAULT '',
		started_at        DATETIME NOT NULL,
		completed_at      DATETIME,
		duration_ms       INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS scrape_runs_status_idx ON scrape_runs (status, started_at)`,
	`CREATE TABLE IF NOT EXISTS user_jobs (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		job_listing_id    TEXT NOT NULL,
		search_profile_id TEXT NOT NULL,
		status            TEXT NOT NULL,
		status_changed_at DATETIME NOT NULL,
		ai_score          INTEGER NOT NULL DEFAULT 0,
		ai_recommendation TEXT NOT NULL DEFAULT '',
		ai_reasoning      TEXT NOT NULL DEFAULT '',
		ai_triaged_at     DATETIME,
		date_applied      DATETIME,
		notes             TEXT NOT NULL DEFAULT '',
		tags              TEXT NOT NULL DEFAULT '[]',
		next_action       TEXT NOT NULL DEFAULT '',
		next_action_date  DATETIME,
		priority          INTEGER NOT NULL DEFAULT 0,
		interest_level    INTEGER NOT NULL DEFAULT 0,
		sort_order        INTEGER NOT NULL DEFAULT 0,
		created_at        DATETIME NOT NULL,
		UNIQUE (user_id, job_listing_id)
	)`,
	`CREATE INDEX IF NOT EXISTS user_jobs_user_status_idx ON user_jobs (user_id, status)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS search_profiles (
		id                    TEXT PRIMARY KEY,
		user_id               TEXT NOT NULL,
		name                  TEXT NOT NULL,
		keywords              TEXT NOT NULL,
		location              TEXT NOT NULL,
		radius_km             INTEGER NOT NULL DEFAULT 20,
		employment_types      TEXT NOT NULL DEFAULT '[]',
		salary_min            INTEGER,
		salary_max            INTEGER,
		boards                TEXT NOT NULL,
		qualifications        TEXT NOT NULL DEFAULT '',
		preferences           TEXT NOT NULL DEFAULT '',
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		scrape_interval_hours INTEGER NOT NULL DEFAULT 48,
		last_scraped_at       TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS search_profiles_user_id_idx ON search_profiles (user_id)`,
	`CREATE TABLE IF NOT EXISTS job_listings (
		id              TEXT PRIMARY KEY,
		external_id     TEXT NOT NULL,
		source_board    TEXT NOT NULL,
		source_url      TEXT NOT NULL UNIQUE,
		title           TEXT NOT NULL,
		company         TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		location_raw    TEXT NOT NULL DEFAULT '',
		salary_display  TEXT NOT NULL DEFAULT '',
		salary_min      DOUBLE PRECISION,
		salary_max      DOUBLE PRECISION,
		salary_type     TEXT NOT NULL DEFAULT '',
		employment_type TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL DEFAULT '',
		date_posted     TIMESTAMPTZ,
		expires_at      TIMESTAMPTZ,
		content_hash    TEXT NOT NULL,
		date_scraped    TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		UNIQUE (source_board, external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS job_listings_content_hash_idx ON job_listings (content_hash)`,
	`CREATE TABLE IF NOT EXISTS scrape_runs (
		id                TEXT PRIMARY KEY,
		board             TEXT NOT NULL,
		search_profile_id TEXT NOT NULL,
		status            TEXT NOT NULL,
		jobs_found        INTEGER NOT NULL DEFAULT 0,
		jobs_new          INTEGER NOT NULL DEFAULT 0,
		jobs_updated      INTEGER NOT NULL DEFAULT 0,
		error_message     TEXT NOT NULL DEFAULT '',
		started_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ,
		duration_ms       BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS scrape_runs_status_idx ON scrape_runs (status, started_at)`,
	`CREATE TABLE IF NOT EXISTS user_jobs (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		job_listing_id    TEXT NOT NULL REFERENCES job_listings (id) ON DELETE CASCADE,
		search_profile_id TEXT NOT NULL,
		status            TEXT NOT NULL,
		status_changed_at TIMESTAMPTZ NOT NULL,
		ai_score          INTEGER NOT NULL DEFAULT 0,
		ai_recommendation TEXT NOT NULL DEFAULT '',
		ai_reasoning      TEXT NOT NULL DEFAULT '',
		ai_triaged_at     TIMESTAMPTZ,
		date_applied      TIMESTAMPTZ,
		notes             TEXT NOT NULL DEFAULT '',
		tags              TEXT NOT NULL DEFAULT '[]',
		next_action       TEXT NOT NULL DEFAULT '',
		next_action_date  TIMESTAMPTZ,
		priority          INTEGER NOT NULL DEFAULT 0,
		interest_level    INTEGER NOT NULL DEFAULT 0,
		sort_order        INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, job_listing_id)
	)`,
	`CREATE INDEX IF NOT EXISTS user_jobs_user_status_idx ON user_jobs (user_id, status)`,
}
