package sqlite

const schemaSQL = `
-- Indicator identities: one row per canonical indicator id
CREATE TABLE IF NOT EXISTS indicators (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	name_vi TEXT,
	category TEXT NOT NULL,
	unit TEXT,
	value REAL NOT NULL,
	change REAL DEFAULT 0,
	change_pct REAL DEFAULT 0,
	trend TEXT DEFAULT 'stable',
	source TEXT,
	source_url TEXT,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_indicators_category ON indicators(category);

-- Time series: one row per datum, same-day republished values are no-ops
CREATE TABLE IF NOT EXISTS indicator_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	indicator_id TEXT NOT NULL,
	value REAL NOT NULL,
	previous_value REAL DEFAULT 0,
	change REAL DEFAULT 0,
	change_pct REAL DEFAULT 0,
	volume REAL DEFAULT 0,
	date INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	source TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_history_dedup
	ON indicator_history(indicator_id, date, value);
CREATE INDEX IF NOT EXISTS idx_history_lookup
	ON indicator_history(indicator_id, date DESC);

-- Analyzed events; hash is the identity fingerprint for dedup
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	hash TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT,
	content TEXT,
	source TEXT NOT NULL,
	source_url TEXT,
	published_at INTEGER NOT NULL,
	run_date INTEGER NOT NULL,
	is_market_relevant INTEGER DEFAULT 0,
	category TEXT,
	region TEXT,
	linked_indicators TEXT,
	base_score REAL DEFAULT 0,
	score_factors TEXT,
	score_error TEXT,
	current_score REAL DEFAULT 0,
	decay_factor REAL DEFAULT 1,
	boost_factor REAL DEFAULT 1,
	display_section TEXT DEFAULT 'other_news',
	hot_topic INTEGER DEFAULT 0,
	is_follow_up INTEGER DEFAULT 0,
	thread_id TEXT,
	last_ranked_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_hash ON events(hash);
CREATE INDEX IF NOT EXISTS idx_events_section ON events(display_section, current_score DESC);
CREATE INDEX IF NOT EXISTS idx_events_published ON events(published_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_source_published ON events(source, published_at DESC);

-- Causal chains, 0..1 per event
CREATE TABLE IF NOT EXISTS causal_analyses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL UNIQUE,
	matched_template_id TEXT,
	chain TEXT NOT NULL,
	confidence TEXT NOT NULL,
	investigation_hints TEXT,
	affected_indicators TEXT,
	reasoning TEXT,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
);

-- Scheduled economic events
CREATE TABLE IF NOT EXISTS calendar_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_name TEXT NOT NULL,
	country TEXT NOT NULL,
	date INTEGER NOT NULL,
	time TEXT,
	importance TEXT,
	previous TEXT,
	forecast TEXT,
	actual TEXT,
	created_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_calendar_dedup
	ON calendar_events(date, event_name, country);
CREATE INDEX IF NOT EXISTS idx_calendar_date ON calendar_events(date);

-- Bounded predictions
CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	prediction TEXT NOT NULL,
	direction TEXT NOT NULL,
	target_indicator TEXT NOT NULL,
	target_range_low REAL,
	target_range_high REAL,
	confidence TEXT NOT NULL,
	timeframe_days INTEGER NOT NULL,
	source_event_ids TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	actual_value REAL,
	reasoning TEXT,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	verified_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_signals_indicator ON signals(target_indicator, status);

-- Event/signal clusters
CREATE TABLE IF NOT EXISTS themes (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	name_vi TEXT,
	description TEXT,
	strength REAL DEFAULT 0,
	peak_strength REAL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'emerging',
	linked_event_ids TEXT,
	linked_signal_ids TEXT,
	linked_indicators TEXT,
	first_seen_at INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_themes_status ON themes(status, strength DESC);

-- Declarative triggers
CREATE TABLE IF NOT EXISTS watchlist (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	description TEXT NOT NULL,
	indicator_id TEXT,
	condition TEXT,
	keyword TEXT,
	trigger_date INTEGER,
	status TEXT NOT NULL DEFAULT 'watching',
	snoozed_until INTEGER,
	created_at INTEGER NOT NULL,
	triggered_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_watchlist_status ON watchlist(status, type);

-- One row per orchestrator pass
CREATE TABLE IF NOT EXISTS run_history (
	id TEXT PRIMARY KEY,
	run_date INTEGER NOT NULL,
	status TEXT NOT NULL,
	summary TEXT,
	metrics_ingested INTEGER DEFAULT 0,
	calendar_ingested INTEGER DEFAULT 0,
	events_collected INTEGER DEFAULT 0,
	duplicates_skipped INTEGER DEFAULT 0,
	events_classified INTEGER DEFAULT 0,
	events_relevant INTEGER DEFAULT 0,
	events_scored INTEGER DEFAULT 0,
	events_ranked INTEGER DEFAULT 0,
	signals_created INTEGER DEFAULT 0,
	signals_verified INTEGER DEFAULT 0,
	errors TEXT,
	started_at INTEGER NOT NULL,
	completed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_date ON run_history(run_date DESC);

-- LLM call audit, append-only
CREATE TABLE IF NOT EXISTS llm_call_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	task_type TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	messages TEXT NOT NULL,
	response TEXT,
	input_tokens INTEGER DEFAULT 0,
	output_tokens INTEGER DEFAULT 0,
	latency_ms INTEGER DEFAULT 0,
	success INTEGER NOT NULL,
	error TEXT,
	is_valid_json INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_llm_calls_run ON llm_call_history(run_id, created_at);
`

// InitSchema initializes the database schema
func (s *SQLiteDB) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return err
	}
	s.logger.Info().Msg("Database schema initialized")

	// Run migrations for schema evolution
	if err := s.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations checks for and applies schema migrations for existing
// databases. Forward-only, idempotent.
func (s *SQLiteDB) runMigrations() error {
	rows, err := s.db.Query(`PRAGMA table_info(events)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	hasThreadID := false
	hasScoreError := false

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, dfltValue, pk interface{}
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		switch name {
		case "thread_id":
			hasThreadID = true
		case "score_error":
			hasScoreError = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if !hasThreadID {
		s.logger.Info().Msg("Running migration: Adding thread_id column to events")
		if _, err := s.db.Exec(`ALTER TABLE events ADD COLUMN thread_id TEXT`); err != nil {
			return err
		}
	}

	if !hasScoreError {
		s.logger.Info().Msg("Running migration: Adding score_error column to events")
		if _, err := s.db.Exec(`ALTER TABLE events ADD COLUMN score_error TEXT`); err != nil {
			return err
		}
	}

	return nil
}
