package storage

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS players (
		steam_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		persona_name TEXT NOT NULL DEFAULT '',
		profile_url TEXT NOT NULL DEFAULT '',
		avatar TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS player_names (
		steam_id TEXT NOT NULL REFERENCES players(steam_id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		last_seen INTEGER NOT NULL,
		PRIMARY KEY (steam_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_player_names_name ON player_names(name)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		steam_id TEXT NOT NULL REFERENCES players(steam_id) ON DELETE CASCADE,
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_steam_open ON sessions(steam_id, ended_at)`,
	`CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		steam_id TEXT NOT NULL,
		player_name TEXT NOT NULL DEFAULT '',
		action_type TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_actions_steam_time ON actions(steam_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS blacklist (
		steam_id TEXT PRIMARY KEY,
		blacklisted INTEGER NOT NULL DEFAULT 1,
		reason TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
}
