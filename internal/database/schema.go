package database

// PostgresSchema is the production schema.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		username VARCHAR(15),
		password VARCHAR(255) NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		referral_code VARCHAR(16) NOT NULL UNIQUE,
		referred_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
		coins INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_country (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		country VARCHAR(64)
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id BIGINT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		balance BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS ip_account_tracking (
		id BIGSERIAL PRIMARY KEY,
		ip_address VARCHAR(64) NOT NULL UNIQUE,
		account_count INTEGER NOT NULL DEFAULT 0,
		last_signup TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_devices (
		id VARCHAR(36) PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ip_address VARCHAR(64),
		fingerprint VARCHAR(64) NOT NULL,
		device_info TEXT NOT NULL,
		location VARCHAR(255),
		last_used TIMESTAMPTZ NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS email_senders (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		host VARCHAR(255) NOT NULL,
		port INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL DEFAULT 500,
		last_reset_date DATE,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_checked TIMESTAMPTZ,
		last_used TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS heroku_api_keys (
		id BIGSERIAL PRIMARY KEY,
		api_key VARCHAR(255) NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL DEFAULT 1000,
		last_reset_date DATE,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_checked TIMESTAMPTZ,
		last_used TIMESTAMPTZ,
		apps_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS deployed_apps (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		bot_id BIGINT NOT NULL,
		app_name VARCHAR(64) NOT NULL UNIQUE,
		heroku_app_name VARCHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users(LOWER(username))`,
	`CREATE INDEX IF NOT EXISTS idx_user_devices_user_fp ON user_devices(user_id, fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_deployed_apps_user_id ON deployed_apps(user_id)`,
}

// SQLiteSchema mirrors PostgresSchema for tests run against sqlite.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		username TEXT,
		password TEXT NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'active',
		referral_code TEXT NOT NULL UNIQUE,
		referred_by INTEGER REFERENCES users(id),
		coins INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		last_login TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_country (
		user_id INTEGER NOT NULL REFERENCES users(id),
		country TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		balance INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS ip_account_tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ip_address TEXT NOT NULL UNIQUE,
		account_count INTEGER NOT NULL DEFAULT 0,
		last_signup TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_devices (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		ip_address TEXT,
		fingerprint TEXT NOT NULL,
		device_info TEXT NOT NULL,
		location TEXT,
		last_used TIMESTAMP NOT NULL,
		is_verified BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS email_senders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		password TEXT NOT NULL,
		host TEXT NOT NULL,
		port INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL DEFAULT 500,
		last_reset_date DATE,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_checked TIMESTAMP,
		last_used TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS heroku_api_keys (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		api_key TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		usage_count INTEGER NOT NULL DEFAULT 0,
		daily_limit INTEGER NOT NULL DEFAULT 1000,
		last_reset_date DATE,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		last_checked TIMESTAMP,
		last_used TIMESTAMP,
		apps_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deployed_apps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		bot_id INTEGER NOT NULL,
		app_name TEXT NOT NULL UNIQUE,
		heroku_app_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL
	)`,
}
