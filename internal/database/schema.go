package database

import (
	_ "embed"
	"fmt"
)

// SupabaseSQL creates the tables and RPC functions the hosted backend needs.
// Run it once in the Supabase SQL editor.
//
//go:embed supabase.sql
var SupabaseSQL string

var mysqlSchema = []string{`
CREATE TABLE IF NOT EXISTS users_credits (
    email VARCHAR(320) NOT NULL PRIMARY KEY,
    credits INT NOT NULL DEFAULT 0,
    telegram_id BIGINT NULL,
    display_name VARCHAR(255) NOT NULL DEFAULT '',
    password_hash VARCHAR(255) NOT NULL DEFAULT '',
    is_premium TINYINT(1) NOT NULL DEFAULT 0,
    generations INT NOT NULL DEFAULT 0,
    tariff VARCHAR(64) NOT NULL DEFAULT '',
    subscription_expires DATETIME(6) NULL,
    last_payment_at DATETIME(6) NULL,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_users_credits_telegram (telegram_id)
)`, `
CREATE TABLE IF NOT EXISTS quizzes (
    id VARCHAR(32) NOT NULL PRIMARY KEY,
    owner_email VARCHAR(320) NOT NULL,
    title VARCHAR(512) NOT NULL,
    questions JSON NOT NULL,
    hints TEXT NOT NULL,
    is_public TINYINT(1) NOT NULL DEFAULT 0,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_quizzes_owner (owner_email, created_at)
)`, `
CREATE TABLE IF NOT EXISTS payments_log (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    email VARCHAR(320) NOT NULL,
    order_id VARCHAR(128) NOT NULL,
    product VARCHAR(64) NOT NULL,
    credits_added INT NOT NULL,
    amount_rub INT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_payments_log_order (order_id)
)`, `
CREATE TABLE IF NOT EXISTS generation_logs (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    email VARCHAR(320) NOT NULL,
    telegram_id BIGINT NULL,
    generation_type VARCHAR(64) NOT NULL,
    created_at DATETIME(6) NOT NULL
)`}

var postgresSchema = []string{`
CREATE TABLE IF NOT EXISTS users_credits (
    email TEXT PRIMARY KEY,
    credits INTEGER NOT NULL DEFAULT 0,
    telegram_id BIGINT,
    display_name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    is_premium BOOLEAN NOT NULL DEFAULT FALSE,
    generations INTEGER NOT NULL DEFAULT 0,
    tariff TEXT NOT NULL DEFAULT '',
    subscription_expires TIMESTAMPTZ,
    last_payment_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_users_credits_telegram ON users_credits (telegram_id)`, `
CREATE TABLE IF NOT EXISTS quizzes (
    id TEXT PRIMARY KEY,
    owner_email TEXT NOT NULL,
    title TEXT NOT NULL,
    questions JSONB NOT NULL,
    hints TEXT NOT NULL DEFAULT '',
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_quizzes_owner ON quizzes (owner_email, created_at DESC)`, `
CREATE TABLE IF NOT EXISTS payments_log (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    order_id TEXT NOT NULL,
    product TEXT NOT NULL,
    credits_added INTEGER NOT NULL,
    amount_rub INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_log_order ON payments_log (order_id)`, `
CREATE TABLE IF NOT EXISTS generation_logs (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    telegram_id BIGINT,
    generation_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`}

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS users_credits (
    email TEXT NOT NULL PRIMARY KEY,
    credits INTEGER NOT NULL DEFAULT 0,
    telegram_id INTEGER,
    display_name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL DEFAULT '',
    is_premium BOOLEAN NOT NULL DEFAULT 0,
    generations INTEGER NOT NULL DEFAULT 0,
    tariff TEXT NOT NULL DEFAULT '',
    subscription_expires DATETIME,
    last_payment_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_users_credits_telegram ON users_credits (telegram_id)`, `
CREATE TABLE IF NOT EXISTS quizzes (
    id TEXT NOT NULL PRIMARY KEY,
    owner_email TEXT NOT NULL,
    title TEXT NOT NULL,
    questions TEXT NOT NULL,
    hints TEXT NOT NULL DEFAULT '',
    is_public BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_quizzes_owner ON quizzes (owner_email, created_at)`, `
CREATE TABLE IF NOT EXISTS payments_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL,
    order_id TEXT NOT NULL,
    product TEXT NOT NULL,
    credits_added INTEGER NOT NULL,
    amount_rub INTEGER NOT NULL,
    created_at DATETIME NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_log_order ON payments_log (order_id)`, `
CREATE TABLE IF NOT EXISTS generation_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT NOT NULL,
    telegram_id INTEGER,
    generation_type TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`}

// Schema returns the DDL statements for a dialect.
func Schema(dialect Dialect) ([]string, error) {
	switch dialect {
	case MySQL:
		return mysqlSchema, nil
	case Postgres:
		return postgresSchema, nil
	case SQLite:
		return sqliteSchema, nil
	default:
		return nil, fmt.Errorf("no schema for dialect %q", dialect)
	}
}
