package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Schema holds every table the scraper owns
const Schema = "rnav_scraper"

const (
	runsTable     = Schema + ".runs"
	recordsTable  = Schema + ".records"
	rejectedTable = Schema + ".rejected_emails"
)

// DB wraps the database connection
type DB struct {
	conn   *sql.DB
	logger *zap.SugaredLogger
}

// ConnString returns connStr when set, otherwise one built from DB_* variables
func ConnString(connStr string) string {
	if connStr != "" {
		return connStr
	}
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "rnav_scraper")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "rnav_scraper")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		host, port, user, password, dbname, sslmode, Schema)
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// NewDB opens a connection, pings it and makes sure the schema exists
func NewDB(ctx context.Context, connStr string, logger *zap.SugaredLogger) (*DB, error) {
	conn, err := sql.Open("postgres", ConnString(connStr))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := New(conn, logger)
	if err := db.InitSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// New wraps an open connection without touching the schema
func New(conn *sql.DB, logger *zap.SugaredLogger) *DB {
	return &DB{conn: conn, logger: logger}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the necessary tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	// The schema may already exist and be owned by another role
	if _, err := db.conn.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+Schema); err != nil {
		db.logger.Infof("Note: Could not create schema (may already exist): %v", err)
	}

	_, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+runsTable+` (
			id SERIAL PRIMARY KEY,
			group_key TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'created',
			records_count INTEGER NOT NULL DEFAULT 0,
			pages_count INTEGER NOT NULL DEFAULT 0,
			rejected_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT valid_status CHECK (status IN ('created', 'in_progress', 'done', 'failed'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+recordsTable+` (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			group_key TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			locality TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+rejectedTable+` (
			id SERIAL PRIMARY KEY,
			run_id INTEGER NOT NULL REFERENCES `+runsTable+`(id) ON DELETE CASCADE,
			record_id TEXT NOT NULL,
			record_name TEXT NOT NULL,
			raw_value TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			resolved_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create rejected_emails table: %w", err)
	}

	// Tables created before corrections were tracked lack resolved_at
	_, err = db.conn.ExecContext(ctx, `
		ALTER TABLE `+rejectedTable+` ADD COLUMN IF NOT EXISTS resolved_at TIMESTAMP
	`)
	if err != nil {
		db.logger.Warnf("Failed to add resolved_at column to rejected_emails: %v", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_runs_group_key ON `+runsTable+`(group_key)`,
		`CREATE INDEX IF NOT EXISTS idx_records_group_key ON `+recordsTable+`(group_key)`,
		`CREATE INDEX IF NOT EXISTS idx_rejected_emails_run_id ON `+rejectedTable+`(run_id)`,
	}
	for _, stmt := range indexes {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			db.logger.Warnf("Failed to create index (%s): %v", stmt, err)
		}
	}

	db.logger.Info("Database schema initialized successfully")
	return nil
}
