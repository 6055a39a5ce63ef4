package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/speedx/push-server/internal/config"
)

// PostgresDB wraps sql.DB for PostgreSQL operations
type PostgresDB struct {
	*sql.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg config.DatabaseConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// InitSchema initializes the database schema
func (db *PostgresDB) InitSchema() error {
	schema := `
	-- Device tokens table
	CREATE TABLE IF NOT EXISTS device_tokens (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		device_token VARCHAR(500) UNIQUE NOT NULL,
		device_type VARCHAR(50) DEFAULT 'ios',
		device_name VARCHAR(255),
		app_version VARCHAR(50),
		is_active BOOLEAN DEFAULT true,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW()
	);

	-- Notification preferences table, one row per user
	CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id UUID PRIMARY KEY,
		enable_badge_notifications BOOLEAN DEFAULT true,
		enable_night_driving_alerts BOOLEAN DEFAULT true,
		enable_drive_reminders BOOLEAN DEFAULT true,
		enable_announcements BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT NOW(),
		updated_at TIMESTAMP DEFAULT NOW()
	);

	-- Notification logs table, append-only
	CREATE TABLE IF NOT EXISTS notification_logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id UUID NOT NULL,
		device_token_id UUID REFERENCES device_tokens(id),
		notification_type VARCHAR(50) NOT NULL,
		title VARCHAR(255) NOT NULL,
		body TEXT NOT NULL,
		data JSONB,
		status VARCHAR(50) NOT NULL, -- sent, failed
		error_message TEXT,
		created_at TIMESTAMP DEFAULT NOW()
	);

	-- Announcements table
	CREATE TABLE IF NOT EXISTS announcements (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		icon VARCHAR(50),
		priority VARCHAR(50) DEFAULT 'normal',
		created_by VARCHAR(255),
		is_active BOOLEAN DEFAULT true,
		created_at TIMESTAMP DEFAULT NOW()
	);

	-- Create indexes for better performance
	CREATE INDEX IF NOT EXISTS idx_device_tokens_user_id ON device_tokens(user_id);
	CREATE INDEX IF NOT EXISTS idx_device_tokens_active ON device_tokens(is_active);
	CREATE INDEX IF NOT EXISTS idx_notification_logs_user_id ON notification_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_notification_logs_status ON notification_logs(status);
	CREATE INDEX IF NOT EXISTS idx_notification_logs_created_at ON notification_logs(created_at);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *PostgresDB) Close() error {
	return db.DB.Close()
}
