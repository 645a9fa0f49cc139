package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	gorm   *gorm.DB
	dbType string
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

func NewDB(config Config) (*DB, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(config.SQLitePath))
	case "postgres":
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.Password, config.Name, sslMode)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	// A single connection serializes writers, which keeps the like toggle
	// transaction free of SQLITE_BUSY.
	if config.Type == "sqlite" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{gorm: gdb, dbType: config.Type}

	// Only create tables for SQLite
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_foreign_keys=on"
}

func (db *DB) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		video_url TEXT NOT NULL,
		thumbnail_url TEXT,
		owner TEXT NOT NULL,
		likes INTEGER NOT NULL DEFAULT 0 CHECK (likes >= 0),
		views INTEGER NOT NULL DEFAULT 0 CHECK (views >= 0),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos (created_at DESC);
	CREATE TABLE IF NOT EXISTS video_likes (
		video_id TEXT NOT NULL REFERENCES videos (id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (video_id, user_id)
	);
	`

	return db.gorm.Exec(query).Error
}

// RunMigrations applies the embedded migrations. SQLite schemas are
// created on open instead.
func (db *DB) RunMigrations(ctx context.Context) error {
	conn, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return NewMigrator(conn, db.dbType).Run(ctx, Migrations())
}

func (db *DB) Close() error {
	conn, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return conn.Close()
}

func (db *DB) Conn() *sql.DB {
	conn, _ := db.gorm.DB()
	return conn
}

func (db *DB) GORM() *gorm.DB {
	return db.gorm
}

func (db *DB) Type() string {
	return db.dbType
}
