package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"vision-chat/internal/config"
	"vision-chat/internal/logger"
	"vision-chat/internal/repository/db"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure SQLiteDB implements db.Database interface
var _ db.Database = (*SQLiteDB)(nil)

// SQLiteDB implements the db.Database interface on a single SQLite file
type SQLiteDB struct {
	conn *sql.DB
}

// NewSQLiteDB opens (creating if needed) the database file and applies migrations.
// An existing chats table is adopted as-is.
func NewSQLiteDB(dbConfig config.DatabaseConfig) (*SQLiteDB, error) {
	logger.Log.WithField("path", dbConfig.Path).Info("Opening SQLite database")

	conn, err := sql.Open("sqlite", dbConfig.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// SQLite allows a single writer at a time
	conn.SetMaxOpenConns(1)

	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	s := &SQLiteDB{conn: conn}

	if err = s.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("SQLite database ready")

	return s, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Ping checks the connection is usable
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// RunMigrations applies the embedded migrations with golang-migrate
func (s *SQLiteDB) RunMigrations() error {
	driver, err := migratesqlite.WithInstance(s.conn, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error opening migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("error creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}

	logger.Log.Info("Database migrations applied successfully")
	return nil
}
