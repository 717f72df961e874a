package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const createLogsTableSQLite = `
    CREATE TABLE IF NOT EXISTS logs (
        timestamp TEXT,
        inputs TEXT,
        result TEXT
    );`

// SQLiteStore keeps the prediction log in a SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database at path, creating its directory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = filepath.Join("data", "watercheck.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "open", Err: fmt.Errorf("create database directory: %w", err)}
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_txlock=immediate"
	}
	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	return &SQLiteStore{db: database, path: path}, nil
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createLogsTableSQLite); err != nil {
		return &StorageError{Op: "init", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, record LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "append", Err: err}
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO logs (timestamp, inputs, result)
        VALUES (?, ?, ?)`,
		record.Timestamp, string(record.Inputs), record.Result)
	if err != nil {
		tx.Rollback()
		return &StorageError{Op: "append", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	return nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context, limit int) ([]LogRecord, error) {
	query := `SELECT timestamp, inputs, result FROM logs ORDER BY timestamp DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	defer rows.Close()

	records := make([]LogRecord, 0)
	for rows.Next() {
		var timestamp, inputs, result sql.NullString
		if err := rows.Scan(&timestamp, &inputs, &result); err != nil {
			return nil, &StorageError{Op: "read", Err: err}
		}
		records = append(records, LogRecord{
			Timestamp: timestamp.String,
			Inputs:    decodeInputs([]byte(inputs.String), inputs.Valid),
			Result:    result.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	return records, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
