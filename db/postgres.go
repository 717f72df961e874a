package db

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const createLogsTablePostgres = `
    CREATE TABLE IF NOT EXISTS logs (
        timestamp TEXT,
        inputs JSONB,
        result TEXT
    );`

// PostgresStore keeps the prediction log in PostgreSQL. Every call acquires
// its own pooled connection and releases it before returning.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string, maxConns int) (*PostgresStore, error) {
	if url == "" {
		return nil, &StorageError{Op: "open", Err: errors.New("database url is required")}
	}
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("parse database url: %w", err)}
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, storageError("open", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Init(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storageError("init", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, createLogsTablePostgres); err != nil {
		// Concurrent starts can race on the catalog; the table exists either way.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == pgerrcode.UniqueViolation || pgErr.Code == pgerrcode.DuplicateTable) {
			return nil
		}
		return storageError("init", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, record LogRecord) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storageError("append", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return storageError("append", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO logs (timestamp, inputs, result)
        VALUES ($1, $2::jsonb, $3)`,
		record.Timestamp, string(record.Inputs), record.Result)
	if err != nil {
		return storageError("append", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storageError("append", err)
	}
	return nil
}

func (s *PostgresStore) ReadAll(ctx context.Context, limit int) ([]LogRecord, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, storageError("read", err)
	}
	defer conn.Release()

	query := `SELECT timestamp::text, inputs::text, result FROM logs ORDER BY timestamp DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError("read", err)
	}
	defer rows.Close()

	records := make([]LogRecord, 0)
	for rows.Next() {
		var timestamp, inputs, result *string
		if err := rows.Scan(&timestamp, &inputs, &result); err != nil {
			return nil, storageError("read", err)
		}
		record := LogRecord{Inputs: InvalidInputsPayload}
		if timestamp != nil {
			record.Timestamp = *timestamp
		}
		if inputs != nil {
			record.Inputs = decodeInputs([]byte(*inputs), true)
		}
		if result != nil {
			record.Result = *result
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("read", err)
	}
	return records, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return storageError("ping", err)
	}
	defer conn.Release()

	if err := conn.Ping(ctx); err != nil {
		return storageError("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// storageError wraps err, marking connection failures so callers can tell
// an unreachable database from a rejected statement.
func storageError(op string, err error) error {
	var pgErr *pgconn.PgError
	var opErr *net.OpError
	switch {
	case pgconn.Timeout(err), errors.As(err, &opErr):
		err = fmt.Errorf("database unavailable: %w", err)
	case errors.As(err, &pgErr) && pgerrcode.IsConnectionException(pgErr.Code):
		err = fmt.Errorf("database unavailable: %w", err)
	case errors.Is(err, pgx.ErrTxClosed):
		err = fmt.Errorf("transaction closed: %w", err)
	}
	return &StorageError{Op: op, Err: err}
}
