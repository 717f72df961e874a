package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampFormat is fixed width so text ordering matches time ordering.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// InvalidInputsPayload replaces stored inputs that are not well-formed JSON.
var InvalidInputsPayload = json.RawMessage(`{"error":"Invalid input format"}`)

// LogRecord is one persisted prediction.
type LogRecord struct {
	Timestamp string          `json:"timestamp"`
	Inputs    json.RawMessage `json:"inputs"`
	Result    string          `json:"result"`
}

// NewLogRecord stamps inputs and result with at, in UTC.
func NewLogRecord(at time.Time, inputs any, result string) (LogRecord, error) {
	payload, err := json.Marshal(inputs)
	if err != nil {
		return LogRecord{}, fmt.Errorf("encode inputs: %w", err)
	}
	return LogRecord{
		Timestamp: FormatTimestamp(at),
		Inputs:    payload,
		Result:    result,
	}, nil
}

func FormatTimestamp(at time.Time) string {
	return at.UTC().Format(TimestampFormat)
}

// LogStore is the append-only prediction log.
type LogStore interface {
	// Init creates the logs table when it does not exist.
	Init(ctx context.Context) error
	// Append writes one record atomically.
	Append(ctx context.Context, record LogRecord) error
	// ReadAll returns records newest first. limit <= 0 returns every record.
	ReadAll(ctx context.Context, limit int) ([]LogRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// StorageError reports a failed database operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Config selects and configures a LogStore driver.
type Config struct {
	Driver   string
	Path     string
	URL      string
	MaxConns int
}

// Open connects the configured driver. The table is not created; call Init.
func Open(ctx context.Context, cfg Config) (LogStore, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(cfg.Path)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.URL, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func decodeInputs(raw []byte, valid bool) json.RawMessage {
	if !valid || len(raw) == 0 || !json.Valid(raw) {
		return InvalidInputsPayload
	}
	return json.RawMessage(raw)
}
