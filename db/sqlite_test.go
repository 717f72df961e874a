package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "logs", "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	exerciseLogStore(t, newTestSQLiteStore(t))
}

func TestSQLiteStoreMalformedInputs(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatal(err)
	}

	_, err := store.db.Exec(`INSERT INTO logs (timestamp, inputs, result) VALUES (?, ?, ?)`,
		"2024-05-01T10:00:00.000000Z", "not json at all", "Potable")
	if err != nil {
		t.Fatal(err)
	}
	record, err := NewLogRecord(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), map[string]float64{"pH": 7}, "Not Potable")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Append(ctx, record); err != nil {
		t.Fatal(err)
	}

	records, err := store.ReadAll(ctx, 0)
	if err != nil {
		t.Fatalf("read should survive malformed rows: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	var sentinel map[string]string
	if err := json.Unmarshal(records[1].Inputs, &sentinel); err != nil {
		t.Fatal(err)
	}
	if sentinel["error"] != "Invalid input format" {
		t.Fatalf("expected sentinel payload, got %s", records[1].Inputs)
	}
	if records[1].Result != "Potable" {
		t.Fatalf("expected result to survive, got %q", records[1].Result)
	}
	if string(records[0].Inputs) != `{"pH":7}` {
		t.Fatalf("unexpected inputs: %s", records[0].Inputs)
	}
}

func TestSQLiteStoreFailedAppendWritesNothing(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	record, _ := NewLogRecord(time.Now(), map[string]float64{"pH": 7}, "Potable")
	err := store.Append(ctx, record)
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}

	records, err := store.ReadAll(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no rows, got %d", len(records))
	}
}

func TestSQLiteStoreReadWithoutTable(t *testing.T) {
	store := newTestSQLiteStore(t)
	_, err := store.ReadAll(context.Background(), 0)
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}
