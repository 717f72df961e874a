// Package export writes snapshots of the prediction log to disk.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"watercheck/db"
	"watercheck/monitoring"
)

const fileTimeFormat = "20060102T150405.000000Z"

// Exporter dumps every log record, newest first, to a JSON file.
type Exporter struct {
	store  db.LogStore
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

func NewExporter(store db.LogStore, dir string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		store:  store,
		dir:    dir,
		logger: logger.With(zap.String("component", "exporter")),
		now:    time.Now,
	}
}

// Run writes one export and returns the path of the file it created.
func (e *Exporter) Run(ctx context.Context) (string, error) {
	records, err := e.store.ReadAll(ctx, 0)
	if err != nil {
		monitoring.ObserveExport(monitoring.OutcomeStorageError)
		return "", err
	}
	if records == nil {
		records = []db.LogRecord{}
	}

	path, err := e.write(records)
	if err != nil {
		monitoring.ObserveExport("write_error")
		return "", err
	}

	monitoring.ObserveExport(monitoring.OutcomeSuccess)
	e.logger.Info("log export written", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}

func (e *Exporter) write(records []db.LogRecord) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, ".logs-*.json.tmp")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode export: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("logs-%s.json", e.now().UTC().Format(fileTimeFormat)))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish export: %w", err)
	}
	return path, nil
}

// Schedule runs the exporter on a standard five-field cron expression. Stop
// the returned scheduler to end it.
func (e *Exporter) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := e.Run(ctx); err != nil {
			e.logger.Error("scheduled log export failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	c.Start()
	e.logger.Info("log export scheduled", zap.String("schedule", spec), zap.String("dir", e.dir))
	return c, nil
}
