package ml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Artifacts is a loaded model and its optional scaler.
type Artifacts struct {
	Model  Classifier
	Scaler Scaler
}

// Artifacts lets a fixed set of artifacts serve as its own source.
func (a *Artifacts) Artifacts() (*Artifacts, error) {
	if a == nil || a.Model == nil {
		return nil, fmt.Errorf("no model configured")
	}
	return a, nil
}

// ArtifactSource hands out the model and scaler used for one prediction.
type ArtifactSource interface {
	Artifacts() (*Artifacts, error)
}

type ArtifactConfig struct {
	ModelType  string
	ModelPath  string
	ScalerPath string
	CacheSize  int
}

type fileVersion struct {
	size    int64
	modTime time.Time
}

type cachedArtifact struct {
	version fileVersion
	value   any
}

// FileArtifactSource loads artifacts from disk. Loaded artifacts are cached
// per file version, so a replaced file is picked up on the next call.
type FileArtifactSource struct {
	cfg    ArtifactConfig
	cache  *lru.Cache[string, cachedArtifact]
	logger *zap.Logger
}

func NewFileArtifactSource(cfg ArtifactConfig, logger *zap.Logger) (*FileArtifactSource, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 4
	}
	cache, err := lru.New[string, cachedArtifact](size)
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileArtifactSource{
		cfg:    cfg,
		cache:  cache,
		logger: logger.With(zap.String("component", "artifacts")),
	}, nil
}

func (s *FileArtifactSource) Artifacts() (*Artifacts, error) {
	model, err := s.load(s.cfg.ModelPath, func(path string) (any, error) {
		return LoadModel(s.cfg.ModelType, path)
	})
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	artifacts := &Artifacts{Model: model.(Classifier)}
	if s.cfg.ScalerPath == "" {
		return artifacts, nil
	}

	scaler, err := s.load(s.cfg.ScalerPath, func(path string) (any, error) {
		return LoadScaler(path)
	})
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	artifacts.Scaler = scaler.(Scaler)
	return artifacts, nil
}

func (s *FileArtifactSource) load(path string, loader func(string) (any, error)) (any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	version := fileVersion{size: info.Size(), modTime: info.ModTime()}
	if cached, ok := s.cache.Get(path); ok && cached.version == version {
		return cached.value, nil
	}

	value, err := loader(path)
	if err != nil {
		return nil, err
	}
	s.cache.Add(path, cachedArtifact{version: version, value: value})
	s.logger.Info("artifact loaded",
		zap.String("path", path),
		zap.Int64("size", version.size),
		zap.Time("modified", version.modTime),
	)
	return value, nil
}

// Invalidate drops every cached artifact.
func (s *FileArtifactSource) Invalidate() {
	s.cache.Purge()
}

// Watch evicts cached artifacts when their files change, until ctx is done.
// Directories are watched rather than files so that replace-by-rename is seen.
func (s *FileArtifactSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create artifact watcher: %w", err)
	}
	defer watcher.Close()

	tracked := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range []string{s.cfg.ModelPath, s.cfg.ScalerPath} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		tracked[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !tracked[abs] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.Invalidate()
			s.logger.Info("artifact changed, cache cleared",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}
