// Package persist stores the cognitive core as a single schema-versioned
// JSON document on disk.
//
// Load never fails: a missing file, a corrupt file, a foreign schema version
// or a core that breaks its invariants all yield a freshly initialized core.
// There are no migrations, so a version mismatch discards the prior state.
// Save refuses to write a core that fails validation and replaces the file
// atomically, so readers see either the previous or the new document.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nidhogg/cognitive-core/internal/core"
	"go.uber.org/zap"
)

// File is the on-disk home of the cognitive core.
type File struct {
	path   string
	now    func() time.Time
	logger *zap.Logger
}

// NewFile creates a File persisting to path.
func NewFile(path string, logger *zap.Logger) *File {
	return &File{
		path:   path,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock overrides the time source used for timestamps.
func (f *File) SetClock(now func() time.Time) {
	f.now = now
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Load reads the persisted core or returns a fresh one.
func (f *File) Load() *core.CognitiveCore {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.logger.Info("no persisted cognitive core, starting fresh", zap.String("path", f.path))
		} else {
			f.logger.Warn("read cognitive core failed, starting fresh", zap.String("path", f.path), zap.Error(err))
		}
		return core.Initialize(f.now())
	}

	var c core.CognitiveCore
	if err := json.Unmarshal(data, &c); err != nil {
		f.logger.Warn("decode cognitive core failed, starting fresh", zap.String("path", f.path), zap.Error(err))
		return core.Initialize(f.now())
	}
	if c.SchemaVersion != core.SchemaVersion {
		f.logger.Warn("schema version mismatch, discarding persisted core",
			zap.String("path", f.path),
			zap.Int("found", c.SchemaVersion),
			zap.Int("expected", core.SchemaVersion))
		return core.Initialize(f.now())
	}
	if err := core.Validate(&c); err != nil {
		f.logger.Warn("persisted core failed validation, starting fresh", zap.String("path", f.path), zap.Error(err))
		return core.Initialize(f.now())
	}

	f.logger.Info("cognitive core loaded",
		zap.String("path", f.path),
		zap.Int("conversations", len(c.ConversationalMemory.Conversations)),
		zap.Int64("awareness_level", c.AwarenessMatrix.AwarenessLevel))
	return &c
}

// Save stamps last_accessed_timestamp, validates c and writes it atomically.
// An invalid core is never written; the existing file is left untouched.
func (f *File) Save(c *core.CognitiveCore) error {
	if c == nil {
		return fmt.Errorf("save cognitive core: %w: nil core", core.ErrInvalidState)
	}
	if now := f.now().Unix(); now > c.LastAccessedTimestamp {
		c.LastAccessedTimestamp = now
	}
	if err := core.Validate(c); err != nil {
		f.logger.Error("refusing to persist invalid cognitive core", zap.String("path", f.path), zap.Error(err))
		return fmt.Errorf("save cognitive core: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cognitive core: %w", err)
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("save cognitive core %s: %w", f.path, err)
	}
	return nil
}

// writeAtomic writes data to a temp file beside path, fsyncs it and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	committed = true

	// Persist the rename itself. Not every platform can fsync a directory.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
