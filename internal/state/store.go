// Package state owns the single in-memory CognitiveCore.
//
// Every operation holds one mutex for its whole read-modify-persist
// sequence. Mutations are applied to a clone, validated, persisted and only
// then swapped in, so a rejected or failed mutation leaves both memory and
// disk untouched and no caller ever observes a half-applied change.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"go.uber.org/zap"
)

// ErrEmptyFieldPaths is returned for a partial update with no paths.
var ErrEmptyFieldPaths = errors.New("partial update requires fields_to_update")

// Persister writes the core durably.
type Persister interface {
	Save(c *core.CognitiveCore) error
}

// Archiver keeps a history of persisted cores.
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, c *core.CognitiveCore, reason string) error
}

// Publisher fans updates out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, u *notify.Update) int
}

// Store guards the cognitive core.
type Store struct {
	mu        sync.Mutex
	core      *core.CognitiveCore
	persister Persister
	archiver  Archiver
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a store seeded with initial. A nil persister keeps state in
// memory only.
func New(initial *core.CognitiveCore, persister Persister, logger *zap.Logger) *Store {
	if initial == nil {
		initial = core.Initialize(time.Now())
	}
	return &Store{
		core:      initial.Clone(),
		persister: persister,
		now:       time.Now,
		logger:    logger,
	}
}

// SetArchiver attaches a snapshot archive.
func (s *Store) SetArchiver(a Archiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiver = a
}

// SetPublisher attaches the update publisher.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns a copy of the current core.
func (s *Store) Get() *core.CognitiveCore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.core.Clone()
}

// Replace swaps in c wholesale. A zero schema version is stamped with the
// current one and a zero creation timestamp keeps the existing one.
// last_accessed_timestamp is owned by the store; the caller's value is
// ignored.
func (s *Store) Replace(ctx context.Context, c *core.CognitiveCore) (*core.CognitiveCore, error) {
	if c == nil {
		return nil, fmt.Errorf("replace: %w: nil core", core.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := c.Clone()
	if working.SchemaVersion == 0 {
		working.SchemaVersion = core.SchemaVersion
	}
	if working.CreationTimestamp == 0 {
		working.CreationTimestamp = s.core.CreationTimestamp
	}
	working.LastAccessedTimestamp = s.core.LastAccessedTimestamp

	if err := s.commit(ctx, working, "replace"); err != nil {
		return nil, err
	}
	s.publish(ctx, notify.UpdateCoreUpdated, notify.ComponentCore,
		"cognitive core replaced", notify.SignificanceCore, working)
	return working.Clone(), nil
}

// UpdateFields copies the fields named by paths from src into the core.
// Every path is resolved before anything is applied; one unknown path
// rejects the whole update.
func (s *Store) UpdateFields(ctx context.Context, src *core.CognitiveCore, paths []string) (*core.CognitiveCore, error) {
	if src == nil {
		return nil, fmt.Errorf("update: %w: nil core", core.ErrInvalidState)
	}
	if len(paths) == 0 {
		return nil, ErrEmptyFieldPaths
	}
	parsed, err := core.ParseFieldPaths(paths)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.core.Clone()
	core.ApplyFields(working, src, parsed)

	if err := s.commit(ctx, working, "partial_update"); err != nil {
		return nil, err
	}
	s.publish(ctx, notify.UpdateCoreUpdated, notify.ComponentCore,
		fmt.Sprintf("updated %d field(s)", len(parsed)), notify.SignificanceCore, working)
	return working.Clone(), nil
}

// commit validates, persists and installs working. Caller holds s.mu.
func (s *Store) commit(ctx context.Context, working *core.CognitiveCore, reason string) error {
	if err := core.Validate(working); err != nil {
		s.logger.Warn("rejecting mutation", zap.String("reason", reason), zap.Error(err))
		return err
	}
	if s.persister != nil {
		if err := s.persister.Save(working); err != nil {
			s.logger.Error("persist failed, mutation rejected", zap.String("reason", reason), zap.Error(err))
			return fmt.Errorf("persist: %w", err)
		}
	}
	s.core = working

	if s.archiver != nil {
		if err := s.archiver.ArchiveSnapshot(ctx, working, reason); err != nil {
			s.logger.Warn("snapshot archive failed", zap.String("reason", reason), zap.Error(err))
		}
	}
	return nil
}

// publish emits an update. Caller holds s.mu so updates leave in commit order.
func (s *Store) publish(ctx context.Context, updateType, component, description string, significance float64, payload any) {
	if s.publisher == nil {
		return
	}
	u, err := notify.NewUpdate(updateType, component, description, significance, payload)
	if err != nil {
		s.logger.Error("build update failed", zap.String("update_type", updateType), zap.Error(err))
		return
	}
	s.publisher.Publish(ctx, u)
}
