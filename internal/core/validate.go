package core

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidState is returned when a core fails its integrity checks.
var ErrInvalidState = errors.New("invalid cognitive core")

// Validate checks the integrity invariants that must hold before a core is
// persisted or swapped into the store.
func Validate(c *CognitiveCore) error {
	if c == nil {
		return fmt.Errorf("%w: nil core", ErrInvalidState)
	}
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: schema_version %d, want %d", ErrInvalidState, c.SchemaVersion, SchemaVersion)
	}
	if c.AwarenessMatrix.AwarenessLevel < 0 {
		return fmt.Errorf("%w: awareness_level %d is negative", ErrInvalidState, c.AwarenessMatrix.AwarenessLevel)
	}
	if c.SystemState.ActivationCount < 0 {
		return fmt.Errorf("%w: activation_count %d is negative", ErrInvalidState, c.SystemState.ActivationCount)
	}
	if !c.SystemState.CurrentStatus.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, c.SystemState.CurrentStatus)
	}
	if !utf8.ValidString(c.SystemState.LastActivationSource) {
		return fmt.Errorf("%w: last_activation_source is not valid UTF-8", ErrInvalidState)
	}

	seen := make(map[string]struct{}, len(c.ConversationalMemory.Conversations))
	for _, conv := range c.ConversationalMemory.Conversations {
		if conv.ConversationID == "" {
			return fmt.Errorf("%w: conversation with empty id", ErrInvalidState)
		}
		if err := validateText(conv); err != nil {
			return err
		}
		if _, dup := seen[conv.ConversationID]; dup {
			return fmt.Errorf("%w: duplicate conversation %q", ErrInvalidState, conv.ConversationID)
		}
		seen[conv.ConversationID] = struct{}{}
		if conv.InteractionCount < 0 {
			return fmt.Errorf("%w: conversation %q has negative interaction_count", ErrInvalidState, conv.ConversationID)
		}
	}
	return nil
}

// validateText rejects strings that JSON would rewrite to U+FFFD, so a saved
// conversation loads back unchanged.
func validateText(conv Conversation) error {
	if !utf8.ValidString(conv.ConversationID) {
		return fmt.Errorf("%w: conversation id %q is not valid UTF-8", ErrInvalidState, conv.ConversationID)
	}
	if !utf8.ValidString(conv.NarrativeSummary) {
		return fmt.Errorf("%w: conversation %q narrative_summary is not valid UTF-8", ErrInvalidState, conv.ConversationID)
	}
	for i, km := range conv.KeyMoments {
		if !utf8.ValidString(km.Description) {
			return fmt.Errorf("%w: conversation %q key moment %d is not valid UTF-8", ErrInvalidState, conv.ConversationID, i)
		}
	}
	return nil
}
