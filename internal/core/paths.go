package core

import (
	"errors"
	"fmt"
)

// ErrUnknownFieldPath is returned for a field path outside the updatable set.
var ErrUnknownFieldPath = errors.New("unknown field path")

// FieldPath names a dot-separated field that a partial update may replace.
type FieldPath string

const (
	PathSystemState          FieldPath = "system_state"
	PathCurrentStatus        FieldPath = "system_state.current_status"
	PathLastActivationSource FieldPath = "system_state.last_activation_source"
	PathActivationCount      FieldPath = "system_state.activation_count"
	PathAwarenessMatrix      FieldPath = "awareness_matrix"
	PathAwarenessLevel       FieldPath = "awareness_matrix.awareness_level"
	PathConversationalMemory FieldPath = "conversational_memory"
	PathConversations        FieldPath = "conversational_memory.conversations"
)

// setters copies the field named by each path from src into dst.
var setters = map[FieldPath]func(dst, src *CognitiveCore){
	PathSystemState: func(dst, src *CognitiveCore) {
		dst.SystemState = src.SystemState
	},
	PathCurrentStatus: func(dst, src *CognitiveCore) {
		dst.SystemState.CurrentStatus = src.SystemState.CurrentStatus
	},
	PathLastActivationSource: func(dst, src *CognitiveCore) {
		dst.SystemState.LastActivationSource = src.SystemState.LastActivationSource
	},
	PathActivationCount: func(dst, src *CognitiveCore) {
		dst.SystemState.ActivationCount = src.SystemState.ActivationCount
	},
	PathAwarenessMatrix: func(dst, src *CognitiveCore) {
		dst.AwarenessMatrix = src.AwarenessMatrix
	},
	PathAwarenessLevel: func(dst, src *CognitiveCore) {
		dst.AwarenessMatrix.AwarenessLevel = src.AwarenessMatrix.AwarenessLevel
	},
	PathConversationalMemory: func(dst, src *CognitiveCore) {
		dst.ConversationalMemory = src.ConversationalMemory.clone()
	},
	PathConversations: func(dst, src *CognitiveCore) {
		dst.ConversationalMemory = src.ConversationalMemory.clone()
	},
}

// UpdatablePaths lists every path accepted by ParseFieldPaths.
func UpdatablePaths() []FieldPath {
	return []FieldPath{
		PathSystemState,
		PathCurrentStatus,
		PathLastActivationSource,
		PathActivationCount,
		PathAwarenessMatrix,
		PathAwarenessLevel,
		PathConversationalMemory,
		PathConversations,
	}
}

// ParseFieldPaths resolves every raw path or fails on the first unknown one.
// Nothing is applied here, so a bad path can never leave a half-applied update.
func ParseFieldPaths(raw []string) ([]FieldPath, error) {
	paths := make([]FieldPath, 0, len(raw))
	for _, r := range raw {
		p := FieldPath(r)
		if _, ok := setters[p]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFieldPath, r)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ApplyFields copies the listed fields from src into dst. Paths must come
// from ParseFieldPaths.
func ApplyFields(dst, src *CognitiveCore, paths []FieldPath) {
	for _, p := range paths {
		setters[p](dst, src)
	}
}
