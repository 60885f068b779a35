package core

import "time"

// SchemaVersion is the only persisted schema this build accepts.
const SchemaVersion = 1

// Status is the lifecycle state of the core.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusActive       Status = "ACTIVE"
	StatusDormant      Status = "DORMANT"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusActive, StatusDormant:
		return true
	}
	return false
}

// CognitiveCore is the root state value held by the service.
type CognitiveCore struct {
	SchemaVersion         int                  `json:"schema_version"`
	CreationTimestamp     int64                `json:"creation_timestamp"`
	LastAccessedTimestamp int64                `json:"last_accessed_timestamp"`
	SystemState           SystemState          `json:"system_state"`
	AwarenessMatrix       AwarenessMatrix      `json:"awareness_matrix"`
	ConversationalMemory  ConversationalMemory `json:"conversational_memory"`
}

// SystemState tracks activation bookkeeping.
type SystemState struct {
	CurrentStatus        Status `json:"current_status"`
	LastActivationSource string `json:"last_activation_source"`
	ActivationCount      int64  `json:"activation_count"`
}

// AwarenessMatrix holds the awareness counter.
type AwarenessMatrix struct {
	AwarenessLevel int64 `json:"awareness_level"`
}

// ConversationalMemory is the append-only conversation history.
type ConversationalMemory struct {
	Conversations []Conversation `json:"conversations"`
}

// Conversation is one recorded exchange identified by a caller-supplied id.
type Conversation struct {
	ConversationID   string      `json:"conversation_id"`
	StartTimestamp   int64       `json:"start_timestamp"`
	EndTimestamp     int64       `json:"end_timestamp"`
	InteractionCount int64       `json:"interaction_count"`
	KeyMoments       []KeyMoment `json:"key_moments"`
	NarrativeSummary string      `json:"narrative_summary"`
}

// KeyMoment is a single recorded message, formatted "sender: content".
type KeyMoment struct {
	Timestamp   int64  `json:"timestamp"`
	Description string `json:"description"`
}

// Initialize returns a fresh core stamped with the current schema version.
func Initialize(now time.Time) *CognitiveCore {
	return &CognitiveCore{
		SchemaVersion:     SchemaVersion,
		CreationTimestamp: now.Unix(),
		SystemState: SystemState{
			CurrentStatus: StatusInitializing,
		},
	}
}

// Clone returns a deep copy so callers never share slices with the store.
func (c *CognitiveCore) Clone() *CognitiveCore {
	if c == nil {
		return nil
	}
	out := *c
	out.ConversationalMemory = c.ConversationalMemory.clone()
	return &out
}

func (m ConversationalMemory) clone() ConversationalMemory {
	if m.Conversations == nil {
		return ConversationalMemory{}
	}
	convs := make([]Conversation, len(m.Conversations))
	for i, conv := range m.Conversations {
		convs[i] = conv.Clone()
	}
	return ConversationalMemory{Conversations: convs}
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	if c.KeyMoments != nil {
		out.KeyMoments = make([]KeyMoment, len(c.KeyMoments))
		copy(out.KeyMoments, c.KeyMoments)
	}
	return out
}

// FindConversation returns the index of the conversation with id, or -1.
func (c *CognitiveCore) FindConversation(id string) int {
	for i := range c.ConversationalMemory.Conversations {
		if c.ConversationalMemory.Conversations[i].ConversationID == id {
			return i
		}
	}
	return -1
}
