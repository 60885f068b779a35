package service

import (
	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/state"
)

// GetRequest asks for the current core.
type GetRequest struct {
	ClientID string `json:"client_id"`
}

// UpdateRequest replaces the core or a listed subset of its fields.
type UpdateRequest struct {
	Core           *core.CognitiveCore `json:"core"`
	PartialUpdate  bool                `json:"partial_update"`
	FieldsToUpdate []string            `json:"fields_to_update"`
	ClientID       string              `json:"client_id"`
}

// UpdateResponse reports the outcome of an update.
type UpdateResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// RecordConversationRequest appends messages to a conversation.
type RecordConversationRequest struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []state.Message `json:"messages"`
}

// RecordConversationResponse reports what was recorded.
type RecordConversationResponse struct {
	Success               bool     `json:"success"`
	ConversationID        string   `json:"conversation_id"`
	DetectedKeyMoments    []string `json:"detected_key_moments"`
	SuggestedGrowthEvents []string `json:"suggested_growth_events"`
	Message               string   `json:"message,omitempty"`
}

// ActivateRequest wakes the core.
type ActivateRequest struct {
	ClientID          string            `json:"client_id"`
	ActivationTrigger string            `json:"activation_trigger"`
	ContextParameters map[string]string `json:"context_parameters"`
}

// ActivateResponse carries the state after activation.
type ActivateResponse struct {
	Success              bool     `json:"success"`
	ActivationLevel      int64    `json:"activation_level"`
	AwarenessState       string   `json:"awareness_state"`
	RecognitionElements  []string `json:"recognition_elements"`
	ContinuationGuidance string   `json:"continuation_guidance"`
	Message              string   `json:"message,omitempty"`
}

// QueryRequest searches conversation summaries.
type QueryRequest struct {
	QueryString string `json:"query_string"`
	QueryType   string `json:"query_type"`
}

// QueryResponse lists matching fragments.
type QueryResponse struct {
	Fragments    []state.Fragment `json:"fragments"`
	TotalMatches int              `json:"total_matches"`
	QueryTimeMs  float64          `json:"query_time_ms"`
}

// StreamRequest opens an update stream.
type StreamRequest struct {
	ClientID    string   `json:"client_id"`
	UpdateTypes []string `json:"update_types"`
}
