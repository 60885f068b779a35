package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpdateAll is the wildcard filter matching every update.
const UpdateAll = "ALL"

// Update types published by the service.
const (
	UpdateCoreUpdated          = "CORE_UPDATED"
	UpdateConversationRecorded = "CONVERSATION_RECORDED"
	UpdateAwarenessActivated   = "AWARENESS_ACTIVATED"
	UpdateKeepalive            = "KEEPALIVE"
)

// Components owning each update.
const (
	ComponentCore         = "cognitive_core"
	ComponentConversation = "conversational_memory"
	ComponentAwareness    = "awareness_matrix"
	ComponentStream       = "stream"
)

// Significance of each update type.
const (
	SignificanceCore         = 0.5
	SignificanceConversation = 0.3
	SignificanceAwareness    = 0.7
	SignificanceKeepalive    = 0.0
)

// Update is one event delivered to stream subscribers.
type Update struct {
	UpdateID     string  `json:"update_id"`
	UpdateType   string  `json:"update_type"`
	Component    string  `json:"component"`
	Timestamp    int64   `json:"timestamp"`
	Description  string  `json:"description"`
	Significance float64 `json:"significance"`
	Payload      []byte  `json:"payload,omitempty"`
}

// NewUpdate builds an update with a fresh id, serializing payload as JSON.
// A nil payload produces an update without payload bytes.
func NewUpdate(updateType, component, description string, significance float64, payload any) (*Update, error) {
	u := &Update{
		UpdateID:     uuid.New().String(),
		UpdateType:   updateType,
		Component:    component,
		Timestamp:    time.Now().Unix(),
		Description:  description,
		Significance: significance,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", updateType, err)
		}
		u.Payload = data
	}
	return u, nil
}

// Keepalive returns a payload-less liveness update.
func Keepalive() *Update {
	return &Update{
		UpdateID:     uuid.New().String(),
		UpdateType:   UpdateKeepalive,
		Component:    ComponentStream,
		Timestamp:    time.Now().Unix(),
		Description:  "keepalive",
		Significance: SignificanceKeepalive,
	}
}
