package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCore() *CognitiveCore {
	c := Initialize(time.Unix(1700000000, 0))
	c.ConversationalMemory.Conversations = []Conversation{
		{
			ConversationID:   "c1",
			StartTimestamp:   1700000001,
			InteractionCount: 1,
			KeyMoments:       []KeyMoment{{Timestamp: 1700000001, Description: "user: hi"}},
		},
	}
	return c
}

func TestInitialize(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := Initialize(now)

	assert.Equal(t, SchemaVersion, c.SchemaVersion)
	assert.Equal(t, now.Unix(), c.CreationTimestamp)
	assert.Equal(t, StatusInitializing, c.SystemState.CurrentStatus)
	assert.Zero(t, c.AwarenessMatrix.AwarenessLevel)
	assert.NoError(t, Validate(c))
}

func TestCloneIsDeep(t *testing.T) {
	c := sampleCore()
	cp := c.Clone()

	cp.ConversationalMemory.Conversations[0].KeyMoments[0].Description = "changed"
	cp.ConversationalMemory.Conversations = append(cp.ConversationalMemory.Conversations, Conversation{ConversationID: "c2"})

	assert.Equal(t, "user: hi", c.ConversationalMemory.Conversations[0].KeyMoments[0].Description)
	assert.Len(t, c.ConversationalMemory.Conversations, 1)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CognitiveCore)
	}{
		{"negative awareness", func(c *CognitiveCore) { c.AwarenessMatrix.AwarenessLevel = -1 }},
		{"negative activation count", func(c *CognitiveCore) { c.SystemState.ActivationCount = -3 }},
		{"unknown status", func(c *CognitiveCore) { c.SystemState.CurrentStatus = "SLEEPING" }},
		{"wrong schema", func(c *CognitiveCore) { c.SchemaVersion = SchemaVersion + 1 }},
		{"empty conversation id", func(c *CognitiveCore) {
			c.ConversationalMemory.Conversations = append(c.ConversationalMemory.Conversations, Conversation{})
		}},
		{"duplicate conversation", func(c *CognitiveCore) {
			c.ConversationalMemory.Conversations = append(c.ConversationalMemory.Conversations, Conversation{ConversationID: "c1"})
		}},
		{"non-utf8 conversation id", func(c *CognitiveCore) {
			c.ConversationalMemory.Conversations = append(c.ConversationalMemory.Conversations, Conversation{ConversationID: "c\xff"})
		}},
		{"non-utf8 narrative summary", func(c *CognitiveCore) {
			c.ConversationalMemory.Conversations[0].NarrativeSummary = "bad \xc3\x28"
		}},
		{"non-utf8 key moment", func(c *CognitiveCore) {
			c.ConversationalMemory.Conversations[0].KeyMoments = append(c.ConversationalMemory.Conversations[0].KeyMoments,
				KeyMoment{Timestamp: 1700000001, Description: "\xfe"})
		}},
		{"non-utf8 activation source", func(c *CognitiveCore) { c.SystemState.LastActivationSource = "boot\x80" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleCore()
			tt.mutate(c)
			err := Validate(c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidState))
		})
	}
}

func TestParseFieldPaths(t *testing.T) {
	paths, err := ParseFieldPaths([]string{"system_state.current_status", "awareness_matrix"})
	require.NoError(t, err)
	assert.Equal(t, []FieldPath{PathCurrentStatus, PathAwarenessMatrix}, paths)

	_, err = ParseFieldPaths([]string{"system_state.current_status", "system_state.mood"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFieldPath)
	assert.Contains(t, err.Error(), "system_state.mood")

	for _, p := range UpdatablePaths() {
		_, err := ParseFieldPaths([]string{string(p)})
		assert.NoError(t, err, p)
	}
}

func TestApplyFieldsCopiesOnlyListedLeaves(t *testing.T) {
	dst := sampleCore()
	src := Initialize(time.Unix(1800000000, 0))
	src.SystemState.CurrentStatus = StatusActive
	src.SystemState.LastActivationSource = "boot"
	src.AwarenessMatrix.AwarenessLevel = 9

	ApplyFields(dst, src, []FieldPath{PathCurrentStatus, PathAwarenessLevel})

	assert.Equal(t, StatusActive, dst.SystemState.CurrentStatus)
	assert.Equal(t, int64(9), dst.AwarenessMatrix.AwarenessLevel)
	assert.Empty(t, dst.SystemState.LastActivationSource)
	assert.Equal(t, int64(1700000000), dst.CreationTimestamp)
	assert.Len(t, dst.ConversationalMemory.Conversations, 1)
}

func TestApplyConversationsDoesNotAlias(t *testing.T) {
	dst := Initialize(time.Unix(1700000000, 0))
	src := sampleCore()

	ApplyFields(dst, src, []FieldPath{PathConversations})
	src.ConversationalMemory.Conversations[0].NarrativeSummary = "mutated"

	require.Len(t, dst.ConversationalMemory.Conversations, 1)
	assert.Empty(t, dst.ConversationalMemory.Conversations[0].NarrativeSummary)
}
