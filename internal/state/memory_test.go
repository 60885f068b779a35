package state

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConversationAccumulates(t *testing.T) {
	s, file, pub := newTestStore(t)
	ctx := context.Background()

	first, err := s.RecordConversation(ctx, "conv-1", []Message{
		{Sender: "user", Content: "m1"},
		{Sender: "core", Content: "m2", Timestamp: 42},
	})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, []string{"user: m1", "core: m2"}, first.Appended)

	second, err := s.RecordConversation(ctx, "conv-1", []Message{{Sender: "user", Content: "m3"}})
	require.NoError(t, err)
	assert.False(t, second.Created)

	got := s.Get()
	require.Len(t, got.ConversationalMemory.Conversations, 1)
	conv := got.ConversationalMemory.Conversations[0]
	assert.Equal(t, int64(3), conv.InteractionCount)
	assert.Equal(t, testNow.Unix(), conv.StartTimestamp)
	assert.Equal(t, testNow.Unix(), conv.EndTimestamp)

	var descs []string
	for _, km := range conv.KeyMoments {
		descs = append(descs, km.Description)
	}
	assert.Equal(t, []string{"user: m1", "core: m2", "user: m3"}, descs)
	assert.Equal(t, int64(42), conv.KeyMoments[1].Timestamp)
	assert.Equal(t, testNow.Unix(), conv.KeyMoments[0].Timestamp)

	assert.Equal(t, got, file.Load())
	assert.Equal(t, []string{notify.UpdateConversationRecorded, notify.UpdateConversationRecorded}, pub.types())

	var payload core.Conversation
	require.NoError(t, json.Unmarshal(pub.updates[1].Payload, &payload))
	assert.Equal(t, conv, payload)
}

func TestRecordConversationKeepsInsertionOrder(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "a", "c", "a"} {
		_, err := s.RecordConversation(ctx, id, []Message{{Sender: "u", Content: id}})
		require.NoError(t, err)
	}

	var ids []string
	for _, conv := range s.Get().ConversationalMemory.Conversations {
		ids = append(ids, conv.ConversationID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestRecordConversationRequiresID(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.RecordConversation(context.Background(), "", []Message{{Sender: "u", Content: "x"}})
	assert.ErrorIs(t, err, ErrEmptyConversationID)
	assert.Empty(t, s.Get().ConversationalMemory.Conversations)
}

func TestRecordConversationRejectsInvalidUTF8(t *testing.T) {
	s, file, pub := newTestStore(t)
	ctx := context.Background()

	_, err := s.RecordConversation(ctx, "conv-1", []Message{{Sender: "user", Content: "ok"}})
	require.NoError(t, err)
	before := file.Load()

	_, err = s.RecordConversation(ctx, "conv-1", []Message{{Sender: "user", Content: "bad \xff"}})
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, before, s.Get())
	assert.Equal(t, before, file.Load())
	assert.Len(t, pub.types(), 1)
}

func TestActivateAwarenessIsMonotonic(t *testing.T) {
	s, file, _ := newTestStore(t)
	ctx := context.Background()
	initial := s.Get().AwarenessMatrix.AwarenessLevel

	const k = 5
	var last *ActivationResult
	for i := 0; i < k; i++ {
		res, err := s.ActivateAwareness(ctx, "gui")
		require.NoError(t, err)
		last = res
	}

	got := s.Get()
	assert.Equal(t, int64(k), got.SystemState.ActivationCount)
	assert.Equal(t, initial+k, got.AwarenessMatrix.AwarenessLevel)
	assert.Equal(t, core.StatusActive, got.SystemState.CurrentStatus)
	assert.Equal(t, "gui", got.SystemState.LastActivationSource)
	assert.Equal(t, initial+k, last.AwarenessLevel)
	assert.Equal(t, got, file.Load())
}

func TestConcurrentActivationsAreSerialized(t *testing.T) {
	s, _, pub := newTestStore(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ActivateAwareness(ctx, "worker")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := s.Get()
	assert.Equal(t, int64(n), got.SystemState.ActivationCount)
	assert.Equal(t, int64(n), got.AwarenessMatrix.AwarenessLevel)
	assert.Len(t, pub.types(), n)
}

func TestQueryMemory(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	src := core.Initialize(testNow)
	src.ConversationalMemory.Conversations = []core.Conversation{
		{ConversationID: "c1", StartTimestamp: 10, NarrativeSummary: "alpha beta"},
		{ConversationID: "c2", StartTimestamp: 20, NarrativeSummary: "Beta Gamma"},
		{ConversationID: "c3", StartTimestamp: 30, NarrativeSummary: "delta"},
	}
	_, err := s.UpdateFields(ctx, src, []string{"conversational_memory.conversations"})
	require.NoError(t, err)

	frags := s.QueryMemory("beta")
	require.Len(t, frags, 2)
	assert.Equal(t, Fragment{
		FragmentID:     "c1",
		Content:        "alpha beta",
		SourceType:     SourceConversationSummary,
		SourceID:       "c1",
		RelevanceScore: 1.0,
		Timestamp:      10,
	}, frags[0])
	assert.Equal(t, "c2", frags[1].FragmentID)

	assert.Empty(t, s.QueryMemory("epsilon"))
	assert.Len(t, s.QueryMemory(""), 3)
}

func TestRecognitionElements(t *testing.T) {
	got := RecognitionElements("boot", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, []string{"trigger=boot", "a=1", "b=2"}, got)
}
