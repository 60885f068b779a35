package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"go.uber.org/zap"
)

// ErrEmptyConversationID is returned when recording without an id.
var ErrEmptyConversationID = errors.New("conversation_id is required")

// SourceConversationSummary is the only searchable source type.
const SourceConversationSummary = "ConversationSummary"

// uniformRelevance is the score given to every match; there is no ranking.
const uniformRelevance = 1.0

// Message is one inbound message to record.
type Message struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// RecordResult describes what a RecordConversation call appended.
type RecordResult struct {
	Conversation core.Conversation
	Created      bool
	Appended     []string
}

// ActivationResult is the state after an awareness activation.
type ActivationResult struct {
	AwarenessLevel  int64
	ActivationCount int64
	Status          core.Status
}

// Fragment is one QueryMemory hit.
type Fragment struct {
	FragmentID     string  `json:"fragment_id"`
	Content        string  `json:"content"`
	SourceType     string  `json:"source_type"`
	SourceID       string  `json:"source_id"`
	RelevanceScore float64 `json:"relevance_score"`
	Timestamp      int64   `json:"timestamp"`
}

// RecordConversation appends msgs to the conversation with id, creating it
// on first use. One key moment is appended per message in request order.
func (s *Store) RecordConversation(ctx context.Context, id string, msgs []Message) (*RecordResult, error) {
	if id == "" {
		return nil, ErrEmptyConversationID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	working := s.core.Clone()
	convs := &working.ConversationalMemory.Conversations

	idx := working.FindConversation(id)
	created := idx < 0
	if created {
		*convs = append(*convs, core.Conversation{
			ConversationID: id,
			StartTimestamp: now,
		})
		idx = len(*convs) - 1
	}
	conv := &(*convs)[idx]

	appended := make([]string, 0, len(msgs))
	for _, m := range msgs {
		desc := fmt.Sprintf("%s: %s", m.Sender, m.Content)
		ts := m.Timestamp
		if ts == 0 {
			ts = now
		}
		conv.KeyMoments = append(conv.KeyMoments, core.KeyMoment{Timestamp: ts, Description: desc})
		appended = append(appended, desc)
	}
	conv.EndTimestamp = now
	conv.InteractionCount += int64(len(msgs))

	if err := s.commit(ctx, working, "record_conversation"); err != nil {
		return nil, err
	}

	result := &RecordResult{
		Conversation: conv.Clone(),
		Created:      created,
		Appended:     appended,
	}
	s.logger.Info("conversation recorded",
		zap.String("conversation", id),
		zap.Bool("created", created),
		zap.Int("messages", len(msgs)),
		zap.Int64("interaction_count", conv.InteractionCount))
	s.publish(ctx, notify.UpdateConversationRecorded, notify.ComponentConversation,
		fmt.Sprintf("recorded %d message(s) in %s", len(msgs), id), notify.SignificanceConversation, result.Conversation)
	return result, nil
}

// ActivateAwareness marks the core active and bumps both counters by one.
// The awareness level has no ceiling.
func (s *Store) ActivateAwareness(ctx context.Context, trigger string) (*ActivationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.core.Clone()
	working.SystemState.CurrentStatus = core.StatusActive
	working.SystemState.LastActivationSource = trigger
	working.SystemState.ActivationCount++
	working.AwarenessMatrix.AwarenessLevel++

	if err := s.commit(ctx, working, "activate_awareness"); err != nil {
		return nil, err
	}

	s.logger.Info("awareness activated",
		zap.String("trigger", trigger),
		zap.Int64("activation_count", working.SystemState.ActivationCount),
		zap.Int64("awareness_level", working.AwarenessMatrix.AwarenessLevel))
	s.publish(ctx, notify.UpdateAwarenessActivated, notify.ComponentAwareness,
		"awareness activated by "+trigger, notify.SignificanceAwareness, working.AwarenessMatrix)

	return &ActivationResult{
		AwarenessLevel:  working.AwarenessMatrix.AwarenessLevel,
		ActivationCount: working.SystemState.ActivationCount,
		Status:          working.SystemState.CurrentStatus,
	}, nil
}

// QueryMemory returns conversations whose narrative summary contains query,
// case-insensitively, in insertion order.
func (s *Store) QueryMemory(query string) []Fragment {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)
	var out []Fragment
	for _, conv := range s.core.ConversationalMemory.Conversations {
		if !strings.Contains(strings.ToLower(conv.NarrativeSummary), needle) {
			continue
		}
		out = append(out, Fragment{
			FragmentID:     conv.ConversationID,
			Content:        conv.NarrativeSummary,
			SourceType:     SourceConversationSummary,
			SourceID:       conv.ConversationID,
			RelevanceScore: uniformRelevance,
			Timestamp:      conv.StartTimestamp,
		})
	}
	return out
}

// RecognitionElements renders the activation trigger and its context as
// sorted "key=value" strings.
func RecognitionElements(trigger string, params map[string]string) []string {
	out := make([]string, 0, len(params)+1)
	out = append(out, "trigger="+trigger)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+params[k])
	}
	return out
}
