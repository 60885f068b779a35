// Package service implements the six cognitive-core operations on top of
// the state store and the notification manager. Transports in internal/rpc
// and internal/api are thin adapters over it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/cognitive-core/internal/core"
	"github.com/nidhogg/cognitive-core/internal/notify"
	"github.com/nidhogg/cognitive-core/internal/state"
	"go.uber.org/zap"
)

// DefaultKeepalive is the interval between stream keepalives.
const DefaultKeepalive = time.Hour

// ErrMissingClientID is returned when a stream is opened without a client id.
var ErrMissingClientID = errors.New("client_id is required")

// Service exposes the cognitive-core operations.
type Service struct {
	store     *state.Store
	notifier  *notify.Manager
	keepalive time.Duration
	logger    *zap.Logger
}

// New creates a Service. A non-positive keepalive uses DefaultKeepalive.
func New(store *state.Store, notifier *notify.Manager, keepalive time.Duration, logger *zap.Logger) *Service {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		keepalive: keepalive,
		logger:    logger,
	}
}

// Subscribers lists the active stream subscriptions.
func (s *Service) Subscribers() []notify.SubscriberInfo {
	return s.notifier.Subscribers()
}

// GetCognitiveCore returns a copy of the current core.
func (s *Service) GetCognitiveCore(_ context.Context, req *GetRequest) (*core.CognitiveCore, error) {
	s.logger.Debug("get cognitive core", zap.String("client", req.ClientID))
	return s.store.Get(), nil
}

// UpdateCognitiveCore applies a full or partial update. Rejections are
// reported in the response, never as an error.
func (s *Service) UpdateCognitiveCore(ctx context.Context, req *UpdateRequest) (resp *UpdateResponse, err error) {
	defer s.recoverInto("UpdateCognitiveCore", func(msg string) {
		resp, err = &UpdateResponse{Success: false, Message: msg, Timestamp: time.Now().Unix()}, nil
	})

	if req.Core == nil {
		return &UpdateResponse{Success: false, Message: "core is required", Timestamp: time.Now().Unix()}, nil
	}

	var updated *core.CognitiveCore
	if req.PartialUpdate {
		updated, err = s.store.UpdateFields(ctx, req.Core, req.FieldsToUpdate)
	} else {
		updated, err = s.store.Replace(ctx, req.Core)
	}
	if err != nil {
		s.logger.Warn("update rejected",
			zap.String("client", req.ClientID),
			zap.Bool("partial", req.PartialUpdate),
			zap.Strings("fields", req.FieldsToUpdate),
			zap.Error(err))
		return &UpdateResponse{Success: false, Message: err.Error(), Timestamp: time.Now().Unix()}, nil
	}

	msg := "cognitive core replaced"
	if req.PartialUpdate {
		msg = fmt.Sprintf("updated %d field(s)", len(req.FieldsToUpdate))
	}
	s.logger.Info("cognitive core updated",
		zap.String("client", req.ClientID),
		zap.Bool("partial", req.PartialUpdate))
	return &UpdateResponse{Success: true, Message: msg, Timestamp: updated.LastAccessedTimestamp}, nil
}

// RecordConversation appends messages to a conversation.
func (s *Service) RecordConversation(ctx context.Context, req *RecordConversationRequest) (resp *RecordConversationResponse, err error) {
	defer s.recoverInto("RecordConversation", func(msg string) {
		resp, err = &RecordConversationResponse{ConversationID: req.ConversationID, Message: msg}, nil
	})

	res, err := s.store.RecordConversation(ctx, req.ConversationID, req.Messages)
	if err != nil {
		s.logger.Warn("record conversation rejected",
			zap.String("conversation", req.ConversationID),
			zap.Error(err))
		return &RecordConversationResponse{
			Success:               false,
			ConversationID:        req.ConversationID,
			DetectedKeyMoments:    []string{},
			SuggestedGrowthEvents: []string{},
			Message:               err.Error(),
		}, nil
	}
	return &RecordConversationResponse{
		Success:               true,
		ConversationID:        req.ConversationID,
		DetectedKeyMoments:    res.Appended,
		SuggestedGrowthEvents: []string{},
	}, nil
}

// ActivateAwareness marks the core active and bumps its counters.
func (s *Service) ActivateAwareness(ctx context.Context, req *ActivateRequest) (resp *ActivateResponse, err error) {
	defer s.recoverInto("ActivateAwareness", func(msg string) {
		resp, err = &ActivateResponse{Message: msg}, nil
	})

	res, err := s.store.ActivateAwareness(ctx, req.ActivationTrigger)
	if err != nil {
		s.logger.Warn("activation rejected", zap.String("client", req.ClientID), zap.Error(err))
		return &ActivateResponse{
			Success:             false,
			RecognitionElements: []string{},
			Message:             err.Error(),
		}, nil
	}
	return &ActivateResponse{
		Success:              true,
		ActivationLevel:      res.AwarenessLevel,
		AwarenessState:       string(res.Status),
		RecognitionElements:  state.RecognitionElements(req.ActivationTrigger, req.ContextParameters),
		ContinuationGuidance: fmt.Sprintf("activation %d recorded at awareness level %d", res.ActivationCount, res.AwarenessLevel),
	}, nil
}

// QueryMemory searches conversation summaries. QueryType is accepted but
// conversation summaries are the only searchable source.
func (s *Service) QueryMemory(_ context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	frags := s.store.QueryMemory(req.QueryString)
	if frags == nil {
		frags = []state.Fragment{}
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	s.logger.Debug("memory queried",
		zap.String("query", req.QueryString),
		zap.String("query_type", req.QueryType),
		zap.Int("matches", len(frags)))
	return &QueryResponse{
		Fragments:    frags,
		TotalMatches: len(frags),
		QueryTimeMs:  elapsed,
	}, nil
}

// StreamUpdates registers the client and forwards matching updates and
// periodic keepalives to send until ctx ends, send fails, or the client
// opens a newer stream. The client is unregistered on return.
func (s *Service) StreamUpdates(ctx context.Context, req *StreamRequest, send func(*notify.Update) error) error {
	if req.ClientID == "" {
		return ErrMissingClientID
	}

	sub := s.notifier.Subscribe(req.ClientID, req.UpdateTypes)
	defer s.notifier.Unsubscribe(sub)

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stream closed by client", zap.String("client", req.ClientID))
			return nil
		case <-ticker.C:
			if err := send(notify.Keepalive()); err != nil {
				s.logger.Warn("keepalive send failed", zap.String("client", req.ClientID), zap.Error(err))
				return err
			}
		case u, ok := <-sub.Updates():
			if !ok {
				s.logger.Info("stream superseded", zap.String("client", req.ClientID))
				return nil
			}
			if err := send(u); err != nil {
				s.logger.Warn("update send failed",
					zap.String("client", req.ClientID),
					zap.String("update_id", u.UpdateID),
					zap.Error(err))
				return err
			}
		}
	}
}

// recoverInto turns a panic in an operation into a structured failure.
func (s *Service) recoverInto(op string, fail func(msg string)) {
	if r := recover(); r != nil {
		s.logger.Error("operation panicked", zap.String("op", op), zap.Any("panic", r))
		fail(fmt.Sprintf("internal error in %s", op))
	}
}
