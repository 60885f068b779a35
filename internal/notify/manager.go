package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// mirrorQueue bounds updates waiting for the mirror worker.
const mirrorQueue = 256

// Mirror receives a copy of every published update.
type Mirror interface {
	Mirror(ctx context.Context, u *Update) error
}

// Subscription is one registered stream.
type Subscription struct {
	ClientID  string
	Types     []string
	CreatedAt time.Time
	ch        chan *Update
}

// Updates returns the channel the subscriber reads from. It is closed when
// the subscription is removed or replaced.
func (s *Subscription) Updates() <-chan *Update { return s.ch }

// Matches reports whether u passes this subscription's filter.
func (s *Subscription) Matches(u *Update) bool {
	for _, t := range s.Types {
		if t == UpdateAll || t == u.UpdateType || t == u.Component {
			return true
		}
	}
	return false
}

// SubscriberInfo describes an active subscription.
type SubscriberInfo struct {
	ClientID  string    `json:"client_id"`
	Types     []string  `json:"update_types"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager tracks stream subscribers and fans updates out to them.
// Delivery is best-effort: a full subscriber channel drops the update and
// nothing is replayed to clients that were not connected.
type Manager struct {
	subs    map[string]*Subscription // clientID -> subscription
	mirrors []Mirror
	mirrorQ chan *Update
	buffer  int
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates a manager with the given per-subscriber buffer.
func NewManager(buffer int, logger *zap.Logger) *Manager {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Manager{
		subs:    make(map[string]*Subscription),
		mirrorQ: make(chan *Update, mirrorQueue),
		buffer:  buffer,
		logger:  logger,
	}
}

// AddMirror registers a sink that receives every published update.
func (m *Manager) AddMirror(mirror Mirror) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirrors = append(m.mirrors, mirror)
}

// Subscribe registers clientID. An empty type list means ALL. A previous
// subscription for the same client is closed and replaced.
func (m *Manager) Subscribe(clientID string, types []string) *Subscription {
	if len(types) == 0 {
		types = []string{UpdateAll}
	}
	sub := &Subscription{
		ClientID:  clientID,
		Types:     append([]string(nil), types...),
		CreatedAt: time.Now(),
		ch:        make(chan *Update, m.buffer),
	}

	m.mu.Lock()
	if prev, ok := m.subs[clientID]; ok {
		close(prev.ch)
		m.logger.Info("replacing existing subscription", zap.String("client", clientID))
	}
	m.subs[clientID] = sub
	m.mu.Unlock()

	m.logger.Info("subscriber registered",
		zap.String("client", clientID),
		zap.Strings("update_types", sub.Types))
	return sub
}

// Unsubscribe removes sub if it is still the client's active subscription.
func (m *Manager) Unsubscribe(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.subs[sub.ClientID]
	if !ok || cur != sub {
		return
	}
	delete(m.subs, sub.ClientID)
	close(sub.ch)
	m.logger.Info("subscriber removed", zap.String("client", sub.ClientID))
}

// Publish delivers u to every matching subscriber and returns how many
// received it. Sends never block, so Publish is safe to call while holding
// the state lock. Mirrors are fed asynchronously by Run, in publish order.
func (m *Manager) Publish(_ context.Context, u *Update) int {
	m.mu.RLock()
	delivered := 0
	for clientID, sub := range m.subs {
		if !sub.Matches(u) {
			continue
		}
		select {
		case sub.ch <- u:
			delivered++
		default:
			m.logger.Warn("subscriber buffer full, dropping update",
				zap.String("client", clientID),
				zap.String("update_type", u.UpdateType),
				zap.String("update_id", u.UpdateID))
		}
	}
	hasMirrors := len(m.mirrors) > 0
	m.mu.RUnlock()

	if hasMirrors {
		select {
		case m.mirrorQ <- u:
		default:
			m.logger.Warn("mirror queue full, dropping update", zap.String("update_id", u.UpdateID))
		}
	}

	m.logger.Debug("update published",
		zap.String("update_type", u.UpdateType),
		zap.String("update_id", u.UpdateID),
		zap.Int("delivered", delivered))
	return delivered
}

// Run feeds queued updates to the mirrors until ctx is cancelled. Mirror
// errors are logged and never reach the publisher.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-m.mirrorQ:
			m.mu.RLock()
			mirrors := make([]Mirror, len(m.mirrors))
			copy(mirrors, m.mirrors)
			m.mu.RUnlock()

			for _, mirror := range mirrors {
				if err := mirror.Mirror(ctx, u); err != nil {
					m.logger.Warn("update mirror failed",
						zap.String("update_id", u.UpdateID),
						zap.Error(err))
				}
			}
		}
	}
}

// Subscribers lists active subscriptions ordered by client id.
func (m *Manager) Subscribers() []SubscriberInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]SubscriberInfo, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, SubscriberInfo{
			ClientID:  sub.ClientID,
			Types:     append([]string(nil), sub.Types...),
			CreatedAt: sub.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
