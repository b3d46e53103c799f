package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"vandalwatch/internal/config"
)

// ErrNoSession is returned for unknown or already closed session ids.
var ErrNoSession = errors.New("no such session")

// Manager owns all reviewer sessions of the process. The hydration
// semaphore and the inactive set are shared across sessions; the queues
// themselves are per session.
type Manager struct {
	store    Store
	hydrator Hydrator
	inactive *InactiveSet
	sem      *semaphore.Weighted
	cfg      *config.Config

	mu       sync.Mutex
	sessions map[string]*Queue
}

// NewManager creates a session manager.
func NewManager(cfg *config.Config, store Store, hydrator Hydrator) *Manager {
	return &Manager{
		store:    store,
		hydrator: hydrator,
		inactive: NewInactiveSet(),
		sem:      semaphore.NewWeighted(int64(cfg.WorkerCount)),
		cfg:      cfg,
		sessions: make(map[string]*Queue),
	}
}

// Open starts a new reviewer session on channel and returns its id. An
// empty channel selects the default.
func (m *Manager) Open(channel string) (string, *Queue) {
	if channel == "" {
		channel = m.cfg.DefaultChannel
	}
	id := uuid.NewString()
	q := newQueue(id, m.store, m.hydrator, m.inactive, m.sem, Options{
		Channel:      channel,
		MinQueueSize: m.cfg.MinQueueSize,
		Capacity:     m.cfg.CacheCapacity,
		BatchSize:    m.cfg.LeaseBatchSize,
		HistorySize:  m.cfg.ReservationHistory,
	})

	m.mu.Lock()
	m.sessions[id] = q
	m.mu.Unlock()
	return id, q
}

// Get returns the queue for a session id.
func (m *Manager) Get(id string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	return q, nil
}

// Close drains and removes one session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	q, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	q.Close(ctx)
	return nil
}

// CloseAll drains every session, used at shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	queues := make([]*Queue, 0, len(m.sessions))
	for _, q := range m.sessions {
		queues = append(queues, q)
	}
	m.sessions = make(map[string]*Queue)
	m.mu.Unlock()

	for _, q := range queues {
		q.Close(ctx)
	}
}

// Snapshot merges the resident (page -> revision) pairs of every session
// for the maintainer's ground-truth check.
func (m *Manager) Snapshot() map[uint64]uint64 {
	m.mu.Lock()
	queues := make([]*Queue, 0, len(m.sessions))
	for _, q := range m.sessions {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	merged := make(map[uint64]uint64)
	for _, q := range queues {
		for page, rev := range q.Snapshot() {
			merged[page] = rev
		}
	}
	return merged
}

// Inactive returns the process-wide stale-revision set.
func (m *Manager) Inactive() *InactiveSet {
	return m.inactive
}
