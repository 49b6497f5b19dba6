package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the channel capacity handed to each subscriber.
const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Runs are keyed by RunID, with new statuses replacing previous values.
// Updates are sent to subscribers non-blocking; if a subscriber's buffer is
// full, the update is dropped for that subscriber.
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]RunStatus
	subscribers map[chan RunStatus]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]RunStatus),
		subscribers: make(map[chan RunStatus]struct{}),
	}
}

// Update stores a [RunStatus] and notifies all subscribers.
func (m *MemoryStore) Update(status RunStatus) {
	m.mu.Lock()
	m.runs[status.RunID] = status
	m.mu.Unlock()

	m.notifySubscribers(status)
}

// Get returns the stored status for runID.
func (m *MemoryStore) Get(runID string) (RunStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.runs[runID]
	return status, ok
}

// GetAll returns a snapshot of all stored runs ordered by start time.
func (m *MemoryStore) GetAll() []RunStatus {
	m.mu.RLock()
	results := make([]RunStatus, 0, len(m.runs))
	for _, status := range m.runs {
		results = append(results, status)
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].RunID < results[j].RunID
		}
		return results[i].StartedAt.Before(results[j].StartedAt)
	})
	return results
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan RunStatus {
	ch := make(chan RunStatus, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan RunStatus) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the status to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(status RunStatus) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- status:
		default:
			// subscriber is slow, drop the message
		}
	}
}
