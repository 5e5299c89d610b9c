package cache

import (
	"context"
	"sync"
	"time"

	"trustplane/internal/assessment/models"
)

type memoryEntry struct {
	resp      *models.AssessmentResponse
	expiresAt time.Time
}

// Memory is an in-process response cache with per-entry expiry. Suitable for
// single-instance deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

// Get returns the cached response for key, if present and unexpired. Expired
// entries are removed lazily on read.
func (m *Memory) Get(_ context.Context, key string) (*models.AssessmentResponse, bool, error) {
	m.mu.RLock()
	entry, found := m.entries[key]
	m.mu.RUnlock()
	if !found {
		return nil, false, nil
	}
	if m.clock().After(entry.expiresAt) {
		m.mu.Lock()
		if current, still := m.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.resp, true, nil
}

// Set stores the response under key for ttl.
func (m *Memory) Set(_ context.Context, key string, resp *models.AssessmentResponse, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{resp: resp, expiresAt: m.clock().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including not-yet-collected
// expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
