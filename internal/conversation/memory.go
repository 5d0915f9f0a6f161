package conversation

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps states in process memory. States idle for longer than
// the TTL are treated as absent and removed by Sweep.
type MemoryStore struct {
	states *xsync.MapOf[int64, State]
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		states: xsync.NewMapOf[int64, State](),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *MemoryStore) expired(s State, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.UpdatedAt) > m.ttl
}

func (m *MemoryStore) Get(_ context.Context, chatID int64) (State, error) {
	s, ok := m.states.Load(chatID)
	if !ok {
		return State{}, ErrNoState
	}
	if m.expired(s, m.now()) {
		m.states.Delete(chatID)
		return State{}, ErrNoState
	}
	return s, nil
}

func (m *MemoryStore) Set(_ context.Context, chatID int64, s State) error {
	s.UpdatedAt = m.now()
	m.states.Store(chatID, s)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, chatID int64) error {
	m.states.Delete(chatID)
	return nil
}

// Sweep drops expired states and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	now := m.now()
	removed := 0
	m.states.Range(func(chatID int64, s State) bool {
		if m.expired(s, now) {
			m.states.Delete(chatID)
			removed++
		}
		return true
	})
	return removed
}

// Len is the number of stored states, expired ones included.
func (m *MemoryStore) Len() int {
	return m.states.Size()
}
