package conversation

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type chatLock struct {
	mu   sync.Mutex
	refs int // guarded by the map bucket via Compute
}

// Locker serialises work per chat: updates of one conversation run one at a
// time while different chats proceed in parallel. A chat's entry lives only
// while someone holds or waits for it.
type Locker struct {
	locks *xsync.MapOf[int64, *chatLock]
}

func NewLocker() *Locker {
	return &Locker{locks: xsync.NewMapOf[int64, *chatLock]()}
}

// Lock blocks until chatID is free and returns the matching unlock.
func (l *Locker) Lock(chatID int64) (unlock func()) {
	c, _ := l.locks.Compute(chatID, func(c *chatLock, loaded bool) (*chatLock, bool) {
		if !loaded {
			c = &chatLock{}
		}
		c.refs++
		return c, false
	})
	c.mu.Lock()

	return func() {
		c.mu.Unlock()
		l.locks.Compute(chatID, func(c *chatLock, loaded bool) (*chatLock, bool) {
			if !loaded {
				return c, true
			}
			c.refs--
			return c, c.refs == 0
		})
	}
}

// Len reports how many chats currently hold or wait for a lock.
func (l *Locker) Len() int {
	return l.locks.Size()
}
