package lock

import (
	"context"
	"sync"
)

type keyedSlot struct {
	ch   chan struct{}
	refs int
}

// KeyedLocker is an in-process Locker. Slots are created on demand and
// dropped when the last waiter leaves, so idle keys cost nothing.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*keyedSlot
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*keyedSlot)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &keyedSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.leave(key, s)
		})
	}, nil
}

func (l *KeyedLocker) leave(key string, s *keyedSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
