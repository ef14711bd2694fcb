// Package keylock serializes work per key, such as per Discord message.
package keylock

import (
	"context"
	"sync"
)

// Locks hands out one lock per key. Entries are dropped once nobody holds
// or waits for them.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lock
}

type lock struct {
	ch   chan struct{}
	refs int
}

func New() *Locks {
	return &Locks{locks: make(map[string]*lock)}
}

// Lock blocks until key is free or ctx is done. The returned unlock is
// safe to call more than once.
func (k *Locks) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &lock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *Locks) release(key string, l *lock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are held or waited for.
func (k *Locks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
