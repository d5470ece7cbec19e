package engine

import (
	"context"
	"sort"
	"sync"
)

// unitLocks serializes runs per physical unit. A run holds the slots of
// all its units for the whole execution, so two runs never write to the
// same unit at the same time.
type unitLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newUnitLocks() *unitLocks {
	return &unitLocks{slots: make(map[string]chan struct{})}
}

func (l *unitLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

// acquire takes the slots of keys in sorted order, so runs with
// overlapping units cannot deadlock. onWait is called once when a slot is
// busy. The returned func releases every slot.
func (l *unitLocks) acquire(ctx context.Context, keys []string, onWait func()) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []chan struct{}
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	waited := false
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		s := l.slot(key)
		select {
		case s <- struct{}{}:
			held = append(held, s)
			continue
		default:
		}

		if !waited && onWait != nil {
			onWait()
			waited = true
		}
		select {
		case s <- struct{}{}:
			held = append(held, s)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	return release, nil
}
