package streaming

import (
	"sync"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// ProgressStreamer fans progress updates out to subscribers. Slow
// subscribers miss updates instead of blocking the run.
type ProgressStreamer struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID][]chan types.Progress
	all         []chan types.Progress
}

func NewProgressStreamer() *ProgressStreamer {
	return &ProgressStreamer{
		subscribers: make(map[uuid.UUID][]chan types.Progress),
	}
}

// Subscribe receives updates of one run.
func (s *ProgressStreamer) Subscribe(runID uuid.UUID) <-chan types.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan types.Progress, 100)
	s.subscribers[runID] = append(s.subscribers[runID], ch)
	return ch
}

// SubscribeAll receives updates of every run.
func (s *ProgressStreamer) SubscribeAll() <-chan types.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan types.Progress, 100)
	s.all = append(s.all, ch)
	return ch
}

func (s *ProgressStreamer) Unsubscribe(runID uuid.UUID, ch <-chan types.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[runID]
	for i, sub := range subs {
		if sub == ch {
			s.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(s.subscribers[runID]) == 0 {
		delete(s.subscribers, runID)
	}
}

func (s *ProgressStreamer) UnsubscribeAll(ch <-chan types.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.all {
		if sub == ch {
			s.all = append(s.all[:i], s.all[i+1:]...)
			close(sub)
			break
		}
	}
}

// Broadcast delivers p to the run's subscribers and to global ones. A
// final update (state REPORTED) closes the run's subscriptions.
func (s *ProgressStreamer) Broadcast(p types.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers[p.RunID] {
		select {
		case ch <- p:
		default:
			// Skip if channel is full
		}
	}
	for _, ch := range s.all {
		select {
		case ch <- p:
		default:
		}
	}

	if p.State == types.RunReported {
		for _, ch := range s.subscribers[p.RunID] {
			close(ch)
		}
		delete(s.subscribers, p.RunID)
	}
}
