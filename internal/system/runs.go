package system

import (
	"sync"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/engine"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// maxRetainedRuns bounds the in-memory run history. Older reported runs are
// only available from the database.
const maxRetainedRuns = 100

// RunRegistry keeps the runs started by this process.
type RunRegistry struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*engine.Run
	order []uuid.UUID
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[uuid.UUID]*engine.Run)}
}

func (r *RunRegistry) Add(run *engine.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)

	for len(r.order) > maxRetainedRuns {
		oldest := r.runs[r.order[0]]
		if oldest != nil && oldest.State() != types.RunReported {
			break
		}
		delete(r.runs, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *RunRegistry) Get(id uuid.UUID) (*engine.Run, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	return run, ok
}

// RunProgress serves the gRPC progress stream.
func (r *RunRegistry) RunProgress(id uuid.UUID) (types.Progress, bool) {
	run, ok := r.Get(id)
	if !ok {
		return types.Progress{}, false
	}
	return run.Progress(), true
}

// Active counts runs that have not been reported yet.
func (r *RunRegistry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, run := range r.runs {
		if run.State() != types.RunReported {
			n++
		}
	}
	return n
}
