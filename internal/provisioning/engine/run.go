package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/plan"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// Target is a unit selected for synchronization together with its stored
// profile.
type Target struct {
	Unit      types.NetworkUnit
	ProfileID uuid.UUID
}

type Request struct {
	RunID      uuid.UUID // optional, generated when nil
	Targets    []Target
	Categories []types.ConfigCategory
	// WriteProfile executes the profile write plan against the single
	// target before the categories are synchronized.
	WriteProfile bool
	// Known is every unit of the last scan, used for identity checks.
	Known []types.NetworkUnit
}

// unitRun is the prepared work for one unit.
type unitRun struct {
	unit    types.NetworkUnit
	profile *types.StoredUnitProfile
}

func pairKey(unit types.NetworkUnit, c types.ConfigCategory) string {
	return unit.Key() + "#" + c.String()
}

// Run is one prepared synchronization run. It is created by
// Engine.Prepare and executed once.
type Run struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	units      []unitRun
	categories []types.ConfigCategory
	plan       *plan.Plan

	mu       sync.RWMutex
	state    types.RunState
	progress types.Progress
	pairs    map[string]types.PairState
	report   *types.SyncReport
	executed bool
	// identity is the profile target after successful IP or CAN id
	// changes, nil while unchanged.
	identity *types.NetworkUnit
}

func newRun(id uuid.UUID) *Run {
	return &Run{
		ID:        id,
		CreatedAt: time.Now(),
		state:     types.RunIdle,
		progress:  types.Progress{RunID: id, State: types.RunIdle, Timestamp: time.Now()},
		pairs:     make(map[string]types.PairState),
	}
}

func (r *Run) setState(to types.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := types.ValidateRunTransition(r.state, to); err != nil {
		return err
	}
	r.state = to
	r.progress.State = to
	r.progress.Timestamp = time.Now()
	return nil
}

func (r *Run) State() types.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Progress returns the latest progress snapshot.
func (r *Run) Progress() types.Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

// Report is nil until the run is reported.
func (r *Run) Report() *types.SyncReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report
}

func (r *Run) setPair(unit types.NetworkUnit, c types.ConfigCategory, s types.PairState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs[pairKey(unit, c)] = s
}

// Pairs returns the state of every (unit, category) pair.
func (r *Run) Pairs() map[string]types.PairState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]types.PairState, len(r.pairs))
	for k, v := range r.pairs {
		out[k] = v
	}
	return out
}

// Units lists the targets of the run.
func (r *Run) Units() []types.NetworkUnit {
	units := make([]types.NetworkUnit, len(r.units))
	for i, u := range r.units {
		units[i] = u.unit
	}
	return units
}

// IdentityChange returns the profile target before and after the run when
// the run changed its IP address or CAN id.
func (r *Run) IdentityChange() (from, to types.NetworkUnit, changed bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.identity == nil || len(r.units) == 0 {
		return types.NetworkUnit{}, types.NetworkUnit{}, false
	}
	return r.units[0].unit, *r.identity, true
}

func (r *Run) applyIdentity(kind plan.StepKind, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := r.units[0].unit
	if r.identity != nil {
		updated = *r.identity
	}
	switch kind {
	case plan.StepIPChange:
		updated.IPAddress = value
	case plan.StepCanIDChange:
		updated.CanID = value
	default:
		return
	}
	r.identity = &updated
}

func (r *Run) claim() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.executed {
		return fmt.Errorf("run %s already executed", r.ID)
	}
	r.executed = true
	return nil
}

// tracker turns weighted operations into a monotonic percentage.
type tracker struct {
	done    float64
	percent int
}

func (t *tracker) advance(weight float64) int {
	t.done += weight
	p := int(t.done)
	if p > 100 {
		p = 100
	}
	if p > t.percent {
		t.percent = p
	}
	return t.percent
}
