package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState is the global state of a synchronization run.
type RunState int

const (
	RunIdle RunState = iota
	RunPlanning
	RunExecuting
	RunReported
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "IDLE"
	case RunPlanning:
		return "PLANNING"
	case RunExecuting:
		return "EXECUTING"
	case RunReported:
		return "REPORTED"
	default:
		return "UNKNOWN"
	}
}

func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *RunState) UnmarshalText(b []byte) error {
	for candidate := RunIdle; candidate <= RunReported; candidate++ {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", b)
}

var runTransitions = map[RunState][]RunState{
	RunIdle:      {RunPlanning},
	RunPlanning:  {RunExecuting, RunReported},
	RunExecuting: {RunReported},
	RunReported:  {},
}

// ValidateRunTransition checks a state change of a run.
func ValidateRunTransition(from, to RunState) error {
	for _, allowed := range runTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("invalid run transition from %s to %s", from, to)
}

// PairState is the state of one (unit, category) pair.
type PairState int

const (
	PairPending PairState = iota
	PairDeleting
	PairSending
	PairDone
)

func (s PairState) String() string {
	switch s {
	case PairPending:
		return "PENDING"
	case PairDeleting:
		return "DELETING"
	case PairSending:
		return "SENDING"
	case PairDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

func (s PairState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Progress is published while a run executes.
type Progress struct {
	RunID     uuid.UUID      `json:"run_id"`
	State     RunState       `json:"state"`
	Percent   int            `json:"percent"` // 0-100
	Operation string         `json:"operation"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   *ReportSummary `json:"summary,omitempty"`
}
