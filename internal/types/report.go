package types

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation names used in OperationResult.Operation.
const (
	OpConnect      = "connect"
	OpHardwareMode = "hardware_mode"
	OpIOConfig     = "io_config"
	OpRS485        = "rs485"
	OpIPChange     = "ip_change"
	OpCanIDChange  = "can_id_change"
	OpDelete       = "delete"
	OpSend         = "send"
)

type OperationResult struct {
	UnitLabel string `json:"unit"`
	Category  string `json:"category"`
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ItemCount int    `json:"item_count"`
}

type ReportSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SyncReport is the immutable outcome of one synchronization run.
type SyncReport struct {
	RunID       uuid.UUID
	StartedAt   time.Time
	CompletedAt time.Time
	results     []OperationResult
}

// NewSyncReport builds a sealed report, used when loading stored reports.
func NewSyncReport(runID uuid.UUID, startedAt, completedAt time.Time, results []OperationResult) *SyncReport {
	return &SyncReport{
		RunID:       runID,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		results:     append([]OperationResult(nil), results...),
	}
}

// Results returns a copy of the ordered results.
func (r *SyncReport) Results() []OperationResult {
	return append([]OperationResult(nil), r.results...)
}

func (r *SyncReport) Summary() ReportSummary {
	var s ReportSummary
	for _, res := range r.results {
		if res.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// ReportView is the JSON shape of a report.
type ReportView struct {
	RunID       uuid.UUID         `json:"run_id"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Summary     ReportSummary     `json:"summary"`
	Results     []OperationResult `json:"results"`
}

func (r *SyncReport) View() ReportView {
	return ReportView{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Summary:     r.Summary(),
		Results:     r.Results(),
	}
}

// ReportBuilder accumulates results during a run. Seal hands out the final
// report; later Add calls are ignored.
type ReportBuilder struct {
	mu        sync.Mutex
	runID     uuid.UUID
	startedAt time.Time
	results   []OperationResult
	sealed    *SyncReport
}

func NewReportBuilder(runID uuid.UUID) *ReportBuilder {
	return &ReportBuilder{runID: runID, startedAt: time.Now()}
}

func (b *ReportBuilder) Add(res OperationResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed != nil {
		return
	}
	b.results = append(b.results, res)
}

// Snapshot returns the results recorded so far.
func (b *ReportBuilder) Snapshot() []OperationResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OperationResult(nil), b.results...)
}

func (b *ReportBuilder) Seal() *SyncReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed == nil {
		b.sealed = NewSyncReport(b.runID, b.startedAt, time.Now(), b.results)
	}
	return b.sealed
}
