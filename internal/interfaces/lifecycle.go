package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// ErrNoDatabase is returned by operations that need database storage while
// it is disabled.
var ErrNoDatabase = errors.New("database storage is disabled")

// SystemStatus represents the current system state
type SystemStatus struct {
	State      string    `json:"state"`
	UnitCount  int       `json:"unit_count"`
	LastScan   time.Time `json:"last_scan,omitempty"`
	ActiveRuns int       `json:"active_runs"`
	Database   bool      `json:"database"`
	MQTT       bool      `json:"mqtt"`
}

type ScanResult struct {
	Units     []types.NetworkUnit      `json:"units"`
	Conflicts []*types.ValidationError `json:"conflicts"`
	ScannedAt time.Time                `json:"scanned_at"`
}

// SyncTarget selects a scanned unit by key (ip/can id) and the profile to
// synchronize from.
type SyncTarget struct {
	UnitKey   string    `json:"unit" binding:"required"`
	ProfileID uuid.UUID `json:"profile_id" binding:"required"`
}

type SyncRequest struct {
	Targets      []SyncTarget           `json:"targets" binding:"required"`
	Categories   []types.ConfigCategory `json:"categories"`
	WriteProfile bool                   `json:"write_profile"`
}

type RunStatus struct {
	RunID    uuid.UUID                  `json:"run_id"`
	State    types.RunState             `json:"state"`
	Progress types.Progress             `json:"progress"`
	Units    []string                   `json:"units"`
	Pairs    map[string]types.PairState `json:"pairs"`
}

type LifecycleManager interface {
	Scan(ctx context.Context) ScanResult
	LastScan() ScanResult
	GetProfile(ctx context.Context, id uuid.UUID) (*types.StoredUnitProfile, error)
	SaveProfile(ctx context.Context, profile *types.StoredUnitProfile) error
	StartSync(ctx context.Context, req SyncRequest) (uuid.UUID, error)
	RunStatus(runID uuid.UUID) (RunStatus, bool)
	RunReport(ctx context.Context, runID uuid.UUID) (*types.SyncReport, error)
	GetCurrentStatus() SystemStatus
}
