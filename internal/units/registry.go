package units

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// Registry holds the units found by the last scan.
type Registry struct {
	units     []types.NetworkUnit
	byKey     map[string]int
	scannedAt time.Time
	mu        sync.RWMutex
	logger    *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byKey:  make(map[string]int),
		logger: logger,
	}
}

// Replace supersedes the previous scan result.
func (r *Registry) Replace(units []types.NetworkUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.units = append([]types.NetworkUnit(nil), units...)
	r.byKey = make(map[string]int, len(units))
	for i, u := range r.units {
		r.byKey[u.Key()] = i
	}
	r.scannedAt = time.Now()

	if conflicts := CheckConflicts(r.units); len(conflicts) > 0 {
		for _, c := range conflicts {
			r.logger.Warn("Unit identity conflict",
				zap.String("code", c.Code),
				zap.String("message", c.Message),
				zap.Strings("units", c.Units))
		}
	}
}

func (r *Registry) List() []types.NetworkUnit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]types.NetworkUnit(nil), r.units...)
}

func (r *Registry) Get(key string) (types.NetworkUnit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byKey[key]
	if !ok {
		return types.NetworkUnit{}, false
	}
	return r.units[i], true
}

// Lookup resolves a selection of keys. Unknown keys are returned separately.
func (r *Registry) Lookup(keys []string) ([]types.NetworkUnit, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []types.NetworkUnit
	var missing []string
	for _, key := range keys {
		if i, ok := r.byKey[key]; ok {
			found = append(found, r.units[i])
		} else {
			missing = append(missing, key)
		}
	}
	return found, missing
}

// Rekey replaces the unit stored under oldKey, e.g. after a profile write
// changed its IP address or CAN id. It reports false when oldKey is not
// known, which happens when a scan superseded the entry in the meantime.
func (r *Registry) Rekey(oldKey string, unit types.NetworkUnit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.byKey[oldKey]
	if !ok {
		return false
	}
	delete(r.byKey, oldKey)
	r.units[i] = unit
	r.byKey[unit.Key()] = i

	r.logger.Info("Unit identity updated",
		zap.String("from", oldKey),
		zap.String("to", unit.Key()))
	return true
}

func (r *Registry) ScannedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scannedAt
}

func (r *Registry) Conflicts() []*types.ValidationError {
	return CheckConflicts(r.List())
}
