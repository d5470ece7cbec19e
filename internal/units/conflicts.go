package units

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

const (
	CodeDuplicateIP    = "DUPLICATE_IP"
	CodeDuplicateCanID = "DUPLICATE_CAN_ID"
	CodeMultipleMaster = "MULTIPLE_MASTERS"
	CodeTypeMismatch   = "UNIT_TYPE_MISMATCH"
	CodeNoUnits        = "NO_UNITS"
	CodeSingleTarget   = "PROFILE_SINGLE_TARGET"
)

// CheckConflicts lists duplicate IPs, duplicate CAN ids and segments with
// more than one master.
func CheckConflicts(units []types.NetworkUnit) []*types.ValidationError {
	byIP := make(map[string][]string)
	byCan := make(map[string][]string)
	masters := make(map[string][]string)

	for _, u := range units {
		byIP[u.IPAddress] = append(byIP[u.IPAddress], u.Label())
		byCan[u.CanID] = append(byCan[u.CanID], u.Label())
		if u.Mode == types.ModeMaster {
			masters[u.Segment()] = append(masters[u.Segment()], u.Label())
		}
	}

	var conflicts []*types.ValidationError
	for _, ip := range sortedKeys(byIP) {
		if labels := byIP[ip]; len(labels) > 1 {
			conflicts = append(conflicts, types.NewValidationError(CodeDuplicateIP,
				fmt.Sprintf("IP address %s is used by %d units", ip, len(labels)), labels...))
		}
	}
	for _, id := range sortedKeys(byCan) {
		if labels := byCan[id]; len(labels) > 1 {
			conflicts = append(conflicts, types.NewValidationError(CodeDuplicateCanID,
				fmt.Sprintf("CAN id %s is used by %d units", id, len(labels)), labels...))
		}
	}
	for _, seg := range sortedKeys(masters) {
		if labels := masters[seg]; len(labels) > 1 {
			conflicts = append(conflicts, types.NewValidationError(CodeMultipleMaster,
				fmt.Sprintf("CAN segment %s has %d masters", seg, len(labels)), labels...))
		}
	}
	return conflicts
}

// CheckIdentityWrite validates writing profile to target, given every other
// unit known on the network. The first conflict is returned.
func CheckIdentityWrite(target types.NetworkUnit, profile *types.StoredUnitProfile, known []types.NetworkUnit) error {
	if profile.UnitType != 0 && profile.UnitType != target.UnitType {
		return types.NewValidationError(CodeTypeMismatch,
			fmt.Sprintf("profile is for unit type %s, target is %s", profile.UnitType, target.UnitType),
			target.Label())
	}

	// Zielzustand nach dem Schreiben
	after := target
	if profile.IPAddress != "" {
		after.IPAddress = profile.IPAddress
	}
	if profile.CanID != "" {
		after.CanID = profile.CanID
	}
	if profile.HardwareMode != nil {
		after.Mode = *profile.HardwareMode
	}

	for _, other := range known {
		if other.Key() == target.Key() {
			continue
		}
		if after.IPAddress != target.IPAddress && other.IPAddress == after.IPAddress {
			return types.NewValidationError(CodeDuplicateIP,
				fmt.Sprintf("IP address %s is already used", after.IPAddress),
				target.Label(), other.Label())
		}
		if after.CanID != target.CanID && other.CanID == after.CanID {
			return types.NewValidationError(CodeDuplicateCanID,
				fmt.Sprintf("CAN id %s is already used", after.CanID),
				target.Label(), other.Label())
		}
		if after.Mode == types.ModeMaster && other.Mode == types.ModeMaster && other.Segment() == after.Segment() {
			return types.NewValidationError(CodeMultipleMaster,
				fmt.Sprintf("CAN segment %s already has a master", after.Segment()),
				target.Label(), other.Label())
		}
	}

	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
