package types

import (
	"fmt"
	"strings"
)

type UnitMode uint8

const (
	ModeStandAlone UnitMode = iota
	ModeSlave
	ModeMaster
)

func (m UnitMode) String() string {
	switch m {
	case ModeStandAlone:
		return "StandAlone"
	case ModeSlave:
		return "Slave"
	case ModeMaster:
		return "Master"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseUnitMode accepts the names produced by String, case-insensitive.
func ParseUnitMode(s string) (UnitMode, error) {
	switch strings.ToLower(s) {
	case "standalone", "stand_alone":
		return ModeStandAlone, nil
	case "slave":
		return ModeSlave, nil
	case "master":
		return ModeMaster, nil
	default:
		return 0, fmt.Errorf("unknown unit mode: %q", s)
	}
}

func (m UnitMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *UnitMode) UnmarshalText(b []byte) error {
	parsed, err := ParseUnitMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// UnitType is the hardware type code reported in the hardware info reply.
type UnitType uint16

var unitTypeNames = map[UnitType]string{
	0x0101: "IO-8",
	0x0102: "IO-16",
	0x0103: "IO-32",
	0x0201: "AC-Gateway",
	0x0301: "Bus-Bridge",
	0x0401: "Curtain-4",
}

func (t UnitType) String() string {
	if name, ok := unitTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", uint16(t))
}

// NetworkUnit is a unit that answered the last discovery probe.
type NetworkUnit struct {
	IPAddress    string   `json:"ip_address"`
	CanID        string   `json:"can_id"`
	UnitType     UnitType `json:"unit_type"`
	SerialNumber string   `json:"serial_number"`
	Mode         UnitMode `json:"mode"`
	CanLoad      bool     `json:"can_load"`
	RecoveryMode bool     `json:"recovery_mode"`
	Interface    string   `json:"interface,omitempty"`
	Firmware     string   `json:"firmware,omitempty"`
}

// Key identifies a unit by {ip, canId}.
func (u NetworkUnit) Key() string {
	return u.IPAddress + "/" + u.CanID
}

// Label is the human readable name used in reports.
func (u NetworkUnit) Label() string {
	return fmt.Sprintf("%s (%s)", u.IPAddress, u.CanID)
}

// Segment returns the CAN segment a unit lives on: the first three
// components of its CAN id.
func (u NetworkUnit) Segment() string {
	idx := strings.LastIndex(u.CanID, ".")
	if idx < 0 {
		return u.CanID
	}
	return u.CanID[:idx]
}
