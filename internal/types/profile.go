package types

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type IOKind string

const (
	IOKindInput    IOKind = "input"
	IOKindLighting IOKind = "lighting"
	IOKindCurtain  IOKind = "curtain"
	IOKindAircon   IOKind = "aircon"
)

// IOConfig describes one logical input or output channel of a unit.
type IOConfig struct {
	Index  int            `json:"index" yaml:"index" cbor:"1,keyasint"`
	Kind   IOKind         `json:"kind" yaml:"kind" cbor:"2,keyasint"`
	Name   string         `json:"name,omitempty" yaml:"name,omitempty" cbor:"3,keyasint,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty" cbor:"4,keyasint,omitempty"`
}

type RS485Slave struct {
	Address int            `json:"address" yaml:"address" cbor:"1,keyasint"`
	Type    string         `json:"type" yaml:"type" cbor:"2,keyasint"`
	Params  map[string]any `json:"params,omitempty" yaml:"params,omitempty" cbor:"3,keyasint,omitempty"`
}

// RS485Channel is the configuration of one serial port (index 0 or 1).
type RS485Channel struct {
	Index  int          `json:"index" yaml:"index" cbor:"1,keyasint"`
	Baud   int          `json:"baud" yaml:"baud" cbor:"2,keyasint"`
	Parity string       `json:"parity,omitempty" yaml:"parity,omitempty" cbor:"3,keyasint,omitempty"`
	Slaves []RS485Slave `json:"slaves,omitempty" yaml:"slaves,omitempty" cbor:"4,keyasint,omitempty"`
}

const MaxRS485Channels = 2

// StoredUnitProfile is the persisted configuration of a unit.
type StoredUnitProfile struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	ProjectID uuid.UUID `json:"project_id" yaml:"project_id"`
	Name      string    `json:"name" yaml:"name"`

	IPAddress string   `json:"ip_address" yaml:"ip_address"`
	CanID     string   `json:"can_id" yaml:"can_id"`
	UnitType  UnitType `json:"unit_type" yaml:"unit_type"`

	HardwareMode  *UnitMode      `json:"hardware_mode,omitempty" yaml:"hardware_mode,omitempty"`
	InputConfigs  []IOConfig     `json:"input_configs,omitempty" yaml:"input_configs,omitempty"`
	OutputConfigs []IOConfig     `json:"output_configs,omitempty" yaml:"output_configs,omitempty"`
	RS485Config   []RS485Channel `json:"rs485_config,omitempty" yaml:"rs485_config,omitempty"`

	Scenes      []CategoryRecord `json:"scenes,omitempty" yaml:"scenes,omitempty"`
	Schedules   []CategoryRecord `json:"schedules,omitempty" yaml:"schedules,omitempty"`
	MultiScenes []CategoryRecord `json:"multi_scenes,omitempty" yaml:"multi_scenes,omitempty"`
	Sequences   []CategoryRecord `json:"sequences,omitempty" yaml:"sequences,omitempty"`
	KNX         []CategoryRecord `json:"knx,omitempty" yaml:"knx,omitempty"`
	Curtains    []CategoryRecord `json:"curtains,omitempty" yaml:"curtains,omitempty"`
}

// Records returns the stored records of one category.
func (p *StoredUnitProfile) Records(c ConfigCategory) []CategoryRecord {
	switch c {
	case CategoryScenes:
		return p.Scenes
	case CategorySchedules:
		return p.Schedules
	case CategoryMultiScenes:
		return p.MultiScenes
	case CategorySequences:
		return p.Sequences
	case CategoryKNX:
		return p.KNX
	case CategoryCurtain:
		return p.Curtains
	}
	panic(fmt.Sprintf("unknown config category %d", int(c)))
}

// Validate checks the index invariants of the I/O and RS485 sections.
func (p *StoredUnitProfile) Validate() error {
	if err := validateIndexes("input_configs", p.InputConfigs); err != nil {
		return err
	}
	if err := validateIndexes("output_configs", p.OutputConfigs); err != nil {
		return err
	}
	for _, in := range p.InputConfigs {
		if in.Kind != "" && in.Kind != IOKindInput {
			return NewValidationError("PROFILE_IO_KIND",
				fmt.Sprintf("input %d has output kind %q", in.Index, in.Kind))
		}
	}

	if len(p.RS485Config) > MaxRS485Channels {
		return NewValidationError("PROFILE_RS485_COUNT",
			fmt.Sprintf("%d rs485 channels configured, at most %d allowed", len(p.RS485Config), MaxRS485Channels))
	}
	seen := make(map[int]bool, len(p.RS485Config))
	for _, ch := range p.RS485Config {
		if ch.Index != 0 && ch.Index != 1 {
			return NewValidationError("PROFILE_RS485_INDEX",
				fmt.Sprintf("rs485 channel index %d out of range (0 or 1)", ch.Index))
		}
		if seen[ch.Index] {
			return NewValidationError("PROFILE_RS485_INDEX",
				fmt.Sprintf("rs485 channel index %d configured twice", ch.Index))
		}
		seen[ch.Index] = true
	}
	return nil
}

// validateIndexes requires the indexes to be a permutation of 0..n-1.
func validateIndexes(section string, configs []IOConfig) error {
	indexes := make([]int, len(configs))
	for i, c := range configs {
		indexes[i] = c.Index
	}
	sort.Ints(indexes)
	for i, idx := range indexes {
		if idx != i {
			return NewValidationError("PROFILE_IO_INDEX",
				fmt.Sprintf("%s: indexes must be unique and zero-based, got %v", section, indexes))
		}
	}
	return nil
}

// IOGroup selects the I/O command a batch of configs is written with.
type IOGroup int

const (
	IOGroupInputs IOGroup = iota
	IOGroupOutputs
	IOGroupAircon
)

func (g IOGroup) String() string {
	switch g {
	case IOGroupInputs:
		return "inputs"
	case IOGroupOutputs:
		return "outputs"
	case IOGroupAircon:
		return "aircon outputs"
	default:
		return fmt.Sprintf("IOGroup(%d)", int(g))
	}
}

// Group returns the I/O group an output of this kind belongs to.
func (k IOKind) Group() IOGroup {
	switch k {
	case IOKindInput:
		return IOGroupInputs
	case IOKindAircon:
		return IOGroupAircon
	default:
		return IOGroupOutputs
	}
}
