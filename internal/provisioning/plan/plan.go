package plan

import (
	"fmt"
	"sort"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

type StepKind int

const (
	StepHardwareMode StepKind = iota
	StepIOConfig
	StepRS485
	StepIPChange
	StepCanIDChange
	StepDeleteCategory
	StepSendCategory
)

func (k StepKind) String() string {
	switch k {
	case StepHardwareMode:
		return types.OpHardwareMode
	case StepIOConfig:
		return types.OpIOConfig
	case StepRS485:
		return types.OpRS485
	case StepIPChange:
		return types.OpIPChange
	case StepCanIDChange:
		return types.OpCanIDChange
	case StepDeleteCategory:
		return types.OpDelete
	case StepSendCategory:
		return types.OpSend
	default:
		return fmt.Sprintf("step(%d)", int(k))
	}
}

// Progress weights of the profile steps. The rest of 100 belongs to the
// category delete/send operations.
const (
	WeightHardwareMode = 15
	WeightIOConfig     = 10
	WeightRS485        = 10
	WeightIPChange     = 15
	WeightCanIDChange  = 15

	MaxProfileWeight = WeightHardwareMode + WeightIOConfig + WeightRS485 + WeightIPChange + WeightCanIDChange
)

// ProfileCategory is the report category of profile steps.
const ProfileCategory = "profile"

type Step struct {
	Kind     StepKind
	Category types.ConfigCategory
	Payload  any
	Weight   int
	Label    string
}

// CategoryName is the report category of the step.
func (s Step) CategoryName() string {
	if s.Kind == StepDeleteCategory || s.Kind == StepSendCategory {
		return s.Category.String()
	}
	return ProfileCategory
}

// IOPayload is the I/O configuration in write order.
type IOPayload struct {
	Inputs  []types.IOConfig
	Outputs []types.IOConfig // lighting and curtain
	Aircon  []types.IOConfig
}

func (p IOPayload) Count() int {
	return len(p.Inputs) + len(p.Outputs) + len(p.Aircon)
}

// Plan is the ordered write sequence for one unit.
type Plan struct {
	Unit  types.NetworkUnit
	Steps []Step
}

func (p *Plan) Weight() int {
	total := 0
	for _, s := range p.Steps {
		total += s.Weight
	}
	return total
}

func (p *Plan) Kinds() []StepKind {
	kinds := make([]StepKind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}

// Build turns a profile into the write plan for target. Steps that change
// the unit's identity come last, since every earlier step addresses the
// unit by its current IP and CAN id.
func Build(profile *types.StoredUnitProfile, target types.NetworkUnit) (*Plan, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	p := &Plan{Unit: target}

	if profile.HardwareMode != nil {
		p.Steps = append(p.Steps, Step{
			Kind:    StepHardwareMode,
			Payload: *profile.HardwareMode,
			Weight:  WeightHardwareMode,
			Label:   fmt.Sprintf("Setting hardware mode to %s", *profile.HardwareMode),
		})
	}

	if io := buildIOPayload(profile); io.Count() > 0 {
		p.Steps = append(p.Steps, Step{
			Kind:    StepIOConfig,
			Payload: io,
			Weight:  WeightIOConfig,
			Label:   fmt.Sprintf("Writing %d I/O configs", io.Count()),
		})
	}

	if len(profile.RS485Config) > 0 {
		channels := append([]types.RS485Channel(nil), profile.RS485Config...)
		sort.Slice(channels, func(i, j int) bool { return channels[i].Index < channels[j].Index })
		p.Steps = append(p.Steps, Step{
			Kind:    StepRS485,
			Payload: channels,
			Weight:  WeightRS485,
			Label:   fmt.Sprintf("Writing %d RS485 channels", len(channels)),
		})
	}

	if profile.IPAddress != "" && profile.IPAddress != target.IPAddress {
		p.Steps = append(p.Steps, Step{
			Kind:    StepIPChange,
			Payload: profile.IPAddress,
			Weight:  WeightIPChange,
			Label:   fmt.Sprintf("Changing IP %s -> %s", target.IPAddress, profile.IPAddress),
		})
	}

	if profile.CanID != "" && profile.CanID != target.CanID {
		p.Steps = append(p.Steps, Step{
			Kind:    StepCanIDChange,
			Payload: profile.CanID,
			Weight:  WeightCanIDChange,
			Label:   fmt.Sprintf("Changing CAN id %s -> %s", target.CanID, profile.CanID),
		})
	}

	return p, nil
}

func buildIOPayload(profile *types.StoredUnitProfile) IOPayload {
	var io IOPayload

	io.Inputs = sortedByIndex(profile.InputConfigs)
	for _, out := range sortedByIndex(profile.OutputConfigs) {
		if out.Kind.Group() == types.IOGroupAircon {
			io.Aircon = append(io.Aircon, out)
		} else {
			io.Outputs = append(io.Outputs, out)
		}
	}

	return io
}

func sortedByIndex(configs []types.IOConfig) []types.IOConfig {
	if len(configs) == 0 {
		return nil
	}
	sorted := append([]types.IOConfig(nil), configs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	return sorted
}

func DeleteStep(c types.ConfigCategory, weight int) Step {
	return Step{
		Kind:     StepDeleteCategory,
		Category: c,
		Weight:   weight,
		Label:    fmt.Sprintf("Deleting %s", c),
	}
}

func SendStep(c types.ConfigCategory, records []types.CategoryRecord, weight int) Step {
	return Step{
		Kind:     StepSendCategory,
		Category: c,
		Payload:  records,
		Weight:   weight,
		Label:    fmt.Sprintf("Sending %d %s", len(records), c),
	}
}

// CategorySteps lists every delete, then every send, for the selected
// categories of one profile. weight is applied to each step.
func CategorySteps(profile *types.StoredUnitProfile, categories []types.ConfigCategory, weight int) []Step {
	steps := make([]Step, 0, 2*len(categories))
	for _, c := range categories {
		steps = append(steps, DeleteStep(c, weight))
	}
	for _, c := range categories {
		steps = append(steps, SendStep(c, profile.Records(c), weight))
	}
	return steps
}
