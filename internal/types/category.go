package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConfigCategory is a class of configuration payload that is synchronized
// as a whole: deleted from the unit, then sent fresh.
type ConfigCategory int

const (
	CategoryScenes ConfigCategory = iota
	CategorySchedules
	CategoryMultiScenes
	CategorySequences
	CategoryKNX
	CategoryCurtain

	// CategoryCount must stay last.
	CategoryCount
)

var categoryNames = [CategoryCount]string{
	CategoryScenes:      "scenes",
	CategorySchedules:   "schedules",
	CategoryMultiScenes: "multiScenes",
	CategorySequences:   "sequences",
	CategoryKNX:         "knx",
	CategoryCurtain:     "curtain",
}

func (c ConfigCategory) Valid() bool {
	return c >= 0 && c < CategoryCount
}

func (c ConfigCategory) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

func ParseConfigCategory(s string) (ConfigCategory, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return ConfigCategory(i), nil
		}
	}
	return 0, fmt.Errorf("unknown config category: %q", s)
}

func (c ConfigCategory) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid config category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *ConfigCategory) UnmarshalText(b []byte) error {
	parsed, err := ParseConfigCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// AllCategories returns every category in wire order.
func AllCategories() []ConfigCategory {
	all := make([]ConfigCategory, 0, CategoryCount)
	for c := ConfigCategory(0); c < CategoryCount; c++ {
		all = append(all, c)
	}
	return all
}

type DeviceKind string

const (
	DeviceKindAircon   DeviceKind = "aircon"
	DeviceKindLighting DeviceKind = "lighting"
)

func (k DeviceKind) Title() string {
	switch k {
	case DeviceKindAircon:
		return "Aircon"
	case DeviceKindLighting:
		return "Lighting"
	default:
		return string(k)
	}
}

// DeviceRef points from a category record to a project device. Address is
// the candidate address derived from the record's context (may be empty).
type DeviceRef struct {
	LogicalID string     `json:"logical_id" yaml:"logical_id"`
	Kind      DeviceKind `json:"kind" yaml:"kind"`
	Address   string     `json:"address,omitempty" yaml:"address,omitempty"`
}

type CategoryRecord struct {
	Index   int            `json:"index" yaml:"index"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Devices []DeviceRef    `json:"devices,omitempty" yaml:"devices,omitempty"`
	Data    map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// ProjectItem is a device known to the project store.
type ProjectItem struct {
	ID         uuid.UUID      `json:"id"`
	ProjectID  uuid.UUID      `json:"project_id"`
	Kind       DeviceKind     `json:"kind"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Attributes map[string]any `json:"attributes,omitempty"`
}
