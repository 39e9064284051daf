package device

import (
	"fmt"
	"strings"
)

// Category is the normalized device classification. Every device lives in
// exactly one category bucket of the Store.
type Category string

// Category constants.
const (
	CategorySwitch       Category = "switch"
	CategoryLight        Category = "light"
	CategoryFan          Category = "fan"
	CategoryCover        Category = "cover"
	CategoryScene        Category = "scene"
	CategoryMotionSensor Category = "motion_sensor"
	CategoryOtherSensor  Category = "other_sensor"
)

// AllCategories returns all valid category values.
func AllCategories() []Category {
	return []Category{
		CategorySwitch, CategoryLight, CategoryFan, CategoryCover,
		CategoryScene, CategoryMotionSensor, CategoryOtherSensor,
	}
}

// Capability represents what a device can do.
type Capability string

// Capability constants.
const (
	CapOnOff      Capability = "on_off"
	CapBrightness Capability = "brightness"
	CapColorTemp  Capability = "color_temp"
	CapFanSpeed   Capability = "fan_speed"
	CapPosition   Capability = "position"
	CapOccupancy  Capability = "occupancy"
	CapScene      Capability = "scene"
)

// State holds the current device state as a JSON map.
//
// Examples:
//   - Switch: {"state": "on", "available": true}
//   - Light:  {"state": "on", "brightness": 60, "color_temp": 3800}
//   - Cover:  {"position": 100, "is_closed": false}
//   - Motion: {"state": "detected"}
type State map[string]any

// Well-known State keys.
const (
	StateKeyState       = "state"
	StateKeyAvailable   = "available"
	StateKeyBrightness  = "brightness"
	StateKeyColorTemp   = "color_temp"
	StateKeyFanPercent  = "percentage"
	StateKeyPosition    = "position"
	StateKeyClosed      = "is_closed"
	StateKeyCurrentTemp = "current_temperature"
	StateKeySetpoint    = "temperature"
	StateKeyHVACMode    = "hvac_mode"
)

// Well-known values for the "state" key.
const (
	StateOn          = "on"
	StateOff         = "off"
	StateUnknown     = "unknown"
	StateDetected    = "detected"
	StateNotDetected = "not_detected"
	StateLocked      = "locked"
	StateUnlocked    = "unlocked"
)

// Merge copies every key from patch into s, overwriting existing keys.
// Keys absent from patch are left untouched (merge semantics, not replace).
func (s State) Merge(patch State) {
	for k, v := range patch {
		s[k] = v
	}
}

// DeepCopy returns an independent copy of the state map.
func (s State) DeepCopy() State {
	if s == nil {
		return nil
	}
	return deepCopyMap(s)
}

// Device represents one normalized device from the vendor cloud.
//
// The ID encodes exactly three dash-separated segments: user identity,
// physical hardware id, and sub-channel key. See ParseID.
type Device struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type Category `json:"type"`

	Capabilities []Capability `json:"capabilities"`

	// Metadata
	Manufacturer    *string `json:"manufacturer,omitempty"`
	Model           *string `json:"model,omitempty"`
	FirmwareVersion *string `json:"sw_version,omitempty"`

	// WillReportState is true when the device reports live state and can
	// be batch-queried; devices without it keep converter defaults.
	WillReportState bool `json:"will_report_state"`

	// Current state
	State State `json:"state"`
}

// HasCapability reports whether the device declares the given capability.
func (d *Device) HasCapability(c Capability) bool {
	for _, cap := range d.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// DeepCopy creates a complete independent copy of the Device.
// All map and slice fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	cpy.State = deepCopyMap(d.State)

	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}

	// Pointer fields (*string) don't need deep copy because strings
	// are immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// ID is a parsed device identifier.
type ID struct {
	// User is the account identity segment.
	User string

	// Hardware is the physical hardware id embedded in MQTT topics.
	Hardware string

	// SubChannel is one addressable function within a multi-function
	// hardware unit (e.g. relay "r3", curtain channel "c0").
	SubChannel string
}

// idSegments is the required number of dash-separated segments.
const idSegments = 3

// ParseID parses a device id of the form {user}-{hardware}-{subchannel}.
//
// The id must contain exactly three non-empty dash-separated segments.
// Malformed ids are rejected with ErrInvalidDeviceID; command handlers
// rely on this to never publish to a half-built topic.
func ParseID(s string) (ID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != idSegments {
		return ID{}, fmt.Errorf("%w: %q must have exactly %d segments", ErrInvalidDeviceID, s, idSegments)
	}
	for _, p := range parts {
		if p == "" {
			return ID{}, fmt.Errorf("%w: %q has an empty segment", ErrInvalidDeviceID, s)
		}
	}
	return ID{
		User:       parts[0],
		Hardware:   parts[1],
		SubChannel: parts[2],
	}, nil
}

// String reassembles the canonical id form.
func (id ID) String() string {
	return id.User + "-" + id.Hardware + "-" + id.SubChannel
}
