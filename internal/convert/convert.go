package convert

import (
	"fmt"
	"math"
	"strconv"

	"github.com/eotlabs/eot-cloud-core/internal/device"
)

// vendorTypeCategories maps vendor device types to canonical categories.
// Unrecognized types fall back to switch so new vendor types degrade to a
// controllable on/off device instead of disappearing.
var vendorTypeCategories = map[string]device.Category{
	VendorTypeLight:   device.CategoryLight,
	VendorTypeSwitch:  device.CategorySwitch,
	VendorTypeFan:     device.CategoryFan,
	VendorTypeCurtain: device.CategoryCover,
	VendorTypeScene:   device.CategoryScene,
	VendorTypeSensor:  device.CategoryMotionSensor,
}

// traitCapabilities maps vendor traits to canonical capabilities.
var traitCapabilities = map[string]device.Capability{
	TraitOnOff:      device.CapOnOff,
	TraitBrightness: device.CapBrightness,
	TraitColor:      device.CapColorTemp,
	TraitFanSpeed:   device.CapFanSpeed,
	TraitOpenClose:  device.CapPosition,
	TraitScene:      device.CapScene,
	TraitOccupancy:  device.CapOccupancy,
}

// CategoryForVendorType translates a vendor device type string into a
// canonical category. Unknown types map to switch.
func CategoryForVendorType(vendorType string) device.Category {
	if cat, ok := vendorTypeCategories[vendorType]; ok {
		return cat
	}
	return device.CategorySwitch
}

// DeviceFromVendor builds a canonical device from one SYNC response entry.
//
// Sensors are classified by trait: a SENSOR carrying OccupancySensing is a
// motion sensor, anything else lands in the other-sensor bucket. Devices
// that do not report live state get deterministic defaults so the store
// never holds a device without a state map: scenes start "off", motion
// sensors start "not_detected", everything else starts "unknown".
//
// Parameters:
//   - vd: One device entry from the SYNC payload
//
// Returns:
//   - *device.Device: Normalized device with default state populated
func DeviceFromVendor(vd VendorDevice) *device.Device {
	cat := CategoryForVendorType(vd.Type)

	caps := make([]device.Capability, 0, len(vd.Traits))
	for _, trait := range vd.Traits {
		if c, ok := traitCapabilities[trait]; ok {
			caps = append(caps, c)
		}
	}

	if cat == device.CategoryMotionSensor {
		occupancy := false
		for _, c := range caps {
			if c == device.CapOccupancy {
				occupancy = true
				break
			}
		}
		if !occupancy {
			cat = device.CategoryOtherSensor
		}
	}

	name := vd.Name.Name
	if name == "" {
		name = "Unknown Device"
	}

	d := &device.Device{
		ID:              vd.ID,
		Name:            name,
		Type:            cat,
		Capabilities:    caps,
		WillReportState: vd.WillReportState,
		State:           device.State{},
	}

	if info := vd.DeviceInfo; info != nil {
		if info.Manufacturer != "" {
			d.Manufacturer = &info.Manufacturer
		}
		if info.Model != "" {
			d.Model = &info.Model
		}
		if info.SwVersion != "" {
			d.FirmwareVersion = &info.SwVersion
		}
	}

	if !vd.WillReportState {
		switch cat {
		case device.CategoryScene:
			d.State[device.StateKeyState] = device.StateOff
		case device.CategoryMotionSensor:
			d.State[device.StateKeyState] = device.StateNotDetected
		default:
			d.State[device.StateKeyState] = device.StateUnknown
		}
		d.State[device.StateKeyAvailable] = true
	}

	return d
}

// StateFromVendor translates a vendor state object into a canonical state
// patch with merge semantics: only keys present in the vendor state appear
// in the result, so applying it never clobbers fields the vendor omitted.
//
// A field with an untranslatable shape is skipped, never aborting the
// rest of the patch. One garbage value in a fragment must not discard the
// valid fields beside it.
//
// Parameters:
//   - vs: Vendor state object from a QUERY response or command fragment
//
// Returns:
//   - device.State: Partial canonical state, possibly empty
func StateFromVendor(vs VendorState) device.State {
	patch := device.State{}

	if b, ok := vs["online"].(bool); ok {
		patch[device.StateKeyAvailable] = b
	}

	if b, ok := vs["on"].(bool); ok {
		if b {
			patch[device.StateKeyState] = device.StateOn
		} else {
			patch[device.StateKeyState] = device.StateOff
		}
	}

	// The cloud reports brightness as a percentage already; pass it
	// through untouched. Only push traffic uses the 0-255 scale.
	if n, ok := asInt(vs["brightness"]); ok {
		patch[device.StateKeyBrightness] = n
	}

	if color, ok := vs["color"].(map[string]any); ok {
		if n, ok := asInt(color["temperatureK"]); ok {
			patch[device.StateKeyColorTemp] = n
		}
	}

	if setting, ok := vs["currentFanSpeedSetting"].(string); ok {
		if percent, err := FanSpeedToPercent(setting); err == nil {
			patch[device.StateKeyFanPercent] = percent
		}
	}

	if f, ok := asFloat(vs["thermostatTemperatureAmbient"]); ok {
		patch[device.StateKeyCurrentTemp] = f
	}

	if f, ok := asFloat(vs["thermostatTemperatureSetpoint"]); ok {
		patch[device.StateKeySetpoint] = f
	}

	if mode, ok := vs["thermostatMode"].(string); ok {
		patch[device.StateKeyHVACMode] = mode
	}

	if locked, ok := vs["isLocked"].(bool); ok {
		if locked {
			patch[device.StateKeyState] = device.StateLocked
		} else {
			patch[device.StateKeyState] = device.StateUnlocked
		}
	}

	if n, ok := asInt(vs["openPercent"]); ok {
		patch[device.StateKeyPosition] = n
		patch[device.StateKeyClosed] = n == 0
	}

	if occ, ok := vs["occupancy"].(string); ok {
		if occ == "OCCUPIED" {
			patch[device.StateKeyState] = device.StateDetected
		} else {
			patch[device.StateKeyState] = device.StateNotDetected
		}
	}

	return patch
}

// FanSpeedToPercent translates a fan speed setting ("0".."4") into a
// percentage. Each step is worth 25 percent.
func FanSpeedToPercent(setting string) (int, error) {
	n, err := strconv.Atoi(setting)
	if err != nil {
		return 0, fmt.Errorf("%w: fan speed %q is not an integer", ErrConversion, setting)
	}
	return n * 25, nil
}

// PercentToFanSpeed translates a percentage back into the nearest fan
// speed setting string.
func PercentToFanSpeed(percent int) string {
	return strconv.Itoa(int(math.Round(float64(percent) / 25)))
}

// BrightnessRawToPercent converts the hardware's 0-255 brightness scale to
// a rounded percentage. Out-of-range raw values collapse to 0.
func BrightnessRawToPercent(raw int) int {
	if raw < 0 || raw > 255 {
		return 0
	}
	return int(math.Round(float64(raw) / 255 * 100))
}

// PercentToBrightnessRaw converts a percentage to the hardware's 0-255
// brightness scale, rounding to the nearest step.
func PercentToBrightnessRaw(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 255
	}
	return int(math.Round(float64(percent) / 100 * 255))
}

// ClampCoverPosition snaps a requested cover position to the only two
// positions the hardware supports: below 50 closes fully, 50 and above
// opens fully.
func ClampCoverPosition(position int) int {
	if position < 50 {
		return 0
	}
	return 100
}

// asInt extracts an integer from a decoded JSON value. JSON numbers arrive
// as float64; int is accepted for values built in-process.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// asFloat extracts a float from a decoded JSON value.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
