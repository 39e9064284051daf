package convert

// VendorDevice is one device entry from the cloud's SYNC response.
// Field names follow the vendor's smart-home intent schema.
type VendorDevice struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	Traits          []string    `json:"traits"`
	Name            VendorName  `json:"name"`
	WillReportState bool        `json:"willReportState"`
	RoomHint        string      `json:"roomHint,omitempty"`
	DeviceInfo      *VendorInfo `json:"deviceInfo,omitempty"`
}

// VendorName wraps the nested display-name object.
type VendorName struct {
	Name string `json:"name"`
}

// VendorInfo carries device metadata from the SYNC response.
type VendorInfo struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	HwVersion    string `json:"hwVersion,omitempty"`
	SwVersion    string `json:"swVersion,omitempty"`
}

// VendorState is one device's state object from the QUERY response or a
// command-response fragment. Kept as a raw map because the set of present
// keys varies per capability and conversion is key-by-key.
type VendorState map[string]any

// Vendor device type identifiers.
const (
	VendorTypeLight   = "action.devices.types.LIGHT"
	VendorTypeSwitch  = "action.devices.types.SWITCH"
	VendorTypeFan     = "action.devices.types.FAN"
	VendorTypeCurtain = "action.devices.types.CURTAIN"
	VendorTypeScene   = "action.devices.types.SCENE"
	VendorTypeSensor  = "action.devices.types.SENSOR"
)

// Vendor trait identifiers.
const (
	TraitOnOff       = "action.devices.traits.OnOff"
	TraitBrightness  = "action.devices.traits.Brightness"
	TraitColor       = "action.devices.traits.ColorSetting"
	TraitFanSpeed    = "action.devices.traits.FanSpeed"
	TraitTemperature = "action.devices.traits.TemperatureSetting"
	TraitOpenClose   = "action.devices.traits.OpenClose"
	TraitScene       = "action.devices.traits.Scene"
	TraitOccupancy   = "action.devices.traits.OccupancySensing"
)
