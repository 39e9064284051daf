package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/eotlabs/eot-cloud-core/internal/convert"
	"github.com/eotlabs/eot-cloud-core/internal/device"
	"github.com/eotlabs/eot-cloud-core/internal/infrastructure/influxdb"
	"github.com/eotlabs/eot-cloud-core/internal/push"
)

// relayKeys are the per-relay sub-channel keys a push frame can carry,
// plus the all-relays key used by dimmers.
var relayKeys = []string{"r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "rall"}

// Push frame sub-channel keys for the remaining device classes. Dimmer
// and fan frames split state across companion keys: the class key carries
// on/off while brightNess, lightType, and fanspeed carry the levels.
const (
	curtainKey0   = "c0"
	curtainKey1   = "c1"
	dimmerKey     = "dimmer"
	brightnessKey = "brightNess"
	lightTypeKey  = "lightType"
	fanKey        = "fan"
	fanSpeedKey   = "fanspeed"
	motionKey     = "motionSensor"
)

// applyPushEvent parses one inbound frame and patches the store.
//
// Frames classify by fixed priority: relay keys first, then curtain,
// dimmer, fan, and motion; the first class with a non-empty value wins
// and the rest of the frame is ignored. Malformed frames and unknown
// devices are dropped without error, counted only in telemetry; the next
// poll corrects anything a dropped frame would have told us.
func (c *Coordinator) applyPushEvent(ctx context.Context, ev push.Event) {
	data, ok := parsePushFrame(ev.Payload)
	if !ok {
		c.logger.Debug("push frame not parseable", "topic", ev.Topic)
		c.telemetry.WritePushEvent(influxdb.PushOutcomeParseFailure)
		return
	}

	hardware := stringField(data, "d_id")
	if hardware == "" {
		c.logger.Debug("push frame without hardware id", "topic", ev.Topic)
		c.telemetry.WritePushEvent(influxdb.PushOutcomeNoHardwareID)
		return
	}

	patches, classified := c.classifyFrame(hardware, data)
	if !classified {
		c.logger.Debug("push frame carried no recognised keys", "hardware", hardware)
		c.telemetry.WritePushEvent(influxdb.PushOutcomeUnclassified)
		return
	}

	applied := 0
	for id, patch := range patches {
		if c.patchByID(id, patch) {
			applied++
			if c.history != nil {
				if err := c.history.RecordStateChange(ctx, id, patch, device.StateHistorySourcePush); err != nil {
					c.logger.Warn("history record failed", "device", id, "error", err)
				}
			}
		}
	}

	if applied == 0 {
		c.logger.Debug("push frame for unknown device", "hardware", hardware)
		c.telemetry.WritePushEvent(influxdb.PushOutcomeUnknownDevice)
		return
	}

	c.telemetry.WritePushEvent(influxdb.PushOutcomeApplied)
	c.notify()
}

// classifyFrame turns a frame's data object into per-device patches.
// Returns false when no class matched.
func (c *Coordinator) classifyFrame(hardware string, data map[string]any) (map[string]device.State, bool) {
	patches := make(map[string]device.State)

	// Relay class: every relay key present in the frame patches its own
	// sub-channel device.
	for _, key := range relayKeys {
		v := stringField(data, key)
		if v == "" {
			continue
		}
		patches[c.deviceID(hardware, key)] = device.State{
			device.StateKeyState: onOff(v == "1"),
		}
	}
	if len(patches) > 0 {
		return patches, true
	}

	for _, key := range []string{curtainKey0, curtainKey1} {
		v := stringField(data, key)
		if v == "" {
			continue
		}
		position := 0
		if v == "1" {
			position = 100
		}
		patches[c.deviceID(hardware, key)] = device.State{
			device.StateKeyPosition: position,
			device.StateKeyClosed:   position == 0,
		}
	}
	if len(patches) > 0 {
		return patches, true
	}

	if v := stringField(data, dimmerKey); v != "" {
		patch := device.State{device.StateKeyState: onOff(v == "1")}
		if b := stringField(data, brightnessKey); b != "" {
			patch[device.StateKeyBrightness] = brightnessPercent(b)
		}
		if lt := stringField(data, lightTypeKey); lt != "" {
			if bucket, err := strconv.Atoi(lt); err == nil {
				patch[device.StateKeyColorTemp] = convert.KelvinForLightType(bucket)
			}
		}
		patches[c.deviceID(hardware, dimmerKey)] = patch
		return patches, true
	}

	if v := stringField(data, fanKey); v != "" {
		patch := device.State{device.StateKeyState: onOff(v == "1")}
		if s := stringField(data, fanSpeedKey); s != "" {
			if percent, err := convert.FanSpeedToPercent(s); err == nil {
				patch[device.StateKeyFanPercent] = percent
			} else {
				c.logger.Debug("fan speed push value not numeric", "hardware", hardware, "value", s)
			}
		}
		patches[c.deviceID(hardware, fanKey)] = patch
		return patches, true
	}

	if v := stringField(data, motionKey); v != "" {
		state := device.StateNotDetected
		if v == "1" {
			state = device.StateDetected
		}
		patches[c.deviceID(hardware, motionKey)] = device.State{
			device.StateKeyState: state,
		}
		return patches, true
	}

	return nil, false
}

// patchByID locates a device across buckets and applies a patch. Patching
// never inserts; a frame for a device the last poll did not report is a
// no-op.
func (c *Coordinator) patchByID(id string, patch device.State) bool {
	d, err := c.store.Get(id)
	if err != nil {
		return false
	}
	return c.store.Patch(d.Type, id, patch)
}

func (c *Coordinator) deviceID(hardware, subChannel string) string {
	return device.ID{User: c.user, Hardware: hardware, SubChannel: subChannel}.String()
}

// parsePushFrame extracts the data object from a frame. The usual shape
// is {"body":{"data":{...}}}; bare objects are accepted as the data
// itself.
func parsePushFrame(payload []byte) (map[string]any, bool) {
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, false
	}

	if body, ok := frame["body"].(map[string]any); ok {
		if data, ok := body["data"].(map[string]any); ok {
			return data, true
		}
		return nil, false
	}
	return frame, true
}

// stringField reads a field as a trimmed string. Numeric values are
// stringified; other shapes read as empty.
func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// brightnessPercent converts the hardware's 0-255 brightNess value to a
// percent. Unparseable or out-of-range values collapse to 0.
func brightnessPercent(v string) int {
	raw, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return convert.BrightnessRawToPercent(raw)
}

func onOff(on bool) string {
	if on {
		return device.StateOn
	}
	return device.StateOff
}
