package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/eotlabs/eot-cloud-core/internal/convert"
	"github.com/eotlabs/eot-cloud-core/internal/device"
	"github.com/eotlabs/eot-cloud-core/internal/push"
)

// Hardware operation types.
const (
	opRelayChange  = "relayChangeRequest"
	opSceneExecute = "sceneExecuteRequestById"
)

// curtainRelays maps a curtain sub-channel and target position to the
// relay that drives it. Each curtain occupies a relay pair: one winds
// open, the other winds closed.
var curtainRelays = map[string]map[int]string{
	curtainKey0: {100: "r1", 0: "r2"},
	curtainKey1: {100: "r3", 0: "r4"},
}

// commandPayload builds the hardware command envelope with one
// command-specific key.
func (c *Coordinator) commandPayload(hardware, operation, key, value string) []byte {
	payload, _ := json.Marshal(map[string]string{
		"d_id":          hardware,
		"operationType": operation,
		"opUsr":         c.user,
		key:             value,
	})
	return payload
}

// publishCommand publishes to the hardware topic and, on confirmation,
// applies the optimistic patch, records history, and drops the API's
// cached fragment for the device so the next poll cannot resurrect
// pre-command state.
func (c *Coordinator) publishCommand(ctx context.Context, kind string, d *device.Device, hardware string, payload []byte, patch device.State) error {
	topic := push.HardwareTopic(c.user, hardware)
	published := c.pusher.Publish(topic, payload)
	c.telemetry.WriteCommand(kind, published)

	if !published {
		return fmt.Errorf("%w: %s for %s", ErrPublishFailed, kind, d.ID)
	}

	c.api.InvalidateCached(d.ID)
	if c.store.Patch(d.Type, d.ID, patch) {
		if c.history != nil {
			if err := c.history.RecordStateChange(ctx, d.ID, patch, device.StateHistorySourceCommand); err != nil {
				c.logger.Warn("history record failed", "device", d.ID, "error", err)
			}
		}
		c.notify()
	}
	c.logger.Debug("command published", "kind", kind, "device", d.ID)
	return nil
}

// target resolves and validates a command target.
func (c *Coordinator) target(id string) (*device.Device, device.ID, error) {
	pid, err := device.ParseID(id)
	if err != nil {
		return nil, device.ID{}, err
	}
	d, err := c.store.Get(id)
	if err != nil {
		return nil, device.ID{}, err
	}
	return d, pid, nil
}

// relayKeyForSubChannel routes an on/off request to the relay key that
// drives the sub-channel. Relays switch themselves, fans hang off r6,
// and dimmers switch through the all-relays key.
func relayKeyForSubChannel(subChannel string) (string, bool) {
	switch {
	case subChannel == fanKey:
		return "r6", true
	case subChannel == dimmerKey:
		return "rall", true
	case strings.HasPrefix(subChannel, "r"):
		return subChannel, true
	default:
		return "", false
	}
}

// SetOnOff switches a device on or off.
//
// Parameters:
//   - id: Device id ({user}-{hardware}-{subchannel})
//   - on: Desired power state
//
// Returns:
//   - error: ErrInvalidDeviceID, ErrDeviceNotFound, ErrUnsupportedCommand,
//     or ErrPublishFailed
func (c *Coordinator) SetOnOff(ctx context.Context, id string, on bool) error {
	d, pid, err := c.target(id)
	if err != nil {
		return err
	}

	relay, ok := relayKeyForSubChannel(pid.SubChannel)
	if !ok {
		return fmt.Errorf("%w: %q cannot switch on/off", ErrUnsupportedCommand, id)
	}

	value := "0"
	if on {
		value = "1"
	}
	payload := c.commandPayload(pid.Hardware, opRelayChange, relay, value)
	patch := device.State{device.StateKeyState: onOff(on)}

	return c.publishCommand(ctx, "on_off", d, pid.Hardware, payload, patch)
}

// SetBrightness dims a device to a percentage. The wire value is the
// hardware's 0-255 scale.
func (c *Coordinator) SetBrightness(ctx context.Context, id string, percent int) error {
	d, pid, err := c.target(id)
	if err != nil {
		return err
	}
	if !d.HasCapability(device.CapBrightness) {
		return fmt.Errorf("%w: %q has no brightness", ErrUnsupportedCommand, id)
	}

	raw := convert.PercentToBrightnessRaw(percent)
	payload := c.commandPayload(pid.Hardware, opRelayChange, "brightNess", strconv.Itoa(raw))
	patch := device.State{
		device.StateKeyBrightness: convert.BrightnessRawToPercent(raw),
		device.StateKeyState:      onOff(raw > 0),
	}

	return c.publishCommand(ctx, "brightness", d, pid.Hardware, payload, patch)
}

// SetFanSpeed sets a fan to a percentage, snapped to the hardware's four
// speed steps.
func (c *Coordinator) SetFanSpeed(ctx context.Context, id string, percent int) error {
	d, pid, err := c.target(id)
	if err != nil {
		return err
	}
	if !d.HasCapability(device.CapFanSpeed) {
		return fmt.Errorf("%w: %q has no fan speed", ErrUnsupportedCommand, id)
	}

	setting := convert.PercentToFanSpeed(percent)
	snapped, _ := convert.FanSpeedToPercent(setting)
	payload := c.commandPayload(pid.Hardware, opRelayChange, "fan", setting)
	patch := device.State{
		device.StateKeyFanPercent: snapped,
		device.StateKeyState:      onOff(snapped > 0),
	}

	return c.publishCommand(ctx, "fan_speed", d, pid.Hardware, payload, patch)
}

// SetColorTemp sets a light's colour temperature. The hardware supports
// five discrete buckets; the optimistic state snaps to the bucket's
// representative Kelvin value.
func (c *Coordinator) SetColorTemp(ctx context.Context, id string, kelvin int) error {
	d, pid, err := c.target(id)
	if err != nil {
		return err
	}
	if !d.HasCapability(device.CapColorTemp) {
		return fmt.Errorf("%w: %q has no colour temperature", ErrUnsupportedCommand, id)
	}

	bucket := convert.LightTypeForKelvin(kelvin)
	payload := c.commandPayload(pid.Hardware, opRelayChange, "lightType", strconv.Itoa(bucket))
	patch := device.State{device.StateKeyColorTemp: convert.KelvinForLightType(bucket)}

	return c.publishCommand(ctx, "color_temp", d, pid.Hardware, payload, patch)
}

// SetCoverPosition drives a curtain toward a position. The hardware only
// knows fully open and fully closed, so the request snaps to 0 or 100 and
// is routed to the relay that winds in that direction.
func (c *Coordinator) SetCoverPosition(ctx context.Context, id string, position int) error {
	d, pid, err := c.target(id)
	if err != nil {
		return err
	}

	relays, ok := curtainRelays[pid.SubChannel]
	if !ok {
		return fmt.Errorf("%w: %q is not a curtain channel", ErrUnsupportedCommand, id)
	}

	snapped := convert.ClampCoverPosition(position)
	payload := c.commandPayload(pid.Hardware, opRelayChange, relays[snapped], "1")
	patch := device.State{
		device.StateKeyPosition: snapped,
		device.StateKeyClosed:   snapped == 0,
	}

	return c.publishCommand(ctx, "position", d, pid.Hardware, payload, patch)
}

// OpenCover fully opens a curtain.
func (c *Coordinator) OpenCover(ctx context.Context, id string) error {
	return c.SetCoverPosition(ctx, id, 100)
}

// CloseCover fully closes a curtain.
func (c *Coordinator) CloseCover(ctx context.Context, id string) error {
	return c.SetCoverPosition(ctx, id, 0)
}

// ActivateScene triggers a scene. The activation is mirrored to the bare
// account topic as well as the hardware topic; some firmware revisions
// only listen on one of them.
func (c *Coordinator) ActivateScene(ctx context.Context, id string) error {
	d, pid, err := c.target(id)
	if err != nil {
		return err
	}
	if d.Type != device.CategoryScene {
		return fmt.Errorf("%w: %q is not a scene", ErrUnsupportedCommand, id)
	}

	payload := c.commandPayload(pid.Hardware, opSceneExecute, "scId", pid.SubChannel)
	published := c.pusher.Publish(push.HardwareTopic(c.user, pid.Hardware), payload)
	c.pusher.Publish(push.SceneTopic(c.user), payload)
	c.telemetry.WriteCommand("scene", published)

	if !published {
		return fmt.Errorf("%w: scene for %s", ErrPublishFailed, d.ID)
	}

	if c.store.Patch(d.Type, d.ID, device.State{device.StateKeyState: device.StateOn}) {
		if c.history != nil {
			if err := c.history.RecordStateChange(ctx, d.ID, device.State{device.StateKeyState: device.StateOn}, device.StateHistorySourceCommand); err != nil {
				c.logger.Warn("history record failed", "device", d.ID, "error", err)
			}
		}
		c.notify()
	}
	return nil
}
