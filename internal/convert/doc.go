// Package convert translates between the vendor cloud's smart-home intent
// schema and the canonical device model.
//
// Everything in this package is a pure function over its inputs: no I/O,
// no shared state, no clocks. The REST client decodes wire payloads into
// the Vendor* types defined here, and the sync coordinator feeds them
// through DeviceFromVendor and StateFromVendor to populate the store.
// State conversion produces partial patches with merge semantics; a key
// the vendor did not send is a key the patch does not contain.
//
// The scale conversions (brightness 0-255, fan speed quarters, colour
// temperature buckets, cover position snapping) mirror what the hardware
// actually accepts on the wire rather than any idealized range.
package convert
