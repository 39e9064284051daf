package cloud

import "github.com/eotlabs/eot-cloud-core/internal/convert"

// Intent identifiers for the smart-home API.
const (
	intentSync    = "action.devices.SYNC"
	intentQuery   = "action.devices.QUERY"
	intentExecute = "action.devices.EXECUTE"
)

// intentRequest is the envelope every API call shares.
type intentRequest struct {
	RequestID string        `json:"requestId"`
	Inputs    []intentInput `json:"inputs"`
}

type intentInput struct {
	Intent  string `json:"intent"`
	Payload any    `json:"payload,omitempty"`
}

// queryPayload lists the device ids whose state is requested.
type queryPayload struct {
	Devices []deviceRef `json:"devices"`
}

type deviceRef struct {
	ID string `json:"id"`
}

// executePayload carries command groups for the EXECUTE intent.
type executePayload struct {
	Commands []executeGroup `json:"commands"`
}

type executeGroup struct {
	Devices   []deviceRef `json:"devices"`
	Execution []Execution `json:"execution"`
}

// Execution is one command to run against a device group.
type Execution struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// syncResponse wraps the SYNC payload.
type syncResponse struct {
	RequestID string `json:"requestId"`
	Payload   struct {
		Devices []convert.VendorDevice `json:"devices"`
	} `json:"payload"`
}

// queryResponse wraps the QUERY payload, keyed by device id.
type queryResponse struct {
	RequestID string `json:"requestId"`
	Payload   struct {
		Devices map[string]convert.VendorState `json:"devices"`
	} `json:"payload"`
}

// executeResponse wraps the EXECUTE payload. Each result entry may carry
// a post-command state fragment for the devices it names.
type executeResponse struct {
	RequestID string `json:"requestId"`
	Payload   struct {
		Commands []CommandResult `json:"commands"`
	} `json:"payload"`
}

// CommandResult is one group's outcome from an EXECUTE response.
type CommandResult struct {
	IDs    []string            `json:"ids"`
	Status string              `json:"status"`
	States convert.VendorState `json:"states,omitempty"`
}
