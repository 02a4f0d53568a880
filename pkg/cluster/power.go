package cluster

import "strings"

// PowerControlType describes a family of power control hardware and the
// fence agent that drives it.
type PowerControlType struct {
	// Agent is the fence agent binary, e.g. "fence_apc" or "fence_ipmilan".
	Agent string

	// Model is the vendor model string, e.g. "IPMI 2.0".
	Model string

	// IPMI marks board management controllers addressed per-host rather
	// than per-plug.
	IPMI bool
}

// PowerControlDevice is one PDU or BMC instance.
type PowerControlDevice struct {
	Type     PowerControlType
	Address  string
	Port     int
	Username string
	Password string
}

// PowerOutlet associates one plug or BMC of a device with the host it
// fences.
type PowerOutlet struct {
	// Identifier is the plug number for a PDU, or the BMC address for IPMI.
	Identifier string

	Device *PowerControlDevice
}

// FenceAgentArgs builds the fence agent argument map for this outlet. IPMI
// devices are addressed by the outlet identifier directly; switched PDUs
// address the device and select the plug.
func (o *PowerOutlet) FenceAgentArgs() map[string]interface{} {
	args := map[string]interface{}{
		"agent":    o.Device.Type.Agent,
		"login":    o.Device.Username,
		"password": o.Device.Password,
	}

	// Virtual fencing agents take plug addressing even when flagged IPMI.
	if o.Device.Type.IPMI && o.Device.Type.Agent != "fence_virsh" && o.Device.Type.Agent != "fence_vbox" {
		args["ipaddr"] = o.Identifier
		args["lanplus"] = strings.Contains(o.Device.Type.Model, "2.0")
	} else {
		args["plug"] = o.Identifier
		args["ipaddr"] = o.Device.Address
		args["ipport"] = o.Device.Port
	}
	return args
}
