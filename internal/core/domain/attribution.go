package domain

// AttributionMode is how the builder suffix is attached to a dispatch.
type AttributionMode string

const (
	// ModeOff applies no suffix.
	ModeOff AttributionMode = "off"
	// ModeManual appends the suffix to every call's data.
	ModeManual AttributionMode = "manual"
	// ModeCapabilities passes the suffix through the wallet capability channel.
	ModeCapabilities AttributionMode = "capabilities"
)

// CapabilitySupport is the cached answer to "does this wallet attach the suffix itself".
type CapabilitySupport int

const (
	CapabilityUnknown CapabilitySupport = iota
	CapabilitySupported
	CapabilityUnsupported
)

func (s CapabilitySupport) String() string {
	switch s {
	case CapabilitySupported:
		return "supported"
	case CapabilityUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}
