package security

import (
	"fmt"
	"sort"
	"strings"
)

// Capability represents a permission a script may be granted.
type Capability string

// Known capabilities.
const (
	// CapabilityChart grants every chart capability.
	CapabilityChart Capability = "chart"

	// CapabilityChartRead allows resolving chart handles.
	CapabilityChartRead Capability = "chart.read"

	// CapabilityChartAnnotate allows annotation line changes.
	CapabilityChartAnnotate Capability = "chart.annotate"

	// CapabilityChartLayout allows reordering series rows.
	CapabilityChartLayout Capability = "chart.layout"

	// CapabilityChartCross allows resolving charts other than the one the
	// invocation is bound to.
	CapabilityChartCross Capability = "chart.cross"

	// CapabilityHost grants every host capability.
	CapabilityHost Capability = "host"

	// CapabilityHostLog allows writing to the host log.
	CapabilityHostLog Capability = "host.log"

	// CapabilityHostWindow allows opening host windows.
	CapabilityHostWindow Capability = "host.window"
)

// CapabilityInfo provides metadata about a capability.
type CapabilityInfo struct {
	Name        Capability
	Description string
	Parent      Capability
	RiskLevel   RiskLevel
}

// RiskLevel indicates the security risk of a capability.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

var capabilityRegistry = map[Capability]CapabilityInfo{
	CapabilityChart: {
		Name:        CapabilityChart,
		Description: "All chart operations",
		RiskLevel:   RiskMedium,
	},
	CapabilityChartRead: {
		Name:        CapabilityChartRead,
		Description: "Resolve chart handles",
		Parent:      CapabilityChart,
		RiskLevel:   RiskLow,
	},
	CapabilityChartAnnotate: {
		Name:        CapabilityChartAnnotate,
		Description: "Draw and delete annotation lines",
		Parent:      CapabilityChart,
		RiskLevel:   RiskLow,
	},
	CapabilityChartLayout: {
		Name:        CapabilityChartLayout,
		Description: "Reorder series rows",
		Parent:      CapabilityChart,
		RiskLevel:   RiskLow,
	},
	CapabilityChartCross: {
		Name:        CapabilityChartCross,
		Description: "Access charts other than the invoking one",
		Parent:      CapabilityChart,
		RiskLevel:   RiskMedium,
	},
	CapabilityHost: {
		Name:        CapabilityHost,
		Description: "All host operations",
		RiskLevel:   RiskHigh,
	},
	CapabilityHostLog: {
		Name:        CapabilityHostLog,
		Description: "Write to the host log",
		Parent:      CapabilityHost,
		RiskLevel:   RiskLow,
	},
	CapabilityHostWindow: {
		Name:        CapabilityHostWindow,
		Description: "Open host windows",
		Parent:      CapabilityHost,
		RiskLevel:   RiskHigh,
	},
}

// DefaultCapabilities returns the allowlist granted when config does not
// override it. Every chart capability is granted; host.window is not.
func DefaultCapabilities() []Capability {
	return []Capability{
		CapabilityHostLog,
		CapabilityChartRead,
		CapabilityChartAnnotate,
		CapabilityChartLayout,
		CapabilityChartCross,
	}
}

// GetCapabilityInfo returns information about a capability.
func GetCapabilityInfo(c Capability) (CapabilityInfo, bool) {
	info, ok := capabilityRegistry[c]
	return info, ok
}

// IsValidCapability returns true if the capability is known.
func IsValidCapability(c Capability) bool {
	_, ok := capabilityRegistry[c]
	return ok
}

// AllCapabilities returns all known capabilities in name order.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilityRegistry))
	for c := range capabilityRegistry {
		caps = append(caps, c)
	}
	sortCapabilities(caps)
	return caps
}

// ParseCapabilities converts names into capabilities, rejecting unknown
// names.
func ParseCapabilities(names []string) ([]Capability, error) {
	caps := make([]Capability, 0, len(names))
	for _, n := range names {
		c := Capability(strings.TrimSpace(n))
		if !IsValidCapability(c) {
			return nil, fmt.Errorf("unknown capability %q", n)
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// IsChildOf returns true if child is a descendant of parent.
func IsChildOf(child, parent Capability) bool {
	return strings.HasPrefix(string(child), string(parent)+".")
}

// ImpliesCapability returns true if having granted implies having required.
func ImpliesCapability(granted, required Capability) bool {
	if granted == required {
		return true
	}
	return IsChildOf(required, granted)
}

// CapabilityError reports a missing capability.
type CapabilityError struct {
	Capability Capability
	Operation  string
	Message    string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("capability %q required for %s: %s", e.Capability, e.Operation, e.Message)
	}
	return fmt.Sprintf("capability %q: %s", e.Capability, e.Message)
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(c Capability, operation, message string) *CapabilityError {
	return &CapabilityError{
		Capability: c,
		Operation:  operation,
		Message:    message,
	}
}

func sortCapabilities(caps []Capability) {
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
}
